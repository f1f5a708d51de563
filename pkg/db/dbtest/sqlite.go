// Package dbtest opens throwaway SQLite databases carrying the full schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
)

// Open returns an in-memory database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:tableside_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// a single connection serialises transactions the way row locks do in Postgres
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return conn
}

// Client wraps Open in the db.Client used by services.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.FromConn(Open(t))
}
