package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// DefaultDir is where new migrations are written and validated.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migrations to run: dir on disk when set, otherwise the
// set compiled into the binary.
func Source(dir string) (fs.FS, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, "migrations")
}

// Migrator applies Postgres migrations through a goose provider.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func New(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if result != nil {
		m.report(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// To migrates up or down until the database sits at target.
func (m *Migrator) To(ctx context.Context, target string) error {
	version, err := ParseVersion(target)
	if err != nil {
		return err
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil
	case current < version:
		results, err = m.provider.UpTo(ctx, version)
	default:
		results, err = m.provider.DownTo(ctx, version)
	}
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose migrate to %d: %w", version, err)
	}
	return nil
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return m.provider.Status(ctx)
}

func (m *Migrator) Close() error {
	return m.provider.Close()
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fields := map[string]any{
			"version":     r.Source.Version,
			"file":        r.Source.Path,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		}
		if r.Error != nil {
			m.logg.Error(m.logg.WithFields(ctx, fields), "migration failed", r.Error)
			continue
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), "migration applied")
	}
}

// ParseVersion reads a YYYYMMDDHHMMSS migration version.
func ParseVersion(value string) (int64, error) {
	if len(value) != 14 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	return version, nil
}
