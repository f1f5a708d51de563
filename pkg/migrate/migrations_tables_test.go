package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/tableside-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestTablesMigrationEnforcesSeatInvariants(t *testing.T) {
	content := readMigration(t, "*_create_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS tables",
		"CHECK (status IN ('active', 'inactive'))",
		"CHECK (seats BETWEEN 2 AND 12)",
		"CHECK (available_seats >= 0 AND available_seats <= seats)",
		"CHECK (char_length(conversation_prompt) <= 200)",
		"CREATE INDEX IF NOT EXISTS idx_tables_location_status",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestUsersMigrationIndexesCurrentTable(t *testing.T) {
	content := readMigration(t, "*_create_users.sql")
	for _, sub := range []string{
		"current_table jsonb",
		"table_history jsonb NOT NULL DEFAULT '[]'::jsonb",
		"CREATE INDEX IF NOT EXISTS idx_users_current_table",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Zone Index")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_zone_index.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestEmbeddedSourceMatchesDisk(t *testing.T) {
	fsys, err := migrate.Source("")
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	embedded, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(embedded), len(onDisk))
	}
	if err := migrate.ValidateFS(fsys); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestSourceRejectsMissingDir(t *testing.T) {
	if _, err := migrate.Source(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected missing dir to fail")
	}
}

func TestValidateFSRejectsBadMigrations(t *testing.T) {
	up := "-- +goose Up\nSELECT 1;\n"
	full := up + "-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name": {
			"create_users.sql": {Data: []byte(full)},
		},
		"duplicate version": {
			"20261001090000_a.sql": {Data: []byte(full)},
			"20261001090000_b.sql": {Data: []byte(full)},
		},
		"missing down": {
			"20261001090000_a.sql": {Data: []byte(up)},
		},
		"down before up": {
			"20261001090000_a.sql": {Data: []byte("-- +goose Down\n" + up)},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.ValidateFS(fsys); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := migrate.ParseVersion("20261001090200"); err != nil || v != 20261001090200 {
		t.Fatalf("unexpected parse result %d, %v", v, err)
	}
	for _, bad := range []string{"", "42", "2026100109020x", "-0261001090200"} {
		if _, err := migrate.ParseVersion(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := migrate.CreateSQLMigration(t.TempDir(), " !! "); err == nil {
		t.Fatal("expected unusable name to fail")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matches %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
