package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations under dir on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks file names, version uniqueness and that every migration
// declares both goose sections.
func ValidateFS(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		if err := checkSections(fsys, name); err != nil {
			return err
		}
	}
	return nil
}

func checkSections(fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	defer f.Close()

	var up, down bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "-- +goose Up":
			up = true
		case "-- +goose Down":
			if !up {
				return fmt.Errorf("migration %q declares Down before Up", name)
			}
			down = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %q: %w", name, err)
	}
	if !up || !down {
		return fmt.Errorf("migration %q must declare both \"-- +goose Up\" and \"-- +goose Down\"", name)
	}
	return nil
}
