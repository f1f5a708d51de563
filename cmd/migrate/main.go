package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tableside-backend/internal/locations"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/migrate"
)

const usage = "up|down|status|version|create|validate|seed-locations"

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+usage)
	dir := flag.String("dir", "", "migrations directory (defaults to the embedded set, or "+migrate.DefaultDir+" for create and validate)")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only
	switch *cmd {
	case "create":
		if *name == "" {
			exit("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(orDefault(*dir), *name)
		if err != nil {
			exit("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(orDefault(*dir)); err != nil {
			exit("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		exit("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "database", err)
	}
	defer dbClient.Close()

	if *cmd == "seed-locations" {
		svc, err := locations.NewService(locations.NewRepository(dbClient.DB()), logg)
		if err != nil {
			fail(ctx, logg, "location service", err)
		}
		inserted, err := svc.Seed(ctx)
		if err != nil {
			fail(ctx, logg, "seed locations", err)
		}
		fmt.Println("seeded locations:", inserted)
		return
	}

	pool, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "sql database", err)
	}
	fsys, err := migrate.Source(*dir)
	if err != nil {
		fail(ctx, logg, "migrations source", err)
	}
	m, err := migrate.New(pool, fsys, logg)
	if err != nil {
		fail(ctx, logg, "migrator", err)
	}
	defer m.Close()

	switch *cmd {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "version":
		if *version == "" {
			exit("missing -version for version command")
		}
		err = m.To(ctx, *version)
	case "status":
		err = printStatus(ctx, m)
	default:
		exit("unknown -cmd %q (want %s)", *cmd, usage)
	}
	if err != nil {
		fail(ctx, logg, *cmd, err)
	}
}

func printStatus(ctx context.Context, m *migrate.Migrator) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return w.Flush()
}

func orDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func fail(ctx context.Context, logg *logger.Logger, step string, err error) {
	logg.Error(ctx, "migrate failed: "+step, err)
	os.Exit(1)
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
