// Package bootstrap holds the start-up and shutdown sequence shared by every
// Tableside binary.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tableside-backend/pkg/bigquery"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/migrate"
	"github.com/angelmondragon/tableside-backend/pkg/pubsub"
	"github.com/angelmondragon/tableside-backend/pkg/redis"
)

// Process is a loaded binary: its configuration, a logger tuned by that
// configuration and the resources to release on exit.
type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Load reads .env when present, then the environment.
func Load(kind string) (*Process, error) {
	boot := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Warn(boot.WithField(context.Background(), "error", err.Error()), "ignoring unreadable .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		return nil, err
	}
	cfg.Service.Kind = kind

	return &Process{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}, nil
}

// Defer registers fn to run on Close. Closers run in reverse order.
func (p *Process) Defer(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close releases every deferred resource and reports all failures.
func (p *Process) Close() error {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	p.closers = nil
	return errs
}

// Database connects to Postgres and applies pending migrations in dev.
func (p *Process) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	p.Defer("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, p.Config, p.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	p.Defer("redis", client.Close)
	return client, nil
}

func (p *Process) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	p.Defer("pubsub", client.Close)
	return client, nil
}

func (p *Process) BigQuery(ctx context.Context) (*bigquery.Client, error) {
	client, err := bigquery.NewClient(ctx, p.Config.GCP, p.Config.BigQuery, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bigquery: %w", err)
	}
	p.Defer("bigquery", client.Close)
	return client, nil
}

// ServeMetrics exposes /metrics and /health on the app port until ctx ends.
func (p *Process) ServeMetrics(ctx context.Context) {
	go func() {
		if err := metrics.Serve(ctx, ":"+p.Config.App.Port); err != nil {
			p.Logger.Error(ctx, "metrics server stopped", err)
		}
	}()
}

func (p *Process) signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
	}), stop
}

// Run is the body of a binary's main. It exits non-zero when loading or fn
// fails; a cancelled context counts as a clean shutdown.
func Run(kind string, fn func(ctx context.Context, p *Process) error) {
	os.Exit(run(kind, Load, fn))
}

func run(kind string, load func(string) (*Process, error), fn func(context.Context, *Process) error) int {
	p, err := load(kind)
	if err != nil {
		return 1
	}
	ctx, stop := p.signalContext()
	defer stop()

	err = fn(ctx, p)
	if cerr := p.Close(); cerr != nil {
		p.Logger.Error(ctx, "failed to release resources", cerr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Error(ctx, kind+" stopped unexpectedly", err)
		return 1
	}
	p.Logger.Info(ctx, kind+" shut down")
	return 0
}
