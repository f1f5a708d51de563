package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tableside-backend/internal/bootstrap"
	"github.com/angelmondragon/tableside-backend/internal/cron"
	"github.com/angelmondragon/tableside-backend/internal/tables"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
)

func main() {
	bootstrap.Run("cron-worker", run)
}

func run(ctx context.Context, p *bootstrap.Process) error {
	cfg, logg := p.Config, p.Logger

	dbClient, err := p.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := p.Redis(ctx)
	if err != nil {
		return err
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	tableSvc, err := tables.NewService(tables.ServiceParams{
		DB:        dbClient,
		Cache:     tables.NewRedisStatusCache(redisClient, cfg.Tables.StatusCacheTTL, logg),
		Outbox:    outbox.NewService(outboxRepo, logg),
		Publisher: tables.NewRedisFeed(redisClient, logg),
		Metrics:   metrics.NewTableMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
		Config:    cfg.Tables,
	})
	if err != nil {
		return fmt.Errorf("table service: %w", err)
	}

	reconcile, err := cron.NewOrphanReconcileJob(cron.OrphanReconcileJobParams{
		Logger:    logg,
		Tables:    tableSvc,
		BatchSize: cfg.Tables.ReconcileBatchSize,
	})
	if err != nil {
		return fmt.Errorf("orphan reconcile job: %w", err)
	}
	prune, err := cron.NewOutboxPruneJob(cron.OutboxPruneJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return fmt.Errorf("outbox prune job: %w", err)
	}

	jobs := cron.NewRegistry()
	if err := multierr.Combine(
		jobs.Register(reconcile, cfg.Cron.ReconcileEvery),
		jobs.Register(prune, cfg.Cron.PruneEvery),
	); err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	scope := cfg.App.Env
	if scope == "" {
		scope = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron:"+scope), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	p.ServeMetrics(ctx)
	logg.Info(ctx, "starting cron worker")
	return scheduler.Run(ctx)
}
