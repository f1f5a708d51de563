package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tableside-backend/internal/analytics/router"
	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
	"github.com/angelmondragon/tableside-backend/internal/analytics/worker"
	"github.com/angelmondragon/tableside-backend/internal/analytics/writer"
	"github.com/angelmondragon/tableside-backend/internal/bootstrap"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/idempotency"
)

func main() {
	bootstrap.Run("analytics-worker", run)
}

func run(ctx context.Context, p *bootstrap.Process) error {
	cfg := p.Config

	redisClient, err := p.Redis(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := p.PubSub(ctx)
	if err != nil {
		return err
	}
	bq, err := p.BigQuery(ctx)
	if err != nil {
		return err
	}
	if cfg.BigQuery.AutoCreate {
		if err := bq.EnsureTable(ctx, cfg.BigQuery.TableEventsTable, types.TableEventSchema(), "occurred_at"); err != nil {
			return fmt.Errorf("ensure %s table: %w", cfg.BigQuery.TableEventsTable, err)
		}
	}

	subscription := pubsubClient.TableEventsSubscription()
	if subscription == nil {
		return errors.New("table events subscription not configured")
	}
	seen, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	sink, err := writer.New(bq, writer.Config{Table: cfg.BigQuery.TableEventsTable})
	if err != nil {
		return fmt.Errorf("bigquery writer: %w", err)
	}
	routes, err := router.NewRouter(sink, p.Logger, nil)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}

	consumer, err := worker.NewConsumer(worker.ConsumerParams{
		Subscription: subscription,
		Handler:      routes,
		Idempotency:  seen,
		Flusher:      sink,
		Metrics:      metrics.NewAnalyticsMetrics(prometheus.DefaultRegisterer),
		Logger:       p.Logger,
	})
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	p.ServeMetrics(ctx)
	p.Logger.Info(ctx, "analytics worker ready")
	return consumer.Run(ctx)
}
