package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tableside-backend/internal/bootstrap"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/registry"
)

func main() {
	bootstrap.Run("outbox-publisher", run)
}

func run(ctx context.Context, p *bootstrap.Process) error {
	dbClient, err := p.Database(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := p.PubSub(ctx)
	if err != nil {
		return err
	}
	events, err := registry.NewEventRegistry(p.Config.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	dlq := outbox.NewDLQRepository(dbClient.DB())
	relay, err := NewRelay(RelayParams{
		Config:     p.Config.Outbox,
		Logger:     p.Logger,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Events:     outbox.NewRepository(dbClient.DB()),
		DeadLetter: dlq,
		Registry:   events,
		Topics: func(topic string) publisher {
			return newGCPPublisher(pubsubClient.Publisher(topic))
		},
		Metrics: metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("outbox relay: %w", err)
	}

	if recent, err := dlq.List(ctx, 10); err != nil {
		p.Logger.Warn(p.Logger.WithField(ctx, "error", err.Error()), "unable to read outbox dlq")
	} else if len(recent) > 0 {
		p.Logger.Warn(p.Logger.WithField(ctx, "recent_dead_letters", len(recent)), "outbox dlq is not empty")
	}

	p.ServeMetrics(ctx)
	p.Logger.Info(ctx, "starting outbox publisher")
	return relay.Run(ctx)
}
