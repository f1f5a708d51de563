package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type eventStore interface {
	FetchForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error
	MarkDeadLettered(tx *gorm.DB, id uuid.UUID, err error) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublishers returns the publisher for a topic, or nil when there is none.
type topicPublishers func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	PubSub     pinger
	Events     eventStore
	DeadLetter deadLetterStore
	Registry   resolver
	Topics     topicPublishers
	Metrics    *metrics.OutboxMetrics
	Now        func() time.Time
}

// Relay moves committed outbox_events rows onto Pub/Sub. Rows that can never
// be delivered are copied to outbox_dlq and closed.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      pinger
	events      eventStore
	deadLetter  deadLetterStore
	registry    resolver
	topics      topicPublishers
	metrics     *metrics.OutboxMetrics
	now         func() time.Time
	pace        *pacer
	batchSize   int
	maxAttempts int
}

func NewRelay(params RelayParams) (*Relay, error) {
	var errs error
	for _, dep := range []struct {
		name    string
		missing bool
	}{
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"pubsub client", params.PubSub == nil},
		{"outbox repository", params.Events == nil},
		{"dlq repository", params.DeadLetter == nil},
		{"event registry", params.Registry == nil},
		{"topic publishers", params.Topics == nil},
	} {
		if dep.missing {
			errs = multierr.Append(errs, fmt.Errorf("%s is required", dep.name))
		}
	}
	if errs != nil {
		return nil, errs
	}

	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		events:      params.Events,
		deadLetter:  params.DeadLetter,
		registry:    params.Registry,
		topics:      params.Topics,
		metrics:     params.Metrics,
		now:         params.Now,
		batchSize:   params.Config.BatchSize,
		maxAttempts: params.Config.MaxAttempts,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	poll := time.Duration(params.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	r.pace = newPacer(poll)
	return r, nil
}

// Run drains the outbox until ctx is cancelled. Full batches are followed
// immediately by the next one.
func (r *Relay) Run(ctx context.Context) error {
	if err := multierr.Combine(
		labelled("database", r.db.Ping(ctx)),
		labelled("pubsub", r.pubsub.Ping(ctx)),
	); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	for {
		handled, err := r.drain(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox batch failed", err)
		}
		wait := r.pace.next(handled, err != nil)
		if wait == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// drain locks one batch and settles every row before the transaction commits.
// Any returned error rolls the whole batch back.
func (r *Relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, row := range rows {
			v, err := r.settle(ctx, tx, row)
			if err != nil {
				return err
			}
			r.metrics.Observe(string(row.EventType), string(v.outcome))
			handled++
		}
		return nil
	})
	return handled, err
}

func labelled(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
