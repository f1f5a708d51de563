package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OutboxPruneJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Retention  time.Duration
	Now        func() time.Time
}

// NewOutboxPruneJob deletes published outbox rows older than the retention window.
func NewOutboxPruneJob(params OutboxPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &outboxPruneJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       now,
	}, nil
}

type outboxPruneJob struct {
	logg      *logger.Logger
	repo      outboxPruner
	retention time.Duration
	now       func() time.Time
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

func (j *outboxPruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox prune complete")
	return nil
}
