package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tableside-backend/internal/tables"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type orphanReconciler interface {
	ReconcileOrphans(ctx context.Context, batchSize int) (tables.ReconcileResult, error)
}

type OrphanReconcileJobParams struct {
	Logger    *logger.Logger
	Tables    orphanReconciler
	BatchSize int
}

// NewOrphanReconcileJob sweeps user table pointers that reference missing or ended tables.
func NewOrphanReconcileJob(params OrphanReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tables == nil {
		return nil, fmt.Errorf("table reconciler required")
	}
	return &orphanReconcileJob{
		logg:      params.Logger,
		tables:    params.Tables,
		batchSize: params.BatchSize,
	}, nil
}

type orphanReconcileJob struct {
	logg      *logger.Logger
	tables    orphanReconciler
	batchSize int
}

func (j *orphanReconcileJob) Name() string { return "orphan-reconcile" }

func (j *orphanReconcileJob) Run(ctx context.Context) error {
	result, err := j.tables.ReconcileOrphans(ctx, j.batchSize)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"healed":  result.Healed,
	})
	if err != nil {
		// partial sweeps still report what they healed
		return fmt.Errorf("reconcile orphans (healed %d of %d): %w", result.Healed, result.Scanned, err)
	}
	j.logg.Info(logCtx, "orphan pointer sweep complete")
	return nil
}
