// Package writer streams analytics rows into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
)

type Config struct {
	Table       string
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds retries of transient insert failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers table_events rows and streams them in batches of BatchSize.
type BigQueryWriter struct {
	client    tableInserter
	table     string
	batchSize int
	retry     RetryPolicy

	mu      sync.Mutex
	pending []types.TableEventRow
}

func New(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("table events table is required")
	}
	return &BigQueryWriter{
		client:    client,
		table:     table,
		batchSize: max(cfg.BatchSize, 1),
		retry:     cfg.RetryPolicy.withDefaults(),
	}, nil
}

// InsertTableEvent queues row and flushes once the batch is full.
func (w *BigQueryWriter) InsertTableEvent(ctx context.Context, row types.TableEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is queued.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// flushLocked empties the queue even on failure: the worker nacks the message
// and Pub/Sub redelivers the row.
func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, 0, len(w.pending))
	for i := range w.pending {
		rows = append(rows, &w.pending[i])
	}
	err := w.insert(ctx, rows)
	w.pending = w.pending[:0]
	return err
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	wait := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !retryable(err) {
			return fmt.Errorf("insert %d rows into %s (attempt %d): %w", len(rows), w.table, attempt, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		wait = min(wait*2, w.retry.MaximumBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
