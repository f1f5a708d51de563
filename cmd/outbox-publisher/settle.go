package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/registry"
)

type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
)

// verdict is what happens to a row after one delivery attempt.
type verdict struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	cause   error
}

// judge decides a row's fate from the error of its delivery attempt.
func (r *Relay) judge(row models.OutboxEvent, err error) verdict {
	if err == nil {
		return verdict{outcome: outcomePublished}
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return verdict{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, cause: err}
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		return verdict{
			outcome: outcomeDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			cause:   fmt.Errorf("max publish attempts reached: %w", err),
		}
	}
	return verdict{outcome: outcomeRetry, cause: err}
}

// settle makes one delivery attempt for row and records the verdict on it.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (verdict, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	})

	resolved, err := r.registry.Resolve(row)
	if err == nil {
		ctx = r.logg.WithFields(ctx, map[string]any{
			"topic":    resolved.Descriptor.Topic,
			"event_id": resolved.Envelope.EventID,
		})
		err = r.publish(ctx, row, resolved)
	}

	v := r.judge(row, err)
	switch v.outcome {
	case outcomePublished:
		if err := r.events.MarkPublished(tx, row.ID, r.now().UTC()); err != nil {
			return v, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(ctx, "outbox event published")
	case outcomeRetry:
		r.logg.Warn(r.logg.WithField(ctx, "error", v.cause.Error()), "outbox publish failed, will retry")
		if err := r.events.MarkFailed(tx, row.ID, v.cause); err != nil {
			return v, fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
	case outcomeDeadLetter:
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"error":        v.cause.Error(),
			"error_reason": v.reason,
		}), "outbox event dead-lettered")
		if err := r.bury(tx, row, v); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (r *Relay) bury(tx *gorm.DB, row models.OutboxEvent, v verdict) error {
	msg := v.cause.Error()
	if err := r.deadLetter.InsertTx(tx, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   v.reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.MarkDeadLettered(tx, row.ID, v.cause); err != nil {
		return fmt.Errorf("mark dead-lettered %s: %w", row.ID, err)
	}
	return nil
}

// publish sends the stored envelope unchanged; consumers read routing data
// from the attributes.
func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.topics(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := result.Get(ctx)
	return err
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
