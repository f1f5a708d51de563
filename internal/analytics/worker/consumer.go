package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tableside-backend/internal/analytics/router"
	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
)

const (
	consumerName = "analytics"
	flushTimeout = 10 * time.Second
)

// Handler processes decoded envelopes.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type claimer interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type flusher interface {
	Flush(ctx context.Context) error
}

type ConsumerParams struct {
	Subscription receiver
	Handler      Handler
	Idempotency  claimer
	Flusher      flusher
	Metrics      *metrics.AnalyticsMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

// Consumer feeds table events from Pub/Sub into the analytics handler. An
// event id is handled at most once per idempotency TTL.
type Consumer struct {
	subscription receiver
	handler      Handler
	claims       claimer
	flusher      flusher
	metrics      *metrics.AnalyticsMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	var errs error
	if params.Subscription == nil {
		errs = multierr.Append(errs, errors.New("analytics subscription is required"))
	}
	if params.Handler == nil {
		errs = multierr.Append(errs, errors.New("analytics handler is required"))
	}
	if params.Idempotency == nil {
		errs = multierr.Append(errs, errors.New("idempotency manager is required"))
	}
	if params.Logger == nil {
		errs = multierr.Append(errs, errors.New("logger is required"))
	}
	if errs != nil {
		return nil, errs
	}
	c := &Consumer{
		subscription: params.Subscription,
		handler:      params.Handler,
		claims:       params.Idempotency,
		flusher:      params.Flusher,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          params.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// result labels what happened to a message. Only failures are redelivered.
type result string

const (
	resultHandled     result = "handled"
	resultDuplicate   result = "duplicate"
	resultMalformed   result = "malformed"
	resultUnsupported result = "unsupported"
	resultFailed      result = "failed"
)

func (r result) redeliver() bool { return r == resultFailed }

// Run receives until ctx is cancelled, then flushes buffered rows.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if c.consume(msgCtx, msg).redeliver() {
			msg.Nack()
			return
		}
		msg.Ack()
	})

	if c.flusher != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if ferr := c.flusher.Flush(flushCtx); ferr != nil {
			c.logg.Error(flushCtx, "final analytics flush failed", ferr)
			err = multierr.Append(err, fmt.Errorf("final flush: %w", ferr))
		}
	}
	return err
}

func (c *Consumer) consume(ctx context.Context, msg *gcppubsub.Message) result {
	ctx = c.logg.WithField(ctx, "message_id", msg.ID)

	envelope, eventID, err := decodeMessage(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping analytics message")
		c.metrics.Consumed("", string(resultMalformed))
		return resultMalformed
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
	})

	res := c.handle(ctx, envelope, eventID)
	c.metrics.Consumed(string(envelope.EventType), string(res))
	if res == resultHandled {
		c.metrics.ObserveLag(envelope.OccurredAt, c.now())
	}
	return res
}

func (c *Consumer) handle(ctx context.Context, envelope types.Envelope, eventID uuid.UUID) result {
	seen, err := c.claims.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return resultFailed
	}
	if seen {
		c.logg.Debug(ctx, "analytics event already processed")
		return resultDuplicate
	}

	err = c.handler.Handle(ctx, envelope)
	switch {
	case err == nil:
		c.logg.Info(ctx, "analytics event handled")
		return resultHandled
	case errors.Is(err, router.ErrUnsupportedEventType):
		c.logg.Warn(ctx, "no analytics handler for event")
		return resultUnsupported
	}

	c.logg.Error(ctx, "analytics handler failed", err)
	// release the claim so the redelivery is not mistaken for a duplicate
	if err := c.claims.Delete(ctx, consumerName, eventID); err != nil {
		c.logg.Error(ctx, "idempotency release failed", err)
	}
	return resultFailed
}
