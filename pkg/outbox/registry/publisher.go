package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
)

// EventDescriptor says where an event type is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row after its envelope and payload were checked.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish and belongs in the DLQ.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so the publisher dead-letters the row.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// EventRegistry routes catalogued events to their Pub/Sub topic.
type EventRegistry struct {
	topics map[enums.OutboxAggregateType]string
}

// NewEventRegistry binds every aggregate to the configured table events topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.TableEventsTopic == "" {
		return nil, errors.New("table events topic is required")
	}
	return &EventRegistry{topics: map[enums.OutboxAggregateType]string{
		enums.AggregateTable: cfg.TableEventsTopic,
		enums.AggregateUser:  cfg.TableEventsTopic,
	}}, nil
}

// Descriptor returns the routing for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	aggregate, ok := AggregateOf(eventType)
	if !ok {
		return EventDescriptor{}, false
	}
	topic, ok := r.topics[aggregate]
	if !ok {
		return EventDescriptor{}, false
	}
	return EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: topic}, true
}

// Resolve checks the row against the catalog and decodes its payload. Every
// error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.Descriptor(event.EventType)
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: %s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", envelope.Version)
	}
	if envelope.EventID == "" {
		return nil, errors.New("envelope missing eventId")
	}

	payload, err := DecodePayload(event.EventType, envelope.Data)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
