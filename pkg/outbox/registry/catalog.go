package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/payloads"
)

// CurrentVersion is the envelope version written by outbox.Service.Emit and
// the only one consumers accept.
const CurrentVersion = 1

var (
	// ErrUnknownEvent is returned for event types missing from the catalog.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrEmptyPayload is returned when the envelope carries no data.
	ErrEmptyPayload = errors.New("empty event payload")
)

type schema struct {
	aggregate enums.OutboxAggregateType
	build     func() any
}

func entry[T any](aggregate enums.OutboxAggregateType) schema {
	return schema{aggregate: aggregate, build: func() any { return new(T) }}
}

// catalog is shared by the publisher and the analytics consumer so both sides
// agree on which struct each event type decodes into.
var catalog = map[enums.OutboxEventType]schema{
	enums.EventTableCreated:   entry[payloads.TableCreatedEvent](enums.AggregateTable),
	enums.EventTableJoined:    entry[payloads.TableJoinedEvent](enums.AggregateTable),
	enums.EventTableLeft:      entry[payloads.TableLeftEvent](enums.AggregateTable),
	enums.EventTableEnded:     entry[payloads.TableEndedEvent](enums.AggregateTable),
	enums.EventUserRegistered: entry[payloads.UserRegisteredEvent](enums.AggregateUser),
	enums.EventUserDeleted:    entry[payloads.UserDeletedEvent](enums.AggregateUser),
}

// EventTypes lists the catalogued event types in a stable order.
func EventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(catalog))
	for eventType := range catalog {
		out = append(out, eventType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AggregateOf reports the aggregate an event type belongs to.
func AggregateOf(eventType enums.OutboxEventType) (enums.OutboxAggregateType, bool) {
	s, ok := catalog[eventType]
	return s.aggregate, ok
}

// NewPayload returns a pointer to a zero payload struct for eventType.
func NewPayload(eventType enums.OutboxEventType) (any, error) {
	s, ok := catalog[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}
	return s.build(), nil
}

// DecodePayload unmarshals data into the payload struct registered for eventType.
func DecodePayload(eventType enums.OutboxEventType, data []byte) (any, error) {
	payload, err := NewPayload(eventType)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPayload, eventType)
	}
	if err := json.Unmarshal(trimmed, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return payload, nil
}
