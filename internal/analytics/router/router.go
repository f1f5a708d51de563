package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer stores the rows built by the handlers.
type Writer interface {
	InsertTableEvent(ctx context.Context, row types.TableEventRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router dispatches envelopes to the handler registered for their event type.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
	logg     *logger.Logger
}

// NewRouter wires the default handlers. overrides replace the handler of an
// already known event type and are ignored otherwise.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	rows := &rowHandler{writer: writer, logg: logg}
	handlers := map[enums.OutboxEventType]Handler{
		enums.EventTableCreated:   rows.with(tableCreatedRow),
		enums.EventTableJoined:    rows.with(tableJoinedRow),
		enums.EventTableLeft:      rows.with(tableLeftRow),
		enums.EventTableEnded:     rows.with(tableEndedRow),
		enums.EventUserRegistered: rows.with(userRegisteredRow),
		enums.EventUserDeleted:    rows.with(userDeletedRow),
	}
	for event, custom := range overrides {
		if _, ok := handlers[event]; ok && custom != nil {
			handlers[event] = custom
		}
	}

	return &Router{handlers: handlers, logg: logg}, nil
}

// Handle decodes the envelope payload and hands it to the registered handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload, err := registry.DecodePayload(envelope.EventType, envelope.Payload)
	if err != nil {
		return err
	}
	return handler.Handle(ctx, envelope, payload)
}
