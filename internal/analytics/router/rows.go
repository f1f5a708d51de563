package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
	"github.com/angelmondragon/tableside-backend/internal/analytics/writer"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/payloads"
)

// rowBuilder fills the event specific columns of row from payload.
type rowBuilder func(row *types.TableEventRow, payload any) error

type rowHandler struct {
	writer Writer
	logg   *logger.Logger
}

func (h *rowHandler) with(build rowBuilder) Handler {
	return &builderHandler{rowHandler: h, build: build}
}

type builderHandler struct {
	*rowHandler
	build rowBuilder
}

func (h *builderHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	logCtx := h.logg.WithField(ctx, "event_type", string(envelope.EventType))

	row := types.TableEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		OccurredAt:    envelope.OccurredAt,
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
	}
	if err := h.build(&row, payload); err != nil {
		h.logg.Error(logCtx, "failed to build table event row", err)
		return err
	}
	encoded, err := writer.EncodeJSON(payload)
	if err != nil {
		return fmt.Errorf("encode payload json: %w", err)
	}
	row.Payload = encoded

	if err := h.writer.InsertTableEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert table event row", err)
		return err
	}
	return nil
}

func tableCreatedRow(row *types.TableEventRow, payload any) error {
	event, ok := payload.(*payloads.TableCreatedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for table_created")
	}
	row.TableID = uuidPtr(event.TableID)
	row.LocationID = stringPtr(event.LocationID)
	row.UserID = uuidPtr(event.CreatorID)
	row.Zone = stringPtr(event.Zone)
	row.Seats = int64Ptr(int64(event.Seats))
	row.AvailableSeats = int64Ptr(int64(event.Seats - 1))
	return nil
}

func tableJoinedRow(row *types.TableEventRow, payload any) error {
	event, ok := payload.(*payloads.TableJoinedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for table_joined")
	}
	row.TableID = uuidPtr(event.TableID)
	row.LocationID = stringPtr(event.LocationID)
	row.UserID = uuidPtr(event.UserID)
	row.AvailableSeats = int64Ptr(int64(event.AvailableSeats))
	return nil
}

func tableLeftRow(row *types.TableEventRow, payload any) error {
	event, ok := payload.(*payloads.TableLeftEvent)
	if !ok {
		return fmt.Errorf("invalid payload for table_left")
	}
	row.TableID = uuidPtr(event.TableID)
	row.LocationID = stringPtr(event.LocationID)
	row.UserID = uuidPtr(event.UserID)
	row.AvailableSeats = int64Ptr(int64(event.AvailableSeats))
	row.Reason = stringPtr(event.Reason)
	return nil
}

func tableEndedRow(row *types.TableEventRow, payload any) error {
	event, ok := payload.(*payloads.TableEndedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for table_ended")
	}
	row.TableID = uuidPtr(event.TableID)
	row.LocationID = stringPtr(event.LocationID)
	row.UserID = uuidPtr(event.EndedBy)
	row.NotifiedCount = int64Ptr(int64(len(event.ParticipantsToNotify)))
	row.Reason = stringPtr(event.EndReason)
	return nil
}

func userRegisteredRow(row *types.TableEventRow, payload any) error {
	event, ok := payload.(*payloads.UserRegisteredEvent)
	if !ok {
		return fmt.Errorf("invalid payload for user_registered")
	}
	row.UserID = uuidPtr(event.UserID)
	return nil
}

func userDeletedRow(row *types.TableEventRow, payload any) error {
	event, ok := payload.(*payloads.UserDeletedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for user_deleted")
	}
	row.UserID = uuidPtr(event.UserID)
	return nil
}

func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return stringPtr(id.String())
}

func int64Ptr(value int64) *int64 {
	return &value
}
