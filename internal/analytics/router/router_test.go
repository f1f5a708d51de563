package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/payloads"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	env := types.Envelope{
		EventType: enums.OutboxEventType("order_created"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterRejectsEmptyPayload(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	err := router.Handle(context.Background(), types.Envelope{EventType: enums.EventTableJoined})
	if err == nil {
		t.Fatal("expected error for empty payload")
	}
	if len(writer.rows) != 0 {
		t.Fatal("no row should be written")
	}
}

func TestRouterRoutesToOverride(t *testing.T) {
	handler := &stubHandler{}
	router, writer := newTestRouter(t, map[enums.OutboxEventType]Handler{
		enums.EventTableJoined:                 handler,
		enums.OutboxEventType("order_created"): handler,
	})
	env := envelope(t, enums.EventTableJoined, payloads.TableJoinedEvent{TableID: uuid.New(), LocationID: "campus"})

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handler.called {
		t.Fatalf("handler not invoked")
	}
	if _, ok := handler.payload.(*payloads.TableJoinedEvent); !ok {
		t.Fatalf("expected decoded TableJoinedEvent, got %T", handler.payload)
	}
	if len(writer.rows) != 0 {
		t.Fatal("default handler should be replaced")
	}
	if _, ok := router.handlers[enums.OutboxEventType("order_created")]; ok {
		t.Fatal("overrides must not register unknown events")
	}
}

func TestTableEndedRow(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	tableID := uuid.New()
	creator := uuid.New()
	env := envelope(t, enums.EventTableEnded, payloads.TableEndedEvent{
		TableID:              tableID,
		LocationID:           "campus",
		EndedBy:              creator,
		EndReason:            "Session over",
		ParticipantsToNotify: []uuid.UUID{uuid.New(), uuid.New()},
		EndedAt:              time.Now(),
	})

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(writer.rows))
	}
	row := writer.rows[0]
	if row.EventID != env.EventID || row.EventType != "table_ended" || row.AggregateType != "table" {
		t.Fatalf("unexpected envelope columns %+v", row)
	}
	if row.TableID == nil || *row.TableID != tableID.String() {
		t.Fatalf("unexpected table id %v", row.TableID)
	}
	if row.UserID == nil || *row.UserID != creator.String() {
		t.Fatalf("expected creator as user id")
	}
	if row.NotifiedCount == nil || *row.NotifiedCount != 2 {
		t.Fatalf("expected two notified participants, got %v", row.NotifiedCount)
	}
	if row.Reason == nil || *row.Reason != "Session over" {
		t.Fatalf("unexpected reason %v", row.Reason)
	}
	if !row.Payload.Valid {
		t.Fatal("expected payload json")
	}
}

func TestTableCreatedRowCountsCreatorSeat(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	env := envelope(t, enums.EventTableCreated, payloads.TableCreatedEvent{
		TableID:    uuid.New(),
		LocationID: "campus",
		CreatorID:  uuid.New(),
		Title:      "Algebra",
		Zone:       "Library",
		Seats:      4,
	})

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := writer.rows[0]
	if row.Seats == nil || *row.Seats != 4 {
		t.Fatalf("unexpected seats %v", row.Seats)
	}
	if row.AvailableSeats == nil || *row.AvailableSeats != 3 {
		t.Fatalf("unexpected available seats %v", row.AvailableSeats)
	}
	if row.Zone == nil || *row.Zone != "Library" {
		t.Fatalf("unexpected zone %v", row.Zone)
	}
	if row.Reason != nil {
		t.Fatal("reason should be null for table_created")
	}
}

func TestUserDeletedRowLeavesTableColumnsNull(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	userID := uuid.New()
	env := envelope(t, enums.EventUserDeleted, payloads.UserDeletedEvent{UserID: userID, DeletedAt: time.Now()})
	env.AggregateType = enums.AggregateUser

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := writer.rows[0]
	if row.UserID == nil || *row.UserID != userID.String() {
		t.Fatalf("unexpected user id %v", row.UserID)
	}
	if row.TableID != nil || row.LocationID != nil {
		t.Fatal("table columns should be null for user events")
	}
}

func TestWriterErrorPropagates(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	writer.err = errors.New("bigquery down")
	env := envelope(t, enums.EventTableLeft, payloads.TableLeftEvent{TableID: uuid.New(), UserID: uuid.New()})

	if err := router.Handle(context.Background(), env); err == nil {
		t.Fatal("expected writer error")
	}
}

func newTestRouter(t *testing.T, overrides map[enums.OutboxEventType]Handler) (*Router, *fakeWriter) {
	t.Helper()
	writer := &fakeWriter{}
	router, err := NewRouter(writer, logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}), overrides)
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router, writer
}

func envelope(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: enums.AggregateTable,
		AggregateID:   uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		Payload:       data,
	}
}

type stubHandler struct {
	called  bool
	payload any
}

func (s *stubHandler) Handle(_ context.Context, _ types.Envelope, payload any) error {
	s.called = true
	s.payload = payload
	return nil
}

type fakeWriter struct {
	rows []types.TableEventRow
	err  error
}

func (f *fakeWriter) InsertTableEvent(_ context.Context, row types.TableEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}
