package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tableside-backend/internal/analytics/router"
	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
)

func TestDecodeMessage(t *testing.T) {
	eventID := uuid.New()
	tableID := uuid.NewString()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := message(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: occurred,
		Data:       json.RawMessage(`{"table_id":"` + tableID + `"}`),
	}, map[string]string{
		"event_type":     "table_joined",
		"aggregate_type": " table ",
		"aggregate_id":   tableID,
	})

	env, id, err := decodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, eventID, id)
	assert.Equal(t, types.Envelope{
		EventID:       eventID.String(),
		EventType:     enums.EventTableJoined,
		AggregateType: enums.AggregateTable,
		AggregateID:   tableID,
		OccurredAt:    occurred,
		Payload:       json.RawMessage(`{"table_id":"` + tableID + `"}`),
	}, env)
}

func TestDecodeMessageFallsBackToAttributes(t *testing.T) {
	eventID := uuid.NewString()
	msg := message(t, outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_id":       eventID,
		"event_type":     "user_deleted",
		"aggregate_type": "user",
		"aggregate_id":   uuid.NewString(),
		"occurred_at":    "2026-05-01T08:30:00Z",
	})

	env, _, err := decodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, eventID, env.EventID)
	assert.Equal(t, 8, env.OccurredAt.Hour())
}

func TestDecodeMessageRejects(t *testing.T) {
	valid := map[string]string{
		"event_type":     "table_created",
		"aggregate_type": "table",
		"aggregate_id":   uuid.NewString(),
	}
	with := func(key, value string) map[string]string {
		out := map[string]string{}
		for k, v := range valid {
			out[k] = v
		}
		out[key] = value
		return out
	}

	cases := []struct {
		name  string
		env   outbox.PayloadEnvelope
		attrs map[string]string
	}{
		{"unknown event type", outbox.PayloadEnvelope{EventID: uuid.NewString()}, with("event_type", "order_created")},
		{"unknown aggregate", outbox.PayloadEnvelope{EventID: uuid.NewString()}, with("aggregate_type", "order")},
		{"missing aggregate id", outbox.PayloadEnvelope{EventID: uuid.NewString()}, with("aggregate_id", "")},
		{"event id not a uuid", outbox.PayloadEnvelope{EventID: "evt-1"}, valid},
		{"no event id anywhere", outbox.PayloadEnvelope{}, valid},
		{"newer envelope", outbox.PayloadEnvelope{Version: 2, EventID: uuid.NewString()}, valid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := decodeMessage(message(t, tc.env, tc.attrs))
			assert.ErrorIs(t, err, errMalformed)
		})
	}

	_, _, err := decodeMessage(&gcppubsub.Message{Data: []byte("not json")})
	assert.ErrorIs(t, err, errMalformed)
}

func TestConsumeOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		msg        func(t *testing.T) *gcppubsub.Message
		claims     *stubClaims
		handlerErr error
		want       result
		handled    bool
		released   int
	}{
		{"handled", tableMessage, &stubClaims{}, nil, resultHandled, true, 0},
		{"duplicate", tableMessage, &stubClaims{seen: true}, nil, resultDuplicate, false, 0},
		{"claim store down", tableMessage, &stubClaims{err: errors.New("redis down")}, nil, resultFailed, false, 0},
		{"handler fails", tableMessage, &stubClaims{}, errors.New("bigquery 503"), resultFailed, true, 1},
		{"unsupported", tableMessage, &stubClaims{}, router.ErrUnsupportedEventType, resultUnsupported, true, 0},
		{"malformed", func(*testing.T) *gcppubsub.Message { return &gcppubsub.Message{Data: []byte("{")} }, &stubClaims{}, nil, resultMalformed, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &stubHandler{err: tc.handlerErr}
			c := newTestConsumer(t, handler, tc.claims, nil)

			got := c.consume(context.Background(), tc.msg(t))
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want == resultFailed, got.redeliver())
			assert.Equal(t, tc.handled, handler.calls == 1)
			assert.Len(t, tc.claims.released, tc.released)
		})
	}
}

func TestConsumeRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestConsumer(t, &stubHandler{}, &stubClaims{}, metrics.NewAnalyticsMetrics(reg))
	c.now = func() time.Time { return time.Now().Add(time.Minute) }

	c.consume(context.Background(), tableMessage(t))
	c.consume(context.Background(), &gcppubsub.Message{Data: []byte("{")})

	lags, err := testutil.GatherAndCount(reg, "analytics_event_lag_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, lags)
	series, err := testutil.GatherAndCount(reg, "analytics_messages_consumed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestRunAcksAndFlushes(t *testing.T) {
	flush := &stubFlusher{}
	sub := &stubReceiver{msgs: []*gcppubsub.Message{tableMessage(t)}}
	c, err := NewConsumer(ConsumerParams{
		Subscription: sub,
		Handler:      &stubHandler{},
		Idempotency:  &stubClaims{},
		Flusher:      flush,
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 1, flush.calls)
}

func TestRunReportsFinalFlushFailure(t *testing.T) {
	c, err := NewConsumer(ConsumerParams{
		Subscription: &stubReceiver{},
		Handler:      &stubHandler{},
		Idempotency:  &stubClaims{},
		Flusher:      &stubFlusher{err: errors.New("quota exceeded")},
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	assert.ErrorContains(t, c.Run(context.Background()), "final flush: quota exceeded")
}

func TestNewConsumerListsMissingDependencies(t *testing.T) {
	_, err := NewConsumer(ConsumerParams{Logger: testLogger()})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
}

func TestHandlerFunc(t *testing.T) {
	var got types.Envelope
	fn := HandlerFunc(func(_ context.Context, env types.Envelope) error {
		got = env
		return nil
	})
	require.NoError(t, fn.Handle(context.Background(), types.Envelope{EventID: "x"}))
	assert.Equal(t, "x", got.EventID)
}

func newTestConsumer(t *testing.T, handler Handler, claims claimer, m *metrics.AnalyticsMetrics) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerParams{
		Subscription: &stubReceiver{},
		Handler:      handler,
		Idempotency:  claims,
		Metrics:      m,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	return c
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
}

func tableMessage(t *testing.T) *gcppubsub.Message {
	return message(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"location_id":"campus"}`),
	}, map[string]string{
		"event_type":     "table_created",
		"aggregate_type": "table",
		"aggregate_id":   uuid.NewString(),
	})
}

func message(t *testing.T, env outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return &gcppubsub.Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
}

type stubHandler struct {
	err   error
	calls int
}

func (s *stubHandler) Handle(context.Context, types.Envelope) error {
	s.calls++
	return s.err
}

type stubClaims struct {
	seen     bool
	err      error
	claimed  []uuid.UUID
	released []uuid.UUID
}

func (s *stubClaims) CheckAndMarkProcessed(_ context.Context, consumer string, id uuid.UUID) (bool, error) {
	if consumer != consumerName {
		return false, errors.New("unexpected consumer " + consumer)
	}
	s.claimed = append(s.claimed, id)
	return s.seen, s.err
}

func (s *stubClaims) Delete(_ context.Context, _ string, id uuid.UUID) error {
	s.released = append(s.released, id)
	return nil
}

type stubFlusher struct {
	calls int
	err   error
}

func (s *stubFlusher) Flush(context.Context) error {
	s.calls++
	return s.err
}

// stubReceiver hands every queued message to f and returns like a drained
// subscription.
type stubReceiver struct {
	msgs []*gcppubsub.Message
}

func (s *stubReceiver) Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error {
	for _, msg := range s.msgs {
		f(ctx, msg)
	}
	return nil
}
