package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
)

func TestNewWriterValidation(t *testing.T) {
	if _, err := New(nil, Config{Table: "table_events"}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&fakeInserter{}, Config{Table: " "}); err == nil {
		t.Fatal("expected error when table missing")
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"seats": 4})
	if err != nil {
		t.Fatalf("unexpected error encoding json: %v", err)
	}
	if !nj.Valid {
		t.Fatal("expected json to be marked valid")
	}

	nj, err = EncodeJSON(nil)
	if err != nil {
		t.Fatalf("unexpected error for nil json: %v", err)
	}
	if nj.Valid {
		t.Fatal("expected nil json to be invalid")
	}

	raw := json.RawMessage(`{"zone":"Library"}`)
	nj, err = EncodeJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error encoding raw json: %v", err)
	}
	if nj.JSONVal != string(raw) {
		t.Fatalf("expected raw json passed through, got %s", nj.JSONVal)
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	if err := writer.InsertTableEvent(context.Background(), types.TableEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
	if fake.calls[1].table != "table_events" {
		t.Fatalf("expected table_events on retry, got %s", fake.calls[1].table)
	}
	if len(writer.pending) != 0 {
		t.Fatal("expected buffer to be empty after success")
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := writer.InsertTableEvent(context.Background(), types.TableEventRow{EventID: "1"})
	if err == nil {
		t.Fatal("expected permanent error to surface")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
	if len(writer.pending) != 0 {
		t.Fatal("expected failed rows to be dropped")
	}
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	unavailable := status.Error(codes.Unavailable, "try later")
	fake.responses = []error{unavailable, unavailable, unavailable, nil}

	if err := writer.InsertTableEvent(context.Background(), types.TableEventRow{EventID: "1"}); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected three attempts, got %d", len(fake.calls))
	}
}

func TestWriterBatching(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	if err := writer.InsertTableEvent(context.Background(), types.TableEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no insert before batch full, got %d", len(fake.calls))
	}
	if err := writer.InsertTableEvent(context.Background(), types.TableEventRow{EventID: "2"}); err != nil {
		t.Fatalf("unexpected error on second insert: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0].rowCount != 2 {
		t.Fatalf("expected one insert of two rows, got %+v", fake.calls)
	}
}

func TestWriterFlush(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 10
	if err := writer.InsertTableEvent(context.Background(), types.TableEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected flush to insert once, got %d", len(fake.calls))
	}
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected empty flush error: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("empty flush should not insert")
	}
}

func TestIsRetryableBigQueryError(t *testing.T) {
	if retryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
	if !retryable(&googleapi.Error{Code: http.StatusTooManyRequests}) {
		t.Fatal("429 should be retryable")
	}
	if retryable(status.Error(codes.InvalidArgument, "bad row")) {
		t.Fatal("invalid argument should not be retryable")
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	var err error
	if len(f.calls) < len(f.responses) {
		err = f.responses[len(f.calls)]
	}
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	writer, err := New(fake, Config{
		Table: "table_events",
		RetryPolicy: RetryPolicy{
			InitialBackoff: time.Millisecond,
			MaximumBackoff: 2 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	return writer, fake
}

func TestRetryableAggregates(t *testing.T) {
	transient := &googleapi.Error{Code: http.StatusServiceUnavailable}
	permanent := &googleapi.Error{Code: http.StatusBadRequest}

	if !retryable(cbigquery.MultiError{transient, status.Error(codes.Unavailable, "x")}) {
		t.Fatal("all-transient multi error should be retryable")
	}
	if retryable(cbigquery.MultiError{transient, permanent}) {
		t.Fatal("one permanent member makes the batch permanent")
	}
	if retryable(cbigquery.MultiError{}) {
		t.Fatal("empty multi error is not retryable")
	}
	put := cbigquery.PutMultiError{{RowIndex: 0, Errors: cbigquery.MultiError{transient}}}
	if !retryable(put) {
		t.Fatal("transient row errors should be retryable")
	}
}
