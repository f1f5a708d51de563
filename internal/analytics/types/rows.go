package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// TableEventRow mirrors the table_events BigQuery schema. One row per outbox event;
// columns that do not apply to an event type stay NULL.
type TableEventRow struct {
	EventID        string             `bigquery:"event_id"`
	EventType      string             `bigquery:"event_type"`
	OccurredAt     time.Time          `bigquery:"occurred_at"`
	AggregateType  string             `bigquery:"aggregate_type"`
	AggregateID    string             `bigquery:"aggregate_id"`
	TableID        *string            `bigquery:"table_id"`
	LocationID     *string            `bigquery:"location_id"`
	UserID         *string            `bigquery:"user_id"`
	Zone           *string            `bigquery:"zone"`
	Seats          *int64             `bigquery:"seats"`
	AvailableSeats *int64             `bigquery:"available_seats"`
	NotifiedCount  *int64             `bigquery:"notified_count"`
	Reason         *string            `bigquery:"reason"`
	Payload        cbigquery.NullJSON `bigquery:"payload"`
}

// TableEventSchema is the table_events schema used when the worker provisions
// the table itself. It must stay in step with TableEventRow's tags.
func TableEventSchema() cbigquery.Schema {
	required := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t, Required: true}
	}
	nullable := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		required("aggregate_type", cbigquery.StringFieldType),
		required("aggregate_id", cbigquery.StringFieldType),
		nullable("table_id", cbigquery.StringFieldType),
		nullable("location_id", cbigquery.StringFieldType),
		nullable("user_id", cbigquery.StringFieldType),
		nullable("zone", cbigquery.StringFieldType),
		nullable("seats", cbigquery.IntegerFieldType),
		nullable("available_seats", cbigquery.IntegerFieldType),
		nullable("notified_count", cbigquery.IntegerFieldType),
		nullable("reason", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}
