package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateTable OutboxAggregateType = "table"
	AggregateUser  OutboxAggregateType = "user"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateTable, AggregateUser}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventTableCreated   OutboxEventType = "table_created"
	EventTableJoined    OutboxEventType = "table_joined"
	EventTableLeft      OutboxEventType = "table_left"
	EventTableEnded     OutboxEventType = "table_ended"
	EventUserRegistered OutboxEventType = "user_registered"
	EventUserDeleted    OutboxEventType = "user_deleted"
)

var eventTypes = set[OutboxEventType]{
	EventTableCreated,
	EventTableJoined,
	EventTableLeft,
	EventTableEnded,
	EventUserRegistered,
	EventUserDeleted,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}

// OutboxDLQErrorReason says why a row was moved to outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = set[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
