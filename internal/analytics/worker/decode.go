package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/internal/analytics/types"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/registry"
)

// errMalformed marks messages that will fail the same way on every delivery.
var errMalformed = errors.New("malformed analytics message")

type attributes map[string]string

func (a attributes) get(key string) string {
	return strings.TrimSpace(a[key])
}

// decodeMessage joins the stored outbox envelope in the message body with the
// routing attributes the outbox publisher sets. Body fields win; attributes
// fill the gaps.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, uuid.UUID, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("%w: body: %v", errMalformed, err)
	}
	if stored.Version > registry.CurrentVersion {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("%w: envelope version %d", errMalformed, stored.Version)
	}
	attrs := attributes(msg.Attributes)

	eventType, err := enums.ParseOutboxEventType(attrs.get("event_type"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attrs.get("aggregate_type"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	aggregateID := attrs.get("aggregate_id")
	if aggregateID == "" {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("%w: aggregate_id missing", errMalformed)
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = attrs.get("event_id")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("%w: event_id %q", errMalformed, rawID)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		// stays zero when the attribute is missing or unparsable
		occurredAt, _ = time.Parse(time.RFC3339Nano, attrs.get("occurred_at"))
	}

	return types.Envelope{
		EventID:       eventID.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, eventID, nil
}
