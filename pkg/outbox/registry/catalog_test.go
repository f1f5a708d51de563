package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/outbox/payloads"
)

func TestCatalogCoversEveryEventType(t *testing.T) {
	for _, eventType := range []enums.OutboxEventType{
		enums.EventTableCreated,
		enums.EventTableJoined,
		enums.EventTableLeft,
		enums.EventTableEnded,
		enums.EventUserRegistered,
		enums.EventUserDeleted,
	} {
		require.True(t, eventType.IsValid())
		aggregate, ok := AggregateOf(eventType)
		require.True(t, ok, "%s missing from catalog", eventType)
		assert.True(t, aggregate.IsValid())

		fresh, err := NewPayload(eventType)
		require.NoError(t, err)
		again, err := NewPayload(eventType)
		require.NoError(t, err)
		assert.NotSame(t, fresh, again, "%s shares payload instances", eventType)
	}
	assert.Len(t, EventTypes(), 6)
	assert.IsIncreasing(t, EventTypes())
}

func TestDecodePayload(t *testing.T) {
	payload, err := DecodePayload(enums.EventTableEnded, []byte(` {"location_id":"campus","end_reason":"done"} `))
	require.NoError(t, err)
	ended, ok := payload.(*payloads.TableEndedEvent)
	require.True(t, ok)
	assert.Equal(t, "campus", ended.LocationID)

	_, err = DecodePayload(enums.EventTableEnded, []byte("  null"))
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodePayload("order_created", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
