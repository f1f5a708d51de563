// Package idempotency deduplicates at-least-once event deliveries per consumer.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

// markerStore is satisfied by *redis.Client.
type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager records processed event ids as Redis markers under
// ts:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store markerStore
	ttl   time.Duration
}

// NewManager keeps markers for ttl; zero keeps them forever.
func NewManager(store markerStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed claims eventID for consumer. It reports true when an
// earlier delivery already claimed it.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.Key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete drops the claim so a failed delivery can be processed again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.Key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) Key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", ErrConsumerRequired
	}
	if eventID == uuid.Nil {
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
