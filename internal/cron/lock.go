package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 55 * time.Second

// Lock keeps a single cron worker active across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock is a lease stamped with a per-acquire token. The TTL bounds a
// crashed holder and release is a compare-and-delete, so a worker whose lease
// already expired cannot drop its successor's.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	held  string
}

func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lease store is required")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	stamp := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, stamp, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.held = stamp
	}
	return won, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	stamp := l.held
	if stamp == "" {
		return nil
	}
	l.held = ""
	if _, err := l.store.CompareAndDelete(ctx, l.key, stamp); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
