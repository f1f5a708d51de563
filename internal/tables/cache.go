package tables

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// StatusCache remembers whether a user currently sits at a table.
type StatusCache interface {
	Get(ctx context.Context, userID uuid.UUID) (inTable bool, ok bool)
	Set(ctx context.Context, userID uuid.UUID, inTable bool)
	Invalidate(ctx context.Context, userID uuid.UUID)
}

type statusEntry struct {
	inTable  bool
	storedAt time.Time
}

// MemoryStatusCache is a process-local StatusCache driven by an injected clock.
type MemoryStatusCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]statusEntry
}

// NewMemoryStatusCache builds a cache whose entries expire ttl after they were stored.
func NewMemoryStatusCache(ttl time.Duration, now func() time.Time) *MemoryStatusCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryStatusCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[uuid.UUID]statusEntry),
	}
}

func (c *MemoryStatusCache) Get(_ context.Context, userID uuid.UUID) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return false, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, userID)
		return false, false
	}
	return entry.inTable, true
}

func (c *MemoryStatusCache) Set(_ context.Context, userID uuid.UUID, inTable bool) {
	if userID == uuid.Nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[userID] = statusEntry{inTable: inTable, storedAt: c.now()}
	c.mu.Unlock()
}

func (c *MemoryStatusCache) Invalidate(_ context.Context, userID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

type statusStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	TableStatusKey(userID string) string
}

// RedisStatusCache shares table status between api replicas.
// Redis failures degrade to cache misses.
type RedisStatusCache struct {
	store statusStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewRedisStatusCache(store statusStore, ttl time.Duration, logg *logger.Logger) *RedisStatusCache {
	return &RedisStatusCache{store: store, ttl: ttl, logg: logg}
}

func (c *RedisStatusCache) Get(ctx context.Context, userID uuid.UUID) (bool, bool) {
	value, err := c.store.Get(ctx, c.store.TableStatusKey(userID.String()))
	if err != nil {
		if !errors.Is(err, redislib.Nil) {
			c.warn(ctx, "table status cache read failed", err)
		}
		return false, false
	}
	switch value {
	case "1":
		return true, true
	case "0":
		return false, true
	default:
		return false, false
	}
}

func (c *RedisStatusCache) Set(ctx context.Context, userID uuid.UUID, inTable bool) {
	if userID == uuid.Nil || c.ttl <= 0 {
		return
	}
	value := "0"
	if inTable {
		value = "1"
	}
	if err := c.store.Set(ctx, c.store.TableStatusKey(userID.String()), value, c.ttl); err != nil {
		c.warn(ctx, "table status cache write failed", err)
	}
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.store.Del(ctx, c.store.TableStatusKey(userID.String())); err != nil {
		c.warn(ctx, "table status cache invalidate failed", err)
	}
}

func (c *RedisStatusCache) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
}
