package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-backend/pkg/config"
)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	val, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return val, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(t *testing.T) (*Manager, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	manager, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	require.NoError(t, err)
	return manager, store
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	manager, store := newTestManager(t)

	token, err := manager.Generate(context.Background(), "access-1")
	require.NoError(t, err)
	stored := store.data["sess:access-1"]
	assert.NotEqual(t, token, stored)
	assert.Equal(t, digest(token), stored)
}

func TestRotate(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	token, err := manager.Generate(ctx, "access-1")
	require.NoError(t, err)

	_, _, err = manager.Rotate(ctx, "access-1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	newAccessID, newToken, err := manager.Rotate(ctx, "access-1", token)
	require.NoError(t, err)
	assert.NotContains(t, store.data, "sess:access-1")
	assert.Equal(t, digest(newToken), store.data["sess:"+newAccessID])

	_, _, err = manager.Rotate(ctx, "access-1", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "a rotated token must not be accepted again")
}

func TestRotateSurfacesStoreErrors(t *testing.T) {
	manager, store := newTestManager(t)
	store.getErr = errors.New("redis down")

	_, _, err := manager.Rotate(context.Background(), "access-1", "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestHasSessionAndRevoke(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	_, err := manager.Generate(ctx, "access-1")
	require.NoError(t, err)

	ok, err := manager.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, manager.Revoke(ctx, "access-1"))
	ok, err = manager.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = manager.HasSession(ctx, " ")
	assert.Error(t, err)
}

func TestNewManagerRejectsShortRefreshTTL(t *testing.T) {
	_, err := NewManager(newMemoryStore(), config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	assert.Error(t, err)
	_, err = NewManager(nil, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	assert.Error(t, err)
}
