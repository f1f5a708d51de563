// Package session keeps refresh sessions in Redis, one per access token id (jti).
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tableside-backend/pkg/config"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errAccessIDRequired    = errors.New("access id is required")
)

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is the read side used by the auth middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Manager issues and rotates refresh tokens. Only a SHA-256 digest of each token
// is stored, keyed by the jti of the access token it was issued with.
type Manager struct {
	store store
	ttl   time.Duration
}

// NewManager requires the refresh TTL to outlive the access token TTL.
func NewManager(s store, cfg config.JWTConfig) (*Manager, error) {
	if s == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case ttl <= 0:
		return nil, errors.New("refresh token ttl must be positive")
	case ttl <= access:
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, access)
	}
	return &Manager{store: s, ttl: ttl}, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a refresh session for accessID and returns its token.
func (m *Manager) Generate(ctx context.Context, accessID string) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errAccessIDRequired
	}
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), digest(token), m.ttl); err != nil {
		return "", fmt.Errorf("store refresh session: %w", err)
	}
	return token, nil
}

// Rotate trades a valid refresh token for a new jti and token. The old session
// is removed before the new one is written, so a token is never accepted twice.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, refreshToken string) (string, string, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(refreshToken) == "" {
		return "", "", ErrInvalidRefreshToken
	}
	oldKey := m.store.AccessSessionKey(oldAccessID)
	stored, err := m.store.Get(ctx, oldKey)
	if errors.Is(err, goredis.Nil) {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", fmt.Errorf("load refresh session: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(digest(refreshToken))) != 1 {
		return "", "", ErrInvalidRefreshToken
	}
	if err := m.store.Del(ctx, oldKey); err != nil {
		return "", "", fmt.Errorf("drop refresh session: %w", err)
	}

	accessID := NewAccessID()
	token, err := m.Generate(ctx, accessID)
	if err != nil {
		return "", "", err
	}
	return accessID, token, nil
}

// Revoke ends the session tied to accessID. Access tokens carrying that jti stop
// authenticating immediately.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errAccessIDRequired
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errAccessIDRequired
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
