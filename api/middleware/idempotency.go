package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/tableside-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 30 * time.Second
)

type idempotencyRule struct {
	method string
	match  func(pattern string) bool
	ttl    time.Duration
	// optional rules replay when a key is sent but do not demand one
	optional bool
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, match: exactly("/api/v1/auth/register"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, match: exactly("/api/v1/tables"), ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, match: tableAction("/join"), ttl: criticalIdempotencyTTL, optional: true},
	{method: http.MethodPost, match: tableAction("/leave"), ttl: criticalIdempotencyTTL, optional: true},
	{method: http.MethodPut, match: tableAction("/prompt"), ttl: defaultIdempotencyTTL, optional: true},
}

type recordState string

const (
	statePending  recordState = "pending"
	stateComplete recordState = "complete"
)

type idempotencyRecord struct {
	State       recordState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        string      `json:"body,omitempty"`
}

// Idempotency replays the first response recorded for an (user, route, key)
// triple. A key is reserved while its first request runs, so concurrent retries
// get a conflict instead of a second execution. 5xx responses are not recorded.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				if rule.optional {
					next.ServeHTTP(w, r)
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(ctx, store, logg, w, key, hash)
				return
			}

			capture := &responseCapture{trackingWriter: trackingWriter{ResponseWriter: w}}
			next.ServeHTTP(capture, r)

			if capture.code() >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			record := idempotencyRecord{
				State:       stateComplete,
				RequestHash: hash,
				Status:      capture.code(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			}
			if err := save(ctx, store, key, record, rule.ttl); err != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	pending, err := json.Marshal(idempotencyRecord{State: statePending, RequestHash: hash})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(pending), inFlightTTL)
}

func save(ctx context.Context, store pkgredis.IdempotencyStore, key string, record idempotencyRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload), ttl)
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, hash string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the reservation expired between SETNX and GET
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}

	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != stateComplete:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this key is still in progress"))
	default:
		body, err := base64.StdEncoding.DecodeString(record.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency body"))
			return
		}
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(body)
	}
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// routePattern prefers chi's pattern. Inside a mounted group the pattern is
// still "/prefix/*" when middleware runs, so the raw path is used instead.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	if path := strings.TrimSuffix(r.URL.Path, "/"); path != "" {
		return path
	}
	return r.URL.Path
}

func matchRule(method, pattern string) (idempotencyRule, bool) {
	if pattern == "" {
		return idempotencyRule{}, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.match(pattern) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

func exactly(path string) func(string) bool {
	return func(pattern string) bool { return pattern == path }
}

// tableAction matches /api/v1/tables/{locationId}/{tableId}<suffix> by pattern or by path.
func tableAction(suffix string) func(string) bool {
	return func(pattern string) bool {
		rest, ok := strings.CutPrefix(pattern, "/api/v1/tables/")
		if !ok {
			return false
		}
		rest, ok = strings.CutSuffix(rest, suffix)
		return ok && strings.Count(rest, "/") == 1
	}
}

// responseCapture keeps a copy of the body for the idempotency record.
type responseCapture struct {
	trackingWriter
	body bytes.Buffer
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.trackingWriter.Write(b)
}
