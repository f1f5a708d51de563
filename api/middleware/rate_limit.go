package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// maxRateLimitBody caps how much of a credential payload is buffered to find the email.
const maxRateLimitBody = 64 << 10

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// AuthRateLimitPolicy throttles one auth endpoint by client address and by account email.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

// counter is one throttling dimension of a policy.
type counter struct {
	scope string
	limit int
	key   func(r *http.Request, body []byte) string
}

func (p AuthRateLimitPolicy) counters() []counter {
	var out []counter
	if p.ipLimit > 0 {
		out = append(out, counter{scope: "ip", limit: p.ipLimit, key: func(r *http.Request, _ []byte) string {
			return clientIP(r)
		}})
	}
	if p.emailLimit > 0 {
		out = append(out, counter{scope: "email", limit: p.emailLimit, key: func(_ *http.Request, body []byte) string {
			email := strings.ToLower(strings.TrimSpace(emailFromBody(body)))
			if email == "" {
				return ""
			}
			sum := sha256.Sum256([]byte(email))
			return hex.EncodeToString(sum[:])
		}})
	}
	return out
}

func (p AuthRateLimitPolicy) redisKey(scope, value string) string {
	return "rl:" + scope + ":" + p.name + ":" + value
}

// AuthRateLimit rejects requests with 429 once any counter of the policy exceeds its
// limit inside the window. Counters live in Redis so every API replica shares them.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	counters := policy.counters()
	return func(next http.Handler) http.Handler {
		if store == nil || policy.window <= 0 || len(counters) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if policy.emailLimit > 0 && r.Body != nil {
				buf, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				body = buf
				r.Body = io.NopCloser(bytes.NewReader(buf))
			}

			for _, c := range counters {
				value := c.key(r, body)
				if value == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, policy.redisKey(c.scope, value), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if count > int64(c.limit) {
					policy.reject(ctx, logg, w, c, value, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p AuthRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, c counter, value string, count int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":   p.name,
			"scope":    c.scope,
			"subject":  value,
			"attempts": count,
			"limit":    c.limit,
		}), "auth rate limit exceeded")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return payload.Email
}
