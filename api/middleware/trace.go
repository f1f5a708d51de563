package middleware

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

// RequestID echoes a caller supplied X-Request-Id when it is printable ASCII
// and short enough, otherwise it mints a fresh one.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !usableRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(logg.WithRequestID(r.Context(), id)))
		})
	}
}

func usableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// Access logs one line per request and feeds the HTTP metrics. Panics below it
// are turned into a 500 so the line and the metric still get written.
func Access(logg *logger.Logger, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tw := &trackingWriter{ResponseWriter: w}
			ctx := r.Context()

			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					err := fmt.Errorf("panic: %v", rec)
					if tw.status == 0 {
						responses.WriteError(ctx, nil, tw, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
					}
					logg.Error(logg.WithField(ctx, "panic", fmt.Sprint(rec)), "http.panic", err)
				}

				status := tw.code()
				route := matchedRoute(r)
				took := time.Since(start)
				m.Observe(r.Method, route, status, took)

				lctx := logg.WithFields(ctx, map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"route":       route,
					"status":      status,
					"bytes":       tw.written,
					"duration_ms": took.Milliseconds(),
				})
				if status >= http.StatusInternalServerError {
					logg.Warn(lctx, "http.request")
					return
				}
				logg.Info(lctx, "http.request")
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

// matchedRoute is only populated once chi has matched the request.
func matchedRoute(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

type trackingWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *trackingWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *trackingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Hijack lets the room websocket upgrade pass through.
func (w *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
