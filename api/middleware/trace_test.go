package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
)

func TestRequestIDKeepsUsableInboundValue(t *testing.T) {
	cases := map[string]bool{
		"req-123":                            true,
		"":                                   false,
		"has space":                          false,
		strings.Repeat("a", 129):             false,
		"café":                               false,
		strings.Repeat("b", maxRequestIDLen): true,
	}
	for id, keep := range cases {
		h := RequestID(nil)(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, id)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		require.NotEmpty(t, got)
		if keep {
			assert.Equal(t, id, got)
		} else {
			assert.NotEqual(t, id, got)
		}
	}
}

func TestAccessLogsMatchedRouteAndCounts(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	reg := prometheus.NewRegistry()

	r := chi.NewRouter()
	r.Use(RequestID(logg), Access(logg, metrics.NewHTTPMetrics(reg)))
	r.Get("/tables/{tableId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/abc", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http.request", entry["message"])
	assert.Equal(t, "/tables/{tableId}", entry["route"])
	assert.Equal(t, "/tables/abc", entry["path"])
	assert.EqualValues(t, http.StatusAccepted, entry["status"])
	assert.EqualValues(t, 2, entry["bytes"])
	assert.NotEmpty(t, entry["request_id"])

	expected := `
# HELP http_requests_total HTTP requests by method, route and status code.
# TYPE http_requests_total counter
http_requests_total{code="202",method="GET",route="/tables/{tableId}"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "http_requests_total"))
}

func TestAccessRecoversPanics(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	h := Access(logg, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code"`)
	assert.Contains(t, buf.String(), `"http.panic"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestAccessRepanicsOnAbort(t *testing.T) {
	h := Access(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
