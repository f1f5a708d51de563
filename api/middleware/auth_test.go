package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-backend/pkg/auth"
	"github.com/angelmondragon/tableside-backend/pkg/auth/session"
	"github.com/angelmondragon/tableside-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "tableside", ExpirationMinutes: 60}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func mintTestToken(t *testing.T, userID uuid.UUID, name string) (string, string) {
	t.Helper()
	jti := session.NewAccessID()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{UserID: userID, DisplayName: name, JTI: jti})
	require.NoError(t, err)
	return token, jti
}

func TestAuthRejections(t *testing.T) {
	token, _ := mintTestToken(t, uuid.New(), "Bob")
	cases := []struct {
		name     string
		header   string
		query    string
		verifier stubSessionVerifier
		status   int
	}{
		{name: "missing token", verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer invalid", verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized},
		{name: "revoked session", header: "Bearer " + token, verifier: stubSessionVerifier{}, status: http.StatusUnauthorized},
		{name: "session store down", header: "Bearer " + token, verifier: stubSessionVerifier{err: errors.New("redis down")}, status: http.StatusServiceUnavailable},
		{name: "query token on plain route", query: token, verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/"
			if tc.query != "" {
				target += "?" + AccessTokenQueryParam + "=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			Auth(testJWT, tc.verifier, nil)(okHandler()).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestAuthSeedsContext(t *testing.T) {
	userID := uuid.New()
	token, jti := mintTestToken(t, userID, "Alice")

	var user, name, sessionID string
	h := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserIDFromContext(r.Context())
		name = DisplayNameFromContext(r.Context())
		sessionID = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String(), user)
	assert.Equal(t, "Alice", name)
	assert.Equal(t, jti, sessionID)
}

func TestWebSocketAuthAcceptsQueryToken(t *testing.T) {
	userID := uuid.New()
	token, _ := mintTestToken(t, userID, "Bob")

	var user string
	h := WebSocketAuth(testJWT, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String(), user)
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"bearer   abc ": "abc",
		"Bearer xyz":    "xyz",
		"raw-token":     "raw-token",
		"":              "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		assert.Equal(t, want, BearerToken(req), header)
	}
}
