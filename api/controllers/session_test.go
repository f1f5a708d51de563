package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-backend/pkg/auth"
	"github.com/angelmondragon/tableside-backend/pkg/auth/session"
	"github.com/angelmondragon/tableside-backend/pkg/config"
)

var sessionJWT = config.JWTConfig{Secret: "secret", Issuer: "tableside", ExpirationMinutes: 10}

type fakeRotator struct {
	revoked   []string
	rotated   [][2]string
	nextID    string
	nextToken string
	err       error
}

func (f *fakeRotator) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	f.rotated = append(f.rotated, [2]string{oldAccessID, provided})
	if f.err != nil {
		return "", "", f.err
	}
	return f.nextID, f.nextToken, nil
}

func (f *fakeRotator) Revoke(_ context.Context, accessID string) error {
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, accessID)
	return nil
}

// bearer mints a token issued at issuedAt and returns it with its jti.
func bearer(t *testing.T, issuedAt time.Time) (string, string) {
	t.Helper()
	jti := session.NewAccessID()
	token, err := auth.MintAccessToken(sessionJWT, issuedAt, auth.AccessTokenPayload{
		UserID:      uuid.New(),
		DisplayName: "Alice",
		JTI:         jti,
	})
	require.NoError(t, err)
	return token, jti
}

func sessionRequest(path, token, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthLogoutRevokesSession(t *testing.T) {
	rotator := &fakeRotator{}
	token, jti := bearer(t, time.Now())

	rec := httptest.NewRecorder()
	AuthLogout(rotator, sessionJWT, nil).ServeHTTP(rec, sessionRequest("/logout", token, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{jti}, rotator.revoked)
}

func TestAuthLogoutAcceptsExpiredToken(t *testing.T) {
	rotator := &fakeRotator{}
	token, jti := bearer(t, time.Now().Add(-time.Hour))

	rec := httptest.NewRecorder()
	AuthLogout(rotator, sessionJWT, nil).ServeHTTP(rec, sessionRequest("/logout", token, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{jti}, rotator.revoked)
}

func TestAuthLogoutFailures(t *testing.T) {
	valid, _ := bearer(t, time.Now())
	cases := []struct {
		name    string
		rotator *fakeRotator
		token   string
		status  int
	}{
		{name: "missing token", rotator: &fakeRotator{}, status: http.StatusUnauthorized},
		{name: "tampered token", rotator: &fakeRotator{}, token: valid + "x", status: http.StatusUnauthorized},
		{name: "store down", rotator: &fakeRotator{err: errors.New("redis down")}, token: valid, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			AuthLogout(tc.rotator, sessionJWT, nil).ServeHTTP(rec, sessionRequest("/logout", tc.token, ""))
			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, tc.rotator.revoked)
		})
	}
}

func TestAuthRefreshRotatesTokens(t *testing.T) {
	rotator := &fakeRotator{nextID: "new-jti", nextToken: "new-refresh"}
	token, jti := bearer(t, time.Now().Add(-time.Hour))

	rec := httptest.NewRecorder()
	AuthRefresh(rotator, sessionJWT, nil).ServeHTTP(rec, sessionRequest("/refresh", token, `{"refresh_token":"old-refresh"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, [][2]string{{jti, "old-refresh"}}, rotator.rotated)

	var envelope struct {
		Data refreshResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "new-refresh", envelope.Data.RefreshToken)
	assert.Equal(t, envelope.Data.AccessToken, rec.Header().Get(tokenHeader))

	claims, err := auth.ParseAccessToken(sessionJWT, envelope.Data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new-jti", claims.ID)
	assert.Equal(t, "Alice", claims.DisplayName)
}

func TestAuthRefreshFailures(t *testing.T) {
	token, _ := bearer(t, time.Now())
	cases := []struct {
		name    string
		rotator *fakeRotator
		token   string
		body    string
		status  int
	}{
		{name: "reused refresh token", rotator: &fakeRotator{err: session.ErrInvalidRefreshToken}, token: token, body: `{"refresh_token":"old"}`, status: http.StatusUnauthorized},
		{name: "missing refresh token", rotator: &fakeRotator{}, token: token, body: `{}`, status: http.StatusBadRequest},
		{name: "missing bearer", rotator: &fakeRotator{}, body: `{"refresh_token":"old"}`, status: http.StatusUnauthorized},
		{name: "store down", rotator: &fakeRotator{err: errors.New("redis down")}, token: token, body: `{"refresh_token":"old"}`, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			AuthRefresh(tc.rotator, sessionJWT, nil).ServeHTTP(rec, sessionRequest("/refresh", tc.token, tc.body))
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Empty(t, rec.Header().Get(tokenHeader))
		})
	}
}

func TestSessionHandlersWithoutManager(t *testing.T) {
	token, _ := bearer(t, time.Now())
	rec := httptest.NewRecorder()
	AuthLogout(nil, sessionJWT, nil).ServeHTTP(rec, sessionRequest("/logout", token, ""))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
