package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-backend/internal/auth"
	"github.com/angelmondragon/tableside-backend/internal/users"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

type stubRegisterService struct {
	err error
}

func (s stubRegisterService) Register(_ context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &users.UserDTO{ID: uuid.New(), Email: req.Email, DisplayName: req.DisplayName}, nil
}

type stubAuthService struct {
	resp *auth.LoginResponse
	err  error
	seen *auth.LoginRequest
}

func (s stubAuthService) Login(_ context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	if s.seen != nil {
		*s.seen = req
	}
	return s.resp, s.err
}

const registerBody = `{"email":"alice@example.com","password":"Secret123!","display_name":"Alice"}`

func postJSON(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signedIn() *auth.LoginResponse {
	return &auth.LoginResponse{
		AccessToken:  "access",
		RefreshToken: "refresh",
		User:         &users.UserDTO{ID: uuid.New(), Email: "alice@example.com", DisplayName: "Alice"},
	}
}

func TestAuthRegisterSignsIn(t *testing.T) {
	var seen auth.LoginRequest
	rec := postJSON(AuthRegister(stubRegisterService{}, stubAuthService{resp: signedIn(), seen: &seen}, nil), registerBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "access", rec.Header().Get(tokenHeader))
	assert.Equal(t, auth.LoginRequest{Email: "alice@example.com", Password: "Secret123!"}, seen)

	var body struct {
		Data struct {
			AccessToken string         `json:"access_token"`
			User        *users.UserDTO `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "access", body.Data.AccessToken)
	require.NotNil(t, body.Data.User)
	assert.Equal(t, "Alice", body.Data.User.DisplayName)
}

func TestCredentialEndpointsMapErrors(t *testing.T) {
	conflict := pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	denied := pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	login := `{"email":"alice@example.com","password":"wrong"}`

	cases := []struct {
		name    string
		handler http.Handler
		body    string
		status  int
	}{
		{"register duplicate", AuthRegister(stubRegisterService{err: conflict}, stubAuthService{}, nil), registerBody, http.StatusConflict},
		{"register then login fails", AuthRegister(stubRegisterService{}, stubAuthService{err: denied}, nil), registerBody, http.StatusUnauthorized},
		{"register unwired", AuthRegister(nil, stubAuthService{}, nil), registerBody, http.StatusInternalServerError},
		{"login denied", AuthLogin(stubAuthService{err: denied}, nil), login, http.StatusUnauthorized},
		{"login malformed", AuthLogin(stubAuthService{resp: signedIn()}, nil), `{"email":`, http.StatusBadRequest},
		{"login unwired", AuthLogin(nil, nil), login, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(tc.handler, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, rec.Header().Get(tokenHeader))
		})
	}
}

func TestAuthRegisterValidatesBody(t *testing.T) {
	rec := postJSON(AuthRegister(stubRegisterService{}, stubAuthService{}, nil), `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body.Error.Details, "display_name")
}

func TestAuthLoginSetsTokenHeader(t *testing.T) {
	rec := postJSON(AuthLogin(stubAuthService{resp: signedIn()}, nil), `{"email":"alice@example.com","password":"Secret123!"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access", rec.Header().Get(tokenHeader))
}
