package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

func TestWriteSuccessStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"1"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteSuccess(rec, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null}`, rec.Body.String())
}

type reasonDetails struct {
	Reason string `json:"reason"`
}

func (reasonDetails) PublicDetails() {}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    pkgerrors.Code
		message string
		details any
	}{
		{
			name:    "validation echoes message and details",
			err:     pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "seats"}),
			status:  http.StatusBadRequest,
			code:    pkgerrors.CodeValidation,
			message: "bad input",
			details: map[string]any{"field": "seats"},
		},
		{
			name:    "not found hides plain details",
			err:     pkgerrors.New(pkgerrors.CodeNotFound, "missing").WithDetails(map[string]string{"sql": "select"}),
			status:  http.StatusNotFound,
			code:    pkgerrors.CodeNotFound,
			message: "missing",
		},
		{
			name:    "public details always shown",
			err:     pkgerrors.New(pkgerrors.CodeNotFound, "table not found").WithDetails(reasonDetails{Reason: "TABLE_NOT_FOUND"}),
			status:  http.StatusNotFound,
			code:    pkgerrors.CodeNotFound,
			message: "table not found",
			details: map[string]any{"reason": "TABLE_NOT_FOUND"},
		},
		{
			name:    "wrapped typed error keeps its code",
			err:     fmt.Errorf("join: %w", pkgerrors.New(pkgerrors.CodeConflict, "already seated")),
			status:  http.StatusConflict,
			code:    pkgerrors.CodeConflict,
			message: "already seated",
		},
		{
			name:    "untyped error becomes internal",
			err:     errors.New("pq: connection refused"),
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: "internal server error",
		},
		{
			name:    "nil error becomes internal",
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: "internal server error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			var body Failure
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, string(tc.code), body.Error.Code)
			assert.Equal(t, tc.message, body.Error.Message)
			assert.Equal(t, tc.details, body.Error.Details)
		})
	}
}
