package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

const tokenHeader = "X-Tableside-Token"

// requestUserID returns the authenticated user. An unparsable id maps to uuid.Nil so
// the services report their own unauthenticated error.
func requestUserID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	id := requestUserID(r)
	if id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return id, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

func pathString(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}
