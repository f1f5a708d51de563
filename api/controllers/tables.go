package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/tables"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

type createTableRequest struct {
	LocationID  string         `json:"location_id"`
	Title       string         `json:"title" validate:"required,notblank"`
	Description string         `json:"description"`
	Seats       int            `json:"seats"`
	Zone        string         `json:"zone"`
	Position    types.Position `json:"position"`
}

type leaveTableRequest struct {
	Title        string `json:"title"`
	LocationName string `json:"location_name"`
	IsCreator    bool   `json:"is_creator"`
	Reason       string `json:"reason"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type tableStatusResponse struct {
	InTable bool `json:"in_table"`
}

// TableCreate opens a table with the caller as creator and first participant.
func TableCreate(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "table service unavailable"))
			return
		}

		var body createTableRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		table, err := svc.Create(r.Context(), tables.CreateTableInput{
			UserID:      requestUserID(r),
			DisplayName: middleware.DisplayNameFromContext(r.Context()),
			LocationID:  body.LocationID,
			Title:       body.Title,
			Description: body.Description,
			Seats:       body.Seats,
			Zone:        body.Zone,
			Position:    body.Position,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, table)
	}
}

// TableStatus reports whether the caller currently sits at a table. force=true skips the cache.
func TableStatus(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "table service unavailable"))
			return
		}

		force := false
		if raw := r.URL.Query().Get("force"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "force must be a boolean").
					WithDetails(map[string]any{"field": "force"}))
				return
			}
			force = parsed
		}

		inTable, err := svc.CheckUserTableStatus(r.Context(), requestUserID(r), force)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tableStatusResponse{InTable: inTable})
	}
}

func TableGet(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return withTableRef(svc, logg, func(ctx context.Context, w http.ResponseWriter, r *http.Request, locationID string, tableID uuid.UUID) error {
		table, err := svc.Get(ctx, locationID, tableID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, table)
		return nil
	})
}

func TableJoin(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return withTableRef(svc, logg, func(ctx context.Context, w http.ResponseWriter, r *http.Request, locationID string, tableID uuid.UUID) error {
		table, err := svc.Join(ctx, tables.JoinInput{
			UserID:      requestUserID(r),
			DisplayName: middleware.DisplayNameFromContext(ctx),
			LocationID:  locationID,
			TableID:     tableID,
		})
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, table)
		return nil
	})
}

// TableLeave leaves a table. For the creator this ends it for everyone.
func TableLeave(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return withTableRef(svc, logg, func(ctx context.Context, w http.ResponseWriter, r *http.Request, locationID string, tableID uuid.UUID) error {
		var body leaveTableRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		result, err := svc.Leave(ctx, tables.LeaveInput{
			UserID:       requestUserID(r),
			LocationID:   locationID,
			TableID:      tableID,
			Title:        body.Title,
			LocationName: body.LocationName,
			IsCreator:    body.IsCreator,
			Reason:       validators.SanitizeString(body.Reason, 200),
		})
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, result)
		return nil
	})
}

func TablePrompt(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return withTableRef(svc, logg, func(ctx context.Context, w http.ResponseWriter, r *http.Request, locationID string, tableID uuid.UUID) error {
		var body promptRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		table, err := svc.UpdateConversationPrompt(ctx, tables.PromptInput{
			UserID:     requestUserID(r),
			LocationID: locationID,
			TableID:    tableID,
			Prompt:     body.Prompt,
		})
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, table)
		return nil
	})
}

// LocationTables lists the active tables at a location, newest first.
func LocationTables(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "table service unavailable"))
			return
		}
		list, err := svc.ListActive(r.Context(), pathString(r, "locationId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []tables.TableDTO{}
		}
		responses.WriteSuccess(w, list)
	}
}

type tableRefHandler func(ctx context.Context, w http.ResponseWriter, r *http.Request, locationID string, tableID uuid.UUID) error

func withTableRef(svc tables.Service, logg *logger.Logger, fn tableRefHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "table service unavailable"))
			return
		}
		tableID, err := pathUUID(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		locationID := pathString(r, "locationId")
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithTable(ctx, locationID, tableID.String())
		}
		if err := fn(ctx, w, r.WithContext(ctx), locationID, tableID); err != nil {
			responses.WriteError(ctx, logg, w, err)
		}
	}
}
