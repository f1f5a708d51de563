package controllers

import (
	"net/http"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/internal/locations"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

func LocationList(svc locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "location service unavailable"))
			return
		}
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []locations.LocationDTO{}
		}
		responses.WriteSuccess(w, list)
	}
}

func LocationGet(svc locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "location service unavailable"))
			return
		}
		loc, err := svc.Get(r.Context(), pathString(r, "locationId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loc)
	}
}
