package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

var errAuthUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")

// signIn runs login and hands the fresh access token back in both the body
// and the token header.
func signIn(ctx context.Context, svc auth.Service, w http.ResponseWriter, status int, req auth.LoginRequest) error {
	session, err := svc.Login(ctx, req)
	if err != nil {
		return err
	}
	w.Header().Set(tokenHeader, session.AccessToken)
	responses.WriteSuccessStatus(w, status, session)
	return nil
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errAuthUnavailable)
			return
		}
		var body auth.LoginRequest
		err := validators.DecodeJSONBody(r, &body)
		if err == nil {
			err = signIn(ctx, svc, w, http.StatusOK, body)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
		}
	}
}

// AuthRegister creates the account and signs the new user straight in.
func AuthRegister(reg auth.RegisterService, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reg == nil || svc == nil {
			responses.WriteError(ctx, logg, w, errAuthUnavailable)
			return
		}
		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if _, err := reg.Register(ctx, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := signIn(ctx, svc, w, http.StatusCreated, auth.LoginRequest{Email: body.Email, Password: body.Password}); err != nil {
			responses.WriteError(ctx, logg, w, err)
		}
	}
}
