package controllers

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	pkgAuth "github.com/angelmondragon/tableside-backend/pkg/auth"
	"github.com/angelmondragon/tableside-backend/pkg/auth/session"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type sessionTokenRotator interface {
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

var errSessionManagerUnavailable = errors.New(errors.CodeInternal, "session manager unavailable")

// sessionClaims reads the bearer token, accepting expired ones, and requires
// the jti that keys the refresh session.
func sessionClaims(r *http.Request, cfg config.JWTConfig) (*pkgAuth.AccessTokenClaims, error) {
	raw := middleware.BearerToken(r)
	if raw == "" {
		return nil, errors.New(errors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(cfg, raw)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, errors.New(errors.CodeUnauthorized, "missing session id")
	}
	return claims, nil
}

// AuthLogout revokes the refresh session behind the presented access token.
func AuthLogout(manager sessionTokenRotator, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if manager == nil {
			responses.WriteError(ctx, logg, w, errSessionManagerUnavailable)
			return
		}
		claims, err := sessionClaims(r, cfg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := manager.Revoke(ctx, claims.ID); err != nil {
			responses.WriteError(ctx, logg, w, errors.Wrap(errors.CodeDependency, err, "revoke session"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AuthRefresh exchanges a refresh token for a new access and refresh pair.
// The old refresh token stops working once this succeeds.
func AuthRefresh(manager sessionTokenRotator, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if manager == nil {
			responses.WriteError(ctx, logg, w, errSessionManagerUnavailable)
			return
		}

		var body refreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		claims, err := sessionClaims(r, cfg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		accessID, refreshToken, err := manager.Rotate(ctx, claims.ID, body.RefreshToken)
		switch {
		case stderrors.Is(err, session.ErrInvalidRefreshToken):
			responses.WriteError(ctx, logg, w, errors.New(errors.CodeUnauthorized, "invalid refresh token"))
			return
		case err != nil:
			responses.WriteError(ctx, logg, w, errors.Wrap(errors.CodeDependency, err, "rotate session"))
			return
		}

		accessToken, err := pkgAuth.MintAccessToken(cfg, time.Now().UTC(), pkgAuth.AccessTokenPayload{
			UserID:      claims.UserID,
			DisplayName: claims.DisplayName,
			JTI:         accessID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, errors.Wrap(errors.CodeInternal, err, "mint jwt"))
			return
		}

		w.Header().Set(tokenHeader, accessToken)
		responses.WriteSuccess(w, refreshResponse{AccessToken: accessToken, RefreshToken: refreshToken})
	}
}
