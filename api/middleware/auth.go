package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/tableside-backend/api/responses"
	pkgAuth "github.com/angelmondragon/tableside-backend/pkg/auth"
	"github.com/angelmondragon/tableside-backend/pkg/auth/session"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// AccessTokenQueryParam carries the token for websocket upgrades, where browsers cannot set headers.
const AccessTokenQueryParam = "access_token"

type tokenSource func(*http.Request) string

func fromQuery(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get(AccessTokenQueryParam))
}

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticateWith(cfg, verifier, logg, BearerToken)
}

// WebSocketAuth is Auth that also reads the access_token query parameter.
func WebSocketAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticateWith(cfg, verifier, logg, fromQuery)
}

func authenticateWith(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger, source tokenSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r.Context(), cfg, verifier, source(r))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithSessionID(WithDisplayName(WithUserID(r.Context(), claims.UserID.String()), claims.DisplayName), claims.ID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate accepts a token only while its refresh session is still live,
// so logout takes effect before the access token expires.
func authenticate(ctx context.Context, cfg config.JWTConfig, verifier session.AccessSessionChecker, token string) (*pkgAuth.AccessTokenClaims, error) {
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if verifier == nil {
		return claims, nil
	}
	live, err := verifier.HasSession(ctx, claims.ID)
	switch {
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
	case !live:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
	}
	return claims, nil
}

// BearerToken extracts the token from the Authorization header, with or without the Bearer prefix.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return header
}
