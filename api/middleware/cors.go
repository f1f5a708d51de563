package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/tableside-backend/pkg/config"
)

// CORS applies the configured origin policy. Refreshed access tokens are
// returned in X-Tableside-Token, so browsers must be allowed to read it.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", requestIDHeader},
		ExposedHeaders:   []string{"X-Tableside-Token", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           cfg.MaxAge,
	})
}
