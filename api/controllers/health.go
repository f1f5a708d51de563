package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

const (
	envHeader    = "X-Tableside-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a readiness probe. Optional dependencies are reported but never fail readiness.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed []string
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				checks[dep.Name] = "unavailable"
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": dep.Name, "error": err.Error()}), "readiness probe failed")
				}
				if !dep.Optional {
					failed = append(failed, dep.Name)
				}
				continue
			}
			checks[dep.Name] = "ok"
		}

		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"failed": failed, "checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
