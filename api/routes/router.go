package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tableside-backend/api/controllers"
	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/internal/auth"
	"github.com/angelmondragon/tableside-backend/internal/locations"
	"github.com/angelmondragon/tableside-backend/internal/rooms"
	"github.com/angelmondragon/tableside-backend/internal/tables"
	"github.com/angelmondragon/tableside-backend/internal/users"
	"github.com/angelmondragon/tableside-backend/pkg/auth/session"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

// redisStore covers the idempotency, rate limit and readiness needs of the router.
type redisStore interface {
	redis.IdempotencyStore
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	Ping(context.Context) error
}

type roomRunner interface {
	Run(ctx context.Context, userID uuid.UUID, locationID string, tableID uuid.UUID, emit rooms.Emitter) (rooms.State, error)
}

// RouterParams groups everything the HTTP surface is wired to.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           redisStore
	BigQuery        controllers.Pinger
	Sessions        sessionManager
	AuthService     auth.Service
	RegisterService auth.RegisterService
	TableService    tables.Service
	LocationService locations.Service
	UserService     users.Service
	Rooms           roomRunner
	MetricsHandler  http.Handler
	HTTPMetrics     *metrics.HTTPMetrics
}

func NewRouter(params RouterParams) (http.Handler, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis store is required")
	}
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Access(logg, params.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "database", Pinger: params.DB},
			controllers.Dependency{Name: "redis", Pinger: params.Redis},
			controllers.Dependency{Name: "bigquery", Pinger: params.BigQuery, Optional: true},
		))
	})

	metricsHandler := params.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.Idempotency(params.Redis, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, params.Redis, logg)).Post("/login", controllers.AuthLogin(params.AuthService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, params.Redis, logg)).Post("/register", controllers.AuthRegister(params.RegisterService, params.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(params.Sessions, cfg.JWT, logg))
		r.With(middleware.Auth(cfg.JWT, params.Sessions, logg)).Post("/logout", controllers.AuthLogout(params.Sessions, cfg.JWT, logg))
	})

	// The room upgrade sits outside the idempotency wrapper, which buffers responses.
	r.With(middleware.WebSocketAuth(cfg.JWT, params.Sessions, logg)).
		Get("/api/v1/tables/{locationId}/{tableId}/room", controllers.TableRoom(params.TableService, params.Rooms, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, params.Sessions, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", controllers.LocationList(params.LocationService, logg))
			r.Get("/{locationId}", controllers.LocationGet(params.LocationService, logg))
			r.Get("/{locationId}/tables", controllers.LocationTables(params.TableService, logg))
		})

		r.Route("/tables", func(r chi.Router) {
			r.Post("/", controllers.TableCreate(params.TableService, logg))
			r.Get("/status", controllers.TableStatus(params.TableService, logg))
			r.Route("/{locationId}/{tableId}", func(r chi.Router) {
				r.Get("/", controllers.TableGet(params.TableService, logg))
				r.Post("/join", controllers.TableJoin(params.TableService, logg))
				r.Post("/leave", controllers.TableLeave(params.TableService, logg))
				r.Put("/prompt", controllers.TablePrompt(params.TableService, logg))
			})
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", controllers.UserProfile(params.UserService, logg))
			r.Patch("/", controllers.UserUpdateProfile(params.UserService, logg))
			r.Delete("/", controllers.UserDelete(params.UserService, logg))
		})
	})

	return r, nil
}
