package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tableside-backend/api/controllers"
	"github.com/angelmondragon/tableside-backend/api/routes"
	"github.com/angelmondragon/tableside-backend/internal/auth"
	"github.com/angelmondragon/tableside-backend/internal/bootstrap"
	"github.com/angelmondragon/tableside-backend/internal/locations"
	"github.com/angelmondragon/tableside-backend/internal/rooms"
	"github.com/angelmondragon/tableside-backend/internal/tables"
	"github.com/angelmondragon/tableside-backend/internal/users"
	"github.com/angelmondragon/tableside-backend/pkg/auth/session"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	bootstrap.Run("api", run)
}

func run(ctx context.Context, p *bootstrap.Process) error {
	cfg, logg := p.Config, p.Logger

	dbClient, err := p.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := p.Redis(ctx)
	if err != nil {
		return err
	}

	// BigQuery only feeds the readiness report here; the api runs without it.
	var bigqueryPinger controllers.Pinger
	if bq, err := p.BigQuery(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "bigquery unavailable, readiness will skip it")
	} else {
		bigqueryPinger = bq
	}

	sessions, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	feed := tables.NewRedisFeed(redisClient, logg)
	userRepo := users.NewRepository(dbClient.DB())

	tableSvc, err := tables.NewService(tables.ServiceParams{
		DB:        dbClient,
		Cache:     tables.NewRedisStatusCache(redisClient, cfg.Tables.StatusCacheTTL, logg),
		Outbox:    emitter,
		Publisher: feed,
		Metrics:   metrics.NewTableMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
		Config:    cfg.Tables,
	})
	if err != nil {
		return fmt.Errorf("table service: %w", err)
	}
	userSvc, err := users.NewService(users.ServiceParams{
		Repo:     userRepo,
		TxRunner: dbClient,
		Outbox:   emitter,
		Tables:   tableSvc,
		Sessions: sessions,
		Logger:   logg,
	})
	if err != nil {
		return fmt.Errorf("user service: %w", err)
	}
	locationSvc, err := locations.NewService(locations.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return fmt.Errorf("location service: %w", err)
	}
	if cfg.FeatureFlags.SeedLocations {
		if _, err := locationSvc.Seed(ctx); err != nil {
			return fmt.Errorf("seed locations: %w", err)
		}
	}
	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	registerSvc, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		Outbox:         emitter,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("register service: %w", err)
	}
	roomManager, err := rooms.NewManager(rooms.ManagerParams{
		Feed:    feed,
		Tables:  tableSvc,
		Roster:  userSvc,
		Metrics: metrics.NewRoomMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
		Config:  cfg.Tables,
	})
	if err != nil {
		return fmt.Errorf("room manager: %w", err)
	}

	handler, err := routes.NewRouter(routes.RouterParams{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		BigQuery:        bigqueryPinger,
		Sessions:        sessions,
		AuthService:     authSvc,
		RegisterService: registerSvc,
		TableService:    tableSvc,
		LocationService: locationSvc,
		UserService:     userSvc,
		Rooms:           roomManager,
		HTTPMetrics:     metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	addr := ":" + firstNonEmpty(os.Getenv("PORT"), cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":     addr,
		"instance": firstNonEmpty(os.Getenv("DYNO"), "local"),
	})
	return serve(ctx, p, &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// serve runs server until it fails or ctx is cancelled, then drains open
// requests for up to shutdownTimeout.
func serve(ctx context.Context, p *bootstrap.Process, server *http.Server) error {
	p.Logger.Info(ctx, "starting api server")
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
