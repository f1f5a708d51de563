package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations at boot when running in dev
// with TABLESIDE_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	fsys, err := Source("")
	if err != nil {
		return err
	}
	m, err := New(pool, fsys, logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "running dev auto-migrations")
	if err := m.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "dev auto-migrations completed")
	return nil
}
