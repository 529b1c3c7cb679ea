package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-payouts/pkg/config"
	"github.com/angelmondragon/marketplace-payouts/pkg/db"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup in dev when
// MARKETPLACE_AUTO_MIGRATE is set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	migrator, err := New(sqlDB, Embedded())
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	results, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "applied", len(results))
	logg.Info(ctx, "schema migrations applied")
	return nil
}
