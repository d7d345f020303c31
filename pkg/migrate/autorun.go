package migrate

import (
	"context"
	"fmt"

	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/db"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

// MaybeRunDev applies the bundled migrations when the app is running in dev mode
// and the feature flag is enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	dialect := DialectFor(client.Dialect())
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": dialect})
	logg.Info(ctx, "running Goose migrations (dev auto-run)")

	if err := UpEmbedded(ctx, sqlDB, dialect); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}
