package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup in dev when the
// auto-migrate flag is on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, client.Driver(), nil)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})
	results, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		logg.Debug(logg.WithFields(ctx, map[string]any{
			"version":     res.Version,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "dev migrations complete")
	return nil
}
