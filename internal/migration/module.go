package migration

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/config"
)

// Module reconciles the schema with the migrations on disk at startup when
// database.auto_migrate is set. A database ahead of the binary is rolled
// back to the newest known version.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, logger *zap.Logger) (*Migrator, error) {
					return NewMigrator(&config.Database, logger.Named("migrate"))
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	config *config.AppConfig,
	migrator *Migrator,
	logger *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !config.Database.AutoMigrate {
				logger.Info("schema migration on startup disabled")
				return nil
			}
			return reconcile(ctx, migrator, logger)
		},
		OnStop: func(ctx context.Context) error {
			return migrator.Close()
		},
	})
}

func reconcile(ctx context.Context, migrator *Migrator, logger *zap.Logger) error {
	current, err := migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	latest := migrator.Latest()

	logger.Info("auth schema version",
		zap.Int64("current", current),
		zap.Int64("latest", latest))

	switch {
	case current > latest:
		return migrator.DownTo(ctx, latest)
	case current < latest:
		return migrator.Up(ctx)
	default:
		return nil
	}
}
