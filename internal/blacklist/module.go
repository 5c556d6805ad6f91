package blacklist

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/config"
)

// Module provides a redis-backed Store when redis.enabled is set and an
// in-memory one otherwise.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(newStore),
	)
}

func newStore(lifecycle fx.Lifecycle, cfg *config.AppConfig, logger *zap.Logger) Store {
	if !cfg.Redis.Enabled {
		logger.Warn("redis disabled, token blacklist is process-local")
		return NewMemory()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return NewRedis(client)
}
