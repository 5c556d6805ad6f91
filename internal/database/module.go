package database

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/betterbeing/session-auth/internal/config"
)

// Module provides the postgres connection backing the user and session
// repositories.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, logger *zap.Logger) (*Manager, error) {
					return NewManager(&config.Database, logger)
				},
			),
			func(m *Manager) *gorm.DB {
				return m.DB()
			},
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(lifecycle fx.Lifecycle, manager *Manager) {
	lifecycle.Append(fx.Hook{
		OnStart: manager.Ping,
		OnStop: func(ctx context.Context) error {
			manager.logger.Info("closing database pool", manager.poolFields()...)
			return manager.Close()
		},
	})
}

// Ping fails startup early when postgres is unreachable.
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database %s@%s unreachable: %w", m.config.Name, m.config.Host, err)
	}

	m.logger.Info("database connected",
		zap.String("host", m.config.Host),
		zap.String("database", m.config.Name),
		zap.Int("max_open_conns", m.config.MaxOpenConns))
	return nil
}

func (m *Manager) poolFields() []zap.Field {
	sqlDB, err := m.db.DB()
	if err != nil {
		return nil
	}
	stats := sqlDB.Stats()
	return []zap.Field{
		zap.Int("open", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int64("wait_count", stats.WaitCount),
	}
}
