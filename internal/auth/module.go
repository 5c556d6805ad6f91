package auth

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/betterbeing/session-auth/internal/config"
)

// NewModule returns the auth module options. Revoker and Mailer come from
// the blacklist and mailer modules.
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(db *gorm.DB) Repository {
					return NewRepository(db)
				},
			),
			// Fails startup with a *SigningError on a bad secret
			fx.Annotate(
				func(config *config.AppConfig) (*TokenIssuer, error) {
					return NewTokenIssuer(&config.Auth)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, issuer *TokenIssuer, repo Repository, log *zap.Logger) (IdentityProvider, error) {
					return NewIdentityProvider(&config.Provider, issuer, repo, log)
				},
			),
			NewStats,
			fx.Annotate(
				func(
					config *config.AppConfig,
					log *zap.Logger,
					repo Repository,
					issuer *TokenIssuer,
					provider IdentityProvider,
					revoker Revoker,
					mailer Mailer,
					stats *Stats,
				) (*Service, error) {
					return NewService(&config.Auth, log, repo, issuer, provider, revoker, mailer, stats)
				},
			),
			fx.Annotate(
				func(svc *Service, log *zap.Logger) *Handler {
					return NewHandler(svc, log)
				},
			),
			fx.Annotate(
				func(svc *Service, handler *Handler, log *zap.Logger) *AuthMiddleware {
					return NewAuthMiddleware(svc, handler, log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, svc *Service, log *zap.Logger) *Janitor {
					return NewJanitor(svc, config.Auth.SessionCleanupInterval, log.Named("janitor"))
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(lifecycle fx.Lifecycle, janitor *Janitor) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			janitor.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			janitor.Stop()
			return nil
		},
	})
}
