package mailer

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/config"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			func(cfg *config.AppConfig, logger *zap.Logger) Mailer {
				log := logger.Named("mailer")
				if !cfg.Mail.Enabled {
					return NewLogMailer(cfg.Mail.AppURL, log)
				}
				return NewSMTPMailer(&cfg.Mail, log)
			},
		),
	)
}
