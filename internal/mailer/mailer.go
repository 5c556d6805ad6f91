package mailer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-mail/mail/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/betterbeing/session-auth/internal/config"
)

const sendAttempts = 3

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPMailer sends through an SMTP relay, paced by a token bucket.
type SMTPMailer struct {
	dialer  sender
	from    string
	appURL  string
	limiter *rate.Limiter
	log     *zap.Logger
	backoff time.Duration
}

func NewSMTPMailer(cfg *config.MailConfig, log *zap.Logger) *SMTPMailer {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 30 * time.Second

	switch cfg.Port {
	case 587:
		dialer.StartTLSPolicy = mail.MandatoryStartTLS
	case 465:
		dialer.SSL = true
		dialer.StartTLSPolicy = mail.NoStartTLS
	default:
		dialer.StartTLSPolicy = mail.OpportunisticStartTLS
	}

	return newSMTPMailer(dialer, cfg, log)
}

func newSMTPMailer(dialer sender, cfg *config.MailConfig, log *zap.Logger) *SMTPMailer {
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &SMTPMailer{
		dialer:  dialer,
		from:    cfg.From,
		appURL:  cfg.AppURL,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		backoff: time.Second,
	}
}

func (m *SMTPMailer) SendVerification(ctx context.Context, to, token string) error {
	link := buildLink(m.appURL, "/verify-email", token)
	return m.send(ctx, to, "Verify your email address",
		fmt.Sprintf("Welcome to Better Being!\n\nConfirm your email address by opening:\n%s\n", link),
		fmt.Sprintf(`<p>Welcome to Better Being!</p><p><a href="%s">Confirm your email address</a></p>`, link))
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := buildLink(m.appURL, "/reset-password", token)
	return m.send(ctx, to, "Reset your password",
		fmt.Sprintf("Reset your password within the next hour:\n%s\n\nIf you did not ask for this, ignore this email.\n", link),
		fmt.Sprintf(`<p><a href="%s">Reset your password</a> within the next hour.</p><p>If you did not ask for this, ignore this email.</p>`, link))
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, text, html string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttled: %w", err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html)

	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = m.dialer.DialAndSend(msg); err == nil {
			m.log.Info("email sent", zap.String("subject", subject))
			return nil
		}

		m.log.Warn("smtp send failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < sendAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * m.backoff):
			}
		}
	}
	return fmt.Errorf("failed to send email after %d attempts: %w", sendAttempts, err)
}

// LogMailer writes links to the log instead of sending mail. Used when
// mail.enabled is false.
type LogMailer struct {
	appURL string
	log    *zap.Logger
}

func NewLogMailer(appURL string, log *zap.Logger) *LogMailer {
	return &LogMailer{appURL: appURL, log: log}
}

func (m *LogMailer) SendVerification(_ context.Context, to, token string) error {
	m.log.Info("verification email (not sent)",
		zap.String("to", to),
		zap.String("link", buildLink(m.appURL, "/verify-email", token)))
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.log.Info("password reset email (not sent)",
		zap.String("to", to),
		zap.String("link", buildLink(m.appURL, "/reset-password", token)))
	return nil
}

func buildLink(base, path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", base, path, url.QueryEscape(token))
}
