package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/config"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID       uint
	Role         string
	SessionToken string
	TokenID      string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Source       string
}

// IdentityProvider verifies bearer tokens. One implementation is chosen at
// startup from provider.mode.
type IdentityProvider interface {
	Name() string
	Verify(ctx context.Context, token string) (*Identity, error)
}

func NewIdentityProvider(cfg *config.ProviderConfig, issuer *TokenIssuer, repo Repository, log *zap.Logger) (IdentityProvider, error) {
	local := NewLocalProvider(issuer)

	switch cfg.Mode {
	case config.ProviderLocal, "":
		log.Info("identity provider selected", zap.String("mode", config.ProviderLocal))
		return local, nil
	case config.ProviderHosted:
		key, err := loadPublicKey(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		log.Info("identity provider selected",
			zap.String("mode", config.ProviderHosted),
			zap.String("issuer", cfg.Issuer))
		return NewHostedProvider(local, key, cfg.Issuer, cfg.Audience, repo), nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.Mode)
	}
}

type LocalProvider struct {
	issuer *TokenIssuer
}

func NewLocalProvider(issuer *TokenIssuer) *LocalProvider {
	return &LocalProvider{issuer: issuer}
}

func (p *LocalProvider) Name() string { return config.ProviderLocal }

func (p *LocalProvider) Verify(_ context.Context, token string) (*Identity, error) {
	claims, err := p.issuer.Parse(token)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID:       claims.UserID,
		Role:         claims.Role,
		SessionToken: claims.SessionID,
		TokenID:      claims.ID,
		Source:       config.ProviderLocal,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// HostedProvider accepts locally minted tokens first and falls back to
// asymmetric tokens from the hosted identity service. Hosted users are
// provisioned locally on first sight.
type HostedProvider struct {
	local    *LocalProvider
	key      crypto.PublicKey
	issuer   string
	audience string
	repo     Repository
}

func NewHostedProvider(local *LocalProvider, key crypto.PublicKey, issuer, audience string, repo Repository) *HostedProvider {
	return &HostedProvider{
		local:    local,
		key:      key,
		issuer:   issuer,
		audience: audience,
		repo:     repo,
	}
}

func (p *HostedProvider) Name() string { return config.ProviderHosted }

func (p *HostedProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	if id, err := p.local.Verify(ctx, token); err == nil {
		return id, nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256", "PS256"}),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.key, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: hosted token rejected", ErrInvalidToken)
	}

	user, err := p.resolveUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID: user.ID,
		Role:   user.Role,
		Source: config.ProviderHosted,
	}
	if jti, ok := claims["jti"].(string); ok {
		id.TokenID = jti
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

func (p *HostedProvider) resolveUser(ctx context.Context, claims jwt.MapClaims) (*User, error) {
	// Hosted tokens are matched by email only. Local ids mean nothing to the
	// hosted issuer.
	email, _ := claims["email"].(string)
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: hosted token has no email", ErrInvalidToken)
	}

	user, err := p.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	first, _ := claims["given_name"].(string)
	if first == "" {
		first, _ = claims["name"].(string)
	}
	last, _ := claims["family_name"].(string)
	verified, _ := claims["email_verified"].(bool)

	user = &User{
		Email:         email,
		PasswordHash:  ExternalPasswordHash,
		FirstName:     first,
		LastName:      last,
		Role:          RoleCustomer,
		EmailVerified: verified,
	}
	if err := p.repo.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent first request for the same user.
		if errors.Is(err, ErrUserExists) {
			return p.repo.GetUserByEmail(ctx, email)
		}
		return nil, err
	}
	return user, nil
}

func loadPublicKey(path string) (crypto.PublicKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider public key: %w", err)
	}

	if key, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("provider public key in %s is neither RSA nor EC", path)
}
