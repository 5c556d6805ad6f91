package auth

import (
	"context"
	"time"
)

// Revoker remembers access tokens that must stop working before they expire.
type Revoker interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	// RevokeUser invalidates every token of userID issued before at. The
	// marker may be forgotten after ttl.
	RevokeUser(ctx context.Context, userID uint, at time.Time, ttl time.Duration) error
	UserRevokedAt(ctx context.Context, userID uint) (time.Time, bool, error)
}

type Mailer interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}
