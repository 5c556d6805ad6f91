package blacklist

import (
	"context"
	"time"
)

// Store records revoked access tokens and per-user revocation times.
type Store interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	RevokeUser(ctx context.Context, userID uint, at time.Time, ttl time.Duration) error
	UserRevokedAt(ctx context.Context, userID uint) (time.Time, bool, error)
}
