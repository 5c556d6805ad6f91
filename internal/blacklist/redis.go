package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the blacklist in redis so every replica sees a revocation.
// Entries expire with the tokens they cover.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func tokenKey(tokenID string) string {
	return fmt.Sprintf("blacklist:token:%s", tokenID)
}

func userKey(userID uint) string {
	return fmt.Sprintf("blacklist:user:%d", userID)
}

func (r *Redis) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, tokenKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

func (r *Redis) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, tokenKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) RevokeUser(ctx context.Context, userID uint, at time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	if err := r.client.Set(ctx, userKey(userID), at.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist user: %w", err)
	}
	return nil
}

func (r *Redis) UserRevokedAt(ctx context.Context, userID uint) (time.Time, bool, error) {
	ts, err := r.client.Get(ctx, userKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read user blacklist: %w", err)
	}
	return time.Unix(ts, 0), true, nil
}
