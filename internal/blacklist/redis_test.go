package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedis_Keys(t *testing.T) {
	assert.Equal(t, "blacklist:token:abc", tokenKey("abc"))
	assert.Equal(t, "blacklist:user:42", userKey(42))
}

func TestRedis_RevokeExpiredTokenSkipsRoundTrip(t *testing.T) {
	// Nothing listens here; a round trip would fail.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	r := NewRedis(client)
	err := r.RevokeToken(context.Background(), "jti", time.Now().Add(-time.Second))
	assert.NoError(t, err)
}

func TestRedis_RevokeToken(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		ttl     time.Duration
		advance time.Duration
		want    bool
	}{
		{
			name: "revoked until expiry",
			ttl:  10 * time.Minute,
			want: true,
		},
		{
			name:    "forgotten after expiry",
			ttl:     10 * time.Minute,
			advance: 11 * time.Minute,
			want:    false,
		},
		{
			name: "already expired is ignored",
			ttl:  -time.Minute,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mr := newTestRedis(t)

			require.NoError(t, r.RevokeToken(ctx, "jti-1", time.Now().Add(tt.ttl)))
			if tt.ttl > 0 {
				got := mr.TTL(tokenKey("jti-1"))
				assert.InDelta(t, tt.ttl.Seconds(), got.Seconds(), 2)
			}

			mr.FastForward(tt.advance)
			revoked, err := r.IsTokenRevoked(ctx, "jti-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, revoked)

			other, err := r.IsTokenRevoked(ctx, "jti-2")
			require.NoError(t, err)
			assert.False(t, other)
		})
	}
}

func TestRedis_RevokeUser(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ttl     time.Duration
		wantTTL time.Duration
	}{
		{name: "explicit ttl", ttl: 15 * time.Minute, wantTTL: 15 * time.Minute},
		{name: "default ttl", ttl: 0, wantTTL: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mr := newTestRedis(t)

			_, ok, err := r.UserRevokedAt(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, r.RevokeUser(ctx, 7, at.Add(300*time.Millisecond), tt.ttl))
			assert.Equal(t, tt.wantTTL, mr.TTL(userKey(7)))

			got, ok, err := r.UserRevokedAt(ctx, 7)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, got.Equal(at), "stored at second precision, got %s", got)

			mr.FastForward(tt.wantTTL + time.Second)
			_, ok, err = r.UserRevokedAt(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedis_UnreadableUserEntry(t *testing.T) {
	r, mr := newTestRedis(t)
	require.NoError(t, mr.Set(userKey(7), "not-a-number"))

	_, _, err := r.UserRevokedAt(context.Background(), 7)
	assert.Error(t, err)
}
