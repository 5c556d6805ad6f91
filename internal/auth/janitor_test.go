package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJanitor_Sweep(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, repo, testEmail)

	expired := mustLogin(t, svc, testEmail)
	live := mustLogin(t, svc, testEmail)
	repo.expireSession(HashToken(expired.Tokens.RefreshToken), time.Now().Add(-time.Minute))

	j := NewJanitor(svc, time.Hour, zap.NewNop())
	assert.Equal(t, int64(1), j.Sweep(context.Background()))
	assert.Zero(t, j.Sweep(context.Background()))

	_, err := repo.GetSessionByRefreshToken(context.Background(), HashToken(live.Tokens.RefreshToken))
	assert.NoError(t, err)
}

func TestJanitor_StartStop(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, repo, testEmail)

	expired := mustLogin(t, svc, testEmail)
	digest := HashToken(expired.Tokens.RefreshToken)
	repo.expireSession(digest, time.Now().Add(-time.Minute))

	j := NewJanitor(svc, 10*time.Millisecond, zap.NewNop())
	j.Start()
	defer j.Stop()

	require.Eventually(t, func() bool {
		_, err := repo.GetSessionByRefreshToken(context.Background(), digest)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestJanitor_Disabled(t *testing.T) {
	svc, _ := newTestService(t)

	j := NewJanitor(svc, 0, zap.NewNop())
	j.Start()
	j.Stop()
}
