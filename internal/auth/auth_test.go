package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/betterbeing/session-auth/internal/blacklist"
	"github.com/betterbeing/session-auth/internal/config"
)

const (
	testEmail    = "a@x.com"
	testPassword = "Secret1!"
	testSecret   = "test-secret-key-that-is-32-bytes!"
)

func newTestLogger(t *testing.T) *zap.Logger {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger
}

func newTestConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:             testSecret,
		Issuer:                "session-auth-test",
		AccessTokenDuration:   15 * time.Minute,
		RefreshTokenDuration:  7 * 24 * time.Hour,
		BcryptCost:            bcrypt.MinCost,
		MaxLoginAttempts:      5,
		LockoutDuration:       30 * time.Minute,
		PasswordResetDuration: time.Hour,
		TrackSessionActivity:  true,
	}
}

type sentMail struct {
	kind  string
	to    string
	token string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendVerification(_ context.Context, to, token string) error {
	m.record("verify", to, token)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.record("reset", to, token)
	return nil
}

func (m *fakeMailer) record(kind, to, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, token: token})
}

func (m *fakeMailer) last(kind string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

type testEnv struct {
	svc     *Service
	repo    *mockRepository
	mailer  *fakeMailer
	revoker *blacklist.Memory
}

func newTestEnv(t *testing.T, cfg *config.AuthConfig) *testEnv {
	t.Helper()

	log := newTestLogger(t)
	repo := newMockRepository()
	issuer, err := NewTokenIssuer(cfg)
	require.NoError(t, err)

	env := &testEnv{
		repo:    repo,
		mailer:  &fakeMailer{},
		revoker: blacklist.NewMemory(),
	}
	env.svc, err = NewService(cfg, log, repo, issuer, NewLocalProvider(issuer), env.revoker, env.mailer, NewStats())
	require.NoError(t, err)
	return env
}

func newTestService(t *testing.T) (*Service, *mockRepository) {
	env := newTestEnv(t, newTestConfig())
	return env.svc, env.repo
}

// setNow pins the service and issuer clocks.
func (e *testEnv) setNow(now time.Time) {
	e.svc.now = func() time.Time { return now }
	e.svc.issuer.now = func() time.Time { return now }
}

// seedUser stores a verified user with testPassword.
func seedUser(t *testing.T, repo *mockRepository, email string) *User {
	t.Helper()

	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	user := &User{
		Email:         email,
		PasswordHash:  hash,
		Role:          RoleCustomer,
		EmailVerified: true,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func login(t *testing.T, svc *Service, email, password string) LoginResult {
	t.Helper()

	result, err := svc.Login(context.Background(), LoginRequest{
		Email:    email,
		Password: password,
		Meta:     ClientMeta{IPAddress: "127.0.0.1", UserAgent: "test"},
	})
	require.NoError(t, err)
	return result
}

func mustLogin(t *testing.T, svc *Service, email string) LoginSuccess {
	t.Helper()

	result := login(t, svc, email, testPassword)
	success, ok := result.(LoginSuccess)
	require.True(t, ok, "expected LoginSuccess, got %T", result)
	return success
}
