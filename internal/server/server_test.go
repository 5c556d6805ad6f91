package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/api"
	"github.com/betterbeing/session-auth/internal/auth"
	"github.com/betterbeing/session-auth/internal/blacklist"
	"github.com/betterbeing/session-auth/internal/config"
	"github.com/betterbeing/session-auth/internal/mailer"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.AppConfig{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		HTTP: config.HTTPConfig{
			Mode:           "test",
			AllowedOrigins: []string{"https://shop.example"},
			AuthRateLimit:  "2-M",
		},
		Auth: config.AuthConfig{
			JWTSecret:            "0123456789abcdef0123456789abcdef",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: time.Hour,
			BcryptCost:           4,
			MaxLoginAttempts:     5,
			LockoutDuration:      30 * time.Minute,
		},
	}
	log := zap.NewNop()

	issuer, err := auth.NewTokenIssuer(&cfg.Auth)
	require.NoError(t, err)
	stats := auth.NewStats()
	// Routes exercised here never reach the repository.
	svc, err := auth.NewService(&cfg.Auth, log, nil, issuer, auth.NewLocalProvider(issuer),
		blacklist.NewMemory(), mailer.NewLogMailer("http://localhost", log), stats)
	require.NoError(t, err)
	handler := auth.NewHandler(svc, log)

	srv, err := NewServer(Params{
		Config:         cfg,
		Logger:         log,
		AuthHandler:    handler,
		AuthMiddleware: auth.NewAuthMiddleware(svc, handler, log),
		Stats:          stats,
	})
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	w := serve(srv, http.MethodGet, api.Health, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "stats")
}

func TestServer_ProtectedRouteRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{api.AuthMe, api.AuthSessions} {
		w := serve(srv, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Contains(t, w.Body.String(), "MISSING_TOKEN")
	}
}

func TestServer_LoginIsRateLimited(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 2; i++ {
		w := serve(srv, http.MethodPost, api.AuthLogin, []byte(`{}`), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := serve(srv, http.MethodPost, api.AuthLogin, []byte(`{}`), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Unlimited routes are unaffected.
	w = serve(srv, http.MethodGet, api.Health, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CORS(t *testing.T) {
	srv := newTestServer(t)

	w := serve(srv, http.MethodOptions, api.AuthLogin, nil, map[string]string{
		"Origin":                        "https://shop.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(srv, http.MethodGet, api.Health, nil, map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
