package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[server]
host = "127.0.0.1"
port = "9090"

[http]
mode = "release"
allowed_origins = ["https://shop.example"]

[http.testing]
mode = "test"
auth_rate_limit = "1000-M"

[auth]
jwt_secret = "0123456789abcdef0123456789abcdef"
lockout_duration = "10m"
`

func writeConfig(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))

	prev := ConfigPath
	ConfigPath = dir
	t.Cleanup(func() { ConfigPath = prev })
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		wantMode  string
		wantLimit string
	}{
		{
			name:      "base http settings",
			env:       EnvDevelopment,
			wantMode:  "release",
			wantLimit: "10-M",
		},
		{
			name:      "testing overlay",
			env:       EnvTesting,
			wantMode:  "test",
			wantLimit: "1000-M",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, testConfig)
			t.Setenv("APP_ENV", tt.env)

			cfg, err := LoadConfig()
			require.NoError(t, err)

			assert.Equal(t, "9090", cfg.Server.Port)
			assert.Equal(t, tt.wantMode, cfg.HTTP.Mode)
			assert.Equal(t, tt.wantLimit, cfg.HTTP.AuthRateLimit)
			assert.Equal(t, 10*time.Minute, cfg.Auth.LockoutDuration)
			assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
			assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenDuration)
		})
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	writeConfig(t, testConfig)
	t.Setenv("APP_ENV", EnvDevelopment)
	t.Setenv("AUTH_AUTH_JWT_SECRET", "from-env-from-env-from-env-from-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env-from-env-from-env-from-env", cfg.Auth.JWTSecret)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	prev := ConfigPath
	ConfigPath = t.TempDir()
	t.Cleanup(func() { ConfigPath = prev })

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{EnvDevelopment, EnvProduction, EnvTesting} {
		logger, err := NewLogger(env)
		require.NoError(t, err, env)
		assert.NotNil(t, logger)
	}

	_, err := NewLogger("staging")
	assert.Error(t, err)
}
