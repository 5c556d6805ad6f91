package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Host: "0.0.0.0", Port: "8080"},
		Auth: AuthConfig{
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 7 * 24 * time.Hour,
			MaxLoginAttempts:     5,
			LockoutDuration:      30 * time.Minute,
		},
		Provider: ProviderConfig{Mode: ProviderLocal},
	}
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{
			name: "valid config",
		},
		{
			name:    "missing port",
			mutate:  func(c *AppConfig) { c.Server.Port = "" },
			wantErr: "server.port is required",
		},
		{
			name:    "refresh shorter than access",
			mutate:  func(c *AppConfig) { c.Auth.RefreshTokenDuration = time.Minute },
			wantErr: "auth.refresh_token_duration",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *AppConfig) { c.Auth.MaxLoginAttempts = 0 },
			wantErr: "auth.max_login_attempts",
		},
		{
			name:    "hosted without key",
			mutate:  func(c *AppConfig) { c.Provider.Mode = ProviderHosted },
			wantErr: "provider.public_key_file",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *AppConfig) { c.Provider.Mode = "magic" },
			wantErr: `provider.mode "magic"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
