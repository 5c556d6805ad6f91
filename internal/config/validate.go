package config

import (
	"errors"
	"fmt"
)

// Validate checks settings that would otherwise fail per request. The signing
// secret is checked separately by the token issuer.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Auth.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("auth.access_token_duration must be positive"))
	}
	if c.Auth.RefreshTokenDuration <= c.Auth.AccessTokenDuration {
		errs = append(errs, errors.New("auth.refresh_token_duration must exceed the access token duration"))
	}
	if c.Auth.MaxLoginAttempts < 1 {
		errs = append(errs, errors.New("auth.max_login_attempts must be at least 1"))
	}
	if c.Auth.LockoutDuration <= 0 {
		errs = append(errs, errors.New("auth.lockout_duration must be positive"))
	}

	switch c.Provider.Mode {
	case ProviderLocal:
	case ProviderHosted:
		if c.Provider.PublicKeyFile == "" {
			errs = append(errs, errors.New("provider.public_key_file is required in hosted mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider.mode %q is not one of local, hosted", c.Provider.Mode))
	}

	return errors.Join(errs...)
}
