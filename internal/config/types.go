package config

import "time"

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// HTTPConfig holds transport settings that may be overlaid per environment
// through the [http.<env>] tables.
type HTTPConfig struct {
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	AuthRateLimit   string        `mapstructure:"auth_rate_limit"`
}

type AuthConfig struct {
	JWTSecret              string        `mapstructure:"jwt_secret"`
	Issuer                 string        `mapstructure:"issuer"`
	AccessTokenDuration    time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration   time.Duration `mapstructure:"refresh_token_duration"`
	BcryptCost             int           `mapstructure:"bcrypt_cost"`
	MaxLoginAttempts       int           `mapstructure:"max_login_attempts"`
	LockoutDuration        time.Duration `mapstructure:"lockout_duration"`
	PasswordResetDuration  time.Duration `mapstructure:"password_reset_duration"`
	TrackSessionActivity   bool          `mapstructure:"track_session_activity"`
	SessionCleanupInterval time.Duration `mapstructure:"session_cleanup_interval"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	Port            int           `mapstructure:"port"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MailConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Host       string  `mapstructure:"host"`
	Port       int     `mapstructure:"port"`
	Username   string  `mapstructure:"username"`
	Password   string  `mapstructure:"password"`
	From       string  `mapstructure:"from"`
	AppURL     string  `mapstructure:"app_url"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
}

// ProviderConfig selects the identity provider used to verify bearer tokens.
type ProviderConfig struct {
	Mode          string `mapstructure:"mode"`
	PublicKeyFile string `mapstructure:"public_key_file"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mail     MailConfig     `mapstructure:"mail"`
	Provider ProviderConfig `mapstructure:"provider"`
}

const (
	ProviderLocal  = "local"
	ProviderHosted = "hosted"
)
