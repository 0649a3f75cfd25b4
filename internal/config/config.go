// Package config defines the WagerLoo configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WAGERLOO_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Mail     MailConfig     `toml:"mail"`
	Notify   NotifyConfig   `toml:"notify"`
	Vote     VoteConfig     `toml:"vote"`
	Market   MarketConfig   `toml:"market"`
	Cleanup  CleanupConfig  `toml:"cleanup"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig selects and configures the relational store. Driver
// "memory" keeps everything in process and is meant for local development.
type DatabaseConfig struct {
	Driver          string   `toml:"driver"`
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	// Isolation is "read_committed" or "serializable".
	Isolation     string `toml:"isolation"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. With neither URL nor Addr
// set, in-process fallbacks replace the cache, bus, lock and rate limiter.
type RedisConfig struct {
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Addr) != ""
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// keeps objects in memory.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether object storage is configured.
func (s S3Config) Enabled() bool { return strings.TrimSpace(s.Bucket) != "" }

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// AuthConfig controls accounts and session tokens.
type AuthConfig struct {
	JWTSecret          string   `toml:"jwt_secret"`
	TokenTTL           duration `toml:"token_ttl"`
	AllowedEmailDomain string   `toml:"allowed_email_domain"`
	BcryptCost         int      `toml:"bcrypt_cost"`
	MinPasswordLength  int      `toml:"min_password_length"`
}

// MailConfig selects the verification mail transport.
type MailConfig struct {
	// Provider is "brevo" or "log".
	Provider      string `toml:"provider"`
	BrevoAPIKey   string `toml:"brevo_api_key"`
	BrevoEndpoint string `toml:"brevo_endpoint"`
	SenderName    string `toml:"sender_name"`
	SenderEmail   string `toml:"sender_email"`
	// BaseURL prefixes verification links, e.g. "https://wagerloo.ca".
	BaseURL string `toml:"base_url"`
}

// NotifyConfig holds operator alert settings.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// VoteConfig tunes the vote transaction and its rate limit.
type VoteConfig struct {
	MaxAttempts  int      `toml:"max_attempts"`
	RetryBackoff duration `toml:"retry_backoff"`
	// RateLimit votes per RateWindow per caller; 0 disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// MarketConfig holds market defaults.
type MarketConfig struct {
	InitialLine     float64  `toml:"initial_line"`
	LeaderboardSize int      `toml:"leaderboard_size"`
	CacheTTL        duration `toml:"cache_ttl"`
	MaxAssetBytes   int      `toml:"max_asset_bytes"`
}

// CleanupConfig configures cleanup mode.
type CleanupConfig struct {
	KeepEmail string   `toml:"keep_email"`
	LockTTL   duration `toml:"lock_ttl"`
}

// duration wraps time.Duration for TOML strings like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values in
// config.example.toml. Secrets are left empty.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			Database:        "wagerloo",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    1,
			MaxConnLifetime: duration{time.Hour},
			Isolation:       "read_committed",
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: duration{10 * time.Second},
		},
		Auth: AuthConfig{
			TokenTTL:           duration{7 * 24 * time.Hour},
			AllowedEmailDomain: "uwaterloo.ca",
			BcryptCost:         12,
			MinPasswordLength:  8,
		},
		Mail: MailConfig{
			Provider:    "log",
			SenderName:  "WagerLoo",
			SenderEmail: "noreply@wagerloo.ca",
			BaseURL:     "http://localhost:8080",
		},
		Notify: NotifyConfig{
			Events: []string{"cleanup.completed", "cleanup.failed"},
		},
		Vote: VoteConfig{
			MaxAttempts:  3,
			RetryBackoff: duration{50 * time.Millisecond},
			RateLimit:    30,
			RateWindow:   duration{time.Minute},
		},
		Market: MarketConfig{
			InitialLine:     25,
			LeaderboardSize: 25,
			CacheTTL:        duration{5 * time.Minute},
			MaxAssetBytes:   10 << 20,
		},
		Cleanup: CleanupConfig{
			LockTTL: duration{10 * time.Minute},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"cleanup": true,
	"migrate": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, cleanup, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	switch c.Database.Driver {
	case "memory":
		if mode != "server" {
			errs = append(errs, "database: driver memory only supports mode server")
		}
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
		}
		switch c.Database.Isolation {
		case "", "read_committed", "serializable":
		default:
			errs = append(errs, fmt.Sprintf("database: unknown isolation %q (valid: read_committed, serializable)", c.Database.Isolation))
		}
	default:
		errs = append(errs, fmt.Sprintf("database: unknown driver %q (valid: postgres, memory)", c.Database.Driver))
	}

	// Redis
	if c.Redis.Enabled() && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled() && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	// Server
	if mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, "auth: jwt_secret must be at least 32 bytes")
		}
	}

	// Auth
	if c.Auth.TokenTTL.Duration <= 0 {
		errs = append(errs, "auth: token_ttl must be > 0")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Sprintf("auth: bcrypt_cost must be 4-31, got %d", c.Auth.BcryptCost))
	}
	if c.Auth.MinPasswordLength < 1 {
		errs = append(errs, "auth: min_password_length must be >= 1")
	}

	// Mail
	switch c.Mail.Provider {
	case "log":
	case "brevo":
		if c.Mail.BrevoAPIKey == "" {
			errs = append(errs, "mail: brevo_api_key is required for provider brevo")
		}
		if c.Mail.SenderEmail == "" {
			errs = append(errs, "mail: sender_email must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("mail: unknown provider %q (valid: brevo, log)", c.Mail.Provider))
	}
	if c.Mail.BaseURL == "" {
		errs = append(errs, "mail: base_url must not be empty")
	}

	// Vote
	if c.Vote.MaxAttempts < 1 {
		errs = append(errs, "vote: max_attempts must be >= 1")
	}
	if c.Vote.RetryBackoff.Duration < 0 {
		errs = append(errs, "vote: retry_backoff must be >= 0")
	}
	if c.Vote.RateLimit < 0 {
		errs = append(errs, "vote: rate_limit must be >= 0")
	}
	if c.Vote.RateLimit > 0 && c.Vote.RateWindow.Duration <= 0 {
		errs = append(errs, "vote: rate_window must be > 0 when rate_limit is set")
	}

	// Market
	if c.Market.InitialLine < 10 || c.Market.InitialLine > 100 {
		errs = append(errs, fmt.Sprintf("market: initial_line must be 10-100, got %g", c.Market.InitialLine))
	}
	if c.Market.LeaderboardSize < 1 {
		errs = append(errs, "market: leaderboard_size must be >= 1")
	}
	if c.Market.MaxAssetBytes < 1 {
		errs = append(errs, "market: max_asset_bytes must be >= 1")
	}

	// Cleanup
	if mode == "cleanup" && strings.TrimSpace(c.Cleanup.KeepEmail) == "" {
		errs = append(errs, "cleanup: keep_email is required for mode cleanup")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
