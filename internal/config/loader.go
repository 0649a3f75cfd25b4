package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty) over the
// built-in defaults, loads .env if present, and applies WAGERLOO_*
// environment overrides. The result is not validated; callers invoke
// Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from WAGERLOO_* variables that
// are set and non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.Driver, "WAGERLOO_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "WAGERLOO_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // platform-provided alias
	setStr(&cfg.Database.Host, "WAGERLOO_DATABASE_HOST")
	setInt(&cfg.Database.Port, "WAGERLOO_DATABASE_PORT")
	setStr(&cfg.Database.Database, "WAGERLOO_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "WAGERLOO_DATABASE_USER")
	setStr(&cfg.Database.Password, "WAGERLOO_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "WAGERLOO_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "WAGERLOO_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "WAGERLOO_DATABASE_POOL_MIN_CONNS")
	setDuration(&cfg.Database.MaxConnLifetime, "WAGERLOO_DATABASE_MAX_CONN_LIFETIME")
	setStr(&cfg.Database.Isolation, "WAGERLOO_DATABASE_ISOLATION")
	setBool(&cfg.Database.RunMigrations, "WAGERLOO_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "WAGERLOO_REDIS_URL")
	setStr(&cfg.Redis.Addr, "WAGERLOO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WAGERLOO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WAGERLOO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WAGERLOO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WAGERLOO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WAGERLOO_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WAGERLOO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WAGERLOO_S3_REGION")
	setStr(&cfg.S3.Bucket, "WAGERLOO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WAGERLOO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WAGERLOO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WAGERLOO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WAGERLOO_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "WAGERLOO_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform-provided alias
	setStringSlice(&cfg.Server.CORSOrigins, "WAGERLOO_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.ShutdownTimeout, "WAGERLOO_SERVER_SHUTDOWN_TIMEOUT")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "WAGERLOO_AUTH_JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "WAGERLOO_AUTH_TOKEN_TTL")
	setStr(&cfg.Auth.AllowedEmailDomain, "WAGERLOO_AUTH_ALLOWED_EMAIL_DOMAIN")
	setInt(&cfg.Auth.BcryptCost, "WAGERLOO_AUTH_BCRYPT_COST")
	setInt(&cfg.Auth.MinPasswordLength, "WAGERLOO_AUTH_MIN_PASSWORD_LENGTH")

	// ── Mail ──
	setStr(&cfg.Mail.Provider, "WAGERLOO_MAIL_PROVIDER")
	setStr(&cfg.Mail.BrevoAPIKey, "WAGERLOO_MAIL_BREVO_API_KEY")
	setStr(&cfg.Mail.BrevoAPIKey, "BREVO_API_KEY") // compatibility alias
	setStr(&cfg.Mail.BrevoEndpoint, "WAGERLOO_MAIL_BREVO_ENDPOINT")
	setStr(&cfg.Mail.SenderName, "WAGERLOO_MAIL_SENDER_NAME")
	setStr(&cfg.Mail.SenderEmail, "WAGERLOO_MAIL_SENDER_EMAIL")
	setStr(&cfg.Mail.BaseURL, "WAGERLOO_MAIL_BASE_URL")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "WAGERLOO_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WAGERLOO_NOTIFY_EVENTS")

	// ── Vote ──
	setInt(&cfg.Vote.MaxAttempts, "WAGERLOO_VOTE_MAX_ATTEMPTS")
	setDuration(&cfg.Vote.RetryBackoff, "WAGERLOO_VOTE_RETRY_BACKOFF")
	setInt(&cfg.Vote.RateLimit, "WAGERLOO_VOTE_RATE_LIMIT")
	setDuration(&cfg.Vote.RateWindow, "WAGERLOO_VOTE_RATE_WINDOW")

	// ── Market ──
	setFloat64(&cfg.Market.InitialLine, "WAGERLOO_MARKET_INITIAL_LINE")
	setInt(&cfg.Market.LeaderboardSize, "WAGERLOO_MARKET_LEADERBOARD_SIZE")
	setDuration(&cfg.Market.CacheTTL, "WAGERLOO_MARKET_CACHE_TTL")
	setInt(&cfg.Market.MaxAssetBytes, "WAGERLOO_MARKET_MAX_ASSET_BYTES")

	// ── Cleanup ──
	setStr(&cfg.Cleanup.KeepEmail, "WAGERLOO_CLEANUP_KEEP_EMAIL")
	setStr(&cfg.Cleanup.KeepEmail, "USER_EMAIL") // compatibility alias
	setDuration(&cfg.Cleanup.LockTTL, "WAGERLOO_CLEANUP_LOCK_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "WAGERLOO_MODE")
	setStr(&cfg.LogLevel, "WAGERLOO_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
