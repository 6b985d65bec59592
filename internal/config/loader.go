package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GASVAULT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GASVAULT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "GASVAULT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.PrivateKey, "GASVAULT_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "GASVAULT_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "GASVAULT_CHAIN_KEY_PASSWORD")

	// ── Contracts ──
	setStr(&cfg.Contracts.DepositAsset, "GASVAULT_CONTRACTS_DEPOSIT_ASSET")
	setStr(&cfg.Contracts.LockedAsset, "GASVAULT_CONTRACTS_LOCKED_ASSET")
	setStr(&cfg.Contracts.VenueRouter, "GASVAULT_CONTRACTS_VENUE_ROUTER")
	setStr(&cfg.Contracts.Bridge, "GASVAULT_CONTRACTS_BRIDGE")
	setStr(&cfg.Contracts.PositionToken, "GASVAULT_CONTRACTS_POSITION_TOKEN")

	// ── Vault ──
	setStr(&cfg.Vault.AdminAddress, "GASVAULT_VAULT_ADMIN_ADDRESS")
	setStr(&cfg.Vault.OperatorAddress, "GASVAULT_VAULT_OPERATOR_ADDRESS")
	setDuration(&cfg.Vault.PositionTTL, "GASVAULT_VAULT_POSITION_TTL")
	setDuration(&cfg.Vault.RemediationInterval, "GASVAULT_VAULT_REMEDIATION_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GASVAULT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GASVAULT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GASVAULT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GASVAULT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GASVAULT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GASVAULT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GASVAULT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GASVAULT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GASVAULT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GASVAULT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GASVAULT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GASVAULT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GASVAULT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GASVAULT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GASVAULT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GASVAULT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "GASVAULT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GASVAULT_S3_REGION")
	setStr(&cfg.S3.Bucket, "GASVAULT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GASVAULT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GASVAULT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GASVAULT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GASVAULT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GASVAULT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GASVAULT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "GASVAULT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "GASVAULT_SERVER_ADMIN_API_KEY")
	setStr(&cfg.Server.OperatorAPIKey, "GASVAULT_SERVER_OPERATOR_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "GASVAULT_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GASVAULT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GASVAULT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GASVAULT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GASVAULT_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "GASVAULT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "GASVAULT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Schedule, "GASVAULT_ARCHIVE_SCHEDULE")

	// ── Top-level ──
	setStr(&cfg.Mode, "GASVAULT_MODE")
	setStr(&cfg.LogLevel, "GASVAULT_LOG_LEVEL")
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
