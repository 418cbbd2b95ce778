package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORACLE_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus
// environment are used. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORACLE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "ORACLE_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform convention
	setStringSlice(&cfg.Server.CORSOrigins, "ORACLE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ORACLE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ORACLE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "ORACLE_SERVER_RATE_LIMIT_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORACLE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ORACLE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORACLE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORACLE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORACLE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORACLE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORACLE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORACLE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORACLE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORACLE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORACLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORACLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORACLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORACLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORACLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORACLE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORACLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORACLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORACLE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORACLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORACLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORACLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORACLE_S3_FORCE_PATH_STYLE")

	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "ORACLE_LEDGER_RPC_URL")
	setInt64(&cfg.Ledger.ChainID, "ORACLE_LEDGER_CHAIN_ID")
	setStr(&cfg.Ledger.FactoryAddress, "ORACLE_LEDGER_FACTORY_ADDRESS")
	setStr(&cfg.Ledger.PrivateKey, "ORACLE_LEDGER_PRIVATE_KEY")
	setStr(&cfg.Ledger.PrivateKey, "ORACLE_RESOLVER_KEY") // compatibility alias
	setStr(&cfg.Ledger.EncryptedKeyPath, "ORACLE_LEDGER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Ledger.KeyPassword, "ORACLE_LEDGER_KEY_PASSWORD")
	setDuration(&cfg.Ledger.ReceiptTimeout, "ORACLE_LEDGER_RECEIPT_TIMEOUT")
	setUint64(&cfg.Ledger.GasLimit, "ORACLE_LEDGER_GAS_LIMIT")
	setInt64(&cfg.Ledger.ScanFromBlock, "ORACLE_LEDGER_SCAN_FROM_BLOCK")
	setInt(&cfg.Ledger.ScanConcurrency, "ORACLE_LEDGER_SCAN_CONCURRENCY")

	// ── Redstone ──
	setStr(&cfg.Redstone.BaseURL, "ORACLE_REDSTONE_BASE_URL")
	setStr(&cfg.Redstone.APIKey, "ORACLE_REDSTONE_API_KEY")
	setDuration(&cfg.Redstone.Timeout, "ORACLE_REDSTONE_TIMEOUT")
	setFloat64(&cfg.Redstone.RPS, "ORACLE_REDSTONE_RPS")

	// ── Resolver ──
	setStr(&cfg.Resolver.BaseURL, "ORACLE_RESOLVER_BASE_URL")
	setDuration(&cfg.Resolver.Timeout, "ORACLE_RESOLVER_TIMEOUT")

	// ── Resolution ──
	setFloat64(&cfg.Resolution.OnChainConfidence, "ORACLE_RESOLUTION_ONCHAIN_CONFIDENCE")
	setFloat64(&cfg.Resolution.DisputeConfidence, "ORACLE_RESOLUTION_DISPUTE_CONFIDENCE")
	setDuration(&cfg.Resolution.LockTTL, "ORACLE_RESOLUTION_LOCK_TTL")
	setBool(&cfg.Resolution.UseLock, "ORACLE_RESOLUTION_USE_LOCK")

	// ── Directory ──
	setDuration(&cfg.Directory.CacheTTL, "ORACLE_DIRECTORY_CACHE_TTL")
	setDuration(&cfg.Directory.ReconcileInterval, "ORACLE_DIRECTORY_RECONCILE_INTERVAL")

	// ── Archive ──
	setStr(&cfg.Archive.Cron, "ORACLE_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "ORACLE_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORACLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORACLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORACLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORACLE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORACLE_MODE")
	setStr(&cfg.LogLevel, "ORACLE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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

func setDuration(dst *Duration, key string) {
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
