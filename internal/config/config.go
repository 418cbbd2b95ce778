// Package config defines the top-level configuration for the oracle resolver
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORACLE_* environment variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Redstone   RedstoneConfig   `toml:"redstone"`
	Resolver   ResolverConfig   `toml:"resolver"`
	Resolution ResolutionConfig `toml:"resolution"`
	Directory  DirectoryConfig  `toml:"directory"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow Duration `toml:"rate_limit_window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// LedgerConfig holds the chain endpoint and the resolver wallet credentials.
type LedgerConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	ChainID          int64    `toml:"chain_id"`
	FactoryAddress   string   `toml:"factory_address"`
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	ReceiptTimeout   Duration `toml:"receipt_timeout"`
	GasLimit         uint64   `toml:"gas_limit"`
	ScanFromBlock    int64    `toml:"scan_from_block"`
	ScanConcurrency  int      `toml:"scan_concurrency"`
}

// HasKey reports whether any resolver key source is configured.
func (l LedgerConfig) HasKey() bool {
	return l.PrivateKey != "" || l.EncryptedKeyPath != ""
}

// RedstoneConfig holds the price data API parameters.
type RedstoneConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout Duration `toml:"timeout"`
	RPS     float64  `toml:"rps"`
}

// ResolverConfig holds the external resolver service parameters.
type ResolverConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// ResolutionConfig tunes the resolution orchestrator.
type ResolutionConfig struct {
	OnChainConfidence float64  `toml:"onchain_confidence"`
	DisputeConfidence float64  `toml:"dispute_confidence"`
	LockTTL           Duration `toml:"lock_ttl"`
	UseLock           bool     `toml:"use_lock"`
}

// DirectoryConfig holds the merged market directory parameters.
type DirectoryConfig struct {
	CacheTTL          Duration `toml:"cache_ttl"`
	ReconcileInterval Duration `toml:"reconcile_interval"`
}

// ArchiveConfig holds the cold-storage archive schedule.
type ArchiveConfig struct {
	// Cron is a 5-field expression, e.g. "0 3 1 * *".
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: Duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oracle",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oracle-archive",
			ForcePathStyle: true,
		},
		Ledger: LedgerConfig{
			RPCURL:          "https://data-seed-prebsc-1-s1.binance.org:8545",
			ChainID:         97,
			FactoryAddress:  "0xDfdd62075F027cbcE342C6533255cF338D164E46",
			ReceiptTimeout:  Duration{90 * time.Second},
			GasLimit:        300_000,
			ScanConcurrency: 8,
		},
		Redstone: RedstoneConfig{
			BaseURL: "https://api.redstone.finance",
			Timeout: Duration{10 * time.Second},
			RPS:     5,
		},
		Resolver: ResolverConfig{
			BaseURL: "http://localhost:8001",
			Timeout: Duration{30 * time.Second},
		},
		Resolution: ResolutionConfig{
			OnChainConfidence: 0.99,
			DisputeConfidence: 0.9,
			LockTTL:           Duration{3 * time.Minute},
			UseLock:           true,
		},
		Directory: DirectoryConfig{
			CacheTTL:          Duration{15 * time.Second},
			ReconcileInterval: Duration{10 * time.Minute},
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 1 * *",
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "resolution_fallback", "challenge_filed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":    true,
	"reconcile": true,
	"archive":   true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	// Mode
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, reconcile, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive when rate_limit is set")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Ledger
	if c.Ledger.RPCURL == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	if c.Ledger.ChainID <= 0 {
		errs = append(errs, "ledger: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Ledger.FactoryAddress) {
		errs = append(errs, fmt.Sprintf("ledger: factory_address %q is not a hex address", c.Ledger.FactoryAddress))
	}
	if c.Ledger.PrivateKey != "" && c.Ledger.EncryptedKeyPath != "" {
		errs = append(errs, "ledger: set either private_key or encrypted_key_path, not both")
	}
	if c.Ledger.EncryptedKeyPath != "" && c.Ledger.KeyPassword == "" {
		errs = append(errs, "ledger: key_password is required when encrypted_key_path is set")
	}
	if c.Ledger.ReceiptTimeout.Duration <= 0 {
		errs = append(errs, "ledger: receipt_timeout must be positive")
	}
	if c.Ledger.ScanFromBlock < 0 {
		errs = append(errs, "ledger: scan_from_block must be >= 0")
	}
	if c.Ledger.ScanConcurrency < 1 {
		errs = append(errs, "ledger: scan_concurrency must be >= 1")
	}

	// Redstone and resolver
	if err := checkHTTPURL(c.Redstone.BaseURL); err != nil {
		errs = append(errs, "redstone: base_url "+err.Error())
	}
	if c.Redstone.Timeout.Duration <= 0 {
		errs = append(errs, "redstone: timeout must be positive")
	}
	if c.Redstone.RPS < 0 {
		errs = append(errs, "redstone: rps must be >= 0")
	}
	if err := checkHTTPURL(c.Resolver.BaseURL); err != nil {
		errs = append(errs, "resolver: base_url "+err.Error())
	}
	if c.Resolver.Timeout.Duration <= 0 {
		errs = append(errs, "resolver: timeout must be positive")
	}

	// Resolution
	if c.Resolution.OnChainConfidence <= 0 || c.Resolution.OnChainConfidence > 1 {
		errs = append(errs, fmt.Sprintf("resolution: onchain_confidence must be in (0, 1], got %g", c.Resolution.OnChainConfidence))
	}
	if c.Resolution.DisputeConfidence <= 0 || c.Resolution.DisputeConfidence > 1 {
		errs = append(errs, fmt.Sprintf("resolution: dispute_confidence must be in (0, 1], got %g", c.Resolution.DisputeConfidence))
	}
	if c.Resolution.UseLock && c.Resolution.LockTTL.Duration <= 0 {
		errs = append(errs, "resolution: lock_ttl must be positive when use_lock is set")
	}

	// Directory
	if c.Directory.CacheTTL.Duration < 0 {
		errs = append(errs, "directory: cache_ttl must be >= 0")
	}
	if (mode == "reconcile" || mode == "full") && c.Directory.ReconcileInterval.Duration <= 0 {
		errs = append(errs, "directory: reconcile_interval must be positive")
	}

	// Archive
	if mode == "archive" || mode == "full" {
		if n := len(strings.Fields(c.Archive.Cron)); n != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %d", n))
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	return nil
}
