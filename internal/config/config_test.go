package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 90*time.Second, cfg.Ledger.ReceiptTimeout.Duration)
	assert.Equal(t, 3*time.Minute, cfg.Resolution.LockTTL.Duration)
	assert.InDelta(t, 0.99, cfg.Resolution.OnChainConfidence, 1e-9)
	assert.False(t, cfg.Ledger.HasKey())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Ledger.FactoryAddress = "not-an-address"
	cfg.Ledger.EncryptedKeyPath = "/tmp/key.json"
	cfg.Redstone.BaseURL = "ftp://prices"
	cfg.Resolution.DisputeConfidence = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "factory_address")
	assert.Contains(t, msg, "key_password is required")
	assert.Contains(t, msg, "redstone: base_url must be an http(s) URL")
	assert.Contains(t, msg, "dispute_confidence")
}

func TestValidateModeScopedSections(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "server"
	cfg.Archive.Cron = "every night"
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate(), "archive settings only matter when the archiver runs")

	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: cron must have 5 fields")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oracle.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "reconcile"

[ledger]
chain_id = 56
receipt_timeout = "2m"

[directory]
cache_ttl = "5s"
`), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("ORACLE_SERVER_PORT", "9090")
	t.Setenv("ORACLE_LEDGER_PRIVATE_KEY", "0xabc")
	t.Setenv("ORACLE_NOTIFY_EVENTS", "market_resolved, challenge_filed,")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "reconcile", cfg.Mode)
	assert.Equal(t, int64(56), cfg.Ledger.ChainID)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.ReceiptTimeout.Duration)
	assert.Equal(t, 5*time.Second, cfg.Directory.CacheTTL.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0xabc", cfg.Ledger.PrivateKey)
	assert.True(t, cfg.Ledger.HasKey())
	assert.Equal(t, []string{"market_resolved", "challenge_filed"}, cfg.Notify.Events)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults().Ledger.FactoryAddress, cfg.Ledger.FactoryAddress)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ledger\nchain_id = "), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := config.Defaults()
	cfg.Ledger.PrivateKey = "0xdeadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "admin-key"
	cfg.Redstone.APIKey = ""

	cfg.Postgres.DSN = "postgres://oracle:s3cret@db:5432/oracle?sslmode=disable"

	out := cfg.Redacted()
	assert.Equal(t, "postgres://oracle:xxxxx@db:5432/oracle?sslmode=disable", out.Postgres.DSN)
	assert.Equal(t, "***", out.Ledger.PrivateKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Redstone.APIKey)

	out.Server.CORSOrigins[0] = "https://evil.example"
	assert.Equal(t, "0xdeadbeef", cfg.Ledger.PrivateKey)
	assert.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
}
