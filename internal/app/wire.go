package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	s3blob "github.com/prophezy/oracle-resolver/internal/blob/s3"
	"github.com/prophezy/oracle-resolver/internal/cache/redis"
	"github.com/prophezy/oracle-resolver/internal/config"
	"github.com/prophezy/oracle-resolver/internal/crypto"
	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/ledger"
	"github.com/prophezy/oracle-resolver/internal/metrics"
	"github.com/prophezy/oracle-resolver/internal/notify"
	"github.com/prophezy/oracle-resolver/internal/platform/redstone"
	"github.com/prophezy/oracle-resolver/internal/platform/resolver"
	"github.com/prophezy/oracle-resolver/internal/server/handler"
	"github.com/prophezy/oracle-resolver/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	MarketStore     domain.MarketStore
	ResolutionStore domain.ResolutionStore
	ChallengeStore  domain.ChallengeStore
	PositionStore   domain.PositionStore
	StatsStore      domain.StatsStore
	ChatStore       domain.ChatStore
	NoteStore       domain.NoteStore
	AuditStore      domain.AuditStore

	// Caches
	DirectoryCache domain.DirectoryCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager
	Events         *redis.EventBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Chain and data sources. Ledger is nil when the RPC endpoint could not
	// be dialed.
	Ledger      *ledger.Adapter
	ResolverKey *crypto.ResolverKey
	ScanRange   ledger.BlockRange
	Prices      *redstone.Client
	Resolver    *resolver.Client

	// Notifications and metrics
	Notifier *notify.Notifier
	Metrics  *metrics.Registry

	// Checks are probed by the health endpoint.
	Checks map[string]handler.Pinger
}

// pingFunc adapts a health function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// needsRedis returns true for modes that publish events or cache the
// directory.
func needsRedis(mode string) bool {
	switch mode {
	case "server", "reconcile", "full":
		return true
	default:
		return false
	}
}

// needsLedger returns true for modes that read or write the chain.
func needsLedger(mode string) bool {
	switch mode {
	case "server", "reconcile", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  map[string]handler.Pinger{},
	}

	// --- PostgreSQL (every mode) ---
	pgClient, err := postgres.New(ctx, PostgresClientConfig(cfg.Postgres))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Checks["postgres"] = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.ResolutionStore = postgres.NewResolutionStore(pool)
	deps.ChallengeStore = postgres.NewChallengeStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.StatsStore = postgres.NewStatsStore(pool)
	deps.ChatStore = postgres.NewChatStore(pool)
	deps.NoteStore = postgres.NewNoteStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient

		deps.DirectoryCache = redis.NewDirectoryCache(redisClient, cfg.Directory.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Events = redis.NewEventBus(redisClient)
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode) {
		bucket, err := s3blob.New(ctx, S3ClientConfig(cfg.S3))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = bucket.Close() })
		deps.Checks["s3"] = pingFunc(bucket.Health)

		deps.BlobWriter = bucket
		deps.BlobReader = bucket
		deps.Archiver = s3blob.NewArchiver(
			bucket,
			bucket,
			deps.ResolutionStore,
			deps.ChallengeStore,
			deps.AuditStore,
		)
	}

	// --- Ledger and resolver key ---
	if needsLedger(cfg.Mode) {
		key, err := crypto.LoadResolverKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Ledger.PrivateKey,
			EncryptedKeyPath: cfg.Ledger.EncryptedKeyPath,
			KeyPassword:      cfg.Ledger.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: resolver key: %w", err)
		}
		deps.ResolverKey = key
		if key == nil {
			logger.WarnContext(ctx, "wire: no resolver key configured, on-chain resolution disabled")
		}

		adapter, err := DialLedger(ctx, cfg.Ledger, key, logger)
		if err != nil {
			// The service degrades to off-chain resolution and a metadata-only
			// directory.
			logger.WarnContext(ctx, "wire: ledger unavailable", slog.String("error", err.Error()))
		} else {
			deps.Ledger = adapter
			closers = append(closers, adapter.Close)
		}
		deps.ScanRange = ScanRange(cfg.Ledger)
	}

	// --- Data sources ---
	deps.Prices = redstone.NewClient(redstone.Config{
		BaseURL: cfg.Redstone.BaseURL,
		APIKey:  cfg.Redstone.APIKey,
		Timeout: cfg.Redstone.Timeout.Duration,
		RPS:     cfg.Redstone.RPS,
	})
	deps.Resolver = resolver.NewClient(resolver.Config{
		BaseURL: cfg.Resolver.BaseURL,
		Timeout: cfg.Resolver.Timeout.Duration,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// PostgresClientConfig maps the [postgres] section onto the store client.
func PostgresClientConfig(c config.PostgresConfig) postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:      c.DSN,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
		MaxConns: c.PoolMaxConns,
		MinConns: c.PoolMinConns,
	}
}

// S3ClientConfig maps the [s3] section onto the archive bucket.
func S3ClientConfig(c config.S3Config) s3blob.ClientConfig {
	return s3blob.ClientConfig{
		Endpoint:       c.Endpoint,
		Region:         c.Region,
		Bucket:         c.Bucket,
		AccessKey:      c.AccessKey,
		SecretKey:      c.SecretKey,
		UseSSL:         c.UseSSL,
		ForcePathStyle: c.ForcePathStyle,
	}
}

// DialLedger connects the ledger adapter described by the [ledger] section.
// key may be nil.
func DialLedger(ctx context.Context, c config.LedgerConfig, key *crypto.ResolverKey, logger *slog.Logger) (*ledger.Adapter, error) {
	lc := ledger.Config{
		RPCURL:          c.RPCURL,
		ChainID:         c.ChainID,
		FactoryAddress:  c.FactoryAddress,
		GasLimit:        c.GasLimit,
		ReceiptTimeout:  c.ReceiptTimeout.Duration,
		ScanConcurrency: c.ScanConcurrency,
	}
	if key == nil {
		return ledger.Dial(ctx, lc, nil, logger)
	}
	return ledger.Dial(ctx, lc, key.Private, logger)
}

// ScanRange is the block range for event scans. Scans end at the latest
// block.
func ScanRange(c config.LedgerConfig) ledger.BlockRange {
	if c.ScanFromBlock <= 0 {
		return ledger.BlockRange{}
	}
	return ledger.BlockRange{From: big.NewInt(c.ScanFromBlock)}
}
