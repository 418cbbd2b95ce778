package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prophezy/oracle-resolver/internal/config"
	"github.com/prophezy/oracle-resolver/internal/pipeline"
	"github.com/prophezy/oracle-resolver/internal/server"
	"github.com/prophezy/oracle-resolver/internal/server/handler"
	"github.com/prophezy/oracle-resolver/internal/server/ws"
	"github.com/prophezy/oracle-resolver/internal/service"
)

// Services holds the application services built on top of Dependencies.
type Services struct {
	Resolution *service.ResolutionService
	Markets    *service.MarketService
	Directory  *service.Directory
	Reconciler *service.Reconciler
	Stats      *service.StatsService
}

// BuildServices constructs every service from deps. Optional collaborators
// are attached only when they were wired.
func BuildServices(cfg service.ResolutionConfig, deps *Dependencies, logger *slog.Logger) *Services {
	res := service.NewResolutionService(
		deps.MarketStore,
		deps.ResolutionStore,
		deps.ChallengeStore,
		deps.Prices,
		deps.Resolver,
		cfg,
		logger,
	).
		WithAudit(deps.AuditStore).
		WithNotifier(deps.Notifier).
		WithMetrics(deps.Metrics)

	// Typed nil pointers must not reach interface-valued options.
	if deps.Ledger != nil {
		res.WithLedger(deps.Ledger)
	}
	if deps.LockManager != nil {
		res.WithLocks(deps.LockManager)
	}
	if deps.Events != nil {
		res.WithEvents(deps.Events)
	}
	if deps.DirectoryCache != nil {
		res.WithDirectoryCache(deps.DirectoryCache)
	}

	var dirLedger service.DirectoryLedger
	var statsLedger service.StatsLedger
	if deps.Ledger != nil {
		dirLedger = deps.Ledger
		statsLedger = deps.Ledger
	}

	dir := service.NewDirectory(dirLedger, deps.MarketStore, deps.DirectoryCache, deps.Metrics, deps.ScanRange, logger)

	return &Services{
		Resolution: res,
		Markets: service.NewMarketService(
			deps.MarketStore,
			deps.PositionStore,
			deps.ChatStore,
			deps.NoteStore,
			deps.DirectoryCache,
			logger,
		),
		Directory:  dir,
		Reconciler: service.NewReconciler(dir, deps.MarketStore, deps.DirectoryCache, logger),
		Stats:      service.NewStatsService(statsLedger, deps.StatsStore, deps.Metrics, deps.ScanRange, logger),
	}
}

// ResolutionSettings maps the [resolution] section onto the orchestrator.
func ResolutionSettings(c config.ResolutionConfig) service.ResolutionConfig {
	return service.ResolutionConfig{
		OnChainConfidence: c.OnChainConfidence,
		DisputeConfidence: c.DisputeConfidence,
		UseLock:           c.UseLock,
		LockTTL:           c.LockTTL.Duration,
	}
}

func (a *App) resolutionSettings() service.ResolutionConfig {
	return ResolutionSettings(a.cfg.Resolution)
}

// ServerMode serves the HTTP API and the WebSocket event stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := BuildServices(a.resolutionSettings(), deps, a.logger)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// ReconcileMode runs only the directory reconciler loop.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting reconcile mode")

	svcs := BuildServices(a.resolutionSettings(), deps, a.logger)
	orch := pipeline.NewOrchestrator(
		pipeline.NewReconcileJob(svcs.Reconciler, deps.Metrics, a.logger),
		nil,
		a.cfg.Directory.ReconcileInterval.Duration,
		"",
		a.logger,
	)
	return orch.Run(ctx)
}

// ArchiveMode runs only the cold-storage archiver on its cron schedule.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	orch := pipeline.NewOrchestrator(
		nil,
		pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, deps.Metrics, a.logger),
		0,
		a.cfg.Archive.Cron,
		a.logger,
	)
	return orch.Run(ctx)
}

// FullMode runs the HTTP API together with every background job.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := BuildServices(a.resolutionSettings(), deps, a.logger)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, deps.Metrics, a.logger)
	}
	orch := pipeline.NewOrchestrator(
		pipeline.NewReconcileJob(svcs.Reconciler, deps.Metrics, a.logger),
		archiver,
		a.cfg.Directory.ReconcileInterval.Duration,
		a.cfg.Archive.Cron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// startHTTPServer adds the HTTP server and the WebSocket hub to the given
// errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *Services) {
	var hub *ws.Hub
	if deps.Events != nil {
		hub = ws.NewHub(deps.Events, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: a.startedAt,
		})
		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	var status handler.ResolverStatus
	if deps.Resolver != nil {
		status = deps.Resolver
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(deps.Checks, a.logger),
			Oracle:    handler.NewOracleHandler(svcs.Resolution, deps.ResolutionStore, status, a.logger),
			Markets:   handler.NewMarketHandler(svcs.Markets, a.logger),
			Directory: handler.NewDirectoryHandler(svcs.Directory, a.logger),
			Users:     handler.NewUserHandler(svcs.Markets, svcs.Stats, a.logger),
			Metrics:   deps.Metrics.Handler(),
		},
		server.Options{
			Hub:      hub,
			Limiter:  deps.RateLimiter,
			Observer: deps.Metrics,
		},
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
