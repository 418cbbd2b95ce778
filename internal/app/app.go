// Package app assembles the resolver from its configuration and runs one of
// the operating modes: server, reconcile, archive or full.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prophezy/oracle-resolver/internal/config"
)

// App owns the wired dependencies for one process lifetime.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time

	mu      sync.Mutex
	release []func()
}

// New returns an App for cfg. Nothing is dialled until Run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

// Run wires the dependencies the mode needs and blocks in that mode until
// ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.cfg.Mode = strings.ToLower(strings.TrimSpace(a.cfg.Mode))
	run, ok := a.modeFunc(a.cfg.Mode)
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	redacted := a.cfg.Redacted()
	a.logger.DebugContext(ctx, "effective configuration", slog.Any("config", redacted))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	a.onClose(cleanup)

	a.logger.InfoContext(ctx, "dependencies ready",
		slog.String("mode", a.cfg.Mode),
		slog.Int("health_checks", len(deps.Checks)),
		slog.Bool("ledger", deps.Ledger != nil),
		slog.Bool("events", deps.Events != nil),
	)
	return run(ctx, deps)
}

func (a *App) modeFunc(mode string) (func(context.Context, *Dependencies) error, bool) {
	switch mode {
	case "server":
		return a.ServerMode, true
	case "reconcile":
		return a.ReconcileMode, true
	case "archive":
		return a.ArchiveMode, true
	case "full":
		return a.FullMode, true
	}
	return nil, false
}

func (a *App) onClose(fn func()) {
	a.mu.Lock()
	a.release = append(a.release, fn)
	a.mu.Unlock()
}

// Close releases everything Run acquired, newest first. Calling it again
// does nothing.
func (a *App) Close() {
	a.mu.Lock()
	release := a.release
	a.release = nil
	a.mu.Unlock()

	for i := len(release) - 1; i >= 0; i-- {
		release[i]()
	}
	a.logger.Info("resources released", slog.Duration("uptime", time.Since(a.startedAt)))
}
