package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the reconcile loop and the archive schedule side by
// side. A nil job is skipped.
type Orchestrator struct {
	reconcile   *ReconcileJob
	archiver    *Archiver
	interval    time.Duration
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator returns an Orchestrator for the given jobs.
func NewOrchestrator(reconcile *ReconcileJob, archiver *Archiver, reconcileInterval time.Duration, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		reconcile:   reconcile,
		archiver:    archiver,
		interval:    reconcileInterval,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run blocks until ctx is cancelled, which is a clean stop, or a job fails
// to keep its schedule.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	started := 0

	if o.reconcile != nil {
		started++
		g.Go(o.supervise(ctx, "reconcile loop", func(ctx context.Context) error {
			return o.reconcile.RunLoop(ctx, o.interval)
		}))
	}
	if o.archiver != nil {
		started++
		g.Go(o.supervise(ctx, "archiver", func(ctx context.Context) error {
			return o.archiver.RunCron(ctx, o.archiveCron)
		}))
	}
	o.logger.Info("pipeline running", slog.Int("jobs", started))

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped")
	return nil
}

func (o *Orchestrator) supervise(ctx context.Context, name string, fn func(context.Context) error) func() error {
	return func() error {
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}
}
