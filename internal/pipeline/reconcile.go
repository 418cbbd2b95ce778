package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/prophezy/oracle-resolver/internal/service"
)

// Reconciler runs one directory reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (service.ReconcileReport, error)
}

// JobRecorder receives job outcomes and archive counts.
type JobRecorder interface {
	ObserveJob(job, result string)
	AddArchived(kind string, n int64)
}

type discardJobs struct{}

func (discardJobs) ObserveJob(string, string) {}
func (discardJobs) AddArchived(string, int64) {}

func orDiscard(r JobRecorder) JobRecorder {
	if r == nil {
		return discardJobs{}
	}
	return r
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ReconcileJob links ledger markets missing from the store.
type ReconcileJob struct {
	reconciler Reconciler
	metrics    JobRecorder
	logger     *slog.Logger
}

// NewReconcileJob returns a job around r. metrics may be nil.
func NewReconcileJob(r Reconciler, metrics JobRecorder, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{
		reconciler: r,
		metrics:    orDiscard(metrics),
		logger:     logger.With(slog.String("component", "reconcile_job")),
	}
}

// Run performs one pass.
func (j *ReconcileJob) Run(ctx context.Context) (service.ReconcileReport, error) {
	started := time.Now()
	report, err := j.reconciler.Run(ctx)
	j.metrics.ObserveJob("reconcile", outcome(err))
	if err != nil {
		return report, err
	}
	j.logger.Info("reconcile pass done",
		slog.Int("scanned", report.Scanned),
		slog.Int("created", report.Created),
		slog.Int("linked", report.Linked),
		slog.Duration("took", time.Since(started)),
	)
	return report, nil
}

// RunLoop runs a pass now and then every interval until ctx ends.
func (j *ReconcileJob) RunLoop(ctx context.Context, interval time.Duration) error {
	return runScheduled(ctx, Every(interval), true, time.Now, j.logger, func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	})
}
