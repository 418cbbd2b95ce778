package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// ArchiveReport is the outcome of one archive run.
type ArchiveReport struct {
	Cutoff      time.Time
	Resolutions int64
	Challenges  int64
}

// Archiver moves records older than the retention period to cold storage.
type Archiver struct {
	blob      domain.Archiver
	retention time.Duration
	metrics   JobRecorder
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver keeps retentionDays of history hot. metrics may be nil.
func NewArchiver(blob domain.Archiver, retentionDays int, metrics JobRecorder, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:      blob,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		metrics:   orDiscard(metrics),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// WithClock replaces the time source.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Run archives resolutions and then challenges older than the cutoff. A
// failure on resolutions skips challenges for this run.
func (a *Archiver) Run(ctx context.Context) (ArchiveReport, error) {
	report := ArchiveReport{Cutoff: a.now().Add(-a.retention)}
	err := a.run(ctx, &report)
	a.metrics.ObserveJob("archive", outcome(err))
	if err != nil {
		return report, err
	}
	a.logger.Info("archive run done",
		slog.Time("cutoff", report.Cutoff),
		slog.Int64("resolutions", report.Resolutions),
		slog.Int64("challenges", report.Challenges),
	)
	return report, nil
}

func (a *Archiver) run(ctx context.Context, report *ArchiveReport) error {
	steps := []struct {
		kind  string
		fn    func(context.Context, time.Time) (int64, error)
		count *int64
	}{
		{"resolutions", a.blob.ArchiveResolutions, &report.Resolutions},
		{"challenges", a.blob.ArchiveChallenges, &report.Challenges},
	}
	for _, s := range steps {
		n, err := s.fn(ctx, report.Cutoff)
		if err != nil {
			return fmt.Errorf("archive %s before %s: %w", s.kind, report.Cutoff.Format(time.DateOnly), err)
		}
		*s.count = n
		a.metrics.AddArchived(s.kind, n)
	}
	return nil
}

// RunCron runs the archiver at every time expr matches until ctx ends.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseCron(expr)
	if err != nil {
		return err
	}
	a.logger.Info("archive schedule armed", slog.String("cron", expr))
	return runScheduled(ctx, sched, false, a.now, a.logger, func(ctx context.Context) error {
		_, err := a.Run(ctx)
		return err
	})
}
