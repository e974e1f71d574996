package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const (
	archiveLockKey = "archive"
	archiveLockTTL = 30 * time.Minute
)

// Archiver copies settled executions and logged decisions older than the
// retention window to cold storage.
type Archiver struct {
	blob      domain.Archiver
	locks     domain.LockManager
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. With locks set, scheduled runs are
// skipped by every process but the one holding the archive lock.
func NewArchiver(blob domain.Archiver, locks domain.LockManager, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		blob:      blob,
		locks:     locks,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveReport counts the records copied by one run.
type ArchiveReport struct {
	Cutoff     time.Time `json:"cutoff"`
	Executions int64     `json:"executions"`
	Decisions  int64     `json:"decisions"`
}

// Run executes a single archive run against the retention cutoff.
func (a *Archiver) Run(ctx context.Context) (ArchiveReport, error) {
	cutoff := a.now().UTC().Add(-a.retention)
	rep := ArchiveReport{Cutoff: cutoff}
	a.logger.InfoContext(ctx, "starting archive run", slog.Time("cutoff", cutoff))

	n, err := a.blob.ArchiveExecutions(ctx, cutoff)
	if err != nil {
		return rep, fmt.Errorf("pipeline: archive executions before %v: %w", cutoff, err)
	}
	rep.Executions = n

	n, err = a.blob.ArchiveDecisions(ctx, cutoff)
	if err != nil {
		return rep, fmt.Errorf("pipeline: archive decisions before %v: %w", cutoff, err)
	}
	rep.Decisions = n

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("executions", rep.Executions),
		slog.Int64("decisions", rep.Decisions),
	)
	return rep, nil
}

// RunCron runs the archiver on a cron schedule (see ParseSchedule) until
// ctx is cancelled. A failed run is logged and the schedule continues.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("pipeline: archive schedule %q: %w", expr, err)
	}
	a.logger.InfoContext(ctx, "archive schedule started", slog.String("cron", expr))

	for {
		next, err := sched.Next(a.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: archive schedule %q: %w", expr, err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		a.scheduledRun(ctx)
	}
}

func (a *Archiver) scheduledRun(ctx context.Context) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, another process holds the lock")
			return
		}
		if err != nil {
			a.logger.ErrorContext(ctx, "archive lock failed", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}
	if _, err := a.Run(ctx); err != nil {
		a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
	}
}
