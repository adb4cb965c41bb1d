// Package jobs contains the scheduled jobs of the tracker daemon: the
// periodic tracking cycle and the archive cleanup.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/shared"
)

// TrackJobName is the name the tracking job registers under.
const TrackJobName = "track_progress"

// CycleSummary reports what a tracking cycle changed.
type CycleSummary struct {
	RunID        string
	NewLessons   int
	DailyLessons int
	DailyGoal    int
	Notified     bool
	FromArchive  bool
	Skipped      int
}

// CycleRunner executes one end-to-end tracking cycle: acquire fresh
// activity, refresh state, rewrite the report, send due notifications.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleSummary, error)
}

// CycleRunnerFunc adapts a function to the CycleRunner interface.
type CycleRunnerFunc func(ctx context.Context) (CycleSummary, error)

// RunCycle implements CycleRunner.
func (f CycleRunnerFunc) RunCycle(ctx context.Context) (CycleSummary, error) {
	return f(ctx)
}

// TrackJob runs tracking cycles on a schedule.
type TrackJob struct {
	runner  CycleRunner
	timeout time.Duration
	logger  *slog.Logger

	lastSummary atomic.Value // CycleSummary
}

// TrackConfig configures the tracking job.
type TrackConfig struct {
	// Timeout bounds a single cycle, no bound when zero.
	Timeout time.Duration

	// Logger receives structured logs, slog.Default() when nil.
	Logger *slog.Logger
}

// DefaultTrackConfig returns the defaults used by the daemon.
func DefaultTrackConfig() TrackConfig {
	return TrackConfig{
		Timeout: 5 * time.Minute,
		Logger:  slog.Default(),
	}
}

// NewTrackJob creates the tracking job.
func NewTrackJob(runner CycleRunner, cfg TrackConfig) *TrackJob {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TrackJob{
		runner:  runner,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Name implements scheduler.Job.
func (j *TrackJob) Name() string {
	return TrackJobName
}

// Description implements scheduler.Job.
func (j *TrackJob) Description() string {
	return "Fetches fresh activity and refreshes progress state, report and notifications"
}

// Run implements scheduler.Job. A cycle that finds the run lock held
// is a skip, not a failure: another invocation is already doing the
// work.
func (j *TrackJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	summary, err := j.runner.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrRunInProgress) {
			j.logger.Info("tracking cycle skipped, another run holds the lock")
			return nil
		}
		return fmt.Errorf("tracking cycle: %w", err)
	}

	j.lastSummary.Store(summary)

	j.logger.Info("tracking cycle finished",
		"run_id", summary.RunID,
		"new_lessons", summary.NewLessons,
		"daily_lessons", summary.DailyLessons,
		"daily_goal", summary.DailyGoal,
		"notified", summary.Notified,
		"from_archive", summary.FromArchive,
		"skipped_records", summary.Skipped,
	)
	return nil
}

// LastSummary returns the most recent successful cycle, if any.
func (j *TrackJob) LastSummary() (CycleSummary, bool) {
	v := j.lastSummary.Load()
	if v == nil {
		return CycleSummary{}, false
	}
	return v.(CycleSummary), true
}
