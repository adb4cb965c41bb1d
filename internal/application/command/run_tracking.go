// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pacewise/course-tracker/internal/domain/progress"
	"github.com/pacewise/course-tracker/internal/domain/session"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/internal/domain/unit"
	"github.com/pacewise/course-tracker/internal/infrastructure/external/feed"
	"github.com/pacewise/course-tracker/internal/infrastructure/notify"
	"github.com/pacewise/course-tracker/pkg/logger"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN TRACKING COMMAND
// Executes one full tracking cycle: acquire the activity feed, rebuild units
// and metrics from scratch, persist state once, refresh the report, notify.
// ══════════════════════════════════════════════════════════════════════════════

// Trigger names what started a cycle.
type Trigger string

const (
	// TriggerSchedule - the daemon's interval schedule fired.
	TriggerSchedule Trigger = "schedule"

	// TriggerWatch - the filesystem watcher saw a fresh snapshot land.
	TriggerWatch Trigger = "watch"

	// TriggerManual - an operator ran the CLI.
	TriggerManual Trigger = "manual"
)

// RunTrackingCommand contains the data for one tracking cycle.
type RunTrackingCommand struct {
	// Offline skips the live fetch and replays the newest archived
	// snapshot instead.
	Offline bool

	// Trigger names what started the cycle (defaults to TriggerManual).
	Trigger Trigger

	// Now overrides the cycle clock. Zero means the current time in the
	// tracker timezone.
	Now time.Time
}

// Validate validates the command.
func (c RunTrackingCommand) Validate() error {
	switch c.Trigger {
	case "", TriggerManual, TriggerSchedule, TriggerWatch:
		return nil
	default:
		return fmt.Errorf("run_tracking: unknown trigger %q", c.Trigger)
	}
}

// TrackingResult contains the result of one tracking cycle.
type TrackingResult struct {
	// RunID correlates the cycle's log lines and artifacts.
	RunID string

	// Trigger is what started the cycle.
	Trigger Trigger

	// FromArchive is true when activity came from an archived snapshot
	// instead of a live fetch, either by request or as a fallback.
	FromArchive bool

	// FetchedAt is when the activity data was originally obtained.
	FetchedAt time.Time

	// RawRecords is how many records the acquisition stage produced.
	RawRecords int

	// Sessions is how many records normalized into lessons.
	Sessions int

	// SkippedRecords counts malformed records dropped by the parser and
	// the normalizer together.
	SkippedRecords int

	// NewLessons is how many fresh lessons were credited this cycle.
	NewLessons int

	// DayPhase says whether the cycle crossed a day boundary.
	DayPhase tracking.DayPhase

	// Snapshot holds the computed progress metrics.
	Snapshot *progress.Snapshot

	// Notified is whether a notification was delivered.
	Notified bool

	// NotifyReason explains the notification outcome.
	NotifyReason string

	// StartedAt is the domain clock the cycle ran against.
	StartedAt time.Time

	// Duration is the wall time the cycle took.
	Duration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// Consumer-side interfaces; the concrete feed, state, report and notify types
// satisfy them as-is, tests substitute fakes.
// ══════════════════════════════════════════════════════════════════════════════

// FeedSource fetches the raw activity page.
type FeedSource interface {
	FetchRaw(ctx context.Context) ([]byte, error)
}

// PageParser extracts raw activity records from fetched page text.
type PageParser interface {
	Parse(page []byte) (*feed.ParseResult, error)
}

// SnapshotArchive persists fetched records and replays the newest snapshot.
type SnapshotArchive interface {
	Store(records []session.RawRecord, fetchedAt time.Time) (string, error)
	Latest() ([]session.RawRecord, time.Time, error)
}

// StateStore loads and saves the durable tracker state.
type StateStore interface {
	Load() (*tracking.State, error)
	Save(st *tracking.State) error
}

// RunLock serializes cycles. Acquire fails fast when another run is
// mid-flight instead of waiting.
type RunLock interface {
	Acquire() error
	Release() error
}

// ReportWriter refreshes the progress report from a snapshot.
type ReportWriter interface {
	Update(snap *progress.Snapshot) error
}

// Notifier decides and delivers the end-of-cycle notification. The decision
// may stamp the throttle timestamp on the state, which the cycle persists
// afterwards.
type Notifier interface {
	Notify(ctx context.Context, st *tracking.State, snap *progress.Snapshot, newActivity bool, now time.Time) notify.Outcome
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RunTrackingHandler handles the RunTrackingCommand.
type RunTrackingHandler struct {
	source   FeedSource
	parser   PageParser
	archive  SnapshotArchive
	store    StateStore
	lock     RunLock
	report   ReportWriter
	notifier Notifier

	normalizer *session.Normalizer
	classifier *unit.Classifier
	engine     *progress.Engine
	cycle      *tracking.CycleManager

	log *logger.Logger
	loc *time.Location
}

// RunTrackingHandlerConfig contains configuration for the handler.
type RunTrackingHandlerConfig struct {
	// Classifier holds the unit segmentation parameters.
	Classifier unit.Config

	// Engine holds the goal parameters.
	Engine progress.Config

	// NotificationThrottle is the minimum gap between no-news notifications.
	NotificationThrottle time.Duration

	// Timezone is the cycle clock location. Nil means the tracker default.
	Timezone *time.Location

	// Logger for run-scoped logging. Nil means the package default.
	Logger *logger.Logger
}

// DefaultRunTrackingHandlerConfig returns default configuration.
func DefaultRunTrackingHandlerConfig() RunTrackingHandlerConfig {
	return RunTrackingHandlerConfig{
		Classifier:           unit.DefaultConfig(),
		NotificationThrottle: tracking.DefaultNotificationThrottle,
	}
}

// NewRunTrackingHandler creates a new RunTrackingHandler.
func NewRunTrackingHandler(
	source FeedSource,
	parser PageParser,
	archive SnapshotArchive,
	store StateStore,
	lock RunLock,
	report ReportWriter,
	notifier Notifier,
	config RunTrackingHandlerConfig,
) *RunTrackingHandler {
	if config.Timezone == nil {
		config.Timezone = timeutil.Location()
	}
	if config.Logger == nil {
		config.Logger = logger.Default()
	}

	return &RunTrackingHandler{
		source:     source,
		parser:     parser,
		archive:    archive,
		store:      store,
		lock:       lock,
		report:     report,
		notifier:   notifier,
		normalizer: session.NewNormalizer(config.Timezone),
		classifier: unit.NewClassifier(config.Classifier),
		engine:     progress.NewEngine(config.Engine),
		cycle:      tracking.NewCycleManager(config.NotificationThrottle),
		log:        config.Logger,
		loc:        config.Timezone,
	}
}

// Handle executes one tracking cycle.
//
// Every mutation of the tracker state - the day rollover, the lesson credit,
// the notification stamp - lands in one atomic save at the end. A cycle
// cancelled or failed before that save leaves no trace.
func (h *RunTrackingHandler) Handle(ctx context.Context, cmd RunTrackingCommand) (*TrackingResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := cmd.Now
	if now.IsZero() {
		now = time.Now().In(h.loc)
	}
	trigger := cmd.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	runID := uuid.NewString()
	log := h.log.WithRunID(runID)
	wallStart := time.Now()

	result := &TrackingResult{
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: now,
	}

	log.Info("tracking cycle started",
		logger.String("trigger", string(trigger)),
		logger.Bool("offline", cmd.Offline))

	// The lock guards the whole load-compute-save sequence. Held lock means
	// another cycle is mid-flight: abort before touching anything.
	if err := h.lock.Acquire(); err != nil {
		return nil, fmt.Errorf("run_tracking: %w", err)
	}
	defer func() {
		if err := h.lock.Release(); err != nil {
			log.Warn("run lock release failed", logger.Err(err))
		}
	}()

	// Load state and roll the daily cycle before anything is counted.
	st, err := h.store.Load()
	if err != nil {
		return nil, fmt.Errorf("run_tracking: load state: %w", err)
	}
	result.DayPhase = h.cycle.RollDay(st, now)
	if result.DayPhase == tracking.PhaseDayRolledOver {
		log.Info("daily counter rolled over",
			logger.Time("reset_date", st.LastDailyResetDate))
	}

	// Acquire activity records.
	acq, err := h.acquire(ctx, cmd.Offline, now, log)
	if err != nil {
		return nil, err
	}
	result.FromArchive = acq.fromArchive
	result.FetchedAt = acq.fetchedAt
	result.RawRecords = len(acq.records)

	// Rebuild everything from the full record history: normalize, classify,
	// compute. Recomputation from scratch is what makes the cycle idempotent
	// and lets upstream corrections heal old mistakes.
	norm := h.normalizer.Normalize(acq.records)
	cls := h.classifier.Classify(norm.Sessions)

	result.Sessions = len(norm.Sessions)
	result.SkippedRecords = acq.skipped + norm.Skipped
	if result.SkippedRecords > 0 {
		log.Warn("malformed records skipped",
			logger.SkippedRecords(result.SkippedRecords))
	}
	if len(cls.AmbiguousFolds) > 0 {
		log.Warn("ambiguous unit folds",
			logger.Any("units", cls.AmbiguousFolds))
	}

	// Credit fresh lessons. The lifetime counter is the high-water mark of
	// everything seen so far: sessions above it are new.
	newLessons := len(norm.Sessions) - st.TotalLifetimeLessons
	if newLessons < 0 {
		// The feed returned less history than previously seen (trimmed
		// upstream). Credit nothing rather than double count later.
		log.Warn("feed history shrank below lifetime counter",
			logger.Int("sessions", len(norm.Sessions)),
			logger.Int("lifetime_lessons", st.TotalLifetimeLessons))
		newLessons = 0
	}
	st.AddLessons(newLessons)
	result.NewLessons = newLessons

	h.refreshCompletedUnits(st, cls.Units)

	// Compute the snapshot against the rolled, credited state.
	snap := h.engine.Compute(progress.Input{
		Units:    cls.Units,
		Sessions: norm.Sessions,
		State:    st,
		Today:    now,
	})
	snap.SkippedRecords = result.SkippedRecords
	if acq.fromArchive && !cmd.Offline {
		// Live data was substituted with an archived snapshot; the figures
		// may trail reality.
		snap.Confidence = progress.ConfidenceDegraded
	}
	result.Snapshot = &snap

	// Notification first: the throttle stamps the state when it allows, and
	// that stamp must ride the same atomic save as the lesson credit.
	outcome := h.notifier.Notify(ctx, st, &snap, newLessons > 0, now)
	snap.ShouldNotify = outcome.Reason != notify.ReasonQuietHours &&
		outcome.Reason != notify.ReasonThrottled
	result.Notified = outcome.Sent
	result.NotifyReason = outcome.Reason

	// A cancelled cycle stops before the write and leaves no trace.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run_tracking: cancelled before save: %w", err)
	}
	if err := h.store.Save(st); err != nil {
		return nil, fmt.Errorf("run_tracking: save state: %w", err)
	}

	// The report is derived output; a write failure degrades, not fails.
	if err := h.report.Update(&snap); err != nil {
		log.Warn("report update failed", logger.Err(err))
	}

	result.Duration = time.Since(wallStart)
	log.Info("tracking cycle completed",
		logger.Int("new_lessons", result.NewLessons),
		logger.Int("daily_lessons", snap.DailyLessonsCompleted),
		logger.Int("daily_goal", snap.DailyGoalLessons),
		logger.PaceStatus(snap.Pace.String()),
		logger.Bool("notified", result.Notified),
		logger.String("notify_reason", result.NotifyReason),
		logger.Bool("from_archive", result.FromArchive),
		logger.Duration("duration", result.Duration))

	return result, nil
}

// acquisition is what the acquire stage hands the rest of the pipeline.
type acquisition struct {
	records     []session.RawRecord
	fetchedAt   time.Time
	fromArchive bool
	skipped     int
}

// acquire obtains activity records: a live fetch captured into the archive,
// or the newest archived snapshot when offline or when the feed is down.
func (h *RunTrackingHandler) acquire(ctx context.Context, offline bool, now time.Time, log *logger.Logger) (acquisition, error) {
	if offline {
		records, fetchedAt, err := h.archive.Latest()
		if err != nil {
			return acquisition{}, fmt.Errorf("run_tracking: offline replay: %w", err)
		}
		log.Info("replaying archived snapshot",
			logger.Int("records", len(records)),
			logger.Time("fetched_at", fetchedAt))
		return acquisition{records: records, fetchedAt: fetchedAt, fromArchive: true}, nil
	}

	page, err := h.source.FetchRaw(ctx)
	if err == nil {
		parsed, perr := h.parser.Parse(page)
		if perr == nil {
			if _, aerr := h.archive.Store(parsed.Records, now); aerr != nil {
				log.Warn("snapshot archive write failed", logger.Err(aerr))
			}
			return acquisition{
				records:   parsed.Records,
				fetchedAt: now,
				skipped:   parsed.Skipped,
			}, nil
		}
		err = perr
	}

	// The feed being down does not end the cycle: replay the newest
	// archived snapshot and let the confidence degrade instead.
	log.Warn("live fetch failed, falling back to archive", logger.Err(err))
	records, fetchedAt, aerr := h.archive.Latest()
	if aerr != nil {
		log.Error("no archived snapshot to fall back to", logger.Err(aerr))
		return acquisition{}, fmt.Errorf("run_tracking: fetch failed and archive is empty: %w", err)
	}
	return acquisition{records: records, fetchedAt: fetchedAt, fromArchive: true}, nil
}

// refreshCompletedUnits folds the names of closed units into the persisted
// set. Names only accumulate: a unit missing from a shorter feed window
// stays completed.
func (h *RunTrackingHandler) refreshCompletedUnits(st *tracking.State, units []unit.Unit) {
	seen := make(map[string]struct{}, len(st.CompletedUnitNames))
	for _, name := range st.CompletedUnitNames {
		seen[name] = struct{}{}
	}

	changed := false
	for _, u := range units {
		if u.IsOpen || u.Excluded || u.Name == unit.UnassignedUnitName {
			continue
		}
		if _, ok := seen[u.Name]; !ok {
			seen[u.Name] = struct{}{}
			st.CompletedUnitNames = append(st.CompletedUnitNames, u.Name)
			changed = true
		}
	}
	if changed {
		sort.Strings(st.CompletedUnitNames)
	}
}
