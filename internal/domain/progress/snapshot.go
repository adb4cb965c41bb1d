// Package progress computes goal-tracking metrics from classified units.
// The engine is a pure function: identical inputs always produce an
// identical snapshot, so re-running the pipeline is safe and cheap.
package progress

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// PACE STATUS
// ══════════════════════════════════════════════════════════════════════════════

// PaceStatus compares the actual daily pace against the required one.
type PaceStatus string

const (
	// PaceOnTrack means the trailing pace meets or beats the required pace.
	PaceOnTrack PaceStatus = "ON_TRACK"

	// PaceBehind means the trailing pace is below the required pace.
	PaceBehind PaceStatus = "BEHIND"
)

// IsValid checks the status value.
func (p PaceStatus) IsValid() bool {
	return p == PaceOnTrack || p == PaceBehind
}

// String returns the status as a string.
func (p PaceStatus) String() string {
	return string(p)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIDENCE
// ══════════════════════════════════════════════════════════════════════════════

// Confidence marks whether sentinel substitutions happened during the
// computation. Degenerate inputs (no eligible units, zero recent activity,
// state recovered from backup) never fail the run, they degrade it.
type Confidence string

const (
	ConfidenceNormal   Confidence = "normal"
	ConfidenceDegraded Confidence = "degraded"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// DayLessons is one day of the trailing activity window.
type DayLessons struct {
	Date    time.Time
	Lessons int
}

// Snapshot is the full set of progress metrics for one run.
type Snapshot struct {
	// GeneratedFor is the "today" the metrics were computed against.
	GeneratedFor time.Time

	// CompletedUnits counts closed, reliably bounded units since the
	// tracking start date.
	CompletedUnits int

	// TotalUnits is the course size in units.
	TotalUnits int

	// LessonsPerUnitAvg is the mean size of completed units, or the
	// configured default when no unit qualifies.
	LessonsPerUnitAvg float64

	// AverageFromDefault marks that LessonsPerUnitAvg is the configured
	// fallback, not an observed mean.
	AverageFromDefault bool

	// RemainingUnits is how many units are left, never negative.
	RemainingUnits int

	// LessonsRemaining estimates the lessons left to the end of the course.
	LessonsRemaining float64

	// DaysElapsed since the tracking start date. Negative before it.
	DaysElapsed int

	// DaysRemaining until the goal deadline. Negative past it.
	DaysRemaining int

	// RequiredDailyPace is the lessons per day needed to finish on time.
	RequiredDailyPace float64

	// ActualDailyPace is the trailing-window average of lessons per day.
	ActualDailyPace float64

	// Pace compares actual against required.
	Pace PaceStatus

	// ProjectedCompletion extrapolates the finish date from the actual
	// pace. Meaningless unless ProjectionDefined.
	ProjectedCompletion time.Time

	// ProjectionDefined is false when the actual pace is zero and no
	// projection exists.
	ProjectionDefined bool

	// MonthsDelta is the signed distance between the projected finish and
	// the goal deadline, in fractional months. Negative means early.
	MonthsDelta float64

	// DailyLessonsCompleted is today's counter from the persisted state.
	DailyLessonsCompleted int

	// DailyGoalLessons is the configured daily target.
	DailyGoalLessons int

	// TotalLifetimeLessons from the persisted state.
	TotalLifetimeLessons int

	// Window is the trailing per-day lesson series, oldest day first.
	Window []DayLessons

	// Confidence is degraded when any sentinel substitution happened.
	Confidence Confidence

	// SkippedRecords counts malformed feed records dropped upstream.
	// Filled by the run pipeline, not the engine.
	SkippedRecords int

	// ShouldNotify records the cycle's notification verdict: the decision
	// chain found a notification warranted, whether or not delivery then
	// succeeded. Filled by the run pipeline, not the engine.
	ShouldNotify bool
}

// OnTrack reports whether the snapshot says the learner keeps the pace.
func (s Snapshot) OnTrack() bool {
	return s.Pace == PaceOnTrack
}

// DailyGoalMet reports whether today's target is already reached.
func (s Snapshot) DailyGoalMet() bool {
	return s.DailyGoalLessons > 0 && s.DailyLessonsCompleted >= s.DailyGoalLessons
}

// DailyRemaining returns the lessons still to do today, never negative.
func (s Snapshot) DailyRemaining() int {
	r := s.DailyGoalLessons - s.DailyLessonsCompleted
	if r < 0 {
		return 0
	}
	return r
}
