package progress

import (
	"math"
	"time"

	"github.com/pacewise/course-tracker/internal/domain/session"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/internal/domain/unit"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE CONFIG
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DaysPerMonth converts day deltas to fractional months.
	DaysPerMonth = 30.44

	// DefaultPaceWindowDays is the trailing window for the actual pace.
	DefaultPaceWindowDays = 7
)

// Config holds the goal parameters the engine computes against.
type Config struct {
	// TotalUnits is the course size.
	TotalUnits int

	// GoalDurationDays is the length of the goal period.
	GoalDurationDays int

	// TrackingStartDate anchors the goal. Units and days before it do not
	// count.
	TrackingStartDate time.Time

	// DailyGoalLessons is the per-day lesson target.
	DailyGoalLessons int

	// DefaultLessonsPerUnit substitutes the mean when no completed unit
	// qualifies for averaging.
	DefaultLessonsPerUnit float64

	// PaceWindowDays is the trailing window length for the actual pace.
	PaceWindowDays int
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine derives progress metrics from classified units and session history.
//
// Degenerate math never fails a run: divisions clamp their denominators,
// an empty averaging set falls back to the configured default, and a zero
// actual pace leaves the projection undefined. Every substitution degrades
// the snapshot's confidence instead of raising an error.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine, normalizing the configuration.
func NewEngine(cfg Config) *Engine {
	if cfg.PaceWindowDays < 1 {
		cfg.PaceWindowDays = DefaultPaceWindowDays
	}
	if cfg.DefaultLessonsPerUnit <= 0 {
		cfg.DefaultLessonsPerUnit = 1
	}
	return &Engine{cfg: cfg}
}

// Input carries everything one computation needs. The engine reads it and
// touches nothing else: no clock, no filesystem, no stored state.
type Input struct {
	// Units from the boundary classifier, chronological.
	Units []unit.Unit

	// Sessions is the full normalized history, used for pace windows.
	Sessions []session.Session

	// State is the persisted tracker state, already rolled for the day.
	State *tracking.State

	// Today anchors all day arithmetic.
	Today time.Time
}

// Compute produces a snapshot of all progress metrics. Identical inputs
// produce identical snapshots.
func (e *Engine) Compute(in Input) Snapshot {
	st := in.State
	if st == nil {
		st = &tracking.State{}
	}

	completed := 0
	var sizes []float64
	for _, u := range in.Units {
		if !u.EligibleForAverage {
			continue
		}
		if !e.cfg.TrackingStartDate.IsZero() && u.StartTimestamp.Before(e.cfg.TrackingStartDate) {
			continue
		}
		completed++
		// Fixed-ratio units have configured sizes and carry no information
		// about how big a unit really is. Only legacy units enter the mean.
		if u.Mode == unit.ModeLegacy {
			sizes = append(sizes, float64(u.LessonCount))
		}
	}

	avg := e.cfg.DefaultLessonsPerUnit
	fromDefault := true
	if len(sizes) > 0 {
		sum := 0.0
		for _, v := range sizes {
			sum += v
		}
		avg = sum / float64(len(sizes))
		fromDefault = false
	}

	remaining := e.cfg.TotalUnits - completed
	if remaining < 0 {
		remaining = 0
	}
	lessonsRemaining := float64(remaining) * avg

	daysElapsed := timeutil.DaysBetween(e.cfg.TrackingStartDate, in.Today)
	daysRemaining := e.cfg.GoalDurationDays - daysElapsed

	paceDays := daysRemaining
	if paceDays < 1 {
		paceDays = 1
	}
	required := lessonsRemaining / float64(paceDays)

	window, windowTotal := e.windowSeries(in.Sessions, in.Today)
	actual := float64(windowTotal) / float64(e.cfg.PaceWindowDays)

	pace := PaceBehind
	if actual >= required {
		pace = PaceOnTrack
	}

	var projected time.Time
	defined := false
	monthsDelta := 0.0
	if actual > 0 {
		daysToFinish := int(math.Ceil(lessonsRemaining / actual))
		projected = timeutil.StartOfDay(in.Today).AddDate(0, 0, daysToFinish)
		defined = true

		goalEnd := timeutil.StartOfDay(e.cfg.TrackingStartDate).AddDate(0, 0, e.cfg.GoalDurationDays)
		monthsDelta = float64(timeutil.DaysBetween(goalEnd, projected)) / DaysPerMonth
	}

	confidence := ConfidenceNormal
	if fromDefault || !defined || st.RecoveredFromBackup || st.RecoveredFromDefault {
		confidence = ConfidenceDegraded
	}

	return Snapshot{
		GeneratedFor:          in.Today,
		CompletedUnits:        completed,
		TotalUnits:            e.cfg.TotalUnits,
		LessonsPerUnitAvg:     avg,
		AverageFromDefault:    fromDefault,
		RemainingUnits:        remaining,
		LessonsRemaining:      lessonsRemaining,
		DaysElapsed:           daysElapsed,
		DaysRemaining:         daysRemaining,
		RequiredDailyPace:     required,
		ActualDailyPace:       actual,
		Pace:                  pace,
		ProjectedCompletion:   projected,
		ProjectionDefined:     defined,
		MonthsDelta:           monthsDelta,
		DailyLessonsCompleted: st.DailyLessonsCompleted,
		DailyGoalLessons:      e.cfg.DailyGoalLessons,
		TotalLifetimeLessons:  st.TotalLifetimeLessons,
		Window:                window,
		Confidence:            confidence,
	}
}

// windowSeries counts lessons per day over the trailing window, oldest day
// first, and returns the series with its total.
func (e *Engine) windowSeries(sessions []session.Session, today time.Time) ([]DayLessons, int) {
	days := e.cfg.PaceWindowDays
	start := timeutil.WindowStart(today, days)
	end := timeutil.EndOfDay(today)

	counts := make([]int, days)
	total := 0
	for _, s := range sessions {
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		idx := timeutil.DaysBetween(start, s.Timestamp)
		if idx < 0 || idx >= days {
			continue
		}
		counts[idx]++
		total++
	}

	series := make([]DayLessons, days)
	for i := range counts {
		series[i] = DayLessons{
			Date:    start.AddDate(0, 0, i),
			Lessons: counts[i],
		}
	}
	return series, total
}
