package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pacewise/course-tracker/internal/domain/session"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/internal/domain/unit"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

func init() {
	// Day arithmetic must not depend on the host timezone.
	timeutil.SetLocation(time.UTC)
}

var testToday = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		TotalUnits:            100,
		GoalDurationDays:      548,
		TrackingStartDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DailyGoalLessons:      12,
		DefaultLessonsPerUnit: 31,
		PaceWindowDays:        7,
	}
}

func eligibleUnit(name string, lessons int, start time.Time) unit.Unit {
	return unit.Unit{
		Name:               name,
		StartTimestamp:     start,
		LessonCount:        lessons,
		Mode:               unit.ModeLegacy,
		ReliableBoundary:   true,
		EligibleForAverage: true,
	}
}

// lessonsPerDay spreads n sessions per day over the whole trailing window.
func lessonsPerDay(n int) []session.Session {
	var out []session.Session
	for d := 0; d < 7; d++ {
		for i := 0; i < n; i++ {
			out = append(out, session.Session{
				Timestamp: testToday.AddDate(0, 0, -d).Add(time.Duration(i) * time.Minute),
				XPAmount:  20,
			})
		}
	}
	return out
}

func TestEngine_CountsCompletedAndRemaining(t *testing.T) {
	e := NewEngine(testConfig())

	units := []unit.Unit{
		eligibleUnit("Unit A", 10, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		eligibleUnit("Unit B", 14, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		// Pre-start unit is retained for display but never counted.
		eligibleUnit("Old", 20, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
		{Name: "Unit C", IsOpen: true, Mode: unit.ModeLegacy, LessonCount: 4},
	}

	snap := e.Compute(Input{
		Units:    units,
		Sessions: lessonsPerDay(2),
		State:    &tracking.State{},
		Today:    testToday,
	})

	assert.Equal(t, 2, snap.CompletedUnits)
	assert.Equal(t, 98, snap.RemainingUnits)
	assert.InDelta(t, 12.0, snap.LessonsPerUnitAvg, 1e-9)
	assert.False(t, snap.AverageFromDefault)
	assert.InDelta(t, 1176.0, snap.LessonsRemaining, 1e-9)
	assert.Equal(t, 172, snap.DaysElapsed)
	assert.Equal(t, 376, snap.DaysRemaining)
	assert.Equal(t, ConfidenceNormal, snap.Confidence)
}

func TestEngine_FixedRatioUnitsCountButDoNotAverage(t *testing.T) {
	e := NewEngine(testConfig())

	fixed := eligibleUnit("Unit 9", 31, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	fixed.Mode = unit.ModeFixedRatio
	units := []unit.Unit{
		eligibleUnit("Unit A", 10, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		fixed,
	}

	snap := e.Compute(Input{Units: units, Sessions: lessonsPerDay(1), State: &tracking.State{}, Today: testToday})

	assert.Equal(t, 2, snap.CompletedUnits)
	assert.InDelta(t, 10.0, snap.LessonsPerUnitAvg, 1e-9)
}

func TestEngine_DefaultAverageWhenNoEligibleUnits(t *testing.T) {
	e := NewEngine(testConfig())

	units := []unit.Unit{{Name: "Unit A", IsOpen: true, Mode: unit.ModeLegacy}}

	snap := e.Compute(Input{Units: units, Sessions: lessonsPerDay(1), State: &tracking.State{}, Today: testToday})

	assert.Equal(t, 0, snap.CompletedUnits)
	assert.InDelta(t, 31.0, snap.LessonsPerUnitAvg, 1e-9)
	assert.True(t, snap.AverageFromDefault)
	assert.Equal(t, ConfidenceDegraded, snap.Confidence)
}

func TestEngine_RequiredPaceClampsPastDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.TrackingStartDate = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cfg.GoalDurationDays = 10
	e := NewEngine(cfg)

	units := []unit.Unit{eligibleUnit("Unit A", 10, time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC))}

	snap := e.Compute(Input{Units: units, Sessions: lessonsPerDay(1), State: &tracking.State{}, Today: testToday})

	assert.Equal(t, 19, snap.DaysElapsed)
	assert.Equal(t, -9, snap.DaysRemaining)
	// Denominator clamps to one day instead of dividing by zero.
	assert.InDelta(t, snap.LessonsRemaining, snap.RequiredDailyPace, 1e-9)
}

func TestEngine_ActualPaceUsesTrailingWindow(t *testing.T) {
	e := NewEngine(testConfig())

	sessions := lessonsPerDay(2)
	for i := 0; i < 5; i++ {
		// Older than the window, must not count.
		sessions = append(sessions, session.Session{
			Timestamp: testToday.AddDate(0, 0, -10),
			XPAmount:  20,
		})
	}

	snap := e.Compute(Input{Sessions: sessions, State: &tracking.State{}, Today: testToday})

	assert.InDelta(t, 2.0, snap.ActualDailyPace, 1e-9)
	assert.Len(t, snap.Window, 7)
	assert.Equal(t, time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC), snap.Window[0].Date)
	assert.Equal(t, 2, snap.Window[6].Lessons)
}

func TestEngine_OnTrackWhenActualMeetsRequired(t *testing.T) {
	cfg := testConfig()
	cfg.TotalUnits = 1
	e := NewEngine(cfg)

	units := []unit.Unit{eligibleUnit("Unit A", 10, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))}

	snap := e.Compute(Input{Units: units, Sessions: lessonsPerDay(1), State: &tracking.State{}, Today: testToday})

	assert.Equal(t, PaceOnTrack, snap.Pace)
	assert.True(t, snap.OnTrack())
	// Nothing left and a live pace projects completion today, well early.
	assert.True(t, snap.ProjectionDefined)
	assert.Negative(t, snap.MonthsDelta)
}

func TestEngine_ZeroPaceLeavesProjectionUndefined(t *testing.T) {
	e := NewEngine(testConfig())

	units := []unit.Unit{eligibleUnit("Unit A", 10, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))}

	snap := e.Compute(Input{Units: units, State: &tracking.State{}, Today: testToday})

	assert.InDelta(t, 0.0, snap.ActualDailyPace, 1e-9)
	assert.False(t, snap.ProjectionDefined)
	assert.True(t, snap.ProjectedCompletion.IsZero())
	assert.Equal(t, PaceBehind, snap.Pace)
	assert.Equal(t, ConfidenceDegraded, snap.Confidence)
}

func TestEngine_ProjectionFromActualPace(t *testing.T) {
	cfg := testConfig()
	cfg.TotalUnits = 10
	cfg.TrackingStartDate = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cfg.GoalDurationDays = 100
	e := NewEngine(cfg)

	units := []unit.Unit{eligibleUnit("Unit A", 30, time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC))}

	snap := e.Compute(Input{Units: units, Sessions: lessonsPerDay(3), State: &tracking.State{}, Today: testToday})

	// 9 units x 30 lessons at 3 lessons/day is 90 days out.
	assert.InDelta(t, 3.0, snap.ActualDailyPace, 1e-9)
	assert.True(t, snap.ProjectionDefined)
	assert.Equal(t, time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC), snap.ProjectedCompletion)
	// Goal deadline is 2026-11-09: nine days late.
	assert.InDelta(t, 9.0/DaysPerMonth, snap.MonthsDelta, 1e-9)
}

func TestEngine_StateRecoveryDegradesConfidence(t *testing.T) {
	e := NewEngine(testConfig())

	units := []unit.Unit{eligibleUnit("Unit A", 10, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))}
	st := &tracking.State{RecoveredFromBackup: true}

	snap := e.Compute(Input{Units: units, Sessions: lessonsPerDay(2), State: st, Today: testToday})

	assert.Equal(t, ConfidenceDegraded, snap.Confidence)
}

func TestEngine_ReadsDailyCountersFromState(t *testing.T) {
	e := NewEngine(testConfig())

	st := &tracking.State{DailyLessonsCompleted: 5, TotalLifetimeLessons: 1234}

	snap := e.Compute(Input{State: st, Sessions: lessonsPerDay(1), Today: testToday})

	assert.Equal(t, 5, snap.DailyLessonsCompleted)
	assert.Equal(t, 12, snap.DailyGoalLessons)
	assert.Equal(t, 1234, snap.TotalLifetimeLessons)
	assert.Equal(t, 7, snap.DailyRemaining())
	assert.False(t, snap.DailyGoalMet())
}

func TestEngine_IdempotentOnIdenticalInputs(t *testing.T) {
	e := NewEngine(testConfig())

	units := []unit.Unit{
		eligibleUnit("Unit A", 10, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		eligibleUnit("Unit B", 14, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
	}
	in := Input{Units: units, Sessions: lessonsPerDay(2), State: &tracking.State{DailyLessonsCompleted: 3}, Today: testToday}

	assert.Equal(t, e.Compute(in), e.Compute(in))
}

func TestSnapshot_DailyGoalMet(t *testing.T) {
	snap := Snapshot{DailyGoalLessons: 12, DailyLessonsCompleted: 12}

	assert.True(t, snap.DailyGoalMet())
	assert.Equal(t, 0, snap.DailyRemaining())
}
