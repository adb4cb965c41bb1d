package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCycleManager_RollDay_ResetsCounterOnNewDay(t *testing.T) {
	m := NewCycleManager(0)
	st := &State{
		SchemaVersion:         SchemaVersion,
		TrackingStartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DailyLessonsCompleted: 7,
		LastDailyResetDate:    time.Date(2026, 8, 19, 0, 0, 0, 0, time.Local),
	}
	now := time.Date(2026, 8, 20, 6, 30, 0, 0, time.Local)

	phase := m.RollDay(st, now)

	assert.Equal(t, PhaseDayRolledOver, phase)
	// Счётчик и дата сброса меняются вместе, не порознь.
	assert.Equal(t, 0, st.DailyLessonsCompleted)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.Local), st.LastDailyResetDate)
}

func TestCycleManager_RollDay_WithinDayKeepsCounter(t *testing.T) {
	m := NewCycleManager(0)
	st := &State{
		DailyLessonsCompleted: 7,
		LastDailyResetDate:    time.Date(2026, 8, 20, 0, 0, 0, 0, time.Local),
	}
	now := time.Date(2026, 8, 20, 21, 0, 0, 0, time.Local)

	phase := m.RollDay(st, now)

	assert.Equal(t, PhaseWithinDay, phase)
	assert.Equal(t, 7, st.DailyLessonsCompleted)
}

func TestCycleManager_RollDay_FreshStateRollsOver(t *testing.T) {
	m := NewCycleManager(0)
	st := NewDefaultState(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Now())
	now := time.Date(2026, 8, 20, 6, 0, 0, 0, time.Local)

	phase := m.RollDay(st, now)

	assert.Equal(t, PhaseDayRolledOver, phase)
	assert.False(t, st.LastDailyResetDate.IsZero())
}

func TestCycleManager_ShouldNotify_NewActivityAlwaysNotifies(t *testing.T) {
	m := NewCycleManager(150 * time.Minute)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &State{LastNotificationTimestamp: now.Add(-time.Minute)}

	ok := m.ShouldNotify(st, true, now)

	assert.True(t, ok)
	assert.Equal(t, now, st.LastNotificationTimestamp)
}

func TestCycleManager_ShouldNotify_SuppressedWithinThrottle(t *testing.T) {
	m := NewCycleManager(150 * time.Minute)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)
	st := &State{LastNotificationTimestamp: last}

	ok := m.ShouldNotify(st, false, now)

	assert.False(t, ok)
	// Отметка не трогается при подавлении.
	assert.Equal(t, last, st.LastNotificationTimestamp)
}

func TestCycleManager_ShouldNotify_AllowedAfterThrottle(t *testing.T) {
	m := NewCycleManager(150 * time.Minute)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &State{LastNotificationTimestamp: now.Add(-3 * time.Hour)}

	ok := m.ShouldNotify(st, false, now)

	assert.True(t, ok)
	assert.Equal(t, now, st.LastNotificationTimestamp)
}

func TestCycleManager_ShouldNotify_ExactThrottleBoundaryStillSuppressed(t *testing.T) {
	m := NewCycleManager(150 * time.Minute)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &State{LastNotificationTimestamp: now.Add(-150 * time.Minute)}

	ok := m.ShouldNotify(st, false, now)

	assert.False(t, ok)
}

func TestCycleManager_ShouldNotify_ZeroTimestampMeansNeverNotified(t *testing.T) {
	m := NewCycleManager(150 * time.Minute)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &State{}

	ok := m.ShouldNotify(st, false, now)

	assert.True(t, ok)
	assert.Equal(t, now, st.LastNotificationTimestamp)
}

func TestCycleManager_DefaultThrottle(t *testing.T) {
	m := NewCycleManager(0)

	assert.Equal(t, DefaultNotificationThrottle, m.Throttle())
}
