package state

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

func init() {
	timeutil.SetLocation(time.UTC)
}

// fakeClock advances one second per call so every backup gets a unique stamp.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker_state.json")
	clock := &fakeClock{t: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)}
	s, err := NewStore(Config{
		Path:                 path,
		BackupKeep:           5,
		DefaultTrackingStart: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:                clock.Now,
	})
	assert.NoError(t, err)
	return s, path
}

func validState() *tracking.State {
	return &tracking.State{
		SchemaVersion:             tracking.SchemaVersion,
		TrackingStartDate:         time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		CompletedUnitNames:        []string{"Greetings", "Food"},
		DailyLessonsCompleted:     4,
		LastDailyResetDate:        time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		LastNotificationTimestamp: time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
		TotalLifetimeLessons:      1207,
		CreatedAt:                 time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}
}

func TestStore_LoadMissingFileReturnsFreshDefault(t *testing.T) {
	s, _ := newTestStore(t)

	st, err := s.Load()

	assert.NoError(t, err)
	assert.True(t, st.RecoveredFromDefault)
	assert.False(t, st.RecoveredFromBackup)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), st.TrackingStartDate)
	assert.Equal(t, tracking.SchemaVersion, st.SchemaVersion)
	assert.True(t, st.IsValid())
}

func TestStore_SaveThenLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	orig := validState()

	assert.NoError(t, s.Save(orig))
	st, err := s.Load()

	assert.NoError(t, err)
	assert.False(t, st.RecoveredFromDefault)
	assert.False(t, st.RecoveredFromBackup)
	assert.Equal(t, orig.TrackingStartDate, st.TrackingStartDate)
	assert.Equal(t, orig.CompletedUnitNames, st.CompletedUnitNames)
	assert.Equal(t, orig.DailyLessonsCompleted, st.DailyLessonsCompleted)
	assert.Equal(t, orig.LastDailyResetDate, st.LastDailyResetDate)
	assert.Equal(t, orig.LastNotificationTimestamp, st.LastNotificationTimestamp)
	assert.Equal(t, orig.TotalLifetimeLessons, st.TotalLifetimeLessons)
	assert.Equal(t, orig.CreatedAt, st.CreatedAt)
}

func TestStore_SaveRefusesInvalidState(t *testing.T) {
	s, path := newTestStore(t)
	bad := validState()
	bad.DailyLessonsCompleted = -1

	err := s.Save(bad)

	assert.ErrorIs(t, err, shared.ErrStateInvalid)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_LoadCorruptFileFallsBackToNewestValidBackup(t *testing.T) {
	s, path := newTestStore(t)

	first := validState()
	first.DailyLessonsCompleted = 1
	assert.NoError(t, s.Save(first))

	second := validState()
	second.DailyLessonsCompleted = 2
	assert.NoError(t, s.Save(second)) // backs up the first

	assert.NoError(t, os.WriteFile(path, []byte("{{{ not json"), 0o644))

	st, err := s.Load()

	assert.NoError(t, err)
	assert.True(t, st.RecoveredFromBackup)
	assert.Equal(t, 1, st.DailyLessonsCompleted)
}

func TestStore_LoadCorruptEverythingFallsBackToDefault(t *testing.T) {
	s, path := newTestStore(t)

	assert.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
	assert.NoError(t, os.WriteFile(path+".backup_20260819_100000", []byte("also garbage"), 0o644))

	st, err := s.Load()

	assert.NoError(t, err)
	assert.True(t, st.RecoveredFromDefault)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), st.TrackingStartDate)
}

func TestStore_KeepsAtMostConfiguredBackups(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 8; i++ {
		st := validState()
		st.DailyLessonsCompleted = i
		assert.NoError(t, s.Save(st))
	}

	backups := s.Backups()
	// 7 saves found an existing file to back up; only 5 survive.
	assert.Len(t, backups, 5)
	// Newest first.
	assert.Greater(t, backups[0], backups[len(backups)-1])
}

func TestStore_MigratesUnversionedDocument(t *testing.T) {
	s, path := newTestStore(t)
	legacy := `{
  "tracking_start_date": "2026-01-05",
  "completed_unit_names": ["Greetings"],
  "daily_lessons_completed": 3,
  "last_daily_reset_date": "2026-08-19",
  "total_lifetime_lessons": 50
}`
	assert.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	st, err := s.Load()

	assert.NoError(t, err)
	assert.False(t, st.RecoveredFromDefault)
	assert.Equal(t, tracking.SchemaVersion, st.SchemaVersion)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), st.TrackingStartDate)
	assert.Equal(t, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), st.LastDailyResetDate)
	assert.Equal(t, 3, st.DailyLessonsCompleted)
	assert.Contains(t, st.MigrationHistory, "stamped unversioned document as 1.0")
	assert.Contains(t, st.MigrationHistory, "1.0 -> 1.1")
}

func TestStore_CorruptNotificationStampMeansNeverNotified(t *testing.T) {
	s, path := newTestStore(t)
	doc := `{
  "schema_version": "1.1",
  "tracking_start_date": "2026-01-05T00:00:00",
  "daily_lessons_completed": 2,
  "total_lifetime_lessons": 10,
  "last_notification_timestamp": "garbage"
}`
	assert.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	st, err := s.Load()

	assert.NoError(t, err)
	assert.False(t, st.RecoveredFromBackup)
	assert.False(t, st.RecoveredFromDefault)
	assert.True(t, st.LastNotificationTimestamp.IsZero())
}

func TestStore_UnknownSchemaVersionTriggersRecovery(t *testing.T) {
	s, path := newTestStore(t)
	doc := `{"schema_version": "9.9", "tracking_start_date": "2026-01-05T00:00:00"}`
	assert.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	st, err := s.Load()

	assert.NoError(t, err)
	assert.True(t, st.RecoveredFromDefault)
}

func TestStore_CheckWritable(t *testing.T) {
	s, _ := newTestStore(t)

	assert.NoError(t, s.CheckWritable())
}

func TestStore_SaveIsAtomic(t *testing.T) {
	s, path := newTestStore(t)

	assert.NoError(t, s.Save(validState()))

	// No temp leftovers next to the state file.
	entries, err := os.ReadDir(filepath.Dir(path))
	assert.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}
