package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// setRequired sets the minimum environment a valid configuration needs and
// neutralizes generic variables a host shell might carry.
func setRequired(t *testing.T) {
	t.Helper()

	t.Setenv("GOAL_TRACKING_START_DATE", "2026-08-01")
	t.Setenv("FEED_USERNAME", "pacewise")
	t.Setenv("FEED_BASE_URL", "https://example.test/profile")

	for _, key := range []string{
		"APP_NAME", "APP_ENV", "APP_DEBUG", "APP_VERSION", "APP_TIMEZONE",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()

	assert.NoError(t, err)
	assert.Equal(t, "course-tracker", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)

	assert.Equal(t, 272, cfg.Course.TotalUnits)
	assert.Equal(t, 31.0, cfg.Course.BaseLessonsPerUnit)
	assert.Equal(t, 7.5, cfg.Course.MinutesPerLesson)
	assert.Equal(t, 8, cfg.Course.SmallUnitFoldThreshold)
	assert.True(t, cfg.Course.ModeTransitionDate.IsZero())

	assert.Equal(t, 548, cfg.Goal.DurationDays)
	assert.Equal(t, 12, cfg.Goal.DailyLessonTarget)
	assert.Equal(t, "2026-08-01", cfg.Goal.TrackingStartDate.Format("2006-01-02"))

	assert.Equal(t, 20*time.Second, cfg.Feed.MinRequestInterval)
	assert.Equal(t, 3, cfg.Feed.MaxRetries)
	assert.Equal(t, 3, cfg.Feed.CircuitBreakerThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Feed.CircuitBreakerTimeout)

	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, 10, cfg.Storage.ArchiveKeep)
	assert.Equal(t, 5, cfg.Storage.BackupKeep)

	assert.True(t, cfg.Notify.Enabled)
	assert.True(t, cfg.Notify.DesktopEnabled)
	assert.True(t, cfg.Notify.RespectQuietHours)
	assert.Equal(t, 150*time.Minute, cfg.Notify.ThrottleInterval)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.TrackInterval)
	assert.Equal(t, "30 3 * * *", cfg.Scheduler.CleanupCron)

	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoad_MissingUsernameFails(t *testing.T) {
	setRequired(t)
	t.Setenv("FEED_USERNAME", "")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "FEED_USERNAME")
}

func TestLoad_MissingTrackingStartFails(t *testing.T) {
	setRequired(t)
	t.Setenv("GOAL_TRACKING_START_DATE", "")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GOAL_TRACKING_START_DATE")
}

func TestLoad_OfflineOnlySkipsBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("FEED_BASE_URL", "")
	t.Setenv("FEED_OFFLINE_ONLY", "true")

	cfg, err := Load()

	assert.NoError(t, err)
	assert.True(t, cfg.Feed.OfflineOnly)
}

func TestLoad_PushoverRequiresCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("NOTIFY_PUSHOVER_ENABLED", "true")
	t.Setenv("NOTIFY_PUSHOVER_TOKEN", "")
	t.Setenv("NOTIFY_PUSHOVER_USER", "")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFY_PUSHOVER_TOKEN")
}

func TestLoad_UnparsableValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("COURSE_TOTAL_UNITS", "many")
	t.Setenv("SCHEDULER_TRACK_INTERVAL", "soon")

	cfg, err := Load()

	assert.NoError(t, err)
	assert.Equal(t, 272, cfg.Course.TotalUnits)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.TrackInterval)
}

func TestLoad_ProductionDisablesDebug(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()

	assert.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.App.Debug)
}

func TestLoad_DebugFlagOverridesProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_DEBUG", "true")

	cfg, err := Load()

	assert.NoError(t, err)
	assert.True(t, cfg.App.Debug)
}

func TestLoad_TimezoneAnchorsDates(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_TIMEZONE", "UTC")

	cfg, err := Load()

	assert.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), cfg.Goal.TrackingStartDate)
}

func TestLoad_CoursePlanOverridesTotals(t *testing.T) {
	setRequired(t)

	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	plan := `course: French
sections:
  - name: Section 1
    units: 10
  - name: Section 2
    units: 15
excluded_units:
  - Music
  - Math
`
	assert.NoError(t, os.WriteFile(planPath, []byte(plan), 0o644))
	t.Setenv("COURSE_PLAN_PATH", planPath)

	cfg, err := Load()

	assert.NoError(t, err)
	assert.Equal(t, 25, cfg.Course.TotalUnits)
	assert.NotNil(t, cfg.Course.Plan)
	assert.True(t, cfg.Course.Plan.IsExcluded("music"))
	assert.True(t, cfg.Course.Plan.IsExcluded("MATH"))
	assert.False(t, cfg.Course.Plan.IsExcluded("Greetings"))
}

func TestLoad_MissingCoursePlanFails(t *testing.T) {
	setRequired(t)
	t.Setenv("COURSE_PLAN_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "course plan")
}

func TestStorageConfig_Paths(t *testing.T) {
	s := StorageConfig{DataDir: "/var/lib/tracker", StateFile: "state.json"}

	assert.Equal(t, filepath.Join("/var/lib/tracker", "state.json"), s.StatePath())
	assert.Equal(t, filepath.Join("/var/lib/tracker", "state.json.lock"), s.LockPath())
	assert.Equal(t, filepath.Join("/var/lib/tracker", "archive"), s.ArchiveDir())
}

func TestLoadCoursePlan_ExplicitTotalWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := `course: French
total_units: 200
sections:
  - name: Section 1
    units: 10
`
	assert.NoError(t, os.WriteFile(path, []byte(plan), 0o644))

	loaded, err := LoadCoursePlan(path)

	assert.NoError(t, err)
	assert.Equal(t, 200, loaded.TotalUnits)
}

func TestLoadCoursePlan_NegativeSectionRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := `sections:
  - name: Broken
    units: -3
`
	assert.NoError(t, os.WriteFile(path, []byte(plan), 0o644))

	_, err := LoadCoursePlan(path)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "negative units")
}

func TestCoursePlan_ExcludedSetLowercasesAndHandlesNil(t *testing.T) {
	plan := &CoursePlan{ExcludedUnits: []string{"Music", "MATH"}}

	set := plan.ExcludedSet()
	assert.Contains(t, set, "music")
	assert.Contains(t, set, "math")

	var nilPlan *CoursePlan
	assert.NotNil(t, nilPlan.ExcludedSet())
	assert.Empty(t, nilPlan.ExcludedSet())
	assert.False(t, nilPlan.IsExcluded("anything"))
}
