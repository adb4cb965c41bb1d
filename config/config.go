package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Course shape and classification knobs
	Course CourseConfig

	// Goal window and daily target
	Goal GoalConfig

	// Activity feed acquisition
	Feed FeedConfig

	// State, archive, and report locations
	Storage StorageConfig

	// Notification delivery
	Notify NotifyConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Observability
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Timezone the learner's day rolls over in (default: host local)
	Timezone string
	Location *time.Location

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// CourseConfig holds the course shape and classification constants.
type CourseConfig struct {
	// Total units in the course outline
	TotalUnits int

	// Fixed lessons-per-unit ratio; also the averaging fallback when no
	// completed unit is eligible yet
	BaseLessonsPerUnit float64

	// Minutes per lesson, for the time/day estimate in reports
	MinutesPerLesson float64

	// Units smaller than this fold into their predecessor
	SmallUnitFoldThreshold int

	// Date the course switched from label-based unit detection to the
	// fixed lessons-per-unit regime; zero disables the switch
	ModeTransitionDate time.Time

	// Units starting before this date are excluded from averaging;
	// zero means no cutoff
	AveragingCutoffDate time.Time

	// Optional YAML course plan (section layout, excluded unit names)
	PlanPath string
	Plan     *CoursePlan
}

// GoalConfig holds the goal window and daily target.
type GoalConfig struct {
	// Goal window length in days
	DurationDays int

	// Activity before this date never contributes to progress arithmetic
	TrackingStartDate time.Time

	// Lessons per day the learner aims for
	DailyLessonTarget int
}

// FeedConfig holds activity-feed acquisition settings.
type FeedConfig struct {
	// Base URL of the course platform's public profile pages
	BaseURL string

	// Profile name whose activity feed is tracked
	Username string

	// Skip fetching entirely and replay the newest archived snapshot
	OfflineOnly bool

	// Politeness limits (the feed is a scraped page)
	MinRequestInterval time.Duration
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration

	// Circuit breaker settings
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // time before half-open
	CircuitBreakerHalfOpenMax int           // max requests in half-open
}

// StorageConfig holds filesystem locations for state, archives, and reports.
type StorageConfig struct {
	// Directory for state, lock, backups, and archived feed snapshots
	DataDir string

	// State record file name inside DataDir
	StateFile string

	// Markdown progress report path
	ReportPath string

	// How many archived feed snapshots to keep
	ArchiveKeep int

	// How many state backups to keep
	BackupKeep int

	// A lock older than this is presumed abandoned and taken over
	LockStaleAfter time.Duration
}

// StatePath returns the full path of the durable state record.
func (s StorageConfig) StatePath() string {
	return filepath.Join(s.DataDir, s.StateFile)
}

// LockPath returns the full path of the advisory run lock.
func (s StorageConfig) LockPath() string {
	return filepath.Join(s.DataDir, s.StateFile+".lock")
}

// ArchiveDir returns the directory holding archived feed snapshots.
func (s StorageConfig) ArchiveDir() string {
	return filepath.Join(s.DataDir, "archive")
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	Enabled bool

	// Pushover channel
	PushoverEnabled bool
	PushoverToken   string
	PushoverUser    string

	// Local desktop channel
	DesktopEnabled bool

	// Minimum gap between notifications when nothing new happened
	ThrottleInterval time.Duration

	// Suppress delivery at night regardless of throttle verdict
	RespectQuietHours bool
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	// Enable/disable the daemon scheduler
	Enabled bool

	// Job schedules
	TrackInterval time.Duration // full tracking pass
	CleanupCron   string        // archive pruning, five-field cron expression

	// React to new feed snapshots landing in the data directory
	WatchEnabled  bool
	WatchDebounce time.Duration

	// Per-job timeout
	JobTimeout time.Duration
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// Load loads configuration from the environment, with .env discovery first.
func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{}

	cfg.App = loadAppConfig()

	var err error
	cfg.Course, err = loadCourseConfig(cfg.App.Location)
	if err != nil {
		return nil, fmt.Errorf("course config: %w", err)
	}

	cfg.Goal = loadGoalConfig(cfg.App.Location)

	cfg.Feed = loadFeedConfig()
	cfg.Storage = loadStorageConfig()
	cfg.Notify = loadNotifyConfig()
	cfg.Scheduler = loadSchedulerConfig()
	cfg.Observability = loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadDotenv loads the first .env file found on the probe path. Quietly does
// nothing when none exists; explicit environment always wins because godotenv
// never overwrites set variables.
func loadDotenv() {
	for _, path := range dotenvProbePaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// dotenvProbePaths returns candidate .env locations: the working directory,
// its parents (for running from a subdirectory of a checkout), and the user
// config directory.
func dotenvProbePaths() []string {
	var paths []string

	if dir, err := os.Getwd(); err == nil {
		for i := 0; i < 4; i++ {
			paths = append(paths, filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "course-tracker", ".env"))
	}

	return paths
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))
	timezone := getEnv("APP_TIMEZONE", "")

	loc := time.Local
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}

	return AppConfig{
		Name:            getEnv("APP_NAME", "course-tracker"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        timezone,
		Location:        loc,
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadCourseConfig(loc *time.Location) (CourseConfig, error) {
	cfg := CourseConfig{
		TotalUnits:             getEnvInt("COURSE_TOTAL_UNITS", 272),
		BaseLessonsPerUnit:     getEnvFloat("COURSE_BASE_LESSONS_PER_UNIT", 31),
		MinutesPerLesson:       getEnvFloat("COURSE_MINUTES_PER_LESSON", 7.5),
		SmallUnitFoldThreshold: getEnvInt("COURSE_FOLD_THRESHOLD", 8),
		ModeTransitionDate:     getEnvDate("COURSE_MODE_TRANSITION_DATE", loc, time.Time{}),
		AveragingCutoffDate:    getEnvDate("COURSE_AVERAGING_CUTOFF_DATE", loc, time.Time{}),
		PlanPath:               getEnv("COURSE_PLAN_PATH", ""),
	}

	if cfg.PlanPath != "" {
		plan, err := LoadCoursePlan(cfg.PlanPath)
		if err != nil {
			return cfg, err
		}
		cfg.Plan = plan
		if plan.TotalUnits > 0 {
			cfg.TotalUnits = plan.TotalUnits
		}
	}

	return cfg, nil
}

func loadGoalConfig(loc *time.Location) GoalConfig {
	return GoalConfig{
		DurationDays:      getEnvInt("GOAL_DURATION_DAYS", 548),
		TrackingStartDate: getEnvDate("GOAL_TRACKING_START_DATE", loc, time.Time{}),
		DailyLessonTarget: getEnvInt("GOAL_DAILY_LESSON_TARGET", 12),
	}
}

func loadFeedConfig() FeedConfig {
	return FeedConfig{
		BaseURL:                   getEnv("FEED_BASE_URL", ""),
		Username:                  getEnv("FEED_USERNAME", ""),
		OfflineOnly:               getEnvBool("FEED_OFFLINE_ONLY", false),
		MinRequestInterval:        getEnvDuration("FEED_MIN_REQUEST_INTERVAL", 20*time.Second),
		RequestTimeout:            getEnvDuration("FEED_REQUEST_TIMEOUT", 30*time.Second),
		MaxRetries:                getEnvInt("FEED_MAX_RETRIES", 3),
		RetryBaseDelay:            getEnvDuration("FEED_RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxDelay:             getEnvDuration("FEED_RETRY_MAX_DELAY", 30*time.Second),
		CircuitBreakerThreshold:   getEnvInt("FEED_CB_THRESHOLD", 3),
		CircuitBreakerTimeout:     getEnvDuration("FEED_CB_TIMEOUT", 5*time.Minute),
		CircuitBreakerHalfOpenMax: getEnvInt("FEED_CB_HALF_OPEN_MAX", 1),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:        getEnv("STORAGE_DATA_DIR", "data"),
		StateFile:      getEnv("STORAGE_STATE_FILE", "tracker_state.json"),
		ReportPath:     getEnv("STORAGE_REPORT_PATH", "progress.md"),
		ArchiveKeep:    getEnvInt("STORAGE_ARCHIVE_KEEP", 10),
		BackupKeep:     getEnvInt("STORAGE_BACKUP_KEEP", 5),
		LockStaleAfter: getEnvDuration("STORAGE_LOCK_STALE_AFTER", 2*time.Hour),
	}
}

func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		Enabled:           getEnvBool("NOTIFY_ENABLED", true),
		PushoverEnabled:   getEnvBool("NOTIFY_PUSHOVER_ENABLED", false),
		PushoverToken:     getEnv("NOTIFY_PUSHOVER_TOKEN", ""),
		PushoverUser:      getEnv("NOTIFY_PUSHOVER_USER", ""),
		DesktopEnabled:    getEnvBool("NOTIFY_DESKTOP_ENABLED", true),
		ThrottleInterval:  getEnvDuration("NOTIFY_THROTTLE_INTERVAL", 150*time.Minute),
		RespectQuietHours: getEnvBool("NOTIFY_RESPECT_QUIET_HOURS", true),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:       getEnvBool("SCHEDULER_ENABLED", true),
		TrackInterval: getEnvDuration("SCHEDULER_TRACK_INTERVAL", 30*time.Minute),
		CleanupCron:   getEnv("SCHEDULER_CLEANUP_CRON", "30 3 * * *"),
		WatchEnabled:  getEnvBool("SCHEDULER_WATCH_ENABLED", false),
		WatchDebounce: getEnvDuration("SCHEDULER_WATCH_DEBOUNCE", 2*time.Second),
		JobTimeout:    getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Goal.TrackingStartDate.IsZero() {
		errs = append(errs, "GOAL_TRACKING_START_DATE is required (YYYY-MM-DD)")
	}

	if c.Feed.Username == "" {
		errs = append(errs, "FEED_USERNAME is required")
	}

	if c.Feed.BaseURL == "" && !c.Feed.OfflineOnly {
		errs = append(errs, "FEED_BASE_URL is required unless FEED_OFFLINE_ONLY=true")
	}

	if c.Notify.PushoverEnabled && (c.Notify.PushoverToken == "" || c.Notify.PushoverUser == "") {
		errs = append(errs, "NOTIFY_PUSHOVER_TOKEN and NOTIFY_PUSHOVER_USER are required when the Pushover channel is enabled")
	}

	if c.Course.TotalUnits <= 0 {
		errs = append(errs, "COURSE_TOTAL_UNITS must be positive")
	}

	if c.Course.BaseLessonsPerUnit <= 0 {
		errs = append(errs, "COURSE_BASE_LESSONS_PER_UNIT must be positive")
	}

	if c.Course.SmallUnitFoldThreshold < 1 {
		errs = append(errs, "COURSE_FOLD_THRESHOLD must be at least 1")
	}

	if c.Goal.DurationDays <= 0 {
		errs = append(errs, "GOAL_DURATION_DAYS must be positive")
	}

	if c.Goal.DailyLessonTarget < 0 {
		errs = append(errs, "GOAL_DAILY_LESSON_TARGET cannot be negative")
	}

	if c.Notify.ThrottleInterval < 0 {
		errs = append(errs, "NOTIFY_THROTTLE_INTERVAL cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvDate parses a YYYY-MM-DD date at midnight in the given location, so
// cutoffs line up with the learner's calendar rather than the host's.
func getEnvDate(key string, loc *time.Location, defaultVal time.Time) time.Time {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseInLocation("2006-01-02", val, loc)
	if err != nil {
		return defaultVal
	}
	return d
}
