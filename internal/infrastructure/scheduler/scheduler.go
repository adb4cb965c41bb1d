// Package scheduler drives the background work of the tracker daemon.
// A single loop executes registered jobs on interval or cron schedules,
// records a bounded run history, and supports manual execution so the
// filesystem watcher can trigger a tracking cycle out of schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of background work the scheduler can run.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the
	// scheduler shuts down.
	Run(ctx context.Context) error

	// Description returns a short human-readable description.
	Description() string
}

// Schedule decides when a job runs.
type Schedule interface {
	// Next returns the first time after t at which the job is due.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult records a single job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler owns the job table and the run loop.
type Scheduler struct {
	mu sync.RWMutex

	logger   *slog.Logger
	timezone *time.Location
	tick     time.Duration

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	maxHistory int
	lastRuns   map[string]*JobResult
	history    []JobResult
	metrics    *Metrics

	onJobComplete func(result JobResult)
}

// scheduledJob pairs a job with its schedule and bookkeeping.
type scheduledJob struct {
	job       Job
	schedule  Schedule
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
}

// Config configures a Scheduler.
type Config struct {
	// Logger receives structured logs about job runs.
	Logger *slog.Logger

	// Timezone anchors schedule calculations, UTC when nil.
	Timezone *time.Location

	// MaxHistory bounds the kept run history.
	MaxHistory int

	// EnableMetrics turns on per-job execution counters.
	EnableMetrics bool
}

// DefaultMaxHistory bounds the run history when Config does not.
const DefaultMaxHistory = 500

// DefaultConfig returns the scheduler defaults used by the daemon.
func DefaultConfig() Config {
	return Config{
		Logger:        slog.Default(),
		Timezone:      time.UTC,
		MaxHistory:    DefaultMaxHistory,
		EnableMetrics: true,
	}
}

// NewScheduler creates a Scheduler from cfg.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}

	s := &Scheduler{
		logger:     cfg.Logger,
		timezone:   cfg.Timezone,
		tick:       time.Second,
		jobs:       make(map[string]*scheduledJob),
		maxHistory: cfg.MaxHistory,
		lastRuns:   make(map[string]*JobResult),
		history:    make([]JobResult, 0, cfg.MaxHistory),
	}
	if cfg.EnableMetrics {
		s.metrics = newMetrics()
	}
	return s
}

// Register adds a job with its schedule. Job names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, name)
	}

	now := time.Now().In(s.timezone)
	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(now),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the run loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop ends the run loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())
	return nil
}

// IsRunning reports whether the run loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkDueJobs()
		}
	}
}

func (s *Scheduler) checkDueJobs() {
	now := time.Now().In(s.timezone)

	s.mu.RLock()
	due := make([]*scheduledJob, 0, len(s.jobs))
	for _, sj := range s.jobs {
		if !sj.nextRun.IsZero() && !sj.nextRun.After(now) {
			due = append(due, sj)
		}
	}
	s.mu.RUnlock()

	for _, sj := range due {
		s.wg.Add(1)
		go s.runJob(sj)
	}
}

// runJob executes one scheduled run. The next run is computed from the
// start time, so a slow job does not push its own schedule back.
func (s *Scheduler) runJob(sj *scheduledJob) {
	defer s.wg.Done()

	name := sj.job.Name()
	startedAt := time.Now()

	s.mu.Lock()
	sj.lastRun = startedAt
	sj.nextRun = sj.schedule.Next(startedAt.In(s.timezone))
	sj.runCount++
	s.mu.Unlock()

	s.logger.Info("job started", "job", name)

	err := sj.job.Run(s.ctx)
	s.record(JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Success:     err == nil,
		Error:       err,
	}, sj)
}

// record stores a finished run in history and metrics, logs it, and
// invokes the completion hook. A nil sj leaves the per-job failure
// counter untouched, which is how manual runs stay off the schedule
// bookkeeping.
func (s *Scheduler) record(result JobResult, sj *scheduledJob) {
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	if s.metrics != nil {
		s.metrics.RecordRun(result.JobName, result.Duration, result.Success)
	}

	s.mu.Lock()
	if !result.Success && sj != nil {
		sj.failCount++
	}
	saved := result
	s.lastRuns[result.JobName] = &saved
	s.history = append(s.history, result)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	hook := s.onJobComplete
	s.mu.Unlock()

	if result.Error != nil {
		s.logger.Error("job failed",
			"job", result.JobName,
			"duration", result.Duration.String(),
			"manual", result.Manual,
			"error", result.Error,
		)
	} else {
		s.logger.Info("job completed",
			"job", result.JobName,
			"duration", result.Duration.String(),
			"manual", result.Manual,
		)
	}

	if hook != nil {
		hook(result)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately on the caller's context. The run
// lands in history and metrics but does not advance the schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	s.logger.Info("manual run started", "job", jobName)

	startedAt := time.Now()
	err := sj.job.Run(ctx)

	result := JobResult{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Success:     err == nil,
		Error:       err,
		Manual:      true,
	}
	s.record(result, nil)

	return &result, err
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns all registered jobs ordered by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  s.lastRuns[name],
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// GetHistory returns the most recent run results, oldest first.
// A limit of zero or less returns the whole kept history.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// OnJobComplete sets a callback invoked after every run, scheduled or
// manual. The daemon uses it to mute the snapshot watcher while the
// archive writes of a finished cycle settle.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

// Metrics returns the execution counters, nil when disabled.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks job execution counters.
type Metrics struct {
	mu sync.RWMutex

	TotalRuns      int64
	TotalSuccesses int64
	TotalFailures  int64
	TotalDuration  time.Duration

	RunsByJob     map[string]int64
	FailuresByJob map[string]int64
	DurationByJob map[string]time.Duration
	LastRunByJob  map[string]time.Time
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsByJob:     make(map[string]int64),
		FailuresByJob: make(map[string]int64),
		DurationByJob: make(map[string]time.Duration),
		LastRunByJob:  make(map[string]time.Time),
	}
}

// RecordRun adds one execution to the counters.
func (m *Metrics) RecordRun(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRuns++
	m.TotalDuration += duration
	m.RunsByJob[jobName]++
	m.DurationByJob[jobName] += duration
	m.LastRunByJob[jobName] = time.Now()

	if success {
		m.TotalSuccesses++
	} else {
		m.TotalFailures++
		m.FailuresByJob[jobName]++
	}
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalRuns:      m.TotalRuns,
		TotalSuccesses: m.TotalSuccesses,
		TotalFailures:  m.TotalFailures,
	}
	if m.TotalRuns > 0 {
		snap.SuccessRate = float64(m.TotalSuccesses) / float64(m.TotalRuns)
		snap.AverageDuration = m.TotalDuration / time.Duration(m.TotalRuns)
	}
	return snap
}

// MetricsSnapshot is a point-in-time view of the execution counters.
type MetricsSnapshot struct {
	TotalRuns       int64
	TotalSuccesses  int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when registering a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when registering a job without a schedule.
	ErrNilSchedule = errors.New("schedule cannot be nil")

	// ErrJobExists is returned when a job name is already registered.
	ErrJobExists = errors.New("job already registered")

	// ErrJobNotFound is returned when no job has the given name.
	ErrJobNotFound = errors.New("job not found")

	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler is already running")

	// ErrNotRunning is returned by Stop on a stopped scheduler.
	ErrNotRunning = errors.New("scheduler is not running")
)
