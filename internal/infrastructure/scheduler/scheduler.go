// Package scheduler implements background job scheduling for the attendance
// worker. A single engine drives all recurring work: requesting refresh
// cycles for tracked events, moving sessions through their lifecycle,
// flagging students who fall behind and purging expired check-in codes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of recurring work. Implementations live in the jobs
// subpackage and receive their dependencies at construction time.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first instant strictly after t at which the job
	// should run.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult records one finished execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Metadata    map[string]interface{}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler owns the registered jobs and runs them when due. One instance
// per worker process. Due jobs run on their own goroutines, so a slow
// refresh pass never delays the session transition scan.
type Scheduler struct {
	mu sync.RWMutex

	// Configuration
	logger     *slog.Logger
	timezone   *time.Location
	maxHistory int
	now        func() time.Time

	// State
	jobs       map[string]*scheduledJob
	workerPool chan struct{}
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	startedAt  time.Time

	// Metrics and history
	metrics    *SchedulerMetrics
	lastRuns   map[string]*JobResult
	runHistory []JobResult

	// Hooks
	onJobStart    func(jobName string)
	onJobComplete func(result JobResult)
	onJobError    func(jobName string, err error)
}

// scheduledJob wraps a Job with its scheduling state.
type scheduledJob struct {
	job       Job
	schedule  Schedule
	enabled   bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Timezone for schedule calculations (default UTC). Cron schedules
	// fire in this location.
	Timezone *time.Location

	// MaxHistorySize bounds the in-memory run history.
	MaxHistorySize int

	// MaxConcurrentJobs bounds how many jobs may execute at once
	// (default 5). A job past the cap waits for a slot; its schedule
	// still advances on dispatch.
	MaxConcurrentJobs int

	// EnableMetrics enables execution metrics collection.
	EnableMetrics bool

	// Clock is the time source (default time.Now). Tests override it.
	Clock func() time.Time
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:            slog.Default(),
		Timezone:          time.UTC,
		MaxHistorySize:    1000,
		MaxConcurrentJobs: 5,
		EnableMetrics:     true,
	}
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 1000
	}
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 5
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	s := &Scheduler{
		logger:     config.Logger,
		timezone:   config.Timezone,
		maxHistory: config.MaxHistorySize,
		now:        config.Clock,
		jobs:       make(map[string]*scheduledJob),
		lastRuns:   make(map[string]*JobResult),
		runHistory: make([]JobResult, 0, config.MaxHistorySize),
		workerPool: make(chan struct{}, config.MaxConcurrentJobs),
		// runJob selects on the context, and the due-check can be
		// driven before Start, so it must never be nil. Start
		// replaces it with a cancellable one.
		ctx: context.Background(),
	}

	if config.EnableMetrics {
		s.metrics = NewSchedulerMetrics()
	}

	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
// The job starts enabled; its first run is the schedule's next firing.
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
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	now := s.now().In(s.timezone)
	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(now),
	}

	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)

	return nil
}

// Unregister removes a job from the scheduler.
func (s *Scheduler) Unregister(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	delete(s.jobs, jobName)
	s.logger.Info("job unregistered", "job", jobName)

	return nil
}

// EnableJob enables a job by name and recomputes its next run.
func (s *Scheduler) EnableJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	sj.enabled = true
	sj.nextRun = sj.schedule.Next(s.now().In(s.timezone))
	s.logger.Info("job enabled", "job", jobName, "next_run", sj.nextRun)

	return nil
}

// DisableJob disables a job by name. A disabled job stays registered and
// keeps its history; it is skipped by the loop until enabled again.
func (s *Scheduler) DisableJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	sj.enabled = false
	s.logger.Info("job disabled", "job", jobName)

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", len(s.jobs))

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Stop gracefully stops the scheduler.
// It waits for all currently running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped",
		"uptime", time.Since(s.startedAt).String(),
	)

	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER LOOP
// ══════════════════════════════════════════════════════════════════════════════

// runLoop wakes every second and dispatches due jobs.
func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

// checkAndRunJobs collects the jobs whose next run has passed and starts
// each on its own goroutine.
func (s *Scheduler) checkAndRunJobs() {
	now := s.now().In(s.timezone)

	s.mu.RLock()
	jobsToRun := make([]*scheduledJob, 0)
	for _, sj := range s.jobs {
		if sj.enabled && !sj.nextRun.IsZero() && now.After(sj.nextRun) {
			jobsToRun = append(jobsToRun, sj)
		}
	}
	s.mu.RUnlock()

	for _, sj := range jobsToRun {
		s.wg.Add(1)
		go s.runJob(sj)
	}
}

// runJob executes a single due job and records the result.
func (s *Scheduler) runJob(sj *scheduledJob) {
	defer s.wg.Done()

	jobName := sj.job.Name()

	if s.onJobStart != nil {
		s.onJobStart(jobName)
	}

	s.logger.Info("job started", "job", jobName)

	// Advance the schedule before running, so a long execution cannot
	// make the same firing dispatch twice.
	startedAt := s.now()
	s.mu.Lock()
	sj.lastRun = startedAt
	sj.nextRun = sj.schedule.Next(startedAt.In(s.timezone))
	sj.runCount++
	s.mu.Unlock()

	// The schedule is already advanced, so waiting here cannot make the
	// same firing dispatch twice.
	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-s.ctx.Done():
		return
	}

	result := s.execute(s.ctx, sj.job, startedAt, nil)

	s.mu.Lock()
	if !result.Success {
		sj.failCount++
	}
	s.lastRuns[jobName] = &result
	s.addToHistory(result)
	s.mu.Unlock()

	if result.Error != nil {
		s.logger.Error("job failed",
			"job", jobName,
			"duration", result.Duration.String(),
			"error", result.Error,
		)

		if s.onJobError != nil {
			s.onJobError(jobName, result.Error)
		}
	} else {
		s.logger.Info("job completed",
			"job", jobName,
			"duration", result.Duration.String(),
		)
	}

	if s.onJobComplete != nil {
		s.onJobComplete(result)
	}
}

// execute runs a job once and wraps the outcome, recording metrics.
func (s *Scheduler) execute(ctx context.Context, job Job, startedAt time.Time, metadata map[string]interface{}) JobResult {
	err := job.Run(ctx)
	completedAt := s.now()
	duration := completedAt.Sub(startedAt)

	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	result := JobResult{
		JobName:     job.Name(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    duration,
		Success:     err == nil,
		Error:       err,
		Metadata:    metadata,
	}

	if s.metrics != nil {
		s.metrics.RecordExecution(result.JobName, duration, result.Success)
	}

	return result
}

// addToHistory appends a result, trimming to the configured bound.
// Callers must hold s.mu.
func (s *Scheduler) addToHistory(result JobResult) {
	s.runHistory = append(s.runHistory, result)

	if len(s.runHistory) > s.maxHistory {
		s.runHistory = s.runHistory[len(s.runHistory)-s.maxHistory:]
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow immediately executes a job by name, ignoring its schedule.
// The regular schedule is not advanced: the next automatic run still
// happens when it would have.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	s.logger.Info("manual job execution started", "job", jobName)

	startedAt := s.now()
	result := s.execute(ctx, sj.job, startedAt, map[string]interface{}{"manual": true})

	s.mu.Lock()
	s.lastRuns[jobName] = &result
	s.addToHistory(result)
	s.mu.Unlock()

	if result.Error != nil {
		s.logger.Error("manual job execution failed",
			"job", jobName,
			"duration", result.Duration.String(),
			"error", result.Error,
		)
	} else {
		s.logger.Info("manual job execution completed",
			"job", jobName,
			"duration", result.Duration.String(),
		)
	}

	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, s.jobInfoLocked(name, sj))
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// GetJobInfo returns information about a specific job.
func (s *Scheduler) GetJobInfo(jobName string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	info := s.jobInfoLocked(jobName, sj)
	return &info, nil
}

// jobInfoLocked builds a JobInfo. Callers must hold s.mu.
func (s *Scheduler) jobInfoLocked(name string, sj *scheduledJob) JobInfo {
	return JobInfo{
		Name:        name,
		Description: sj.job.Description(),
		Enabled:     sj.enabled,
		Schedule:    sj.schedule.String(),
		LastRun:     sj.lastRun,
		NextRun:     sj.nextRun,
		RunCount:    sj.runCount,
		FailCount:   sj.failCount,
		LastResult:  s.lastRuns[name],
	}
}

// GetHistory returns the most recent job results, newest last.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}

	start := len(s.runHistory) - limit
	result := make([]JobResult, limit)
	copy(result, s.runHistory[start:])

	return result
}

// GetMetrics returns scheduler metrics, or nil when disabled.
func (s *Scheduler) GetMetrics() *SchedulerMetrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// HOOKS
// ══════════════════════════════════════════════════════════════════════════════

// OnJobStart sets a callback to be called when a job starts.
func (s *Scheduler) OnJobStart(fn func(jobName string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobStart = fn
}

// OnJobComplete sets a callback to be called when a job completes.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

// OnJobError sets a callback to be called when a job fails.
func (s *Scheduler) OnJobError(fn func(jobName string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobError = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks scheduler performance metrics.
type SchedulerMetrics struct {
	mu sync.RWMutex

	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	TotalDuration   time.Duration

	ExecutionsByJob map[string]int64
	FailuresByJob   map[string]int64
	DurationsByJob  map[string]time.Duration
	LastExecutions  map[string]time.Time
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		ExecutionsByJob: make(map[string]int64),
		FailuresByJob:   make(map[string]int64),
		DurationsByJob:  make(map[string]time.Duration),
		LastExecutions:  make(map[string]time.Time),
	}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalExecutions++
	m.TotalDuration += duration
	m.ExecutionsByJob[jobName]++
	m.DurationsByJob[jobName] += duration
	m.LastExecutions[jobName] = time.Now()

	if success {
		m.TotalSuccesses++
	} else {
		m.TotalFailures++
		m.FailuresByJob[jobName]++
	}
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgDuration time.Duration
	if m.TotalExecutions > 0 {
		avgDuration = m.TotalDuration / time.Duration(m.TotalExecutions)
	}

	var successRate float64
	if m.TotalExecutions > 0 {
		successRate = float64(m.TotalSuccesses) / float64(m.TotalExecutions)
	}

	return MetricsSnapshot{
		TotalExecutions: m.TotalExecutions,
		TotalSuccesses:  m.TotalSuccesses,
		TotalFailures:   m.TotalFailures,
		SuccessRate:     successRate,
		AverageDuration: avgDuration,
	}
}

// MetricsSnapshot is a point-in-time snapshot of scheduler metrics.
type MetricsSnapshot struct {
	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = fmt.Errorf("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = fmt.Errorf("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = fmt.Errorf("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = fmt.Errorf("job not found")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = fmt.Errorf("scheduler is not running")
)
