package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
	"github.com/campus-hub/campus-attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

// DefaultInterval is how often the coordinator polls the upstream API.
const DefaultInterval = 30 * time.Second

// State is the coordinator lifecycle state.
type State string

const (
	// StateIdle - no refresh in progress.
	StateIdle State = "idle"

	// StateRefreshing - a refresh cycle is running.
	StateRefreshing State = "refreshing"
)

// Trigger identifies what started a refresh cycle.
type Trigger string

const (
	// TriggerInterval - the periodic ticker fired.
	TriggerInterval Trigger = "interval"

	// TriggerManual - an explicit Refresh call.
	TriggerManual Trigger = "manual"
)

// Source fetches the upstream state a refresh cycle needs. Implemented by
// the campus API client adapter.
type Source interface {
	// FetchSessions returns the current schedule of the event.
	FetchSessions(ctx context.Context, eventID string) ([]*session.Session, error)

	// FetchMarks returns the full attendance ledger of the event.
	FetchMarks(ctx context.Context, eventID string) ([]*attendance.AttendanceMark, error)

	// FetchStrategyConfig returns the event's attendance strategy.
	FetchStrategyConfig(ctx context.Context, eventID string) (*attendance.StrategyConfig, error)

	// FetchRegistrations returns the registered student population.
	FetchRegistrations(ctx context.Context, eventID string) ([]string, error)
}

// ViewCache persists published snapshots outside the process, so consumers
// can read the view without going through this worker. Implemented by the
// Redis progress cache. A store failure never fails the cycle: the in-memory
// snapshot is already swapped by then.
type ViewCache interface {
	StoreSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// Config configures a Coordinator.
type Config struct {
	// EventID is the event this coordinator tracks.
	EventID string

	// Interval between automatic refreshes (default DefaultInterval).
	Interval time.Duration

	// Logger for structured logging.
	Logger *logger.Logger

	// Publisher receives RefreshCompleted/RefreshFailed events (optional).
	Publisher shared.EventPublisher

	// ViewCache receives every published snapshot (optional).
	ViewCache ViewCache

	// Clock is the time source (default time.Now UTC). Tests override it.
	Clock func() time.Time
}

// Status is a point-in-time view of the coordinator for operators.
type Status struct {
	State              State
	AutoRefreshEnabled bool
	Generation         uint64
	LastRefreshAt      time.Time
	LastError          string
	RefreshCount       int64
	FailureCount       int64
	Interval           time.Duration
}

// Coordinator keeps the published snapshot of one event in sync with the
// upstream API. It refreshes on a fixed interval and on manual request,
// never overlapping two cycles: a tick or a manual request that arrives
// while a cycle is running is coalesced into the busy guard and dropped.
//
// A cycle either fully succeeds and atomically swaps the snapshot, or fails
// and leaves the last-known-good snapshot in place.
type Coordinator struct {
	eventID   string
	source    Source
	publisher shared.EventPublisher
	viewCache ViewCache
	log       *logger.Logger
	interval  time.Duration
	now       func() time.Time

	view atomic.Pointer[Snapshot]

	mu                sync.Mutex
	state             State
	autoEnabled       bool
	nextGeneration    uint64
	appliedGeneration uint64
	lastRefreshAt     time.Time
	lastError         string
	refreshCount      int64
	failureCount      int64

	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator for one event.
func NewCoordinator(source Source, cfg Config) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Coordinator{
		eventID:     cfg.EventID,
		source:      source,
		publisher:   cfg.Publisher,
		viewCache:   cfg.ViewCache,
		log:         cfg.Logger.With(logger.Component("refresh"), logger.EventID(cfg.EventID)),
		interval:    cfg.Interval,
		now:         cfg.Clock,
		state:       StateIdle,
		autoEnabled: true,
		stop:        make(chan struct{}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches the polling loop. It returns immediately; refreshes run on
// the loop goroutine.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.log.Info("refresh coordinator started", logger.Duration("interval", c.interval))

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop halts the polling loop and waits for an in-flight refresh to finish.
// An in-flight cycle is never cancelled mid-way.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()

	c.log.Info("refresh coordinator stopped")
}

// SetAutoRefresh toggles the periodic refresh. Disabling stops future
// firings; a refresh already in flight keeps running to completion.
func (c *Coordinator) SetAutoRefresh(enabled bool) {
	c.mu.Lock()
	c.autoEnabled = enabled
	c.mu.Unlock()

	c.log.Info("auto refresh toggled", logger.Bool("enabled", enabled))
}

// Refresh runs one refresh cycle immediately, regardless of the auto
// setting. It reports false when a cycle is already in progress (the
// request is coalesced) and true when a cycle ran, successfully or not.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	return c.runRefresh(ctx, TriggerManual)
}

// EventID returns the event this coordinator tracks.
func (c *Coordinator) EventID() string {
	return c.eventID
}

// View returns the last successfully published snapshot, or nil before the
// first successful refresh.
func (c *Coordinator) View() *Snapshot {
	return c.view.Load()
}

// Status returns the current coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		State:              c.state,
		AutoRefreshEnabled: c.autoEnabled,
		Generation:         c.appliedGeneration,
		LastRefreshAt:      c.lastRefreshAt,
		LastError:          c.lastError,
		RefreshCount:       c.refreshCount,
		FailureCount:       c.failureCount,
		Interval:           c.interval,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH CYCLE
// ══════════════════════════════════════════════════════════════════════════════

// run is the ticker loop. Interval firings respect the auto setting;
// refreshes execute on this goroutine so Stop can wait for completion.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.runRefresh(ctx, TriggerInterval)
		}
	}
}

// runRefresh executes one guarded refresh cycle. Returns false when the
// cycle did not start (busy, or auto refresh disabled for interval ticks).
func (c *Coordinator) runRefresh(ctx context.Context, trigger Trigger) bool {
	generation, ok := c.beginRefresh(trigger)
	if !ok {
		return false
	}

	startedAt := c.now()
	snapshot, err := c.fetchAndBuild(ctx, generation)
	if err != nil {
		c.completeFailure(generation, err)
		return true
	}

	c.completeSuccess(ctx, generation, snapshot, trigger, c.now().Sub(startedAt))
	return true
}

// beginRefresh claims the busy guard and allocates a generation number.
func (c *Coordinator) beginRefresh(trigger Trigger) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRefreshing {
		c.log.Debug("refresh coalesced, cycle already running", logger.String("trigger", string(trigger)))
		return 0, false
	}
	if trigger == TriggerInterval && !c.autoEnabled {
		return 0, false
	}

	c.state = StateRefreshing
	c.nextGeneration++
	return c.nextGeneration, true
}

// fetchAndBuild pulls the upstream state and recomputes the snapshot.
func (c *Coordinator) fetchAndBuild(ctx context.Context, generation uint64) (*Snapshot, error) {
	cfg, err := c.source.FetchStrategyConfig(ctx, c.eventID)
	if err != nil {
		return nil, shared.WrapError("refresh", "FetchStrategyConfig", refreshKind(err), "failed to fetch strategy config", err)
	}

	sessions, err := c.source.FetchSessions(ctx, c.eventID)
	if err != nil {
		return nil, shared.WrapError("refresh", "FetchSessions", refreshKind(err), "failed to fetch sessions", err)
	}

	marks, err := c.source.FetchMarks(ctx, c.eventID)
	if err != nil {
		return nil, shared.WrapError("refresh", "FetchMarks", refreshKind(err), "failed to fetch marks", err)
	}

	registrations, err := c.source.FetchRegistrations(ctx, c.eventID)
	if err != nil {
		return nil, shared.WrapError("refresh", "FetchRegistrations", refreshKind(err), "failed to fetch registrations", err)
	}

	return BuildSnapshot(c.eventID, generation, cfg, sessions, marks, registrations, c.now())
}

// refreshKind preserves a meaningful error kind: config-missing stays
// distinct, everything else from upstream is transient I/O.
func refreshKind(err error) error {
	if shared.IsConfigMissing(err) {
		return shared.ErrConfigMissing
	}
	return shared.ErrTransientIO
}

// completeSuccess publishes the snapshot unless a newer generation already
// landed. Stale results are discarded, never merged.
func (c *Coordinator) completeSuccess(ctx context.Context, generation uint64, snapshot *Snapshot, trigger Trigger, duration time.Duration) {
	c.mu.Lock()
	c.state = StateIdle
	if generation <= c.appliedGeneration {
		c.mu.Unlock()
		c.log.Warn("stale refresh discarded",
			logger.Generation(generation),
			logger.F("applied_generation", c.appliedGeneration),
		)
		return
	}
	c.appliedGeneration = generation
	c.lastRefreshAt = c.now()
	c.lastError = ""
	c.refreshCount++
	// Store under the same lock that orders generations, so a slow cycle
	// can never overwrite a newer snapshot after passing the check above.
	c.view.Store(snapshot)
	c.mu.Unlock()

	c.log.Info("refresh completed",
		logger.Generation(generation),
		logger.String("trigger", string(trigger)),
		logger.Duration("duration", duration),
		logger.Int("sessions", snapshot.Rollup.TotalSessions),
		logger.Int("students", snapshot.StudentCount()),
	)

	if c.viewCache != nil {
		if err := c.viewCache.StoreSnapshot(ctx, snapshot); err != nil {
			c.log.Warn("failed to store snapshot in view cache",
				logger.Generation(generation),
				logger.Err(err),
			)
		}
	}

	c.publish(shared.NewRefreshCompletedEvent(
		c.eventID, generation, duration,
		snapshot.Rollup.TotalSessions, snapshot.StudentCount(), string(trigger),
	))
}

// completeFailure logs the error and keeps the prior snapshot untouched.
// Transient upstream failures are recovered on the next tick.
func (c *Coordinator) completeFailure(generation uint64, err error) {
	c.mu.Lock()
	c.state = StateIdle
	c.lastError = err.Error()
	c.failureCount++
	c.mu.Unlock()

	c.log.Error("refresh failed, keeping last-known-good view",
		logger.Generation(generation),
		logger.Err(err),
	)

	c.publish(shared.NewRefreshFailedEvent(c.eventID, generation, err.Error()))
}

func (c *Coordinator) publish(event shared.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(event); err != nil {
		c.log.Warn("failed to publish refresh event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
