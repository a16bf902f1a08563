// Package messaging implements event bus functionality.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher routes domain events to side-effect handlers: webhook alerts,
// progress-cache invalidation, check-in code announcements. These effects
// must not fail the marking or refresh path that published the event, so
// each handler runs behind its own retry loop, a panic recovery chain, and
// a dead letter queue for marks and alerts that exhausted their retries.
type Dispatcher struct {
	eventBus    shared.EventBus
	handlers    map[shared.EventType][]HandlerRegistration
	middlewares []Middleware
	retryConfig RetryConfig
	deadLetterQ *DeadLetterQueue
	logger      *slog.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	workerPool  chan struct{}
	metrics     *DispatcherMetrics
}

// HandlerRegistration describes one handler binding. Zero MaxRetries and
// Timeout inherit the dispatcher-wide defaults at registration time.
type HandlerRegistration struct {
	Name       string
	Handler    shared.EventHandler
	Async      bool
	MaxRetries int
	Timeout    time.Duration
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// EventBus is the bus the dispatcher attaches to on Start
	EventBus shared.EventBus

	// WorkerPoolSize bounds concurrently executing handlers
	WorkerPoolSize int

	// RetryConfig is the default retry behavior for handlers
	RetryConfig RetryConfig

	// EnableDeadLetterQueue keeps events whose handlers exhausted retries
	EnableDeadLetterQueue bool

	// DeadLetterQueueSize is the max size of the DLQ
	DeadLetterQueueSize int

	// Logger for structured logging
	Logger *slog.Logger
}

// RetryConfig contains retry configuration.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// InitialBackoff is the initial wait between retries
	InitialBackoff time.Duration

	// MaxBackoff is the maximum wait between retries
	MaxBackoff time.Duration

	// BackoffMultiplier is the factor for exponential backoff
	BackoffMultiplier float64
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig(eventBus shared.EventBus) DispatcherConfig {
	return DispatcherConfig{
		EventBus:              eventBus,
		WorkerPoolSize:        10,
		RetryConfig:           DefaultRetryConfig(),
		EnableDeadLetterQueue: true,
		DeadLetterQueueSize:   1000,
	}
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		eventBus:    config.EventBus,
		handlers:    make(map[shared.EventType][]HandlerRegistration),
		middlewares: make([]Middleware, 0),
		retryConfig: config.RetryConfig,
		logger:      config.Logger,
		ctx:         ctx,
		cancel:      cancel,
		workerPool:  make(chan struct{}, config.WorkerPoolSize),
		metrics:     NewDispatcherMetrics(),
	}

	if config.EnableDeadLetterQueue {
		d.deadLetterQ = NewDeadLetterQueue(config.DeadLetterQueueSize)
	}

	return d
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// RegisterHandler registers a handler for an event type.
func (d *Dispatcher) RegisterHandler(eventType shared.EventType, reg HandlerRegistration) error {
	if reg.Handler == nil {
		return errors.New("handler cannot be nil")
	}
	if reg.Name == "" {
		reg.Name = fmt.Sprintf("handler-%d", time.Now().UnixNano())
	}
	if reg.MaxRetries <= 0 {
		reg.MaxRetries = d.retryConfig.MaxRetries
	}
	if reg.Timeout <= 0 {
		reg.Timeout = 30 * time.Second
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], reg)
	d.logger.Debug("registered handler",
		"event_type", eventType,
		"handler_name", reg.Name,
		"async", reg.Async,
	)

	return nil
}

// Register binds an async handler. Async handlers run concurrently but
// Dispatch still waits for them, so a session-started event has fired its
// check-in code announcement before the scheduler tick moves on.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.RegisterHandler(eventType, HandlerRegistration{
		Name:    name,
		Handler: handler,
		Async:   true,
	})
}

// RegisterSync binds a handler whose error fails the dispatch. Used for
// effects the caller must observe, like the progress-cache invalidation
// after a mark.
func (d *Dispatcher) RegisterSync(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.RegisterHandler(eventType, HandlerRegistration{
		Name:    name,
		Handler: handler,
		Async:   false,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use adds middleware to the dispatcher. Middleware applies to every
// registered handler, innermost first.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// RecoveryMiddleware converts a handler panic into an error, so one broken
// webhook adapter cannot take down the worker's dispatch loop.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := string(debug.Stack())
					logger.Error("handler panic recovered",
						"event_type", event.EventType(),
						"panic", r,
						"stack", stack,
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs handler execution with timings. Wired only in
// debug mode: per-mark log lines are too noisy for a busy event.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			duration := time.Since(start)

			if err != nil {
				logger.Error("handler failed",
					"event_type", event.EventType(),
					"aggregate_id", event.AggregateID(),
					"duration", duration,
					"error", err,
				)
			} else {
				logger.Debug("handler completed",
					"event_type", event.EventType(),
					"aggregate_id", event.AggregateID(),
					"duration", duration,
				)
			}

			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// Start attaches the dispatcher to the bus so every published event flows
// through it.
func (d *Dispatcher) Start() error {
	return d.eventBus.SubscribeAll(func(event shared.Event) error {
		return d.dispatch(event)
	})
}

// Dispatch routes an event to its registered handlers directly, bypassing
// the bus. An event type with no registrations is a no-op.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	return d.dispatch(event)
}

func (d *Dispatcher) dispatch(event shared.Event) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventType()]
	middlewares := d.middlewares
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	d.metrics.RecordDispatch(event.EventType())

	// Sync handlers run inline on this goroutine; only async ones fan out.
	var wg sync.WaitGroup
	var syncErrors []error

	for _, reg := range handlers {
		if reg.Async {
			wg.Add(1)
			go func(r HandlerRegistration) {
				defer wg.Done()
				d.executeHandler(event, r, middlewares)
			}(reg)
		} else {
			if err := d.executeHandler(event, reg, middlewares); err != nil {
				syncErrors = append(syncErrors, err)
			}
		}
	}

	wg.Wait()

	if len(syncErrors) > 0 {
		return fmt.Errorf("sync handler errors: %v", syncErrors)
	}

	return nil
}

func (d *Dispatcher) executeHandler(event shared.Event, reg HandlerRegistration, middlewares []Middleware) error {
	select {
	case d.workerPool <- struct{}{}:
		defer func() { <-d.workerPool }()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}

	handler := reg.Handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	var lastErr error
	for attempt := 0; attempt <= reg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := d.calculateBackoff(attempt)
			d.logger.Debug("retrying handler",
				"handler", reg.Name,
				"attempt", attempt,
				"backoff", backoff,
			)

			select {
			case <-d.ctx.Done():
				return d.ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := d.executeWithTimeout(handler, event, reg.Timeout)
		if err == nil {
			if attempt > 0 {
				d.metrics.RecordRetrySuccess(event.EventType())
			}
			return nil
		}

		lastErr = err
		d.logger.Warn("handler attempt failed",
			"handler", reg.Name,
			"attempt", attempt,
			"error", err,
		)
	}

	// Retries exhausted. Park the event in the DLQ so an operator can
	// replay the missed alert or invalidation after fixing the handler.
	if d.deadLetterQ != nil {
		d.deadLetterQ.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: reg.Name,
			Error:       lastErr,
			Attempts:    reg.MaxRetries + 1,
			FailedAt:    time.Now(),
		})
	}

	d.metrics.RecordFailure(event.EventType())
	return fmt.Errorf("handler %s failed after %d retries: %w", reg.Name, reg.MaxRetries+1, lastErr)
}

func (d *Dispatcher) executeWithTimeout(handler shared.EventHandler, event shared.Event, timeout time.Duration) error {
	done := make(chan error, 1)

	go func() {
		done <- handler(event)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("handler timeout after %v", timeout)
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *Dispatcher) calculateBackoff(attempt int) time.Duration {
	backoff := float64(d.retryConfig.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.retryConfig.BackoffMultiplier
	}

	if backoff > float64(d.retryConfig.MaxBackoff) {
		backoff = float64(d.retryConfig.MaxBackoff)
	}

	return time.Duration(backoff)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Stop gracefully stops the dispatcher. Handlers waiting in a backoff
// sleep or on a worker slot are released with the context error.
func (d *Dispatcher) Stop() error {
	d.cancel()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
	return nil
}

// Metrics returns dispatcher metrics.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// DeadLetterQueue returns the dead letter queue, nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry holds one event a handler gave up on.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue is a bounded FIFO of failed events. At capacity the
// oldest entry is dropped: a fresh at-risk alert is worth more than a
// stale one.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a new dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{
		entries: make([]DeadLetterEntry, 0),
		maxSize: maxSize,
	}
}

// Add appends an entry, evicting the oldest at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}

	q.entries = append(q.entries, entry)
}

// Size returns the current queue size.
func (q *DeadLetterQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics counts dispatches, terminal failures, and recovered
// retries per event type.
type DispatcherMetrics struct {
	mu sync.RWMutex

	DispatchedByType map[shared.EventType]int64
	FailuresTotal    int64
	RetriesTotal     int64
	RetrySuccesses   int64
}

// NewDispatcherMetrics creates new dispatcher metrics.
func NewDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{
		DispatchedByType: make(map[shared.EventType]int64),
	}
}

// RecordDispatch records an event dispatch.
func (m *DispatcherMetrics) RecordDispatch(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DispatchedByType[eventType]++
}

// RecordRetrySuccess records a handler that succeeded after retrying.
func (m *DispatcherMetrics) RecordRetrySuccess(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RetriesTotal++
	m.RetrySuccesses++
}

// RecordFailure records a handler failure after all retries.
func (m *DispatcherMetrics) RecordFailure(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailuresTotal++
}

// Snapshot returns a point-in-time snapshot.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalDispatched int64
	for _, v := range m.DispatchedByType {
		totalDispatched += v
	}

	return DispatcherMetricsSnapshot{
		TotalDispatched: totalDispatched,
		TotalFailures:   m.FailuresTotal,
		TotalRetries:    m.RetriesTotal,
		RetrySuccesses:  m.RetrySuccesses,
	}
}

// DispatcherMetricsSnapshot is a point-in-time snapshot.
type DispatcherMetricsSnapshot struct {
	TotalDispatched int64
	TotalFailures   int64
	TotalRetries    int64
	RetrySuccesses  int64
}
