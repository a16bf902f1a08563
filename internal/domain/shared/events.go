// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Attendance events
	EventAttendanceMarked  EventType = "attendance.marked"
	EventBulkMarkCompleted EventType = "attendance.bulk_completed"

	// Session lifecycle events
	EventSessionStarted   EventType = "session.started"
	EventSessionCompleted EventType = "session.completed"

	// Progress events
	EventRefreshCompleted EventType = "progress.refresh_completed"
	EventRefreshFailed    EventType = "progress.refresh_failed"
	EventStudentAtRisk    EventType = "progress.student_at_risk"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Events
// ═══════════════════════════════════════════════════════════════════════════

// AttendanceMarkedEvent is emitted when a mark is recorded for a student.
// AlreadyMarked is true when the call confirmed an existing mark instead of
// creating a new one (idempotent re-mark).
type AttendanceMarkedEvent struct {
	BaseEvent
	SessionID          string `json:"session_id"`
	RegistrationID     string `json:"registration_id"`
	VerificationMethod string `json:"verification_method"`
	AlreadyMarked      bool   `json:"already_marked"`
}

// Payload implements Event interface.
func (e AttendanceMarkedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":            e.AggregateId,
		"session_id":          e.SessionID,
		"registration_id":     e.RegistrationID,
		"verification_method": e.VerificationMethod,
		"already_marked":      e.AlreadyMarked,
	}
}

// NewAttendanceMarkedEvent creates a new AttendanceMarkedEvent.
func NewAttendanceMarkedEvent(eventID, sessionID, registrationID, method string, alreadyMarked bool) AttendanceMarkedEvent {
	return AttendanceMarkedEvent{
		BaseEvent:          NewBaseEvent(EventAttendanceMarked, eventID),
		SessionID:          sessionID,
		RegistrationID:     registrationID,
		VerificationMethod: method,
		AlreadyMarked:      alreadyMarked,
	}
}

// BulkMarkCompletedEvent is emitted after a bulk mark finished resolving
// every id, successful or not.
type BulkMarkCompletedEvent struct {
	BaseEvent
	SessionID      string   `json:"session_id"`
	RequestedCount int      `json:"requested_count"`
	SucceededCount int      `json:"succeeded_count"`
	FailedCount    int      `json:"failed_count"`
	FailedIDs      []string `json:"failed_ids,omitempty"`
}

// Payload implements Event interface.
func (e BulkMarkCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":        e.AggregateId,
		"session_id":      e.SessionID,
		"requested_count": e.RequestedCount,
		"succeeded_count": e.SucceededCount,
		"failed_count":    e.FailedCount,
		"failed_ids":      e.FailedIDs,
	}
}

// NewBulkMarkCompletedEvent creates a new BulkMarkCompletedEvent.
func NewBulkMarkCompletedEvent(eventID, sessionID string, requested, succeeded int, failedIDs []string) BulkMarkCompletedEvent {
	return BulkMarkCompletedEvent{
		BaseEvent:      NewBaseEvent(EventBulkMarkCompleted, eventID),
		SessionID:      sessionID,
		RequestedCount: requested,
		SucceededCount: succeeded,
		FailedCount:    len(failedIDs),
		FailedIDs:      failedIDs,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Lifecycle Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted when a session transitions pending -> active.
type SessionStartedEvent struct {
	BaseEvent
	EventID     string    `json:"event_id"`
	SessionName string    `json:"session_name"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsMandatory bool      `json:"is_mandatory"`
}

// Payload implements Event interface.
func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":     e.EventID,
		"session_id":   e.AggregateId,
		"session_name": e.SessionName,
		"start_time":   e.StartTime.Format(time.RFC3339),
		"end_time":     e.EndTime.Format(time.RFC3339),
		"is_mandatory": e.IsMandatory,
	}
}

// NewSessionStartedEvent creates a new SessionStartedEvent.
func NewSessionStartedEvent(eventID, sessionID, name string, start, end time.Time, mandatory bool) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent:   NewBaseEvent(EventSessionStarted, sessionID),
		EventID:     eventID,
		SessionName: name,
		StartTime:   start,
		EndTime:     end,
		IsMandatory: mandatory,
	}
}

// SessionCompletedEvent is emitted when a session transitions active -> completed.
type SessionCompletedEvent struct {
	BaseEvent
	EventID     string    `json:"event_id"`
	SessionName string    `json:"session_name"`
	EndTime     time.Time `json:"end_time"`
}

// Payload implements Event interface.
func (e SessionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":     e.EventID,
		"session_id":   e.AggregateId,
		"session_name": e.SessionName,
		"end_time":     e.EndTime.Format(time.RFC3339),
	}
}

// NewSessionCompletedEvent creates a new SessionCompletedEvent.
func NewSessionCompletedEvent(eventID, sessionID, name string, end time.Time) SessionCompletedEvent {
	return SessionCompletedEvent{
		BaseEvent:   NewBaseEvent(EventSessionCompleted, sessionID),
		EventID:     eventID,
		SessionName: name,
		EndTime:     end,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// RefreshCompletedEvent is emitted when a refresh cycle fully succeeded and
// the published view was replaced.
type RefreshCompletedEvent struct {
	BaseEvent
	Generation   uint64        `json:"generation"`
	Duration     time.Duration `json:"duration"`
	SessionCount int           `json:"session_count"`
	StudentCount int           `json:"student_count"`
	Trigger      string        `json:"trigger"` // "interval" or "manual"
}

// Payload implements Event interface.
func (e RefreshCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":      e.AggregateId,
		"generation":    e.Generation,
		"duration":      e.Duration.String(),
		"session_count": e.SessionCount,
		"student_count": e.StudentCount,
		"trigger":       e.Trigger,
	}
}

// NewRefreshCompletedEvent creates a new RefreshCompletedEvent.
func NewRefreshCompletedEvent(eventID string, generation uint64, duration time.Duration, sessions, students int, trigger string) RefreshCompletedEvent {
	return RefreshCompletedEvent{
		BaseEvent:    NewBaseEvent(EventRefreshCompleted, eventID),
		Generation:   generation,
		Duration:     duration,
		SessionCount: sessions,
		StudentCount: students,
		Trigger:      trigger,
	}
}

// RefreshFailedEvent is emitted when a refresh cycle failed and the prior
// view was retained.
type RefreshFailedEvent struct {
	BaseEvent
	Generation uint64 `json:"generation"`
	Reason     string `json:"reason"`
}

// Payload implements Event interface.
func (e RefreshFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":   e.AggregateId,
		"generation": e.Generation,
		"reason":     e.Reason,
	}
}

// NewRefreshFailedEvent creates a new RefreshFailedEvent.
func NewRefreshFailedEvent(eventID string, generation uint64, reason string) RefreshFailedEvent {
	return RefreshFailedEvent{
		BaseEvent:  NewBaseEvent(EventRefreshFailed, eventID),
		Generation: generation,
		Reason:     reason,
	}
}

// StudentAtRiskEvent is emitted when a student's progress drops below the
// strategy threshold (isOnTrack flipped to false).
type StudentAtRiskEvent struct {
	BaseEvent
	RegistrationID    string `json:"registration_id"`
	StrategyKind      string `json:"strategy_kind"`
	Percentage        int    `json:"percentage"`
	MinimumPercentage int    `json:"minimum_percentage"`
	AttendedCount     int    `json:"attended_count"`
	RequiredUnitCount int    `json:"required_unit_count"`
}

// Payload implements Event interface.
func (e StudentAtRiskEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":            e.AggregateId,
		"registration_id":     e.RegistrationID,
		"strategy_kind":       e.StrategyKind,
		"percentage":          e.Percentage,
		"minimum_percentage":  e.MinimumPercentage,
		"attended_count":      e.AttendedCount,
		"required_unit_count": e.RequiredUnitCount,
	}
}

// NewStudentAtRiskEvent creates a new StudentAtRiskEvent.
func NewStudentAtRiskEvent(eventID, registrationID, strategyKind string, percentage, minimum, attended, required int) StudentAtRiskEvent {
	return StudentAtRiskEvent{
		BaseEvent:         NewBaseEvent(EventStudentAtRisk, eventID),
		RegistrationID:    registrationID,
		StrategyKind:      strategyKind,
		Percentage:        percentage,
		MinimumPercentage: minimum,
		AttendedCount:     attended,
		RequiredUnitCount: required,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
