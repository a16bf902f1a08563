// Package session contains domain entities and business logic for the
// scheduled sessions of an event: classification of a session's lifecycle
// status from the clock, and the ordered registry used to answer
// "which session is running right now?".
// This is a pure domain layer with zero external dependencies.
package session

import (
	"errors"
	"strings"
	"time"
)

// Domain errors for session package.
var (
	ErrInvalidID     = errors.New("session: invalid session ID")
	ErrInvalidEvent  = errors.New("session: invalid event ID")
	ErrEmptyName     = errors.New("session: name cannot be empty")
	ErrInvalidWindow = errors.New("session: end time must be after start time")
)

// Status represents the lifecycle state of a session relative to the clock.
type Status string

const (
	// StatusPending - the session has not started yet.
	StatusPending Status = "pending"
	// StatusActive - the session is currently running.
	StatusActive Status = "active"
	// StatusCompleted - the session has ended.
	StatusCompleted Status = "completed"
)

// IsValid checks if the status is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted:
		return true
	default:
		return false
	}
}

// Session represents a single scheduled block of an event. The window is
// half-open: a session runs from StartTime inclusive to EndTime exclusive,
// so at exactly EndTime the session is already completed.
type Session struct {
	// ID - unique identifier assigned by the upstream platform.
	ID string

	// EventID - the event this session belongs to.
	EventID string

	// Name - human-readable session title.
	Name string

	// StartTime - when the session begins (inclusive).
	StartTime time.Time

	// EndTime - when the session ends (exclusive).
	EndTime time.Time

	// IsMandatory - whether organizers flagged this session as mandatory.
	IsMandatory bool

	// Status - last classified lifecycle state. Derived from the clock,
	// never authoritative on its own; use StatusAt for a pure answer.
	Status Status
}

// NewSession creates a session and classifies it against the given time.
func NewSession(id, eventID, name string, startTime, endTime time.Time, isMandatory bool, now time.Time) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidID
	}
	if strings.TrimSpace(eventID) == "" {
		return nil, ErrInvalidEvent
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if !endTime.After(startTime) {
		return nil, ErrInvalidWindow
	}

	s := &Session{
		ID:          id,
		EventID:     eventID,
		Name:        name,
		StartTime:   startTime,
		EndTime:     endTime,
		IsMandatory: isMandatory,
	}
	s.Status = s.StatusAt(now)
	return s, nil
}

// StatusAt classifies the session against the given time without mutating it.
// The boundary instant belongs to the later state: at exactly StartTime the
// session is active, at exactly EndTime it is completed.
func (s *Session) StatusAt(now time.Time) Status {
	switch {
	case now.Before(s.StartTime):
		return StatusPending
	case now.Before(s.EndTime):
		return StatusActive
	default:
		return StatusCompleted
	}
}

// Reclassify updates Status from the clock and reports whether it changed.
func (s *Session) Reclassify(now time.Time) bool {
	next := s.StatusAt(now)
	if next == s.Status {
		return false
	}
	s.Status = next
	return true
}

// IsActiveAt returns true if the session window contains the given time.
func (s *Session) IsActiveAt(now time.Time) bool {
	return s.StatusAt(now) == StatusActive
}

// HasEnded returns true if the session is over at the given time.
func (s *Session) HasEnded(now time.Time) bool {
	return s.StatusAt(now) == StatusCompleted
}

// Duration returns the scheduled length of the session.
func (s *Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
