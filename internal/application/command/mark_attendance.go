// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK ATTENDANCE COMMAND
// Records a single attendance mark for a student on a session. Marking is
// idempotent: repeating the same (session, student) pair succeeds and reports
// alreadyMarked instead of failing or duplicating.
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceCommand contains the data to mark one student.
type MarkAttendanceCommand struct {
	// EventID is the event the mark belongs to.
	EventID string

	// SessionID is the session the student attended.
	SessionID string

	// RegistrationID is the student's registration on the event.
	RegistrationID string

	// Method is the free-form verification tag (physical, code, bulk, manual).
	// Empty defaults to physical.
	Method string

	// Notes is an optional organizer comment.
	Notes string

	// MarkedAt is when the attendance happened (defaults to now if zero).
	MarkedAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c MarkAttendanceCommand) Validate() error {
	if c.EventID == "" {
		return errors.New("mark_attendance: event_id is required")
	}
	if c.SessionID == "" {
		return errors.New("mark_attendance: session_id is required")
	}
	if !shared.RegistrationID(c.RegistrationID).IsValid() {
		return errors.New("mark_attendance: registration_id is required")
	}
	return nil
}

// MarkAttendanceResult contains the result of marking one student.
type MarkAttendanceResult struct {
	// Success indicates the mark exists after the call.
	Success bool

	// AlreadyMarked indicates the pair was marked before this call.
	AlreadyMarked bool

	// MarkID is the surrogate id of the stored mark (empty when the mark
	// existed before and the store kept its original id).
	MarkID string

	// EventID, SessionID, RegistrationID echo the command.
	EventID        string
	SessionID      string
	RegistrationID string

	// MarkedAt is the effective mark time.
	MarkedAt time.Time

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceHandler handles the MarkAttendanceCommand.
type MarkAttendanceHandler struct {
	sessionRepo    session.Repository
	markRepo       attendance.Repository
	eventPublisher shared.EventPublisher

	// now is injected so tests control the clock.
	now func() time.Time
}

// NewMarkAttendanceHandler creates a new MarkAttendanceHandler.
func NewMarkAttendanceHandler(
	sessionRepo session.Repository,
	markRepo attendance.Repository,
	eventPublisher shared.EventPublisher,
) *MarkAttendanceHandler {
	return &MarkAttendanceHandler{
		sessionRepo:    sessionRepo,
		markRepo:       markRepo,
		eventPublisher: eventPublisher,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (h *MarkAttendanceHandler) WithClock(now func() time.Time) *MarkAttendanceHandler {
	h.now = now
	return h
}

// Handle executes the mark attendance command.
func (h *MarkAttendanceHandler) Handle(ctx context.Context, cmd MarkAttendanceCommand) (*MarkAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("mark_attendance: validation failed: %w", err)
	}

	markedAt := cmd.MarkedAt
	if markedAt.IsZero() {
		markedAt = h.now()
	}

	// The session must belong to the event; marking never creates sessions.
	if err := h.checkSessionBelongsToEvent(ctx, cmd.EventID, cmd.SessionID); err != nil {
		return nil, err
	}

	method := shared.NormalizeVerificationMethod(cmd.Method).OrDefault()

	mark, err := attendance.NewMark(attendance.NewMarkParams{
		ID:             uuid.New().String(),
		EventID:        cmd.EventID,
		SessionID:      cmd.SessionID,
		RegistrationID: cmd.RegistrationID,
		MarkedAt:       markedAt,
		Method:         method.String(),
		Notes:          cmd.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("mark_attendance: invalid mark: %w", err)
	}

	created, err := h.markRepo.InsertMark(ctx, mark)
	if err != nil {
		return nil, shared.WrapError("attendance", "MarkOne", shared.ErrTransientIO, "failed to store mark", err)
	}

	result := &MarkAttendanceResult{
		Success:        true,
		AlreadyMarked:  !created,
		EventID:        cmd.EventID,
		SessionID:      cmd.SessionID,
		RegistrationID: cmd.RegistrationID,
		MarkedAt:       markedAt,
		Events:         make([]shared.Event, 0, 1),
	}
	if created {
		result.MarkID = mark.ID
	}

	event := shared.NewAttendanceMarkedEvent(cmd.EventID, cmd.SessionID, cmd.RegistrationID, method.String(), result.AlreadyMarked)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, event)

	if h.eventPublisher != nil {
		_ = h.eventPublisher.Publish(event)
	}

	return result, nil
}

// checkSessionBelongsToEvent loads the session and verifies event ownership.
// A missing session and a session of another event both fail the same way:
// the caller asked to mark against a session the event does not have.
func (h *MarkAttendanceHandler) checkSessionBelongsToEvent(ctx context.Context, eventID, sessionID string) error {
	sess, err := h.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return shared.WrapError("attendance", "MarkOne", shared.ErrInvalidSession, "session not found for event", err)
		}
		return shared.WrapError("attendance", "MarkOne", shared.ErrTransientIO, "failed to load session", err)
	}
	if sess.EventID != eventID {
		return shared.ErrMarkInvalidSession
	}
	return nil
}
