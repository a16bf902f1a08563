// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BULK MARK ATTENDANCE COMMAND
// Marks a whole list of students on one session. Every id is processed
// independently: a failed id lands in the failed list with a closed-enum
// reason and never aborts the rest of the batch.
// ══════════════════════════════════════════════════════════════════════════════

// RegistrationDirectory answers whether a registration exists on an event.
// Implemented by the campus API adapter (with its cache) in infrastructure.
type RegistrationDirectory interface {
	Exists(ctx context.Context, eventID, registrationID string) (bool, error)
}

// BulkMarkAttendanceCommand contains the data to mark many students at once.
type BulkMarkAttendanceCommand struct {
	// EventID is the event the marks belong to.
	EventID string

	// SessionID is the session everyone is marked on.
	SessionID string

	// RegistrationIDs lists the students to mark, in request order.
	RegistrationIDs []string

	// Notes is an optional organizer comment applied to every new mark.
	Notes string

	// MarkedAt is when the attendance happened (defaults to now if zero).
	MarkedAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c BulkMarkAttendanceCommand) Validate() error {
	if c.EventID == "" {
		return errors.New("bulk_mark_attendance: event_id is required")
	}
	if c.SessionID == "" {
		return errors.New("bulk_mark_attendance: session_id is required")
	}
	if len(c.RegistrationIDs) == 0 {
		return errors.New("bulk_mark_attendance: registration_ids are required")
	}
	return nil
}

// BulkMarkAttendanceResult contains the per-id outcome of a bulk mark.
type BulkMarkAttendanceResult struct {
	// Succeeded lists registrations that hold a mark after the call,
	// including those that were already marked before it.
	Succeeded []string

	// AlreadyMarked lists the subset of Succeeded that had a prior mark.
	AlreadyMarked []string

	// Failed lists registrations that could not be marked, with reasons.
	Failed []attendance.BulkFailure

	// RequestedCount is the number of ids in the command.
	RequestedCount int

	// Events contains domain events generated.
	Events []shared.Event
}

// PartiallyFailed reports whether any id failed.
func (r *BulkMarkAttendanceResult) PartiallyFailed() bool {
	return len(r.Failed) > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// BulkMarkAttendanceHandler handles the BulkMarkAttendanceCommand by driving
// the single-mark handler per id, the same way the batch activity flows in
// this codebase wrap their singular handler.
type BulkMarkAttendanceHandler struct {
	single        *MarkAttendanceHandler
	registrations RegistrationDirectory

	eventPublisher shared.EventPublisher
}

// NewBulkMarkAttendanceHandler creates a new BulkMarkAttendanceHandler.
func NewBulkMarkAttendanceHandler(
	single *MarkAttendanceHandler,
	registrations RegistrationDirectory,
	eventPublisher shared.EventPublisher,
) *BulkMarkAttendanceHandler {
	return &BulkMarkAttendanceHandler{
		single:         single,
		registrations:  registrations,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the bulk mark command. The returned error is non-nil only
// for whole-batch problems (validation, invalid session); per-id problems
// land in result.Failed.
func (h *BulkMarkAttendanceHandler) Handle(ctx context.Context, cmd BulkMarkAttendanceCommand) (*BulkMarkAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("bulk_mark_attendance: validation failed: %w", err)
	}

	// One ownership check for the whole batch: every id shares the session.
	if err := h.single.checkSessionBelongsToEvent(ctx, cmd.EventID, cmd.SessionID); err != nil {
		return nil, err
	}

	result := &BulkMarkAttendanceResult{
		Succeeded:      make([]string, 0, len(cmd.RegistrationIDs)),
		AlreadyMarked:  make([]string, 0),
		Failed:         make([]attendance.BulkFailure, 0),
		RequestedCount: len(cmd.RegistrationIDs),
		Events:         make([]shared.Event, 0, len(cmd.RegistrationIDs)+1),
	}

	seen := make(map[string]struct{}, len(cmd.RegistrationIDs))
	for _, registrationID := range cmd.RegistrationIDs {
		if _, dup := seen[registrationID]; dup {
			result.Failed = append(result.Failed, attendance.BulkFailure{
				RegistrationID: registrationID,
				Reason:         attendance.FailDuplicateInBatch,
			})
			continue
		}
		seen[registrationID] = struct{}{}

		h.markOne(ctx, cmd, registrationID, result)
	}

	bulkEvent := shared.NewBulkMarkCompletedEvent(
		cmd.EventID,
		cmd.SessionID,
		result.RequestedCount,
		len(result.Succeeded),
		failedIDs(result.Failed),
	)
	if cmd.CorrelationID != "" {
		bulkEvent.BaseEvent = bulkEvent.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, bulkEvent)

	if h.eventPublisher != nil {
		_ = h.eventPublisher.Publish(bulkEvent)
	}

	return result, nil
}

// markOne resolves a single id inside the batch and files the outcome.
func (h *BulkMarkAttendanceHandler) markOne(
	ctx context.Context,
	cmd BulkMarkAttendanceCommand,
	registrationID string,
	result *BulkMarkAttendanceResult,
) {
	if registrationID == "" {
		result.Failed = append(result.Failed, attendance.BulkFailure{
			RegistrationID: registrationID,
			Reason:         attendance.FailUnknownRegistration,
		})
		return
	}

	if h.registrations != nil {
		known, err := h.registrations.Exists(ctx, cmd.EventID, registrationID)
		if err != nil {
			result.Failed = append(result.Failed, attendance.BulkFailure{
				RegistrationID: registrationID,
				Reason:         attendance.FailIO,
			})
			return
		}
		if !known {
			result.Failed = append(result.Failed, attendance.BulkFailure{
				RegistrationID: registrationID,
				Reason:         attendance.FailUnknownRegistration,
			})
			return
		}
	}

	single, err := h.single.Handle(ctx, MarkAttendanceCommand{
		EventID:        cmd.EventID,
		SessionID:      cmd.SessionID,
		RegistrationID: registrationID,
		Method:         shared.MethodBulk.String(),
		Notes:          cmd.Notes,
		MarkedAt:       cmd.MarkedAt,
		CorrelationID:  cmd.CorrelationID,
	})
	if err != nil {
		reason := attendance.FailIO
		if shared.IsInvalidSession(err) {
			reason = attendance.FailInvalidSession
		}
		result.Failed = append(result.Failed, attendance.BulkFailure{
			RegistrationID: registrationID,
			Reason:         reason,
		})
		return
	}

	result.Succeeded = append(result.Succeeded, registrationID)
	if single.AlreadyMarked {
		result.AlreadyMarked = append(result.AlreadyMarked, registrationID)
	}
	result.Events = append(result.Events, single.Events...)
}

// failedIDs projects the failure list to bare registration ids.
func failedIDs(failures []attendance.BulkFailure) []string {
	ids := make([]string, 0, len(failures))
	for _, f := range failures {
		ids = append(ids, f.RegistrationID)
	}
	return ids
}
