// Package campus implements the campus event-management platform API client.
// This package handles all communication with the campus web application:
// fetching event schedules, attendance ledgers, strategy configurations and
// registered participants, and submitting single and bulk attendance marks.
package campus

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse represents a generic API response wrapper.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta contains pagination and additional metadata.
type Meta struct {
	Total      int    `json:"total,omitempty"`
	Page       int    `json:"page,omitempty"`
	PerPage    int    `json:"per_page,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// APIErrorDTO represents an error response from the campus API.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION DTOs
// ══════════════════════════════════════════════════════════════════════════════

// SessionDTO represents a session as returned by the campus API.
// This is the external representation that is mapped to the domain model.
type SessionDTO struct {
	// ID is the unique session identifier, stable per event
	ID string `json:"id"`

	// EventID is the event this session belongs to
	EventID string `json:"event_id"`

	// Name is the human-readable session title
	Name string `json:"name"`

	// StartsAt is when the session window opens (inclusive)
	StartsAt time.Time `json:"starts_at"`

	// EndsAt is when the session window closes (exclusive)
	EndsAt time.Time `json:"ends_at"`

	// Timezone is the IANA zone of the venue (e.g. "Asia/Almaty").
	// Calendar-day attribution for day-based strategies uses this zone.
	Timezone string `json:"timezone,omitempty"`

	// IsMandatory marks sessions organizers flagged as required
	IsMandatory bool `json:"is_mandatory"`

	// Status is the externally asserted lifecycle state, if any.
	// May disagree with the wall clock (early termination); empty means
	// the engine derives the status itself.
	Status string `json:"status,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceMarkDTO represents one ledger entry as returned by the campus API.
type AttendanceMarkDTO struct {
	// ID is the upstream record identifier
	ID string `json:"id"`

	// EventID, SessionID, RegistrationID form the mark's scope
	EventID        string `json:"event_id"`
	SessionID      string `json:"session_id"`
	RegistrationID string `json:"registration_id"`

	// MarkedAt is when the mark was recorded
	MarkedAt time.Time `json:"marked_at"`

	// VerificationMethod is the free-form tag (physical, code, bulk, manual)
	VerificationMethod string `json:"verification_method,omitempty"`

	// Notes is the optional organizer comment
	Notes string `json:"notes,omitempty"`
}

// MarkRequestDTO is the body of a single-mark submission.
type MarkRequestDTO struct {
	RegistrationID     string `json:"registration_id"`
	VerificationMethod string `json:"verification_method,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// BulkMarkRequestDTO is the body of a bulk-mark submission.
type BulkMarkRequestDTO struct {
	RegistrationIDs    []string `json:"registration_ids"`
	VerificationMethod string   `json:"verification_method,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

// BulkMarkFailureDTO is one failed id inside a bulk-mark response.
type BulkMarkFailureDTO struct {
	RegistrationID string `json:"registration_id"`
	Reason         string `json:"reason"`
}

// BulkMarkResponseDTO is the per-id outcome of a bulk-mark submission.
// The upstream processes ids independently: a failure never aborts the batch.
type BulkMarkResponseDTO struct {
	Succeeded []string             `json:"succeeded"`
	Failed    []BulkMarkFailureDTO `json:"failed"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StrategyConfigDTO represents an event's attendance strategy configuration.
type StrategyConfigDTO struct {
	// EventID is the event the strategy belongs to
	EventID string `json:"event_id"`

	// StrategyKind is one of single_mark, session_based, day_based,
	// milestone_based, continuous
	StrategyKind string `json:"strategy_kind"`

	// MinimumPercentage is the attendance threshold (0-100), only
	// meaningful for percentage-based kinds
	MinimumPercentage int `json:"minimum_percentage,omitempty"`

	// MandatorySessionIDs lists the required sessions for milestone_based
	MandatorySessionIDs []string `json:"mandatory_session_ids,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION DTOs
// ══════════════════════════════════════════════════════════════════════════════

// RegistrationDTO represents one registered participant of an event.
type RegistrationDTO struct {
	// ID is the registration identifier (the ledger's student key)
	ID string `json:"id"`

	// StudentID is the platform-wide student identifier
	StudentID string `json:"student_id,omitempty"`

	// DisplayName is the participant's name as shown in rosters
	DisplayName string `json:"display_name,omitempty"`

	// RegisteredAt is when the student registered for the event
	RegisteredAt time.Time `json:"registered_at,omitempty"`

	// IsCancelled marks registrations withdrawn by the student or an
	// administrator; cancelled registrations leave the roster
	IsCancelled bool `json:"is_cancelled,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH DTOs
// ══════════════════════════════════════════════════════════════════════════════

// TokenDTO represents an authentication token.
type TokenDTO struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token is past its expiry.
// Tokens without an expiry never expire client-side.
func (t TokenDTO) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(t.ExpiresAt)
}
