// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// Attendance core errors. These four form the engine's error taxonomy:
// session/event mismatch, missing strategy configuration, partially failed
// bulk marking, and recoverable I/O failures during refresh.
var (
	// ErrInvalidSession - the session does not belong to the event.
	ErrInvalidSession = errors.New("session does not belong to event")

	// ErrConfigMissing - no strategy config exists for the event. A distinct
	// "not configured" state, surfaced to the caller rather than defaulted.
	ErrConfigMissing = errors.New("strategy config missing for event")

	// ErrPartialBulkFailure - some ids in a bulk mark failed. Carries the
	// failed subset through the bulk result, never thrown as a hard error.
	ErrPartialBulkFailure = errors.New("bulk mark partially failed")

	// ErrTransientIO - network/storage failure during refresh. Logged and
	// swallowed by the polling coordinator; recovered on the next tick.
	ErrTransientIO = errors.New("transient io failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "session", "attendance", "refresh"
	Op      string // Operation that failed, e.g., "MarkOne", "Classify"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Session domain errors
var (
	ErrSessionNotFound      = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrInvalidSessionWindow = NewDomainError("session", "Validate", ErrValidation, "endTime must be after startTime")
	ErrEmptySessionID       = NewDomainError("session", "Validate", ErrInvalidID, "session id cannot be empty")
	ErrInvalidSessionStatus = NewDomainError("session", "Validate", ErrInvalidState, "invalid session status")
)

// Attendance domain errors
var (
	ErrMarkInvalidSession    = NewDomainError("attendance", "Mark", ErrInvalidSession, "session does not belong to event")
	ErrEmptyRegistrationID   = NewDomainError("attendance", "Validate", ErrInvalidID, "registration id cannot be empty")
	ErrUnknownRegistration   = NewDomainError("attendance", "Mark", ErrNotFound, "registration not found for event")
	ErrUnknownStrategyKind   = NewDomainError("attendance", "Evaluate", ErrInvalidInput, "unknown strategy kind")
	ErrStrategyConfigMissing = NewDomainError("attendance", "Evaluate", ErrConfigMissing, "no strategy config for event")
	ErrInvalidPercentage     = NewDomainError("attendance", "Validate", ErrValueOutOfRange, "minimum percentage must be between 0 and 100")
	ErrNoMandatorySessions   = NewDomainError("attendance", "Validate", ErrInvalidInput, "milestone strategy requires mandatory session ids")
)

// Check-in code errors
var (
	ErrCheckinCodeNotFound = NewDomainError("checkin", "Verify", ErrNotFound, "no check-in code for session")
	ErrCheckinCodeInvalid  = NewDomainError("checkin", "Verify", ErrValidation, "check-in code does not match")
	ErrCheckinCodeExpired  = NewDomainError("checkin", "Verify", ErrExpired, "check-in code expired")
)

// External service errors
var (
	ErrCampusAPIUnavailable     = NewDomainError("campus", "Request", ErrServiceUnavailable, "campus API is unavailable")
	ErrCampusAPIRateLimited     = NewDomainError("campus", "Request", ErrRateLimited, "campus API rate limit exceeded")
	ErrCampusAPITimeout         = NewDomainError("campus", "Request", ErrTimeout, "campus API request timeout")
	ErrCampusAPIInvalidResponse = NewDomainError("campus", "Parse", ErrInvalidFormat, "invalid response from campus API")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsInvalidSession checks if the error signals a session/event mismatch.
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}

// IsConfigMissing checks if the error signals a missing strategy config.
func IsConfigMissing(err error) bool {
	return errors.Is(err, ErrConfigMissing)
}

// IsTransient checks if the error is a recoverable I/O failure: the polling
// coordinator logs these and keeps the last-known-good view.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
