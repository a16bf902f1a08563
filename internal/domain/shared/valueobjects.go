// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// RegistrationID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// RegistrationID represents a student's registration on an event. The
// upstream platform issues these, so the format is opaque: any non-empty
// trimmed string up to 64 characters is accepted.
type RegistrationID string

// MaxRegistrationIDLength is the upper bound the upstream platform uses.
const MaxRegistrationIDLength = 64

// IsValid checks if the registration ID is valid.
func (r RegistrationID) IsValid() bool {
	s := string(r)
	return s != "" && len(s) <= MaxRegistrationIDLength && strings.TrimSpace(s) == s
}

// String returns the string representation.
func (r RegistrationID) String() string {
	return string(r)
}

// IsEmpty checks if the ID is empty.
func (r RegistrationID) IsEmpty() bool {
	return r == ""
}

// NewRegistrationID creates a new RegistrationID with validation.
func NewRegistrationID(id string) (RegistrationID, error) {
	rid := RegistrationID(strings.TrimSpace(id))
	if !rid.IsValid() {
		return "", NewDomainError("shared", "NewRegistrationID", ErrInvalidID, "invalid registration ID")
	}
	return rid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Percentage Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Percentage represents a whole-number percentage (0-100), used both for
// strategy thresholds and computed completion fractions.
type Percentage int

const (
	MinPercentage Percentage = 0
	MaxPercentage Percentage = 100
)

// IsValid checks if the percentage is within valid range.
func (p Percentage) IsValid() bool {
	return p >= MinPercentage && p <= MaxPercentage
}

// Int returns the underlying int value.
func (p Percentage) Int() int {
	return int(p)
}

// Meets reports whether the percentage reaches the given threshold.
func (p Percentage) Meets(threshold Percentage) bool {
	return p >= threshold
}

// NewPercentage creates a new Percentage with validation.
func NewPercentage(value int) (Percentage, error) {
	p := Percentage(value)
	if !p.IsValid() {
		return 0, NewDomainError("shared", "NewPercentage", ErrValueOutOfRange, "percentage must be between 0 and 100")
	}
	return p, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// VerificationMethod Value Object
// ═══════════════════════════════════════════════════════════════════════════

// VerificationMethod tags how an attendance mark was verified. The tag is
// free-form by contract with the upstream platform; the constants below are
// the values this engine produces itself.
type VerificationMethod string

const (
	// MethodPhysical - marked in person by an organizer.
	MethodPhysical VerificationMethod = "physical"

	// MethodCode - student presented a valid session check-in code.
	MethodCode VerificationMethod = "code"

	// MethodBulk - recorded through a bulk mark operation.
	MethodBulk VerificationMethod = "bulk"

	// MethodManual - manual administrative entry.
	MethodManual VerificationMethod = "manual"
)

// IsEmpty checks if no method was supplied.
func (v VerificationMethod) IsEmpty() bool {
	return strings.TrimSpace(string(v)) == ""
}

// String returns the string representation.
func (v VerificationMethod) String() string {
	return string(v)
}

// OrDefault returns the method, or MethodPhysical when empty.
func (v VerificationMethod) OrDefault() VerificationMethod {
	if v.IsEmpty() {
		return MethodPhysical
	}
	return v
}

// NormalizeVerificationMethod trims and lowercases a free-form tag.
func NormalizeVerificationMethod(raw string) VerificationMethod {
	return VerificationMethod(strings.ToLower(strings.TrimSpace(raw)))
}
