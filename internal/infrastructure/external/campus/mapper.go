// Package campus implements the campus event-management platform API client.
package campus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to Domain Model conversion
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts campus API DTOs into domain entities. The API is the
// source of truth for schedule and ledger content; the mapper's job is to
// reject records the domain cannot represent and to restore each session's
// own timezone so calendar-day math stays anchored to the venue.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// SessionFromDTO converts a session DTO to a domain session, classified
// against the given time.
func (m *Mapper) SessionFromDTO(dto SessionDTO, now time.Time) (*session.Session, error) {
	startsAt := dto.StartsAt
	endsAt := dto.EndsAt

	// Timestamps arrive as instants; re-express them in the venue's zone so
	// day_based strategies count the venue's calendar days, not the worker's.
	if dto.Timezone != "" {
		loc, err := time.LoadLocation(dto.Timezone)
		if err != nil {
			return nil, fmt.Errorf("session %s: unknown timezone %q: %w", dto.ID, dto.Timezone, err)
		}
		startsAt = startsAt.In(loc)
		endsAt = endsAt.In(loc)
	}

	sess, err := session.NewSession(dto.ID, dto.EventID, dto.Name, startsAt, endsAt, dto.IsMandatory, now)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", dto.ID, err)
	}

	// The platform may assert a status that disagrees with the wall clock
	// (early termination). The assertion wins over the derived value.
	if dto.Status != "" {
		status := session.Status(dto.Status)
		if !status.IsValid() {
			return nil, fmt.Errorf("session %s: unknown status %q", dto.ID, dto.Status)
		}
		sess.Status = status
	}

	return sess, nil
}

// SessionsFromDTOs converts a slice of session DTOs, skipping none: a single
// malformed record fails the whole schedule, because aggregates computed
// against a partial schedule would be silently wrong.
func (m *Mapper) SessionsFromDTOs(dtos []SessionDTO, now time.Time) ([]*session.Session, error) {
	sessions := make([]*session.Session, 0, len(dtos))
	for _, dto := range dtos {
		sess, err := m.SessionFromDTO(dto, now)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// MarkFromDTO converts a ledger entry DTO to a domain attendance mark.
func (m *Mapper) MarkFromDTO(dto AttendanceMarkDTO) (*attendance.AttendanceMark, error) {
	id := dto.ID
	if id == "" {
		// Some upstream exports omit record ids; the local mirror still
		// needs a surrogate key.
		id = uuid.New().String()
	}

	mark, err := attendance.NewMark(attendance.NewMarkParams{
		ID:             id,
		EventID:        dto.EventID,
		SessionID:      dto.SessionID,
		RegistrationID: dto.RegistrationID,
		MarkedAt:       dto.MarkedAt,
		Method:         dto.VerificationMethod,
		Notes:          dto.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("mark %s/%s: %w", dto.SessionID, dto.RegistrationID, err)
	}
	return mark, nil
}

// MarksFromDTOs converts a slice of ledger DTOs. Unlike the schedule,
// individual malformed ledger rows are skipped and reported: one corrupt
// historical record must not make the whole ledger unreadable headed into
// a refresh cycle.
func (m *Mapper) MarksFromDTOs(dtos []AttendanceMarkDTO) ([]*attendance.AttendanceMark, []error) {
	marks := make([]*attendance.AttendanceMark, 0, len(dtos))
	var errs []error
	for _, dto := range dtos {
		mark, err := m.MarkFromDTO(dto)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		marks = append(marks, mark)
	}
	return marks, errs
}

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// StrategyConfigFromDTO converts a strategy DTO to a domain strategy config.
func (m *Mapper) StrategyConfigFromDTO(dto StrategyConfigDTO) (*attendance.StrategyConfig, error) {
	cfg, err := attendance.NewStrategyConfig(
		dto.EventID,
		attendance.Kind(dto.StrategyKind),
		dto.MinimumPercentage,
		dto.MandatorySessionIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("strategy config for event %s: %w", dto.EventID, err)
	}
	return cfg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// RegistrationIDsFromDTOs extracts the active roster from registration DTOs.
// Cancelled registrations are excluded: they are not part of the population
// a session's coverage is measured against.
func (m *Mapper) RegistrationIDsFromDTOs(dtos []RegistrationDTO) []string {
	ids := make([]string, 0, len(dtos))
	for _, dto := range dtos {
		if dto.ID == "" || dto.IsCancelled {
			continue
		}
		ids = append(ids, dto.ID)
	}
	return ids
}
