// Package refresh implements the polling coordinator that keeps the local
// attendance view in sync with the upstream campus API. A refresh cycle
// re-fetches the schedule, the mark ledger and the strategy config,
// recomputes every aggregate and atomically swaps the published snapshot.
package refresh

import (
	"math"
	"sort"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// SessionCoverage is the per-session view: how many students were marked
// against the registered population.
type SessionCoverage struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Attended  int    `json:"attended"`
	Total     int    `json:"total"`
}

// EventRollup is the event-wide view. A session counts as covered when at
// least one student is marked on it, regardless of how many.
type EventRollup struct {
	TotalSessions          int  `json:"total_sessions"`
	SessionsWithAttendance int  `json:"sessions_with_attendance"`
	OverallPercentage      int  `json:"overall_percentage"`
	IsOnTrack              bool `json:"is_on_track"`
}

// Snapshot is one immutable, fully recomputed view of an event. Readers get
// the whole snapshot or nothing; fields are never mutated after publishing.
type Snapshot struct {
	EventID           string                                `json:"event_id"`
	Generation        uint64                                `json:"generation"`
	RefreshedAt       time.Time                             `json:"refreshed_at"`
	StrategyKind      attendance.Kind                       `json:"strategy_kind"`
	MinimumPercentage int                                   `json:"minimum_percentage"`
	Students          map[string]attendance.ProgressSummary `json:"students"`
	Sessions          []SessionCoverage                     `json:"sessions"`
	Rollup            EventRollup                           `json:"rollup"`
}

// Student returns the progress summary for one registration.
func (s *Snapshot) Student(registrationID string) (attendance.ProgressSummary, bool) {
	summary, ok := s.Students[registrationID]
	return summary, ok
}

// StudentCount returns the number of students in the snapshot.
func (s *Snapshot) StudentCount() int {
	return len(s.Students)
}

// AtRiskRegistrations returns the registrations that are not on track,
// sorted for stable output.
func (s *Snapshot) AtRiskRegistrations() []string {
	var out []string
	for registrationID, summary := range s.Students {
		if !summary.IsOnTrack {
			out = append(out, registrationID)
		}
	}
	sort.Strings(out)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// BuildSnapshot recomputes every aggregate from freshly fetched upstream
// state. It is pure: all inputs are explicit and the clock is a parameter.
//
// The student population is the union of the registered roster and every
// student present in the ledger, so late ledger entries for unregistered
// students still show up instead of silently vanishing.
func BuildSnapshot(
	eventID string,
	generation uint64,
	cfg *attendance.StrategyConfig,
	sessions []*session.Session,
	marks []*attendance.AttendanceMark,
	registrations []string,
	refreshedAt time.Time,
) (*Snapshot, error) {
	if cfg == nil {
		return nil, attendance.ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := session.NewRegistry(eventID, sessions)

	infos := make([]attendance.SessionInfo, 0, registry.Len())
	for _, s := range registry.All() {
		infos = append(infos, attendance.SessionInfo{ID: s.ID, StartsAt: s.StartTime})
	}

	// Ledger grouped by student; a (session, student) pair counts once.
	marksByStudent := make(map[string]attendance.MarkSet)
	attendedBySession := make(map[string]map[string]struct{})
	for _, m := range marks {
		if m == nil || m.EventID != eventID {
			continue
		}
		set, ok := marksByStudent[m.RegistrationID]
		if !ok {
			set = attendance.NewMarkSet()
			marksByStudent[m.RegistrationID] = set
		}
		set.Add(m.SessionID)

		students, ok := attendedBySession[m.SessionID]
		if !ok {
			students = make(map[string]struct{})
			attendedBySession[m.SessionID] = students
		}
		students[m.RegistrationID] = struct{}{}
	}

	population := make(map[string]struct{}, len(registrations)+len(marksByStudent))
	for _, registrationID := range registrations {
		if registrationID != "" {
			population[registrationID] = struct{}{}
		}
	}
	for registrationID := range marksByStudent {
		population[registrationID] = struct{}{}
	}

	students := make(map[string]attendance.ProgressSummary, len(population))
	for registrationID := range population {
		marked := marksByStudent[registrationID]
		if marked == nil {
			marked = attendance.NewMarkSet()
		}
		summary, err := attendance.Evaluate(cfg, infos, marked, refreshedAt)
		if err != nil {
			return nil, err
		}
		students[registrationID] = summary
	}

	total := len(registrations)
	coverages := make([]SessionCoverage, 0, registry.Len())
	covered := 0
	for _, s := range registry.All() {
		attended := len(attendedBySession[s.ID])
		if attended > 0 {
			covered++
		}
		coverages = append(coverages, SessionCoverage{
			SessionID: s.ID,
			Name:      s.Name,
			Attended:  attended,
			Total:     total,
		})
	}

	rollup := EventRollup{
		TotalSessions:          registry.Len(),
		SessionsWithAttendance: covered,
		OverallPercentage:      roundShare(covered, registry.Len()),
	}
	rollup.IsOnTrack = rollupVerdict(cfg, rollup.OverallPercentage, covered, attendedBySession)

	return &Snapshot{
		EventID:           eventID,
		Generation:        generation,
		RefreshedAt:       refreshedAt,
		StrategyKind:      cfg.Kind,
		MinimumPercentage: cfg.MinimumPercentage,
		Students:          students,
		Sessions:          coverages,
		Rollup:            rollup,
	}, nil
}

// rollupVerdict renders the event-level IsOnTrack in the terms of its
// strategy: coverage share for percentage kinds, one covered session for
// single_mark, every mandatory session covered for milestone_based.
func rollupVerdict(cfg *attendance.StrategyConfig, overallPercentage, covered int, attendedBySession map[string]map[string]struct{}) bool {
	switch cfg.Kind {
	case attendance.KindSingleMark:
		return covered >= 1
	case attendance.KindMilestoneBased:
		for _, id := range cfg.MandatorySessionIDs {
			if len(attendedBySession[id]) == 0 {
				return false
			}
		}
		return len(cfg.MandatorySessionIDs) > 0
	default:
		return overallPercentage >= cfg.MinimumPercentage
	}
}

// roundShare rounds 100*part/whole half away from zero; a zero base yields
// zero instead of a division error.
func roundShare(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
