// Package session contains domain entities and business logic for the
// scheduled sessions of an event.
package session

import (
	"sort"
	"time"
)

// Registry holds the sessions of a single event ordered by start time and
// answers schedule questions against a caller-supplied instant. The registry
// never reads the wall clock itself, which keeps classification deterministic
// and testable.
type Registry struct {
	eventID  string
	sessions []*Session
	byID     map[string]*Session
}

// NewRegistry builds a registry over the given sessions. Sessions that are
// nil or belong to a different event are skipped. An empty schedule is valid:
// all lookups simply return nothing.
func NewRegistry(eventID string, sessions []*Session) *Registry {
	owned := make([]*Session, 0, len(sessions))
	byID := make(map[string]*Session, len(sessions))
	for _, s := range sessions {
		if s == nil || s.EventID != eventID {
			continue
		}
		if _, exists := byID[s.ID]; exists {
			continue // first occurrence wins
		}
		owned = append(owned, s)
		byID[s.ID] = s
	}
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].StartTime.Before(owned[j].StartTime)
	})
	return &Registry{eventID: eventID, sessions: owned, byID: byID}
}

// EventID returns the event this registry covers.
func (r *Registry) EventID() string {
	return r.eventID
}

// Len returns the number of sessions in the registry.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// All returns the sessions ordered by start time.
func (r *Registry) All() []*Session {
	return r.sessions
}

// Get returns the session with the given ID.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	s, ok := r.byID[sessionID]
	return s, ok
}

// Contains reports whether a session with the given ID belongs to the event.
func (r *Registry) Contains(sessionID string) bool {
	_, ok := r.byID[sessionID]
	return ok
}

// Current returns the session running at the given instant. When several
// sessions overlap, the one with the earliest start time wins. The second
// return value is false when nothing is running.
func (r *Registry) Current(now time.Time) (*Session, bool) {
	for _, s := range r.sessions {
		if s.IsActiveAt(now) {
			return s, true
		}
	}
	return nil, false
}

// Transition records a status change observed by ReclassifyAll.
type Transition struct {
	Session *Session
	From    Status
	To      Status
}

// ReclassifyAll refreshes every session's stored status against the given
// instant and returns the transitions that occurred, in start order.
func (r *Registry) ReclassifyAll(now time.Time) []Transition {
	var transitions []Transition
	for _, s := range r.sessions {
		from := s.Status
		if s.Reclassify(now) {
			transitions = append(transitions, Transition{Session: s, From: from, To: s.Status})
		}
	}
	return transitions
}

// CountByStatus classifies every session at the given instant and returns
// how many fall into each lifecycle state.
func (r *Registry) CountByStatus(now time.Time) map[Status]int {
	counts := make(map[Status]int, 3)
	for _, s := range r.sessions {
		counts[s.StatusAt(now)]++
	}
	return counts
}

// MandatoryIDs returns the IDs of sessions flagged mandatory, in start order.
func (r *Registry) MandatoryIDs() []string {
	var ids []string
	for _, s := range r.sessions {
		if s.IsMandatory {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
