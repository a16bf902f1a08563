// Package projections implements read models for CQRS pattern.
package projections

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/campus-hub/campus-attendance-hub/internal/application/refresh"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS VIEW - Denormalized Read Model for Attendance Progress
// ══════════════════════════════════════════════════════════════════════════════

// ProgressView holds per-student progress cards for one event, rebuilt
// wholesale from each published snapshot and annotated in between by
// attendance events. It is the staff-facing read model: "who is where"
// without touching the coordinator or the stores.
type ProgressView struct {
	mu sync.RWMutex

	// eventID scopes the view; snapshots for other events are rejected.
	eventID string

	// cards holds all progress cards indexed by registration ID.
	cards map[string]*ProgressCard

	// ranking holds registration IDs ordered by percentage (desc),
	// ties broken by registration ID for stable output.
	ranking []string

	rollup       refresh.EventRollup
	strategyKind attendance.Kind

	// generation tracks the snapshot generation the view was built from.
	generation uint64

	// lastUpdated is the timestamp of the last update.
	lastUpdated time.Time

	// version is incremented on each update.
	version int64
}

// ProgressCard is a denormalized view of one student's standing.
type ProgressCard struct {
	RegistrationID string          `json:"registration_id"`
	EventID        string          `json:"event_id"`
	StrategyKind   attendance.Kind `json:"strategy_kind"`

	AttendedCount     int  `json:"attended_count"`
	RequiredUnitCount int  `json:"required_unit_count"`
	Percentage        int  `json:"percentage"`
	IsEligible        bool `json:"is_eligible"`
	IsOnTrack         bool `json:"is_on_track"`

	// Rank is the 1-based position among the event's students, ordered
	// by percentage.
	Rank int `json:"rank"`

	// StandingDisplay is a human-readable summary ("on track, 8/10").
	StandingDisplay string `json:"standing_display"`

	// MarkedSinceRefresh is set when a mark landed after the snapshot
	// this card was built from. The card's numbers are then a cycle
	// behind until the next refresh.
	MarkedSinceRefresh bool      `json:"marked_since_refresh"`
	LastMarkedAt       time.Time `json:"last_marked_at,omitempty"`

	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewProgressView creates an empty view for an event.
func NewProgressView(eventID string) *ProgressView {
	return &ProgressView{
		eventID: eventID,
		cards:   make(map[string]*ProgressCard),
	}
}

// EventID returns the event this view belongs to.
func (pv *ProgressView) EventID() string {
	return pv.eventID
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// StoreSnapshot rebuilds the whole view from a published snapshot.
// Implements the coordinator's view-cache port, so the projection is just
// another snapshot sink. Stale generations are discarded, never merged.
func (pv *ProgressView) StoreSnapshot(ctx context.Context, snapshot *refresh.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("progress view: nil snapshot")
	}
	if snapshot.EventID != pv.eventID {
		return fmt.Errorf("progress view: snapshot for event %s, view is for %s", snapshot.EventID, pv.eventID)
	}

	pv.mu.Lock()
	defer pv.mu.Unlock()

	if snapshot.Generation <= pv.generation && pv.generation != 0 {
		return nil
	}

	cards := make(map[string]*ProgressCard, len(snapshot.Students))
	ranking := make([]string, 0, len(snapshot.Students))

	for registrationID, summary := range snapshot.Students {
		cards[registrationID] = &ProgressCard{
			RegistrationID:    registrationID,
			EventID:           snapshot.EventID,
			StrategyKind:      summary.Kind,
			AttendedCount:     summary.AttendedCount,
			RequiredUnitCount: summary.RequiredUnitCount,
			Percentage:        summary.Percentage,
			IsEligible:        summary.IsEligible,
			IsOnTrack:         summary.IsOnTrack,
			StandingDisplay:   buildStandingDisplay(summary),
			Generation:        snapshot.Generation,
			UpdatedAt:         snapshot.RefreshedAt,
		}
		ranking = append(ranking, registrationID)
	}

	sort.Slice(ranking, func(i, j int) bool {
		a, b := cards[ranking[i]], cards[ranking[j]]
		if a.Percentage != b.Percentage {
			return a.Percentage > b.Percentage
		}
		return a.RegistrationID < b.RegistrationID
	})
	for i, registrationID := range ranking {
		cards[registrationID].Rank = i + 1
	}

	pv.cards = cards
	pv.ranking = ranking
	pv.rollup = snapshot.Rollup
	pv.strategyKind = snapshot.StrategyKind
	pv.generation = snapshot.Generation
	pv.lastUpdated = snapshot.RefreshedAt
	pv.version++

	return nil
}

// NoteMark flags a card as stale-pending after a mark landed. Numbers
// are not recomputed here; the next refresh cycle owns that.
func (pv *ProgressView) NoteMark(registrationID string, markedAt time.Time) {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	card, ok := pv.cards[registrationID]
	if !ok {
		return
	}

	card.MarkedSinceRefresh = true
	if markedAt.After(card.LastMarkedAt) {
		card.LastMarkedAt = markedAt
	}
	pv.version++
}

// Bind subscribes the view to the event bus so marks landing between
// refreshes show up as pending flags.
func (pv *ProgressView) Bind(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventAttendanceMarked, func(event shared.Event) error {
		payload := event.Payload()

		eventID, _ := payload["event_id"].(string)
		if eventID != pv.eventID {
			return nil
		}

		registrationID, _ := payload["registration_id"].(string)
		if registrationID == "" {
			return nil
		}

		pv.NoteMark(registrationID, event.OccurredAt())
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetCard returns the card for one registration.
func (pv *ProgressView) GetCard(ctx context.Context, registrationID string) (*ProgressCard, error) {
	pv.mu.RLock()
	defer pv.mu.RUnlock()

	card, ok := pv.cards[registrationID]
	if !ok {
		return nil, fmt.Errorf("progress view: no card for registration %s", registrationID)
	}

	return card.clone(), nil
}

// GetRanked returns cards ordered by rank with pagination.
func (pv *ProgressView) GetRanked(ctx context.Context, offset, limit int) ([]*ProgressCard, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("progress view: invalid pagination (offset=%d, limit=%d)", offset, limit)
	}

	pv.mu.RLock()
	defer pv.mu.RUnlock()

	if offset >= len(pv.ranking) {
		return []*ProgressCard{}, nil
	}

	end := len(pv.ranking)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*ProgressCard, 0, end-offset)
	for _, registrationID := range pv.ranking[offset:end] {
		out = append(out, pv.cards[registrationID].clone())
	}

	return out, nil
}

// GetAtRisk returns cards that are not on track, ordered by rank.
func (pv *ProgressView) GetAtRisk(ctx context.Context) ([]*ProgressCard, error) {
	pv.mu.RLock()
	defer pv.mu.RUnlock()

	var out []*ProgressCard
	for _, registrationID := range pv.ranking {
		if card := pv.cards[registrationID]; !card.IsOnTrack {
			out = append(out, card.clone())
		}
	}

	return out, nil
}

// Rollup returns the event-wide aggregate from the last snapshot.
func (pv *ProgressView) Rollup() refresh.EventRollup {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	return pv.rollup
}

// Count returns the number of cards in the view.
func (pv *ProgressView) Count() int {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	return len(pv.cards)
}

// Generation returns the snapshot generation the view was built from.
func (pv *ProgressView) Generation() uint64 {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	return pv.generation
}

// GetVersion returns the current version.
func (pv *ProgressView) GetVersion() int64 {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	return pv.version
}

// GetLastUpdated returns when the view was last rebuilt.
func (pv *ProgressView) GetLastUpdated() time.Time {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	return pv.lastUpdated
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// clone creates a copy of a ProgressCard so callers never share the
// view's internal state.
func (c *ProgressCard) clone() *ProgressCard {
	copied := *c
	return &copied
}

// buildStandingDisplay creates a human-readable standing summary.
func buildStandingDisplay(summary attendance.ProgressSummary) string {
	state := "on track"
	if !summary.IsOnTrack {
		state = "at risk"
	}

	return fmt.Sprintf("%s, %d/%d (%d%%)",
		state,
		summary.AttendedCount,
		summary.RequiredUnitCount,
		summary.Percentage,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT FANOUT
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotFanout forwards a published snapshot to several sinks (the
// Redis progress cache plus this view). The first error is returned
// after all sinks were attempted, so one failing sink cannot starve the
// others.
type SnapshotFanout struct {
	sinks []refresh.ViewCache
}

// NewSnapshotFanout creates a fanout over the given sinks.
func NewSnapshotFanout(sinks ...refresh.ViewCache) *SnapshotFanout {
	return &SnapshotFanout{sinks: sinks}
}

// StoreSnapshot implements refresh.ViewCache.
func (f *SnapshotFanout) StoreSnapshot(ctx context.Context, snapshot *refresh.Snapshot) error {
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.StoreSnapshot(ctx, snapshot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
