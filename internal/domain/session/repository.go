// Package session contains domain entities and business logic for the
// scheduled sessions of an event.
package session

import (
	"context"
)

// Repository defines the interface for session data persistence.
// This interface is implemented by the infrastructure layer.
// The domain layer has no knowledge of the actual storage mechanism.
type Repository interface {
	// UpsertBatch stores the latest upstream schedule for an event.
	// Existing rows are updated in place so repeated refreshes are safe.
	UpsertBatch(ctx context.Context, sessions []*Session) error

	// GetByID returns a single session by its identifier.
	GetByID(ctx context.Context, sessionID string) (*Session, error)

	// GetByEvent returns all sessions of an event ordered by start time.
	GetByEvent(ctx context.Context, eventID string) ([]*Session, error)

	// UpdateStatus persists a reclassified lifecycle status.
	UpdateStatus(ctx context.Context, sessionID string, status Status) error

	// DeleteByEvent removes every session of an event. Used when the event
	// disappears from the upstream schedule. Returns the number removed.
	DeleteByEvent(ctx context.Context, eventID string) (int, error)
}
