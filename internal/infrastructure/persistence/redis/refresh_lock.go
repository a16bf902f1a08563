package redis

import (
	"context"
	"time"
)

// RefreshLock coordinates the periodic refresh across worker replicas.
// Each event has one lock key; whichever replica sets it first owns the
// refresh for that event until the key expires. There is no explicit
// release: TTLRefreshLock is chosen shorter than the refresh cadence, so
// ownership rotates naturally and a crashed holder cannot wedge refreshes.
type RefreshLock struct {
	cache *Cache
}

// NewRefreshLock creates a refresh lock backed by the given cache.
func NewRefreshLock(cache *Cache) *RefreshLock {
	return &RefreshLock{cache: cache}
}

// AcquireRefreshLock reports whether this replica may refresh the event.
func (l *RefreshLock) AcquireRefreshLock(ctx context.Context, eventID string) (bool, error) {
	value := time.Now().UTC().Format(time.RFC3339Nano)
	return l.cache.SetNX(ctx, RefreshLockKey(eventID), value, TTLRefreshLock)
}
