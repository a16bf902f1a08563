package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCodeStore struct {
	calls    int
	failures int
	failWith error
	deleted  int
	gotNow   time.Time
}

func (s *fakeCodeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.calls++
	s.gotNow = now
	if s.calls <= s.failures {
		return 0, s.failWith
	}
	return s.deleted, nil
}

func TestCleanupExpiredJob_PurgesWithInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	config := DefaultCleanupExpiredConfig()
	config.Clock = func() time.Time { return fixed }

	store := &fakeCodeStore{deleted: 4}
	job := NewCleanupExpiredJob(store, discardLogger(), config)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, fixed, store.gotNow)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.CodesDeleted)
}

func TestCleanupExpiredJob_RetriesTransientFailure(t *testing.T) {
	store := &fakeCodeStore{deleted: 2, failures: 1, failWith: errors.New("pool exhausted")}
	job := NewCleanupExpiredJob(store, discardLogger(), DefaultCleanupExpiredConfig())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 2, job.LastRunStats().CodesDeleted)
}

func TestCleanupExpiredJob_CancellationIsNotRetried(t *testing.T) {
	store := &fakeCodeStore{failures: 3, failWith: context.Canceled}
	job := NewCleanupExpiredJob(store, discardLogger(), DefaultCleanupExpiredConfig())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, store.calls)
}
