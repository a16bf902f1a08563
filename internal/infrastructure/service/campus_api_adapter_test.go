package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/external/campus"
)

type fakeSessionMirror struct {
	upserted []*session.Session
	stored   []*session.Session
	getErr   error
}

func (m *fakeSessionMirror) UpsertBatch(_ context.Context, sessions []*session.Session) error {
	m.upserted = append(m.upserted, sessions...)
	return nil
}

func (m *fakeSessionMirror) GetByEvent(_ context.Context, _ string) ([]*session.Session, error) {
	return m.stored, m.getErr
}

type fakeMarkMirror struct {
	syncedEventID string
	synced        []*attendance.AttendanceMark
	stored        []*attendance.AttendanceMark
	getErr        error
}

func (m *fakeMarkMirror) SyncEventMarks(_ context.Context, eventID string, marks []*attendance.AttendanceMark) error {
	m.syncedEventID = eventID
	m.synced = marks
	return nil
}

func (m *fakeMarkMirror) GetEventMarks(_ context.Context, _ string) ([]*attendance.AttendanceMark, error) {
	return m.stored, m.getErr
}

type fakeConfigMirror struct {
	upserted *attendance.StrategyConfig
	stored   *attendance.StrategyConfig
	getErr   error
}

func (m *fakeConfigMirror) Upsert(_ context.Context, cfg *attendance.StrategyConfig) error {
	m.upserted = cfg
	return nil
}

func (m *fakeConfigMirror) GetByEvent(_ context.Context, _ string) (*attendance.StrategyConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stored, nil
}

type adapterFixture struct {
	adapter  *CampusSourceAdapter
	sessions *fakeSessionMirror
	marks    *fakeMarkMirror
	configs  *fakeConfigMirror
}

// newAdapterFixture wires an adapter against an httptest upstream. Retries
// are disabled so outage tests fail over immediately instead of backing off.
func newAdapterFixture(t *testing.T, handler http.HandlerFunc) *adapterFixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := campus.DefaultClientConfig(server.URL)
	config.APIKey = "test-key"
	config.Logger = serviceTestLogger()
	config.RetryConfig.MaxRetries = 0

	f := &adapterFixture{
		sessions: &fakeSessionMirror{},
		marks:    &fakeMarkMirror{},
		configs:  &fakeConfigMirror{},
	}
	f.adapter = NewCampusSourceAdapter(
		campus.NewClient(config),
		f.sessions, f.marks, f.configs,
		nil, // без кэша: roster идёт напрямую в API
		serviceTestLogger(),
	).WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	})
	return f
}

func upstreamDown(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusInternalServerError)
}

func TestCampusSourceAdapter_FetchSessionsMirrorsSchedule(t *testing.T) {
	f := newAdapterFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events/evt-hackathon/sessions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"success": true,
			"data": [
				{
					"id": "sess-opening",
					"event_id": "evt-hackathon",
					"name": "Opening Keynote",
					"starts_at": "2026-03-02T04:00:00Z",
					"ends_at": "2026-03-02T06:00:00Z",
					"is_mandatory": true
				}
			]
		}`)
	})

	sessions, err := f.adapter.FetchSessions(context.Background(), "evt-hackathon")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-opening", sessions[0].ID)

	// Каждый успешный fetch прописывается в зеркало.
	require.Len(t, f.sessions.upserted, 1)
	assert.Equal(t, "sess-opening", f.sessions.upserted[0].ID)
}

func TestCampusSourceAdapter_FetchSessionsFallsBackToMirror(t *testing.T) {
	f := newAdapterFixture(t, upstreamDown)

	now := time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	mirrored, err := session.NewSession("sess-mirrored", "evt-hackathon", "Workshop",
		now.Add(-time.Hour), now.Add(time.Hour), true, now)
	require.NoError(t, err)
	f.sessions.stored = []*session.Session{mirrored}

	sessions, err := f.adapter.FetchSessions(context.Background(), "evt-hackathon")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-mirrored", sessions[0].ID)
}

func TestCampusSourceAdapter_FetchSessionsEmptyMirrorPropagatesOutage(t *testing.T) {
	f := newAdapterFixture(t, upstreamDown)

	_, err := f.adapter.FetchSessions(context.Background(), "evt-hackathon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestCampusSourceAdapter_FetchMarksSyncsLedgerMirror(t *testing.T) {
	f := newAdapterFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events/evt-hackathon/marks", r.URL.Path)
		fmt.Fprint(w, `{
			"success": true,
			"data": [
				{
					"id": "mark-1",
					"event_id": "evt-hackathon",
					"session_id": "sess-opening",
					"registration_id": "reg-alice",
					"marked_at": "2026-03-02T04:10:00Z",
					"verification_method": "physical"
				}
			],
			"meta": {"total": 1, "total_pages": 1}
		}`)
	})

	marks, err := f.adapter.FetchMarks(context.Background(), "evt-hackathon")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, "reg-alice", marks[0].RegistrationID)

	assert.Equal(t, "evt-hackathon", f.marks.syncedEventID)
	require.Len(t, f.marks.synced, 1)
}

func TestCampusSourceAdapter_FetchMarksFallsBackToMirror(t *testing.T) {
	f := newAdapterFixture(t, upstreamDown)

	mark, err := attendance.NewMark(attendance.NewMarkParams{
		ID:             "mark-mirrored",
		EventID:        "evt-hackathon",
		SessionID:      "sess-opening",
		RegistrationID: "reg-bob",
		MarkedAt:       time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	f.marks.stored = []*attendance.AttendanceMark{mark}

	marks, err := f.adapter.FetchMarks(context.Background(), "evt-hackathon")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, "mark-mirrored", marks[0].ID)
}

func TestCampusSourceAdapter_StrategyConfigNotConfiguredSkipsMirror(t *testing.T) {
	f := newAdapterFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code": "NOT_FOUND", "message": "no strategy configured"}`)
	})

	stale, err := attendance.NewStrategyConfig("evt-hackathon", attendance.KindSessionBased, 75, nil)
	require.NoError(t, err)
	f.configs.stored = stale

	// Организатор мог удалить стратегию: определённый ответ "не настроено"
	// не подменяется устаревшим зеркалом.
	_, err = f.adapter.FetchStrategyConfig(context.Background(), "evt-hackathon")
	require.ErrorIs(t, err, shared.ErrStrategyConfigMissing)
}

func TestCampusSourceAdapter_StrategyConfigFallsBackToMirror(t *testing.T) {
	f := newAdapterFixture(t, upstreamDown)

	mirrored, err := attendance.NewStrategyConfig("evt-hackathon", attendance.KindDayBased, 60, nil)
	require.NoError(t, err)
	f.configs.stored = mirrored

	cfg, err := f.adapter.FetchStrategyConfig(context.Background(), "evt-hackathon")
	require.NoError(t, err)
	assert.Equal(t, attendance.KindDayBased, cfg.Kind)
	assert.Equal(t, 60, cfg.MinimumPercentage)
}

func TestCampusSourceAdapter_StrategyConfigMirrorsSuccess(t *testing.T) {
	f := newAdapterFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"success": true,
			"data": {
				"event_id": "evt-hackathon",
				"strategy_kind": "session_based",
				"minimum_percentage": 80
			}
		}`)
	})

	cfg, err := f.adapter.FetchStrategyConfig(context.Background(), "evt-hackathon")
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.MinimumPercentage)

	require.NotNil(t, f.configs.upserted)
	assert.Equal(t, "evt-hackathon", f.configs.upserted.EventID)
}

func TestCampusSourceAdapter_ExistsChecksRoster(t *testing.T) {
	f := newAdapterFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events/evt-hackathon/registrations", r.URL.Path)
		fmt.Fprint(w, `{
			"success": true,
			"data": [
				{"id": "reg-alice"},
				{"id": "reg-cancelled", "is_cancelled": true}
			],
			"meta": {"total": 2, "total_pages": 1}
		}`)
	})

	ok, err := f.adapter.Exists(context.Background(), "evt-hackathon", "reg-alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.adapter.Exists(context.Background(), "evt-hackathon", "reg-cancelled")
	require.NoError(t, err)
	assert.False(t, ok, "cancelled registrations are off the roster")
}
