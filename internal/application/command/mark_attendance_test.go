package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/domain/attendance"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/session"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// ──────────────────────────────────────────────────────────────────────────────
// In-memory fakes shared by the command tests.
// ──────────────────────────────────────────────────────────────────────────────

type fakeSessionRepo struct {
	sessions map[string]*session.Session
	err      error
}

func newFakeSessionRepo(sessions ...*session.Session) *fakeSessionRepo {
	repo := &fakeSessionRepo{sessions: make(map[string]*session.Session)}
	for _, s := range sessions {
		repo.sessions[s.ID] = s
	}
	return repo
}

func (f *fakeSessionRepo) UpsertBatch(_ context.Context, sessions []*session.Session) error {
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, sessionID string) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessionRepo) GetByEvent(_ context.Context, eventID string) ([]*session.Session, error) {
	var out []*session.Session
	for _, s := range f.sessions {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) UpdateStatus(_ context.Context, sessionID string, status session.Status) error {
	if s, ok := f.sessions[sessionID]; ok {
		s.Status = status
	}
	return nil
}

func (f *fakeSessionRepo) DeleteByEvent(_ context.Context, eventID string) (int, error) {
	n := 0
	for id, s := range f.sessions {
		if s.EventID == eventID {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeMarkRepo struct {
	marks     map[string]*attendance.AttendanceMark // key: sessionID + "|" + registrationID
	insertErr error
}

func newFakeMarkRepo() *fakeMarkRepo {
	return &fakeMarkRepo{marks: make(map[string]*attendance.AttendanceMark)}
}

func markKey(sessionID, registrationID string) string {
	return sessionID + "|" + registrationID
}

func (f *fakeMarkRepo) InsertMark(_ context.Context, mark *attendance.AttendanceMark) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	key := markKey(mark.SessionID, mark.RegistrationID)
	if _, exists := f.marks[key]; exists {
		return false, nil
	}
	f.marks[key] = mark
	return true, nil
}

func (f *fakeMarkRepo) GetMarkedSessionIDs(_ context.Context, eventID, registrationID string) ([]string, error) {
	var out []string
	for _, m := range f.marks {
		if m.EventID == eventID && m.RegistrationID == registrationID {
			out = append(out, m.SessionID)
		}
	}
	return out, nil
}

func (f *fakeMarkRepo) GetMarksForStudent(_ context.Context, eventID, registrationID string) ([]*attendance.AttendanceMark, error) {
	var out []*attendance.AttendanceMark
	for _, m := range f.marks {
		if m.EventID == eventID && m.RegistrationID == registrationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMarkRepo) CountBySession(_ context.Context, sessionID string) (int, error) {
	n := 0
	for _, m := range f.marks {
		if m.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (f *fakeMarkRepo) GetSessionMarkCounts(_ context.Context, eventID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, m := range f.marks {
		if m.EventID == eventID {
			counts[m.SessionID]++
		}
	}
	return counts, nil
}

func (f *fakeMarkRepo) GetRegistrationIDs(_ context.Context, eventID string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range f.marks {
		if m.EventID != eventID {
			continue
		}
		if _, ok := seen[m.RegistrationID]; ok {
			continue
		}
		seen[m.RegistrationID] = struct{}{}
		out = append(out, m.RegistrationID)
	}
	return out, nil
}

func (f *fakeMarkRepo) SyncEventMarks(_ context.Context, eventID string, marks []*attendance.AttendanceMark) error {
	for key, m := range f.marks {
		if m.EventID == eventID {
			delete(f.marks, key)
		}
	}
	for _, m := range marks {
		f.marks[markKey(m.SessionID, m.RegistrationID)] = m
	}
	return nil
}

type fakePublisher struct {
	published []shared.Event
}

func (f *fakePublisher) Publish(event shared.Event) error {
	f.published = append(f.published, event)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

var testClock = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func testSession(t *testing.T, id, eventID string) *session.Session {
	t.Helper()
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s, err := session.NewSession(id, eventID, "Session "+id, start, start.Add(2*time.Hour), false, start)
	require.NoError(t, err)
	return s
}

func newMarkHandler(t *testing.T, sessions *fakeSessionRepo, marks *fakeMarkRepo, pub *fakePublisher) *MarkAttendanceHandler {
	t.Helper()
	return NewMarkAttendanceHandler(sessions, marks, pub).
		WithClock(func() time.Time { return testClock })
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestMarkAttendance_CreatesMark(t *testing.T) {
	sessions := newFakeSessionRepo(testSession(t, "s-1", "event-1"))
	marks := newFakeMarkRepo()
	pub := &fakePublisher{}
	handler := newMarkHandler(t, sessions, marks, pub)

	result, err := handler.Handle(context.Background(), MarkAttendanceCommand{
		EventID:        "event-1",
		SessionID:      "s-1",
		RegistrationID: "reg-1",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.AlreadyMarked)
	assert.NotEmpty(t, result.MarkID)
	assert.Equal(t, testClock, result.MarkedAt)

	stored := marks.marks[markKey("s-1", "reg-1")]
	require.NotNil(t, stored)
	assert.Equal(t, "physical", stored.Method) // default method
	assert.Equal(t, "event-1", stored.EventID)

	require.Len(t, pub.published, 1)
	marked, ok := pub.published[0].(shared.AttendanceMarkedEvent)
	require.True(t, ok)
	assert.False(t, marked.AlreadyMarked)
	assert.Equal(t, "reg-1", marked.RegistrationID)
}

func TestMarkAttendance_RemarkIsIdempotent(t *testing.T) {
	sessions := newFakeSessionRepo(testSession(t, "s-1", "event-1"))
	marks := newFakeMarkRepo()
	pub := &fakePublisher{}
	handler := newMarkHandler(t, sessions, marks, pub)

	cmd := MarkAttendanceCommand{EventID: "event-1", SessionID: "s-1", RegistrationID: "reg-1"}

	first, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.False(t, first.AlreadyMarked)

	second, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.True(t, second.AlreadyMarked)
	assert.Empty(t, second.MarkID)
	assert.Len(t, marks.marks, 1) // still exactly one logical mark

	require.Len(t, pub.published, 2)
	remark, ok := pub.published[1].(shared.AttendanceMarkedEvent)
	require.True(t, ok)
	assert.True(t, remark.AlreadyMarked)
}

func TestMarkAttendance_SessionOfAnotherEvent(t *testing.T) {
	sessions := newFakeSessionRepo(testSession(t, "s-1", "event-2"))
	handler := newMarkHandler(t, sessions, newFakeMarkRepo(), &fakePublisher{})

	_, err := handler.Handle(context.Background(), MarkAttendanceCommand{
		EventID:        "event-1",
		SessionID:      "s-1",
		RegistrationID: "reg-1",
	})

	require.Error(t, err)
	assert.True(t, shared.IsInvalidSession(err))
}

func TestMarkAttendance_UnknownSession(t *testing.T) {
	handler := newMarkHandler(t, newFakeSessionRepo(), newFakeMarkRepo(), &fakePublisher{})

	_, err := handler.Handle(context.Background(), MarkAttendanceCommand{
		EventID:        "event-1",
		SessionID:      "ghost",
		RegistrationID: "reg-1",
	})

	require.Error(t, err)
	assert.True(t, shared.IsInvalidSession(err))
}

func TestMarkAttendance_Validation(t *testing.T) {
	handler := newMarkHandler(t, newFakeSessionRepo(), newFakeMarkRepo(), &fakePublisher{})

	_, err := handler.Handle(context.Background(), MarkAttendanceCommand{SessionID: "s", RegistrationID: "r"})
	assert.Error(t, err)

	_, err = handler.Handle(context.Background(), MarkAttendanceCommand{EventID: "e", RegistrationID: "r"})
	assert.Error(t, err)

	_, err = handler.Handle(context.Background(), MarkAttendanceCommand{EventID: "e", SessionID: "s"})
	assert.Error(t, err)
}

func TestMarkAttendance_NormalizesMethod(t *testing.T) {
	sessions := newFakeSessionRepo(testSession(t, "s-1", "event-1"))
	marks := newFakeMarkRepo()
	handler := newMarkHandler(t, sessions, marks, &fakePublisher{})

	_, err := handler.Handle(context.Background(), MarkAttendanceCommand{
		EventID:        "event-1",
		SessionID:      "s-1",
		RegistrationID: "reg-1",
		Method:         "  CODE ",
		Notes:          "checked in at the door",
	})
	require.NoError(t, err)

	stored := marks.marks[markKey("s-1", "reg-1")]
	require.NotNil(t, stored)
	assert.Equal(t, "code", stored.Method)
	assert.Equal(t, "checked in at the door", stored.Notes)
}

func TestMarkAttendance_StoreFailure(t *testing.T) {
	sessions := newFakeSessionRepo(testSession(t, "s-1", "event-1"))
	marks := newFakeMarkRepo()
	marks.insertErr = errors.New("connection refused")
	handler := newMarkHandler(t, sessions, marks, &fakePublisher{})

	_, err := handler.Handle(context.Background(), MarkAttendanceCommand{
		EventID:        "event-1",
		SessionID:      "s-1",
		RegistrationID: "reg-1",
	})

	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
}
