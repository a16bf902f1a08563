package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-hub/campus-attendance-hub/internal/application/command"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

type storedCode struct {
	eventID   string
	hash      []byte
	issuedAt  time.Time
	expiresAt time.Time
}

type fakeCodeStore struct {
	codes map[string]storedCode
	err   error
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{codes: make(map[string]storedCode)}
}

func (s *fakeCodeStore) SaveCodeHash(_ context.Context, sessionID, eventID string, hash []byte, issuedAt, expiresAt time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.codes[sessionID] = storedCode{eventID: eventID, hash: hash, issuedAt: issuedAt, expiresAt: expiresAt}
	return nil
}

func (s *fakeCodeStore) GetCodeHash(_ context.Context, sessionID string) ([]byte, time.Time, error) {
	if s.err != nil {
		return nil, time.Time{}, s.err
	}
	stored, ok := s.codes[sessionID]
	if !ok {
		return nil, time.Time{}, shared.ErrCheckinCodeNotFound
	}
	return stored.hash, stored.expiresAt, nil
}

func (s *fakeCodeStore) DeleteCode(_ context.Context, sessionID string) error {
	delete(s.codes, sessionID)
	return nil
}

type fakeMarker struct {
	commands []command.MarkAttendanceCommand
	err      error
}

func (m *fakeMarker) Handle(_ context.Context, cmd command.MarkAttendanceCommand) (*command.MarkAttendanceResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.commands = append(m.commands, cmd)
	return &command.MarkAttendanceResult{
		Success:        true,
		EventID:        cmd.EventID,
		SessionID:      cmd.SessionID,
		RegistrationID: cmd.RegistrationID,
	}, nil
}

func serviceTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestVerifier(t *testing.T) (*CheckinVerifier, *fakeCodeStore, *fakeMarker) {
	t.Helper()
	store := newFakeCodeStore()
	marker := &fakeMarker{}
	return NewCheckinVerifier(store, marker, serviceTestLogger()), store, marker
}

func TestCheckinVerifier_IssueAndVerify(t *testing.T) {
	verifier, _, marker := newTestVerifier(t)
	ctx := context.Background()

	code, err := verifier.IssueCode(ctx, "event-1", "session-1")
	require.NoError(t, err)
	require.Len(t, code, 6)

	result, err := verifier.VerifyAndMark(ctx, "event-1", "session-1", "reg-a", code)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, marker.commands, 1)
	cmd := marker.commands[0]
	assert.Equal(t, "event-1", cmd.EventID)
	assert.Equal(t, "session-1", cmd.SessionID)
	assert.Equal(t, "reg-a", cmd.RegistrationID)
	assert.Equal(t, "code", cmd.Method)
}

func TestCheckinVerifier_CodeUsesReadableAlphabet(t *testing.T) {
	verifier, _, _ := newTestVerifier(t)

	// Several issues to catch a random character escaping the alphabet.
	for i := 0; i < 20; i++ {
		code, err := verifier.IssueCode(context.Background(), "event-1", "session-1")
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r),
				"code %q contains %q outside the alphabet", code, r)
		}
	}
}

func TestCheckinVerifier_WrongCodeRejected(t *testing.T) {
	verifier, _, marker := newTestVerifier(t)
	ctx := context.Background()

	_, err := verifier.IssueCode(ctx, "event-1", "session-1")
	require.NoError(t, err)

	result, err := verifier.VerifyAndMark(ctx, "event-1", "session-1", "reg-a", "WRONG2")
	assert.ErrorIs(t, err, shared.ErrCheckinCodeInvalid)
	assert.Nil(t, result)
	assert.Empty(t, marker.commands, "a rejected code must never reach the ledger")
}

func TestCheckinVerifier_ExpiredCodeRejected(t *testing.T) {
	verifier, _, marker := newTestVerifier(t)

	current := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	verifier.WithClock(func() time.Time { return current })

	ctx := context.Background()
	code, err := verifier.IssueCode(ctx, "event-1", "session-1")
	require.NoError(t, err)

	// Valid right after issuance
	_, err = verifier.VerifyAndMark(ctx, "event-1", "session-1", "reg-a", code)
	require.NoError(t, err)

	current = current.Add(DefaultCodeTTL + time.Minute)

	result, err := verifier.VerifyAndMark(ctx, "event-1", "session-1", "reg-b", code)
	assert.ErrorIs(t, err, shared.ErrCheckinCodeExpired)
	assert.Nil(t, result)
	require.Len(t, marker.commands, 1, "only the pre-expiry check-in is recorded")
}

func TestCheckinVerifier_CustomTTL(t *testing.T) {
	verifier, store, _ := newTestVerifier(t)

	issuedAt := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	verifier.WithClock(func() time.Time { return issuedAt }).WithCodeTTL(15 * time.Minute)

	_, err := verifier.IssueCode(context.Background(), "event-1", "session-1")
	require.NoError(t, err)

	stored := store.codes["session-1"]
	assert.Equal(t, issuedAt.Add(15*time.Minute), stored.expiresAt)
	assert.Equal(t, "event-1", stored.eventID)
}

func TestCheckinVerifier_UnknownSession(t *testing.T) {
	verifier, _, _ := newTestVerifier(t)

	_, err := verifier.VerifyAndMark(context.Background(), "event-1", "no-such-session", "reg-a", "ABCDEF")
	assert.ErrorIs(t, err, shared.ErrCheckinCodeNotFound)
}

func TestCheckinVerifier_ReissueReplacesCode(t *testing.T) {
	verifier, _, _ := newTestVerifier(t)
	ctx := context.Background()

	first, err := verifier.IssueCode(ctx, "event-1", "session-1")
	require.NoError(t, err)

	second, err := verifier.IssueCode(ctx, "event-1", "session-1")
	require.NoError(t, err)

	// The old code stops working, the new one works.
	_, err = verifier.VerifyAndMark(ctx, "event-1", "session-1", "reg-a", first)
	if first != second {
		assert.ErrorIs(t, err, shared.ErrCheckinCodeInvalid)
	}

	_, err = verifier.VerifyAndMark(ctx, "event-1", "session-1", "reg-a", second)
	assert.NoError(t, err)
}

func TestCheckinVerifier_RevokeCode(t *testing.T) {
	verifier, _, _ := newTestVerifier(t)
	ctx := context.Background()

	code, err := verifier.IssueCode(ctx, "event-1", "session-1")
	require.NoError(t, err)

	require.NoError(t, verifier.RevokeCode(ctx, "session-1"))

	_, err = verifier.VerifyAndMark(ctx, "event-1", "session-1", "reg-a", code)
	assert.ErrorIs(t, err, shared.ErrCheckinCodeNotFound)
}

func TestCheckinVerifier_IssueValidation(t *testing.T) {
	verifier, store, _ := newTestVerifier(t)

	_, err := verifier.IssueCode(context.Background(), "", "session-1")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = verifier.IssueCode(context.Background(), "event-1", "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.Empty(t, store.codes)
}
