package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campus-hub/campus-attendance-hub/internal/application/command"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
)

// codeAlphabet omits characters that are hard to tell apart when a code
// is read off a projector (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeLength = 6

// DefaultCodeTTL is how long an issued code stays valid. Codes are meant
// to be shown during a session, so the default tracks a typical slot.
const DefaultCodeTTL = 90 * time.Minute

// CodeStore persists code hashes. Implemented by the postgres
// CheckinCodeRepository.
type CodeStore interface {
	SaveCodeHash(ctx context.Context, sessionID, eventID string, hash []byte, issuedAt, expiresAt time.Time) error
	GetCodeHash(ctx context.Context, sessionID string) ([]byte, time.Time, error)
	DeleteCode(ctx context.Context, sessionID string) error
}

// AttendanceMarker records a verified check-in. Implemented by the
// MarkAttendanceHandler, so code check-ins go through the same
// idempotent path as every other mark.
type AttendanceMarker interface {
	Handle(ctx context.Context, cmd command.MarkAttendanceCommand) (*command.MarkAttendanceResult, error)
}

// CheckinVerifier issues and verifies self check-in codes. The plaintext
// code exists only in the return value of IssueCode; storage holds the
// bcrypt hash.
type CheckinVerifier struct {
	codes   CodeStore
	marker  AttendanceMarker
	logger  *slog.Logger
	codeTTL time.Duration
	cost    int
	now     func() time.Time
}

func NewCheckinVerifier(codes CodeStore, marker AttendanceMarker, logger *slog.Logger) *CheckinVerifier {
	return &CheckinVerifier{
		codes:   codes,
		marker:  marker,
		logger:  logger,
		codeTTL: DefaultCodeTTL,
		cost:    bcrypt.DefaultCost,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithCodeTTL overrides the code lifetime.
func (v *CheckinVerifier) WithCodeTTL(ttl time.Duration) *CheckinVerifier {
	if ttl > 0 {
		v.codeTTL = ttl
	}
	return v
}

// WithClock overrides the time source for tests.
func (v *CheckinVerifier) WithClock(now func() time.Time) *CheckinVerifier {
	v.now = now
	return v
}

// IssueCode generates a fresh code for a session and stores its hash,
// replacing any previous code. The returned plaintext is the only copy.
func (v *CheckinVerifier) IssueCode(ctx context.Context, eventID, sessionID string) (string, error) {
	if eventID == "" || sessionID == "" {
		return "", shared.NewDomainError("checkin", "IssueCode", shared.ErrValidation, "event_id and session_id are required")
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("checkin: failed to generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), v.cost)
	if err != nil {
		return "", fmt.Errorf("checkin: failed to hash code: %w", err)
	}

	issuedAt := v.now()
	if err := v.codes.SaveCodeHash(ctx, sessionID, eventID, hash, issuedAt, issuedAt.Add(v.codeTTL)); err != nil {
		return "", err
	}

	v.logger.Info("check-in code issued",
		"event_id", eventID,
		"session_id", sessionID,
		"expires_at", issuedAt.Add(v.codeTTL),
	)

	return code, nil
}

// VerifyAndMark checks a submitted code and, on match, records the mark
// through the idempotent command path with method "code". A wrong or
// expired code never touches the ledger.
func (v *CheckinVerifier) VerifyAndMark(ctx context.Context, eventID, sessionID, registrationID, code string) (*command.MarkAttendanceResult, error) {
	hash, expiresAt, err := v.codes.GetCodeHash(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if v.now().After(expiresAt) {
		return nil, shared.ErrCheckinCodeExpired
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, shared.ErrCheckinCodeInvalid
		}
		return nil, fmt.Errorf("checkin: failed to compare code: %w", err)
	}

	return v.marker.Handle(ctx, command.MarkAttendanceCommand{
		EventID:        eventID,
		SessionID:      sessionID,
		RegistrationID: registrationID,
		Method:         "code",
	})
}

// RevokeCode drops a session's code ahead of its expiry.
func (v *CheckinVerifier) RevokeCode(ctx context.Context, sessionID string) error {
	return v.codes.DeleteCode(ctx, sessionID)
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	return string(buf), nil
}
