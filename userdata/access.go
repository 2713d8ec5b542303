// Package userdata defines the persistence port for users, identifiers,
// credentials, devices, OTP challenges, and one-time action tokens, plus a
// mutex-guarded in-memory implementation used by tests and the examples.
//
// Production deployments implement [Access] against their own user store;
// the flow steps only ever see this interface.
package userdata

import (
	"context"
	"errors"
	"time"

	"github.com/ppcloud/idp/identifier"
)

var (
	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("userdata: not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("userdata: already exists")
)

// Rejection reasons produced by the atomic OTP and action-token consumers.
// Internal diagnostics; flows map them to anti-enumeration hints.
const (
	ReasonChallengeNotFound   = "CHALLENGE_NOT_FOUND"
	ReasonOTPExpired          = "OTP_EXPIRED"
	ReasonOTPAlreadyPassed    = "OTP_ALREADY_PASSED"
	ReasonOTPAttemptsExceeded = "OTP_ATTEMPTS_EXCEEDED"
	ReasonOTPCodeMismatch     = "OTP_CODE_MISMATCH"

	ReasonTokenNotFound        = "TOKEN_NOT_FOUND"
	ReasonTokenExpired         = "TOKEN_EXPIRED"
	ReasonTokenAlreadyUsed     = "TOKEN_ALREADY_USED"
	ReasonTokenPurposeMismatch = "TOKEN_PURPOSE_MISMATCH"
)

// DefaultOTPMaxAttempts caps wrong-code guesses per challenge.
const DefaultOTPMaxAttempts = 5

// User is a tenant-scoped account.
type User struct {
	TenantID  string
	ID        string
	Status    string
	CreatedAt time.Time
}

// UserStatusActive is the only status flows accept for login.
const UserStatusActive = "ACTIVE"

// Identifier links a normalized login identifier to a user.
type Identifier struct {
	TenantID  string
	Type      identifier.Type
	Norm      string
	UserID    string
	Verified  bool
	CreatedAt time.Time
}

// PasswordRecord is a user's stored credential plus failure counters.
type PasswordRecord struct {
	TenantID  string
	UserID    string
	Hash      string
	FailCount int
	UpdatedAt time.Time
}

// Device tracks when a hashed device fingerprint was seen for a user.
type Device struct {
	TenantID   string
	UserID     string
	DeviceHash string
	FirstSeen  time.Time
	LastSeen   time.Time
	SeenCount  int
}

// OTPChallenge is one outstanding verification code. Only the code's hash
// is stored.
type OTPChallenge struct {
	TenantID    string
	ID          string
	Target      string
	Purpose     string
	CodeHash    string
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
	PassedAt    time.Time
	CreatedAt   time.Time
}

// ActionToken is a one-time server-side grant minted by a completed
// verification and consumed by a follow-up operation. Stored by hash.
type ActionToken struct {
	TenantID   string
	Hash       string
	UserID     string
	Purpose    string
	Payload    map[string]string
	ExpiresAt  time.Time
	ConsumedAt time.Time
}

// OTPVerifyResult is the outcome of one atomic code check.
type OTPVerifyResult struct {
	OK     bool
	Reason string
	// Target echoes the challenge target on success so the caller can
	// mark the right identifier verified.
	Target string
}

// ActionTokenConsumeResult is the outcome of one atomic token consume.
type ActionTokenConsumeResult struct {
	OK      bool
	Reason  string
	UserID  string
	Payload map[string]string
}

// Access is the persistence port the workflow steps run against. Every
// implementation must make VerifyOTP and ConsumeActionToken atomic: the
// check and the state transition happen as one operation, so concurrent
// calls cannot both succeed.
type Access interface {
	FindUser(ctx context.Context, tenantID, userID string) (*User, error)
	CreateUser(ctx context.Context, user *User) error

	FindIdentifier(ctx context.Context, tenantID string, typ identifier.Type, norm string) (*Identifier, error)
	SaveIdentifier(ctx context.Context, ident *Identifier) error
	MarkIdentifierVerified(ctx context.Context, tenantID string, typ identifier.Type, norm string) error

	FindPassword(ctx context.Context, tenantID, userID string) (*PasswordRecord, error)
	SavePassword(ctx context.Context, rec *PasswordRecord) error
	// BumpPasswordFail increments the failure counter and returns the new
	// value. Lockout policy is the caller's decision.
	BumpPasswordFail(ctx context.Context, tenantID, userID string) (int, error)
	ClearPasswordFail(ctx context.Context, tenantID, userID string) error

	FindDevice(ctx context.Context, tenantID, userID, deviceHash string) (*Device, error)
	UpsertDeviceSeen(ctx context.Context, tenantID, userID, deviceHash string, now time.Time) (*Device, error)

	CreateOTP(ctx context.Context, challenge *OTPChallenge) error
	// VerifyOTP checks not-expired, not-already-passed, attempts under the
	// cap, and hash match as one conditional update. A mismatch counts an
	// attempt; a success stamps PassedAt.
	VerifyOTP(ctx context.Context, tenantID, challengeID, codeHash string, now time.Time) (OTPVerifyResult, error)

	CreateActionToken(ctx context.Context, token *ActionToken) error
	// ConsumeActionToken validates purpose and expiry and stamps
	// ConsumedAt as one conditional update. Exactly one concurrent caller
	// can succeed.
	ConsumeActionToken(ctx context.Context, tenantID, tokenHash, purpose string, now time.Time) (ActionTokenConsumeResult, error)
}
