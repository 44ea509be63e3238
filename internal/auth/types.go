package auth

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// emailPattern is a pragmatic format check: one @, no spaces, a dot in the
// domain. Full RFC 5322 validation buys nothing here — delivery is the
// only real test of an address.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// maxEmailLength is the maximum allowed email address length.
const maxEmailLength = 254

// IsValidEmail checks if an email address meets format requirements.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Role represents an authorisation tier certified by the token claims.
// The core certifies identity and role only; authorisation decisions
// belong to the caller.
type Role string

const (
	// RoleUser is a regular account holder.
	RoleUser Role = "user"

	// RoleAdmin can manage accounts and query the audit trail.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid account roles.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if the role is a valid account role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// TokenKind identifies what a signed token may be used for.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
	TokenKindReset   TokenKind = "reset"
	TokenKindVerify  TokenKind = "verify"
)

// User represents an authenticated account.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	PasswordHash  string    `json:"-"` // never serialised
	Role          Role      `json:"role"`
	IsActive      bool      `json:"is_active"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RefreshToken represents a stored refresh token record.
//
// One record exists per issued refresh token. Rotation marks the presented
// record consumed and inserts its successor in the same family; at most one
// non-consumed record exists per family at any time.
type RefreshToken struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FamilyID   string    `json:"family_id"`
	TokenHash  string    `json:"-"` // never serialised
	DeviceInfo string    `json:"device_info,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Consumed   bool      `json:"consumed"`
	CreatedAt  time.Time `json:"created_at"`
}

// OneShotToken represents a stored single-use token record for password
// reset or email verification.
type OneShotToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Purpose   TokenKind `json:"purpose"`
	TokenHash string    `json:"-"` // never serialised
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
	CreatedAt time.Time `json:"created_at"`
}

// Revocation is an append-only entry invalidating a token family or all of
// a subject's tokens issued at or before RevokedAt.
type Revocation struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	RevokedAt time.Time `json:"revoked_at"`
}

// TokenPair is an access/refresh token pair returned by login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Clock supplies the current time for expiry math. Injectable for testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Notifier delivers reset and verification tokens to an account holder.
// The core never sends mail itself; it hands the message to this
// collaborator.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
	SendEmailVerification(ctx context.Context, email, token string, expiresAt time.Time) error
}

// Event describes a session-lifecycle occurrence worth recording.
type Event struct {
	Action   string         `json:"action"`
	UserID   string         `json:"user_id,omitempty"`
	FamilyID string         `json:"family_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// Event actions emitted by the session facade.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventLoginFailed    = "login_failed"
	EventRefresh        = "refresh"
	EventReuseDetected  = "reuse_detected"
	EventLogout         = "logout"
	EventPasswordChange = "password_changed"
	EventPasswordReset  = "password_reset"
	EventEmailVerified  = "email_verified"
	EventSessionRevoked = "session_revoked"
)

// EventSink receives session-lifecycle events. Implementations must not
// block the calling request for long; delivery is best-effort.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

// Emit delivers the event to every sink in order.
func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailExists        = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenNotFound      = errors.New("token not found")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenMalformed     = errors.New("malformed token")
	ErrBadSignature       = errors.New("invalid token signature")
	ErrWrongTokenKind     = errors.New("wrong token kind")
	ErrAlreadyConsumed    = errors.New("token already consumed")
	ErrPurposeMismatch    = errors.New("token purpose mismatch")
)
