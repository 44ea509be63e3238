package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/finchsec/authd/internal/infrastructure/logging"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// Service is the session-lifecycle facade. It composes the issuer,
// verifier and repositories into the operations the API exposes and
// enforces the ordering between them: a refresh token is redeemed exactly
// once, and any replay poisons its whole family.
type Service struct {
	users       UserRepository
	tokens      TokenRepository
	oneShots    OneShotRepository
	revocations RevocationRepository
	issuer      *Issuer
	verifier    *Verifier
	codec       *Codec
	clock       Clock
	notifier    Notifier
	events      EventSink
	logger      *logging.Logger
}

// ServiceDeps carries the collaborators a Service needs. Notifier and
// Events may be nil; the service then skips delivery and event emission.
type ServiceDeps struct {
	Users       UserRepository
	Tokens      TokenRepository
	OneShots    OneShotRepository
	Revocations RevocationRepository
	Issuer      *Issuer
	Verifier    *Verifier
	Codec       *Codec
	Clock       Clock
	Notifier    Notifier
	Events      EventSink
	Logger      *logging.Logger
}

// NewService creates the session facade.
func NewService(deps ServiceDeps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		users:       deps.Users,
		tokens:      deps.Tokens,
		oneShots:    deps.OneShots,
		revocations: deps.Revocations,
		issuer:      deps.Issuer,
		verifier:    deps.Verifier,
		codec:       deps.Codec,
		clock:       clock,
		notifier:    deps.Notifier,
		events:      deps.Events,
		logger:      logger,
	}
}

func (s *Service) emit(ctx context.Context, action, userID, familyID string, details map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, Event{
		Action:   action,
		UserID:   userID,
		FamilyID: familyID,
		Details:  details,
		At:       s.clock.Now(),
	})
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, minPasswordLength)
	}
	return nil
}

// Register creates a new account with the user role and sends an email
// verification token. Verification delivery failures are logged, not
// returned — the account exists either way and verification can be
// re-requested.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*User, error) {
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.clock.Now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.emit(ctx, EventRegister, user.ID, "", map[string]any{"email": user.Email, "role": string(user.Role)})

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn("sending verification email failed",
			"user_id", user.ID, "error", err)
	}

	return user, nil
}

// Login authenticates by email and password and starts a new session
// family. DeviceInfo is an optional free-form client description stored
// with the session.
func (s *Service) Login(ctx context.Context, email, password, deviceInfo string) (*TokenPair, *User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.emit(ctx, EventLoginFailed, "", "", map[string]any{"email": email})
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.emit(ctx, EventLoginFailed, user.ID, "", nil)
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	pair, rec, err := s.issuer.Pair(user, "", deviceInfo)
	if err != nil {
		return nil, nil, err
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return nil, nil, err
	}

	s.emit(ctx, EventLogin, user.ID, rec.FamilyID, map[string]any{"role": string(user.Role)})
	return pair, user, nil
}

// Refresh redeems a refresh token for a fresh pair in the same family.
//
// The presented token is consumed atomically with storing its successor.
// Redeeming a token that was already consumed is the replay signal: the
// whole family is revoked and the call fails with ErrTokenReuse. Expired,
// revoked or forged tokens fail before any state changes.
func (s *Service) Refresh(ctx context.Context, rawRefresh, deviceInfo string) (*TokenPair, error) {
	claims, err := s.verifier.Verify(ctx, rawRefresh, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	rec, err := s.tokens.GetByID(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if rec.TokenHash != HashToken(rawRefresh) {
		return nil, ErrTokenNotFound
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	pair, successor, err := s.issuer.Pair(user, rec.FamilyID, deviceInfo)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, rec.ID, successor); err != nil {
		if errors.Is(err, ErrTokenReuse) {
			s.poisonFamily(ctx, rec.FamilyID, rec.UserID)
			return nil, ErrTokenReuse
		}
		return nil, err
	}

	s.emit(ctx, EventRefresh, user.ID, rec.FamilyID, map[string]any{"role": string(user.Role)})
	return pair, nil
}

// poisonFamily revokes a session family after a replay. Follow-up errors
// are logged rather than returned; the caller still reports the reuse.
//
// The replaying client may disconnect the moment the reuse surfaces, so
// the revocation runs detached from the request context. It must land
// even when nobody is waiting for the response.
func (s *Service) poisonFamily(ctx context.Context, familyID, userID string) {
	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now()
	if err := s.revocations.RevokeFamily(ctx, familyID, now); err != nil {
		s.logger.Error("revoking replayed family failed",
			"family_id", familyID, "error", err)
	}
	if err := s.tokens.ConsumeFamily(ctx, familyID); err != nil {
		s.logger.Error("consuming replayed family failed",
			"family_id", familyID, "error", err)
	}
	s.logger.Warn("refresh token reuse detected",
		"family_id", familyID, "user_id", userID)
	s.emit(ctx, EventReuseDetected, userID, familyID, nil)
}

// Logout ends the session family of the presented refresh token. The
// token must carry a valid signature and kind but may already be
// consumed, so a retried logout succeeds.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	claims, err := s.codec.Decode(rawRefresh)
	if err != nil {
		return err
	}
	if claims.Kind != TokenKindRefresh {
		return fmt.Errorf("%w: have %s, want %s", ErrWrongTokenKind, claims.Kind, TokenKindRefresh)
	}

	now := s.clock.Now()
	if err := s.revocations.RevokeFamily(ctx, claims.FamilyID, now); err != nil {
		return err
	}
	if err := s.tokens.ConsumeFamily(ctx, claims.FamilyID); err != nil {
		return err
	}

	s.emit(ctx, EventLogout, claims.Subject, claims.FamilyID, nil)
	return nil
}

// VerifyAccessToken validates an access token and returns its claims.
func (s *Service) VerifyAccessToken(ctx context.Context, raw string) (*Claims, error) {
	return s.verifier.Verify(ctx, raw, TokenKindAccess)
}

// ChangePassword replaces the password after checking the current one,
// then revokes every session of the user — including the one making the
// call. The client must log in again with the new password.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if err := s.revokeAllSessions(ctx, userID); err != nil {
		return err
	}

	s.emit(ctx, EventPasswordChange, userID, "", nil)
	return nil
}

func (s *Service) revokeAllSessions(ctx context.Context, userID string) error {
	if err := s.revocations.RevokeSubject(ctx, userID, s.clock.Now()); err != nil {
		return err
	}
	if _, err := s.tokens.ConsumeAllForUser(ctx, userID); err != nil {
		return err
	}
	return nil
}

// RequestPasswordReset issues a single-use reset token and hands it to
// the notifier. An unknown email succeeds without doing anything, so the
// endpoint cannot be used to probe which addresses are registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	raw, rec, err := s.issuer.OneShotToken(user, TokenKindReset)
	if err != nil {
		return err
	}
	if err := s.oneShots.Create(ctx, rec); err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.SendPasswordReset(ctx, user.Email, raw, rec.ExpiresAt); err != nil {
			return fmt.Errorf("delivering reset token: %w", err)
		}
	}
	return nil
}

// ResetPassword redeems a reset token and sets the new password in the
// same transaction, then revokes every session of the user. A second
// redemption of the same token fails with ErrAlreadyConsumed and changes
// nothing.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	rec, err := s.lookupOneShot(ctx, rawToken, TokenKindReset)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	err = s.oneShots.Redeem(ctx, rec.ID, func(tx *sql.Tx) error {
		return s.users.UpdatePasswordTx(ctx, tx, rec.UserID, hash)
	})
	if err != nil {
		return err
	}

	if err := s.revokeAllSessions(ctx, rec.UserID); err != nil {
		return err
	}

	s.emit(ctx, EventPasswordReset, rec.UserID, "", nil)
	return nil
}

// RequestEmailVerification issues a fresh verification token for a user
// whose email is not yet verified.
func (s *Service) RequestEmailVerification(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return s.sendVerification(ctx, user)
}

func (s *Service) sendVerification(ctx context.Context, user *User) error {
	raw, rec, err := s.issuer.OneShotToken(user, TokenKindVerify)
	if err != nil {
		return err
	}
	if err := s.oneShots.Create(ctx, rec); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.SendEmailVerification(ctx, user.Email, raw, rec.ExpiresAt); err != nil {
			return fmt.Errorf("delivering verification token: %w", err)
		}
	}
	return nil
}

// VerifyEmail redeems a verification token and marks the user's email
// verified in the same transaction.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	rec, err := s.lookupOneShot(ctx, rawToken, TokenKindVerify)
	if err != nil {
		return err
	}

	err = s.oneShots.Redeem(ctx, rec.ID, func(tx *sql.Tx) error {
		return s.users.MarkEmailVerifiedTx(ctx, tx, rec.UserID)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, EventEmailVerified, rec.UserID, "", nil)
	return nil
}

// lookupOneShot decodes a one-shot token and matches it against its
// ledger record: kind, stored hash and recorded purpose must all line up.
func (s *Service) lookupOneShot(ctx context.Context, rawToken string, purpose TokenKind) (*OneShotToken, error) {
	claims, err := s.codec.Decode(rawToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != purpose {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrWrongTokenKind, claims.Kind, purpose)
	}

	rec, err := s.oneShots.GetByID(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if rec.TokenHash != HashToken(rawToken) {
		return nil, ErrTokenNotFound
	}
	if rec.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	return rec, nil
}

// Sessions lists the user's live sessions, one per active refresh token.
func (s *Service) Sessions(ctx context.Context, userID string) ([]*RefreshToken, error) {
	return s.tokens.ListActiveByUser(ctx, userID, s.clock.Now())
}

// RevokeSession ends one of the user's sessions by family id. The family
// must belong to the user and still be live.
func (s *Service) RevokeSession(ctx context.Context, userID, familyID string) error {
	sessions, err := s.tokens.ListActiveByUser(ctx, userID, s.clock.Now())
	if err != nil {
		return err
	}
	found := false
	for _, sess := range sessions {
		if sess.FamilyID == familyID {
			found = true
			break
		}
	}
	if !found {
		return ErrTokenNotFound
	}

	if err := s.revocations.RevokeFamily(ctx, familyID, s.clock.Now()); err != nil {
		return err
	}
	if err := s.tokens.ConsumeFamily(ctx, familyID); err != nil {
		return err
	}

	s.emit(ctx, EventSessionRevoked, userID, familyID, nil)
	return nil
}

// RevokeAllSessions ends every session of a user. Used by the admin
// surface and after password resets.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	if err := s.revokeAllSessions(ctx, userID); err != nil {
		return err
	}
	s.emit(ctx, EventSessionRevoked, userID, "", map[string]any{"scope": "all"})
	return nil
}

// SweepResult reports what a maintenance sweep removed.
type SweepResult struct {
	RefreshTokens int64
	OneShotTokens int64
	Revocations   int64
}

// Sweep deletes expired token records and prunes revocation entries older
// than the longest token lifetime. Expiry stays enforced by verification;
// sweeping only reclaims storage.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	var res SweepResult
	var err error

	if res.RefreshTokens, err = s.tokens.DeleteExpired(ctx, now); err != nil {
		return res, err
	}
	if res.OneShotTokens, err = s.oneShots.DeleteExpired(ctx, now); err != nil {
		return res, err
	}
	if res.Revocations, err = s.revocations.Prune(ctx, now.Add(-s.issuer.RefreshTTL())); err != nil {
		return res, err
	}
	return res, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ListUsers returns all users. Admin surface only.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.users.List(ctx)
}

// SetUserActive enables or disables an account. Disabling also revokes
// every session.
func (s *Service) SetUserActive(ctx context.Context, id string, active bool) error {
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return err
	}
	if !active {
		return s.revokeAllSessions(ctx, id)
	}
	return nil
}
