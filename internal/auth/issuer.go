package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints signed tokens of every kind. It builds the matching ledger
// records for refresh and one-shot tokens but never persists them; storage
// belongs to the repositories so issuance composes with their transactions.
type Issuer struct {
	codec      *Codec
	clock      Clock
	issuerName string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	verifyTTL  time.Duration
}

// IssuerConfig carries token lifetimes for an Issuer.
type IssuerConfig struct {
	IssuerName string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	VerifyTTL  time.Duration
}

// NewIssuer creates an Issuer. A nil clock defaults to the system clock.
func NewIssuer(codec *Codec, clock Clock, cfg IssuerConfig) *Issuer {
	if clock == nil {
		clock = SystemClock()
	}
	name := cfg.IssuerName
	if name == "" {
		name = "authd"
	}
	return &Issuer{
		codec:      codec,
		clock:      clock,
		issuerName: name,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		resetTTL:   cfg.ResetTTL,
		verifyTTL:  cfg.VerifyTTL,
	}
}

func (i *Issuer) mint(user *User, kind TokenKind, familyID string, ttl time.Duration) (string, *Claims, error) {
	now := i.clock.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    i.issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     user.Role,
		Kind:     kind,
		FamilyID: familyID,
	}
	raw, err := i.codec.Encode(claims)
	if err != nil {
		return "", nil, err
	}
	return raw, claims, nil
}

// AccessToken mints a short-lived access token bound to the session family.
func (i *Issuer) AccessToken(user *User, familyID string) (string, time.Time, error) {
	raw, claims, err := i.mint(user, TokenKindAccess, familyID, i.accessTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, claims.ExpiresAt.Time, nil
}

// RefreshToken mints a refresh token and its ledger record. An empty
// familyID starts a new session family.
func (i *Issuer) RefreshToken(user *User, familyID, deviceInfo string) (string, *RefreshToken, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}
	raw, claims, err := i.mint(user, TokenKindRefresh, familyID, i.refreshTTL)
	if err != nil {
		return "", nil, err
	}
	rec := &RefreshToken{
		ID:         claims.ID,
		UserID:     user.ID,
		FamilyID:   familyID,
		TokenHash:  HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  claims.ExpiresAt.Time,
		CreatedAt:  claims.IssuedAt.Time,
	}
	return raw, rec, nil
}

// Pair mints an access/refresh pair sharing one family. The refresh
// record still needs persisting by the caller.
func (i *Issuer) Pair(user *User, familyID, deviceInfo string) (*TokenPair, *RefreshToken, error) {
	refreshRaw, rec, err := i.RefreshToken(user, familyID, deviceInfo)
	if err != nil {
		return nil, nil, err
	}
	accessRaw, accessExp, err := i.AccessToken(user, rec.FamilyID)
	if err != nil {
		return nil, nil, err
	}
	pair := &TokenPair{
		AccessToken:      accessRaw,
		RefreshToken:     refreshRaw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}
	return pair, rec, nil
}

// OneShotToken mints a reset or verification token and its ledger record.
func (i *Issuer) OneShotToken(user *User, purpose TokenKind) (string, *OneShotToken, error) {
	var ttl time.Duration
	switch purpose {
	case TokenKindReset:
		ttl = i.resetTTL
	case TokenKindVerify:
		ttl = i.verifyTTL
	default:
		return "", nil, fmt.Errorf("%w: %s is not a one-shot kind", ErrWrongTokenKind, purpose)
	}
	raw, claims, err := i.mint(user, purpose, "", ttl)
	if err != nil {
		return "", nil, err
	}
	rec := &OneShotToken{
		ID:        claims.ID,
		UserID:    user.ID,
		Purpose:   purpose,
		TokenHash: HashToken(raw),
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: claims.IssuedAt.Time,
	}
	return raw, rec, nil
}

// RefreshTTL reports the configured refresh token lifetime. Sweep and
// prune cutoffs derive from it.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }
