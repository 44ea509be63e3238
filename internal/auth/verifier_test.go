package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifier_KindMismatch(t *testing.T) {
	db := testDB(t)
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	verifier := NewVerifier(codec, NewSQLiteRevocationRepository(db))

	raw, err := codec.Encode(testClaims(TokenKindRefresh, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), raw, TokenKindAccess); !errors.Is(err, ErrWrongTokenKind) {
		t.Errorf("expected ErrWrongTokenKind, got %v", err)
	}
	if _, err := verifier.Verify(context.Background(), raw, TokenKindRefresh); err != nil {
		t.Errorf("matching kind should verify: %v", err)
	}
}

func TestVerifier_RevokedFamily(t *testing.T) {
	db := testDB(t)
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	revs := NewSQLiteRevocationRepository(db)
	verifier := NewVerifier(codec, revs)

	raw, err := codec.Encode(testClaims(TokenKindAccess, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), raw, TokenKindAccess); err != nil {
		t.Fatalf("token should verify before revocation: %v", err)
	}

	if err := revs.RevokeFamily(context.Background(), "family-1", clock.Now()); err != nil {
		t.Fatalf("revoking: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), raw, TokenKindAccess); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestVerifier_SubjectRevocationSparesLaterTokens(t *testing.T) {
	db := testDB(t)
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	revs := NewSQLiteRevocationRepository(db)
	verifier := NewVerifier(codec, revs)

	before, err := codec.Encode(testClaims(TokenKindAccess, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	clock.Advance(2 * time.Second)
	if err := revs.RevokeSubject(context.Background(), "user-1", clock.Now()); err != nil {
		t.Fatalf("revoking subject: %v", err)
	}

	clock.Advance(2 * time.Second)
	after := testClaims(TokenKindAccess, clock.Now(), time.Hour)
	after.FamilyID = "family-2"
	afterRaw, err := codec.Encode(after)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), before, TokenKindAccess); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("pre-revocation token: expected ErrTokenRevoked, got %v", err)
	}
	if _, err := verifier.Verify(context.Background(), afterRaw, TokenKindAccess); err != nil {
		t.Errorf("post-revocation token should verify: %v", err)
	}
}

func TestVerifier_ChecksSignatureBeforeRevocation(t *testing.T) {
	db := testDB(t)
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	revs := NewSQLiteRevocationRepository(db)
	verifier := NewVerifier(codec, revs)

	if err := revs.RevokeFamily(context.Background(), "family-1", clock.Now()); err != nil {
		t.Fatalf("revoking: %v", err)
	}

	forged, err := NewCodec("wrong-secret-0123456789abcdef012345678", clock).
		Encode(testClaims(TokenKindAccess, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding forged token: %v", err)
	}

	// A bad signature wins over the revoked family
	if _, err := verifier.Verify(context.Background(), forged, TokenKindAccess); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifier_ExpiredBeatsRevoked(t *testing.T) {
	db := testDB(t)
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	revs := NewSQLiteRevocationRepository(db)
	verifier := NewVerifier(codec, revs)

	raw, err := codec.Encode(testClaims(TokenKindAccess, clock.Now(), time.Minute))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	if err := revs.RevokeFamily(context.Background(), "family-1", clock.Now()); err != nil {
		t.Fatalf("revoking: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := verifier.Verify(context.Background(), raw, TokenKindAccess); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

// An expired token of the wrong kind reports the kind mismatch, not the
// expiry: the caller presented the wrong token and a fresher copy of it
// would fail just the same.
func TestVerifier_ExpiredWrongKind(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	verifier := NewVerifier(codec, nil)

	raw, err := codec.Encode(testClaims(TokenKindRefresh, clock.Now(), time.Minute))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := verifier.Verify(context.Background(), raw, TokenKindAccess); !errors.Is(err, ErrWrongTokenKind) {
		t.Errorf("expected ErrWrongTokenKind, got %v", err)
	}
	// With the right kind, expiry is the failure
	if _, err := verifier.Verify(context.Background(), raw, TokenKindRefresh); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifier_NilRevocations(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	verifier := NewVerifier(codec, nil)

	raw, err := codec.Encode(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "t",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
		Kind: TokenKindAccess,
	})
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	if _, err := verifier.Verify(context.Background(), raw, TokenKindAccess); err != nil {
		t.Errorf("stateless verify should pass: %v", err)
	}
}
