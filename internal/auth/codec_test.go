package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(kind TokenKind, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "token-1",
			Subject:   "user-1",
			Issuer:    "authd",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     RoleUser,
		Kind:     kind,
		FamilyID: "family-1",
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)

	raw, err := codec.Encode(testClaims(TokenKindAccess, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	if strings.Count(raw, ".") != 2 {
		t.Fatalf("expected compact JWT, got %q", raw)
	}

	claims, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if claims.ID != "token-1" {
		t.Errorf("expected jti token-1, got %s", claims.ID)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}
	if claims.Kind != TokenKindAccess {
		t.Errorf("expected kind access, got %s", claims.Kind)
	}
	if claims.FamilyID != "family-1" {
		t.Errorf("expected family family-1, got %s", claims.FamilyID)
	}
	if claims.Role != RoleUser {
		t.Errorf("expected role user, got %s", claims.Role)
	}
}

func TestCodec_WrongSecret(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	other := NewCodec("another-secret-0123456789abcdef0123456789", clock)

	raw, err := codec.Encode(testClaims(TokenKindAccess, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	if _, err := other.Decode(raw); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestCodec_Expired(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)

	raw, err := codec.Encode(testClaims(TokenKindAccess, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	// Valid right up to the boundary, rejected after it
	if _, err := codec.Decode(raw); err != nil {
		t.Fatalf("token should be valid before expiry: %v", err)
	}
	clock.Advance(time.Hour + time.Second)
	claims, err := codec.Decode(raw)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
	// The signature checked out, so the claims still come back and
	// callers can tell what kind of token just expired
	if claims == nil || claims.Kind != TokenKindAccess {
		t.Errorf("expired decode should return the claims, got %+v", claims)
	}
}

func TestCodec_Malformed(t *testing.T) {
	codec := NewCodec(testSecret, nil)

	for _, raw := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		if _, err := codec.Decode(raw); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Decode(%q): expected ErrTokenMalformed, got %v", raw, err)
		}
	}
}

func TestCodec_TamperedPayload(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)

	raw, err := codec.Encode(testClaims(TokenKindAccess, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	parts := strings.Split(raw, ".")
	// Swap the payload for another token's payload; signature no longer matches
	raw2, err := codec.Encode(testClaims(TokenKindRefresh, clock.Now(), time.Hour))
	if err != nil {
		t.Fatalf("encoding second token: %v", err)
	}
	tampered := parts[0] + "." + strings.Split(raw2, ".")[1] + "." + parts[2]

	if _, err := codec.Decode(tampered); err == nil {
		t.Error("expected tampered token to be rejected")
	}
}

func TestCodec_MissingSubject(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)

	claims := testClaims(TokenKindAccess, clock.Now(), time.Hour)
	claims.Subject = ""
	raw, err := codec.Encode(claims)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	if _, err := codec.Decode(raw); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("expected ErrTokenMalformed for missing subject, got %v", err)
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	h3 := HashToken("other-token")

	if h1 != h2 {
		t.Error("expected identical input to hash identically")
	}
	if h1 == h3 {
		t.Error("expected distinct inputs to hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(h1))
	}
}
