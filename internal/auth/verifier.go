package auth

import (
	"context"
	"errors"
	"fmt"
)

// Verifier validates presented tokens. Checks run signature first, then
// kind, then expiry, then revocation — a forged token never reaches the
// revocation query, and a wrong-kind token reports the kind mismatch
// even when it has also expired.
type Verifier struct {
	codec       *Codec
	revocations RevocationRepository
}

// NewVerifier creates a Verifier. A nil revocation repository skips the
// revocation check, which only suits stateless callers that accept the
// weaker guarantee.
func NewVerifier(codec *Codec, revocations RevocationRepository) *Verifier {
	return &Verifier{codec: codec, revocations: revocations}
}

// Verify decodes the token, requires the expected kind and rejects revoked
// tokens. Signature and expiry failures come out of the codec as
// ErrBadSignature, ErrTokenExpired or ErrTokenMalformed; revoked tokens
// fail with ErrTokenRevoked.
func (v *Verifier) Verify(ctx context.Context, raw string, kind TokenKind) (*Claims, error) {
	claims, err := v.codec.Decode(raw)
	if err != nil {
		// Expired tokens still carry verified claims; a kind mismatch
		// on one is the more specific failure.
		if claims != nil && claims.Kind != "" && claims.Kind != kind && errors.Is(err, ErrTokenExpired) {
			return nil, fmt.Errorf("%w: have %s, want %s", ErrWrongTokenKind, claims.Kind, kind)
		}
		return nil, err
	}

	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrWrongTokenKind, claims.Kind, kind)
	}

	if v.revocations != nil {
		revoked, err := v.revocations.IsRevoked(ctx, claims.FamilyID, claims.Subject, claims.IssuedAt.Time)
		if err != nil {
			return nil, fmt.Errorf("checking revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}
