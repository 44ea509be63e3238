package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims extends JWT registered claims with authd-specific fields.
//
// The registered ID (jti) doubles as the ledger record id for refresh and
// one-shot tokens. FamilyID links every refresh token descended from one
// login and is empty on other kinds.
type Claims struct {
	jwt.RegisteredClaims
	Role     Role      `json:"role,omitempty"`
	Kind     TokenKind `json:"kind"`
	FamilyID string    `json:"fid,omitempty"`
}

// Codec encodes and decodes signed tokens. Tokens are HS256 JWTs; decoding
// never trusts unverified claims. Codec methods are pure apart from reading
// the clock and are safe for concurrent use.
type Codec struct {
	secret []byte
	clock  Clock
}

// NewCodec creates a Codec with the given signing secret.
// A nil clock defaults to the system clock.
func NewCodec(secret string, clock Clock) *Codec {
	if clock == nil {
		clock = SystemClock()
	}
	return &Codec{secret: []byte(secret), clock: clock}
}

// Encode signs the claims and returns the compact token string.
func (c *Codec) Encode(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", claims.Kind, err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of a token string and returns
// its claims.
//
// Errors are mapped onto the package sentinels: ErrTokenMalformed,
// ErrBadSignature, ErrTokenExpired. Expiry is evaluated against the
// injected clock. On ErrTokenExpired the claims are still returned: the
// signature already checked out, and callers such as the verifier need
// the kind of an expired token to report the more specific failure.
func (c *Codec) Decode(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			expired := fmt.Errorf("%w: %w", ErrTokenExpired, err)
			if token != nil {
				if claims, ok := token.Claims.(*Claims); ok {
					return claims, expired
				}
			}
			return nil, expired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	if claims.Kind == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrTokenMalformed)
	}

	return claims, nil
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored — only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
