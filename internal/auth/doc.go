// Package auth implements the token-based authentication and
// session-lifecycle core of authd.
//
// It provides:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Signed JWT access, refresh, reset, and verification tokens (HS256)
//   - Single-use refresh token rotation with family-based reuse detection
//   - Revocation entries keyed by token family or subject
//   - Single-use, time-bound tokens for password reset and email verification
//
// The security model centres on the refresh token ledger: every refresh
// token belongs to a family created at login, a token may be redeemed
// exactly once, and presenting an already-consumed token revokes the whole
// family. A stolen rotated-out token therefore poisons the entire chain
// and forces re-authentication.
//
// All persistence goes through repository interfaces backed by SQLite;
// tests substitute temp-file databases with the same schema. Time is read
// through the Clock interface so expiry behaviour is testable.
package auth
