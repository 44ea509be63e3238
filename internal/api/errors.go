package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finchsec/authd/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeTooManyRequests writes a 429 error response.
func writeTooManyRequests(w http.ResponseWriter, message string) {
	writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps an auth package error onto an HTTP response.
//
// Credential and token failures collapse to 401 without detail so the
// response does not leak which check failed. Validation problems are 400,
// duplicates 409, everything unexpected 500.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrTokenReuse),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrBadSignature),
		errors.Is(err, auth.ErrWrongTokenKind),
		errors.Is(err, auth.ErrAlreadyConsumed),
		errors.Is(err, auth.ErrPurposeMismatch):
		writeUnauthorized(w, "invalid or expired credentials")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeForbidden(w, "account is disabled")
	case errors.Is(err, auth.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid email address")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "password must be at least 8 characters")
	case errors.Is(err, auth.ErrEmailExists):
		writeConflict(w, "email already registered")
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrTokenNotFound):
		writeNotFound(w, "not found")
	default:
		s.logger.Error("unhandled auth error", "error", err)
		writeInternalError(w, "internal server error")
	}
}
