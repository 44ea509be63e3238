package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finchsec/authd/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

type loginResponse struct {
	TokenPair *auth.TokenPair `json:"tokens"`
	User      *auth.User      `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceInfo   string `json:"device_info,omitempty"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleRegister creates a new account and sends the verification hand-off.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleLogin authenticates a user and returns an access/refresh pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, user, err := s.auth.Login(r.Context(), req.Email, req.Password, req.DeviceInfo)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{TokenPair: pair, User: user})
}

// handleRefresh rotates a refresh token and returns a fresh pair.
//
// An unknown or already-consumed token is reported as 401, not 404:
// refresh is a credential check and the response must not reveal whether
// the token ever existed.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken, req.DeviceInfo)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			writeUnauthorized(w, "invalid or expired credentials")
			return
		}
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout ends the session the presented refresh token belongs to.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRequestPasswordReset issues a reset token for the given address.
//
// Always answers 202: whether the address is registered must not be
// observable from this endpoint.
func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}

	if err := s.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		// Delivery failure is the one case worth surfacing: the caller
		// would otherwise wait for a message that never arrives.
		s.logger.Error("password reset hand-off failed", "error", err)
		writeInternalError(w, "failed to send reset message")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleResetPassword redeems a reset token and sets the new password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

// handleVerifyEmail redeems a verification token.
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	if err := s.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "email_verified"})
}

// handleRequestEmailVerification re-sends the verification hand-off for
// the authenticated account.
func (s *Server) handleRequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.auth.RequestEmailVerification(r.Context(), claims.Subject); err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleChangePassword changes the caller's password and revokes every
// session, including the one making this request.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), claims.Subject, req.OldPassword, req.NewPassword); err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// handleMe returns the authenticated account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.auth.GetUser(r.Context(), claims.Subject)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
