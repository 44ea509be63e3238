package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finchsec/authd/internal/audit"
)

// ─── Admin Handlers ────────────────────────────────────────────────

// handleListUsers returns all accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetUser returns a single account by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.auth.GetUser(r.Context(), id)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleActivateUser re-enables a disabled account.
func (s *Server) handleActivateUser(w http.ResponseWriter, r *http.Request) {
	s.setUserActive(w, r, true)
}

// handleDeactivateUser disables an account and revokes its sessions.
// Admins cannot deactivate themselves.
func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	if id == claims.Subject {
		writeForbidden(w, "cannot deactivate your own account")
		return
	}

	s.setUserActive(w, r, false)
}

func (s *Server) setUserActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	if err := s.auth.SetUserActive(r.Context(), id, active); err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.logger.Info("user active state changed",
		"user_id", id,
		"active", active,
		"changed_by", claims.Subject)

	user, err := s.auth.GetUser(r.Context(), id)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleListUserSessions returns a user's active sessions.
func (s *Server) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sessions, err := s.auth.Sessions(r.Context(), id)
	if err != nil {
		s.logger.Error("list user sessions failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleRevokeUserSessions revokes every session of a user.
func (s *Server) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	if err := s.auth.RevokeAllSessions(r.Context(), id); err != nil {
		s.logger.Error("revoke user sessions failed", "error", err)
		writeInternalError(w, "failed to revoke sessions")
		return
	}

	s.logger.Info("user sessions revoked", "user_id", id, "revoked_by", claims.Subject)

	writeJSON(w, http.StatusOK, map[string]string{"status": "sessions_revoked"})
}

// handleQueryAudit queries the audit trail with optional filters.
//
// Query parameters: action, user_id, family_id, limit, offset.
func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		UserID:   q.Get("user_id"),
		FamilyID: q.Get("family_id"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "failed to query audit trail")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
