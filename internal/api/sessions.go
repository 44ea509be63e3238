package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListSessions returns the caller's active sessions.
//
// Each entry is a live refresh token family: family id, device info,
// issue and expiry times. Token hashes are never serialised.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	sessions, err := s.auth.Sessions(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleRevokeSession revokes one of the caller's sessions by family id.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	familyID := chi.URLParam(r, "familyID")

	if err := s.auth.RevokeSession(r.Context(), claims.Subject, familyID); err != nil {
		s.writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRevokeAllSessions revokes every session of the caller. The access
// token behind this request stops verifying too; the client must log in
// again.
func (s *Server) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.auth.RevokeAllSessions(r.Context(), claims.Subject); err != nil {
		s.logger.Error("revoke all sessions failed", "error", err)
		writeInternalError(w, "failed to revoke sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sessions_revoked"})
}
