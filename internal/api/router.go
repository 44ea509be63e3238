package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Credential endpoints: no auth, rate limited per client address
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/password-reset", s.handleRequestPasswordReset)
			r.Post("/auth/password-reset/confirm", s.handleResetPassword)
			r.Post("/auth/verify-email/confirm", s.handleVerifyEmail)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/change-password", s.handleChangePassword)
			r.Post("/auth/verify-email", s.handleRequestEmailVerification)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", s.handleListSessions)
				r.Delete("/", s.handleRevokeAllSessions)
				r.Delete("/{familyID}", s.handleRevokeSession)
			})

			// WS ticket requires authentication; the WebSocket itself
			// authenticates via the single-use ticket.
			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/ws", s.handleWebSocket)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/metrics", s.handleMetrics)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", s.handleListUsers)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetUser)
						r.Post("/activate", s.handleActivateUser)
						r.Post("/deactivate", s.handleDeactivateUser)
						r.Get("/sessions", s.handleListUserSessions)
						r.Delete("/sessions", s.handleRevokeUserSessions)
					})
				})

				r.Get("/audit", s.handleQueryAudit)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
