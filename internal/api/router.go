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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Account endpoints (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// CDN processing callback (HMAC-authenticated, no user session)
		r.Post("/uploads/webhook", s.handleUploadWebhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Video catalog endpoints
			r.Route("/videos", func(r chi.Router) {
				r.Get("/", s.handleListVideos)
				r.Post("/", s.handleCreateVideo)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetVideo)
					r.Patch("/", s.handleUpdateVideo)
					r.Delete("/", s.handleDeleteVideo)
					r.Post("/view", s.handleRecordView)
				})
			})

			// Direct-upload handshake
			r.Post("/uploads/sign", s.handleSignUpload)

			// Account activity trail
			r.Get("/audit", s.handleListAuditEvents)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status, including the backing
// store connection state. The store check uses the shared cached
// connection; a cold cache triggers the first connection attempt.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	storeStatus := "ok"
	if err := s.store.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		storeStatus = "unavailable"
	}

	analyticsStatus := "disabled"
	if s.analytics.IsConnected() {
		analyticsStatus = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"version":   s.version,
		"store":     storeStatus,
		"analytics": analyticsStatus,
	})
}
