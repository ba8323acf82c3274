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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/links", s.handleListLinks)
			r.Get("/links/{name}", s.handleGetLink)
			r.Get("/stats", s.handleStats)
			r.Get("/watchdog", s.handleWatchdog)
			r.Get("/events", s.handleListEvents)

			// WebSocket live event feed (auth via token query param)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}
