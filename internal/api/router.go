package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/users", s.handleListUsers)
		r.Get("/ports", s.handleListPorts)
		r.Get("/history", s.handleListHistory)
	})

	// Registered last so a WebSocket path of "/" does not shadow /api/v1.
	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}
