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
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/registers", func(r chi.Router) {
			r.Get("/", s.handleListRegisters)
			r.Get("/{name}", s.handleReadRegister)
			r.With(s.authMiddleware).Put("/{name}", s.handleWriteRegister)
		})

		r.With(s.authMiddleware).Post("/reconcile", s.handleReconcile)

		r.Route("/history", func(r chi.Router) {
			r.Get("/passes", s.handleListPasses)
			r.Get("/writes", s.handleListWrites)
		})

		r.Get("/ws", s.handleWebSocket)
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
