package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/optimization", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
		r.Get("/status", h.HandleStatus)
		r.Get("/results", h.HandleResults)
		r.Post("/abort", h.HandleAbort)
		r.Delete("/results", h.HandleClearResults)
	})
}
