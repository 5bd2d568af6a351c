package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all job record routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/records", h.HandleListRecords)
		r.Get("/records/{id}", h.HandleGetRecord)
	})
}
