package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all strategy catalog routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/strategies", func(r chi.Router) {
		r.Get("/", h.HandleListStrategies)
		r.Get("/parameters", h.HandleListParameters)
	})
}
