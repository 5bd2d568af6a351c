package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/history", func(r chi.Router) {
		r.Get("/symbols", h.HandleListSymbols)
		r.Get("/summary", h.HandleSummary)
		r.Post("/import", h.HandleImport)
	})
}
