// Package handlers provides HTTP handlers for the strategy catalog.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/modules/strategy"
)

// Handler handles strategy catalog HTTP requests
type Handler struct {
	registry    *strategy.Registry
	definitions *strategy.Definitions
	log         zerolog.Logger
}

// NewHandler creates a new strategy handler
func NewHandler(registry *strategy.Registry, definitions *strategy.Definitions, log zerolog.Logger) *Handler {
	return &Handler{
		registry:    registry,
		definitions: definitions,
		log:         log.With().Str("handler", "strategy").Logger(),
	}
}

// HandleListStrategies handles GET /api/strategies
func (h *Handler) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": h.registry.List(),
	})
}

// HandleListParameters handles GET /api/strategies/parameters
func (h *Handler) HandleListParameters(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.definitions)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
