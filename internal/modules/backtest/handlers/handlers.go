// Package handlers provides HTTP handlers for single backtest runs.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/jobs"
	"github.com/aristath/crucible/internal/modules/backtest"
)

// Handler handles backtest HTTP requests
type Handler struct {
	manager *jobs.Manager
	log     zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(manager *jobs.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleRun handles POST /api/backtest/run. The run executes in the
// background; the response carries the job ID for polling.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var request backtest.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, apperr.Configuration("invalid request body: %v", err))
		return
	}

	jobID, err := h.manager.SubmitSingleRun(request)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"status": "RUNNING",
	})
}

// HandleStatus handles GET /api/backtest/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.manager.SingleStatus())
}

// HandleResult handles GET /api/backtest/result
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.LastSingleResult()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleClearResult handles DELETE /api/backtest/result
func (h *Handler) HandleClearResult(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ClearSingleResult(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": true,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a structured error response
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	h.log.Warn().Str("kind", string(appErr.Kind)).Msg(appErr.Message)
	h.writeJSON(w, appErr.HTTPStatus(), map[string]interface{}{
		"error": appErr,
	})
}
