// Package handlers provides HTTP handlers for batch parameter optimization.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/jobs"
	"github.com/aristath/crucible/internal/modules/optimization"
)

// Handler handles optimization HTTP requests
type Handler struct {
	manager *jobs.Manager
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(manager *jobs.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleRun handles POST /api/optimization/run. The combination space is
// expanded synchronously so the response can report the totals; the runs
// themselves execute in the background.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var request optimization.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, apperr.Configuration("invalid request body: %v", err))
		return
	}

	jobID, progress, err := h.manager.SubmitBatch(request)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":             jobID,
		"status":             progress.Status,
		"total_combinations": progress.TotalCombinations,
		"total_batches":      progress.TotalBatches,
	})
}

// HandleStatus handles GET /api/optimization/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.manager.BatchStatus())
}

// HandleResults handles GET /api/optimization/results. While the job is
// still running this returns the rankings folded so far.
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.manager.BatchResults()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

// HandleAbort handles POST /api/optimization/abort. Abort is cooperative:
// in-flight runs finish their batch before the job settles.
func (h *Handler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.AbortBatch(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"aborting": true,
	})
}

// HandleClearResults handles DELETE /api/optimization/results
func (h *Handler) HandleClearResults(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ClearBatchResults(); err != nil {
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
