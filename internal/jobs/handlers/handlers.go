// Package handlers provides HTTP handlers for the finished-job archive.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/jobs"
)

// Handler handles job record HTTP requests
type Handler struct {
	records *jobs.RecordStore
	log     zerolog.Logger
}

// NewHandler creates a new job records handler
func NewHandler(records *jobs.RecordStore, log zerolog.Logger) *Handler {
	return &Handler{
		records: records,
		log:     log.With().Str("handler", "jobs").Logger(),
	}
}

// HandleListRecords handles GET /api/jobs/records
func (h *Handler) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, apperr.Configuration("limit must be a non-negative integer").
				WithContext("limit", raw))
			return
		}
		limit = parsed
	}

	records, err := h.records.Recent(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []jobs.Record{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

// HandleGetRecord handles GET /api/jobs/records/{id}. The stored snapshot is
// decoded according to the job kind, so single runs return the run result
// and batches return the rankings.
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.records.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rec == nil {
		h.writeError(w, apperr.DataUnavailable("no job record with this id").
			WithContext("job_id", id))
		return
	}

	response := map[string]interface{}{
		"record": rec,
	}
	if len(rec.Snapshot) > 0 {
		switch rec.Kind {
		case domain.JobKindSingle:
			result, err := jobs.DecodeSingleSnapshot(rec.Snapshot)
			if err != nil {
				h.log.Error().Str("job_id", id).Err(err).Msg("Snapshot decode failed")
			} else {
				response["result"] = result
			}
		case domain.JobKindBatch:
			results, err := jobs.DecodeBatchSnapshot(rec.Snapshot)
			if err != nil {
				h.log.Error().Str("job_id", id).Err(err).Msg("Snapshot decode failed")
			} else {
				response["results"] = results
			}
		}
	}

	h.writeJSON(w, http.StatusOK, response)
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
