// Package handlers provides HTTP handlers for historical data access.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/modules/history"
)

// Handler handles history HTTP requests
type Handler struct {
	store    *history.Store
	importer *history.Importer
	log      zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(store *history.Store, importer *history.Importer, log zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		importer: importer,
		log:      log.With().Str("handler", "history").Logger(),
	}
}

// HandleListSymbols handles GET /api/history/symbols
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.store.ListSymbols()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if symbols == nil {
		symbols = []history.SymbolInfo{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": symbols,
	})
}

// HandleSummary handles GET /api/history/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.Summary()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []history.SeriesSummary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"series": summaries,
	})
}

// HandleImport handles POST /api/history/import
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Symbol    string `json:"symbol"`
		Timeframe string `json:"timeframe"`
		Filename  string `json:"filename"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, apperr.Configuration("invalid request body: %v", err))
		return
	}
	if request.Symbol == "" {
		h.writeError(w, apperr.Configuration("symbol is required"))
		return
	}

	timeframe, err := history.ParseTimeframe(request.Timeframe)
	if err != nil {
		h.writeError(w, apperr.Configuration("%v", err).WithContext("timeframe", request.Timeframe))
		return
	}

	imported, err := h.importer.Import(request.Symbol, timeframe, request.Filename)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    request.Symbol,
		"timeframe": timeframe,
		"imported":  imported,
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
