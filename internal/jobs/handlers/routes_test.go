package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/jobs"
	"github.com/aristath/crucible/internal/modules/backtest"
	testingpkg "github.com/aristath/crucible/internal/testing"
)

func setupRouter(t *testing.T) (*chi.Mux, *jobs.RecordStore) {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "results")
	t.Cleanup(cleanup)

	records := jobs.NewRecordStore(db.Conn(), zerolog.Nop())
	router := chi.NewRouter()
	NewHandler(records, zerolog.Nop()).RegisterRoutes(router)
	return router, records
}

func insertRecord(t *testing.T, store *jobs.RecordStore, id string, finished time.Time, snapshot []byte) {
	t.Helper()
	require.NoError(t, store.Insert(&jobs.Record{
		ID:            id,
		Kind:          domain.JobKindSingle,
		Status:        domain.JobDone,
		Symbol:        "XAUUSD",
		Strategies:    []string{"SMC"},
		Timeframe:     "H1",
		TotalRuns:     1,
		CompletedRuns: 1,
		Snapshot:      snapshot,
		CreatedAt:     finished.Add(-time.Second),
		FinishedAt:    finished,
	}))
}

func TestHandleListRecords_NewestFirst(t *testing.T) {
	router, store := setupRouter(t)

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	insertRecord(t, store, "run-a", base, nil)
	insertRecord(t, store, "run-b", base.Add(time.Hour), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/records", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Records []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"records"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.Len(t, response.Records, 2)
	assert.Equal(t, "run-b", response.Records[0].ID)
	assert.Equal(t, "run-a", response.Records[1].ID)
}

func TestHandleListRecords_HonorsLimit(t *testing.T) {
	router, store := setupRouter(t)

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		insertRecord(t, store, string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute), nil)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/records?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Records []json.RawMessage `json:"records"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Len(t, response.Records, 2)
}

func TestHandleListRecords_RejectsBadLimit(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/records?limit=many", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListRecords_EmptyStoreReturnsEmptyList(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/records", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records": []}`, rec.Body.String())
}

func TestHandleGetRecord_DecodesSingleSnapshot(t *testing.T) {
	router, store := setupRouter(t)

	snapshot, err := jobs.EncodeSnapshot(&backtest.RunResult{
		ID: "run-1",
		Metrics: backtest.MetricsSummary{
			NetProfit:    175.6,
			FinalBalance: 10175.6,
		},
	})
	require.NoError(t, err)
	insertRecord(t, store, "run-1", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), snapshot)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/records/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Record struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"record"`
		Result struct {
			Metrics struct {
				NetProfit float64 `json:"net_profit"`
			} `json:"metrics"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "run-1", response.Record.ID)
	assert.Equal(t, "single", response.Record.Kind)
	assert.Equal(t, 175.6, response.Result.Metrics.NetProfit)
}

func TestHandleGetRecord_UnknownIDIsNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/records/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var response struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "DATA_UNAVAILABLE", response.Error.Kind)
}
