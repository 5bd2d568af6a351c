package handlers

import (
	"bytes"
	"context"
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
	"github.com/aristath/crucible/internal/events"
	"github.com/aristath/crucible/internal/jobs"
	"github.com/aristath/crucible/internal/modules/backtest"
	"github.com/aristath/crucible/internal/modules/optimization"
	testingpkg "github.com/aristath/crucible/internal/testing"
)

// fastExecutor completes every run immediately with a profit derived from
// the enumeration index
type fastExecutor struct{}

func (fastExecutor) Execute(ctx context.Context, id string, req backtest.RunRequest, enumIndex int, progress backtest.ProgressFunc) (*backtest.RunResult, error) {
	profit := float64(enumIndex * 10)
	return &backtest.RunResult{
		ID:        id,
		Strategy:  req.Strategy,
		EnumIndex: enumIndex,
		Metrics: backtest.MetricsSummary{
			NetProfit:    profit,
			FinalBalance: req.InitialBalance + profit,
		},
	}, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *jobs.Manager) {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "results")
	t.Cleanup(cleanup)

	records := jobs.NewRecordStore(db.Conn(), zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	scheduler := optimization.NewScheduler(fastExecutor{}, optimization.SchedulerConfig{
		Workers:          2,
		DefaultBatchSize: 50,
		DefaultTopK:      5,
	}, zerolog.Nop())
	manager := jobs.NewManager(fastExecutor{}, scheduler, records, bus, zerolog.Nop())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	router := chi.NewRouter()
	NewHandler(manager, zerolog.Nop()).RegisterRoutes(router)
	return router, manager
}

func batchBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"symbol":     "XAUUSD",
		"timeframe":  "H1",
		"from":       "2025-01-01T00:00:00Z",
		"to":         "2025-02-01T00:00:00Z",
		"strategies": []string{"SMC"},
		"parameters": []map[string]interface{}{
			{"name": "riskReward", "type": "number", "min": 1, "max": 3, "step": 1, "enabled": true},
		},
		"batch_size":          2,
		"top_results_to_keep": 2,
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func waitForDone(t *testing.T, manager *jobs.Manager) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if manager.BatchStatus().Status == domain.JobDone {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch job never completed")
}

func TestHandleRun_AcceptsAndReportsTotals(t *testing.T) {
	router, manager := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimization/run", batchBody(t)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var response struct {
		JobID             string `json:"job_id"`
		Status            string `json:"status"`
		TotalCombinations int    `json:"total_combinations"`
		TotalBatches      int    `json:"total_batches"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.NotEmpty(t, response.JobID)
	assert.Equal(t, "RUNNING", response.Status)
	assert.Equal(t, 3, response.TotalCombinations)
	assert.Equal(t, 2, response.TotalBatches)

	waitForDone(t, manager)
}

func TestHandleRun_RejectsInvalidRequest(t *testing.T) {
	router, _ := setupRouter(t)

	body := bytes.NewBufferString(`{"symbol": "", "timeframe": "H1"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimization/run", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var response struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "CONFIGURATION_ERROR", response.Error.Kind)
}

func TestHandleRun_ConflictWhileRunning(t *testing.T) {
	router, manager := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimization/run", batchBody(t)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The second submission races the first job's completion, so accept
	// either a conflict or an accepted resubmission after it finished.
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/optimization/run", batchBody(t)))
	assert.Contains(t, []int{http.StatusAccepted, http.StatusConflict}, second.Code)

	waitForDone(t, manager)
}

func TestHandleStatusAndResults_FullCycle(t *testing.T) {
	router, manager := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimization/run", batchBody(t)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForDone(t, manager)

	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/api/optimization/status", nil))
	require.Equal(t, http.StatusOK, statusRec.Code)

	var status struct {
		Status                string `json:"status"`
		CompletedCombinations int    `json:"completed_combinations"`
	}
	require.NoError(t, json.NewDecoder(statusRec.Body).Decode(&status))
	assert.Equal(t, "DONE", status.Status)
	assert.Equal(t, 3, status.CompletedCombinations)

	resultsRec := httptest.NewRecorder()
	router.ServeHTTP(resultsRec, httptest.NewRequest(http.MethodGet, "/api/optimization/results", nil))
	require.Equal(t, http.StatusOK, resultsRec.Code)

	var results struct {
		Rankings map[string][]struct {
			EnumIndex int `json:"enum_index"`
		} `json:"rankings"`
		OverallBest *struct {
			EnumIndex int `json:"enum_index"`
		} `json:"overall_best"`
	}
	require.NoError(t, json.NewDecoder(resultsRec.Body).Decode(&results))
	top := results.Rankings["profitability"]
	require.Len(t, top, 2)
	assert.Equal(t, 2, top[0].EnumIndex)
	assert.Equal(t, 1, top[1].EnumIndex)
	require.NotNil(t, results.OverallBest)
	assert.Equal(t, 2, results.OverallBest.EnumIndex)
}

func TestHandleResults_EmptySlotIsNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/optimization/results", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAbort_NoJobIsNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimization/abort", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleClearResults_AfterCompletion(t *testing.T) {
	router, manager := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimization/run", batchBody(t)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForDone(t, manager)

	clearRec := httptest.NewRecorder()
	router.ServeHTTP(clearRec, httptest.NewRequest(http.MethodDelete, "/api/optimization/results", nil))
	require.Equal(t, http.StatusOK, clearRec.Code)

	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/api/optimization/status", nil))
	var status struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(statusRec.Body).Decode(&status))
	assert.Equal(t, "IDLE", status.Status)
}
