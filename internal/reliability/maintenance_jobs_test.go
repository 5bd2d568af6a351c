package reliability

import (
	"testing"
	"time"

	"github.com/aristath/crucible/internal/database"
	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/jobs"
	testingpkg "github.com/aristath/crucible/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(id string, finished time.Time) *jobs.Record {
	return &jobs.Record{
		ID:            id,
		Kind:          domain.JobKindSingle,
		Status:        domain.JobDone,
		Symbol:        "XAUUSD",
		Strategies:    []string{"SMC"},
		Timeframe:     "H1",
		TotalRuns:     1,
		CompletedRuns: 1,
		ExecutionMS:   900,
		CreatedAt:     finished.Add(-time.Second),
		FinishedAt:    finished,
	}
}

func TestDailyMaintenanceJob_Name(t *testing.T) {
	job := NewDailyMaintenanceJob(nil, nil, 0, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "daily_maintenance", job.Name())
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	historyDB, cleanupHistory := testingpkg.NewTestDB(t, "history")
	defer cleanupHistory()
	resultsDB, cleanupResults := testingpkg.NewTestDB(t, "results")
	defer cleanupResults()

	records := jobs.NewRecordStore(resultsDB.Conn(), zerolog.Nop())

	t.Run("healthy databases pass all steps", func(t *testing.T) {
		job := NewDailyMaintenanceJob(map[string]*database.DB{
			"history": historyDB,
			"results": resultsDB,
		}, records, 30, t.TempDir(), zerolog.Nop())

		require.NoError(t, job.Run())
	})

	t.Run("prunes records older than retention window", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, records.Insert(testRecord("ancient", now.AddDate(0, 0, -45))))
		require.NoError(t, records.Insert(testRecord("recent", now.Add(-time.Hour))))

		job := NewDailyMaintenanceJob(map[string]*database.DB{
			"results": resultsDB,
		}, records, 30, t.TempDir(), zerolog.Nop())
		require.NoError(t, job.Run())

		old, err := records.Get("ancient")
		require.NoError(t, err)
		assert.Nil(t, old)

		kept, err := records.Get("recent")
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})

	t.Run("zero retention keeps everything", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, records.Insert(testRecord("very-old", now.AddDate(0, 0, -400))))

		job := NewDailyMaintenanceJob(map[string]*database.DB{
			"results": resultsDB,
		}, records, 0, t.TempDir(), zerolog.Nop())
		require.NoError(t, job.Run())

		kept, err := records.Get("very-old")
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})

	t.Run("nil databases are skipped", func(t *testing.T) {
		job := NewDailyMaintenanceJob(map[string]*database.DB{
			"history": nil,
		}, nil, 0, t.TempDir(), zerolog.Nop())

		require.NoError(t, job.Run())
	})
}

func TestWeeklyMaintenanceJob_Run(t *testing.T) {
	historyDB, cleanupHistory := testingpkg.NewTestDB(t, "history")
	defer cleanupHistory()
	resultsDB, cleanupResults := testingpkg.NewTestDB(t, "results")
	defer cleanupResults()

	job := NewWeeklyMaintenanceJob(map[string]*database.DB{
		"history": historyDB,
		"results": resultsDB,
	}, zerolog.Nop())

	assert.Equal(t, "weekly_maintenance", job.Name())
	require.NoError(t, job.Run())
}

func TestResultsArchiveJob_SkipsWithoutService(t *testing.T) {
	job := NewResultsArchiveJob(nil, 90, zerolog.Nop())

	assert.Equal(t, "results_archive", job.Name())
	assert.NoError(t, job.Run())
}
