package jobs

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/events"
	"github.com/aristath/crucible/internal/modules/backtest"
	"github.com/aristath/crucible/internal/modules/optimization"
)

// SingleStatus is the poll snapshot for the single-run slot
type SingleStatus struct {
	Status         domain.JobStatus `json:"status"`
	JobID          string           `json:"job_id,omitempty"`
	Phase          string           `json:"phase,omitempty"`
	Current        int              `json:"current"`
	Total          int              `json:"total"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	Error          *apperr.Error    `json:"error,omitempty"`
}

// BatchStatus is the poll snapshot for the batch slot
type BatchStatus struct {
	JobID string `json:"job_id,omitempty"`
	optimization.Progress
}

// singleRun is the live state of one backtest job
type singleRun struct {
	id  string
	req backtest.RunRequest

	mu         sync.Mutex
	status     domain.JobStatus
	phase      string
	current    int
	total      int
	result     *backtest.RunResult
	runErr     *apperr.Error
	startedAt  time.Time
	finishedAt time.Time
}

func (r *singleRun) Status() domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *singleRun) setProgress(phase string, current, total int) {
	r.mu.Lock()
	r.phase = phase
	r.current = current
	r.total = total
	r.mu.Unlock()
}

func (r *singleRun) snapshot() SingleStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.startedAt)
	if !r.finishedAt.IsZero() {
		elapsed = r.finishedAt.Sub(r.startedAt)
	}
	return SingleStatus{
		Status:         r.status,
		JobID:          r.id,
		Phase:          r.phase,
		Current:        r.current,
		Total:          r.total,
		ElapsedSeconds: elapsed.Seconds(),
		Error:          r.runErr,
	}
}

func (r *singleRun) finish(status domain.JobStatus, result *backtest.RunResult, runErr *apperr.Error) {
	r.mu.Lock()
	r.status = status
	r.result = result
	r.runErr = runErr
	r.finishedAt = time.Now()
	if status == domain.JobDone {
		r.phase = backtest.PhaseComplete
		r.current = r.total
	}
	r.mu.Unlock()
}

func (r *singleRun) started() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Manager owns the engine's two live job slots. A second submission of a
// kind that is still RUNNING is rejected; a settled job stays pollable until
// its clear operation drops it, which releases the retained results.
type Manager struct {
	executor  optimization.RunExecutor
	scheduler *optimization.Scheduler
	records   *RecordStore
	bus       *events.Bus
	log       zerolog.Logger

	mu           sync.Mutex
	single       *singleRun
	singleCancel context.CancelFunc
	batch        *optimization.BatchJob
	batchCancel  context.CancelFunc

	wg sync.WaitGroup
}

// NewManager creates the job manager
func NewManager(executor optimization.RunExecutor, scheduler *optimization.Scheduler, records *RecordStore, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		executor:  executor,
		scheduler: scheduler,
		records:   records,
		bus:       bus,
		log:       log.With().Str("component", "job_manager").Logger(),
	}
}

// SubmitSingleRun validates the request and starts it in the background.
// Returns the job ID for polling.
func (m *Manager) SubmitSingleRun(req backtest.RunRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.single != nil && m.single.Status() == domain.JobRunning {
		id := m.single.id
		m.mu.Unlock()
		return "", apperr.Configuration("a single run is already in progress").
			WithStatus(http.StatusConflict).
			WithContext("job_id", id)
	}

	id := uuid.New().String()
	run := &singleRun{
		id:        id,
		req:       req,
		status:    domain.JobRunning,
		startedAt: time.Now(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.single = run
	m.singleCancel = cancel
	m.mu.Unlock()

	m.log.Info().
		Str("job_id", id).
		Str("symbol", req.Symbol).
		Str("strategy", string(req.Strategy)).
		Msg("Single run submitted")

	m.wg.Add(1)
	go m.runSingle(ctx, cancel, run)
	return id, nil
}

func (m *Manager) runSingle(ctx context.Context, cancel context.CancelFunc, run *singleRun) {
	defer m.wg.Done()
	defer cancel()

	reporter := NewReporter(m.bus, run.id, domain.JobKindSingle)
	reporter.Started()

	progress := func(phase string, current, total int) {
		run.setProgress(phase, current, total)
		reporter.Progress(current, total, phase, nil)
	}

	result, err := m.executor.Execute(ctx, run.id, run.req, 0, progress)
	duration := time.Since(run.started())

	switch {
	case err == nil:
		run.finish(domain.JobDone, result, nil)
		reporter.Completed(duration)
		m.persistSingle(run, result, duration)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown interrupted the replay. Nothing to keep.
		run.finish(domain.JobAborted, nil, nil)
		reporter.Aborted(duration)
	default:
		appErr := apperr.From(err)
		run.finish(domain.JobFailed, nil, appErr)
		reporter.Failed(appErr, duration)
		m.persistFailedSingle(run, appErr, duration)
		m.log.Warn().Str("job_id", run.id).Err(err).Msg("Single run failed")
	}
}

func (m *Manager) persistSingle(run *singleRun, result *backtest.RunResult, duration time.Duration) {
	snapshot, err := EncodeSnapshot(result)
	if err != nil {
		m.log.Error().Str("job_id", run.id).Err(err).Msg("Snapshot encode failed")
		snapshot = nil
	}
	m.insertRecord(&Record{
		ID:            run.id,
		Kind:          domain.JobKindSingle,
		Status:        domain.JobDone,
		Symbol:        run.req.Symbol,
		Strategies:    []string{string(run.req.Strategy)},
		Timeframe:     string(run.req.Timeframe),
		TotalRuns:     1,
		CompletedRuns: 1,
		ExecutionMS:   duration.Milliseconds(),
		Snapshot:      snapshot,
		CreatedAt:     run.started(),
		FinishedAt:    time.Now(),
	})
}

func (m *Manager) persistFailedSingle(run *singleRun, runErr *apperr.Error, duration time.Duration) {
	m.insertRecord(&Record{
		ID:          run.id,
		Kind:        domain.JobKindSingle,
		Status:      domain.JobFailed,
		Symbol:      run.req.Symbol,
		Strategies:  []string{string(run.req.Strategy)},
		Timeframe:   string(run.req.Timeframe),
		TotalRuns:   1,
		ErrorCount:  1,
		ExecutionMS: duration.Milliseconds(),
		CreatedAt:   run.started(),
		FinishedAt:  time.Now(),
	})
}

func (m *Manager) insertRecord(rec *Record) {
	if m.records == nil {
		return
	}
	// A record write failure never fails the job itself
	if err := m.records.Insert(rec); err != nil {
		m.log.Error().Str("job_id", rec.ID).Err(err).Msg("Job record write failed")
	}
}

// SingleStatus returns the single-run slot snapshot, IDLE when empty
func (m *Manager) SingleStatus() SingleStatus {
	m.mu.Lock()
	run := m.single
	m.mu.Unlock()

	if run == nil {
		return SingleStatus{Status: domain.JobIdle}
	}
	return run.snapshot()
}

// LastSingleResult returns the finished run result. While the slot is empty,
// still running, or failed, there is no result to return.
func (m *Manager) LastSingleResult() (*backtest.RunResult, error) {
	m.mu.Lock()
	run := m.single
	m.mu.Unlock()

	if run == nil {
		return nil, apperr.DataUnavailable("no single run result")
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	switch run.status {
	case domain.JobDone:
		return run.result, nil
	case domain.JobRunning:
		return nil, apperr.DataUnavailable("single run still in progress").
			WithContext("job_id", run.id)
	case domain.JobFailed:
		return nil, run.runErr
	default:
		return nil, apperr.DataUnavailable("single run produced no result").
			WithContext("job_id", run.id)
	}
}

// ClearSingleResult drops the single-run slot so retained results can be
// collected. Clearing a running job is rejected.
func (m *Manager) ClearSingleResult() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.single == nil {
		return nil
	}
	if m.single.Status() == domain.JobRunning {
		return apperr.Configuration("cannot clear a running single run").
			WithStatus(http.StatusConflict).
			WithContext("job_id", m.single.id)
	}
	m.single = nil
	m.singleCancel = nil
	return nil
}

// SubmitBatch validates the request, expands the combination space, and
// starts processing in the background. Returns the job ID and the initial
// progress snapshot carrying the combination totals.
func (m *Manager) SubmitBatch(req optimization.BatchRequest) (string, optimization.Progress, error) {
	m.mu.Lock()
	if m.batch != nil && m.batch.Status() == domain.JobRunning {
		id := m.batch.ID
		m.mu.Unlock()
		return "", optimization.Progress{}, apperr.Configuration("a batch optimization is already in progress").
			WithStatus(http.StatusConflict).
			WithContext("job_id", id)
	}

	id := uuid.New().String()
	job, err := m.scheduler.Prepare(id, req)
	if err != nil {
		m.mu.Unlock()
		return "", optimization.Progress{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.batch = job
	m.batchCancel = cancel
	m.mu.Unlock()

	reporter := NewReporter(m.bus, id, domain.JobKindBatch)
	job.SetProgressHook(func(p optimization.Progress) {
		reporter.Progress(p.CompletedCombinations, p.TotalCombinations, "optimizing", map[string]interface{}{
			"batch_index":   p.CurrentBatchIndex,
			"total_batches": p.TotalBatches,
			"errors":        p.Errors,
		})
	})

	m.wg.Add(1)
	go m.runBatch(ctx, cancel, job, reporter, req)
	return id, job.Progress(), nil
}

func (m *Manager) runBatch(ctx context.Context, cancel context.CancelFunc, job *optimization.BatchJob, reporter *Reporter, req optimization.BatchRequest) {
	defer m.wg.Done()
	defer cancel()

	reporter.Started()
	m.scheduler.Run(ctx, job)

	progress := job.Progress()
	duration := time.Duration(progress.ElapsedSeconds * float64(time.Second))
	if progress.Status == domain.JobAborted {
		reporter.Aborted(duration)
	} else {
		reporter.Completed(duration)
	}

	m.persistBatch(job, req, progress)
}

func (m *Manager) persistBatch(job *optimization.BatchJob, req optimization.BatchRequest, progress optimization.Progress) {
	results := job.Results()
	snapshot, err := EncodeSnapshot(&results)
	if err != nil {
		m.log.Error().Str("job_id", job.ID).Err(err).Msg("Snapshot encode failed")
		snapshot = nil
	}

	strategies := make([]string, 0, len(req.Strategies))
	for _, kind := range req.Strategies {
		strategies = append(strategies, string(kind))
	}

	m.insertRecord(&Record{
		ID:            job.ID,
		Kind:          domain.JobKindBatch,
		Status:        progress.Status,
		Symbol:        req.Symbol,
		Strategies:    strategies,
		Timeframe:     string(req.Timeframe),
		TotalRuns:     progress.TotalCombinations,
		CompletedRuns: progress.CompletedCombinations,
		ErrorCount:    progress.Errors,
		ExecutionMS:   int64(progress.ElapsedSeconds * 1000),
		Snapshot:      snapshot,
		CreatedAt:     job.StartedAt(),
		FinishedAt:    time.Now(),
	})
}

// BatchStatus returns the batch slot snapshot, IDLE when empty
func (m *Manager) BatchStatus() BatchStatus {
	m.mu.Lock()
	job := m.batch
	m.mu.Unlock()

	if job == nil {
		return BatchStatus{Progress: optimization.Progress{Status: domain.JobIdle}}
	}
	return BatchStatus{JobID: job.ID, Progress: job.Progress()}
}

// BatchResults returns the rankings accumulated so far. Valid while the job
// runs and after it settles, until cleared.
func (m *Manager) BatchResults() (optimization.Results, error) {
	m.mu.Lock()
	job := m.batch
	m.mu.Unlock()

	if job == nil {
		return optimization.Results{}, apperr.DataUnavailable("no batch optimization results")
	}
	return job.Results(), nil
}

// AbortBatch requests cooperative cancellation of the running batch job
func (m *Manager) AbortBatch() error {
	m.mu.Lock()
	job := m.batch
	m.mu.Unlock()

	if job == nil {
		return apperr.DataUnavailable("no batch optimization to abort")
	}
	job.Abort()
	m.log.Info().Str("job_id", job.ID).Msg("Batch abort requested")
	return nil
}

// ClearBatchResults drops the batch slot. Clearing a running job is rejected.
func (m *Manager) ClearBatchResults() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch == nil {
		return nil
	}
	if m.batch.Status() == domain.JobRunning {
		return apperr.Configuration("cannot clear a running batch optimization").
			WithStatus(http.StatusConflict).
			WithContext("job_id", m.batch.ID)
	}
	m.batch = nil
	m.batchCancel = nil
	return nil
}

// Records exposes the record store for the API layer
func (m *Manager) Records() *RecordStore {
	return m.records
}

// Shutdown cancels live jobs and waits for their goroutines to settle
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.singleCancel != nil {
		m.singleCancel()
	}
	if m.batchCancel != nil {
		m.batchCancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
