package optimization

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/modules/backtest"
	"github.com/aristath/crucible/internal/modules/strategy"
)

// Reasons a job settled as ABORTED, surfaced in status snapshots
const (
	abortReasonUser     = "user_abort"
	abortReasonShutdown = "shutdown"
	abortReasonBudget   = "time_budget"
	abortReasonMemory   = "memory_pressure"
)

// RunExecutor is the single-run execution dependency of the scheduler
type RunExecutor interface {
	Execute(ctx context.Context, id string, req backtest.RunRequest, enumIndex int, progress backtest.ProgressFunc) (*backtest.RunResult, error)
}

// SchedulerConfig tunes batch execution
type SchedulerConfig struct {
	// Workers bounds how many runs execute concurrently within a batch
	Workers int
	// DefaultBatchSize applies when a request leaves batch size unset
	DefaultBatchSize int
	// DefaultTopK applies when a request leaves top-K unset
	DefaultTopK int
	// MemoryAbortPercent aborts jobs at a batch boundary once system RAM
	// usage crosses it. Zero disables the guard.
	MemoryAbortPercent float64
	// DefaultMaxDurationSeconds applies when a request leaves the wall-clock
	// budget unset. Zero keeps unset budgets unlimited.
	DefaultMaxDurationSeconds int
}

// Scheduler drives batch optimization jobs. Within a batch, runs execute on
// a bounded worker pool; batch boundaries are strict checkpoints where
// progress is published and cancellation, wall-clock budget, and memory
// pressure are checked before any further dispatch.
type Scheduler struct {
	executor RunExecutor
	config   SchedulerConfig
	log      zerolog.Logger
}

// NewScheduler creates a batch scheduler
func NewScheduler(executor RunExecutor, config SchedulerConfig, log zerolog.Logger) *Scheduler {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.DefaultBatchSize < 1 {
		config.DefaultBatchSize = 50
	}
	if config.DefaultTopK < 1 {
		config.DefaultTopK = DefaultTopK
	}
	return &Scheduler{
		executor: executor,
		config:   config,
		log:      log.With().Str("component", "batch_scheduler").Logger(),
	}
}

// BatchJob is the live state of one optimization job. The scheduler is the
// only writer; pollers take read-only snapshots via Progress and Results.
type BatchJob struct {
	ID string

	req          BatchRequest
	enum         *Enumerator
	agg          *Aggregator
	total        int
	totalBatches int

	cancelled atomic.Bool
	completed atomic.Int64
	batchIdx  atomic.Int64

	mu          sync.Mutex
	status      domain.JobStatus
	errors      []RunError
	abortReason string
	startedAt   time.Time
	finishedAt  time.Time

	onProgress func(Progress)
}

// Prepare validates the request, expands the combination space, and returns
// a job initialized to RUNNING. The caller drives it with Run, usually on a
// fresh goroutine.
func (s *Scheduler) Prepare(id string, req BatchRequest) (*BatchJob, error) {
	if req.MaxDurationSeconds == 0 {
		req.MaxDurationSeconds = s.config.DefaultMaxDurationSeconds
	}
	req.Normalize(s.config.DefaultBatchSize, s.config.DefaultTopK)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	enum, err := NewEnumerator(req.Strategies, req.Parameters)
	if err != nil {
		return nil, err
	}

	job := &BatchJob{
		ID:           id,
		req:          req,
		enum:         enum,
		agg:          NewAggregator(req.TopResultsToKeep),
		total:        enum.Count(),
		totalBatches: enum.TotalBatches(req.BatchSize),
		status:       domain.JobRunning,
		startedAt:    time.Now(),
	}

	s.log.Info().
		Str("job_id", id).
		Str("symbol", req.Symbol).
		Int("strategies", len(req.Strategies)).
		Int("combinations", job.total).
		Int("batches", job.totalBatches).
		Int("batch_size", req.BatchSize).
		Msg("Optimization job prepared")

	return job, nil
}

// Run processes the job batch by batch until done or stopped. It blocks,
// and in-flight runs always finish before the job settles.
func (s *Scheduler) Run(ctx context.Context, job *BatchJob) {
	budget := time.Duration(job.req.MaxDurationSeconds) * time.Second

	settled := false
	for b := 0; b < job.totalBatches; b++ {
		if reason := s.stopReason(ctx, job, budget); reason != "" {
			job.finish(domain.JobAborted, reason)
			settled = true
			break
		}

		job.batchIdx.Store(int64(b))
		lo := b * job.req.BatchSize
		hi := lo + job.req.BatchSize
		if hi > job.total {
			hi = job.total
		}
		s.runBatch(ctx, job, lo, hi)
		job.reportProgress()
	}

	if !settled {
		// An abort that lands during the final batch still wins: the caller
		// asked for ABORTED and the rankings are intact either way.
		switch {
		case job.cancelled.Load():
			job.finish(domain.JobAborted, abortReasonUser)
		case ctx.Err() != nil:
			job.finish(domain.JobAborted, abortReasonShutdown)
		default:
			job.finish(domain.JobDone, "")
		}
	}
	job.reportProgress()

	progress := job.Progress()
	s.log.Info().
		Str("job_id", job.ID).
		Str("status", string(progress.Status)).
		Str("abort_reason", progress.AbortReason).
		Int("completed", progress.CompletedCombinations).
		Int("total", progress.TotalCombinations).
		Int("errors", progress.Errors).
		Float64("elapsed_seconds", progress.ElapsedSeconds).
		Msg("Optimization job settled")
}

// stopReason returns why the job must not start another batch, or ""
func (s *Scheduler) stopReason(ctx context.Context, job *BatchJob, budget time.Duration) string {
	switch {
	case job.cancelled.Load():
		return abortReasonUser
	case ctx.Err() != nil:
		return abortReasonShutdown
	case budget > 0 && time.Since(job.StartedAt()) > budget:
		return abortReasonBudget
	case s.memoryPressure():
		return abortReasonMemory
	}
	return ""
}

func (s *Scheduler) memoryPressure() bool {
	if s.config.MemoryAbortPercent <= 0 {
		return false
	}
	stat, err := mem.VirtualMemory()
	if err != nil {
		return false
	}
	if stat.UsedPercent >= s.config.MemoryAbortPercent {
		s.log.Warn().
			Float64("used_percent", stat.UsedPercent).
			Float64("abort_percent", s.config.MemoryAbortPercent).
			Msg("Memory pressure at batch boundary")
		return true
	}
	return false
}

// batchOutcome carries one run back from the worker pool
type batchOutcome struct {
	enumIndex int
	kind      strategy.Kind
	params    strategy.Params
	result    *backtest.RunResult
	err       error
}

// runBatch executes combinations [lo, hi) on the worker pool, then folds
// the outcomes in ascending enumeration order.
func (s *Scheduler) runBatch(ctx context.Context, job *BatchJob, lo, hi int) {
	n := hi - lo
	jobs := make(chan int, n)
	results := make(chan batchOutcome, n)

	workers := s.config.Workers
	if n < workers {
		workers = n
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for enumIndex := range jobs {
				results <- s.runOne(ctx, job, enumIndex)
			}
		}()
	}

	for i := lo; i < hi; i++ {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]batchOutcome, n)
	for outcome := range results {
		outcomes[outcome.enumIndex-lo] = outcome
	}

	for _, outcome := range outcomes {
		switch {
		case outcome.err == nil:
			job.agg.Fold(outcome.result)
			job.completed.Add(1)
		case errors.Is(outcome.err, context.Canceled) || errors.Is(outcome.err, context.DeadlineExceeded):
			// Interrupted mid-run by shutdown: neither completed nor failed
		default:
			job.appendError(RunError{
				EnumIndex:  outcome.enumIndex,
				Strategy:   outcome.kind,
				Parameters: outcome.params,
				Message:    outcome.err.Error(),
			})
			s.log.Warn().
				Str("job_id", job.ID).
				Int("enum_index", outcome.enumIndex).
				Str("strategy", string(outcome.kind)).
				Err(outcome.err).
				Msg("Combination failed")
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, job *BatchJob, enumIndex int) batchOutcome {
	kind, params := job.enum.At(enumIndex)
	runID := fmt.Sprintf("%s-%d", job.ID, enumIndex)
	result, err := s.executor.Execute(ctx, runID, job.req.runRequest(kind, params), enumIndex, nil)
	return batchOutcome{enumIndex: enumIndex, kind: kind, params: params, result: result, err: err}
}

// Abort requests cooperative cancellation. The current batch finishes, the
// flag is honored at the next boundary, and accumulated rankings survive.
func (j *BatchJob) Abort() {
	j.cancelled.Store(true)
}

// SetProgressHook installs a callback invoked after every batch and once at
// settlement. Must be set before Run starts.
func (j *BatchJob) SetProgressHook(fn func(Progress)) {
	j.onProgress = fn
}

func (j *BatchJob) reportProgress() {
	if j.onProgress != nil {
		j.onProgress(j.Progress())
	}
}

// Progress returns a read-only status snapshot
func (j *BatchJob) Progress() Progress {
	j.mu.Lock()
	status := j.status
	errCount := len(j.errors)
	reason := j.abortReason
	elapsed := j.elapsedLocked()
	j.mu.Unlock()

	return Progress{
		Status:                status,
		TotalCombinations:     j.total,
		CompletedCombinations: int(j.completed.Load()),
		CurrentBatchIndex:     int(j.batchIdx.Load()),
		TotalBatches:          j.totalBatches,
		Errors:                errCount,
		ElapsedSeconds:        elapsed.Seconds(),
		AbortReason:           reason,
	}
}

// Results returns the rankings accumulated so far. Final once the job has
// settled.
func (j *BatchJob) Results() Results {
	rankings, best := j.agg.Snapshot()

	j.mu.Lock()
	defer j.mu.Unlock()

	errs := make([]RunError, len(j.errors))
	copy(errs, j.errors)

	return Results{
		Status:               j.status,
		Rankings:             rankings,
		OverallBest:          best,
		Errors:               errs,
		ExecutionTimeSeconds: j.elapsedLocked().Seconds(),
	}
}

// Status returns the current lifecycle state
func (j *BatchJob) Status() domain.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *BatchJob) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

func (j *BatchJob) elapsedLocked() time.Duration {
	if !j.finishedAt.IsZero() {
		return j.finishedAt.Sub(j.startedAt)
	}
	return time.Since(j.startedAt)
}

func (j *BatchJob) appendError(e RunError) {
	j.mu.Lock()
	j.errors = append(j.errors, e)
	j.mu.Unlock()
}

func (j *BatchJob) finish(status domain.JobStatus, reason string) {
	j.mu.Lock()
	j.status = status
	j.abortReason = reason
	j.finishedAt = time.Now()
	j.mu.Unlock()
}
