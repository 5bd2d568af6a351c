// Package optimization expands parameter ranges into a combination space,
// schedules the resulting backtests in bounded-parallel batches, and folds
// each finished run into capped per-category rankings.
//
// Memory stays bounded no matter how large the space is: the aggregator
// keeps at most K results per category plus one overall best, and the
// scheduler only holds one batch of in-flight results at a time.
package optimization

import (
	"time"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/modules/backtest"
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/internal/modules/strategy"
)

// BatchRequest describes one optimization job: the shared run settings, the
// strategies to cross, and the parameter definitions that span the search
// space. Disabled definitions are pinned to their default value.
type BatchRequest struct {
	Symbol    string            `json:"symbol"`
	Timeframe history.Timeframe `json:"timeframe"`
	From      time.Time         `json:"from"`
	To        time.Time         `json:"to"`

	InitialBalance   float64 `json:"initial_balance"`
	LotSize          float64 `json:"lot_size"`
	CommissionPerLot float64 `json:"commission_per_lot"`
	SpreadPips       float64 `json:"spread_pips"`
	SlippagePips     float64 `json:"slippage_pips"`
	MaxSpreadPips    float64 `json:"max_spread_pips"`

	Strategies []strategy.Kind         `json:"strategies"`
	Parameters []strategy.ParameterDef `json:"parameters"`

	// BatchSize is the number of combinations dispatched between two
	// checkpoints. Zero picks the configured default.
	BatchSize int `json:"batch_size"`

	// TopResultsToKeep caps every ranking category. Zero picks the
	// configured default.
	TopResultsToKeep int `json:"top_results_to_keep"`

	// MaxDurationSeconds aborts the job at the next batch boundary once
	// elapsed wall clock exceeds it. Zero means no budget.
	MaxDurationSeconds int `json:"max_duration_seconds"`
}

// Normalize fills defaulted fields in place
func (r *BatchRequest) Normalize(defaultBatchSize, defaultTopK int) {
	if r.InitialBalance == 0 {
		r.InitialBalance = backtest.DefaultInitialBalance
	}
	if r.LotSize == 0 {
		r.LotSize = backtest.DefaultLotSize
	}
	if r.BatchSize == 0 {
		r.BatchSize = defaultBatchSize
	}
	if r.TopResultsToKeep == 0 {
		r.TopResultsToKeep = defaultTopK
	}
}

// Validate rejects requests that cannot describe a job. Parameter axes are
// validated separately when the enumerator is built.
func (r *BatchRequest) Validate() error {
	if r.Symbol == "" {
		return apperr.Configuration("symbol is required")
	}
	if _, err := history.ParseTimeframe(string(r.Timeframe)); err != nil {
		return apperr.Configuration("%v", err).WithContext("timeframe", string(r.Timeframe))
	}
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return apperr.Configuration("date range must satisfy from < to").
			WithContext("from", r.From).
			WithContext("to", r.To)
	}
	if r.InitialBalance < 0 || r.LotSize < 0 || r.CommissionPerLot < 0 ||
		r.SpreadPips < 0 || r.SlippagePips < 0 || r.MaxSpreadPips < 0 {
		return apperr.Configuration("execution costs must be non-negative")
	}
	if len(r.Strategies) == 0 {
		return apperr.Configuration("at least one strategy must be selected")
	}
	for _, kind := range r.Strategies {
		if _, err := strategy.ParseKind(string(kind)); err != nil {
			return err
		}
	}
	if r.BatchSize <= 0 {
		return apperr.Configuration("batch size must be positive").
			WithContext("batch_size", r.BatchSize)
	}
	if r.TopResultsToKeep <= 0 {
		return apperr.Configuration("top results to keep must be positive").
			WithContext("top_results_to_keep", r.TopResultsToKeep)
	}
	if r.MaxDurationSeconds < 0 {
		return apperr.Configuration("max duration must be non-negative")
	}
	return nil
}

// runRequest binds one enumerated assignment to the shared run settings
func (r *BatchRequest) runRequest(kind strategy.Kind, params strategy.Params) backtest.RunRequest {
	return backtest.RunRequest{
		Symbol:           r.Symbol,
		Strategy:         kind,
		Timeframe:        r.Timeframe,
		From:             r.From,
		To:               r.To,
		InitialBalance:   r.InitialBalance,
		LotSize:          r.LotSize,
		CommissionPerLot: r.CommissionPerLot,
		SpreadPips:       r.SpreadPips,
		SlippagePips:     r.SlippagePips,
		MaxSpreadPips:    r.MaxSpreadPips,
		Parameters:       params,
	}
}

// RunError records one assignment that failed without aborting the job
type RunError struct {
	EnumIndex  int             `json:"enum_index"`
	Strategy   strategy.Kind   `json:"strategy"`
	Parameters strategy.Params `json:"parameters"`
	Message    string          `json:"message"`
}

// Progress is the read-only status snapshot pollers see while a job runs
type Progress struct {
	Status                domain.JobStatus `json:"status"`
	TotalCombinations     int              `json:"total_combinations"`
	CompletedCombinations int              `json:"completed_combinations"`
	CurrentBatchIndex     int              `json:"current_batch_index"`
	TotalBatches          int              `json:"total_batches"`
	Errors                int              `json:"errors"`
	ElapsedSeconds        float64          `json:"elapsed_seconds"`
	AbortReason           string           `json:"abort_reason,omitempty"`
}

// Results is the rankings snapshot. While the job is RUNNING it reflects
// everything folded so far; after ABORTED or DONE it is final.
type Results struct {
	Status               domain.JobStatus                   `json:"status"`
	Rankings             map[Category][]*backtest.RunResult `json:"rankings"`
	OverallBest          *backtest.RunResult                `json:"overall_best,omitempty"`
	Errors               []RunError                         `json:"errors"`
	ExecutionTimeSeconds float64                            `json:"execution_time_seconds"`
}
