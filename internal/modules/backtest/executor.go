package backtest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/internal/modules/strategy"
)

// Replay phases reported through the progress callback. PhaseComplete is set
// by the job manager once the result is in place, never by the executor.
const (
	PhaseLoadingData      = "loading_data"
	PhaseReplaying        = "replaying"
	PhaseComputingMetrics = "computing_metrics"
	PhaseComplete         = "complete"
)

// CandleProvider supplies the candle window and instrument metadata
type CandleProvider interface {
	GetCandles(symbol string, timeframe history.Timeframe, from, to time.Time) ([]history.Candle, error)
	GetSymbol(symbol string) (*history.SymbolInfo, error)
}

// StrategyResolver resolves a strategy kind to its shared instance
type StrategyResolver interface {
	Get(kind strategy.Kind) (strategy.Strategy, error)
}

// ProgressFunc receives replay progress. Callers that stream progress wrap it
// with a throttle; the executor calls it on every candle.
type ProgressFunc func(phase string, current, total int)

// Executor runs one backtest from request to result
type Executor struct {
	data       CandleProvider
	strategies StrategyResolver
	log        zerolog.Logger
}

// NewExecutor creates a run executor
func NewExecutor(data CandleProvider, strategies StrategyResolver, log zerolog.Logger) *Executor {
	return &Executor{
		data:       data,
		strategies: strategies,
		log:        log.With().Str("component", "run_executor").Logger(),
	}
}

// Execute replays one request and returns its immutable result.
//
// A cancelled context aborts between candles and returns the context error
// unchanged so callers can tell cancellation apart from failure. Any panic
// inside a strategy surfaces as a RunExecutionError instead of crashing the
// worker.
func (e *Executor) Execute(ctx context.Context, id string, req RunRequest, enumIndex int, progress ProgressFunc) (result *RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("run_id", id).Msg("Recovered panic during replay")
			result = nil
			err = apperr.RunExecution("strategy panicked: %v", r).
				WithContext("strategy", string(req.Strategy))
		}
	}()

	if progress == nil {
		progress = func(string, int, int) {}
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	strat, err := e.strategies.Get(req.Strategy)
	if err != nil {
		return nil, err
	}

	progress(PhaseLoadingData, 0, 0)

	candles, err := e.data.GetCandles(req.Symbol, req.Timeframe, req.From, req.To)
	if err != nil {
		return nil, err
	}

	info, err := e.data.GetSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if info == nil {
		fallback := history.DefaultSymbolInfo(req.Symbol)
		info = &fallback
	}

	market := strategy.MarketContext{Symbol: req.Symbol, PipSize: info.PipSize}
	sim := NewSimulator(SimulationSettings{
		InitialBalance:   req.InitialBalance,
		LotSize:          req.LotSize,
		CommissionPerLot: req.CommissionPerLot,
		SpreadPips:       req.SpreadPips,
		SlippagePips:     req.SlippagePips,
		MaxSpreadPips:    req.MaxSpreadPips,
		PipSize:          info.PipSize,
		PipValuePerLot:   info.PipValuePerLot,
	})
	sim.Start(candles[0])

	minCandles := strat.MinCandles(req.Parameters)
	total := len(candles)

	for i, candle := range candles {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		sim.CheckExits(candle)

		if i+1 >= minCandles {
			signal, err := strat.Decide(market, candles[:i+1], sim.OpenPositions(), req.Parameters)
			if err != nil {
				return nil, apperr.From(err).WithContext("candle_index", i)
			}
			sim.ApplySignal(candle, signal)
		}

		progress(PhaseReplaying, i+1, total)
	}

	sim.ForceClose(candles[total-1])

	progress(PhaseComputingMetrics, total, total)

	trades, equity, _ := sim.Results()
	metrics := ComputeMetrics(req.InitialBalance, trades, equity)

	e.log.Debug().
		Str("run_id", id).
		Str("symbol", req.Symbol).
		Str("strategy", string(req.Strategy)).
		Int("candles", total).
		Int("trades", len(trades)).
		Float64("net_profit", metrics.NetProfit).
		Msg("Replay finished")

	return &RunResult{
		ID:          id,
		Strategy:    req.Strategy,
		Parameters:  req.Parameters,
		EnumIndex:   enumIndex,
		Metrics:     metrics,
		EquityCurve: equity,
		Trades:      trades,
	}, nil
}
