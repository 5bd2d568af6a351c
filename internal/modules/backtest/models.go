// Package backtest replays a strategy over stored candles and produces an
// immutable run result: the trade list, the realized equity curve, and the
// metrics derived from them.
//
// Everything in this package is deterministic. Replays never read the wall
// clock, never touch randomness, and evaluate candles in one fixed order, so
// rerunning the same request yields bit-identical results.
package backtest

import (
	"time"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/internal/modules/strategy"
)

// Default execution settings applied when a request leaves them zero
const (
	DefaultInitialBalance = 10000.0
	DefaultLotSize        = 0.1
)

// RunRequest describes one backtest run
type RunRequest struct {
	Symbol    string            `json:"symbol"`
	Strategy  strategy.Kind     `json:"strategy"`
	Timeframe history.Timeframe `json:"timeframe"`
	From      time.Time         `json:"from"`
	To        time.Time         `json:"to"`

	InitialBalance   float64 `json:"initial_balance"`
	LotSize          float64 `json:"lot_size"`
	CommissionPerLot float64 `json:"commission_per_lot"`
	SpreadPips       float64 `json:"spread_pips"`
	SlippagePips     float64 `json:"slippage_pips"`

	// MaxSpreadPips suppresses entries while the configured spread exceeds
	// it. Zero disables the gate.
	MaxSpreadPips float64 `json:"max_spread_pips"`

	Parameters strategy.Params `json:"parameters"`
}

// Normalize fills defaulted fields in place
func (r *RunRequest) Normalize() {
	if r.InitialBalance == 0 {
		r.InitialBalance = DefaultInitialBalance
	}
	if r.LotSize == 0 {
		r.LotSize = DefaultLotSize
	}
	if r.Parameters == nil {
		r.Parameters = strategy.Params{}
	}
}

// Validate rejects requests that cannot describe a run
func (r *RunRequest) Validate() error {
	if r.Symbol == "" {
		return apperr.Configuration("symbol is required")
	}
	if _, err := strategy.ParseKind(string(r.Strategy)); err != nil {
		return err
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
	return nil
}

// ExitReason records why a trade closed
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitSignal     ExitReason = "SIGNAL"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// Trade is one closed round trip
type Trade struct {
	ID         int                `json:"id"`
	Side       strategy.Direction `json:"side"`
	Lots       float64            `json:"lots"`
	EntryTime  time.Time          `json:"entry_time"`
	ExitTime   time.Time          `json:"exit_time"`
	EntryPrice float64            `json:"entry_price"`
	ExitPrice  float64            `json:"exit_price"`
	ProfitPips float64            `json:"profit_pips"`
	NetProfit  float64            `json:"net_profit"`
	ExitReason ExitReason         `json:"exit_reason"`
	EntryTag   string             `json:"entry_tag,omitempty"`
}

// EquityPoint is one realized-equity event: the starting balance, then one
// point per closed trade
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// MetricsSummary is derived strictly from the trade list and equity curve.
// Ratios that are undefined for the sample (no trades, no losses, flat
// equity) are nil rather than zero.
type MetricsSummary struct {
	NetProfit          float64  `json:"net_profit"`
	ReturnPercent      float64  `json:"return_percent"`
	InitialBalance     float64  `json:"initial_balance"`
	FinalBalance       float64  `json:"final_balance"`
	TotalTrades        int      `json:"total_trades"`
	WinRate            *float64 `json:"win_rate"`
	ProfitFactor       *float64 `json:"profit_factor"`
	Expectancy         *float64 `json:"expectancy"`
	MaxDrawdownPercent *float64 `json:"max_drawdown_percent"`
	SharpeRatio        *float64 `json:"sharpe_ratio"`
	RecoveryFactor     *float64 `json:"recovery_factor"`
}

// RunResult is the immutable product of one completed run
type RunResult struct {
	ID         string          `json:"id"`
	Strategy   strategy.Kind   `json:"strategy"`
	Parameters strategy.Params `json:"parameters"`

	// EnumIndex is the position of this assignment in the optimization
	// enumeration. Single runs use 0.
	EnumIndex int `json:"enum_index"`

	Metrics     MetricsSummary `json:"metrics"`
	EquityCurve []EquityPoint  `json:"equity_curve"`
	Trades      []Trade        `json:"trades"`
}
