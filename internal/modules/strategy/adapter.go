// Package strategy defines the trading strategies the backtest engine can
// replay and the parameter definitions they expose for optimization.
//
// Strategies are pure decision functions: given the candles seen so far and
// the currently open positions, they either return an order intent or nil.
// They never touch balances, fills, or costs. That separation keeps every
// strategy deterministic and lets the simulator own all execution effects.
package strategy

import (
	"time"

	"github.com/aristath/crucible/internal/modules/history"
)

// Direction is the side of an order or position
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Signal is an order intent produced by a strategy. Prices are absolute,
// not offsets. A zero StopLoss or TakeProfit means the strategy sets none.
type Signal struct {
	Direction  Direction `json:"direction"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`

	// LotMultiplier scales the configured base lot size. Zero means 1.0.
	LotMultiplier float64 `json:"lot_multiplier,omitempty"`

	// Reason is a short human-readable tag for the trade log
	Reason string `json:"reason,omitempty"`
}

// Position is the view of an open position a strategy receives
type Position struct {
	Direction  Direction
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Lots       float64
	OpenTime   time.Time
}

// MarketContext carries the instrument metadata strategies need to convert
// pip-denominated parameters into prices
type MarketContext struct {
	Symbol  string
	PipSize float64
}

// Strategy is a deterministic decision engine evaluated once per candle.
// The window always ends at the candle being evaluated; implementations must
// not look past the end of it.
type Strategy interface {
	// Kind returns the strategy identifier
	Kind() Kind

	// MinCandles returns the minimum window length needed before the
	// strategy can produce a decision under the given parameters
	MinCandles(params Params) int

	// Decide inspects the window and returns an order intent or nil.
	// Identical inputs must always produce identical outputs.
	Decide(market MarketContext, window []history.Candle, open []Position, params Params) (*Signal, error)
}

// Params is one concrete parameter assignment for a strategy. Values come
// from the enumerator or directly from a single-run request and may be
// float64, int, bool, or string depending on the parameter type.
type Params map[string]interface{}

// Float reads a numeric parameter, accepting int or float64 values
func (p Params) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// Int reads a numeric parameter truncated to int
func (p Params) Int(name string, def int) int {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Bool reads a boolean parameter
func (p Params) Bool(name string, def bool) bool {
	if v, ok := p[name].(bool); ok {
		return v
	}
	return def
}

// String reads a select parameter
func (p Params) String(name string, def string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return def
}
