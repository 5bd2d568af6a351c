// Package history provides read access to stored candle series. It is the
// data façade the backtest engine replays from; acquisition happens out of
// process and lands here via CSV import only.
package history

import (
	"fmt"
	"time"
)

// Timeframe is the candle aggregation period. The set is closed; anything
// else is rejected at the boundary.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// ParseTimeframe validates a timeframe string
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TimeframeM1, TimeframeM5, TimeframeM15, TimeframeM30, TimeframeH1, TimeframeH4, TimeframeD1:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Candle is one OHLC bar. Candles in a series are ascending and
// deduplicated by timestamp (enforced by the storage key).
type Candle struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// SymbolInfo holds instrument metadata used to turn pips into money
type SymbolInfo struct {
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	PipSize        float64 `json:"pip_size"`
	PipValuePerLot float64 `json:"pip_value_per_lot"`
	Digits         int     `json:"digits"`
}

// SeriesSummary describes one stored (symbol, timeframe) series
type SeriesSummary struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candles   int       `json:"candles"`
	FirstTime time.Time `json:"first_time"`
	LastTime  time.Time `json:"last_time"`
}

// DefaultSymbolInfo returns metadata for symbols that were imported without
// an explicit metadata row. Gold trades in tenths, FX majors in pipettes.
func DefaultSymbolInfo(symbol string) SymbolInfo {
	switch symbol {
	case "XAUUSD":
		return SymbolInfo{Symbol: symbol, Description: "Gold vs US Dollar", PipSize: 0.1, PipValuePerLot: 10.0, Digits: 2}
	case "XAGUSD":
		return SymbolInfo{Symbol: symbol, Description: "Silver vs US Dollar", PipSize: 0.01, PipValuePerLot: 50.0, Digits: 3}
	case "USDJPY", "EURJPY", "GBPJPY":
		return SymbolInfo{Symbol: symbol, PipSize: 0.01, PipValuePerLot: 10.0, Digits: 3}
	}
	return SymbolInfo{Symbol: symbol, PipSize: 0.0001, PipValuePerLot: 10.0, Digits: 5}
}
