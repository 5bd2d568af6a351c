package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average
//
// EMA Formula:
//
//	EMA_today = (Price_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// Returns the current EMA value or nil if insufficient data.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	ema := talib.Ema(closes, length)
	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	return nil
}

// CalculateRSI calculates the Relative Strength Index
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if insufficient data.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// CalculateATR calculates the Average True Range
//
// Returns the current ATR value or nil if insufficient data.
func CalculateATR(highs, lows, closes []float64, length int) *float64 {
	if len(closes) < length+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, length)
	if len(atr) > 0 && !isNaN(atr[len(atr)-1]) {
		result := atr[len(atr)-1]
		return &result
	}

	return nil
}

// EMASeries returns the full EMA series aligned with the input. Values before
// the warmup period are zero, as produced by talib.
func EMASeries(closes []float64, length int) []float64 {
	if len(closes) < length {
		return nil
	}
	return talib.Ema(closes, length)
}

// RSISeries returns the full RSI series aligned with the input
func RSISeries(closes []float64, length int) []float64 {
	if len(closes) < length+1 {
		return nil
	}
	return talib.Rsi(closes, length)
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
