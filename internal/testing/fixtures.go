package testing

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/crucible/internal/modules/history"
)

// FixtureStart is the first candle timestamp used by all fixture series
var FixtureStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// NewSymbolFixtures returns a set of test symbols for use in tests
func NewSymbolFixtures() []history.SymbolInfo {
	return []history.SymbolInfo{
		{
			Symbol:         "XAUUSD",
			Description:    "Gold vs US Dollar",
			PipSize:        0.1,
			PipValuePerLot: 10.0,
			Digits:         2,
		},
		{
			Symbol:         "EURUSD",
			Description:    "Euro vs US Dollar",
			PipSize:        0.0001,
			PipValuePerLot: 10.0,
			Digits:         5,
		},
	}
}

// NewCandleSeries builds candles from a list of close prices. Each candle
// opens at the previous close, and high/low wrap open and close with a small
// margin. Deterministic, no randomness, so expected trade outcomes can be
// computed by hand.
func NewCandleSeries(start time.Time, step time.Duration, closes []float64) []history.Candle {
	candles := make([]history.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev
		high := math.Max(open, c) + 0.05
		low := math.Min(open, c) - 0.05
		candles[i] = history.Candle{
			Time:  start.Add(time.Duration(i) * step),
			Open:  open,
			High:  high,
			Low:   low,
			Close: c,
		}
		prev = c
	}
	return candles
}

// NewTrendingSeries builds n candles that drift by delta per candle starting
// from base. A positive delta gives a steady uptrend, negative a downtrend.
func NewTrendingSeries(n int, base, delta float64) []history.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + float64(i)*delta
	}
	return NewCandleSeries(FixtureStart, time.Hour, closes)
}

// NewZigZagSeries builds n candles oscillating around base with the given
// amplitude and period (candles per half-cycle). Useful for exercising swing
// detection and range strategies.
func NewZigZagSeries(n int, base, amplitude float64, period int) []history.Candle {
	closes := make([]float64, n)
	for i := range closes {
		phase := (i / period) % 2
		offset := float64(i%period) / float64(period) * amplitude
		if phase == 0 {
			closes[i] = base - amplitude/2 + offset
		} else {
			closes[i] = base + amplitude/2 - offset
		}
	}
	return NewCandleSeries(FixtureStart, time.Hour, closes)
}

// NewGoldFixtureSeries returns a small deterministic XAUUSD H1 series with a
// consolidation, an upside break, and a pullback. Several strategies produce
// at least one signal on it, which makes it the default series for end-to-end
// run tests.
func NewGoldFixtureSeries() []history.Candle {
	closes := []float64{
		2300.0, 2301.5, 2299.8, 2302.0, 2300.5, 2301.0, 2299.5, 2300.8,
		2301.2, 2300.1, 2302.5, 2304.0, 2306.5, 2310.0, 2308.5, 2312.0,
		2315.5, 2313.0, 2317.5, 2320.0, 2318.2, 2322.5, 2325.0, 2323.1,
		2321.0, 2318.5, 2316.0, 2319.5, 2323.0, 2326.5, 2330.0, 2328.0,
		2332.5, 2335.0, 2333.2, 2337.5, 2340.0, 2338.1, 2342.5, 2345.0,
		2343.0, 2340.5, 2338.0, 2341.5, 2345.0, 2348.5, 2352.0, 2350.0,
		2354.5, 2357.0, 2355.2, 2359.5, 2362.0, 2360.1, 2364.5, 2367.0,
		2365.0, 2362.5, 2360.0, 2363.5, 2367.0, 2370.5, 2374.0, 2372.0,
	}
	return NewCandleSeries(FixtureStart, time.Hour, closes)
}

// SeedCandles inserts a candle series into a history store for a test
func SeedCandles(t *testing.T, store *history.Store, symbol string, timeframe history.Timeframe, candles []history.Candle) {
	t.Helper()

	if err := store.EnsureSymbol(symbol); err != nil {
		t.Fatalf("Failed to ensure symbol %s: %v", symbol, err)
	}
	if err := store.InsertCandles(symbol, timeframe, candles); err != nil {
		t.Fatalf("Failed to seed candles for %s %s: %v", symbol, timeframe, err)
	}
}
