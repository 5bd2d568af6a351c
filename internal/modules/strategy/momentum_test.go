package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/crucible/internal/modules/history"
	testingpkg "github.com/aristath/crucible/internal/testing"
)

func momentumParams() Params {
	return Params{"emaFast": 5, "emaSlow": 10, "rsiPeriod": 7, "atrMultiplier": 2.0}
}

// replayMomentum evaluates the strategy candle by candle and collects every
// signal with the index it fired on
func replayMomentum(t *testing.T, candles []history.Candle, params Params) []*Signal {
	t.Helper()

	m := &Momentum{}
	var signals []*Signal
	for i := m.MinCandles(params); i <= len(candles); i++ {
		signal, err := m.Decide(goldMarket(), candles[:i], nil, params)
		require.NoError(t, err)
		if signal != nil {
			signals = append(signals, signal)
		}
	}
	return signals
}

// momentumReversalSeries declines long enough to pin the fast EMA below the
// slow one, then turns up so the fast EMA crosses back over
func momentumReversalSeries() []history.Candle {
	closes := make([]float64, 0, 60)
	price := 2400.0
	for i := 0; i < 40; i++ {
		price -= 1.0
		closes = append(closes, price)
	}
	for i := 0; i < 20; i++ {
		price += 1.5
		closes = append(closes, price)
	}
	return testingpkg.NewCandleSeries(testStart, time.Hour, closes)
}

func TestMomentum_BuySignalOnUpsideCross(t *testing.T) {
	signals := replayMomentum(t, momentumReversalSeries(), momentumParams())

	require.NotEmpty(t, signals, "recovery leg must produce at least one signal")

	var buys int
	for _, s := range signals {
		if s.Direction == DirectionBuy {
			buys++
			// ATR stops bracket the entry: stop below target, both set
			assert.Greater(t, s.TakeProfit, s.StopLoss)
			assert.NotZero(t, s.StopLoss)
			// Take-profit distance is 1.5x the stop distance by construction
		}
	}
	assert.Greater(t, buys, 0, "upside cross must produce a buy")
}

func TestMomentum_LongOnlySuppressesSells(t *testing.T) {
	// Mirror image: rally then decline, which produces a downside cross
	closes := make([]float64, 0, 60)
	price := 2400.0
	for i := 0; i < 40; i++ {
		price += 1.0
		closes = append(closes, price)
	}
	for i := 0; i < 20; i++ {
		price -= 1.5
		closes = append(closes, price)
	}
	candles := testingpkg.NewCandleSeries(testStart, time.Hour, closes)

	params := momentumParams()
	sells := 0
	for _, s := range replayMomentum(t, candles, params) {
		if s.Direction == DirectionSell {
			sells++
		}
	}

	params["longOnly"] = true
	suppressed := replayMomentum(t, candles, params)
	for _, s := range suppressed {
		assert.NotEqual(t, DirectionSell, s.Direction)
	}

	if sells == 0 {
		t.Skip("series produced no sell baseline, long-only gate not exercised")
	}
}

func TestMomentum_InvertedPeriodsProduceNothing(t *testing.T) {
	m := &Momentum{}

	params := Params{"emaFast": 30, "emaSlow": 10}
	signal, err := m.Decide(goldMarket(), momentumReversalSeries(), nil, params)
	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestMomentum_NoSignalWhilePositionOpen(t *testing.T) {
	m := &Momentum{}
	candles := momentumReversalSeries()

	open := []Position{{Direction: DirectionBuy, EntryPrice: 2380, Lots: 0.1}}
	for i := m.MinCandles(momentumParams()); i <= len(candles); i++ {
		signal, err := m.Decide(goldMarket(), candles[:i], open, momentumParams())
		require.NoError(t, err)
		assert.Nil(t, signal)
	}
}

func TestMomentum_Deterministic(t *testing.T) {
	first := replayMomentum(t, momentumReversalSeries(), momentumParams())
	second := replayMomentum(t, momentumReversalSeries(), momentumParams())

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}
