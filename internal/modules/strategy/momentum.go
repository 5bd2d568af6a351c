package strategy

import (
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/pkg/formulas"
)

const (
	// atrPeriod is the fixed ATR period for stop placement
	atrPeriod = 14
	// momentumRewardRatio scales take-profit distance relative to the stop
	momentumRewardRatio = 1.5
	// RSI gates: a cross only counts while momentum is present but not stretched
	rsiMidline   = 50.0
	rsiUpperGate = 75.0
	rsiLowerGate = 25.0
	// momentumScanFactor bounds the indicator window, in multiples of the
	// slow EMA period. Enough warmup for the EMA to converge.
	momentumScanFactor = 4
)

// Momentum trades EMA crossovers in the direction of the cross, filtered by
// RSI and with ATR-scaled stops.
type Momentum struct{}

// Kind returns the strategy identifier
func (m *Momentum) Kind() Kind { return KindMomentum }

// MinCandles returns the minimum window length for a decision
func (m *Momentum) MinCandles(params Params) int {
	slow := params.Int("emaSlow", 30)
	rsi := params.Int("rsiPeriod", 14)
	min := momentumScanFactor * slow
	if n := rsi + 2; n > min {
		min = n
	}
	if n := atrPeriod + 2; n > min {
		min = n
	}
	return min
}

// Decide looks for an EMA cross on the last candle
func (m *Momentum) Decide(market MarketContext, window []history.Candle, open []Position, params Params) (*Signal, error) {
	if len(open) > 0 {
		return nil, nil
	}

	fast := params.Int("emaFast", 10)
	slow := params.Int("emaSlow", 30)
	rsiPeriod := params.Int("rsiPeriod", 14)
	atrMult := params.Float("atrMultiplier", 2.0)
	longOnly := params.Bool("longOnly", false)

	if fast >= slow {
		return nil, nil
	}
	if len(window) < m.MinCandles(params) {
		return nil, nil
	}

	// Bounded suffix keeps per-candle cost flat; the slow EMA has converged
	// well within momentumScanFactor periods
	scan := window
	if maxScan := momentumScanFactor * slow; len(scan) > maxScan {
		scan = scan[len(scan)-maxScan:]
	}

	closes := make([]float64, len(scan))
	highs := make([]float64, len(scan))
	lows := make([]float64, len(scan))
	for i, c := range scan {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	fastEMA := formulas.EMASeries(closes, fast)
	slowEMA := formulas.EMASeries(closes, slow)
	if fastEMA == nil || slowEMA == nil {
		return nil, nil
	}

	n := len(closes)
	crossedUp := fastEMA[n-1] > slowEMA[n-1] && fastEMA[n-2] <= slowEMA[n-2]
	crossedDown := fastEMA[n-1] < slowEMA[n-1] && fastEMA[n-2] >= slowEMA[n-2]
	if !crossedUp && !crossedDown {
		return nil, nil
	}

	rsi := formulas.CalculateRSI(closes, rsiPeriod)
	atr := formulas.CalculateATR(highs, lows, closes, atrPeriod)
	if rsi == nil || atr == nil || *atr <= 0 {
		return nil, nil
	}

	last := scan[n-1]

	if crossedUp && *rsi > rsiMidline && *rsi < rsiUpperGate {
		stop := atrMult * *atr
		return &Signal{
			Direction:  DirectionBuy,
			StopLoss:   last.Close - stop,
			TakeProfit: last.Close + momentumRewardRatio*stop,
			Reason:     "ema_cross_up",
		}, nil
	}

	if crossedDown && !longOnly && *rsi < rsiMidline && *rsi > rsiLowerGate {
		stop := atrMult * *atr
		return &Signal{
			Direction:  DirectionSell,
			StopLoss:   last.Close + stop,
			TakeProfit: last.Close - momentumRewardRatio*stop,
			Reason:     "ema_cross_down",
		}, nil
	}

	return nil, nil
}
