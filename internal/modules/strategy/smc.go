package strategy

import (
	"github.com/aristath/crucible/internal/modules/history"
)

// smcScanFactor bounds how far back the swing search goes, in multiples of
// the swing lookback. Older structure is considered stale.
const smcScanFactor = 10

// SMC trades break-of-structure setups. It tracks the most recent confirmed
// swing high and swing low and enters in the direction of a close that breaks
// through either one, with the opposite swing as the stop.
type SMC struct{}

// Kind returns the strategy identifier
func (s *SMC) Kind() Kind { return KindSMC }

// MinCandles returns the minimum window length for a decision
func (s *SMC) MinCandles(params Params) int {
	lookback := params.Int("swingLookback", 5)
	return 2*lookback + 2
}

// Decide looks for a close crossing the latest confirmed swing level
func (s *SMC) Decide(market MarketContext, window []history.Candle, open []Position, params Params) (*Signal, error) {
	if len(open) > 0 {
		return nil, nil
	}

	lookback := params.Int("swingLookback", 5)
	riskReward := params.Float("riskReward", 2.0)
	minRangePips := params.Float("minRangePips", 30)

	if len(window) < s.MinCandles(params) {
		return nil, nil
	}

	// Bound the scan so cost per candle stays flat on long replays
	scan := window
	if maxScan := smcScanFactor * lookback; len(scan) > maxScan {
		scan = scan[len(scan)-maxScan:]
	}

	swingHigh, swingLow, ok := latestSwings(scan, lookback)
	if !ok {
		return nil, nil
	}

	if swingHigh-swingLow < minRangePips*market.PipSize {
		return nil, nil
	}

	last := window[len(window)-1]
	prev := window[len(window)-2]

	// Break of structure upward: close crosses above the swing high
	if last.Close > swingHigh && prev.Close <= swingHigh {
		risk := last.Close - swingLow
		return &Signal{
			Direction:  DirectionBuy,
			StopLoss:   swingLow,
			TakeProfit: last.Close + riskReward*risk,
			Reason:     "bos_up",
		}, nil
	}

	// Break of structure downward
	if last.Close < swingLow && prev.Close >= swingLow {
		risk := swingHigh - last.Close
		return &Signal{
			Direction:  DirectionSell,
			StopLoss:   swingHigh,
			TakeProfit: last.Close - riskReward*risk,
			Reason:     "bos_down",
		}, nil
	}

	return nil, nil
}

// latestSwings returns the most recent confirmed swing high and swing low in
// the scan window. A swing needs lookback candles on each side, so the last
// lookback candles can never confirm one.
func latestSwings(scan []history.Candle, lookback int) (high, low float64, ok bool) {
	var haveHigh, haveLow bool

	for i := len(scan) - 1 - lookback; i >= lookback; i-- {
		if !haveHigh && isSwingHigh(scan, i, lookback) {
			high = scan[i].High
			haveHigh = true
		}
		if !haveLow && isSwingLow(scan, i, lookback) {
			low = scan[i].Low
			haveLow = true
		}
		if haveHigh && haveLow {
			return high, low, true
		}
	}

	return 0, 0, false
}

func isSwingHigh(candles []history.Candle, i, lookback int) bool {
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].High >= candles[i].High {
			return false
		}
	}
	return true
}

func isSwingLow(candles []history.Candle, i, lookback int) bool {
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].Low <= candles[i].Low {
			return false
		}
	}
	return true
}
