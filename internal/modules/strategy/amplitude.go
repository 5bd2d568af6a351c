package strategy

import (
	"strconv"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/pkg/formulas"
)

// exhaustionPercentile gates entries to candles whose range is already in the
// upper quartile of recent ranges. Quiet candles carry no projection signal.
const exhaustionPercentile = 0.75

// Amplitude projects the closing level of the current range with a Fibonacci
// fraction of the amplitude and enters when price has pulled far enough away
// from the projection.
//
// The projection rule: when the range opened in its lower half the move is
// treated as bullish and the close is projected at open + F * (high - open);
// opened in the upper half, bearish, open - F * (open - low). Entries trigger
// only when the last close sits at least triggerPips away from the projection
// on the profitable side.
type Amplitude struct{}

// Kind returns the strategy identifier
func (a *Amplitude) Kind() Kind { return KindAmplitude }

// MinCandles returns the minimum window length for a decision
func (a *Amplitude) MinCandles(params Params) int {
	return 2*params.Int("amplitudeWindow", 20) + 1
}

// Decide applies the amplitude projection to the trailing window
func (a *Amplitude) Decide(market MarketContext, window []history.Candle, open []Position, params Params) (*Signal, error) {
	if len(open) > 0 {
		return nil, nil
	}

	w := params.Int("amplitudeWindow", 20)
	trigger := params.Float("triggerPips", 15) * market.PipSize

	fib, err := parseFibLevel(params.String("fibLevel", "0.618"))
	if err != nil {
		return nil, err
	}

	if len(window) < a.MinCandles(params) {
		return nil, nil
	}

	// Per-candle amplitudes over the candles before the active range,
	// zero-range candles excluded
	historyStart := len(window) - 2*w
	amps := make([]float64, 0, w)
	for _, c := range window[historyStart : len(window)-w] {
		if amp := c.High - c.Low; amp > 0 {
			amps = append(amps, amp)
		}
	}
	if len(amps) < 2 {
		return nil, nil
	}

	last := window[len(window)-1]
	lastAmp := last.High - last.Low
	if lastAmp <= 0 {
		return nil, nil
	}
	if lastAmp < formulas.Percentile(amps, exhaustionPercentile) {
		return nil, nil
	}

	// Active range: the trailing window treated as one synthetic candle
	active := window[len(window)-w:]
	rangeOpen := active[0].Open
	rangeHigh, rangeLow := active[0].High, active[0].Low
	for _, c := range active[1:] {
		if c.High > rangeHigh {
			rangeHigh = c.High
		}
		if c.Low < rangeLow {
			rangeLow = c.Low
		}
	}
	if rangeHigh <= rangeLow {
		return nil, nil
	}

	mid := (rangeHigh + rangeLow) / 2

	if rangeOpen < mid {
		// Bullish structure: projection above the open
		projected := rangeOpen + fib*(rangeHigh-rangeOpen)
		if last.Close <= projected-trigger {
			return &Signal{
				Direction:  DirectionBuy,
				StopLoss:   rangeLow - trigger,
				TakeProfit: projected,
				Reason:     "amplitude_projection_up",
			}, nil
		}
		return nil, nil
	}

	// Bearish structure: projection below the open
	projected := rangeOpen - fib*(rangeOpen-rangeLow)
	if last.Close >= projected+trigger {
		return &Signal{
			Direction:  DirectionSell,
			StopLoss:   rangeHigh + trigger,
			TakeProfit: projected,
			Reason:     "amplitude_projection_down",
		}, nil
	}

	return nil, nil
}

// parseFibLevel converts the select option into a fraction in (0, 1)
func parseFibLevel(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f >= 1 {
		return 0, apperr.Configuration("invalid fibLevel %q", s).WithContext("fibLevel", s)
	}
	return f, nil
}
