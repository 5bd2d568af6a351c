package formulas

// CalculateMaxDrawdown calculates the maximum drawdown from an equity series
//
// Drawdown Formula:
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Args:
//
//	equity: Array of equity values in time order
//
// Returns:
//
//	Maximum drawdown as positive fraction (0.25 = 25% decline from peak) or nil
func CalculateMaxDrawdown(equity []float64) *float64 {
	if len(equity) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := equity[0]

	for _, value := range equity {
		if value > peak {
			peak = value
		}

		if peak > 0 {
			drawdown := (peak - value) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return &maxDrawdown
}

// CalculateAbsoluteDrawdown calculates the deepest peak-to-trough decline in
// absolute terms (same units as the equity values), or nil if insufficient
// data. Used for recovery factor, which relates net profit to the worst
// absolute loss streak.
func CalculateAbsoluteDrawdown(equity []float64) *float64 {
	if len(equity) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := equity[0]

	for _, value := range equity {
		if value > peak {
			peak = value
		}

		if drawdown := peak - value; drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return &maxDrawdown
}
