package formulas

// CalculateWinRate calculates the fraction of profitable trades (0..1)
// from a list of per-trade net profits. Returns nil when there are no trades.
func CalculateWinRate(netProfits []float64) *float64 {
	if len(netProfits) == 0 {
		return nil
	}

	wins := 0
	for _, p := range netProfits {
		if p > 0 {
			wins++
		}
	}

	rate := float64(wins) / float64(len(netProfits))
	return &rate
}

// CalculateProfitFactor calculates gross profit divided by gross loss.
// Returns nil when there are no trades or no losing trades (the ratio is
// undefined without a loss denominator).
func CalculateProfitFactor(netProfits []float64) *float64 {
	if len(netProfits) == 0 {
		return nil
	}

	grossProfit := 0.0
	grossLoss := 0.0
	for _, p := range netProfits {
		if p > 0 {
			grossProfit += p
		} else {
			grossLoss += -p
		}
	}

	if grossLoss == 0 {
		return nil
	}

	factor := grossProfit / grossLoss
	return &factor
}

// CalculateExpectancy calculates the average net profit per trade.
// Returns nil when there are no trades.
func CalculateExpectancy(netProfits []float64) *float64 {
	if len(netProfits) == 0 {
		return nil
	}

	expectancy := Mean(netProfits)
	return &expectancy
}
