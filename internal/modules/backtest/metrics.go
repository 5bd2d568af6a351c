package backtest

import (
	"github.com/aristath/crucible/pkg/formulas"
)

// ComputeMetrics derives the metrics summary from a finished replay. It is
// the only place metrics are produced; results are never patched afterwards,
// so the finalBalance identity holds by construction.
func ComputeMetrics(initialBalance float64, trades []Trade, equity []EquityPoint) MetricsSummary {
	netProfit := 0.0
	netProfits := make([]float64, len(trades))
	for i, t := range trades {
		netProfit += t.NetProfit
		netProfits[i] = t.NetProfit
	}

	equityValues := make([]float64, len(equity))
	for i, p := range equity {
		equityValues[i] = p.Equity
	}

	summary := MetricsSummary{
		NetProfit:      netProfit,
		InitialBalance: initialBalance,
		FinalBalance:   initialBalance + netProfit,
		TotalTrades:    len(trades),
		WinRate:        formulas.CalculateWinRate(netProfits),
		ProfitFactor:   formulas.CalculateProfitFactor(netProfits),
		Expectancy:     formulas.CalculateExpectancy(netProfits),
		SharpeRatio:    formulas.CalculateSharpeFromEquity(equityValues, 0),
	}

	if initialBalance > 0 {
		summary.ReturnPercent = netProfit / initialBalance * 100
	}

	if dd := formulas.CalculateMaxDrawdown(equityValues); dd != nil {
		pct := *dd * 100
		summary.MaxDrawdownPercent = &pct
	}

	if absDD := formulas.CalculateAbsoluteDrawdown(equityValues); absDD != nil && *absDD > 0 {
		rf := netProfit / *absDD
		summary.RecoveryFactor = &rf
	}

	return summary
}
