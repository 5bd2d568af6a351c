package optimization

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/modules/backtest"
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/internal/modules/strategy"
)

// stubExecutor returns synthetic results keyed by enumeration index so
// scheduler behavior can be asserted without real replays
type stubExecutor struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	failIdx map[int]bool
	profit  func(enumIndex int) float64
}

func (s *stubExecutor) Execute(ctx context.Context, id string, req backtest.RunRequest, enumIndex int, progress backtest.ProgressFunc) (*backtest.RunResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failIdx[enumIndex] {
		return nil, apperr.RunExecution("synthetic failure").WithContext("enum_index", enumIndex)
	}

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	netProfit := float64(enumIndex)
	if s.profit != nil {
		netProfit = s.profit(enumIndex)
	}
	winRate := 0.5
	drawdown := 10.0
	return &backtest.RunResult{
		ID:         id,
		Strategy:   req.Strategy,
		Parameters: req.Parameters,
		EnumIndex:  enumIndex,
		Metrics: backtest.MetricsSummary{
			NetProfit:          netProfit,
			InitialBalance:     req.InitialBalance,
			FinalBalance:       req.InitialBalance + netProfit,
			TotalTrades:        1,
			WinRate:            &winRate,
			MaxDrawdownPercent: &drawdown,
		},
	}, nil
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// testBatchRequest spans 3 strategies x 3 x 2 = 18 combinations
func testBatchRequest() BatchRequest {
	return BatchRequest{
		Symbol:     "XAUUSD",
		Timeframe:  history.TimeframeH1,
		From:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Strategies: []strategy.Kind{strategy.KindSMC, strategy.KindAmplitude, strategy.KindMomentum},
		Parameters: []strategy.ParameterDef{
			numberDef("a", 1, 3, 1),
			{Name: "b", Type: strategy.ParamBoolean, Enabled: true},
		},
		BatchSize: 5,
	}
}

func newTestScheduler(executor RunExecutor) *Scheduler {
	return NewScheduler(executor, SchedulerConfig{Workers: 4, DefaultBatchSize: 50, DefaultTopK: 5}, zerolog.Nop())
}

func TestScheduler_RunsEveryCombination(t *testing.T) {
	stub := &stubExecutor{}
	scheduler := newTestScheduler(stub)

	job, err := scheduler.Prepare("batch-1", testBatchRequest())
	require.NoError(t, err)

	progress := job.Progress()
	assert.Equal(t, domain.JobRunning, progress.Status)
	assert.Equal(t, 18, progress.TotalCombinations)
	assert.Equal(t, 4, progress.TotalBatches)

	scheduler.Run(context.Background(), job)

	progress = job.Progress()
	assert.Equal(t, domain.JobDone, progress.Status)
	assert.Equal(t, 18, progress.CompletedCombinations)
	assert.Equal(t, 3, progress.CurrentBatchIndex)
	assert.Equal(t, 0, progress.Errors)
	assert.Equal(t, 18, stub.callCount())

	// Synthetic profit equals the enumeration index, so the top five are
	// the five highest indices
	results := job.Results()
	top := results.Rankings[CategoryProfitability]
	require.Len(t, top, 5)
	for i, expected := range []int{17, 16, 15, 14, 13} {
		assert.Equal(t, expected, top[i].EnumIndex)
	}
	require.NotNil(t, results.OverallBest)
	assert.Equal(t, 17, results.OverallBest.EnumIndex)
	assert.Greater(t, results.ExecutionTimeSeconds, 0.0)
}

func TestScheduler_ProgressHookFiresPerBatchAndAtSettle(t *testing.T) {
	stub := &stubExecutor{}
	scheduler := newTestScheduler(stub)

	job, err := scheduler.Prepare("batch-1", testBatchRequest())
	require.NoError(t, err)

	var snapshots []Progress
	job.SetProgressHook(func(p Progress) { snapshots = append(snapshots, p) })

	scheduler.Run(context.Background(), job)

	require.Len(t, snapshots, 5)
	assert.Equal(t, 5, snapshots[0].CompletedCombinations)
	assert.Equal(t, 10, snapshots[1].CompletedCombinations)
	assert.Equal(t, 18, snapshots[3].CompletedCombinations)
	assert.Equal(t, domain.JobRunning, snapshots[0].Status)
	assert.Equal(t, domain.JobDone, snapshots[4].Status)
}

func TestScheduler_FailedCombinationIsRecordedNotFatal(t *testing.T) {
	stub := &stubExecutor{failIdx: map[int]bool{2: true, 7: true}}
	scheduler := newTestScheduler(stub)

	job, err := scheduler.Prepare("batch-1", testBatchRequest())
	require.NoError(t, err)
	scheduler.Run(context.Background(), job)

	progress := job.Progress()
	assert.Equal(t, domain.JobDone, progress.Status)
	assert.Equal(t, 16, progress.CompletedCombinations)
	assert.Equal(t, 2, progress.Errors)

	results := job.Results()
	require.Len(t, results.Errors, 2)
	assert.Equal(t, 2, results.Errors[0].EnumIndex)
	assert.Equal(t, strategy.KindSMC, results.Errors[0].Strategy)
	assert.Contains(t, results.Errors[0].Message, "synthetic failure")
	assert.Equal(t, 7, results.Errors[1].EnumIndex)
	assert.Equal(t, strategy.KindAmplitude, results.Errors[1].Strategy)

	for _, r := range results.Rankings[CategoryProfitability] {
		assert.NotEqual(t, 2, r.EnumIndex)
		assert.NotEqual(t, 7, r.EnumIndex)
	}
}

func TestScheduler_AbortStopsAtBatchBoundaryAndKeepsRankings(t *testing.T) {
	stub := &stubExecutor{}
	scheduler := newTestScheduler(stub)

	req := testBatchRequest()
	req.BatchSize = 6
	job, err := scheduler.Prepare("batch-1", req)
	require.NoError(t, err)

	abortedOnce := false
	job.SetProgressHook(func(p Progress) {
		if !abortedOnce {
			abortedOnce = true
			job.Abort()
		}
	})

	scheduler.Run(context.Background(), job)

	progress := job.Progress()
	assert.Equal(t, domain.JobAborted, progress.Status)
	assert.Equal(t, "user_abort", progress.AbortReason)
	assert.Equal(t, 6, progress.CompletedCombinations)
	assert.Equal(t, 6, stub.callCount())

	// Rankings accumulated before the abort survive
	results := job.Results()
	assert.Equal(t, domain.JobAborted, results.Status)
	top := results.Rankings[CategoryProfitability]
	require.NotEmpty(t, top)
	assert.Equal(t, 5, top[0].EnumIndex)
	require.NotNil(t, results.OverallBest)
	assert.Equal(t, 5, results.OverallBest.EnumIndex)
}

func TestScheduler_CancelledContextAbortsBeforeDispatch(t *testing.T) {
	stub := &stubExecutor{}
	scheduler := newTestScheduler(stub)

	job, err := scheduler.Prepare("batch-1", testBatchRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scheduler.Run(ctx, job)

	progress := job.Progress()
	assert.Equal(t, domain.JobAborted, progress.Status)
	assert.Equal(t, "shutdown", progress.AbortReason)
	assert.Equal(t, 0, progress.CompletedCombinations)
	assert.Equal(t, 0, stub.callCount())

	results := job.Results()
	assert.Empty(t, results.Rankings[CategoryProfitability])
	assert.Nil(t, results.OverallBest)
}

func TestScheduler_WallClockBudgetStopsJob(t *testing.T) {
	if testing.Short() {
		t.Skip("wall clock test")
	}

	stub := &stubExecutor{delay: 1100 * time.Millisecond}
	scheduler := NewScheduler(stub, SchedulerConfig{Workers: 6, DefaultBatchSize: 50, DefaultTopK: 5}, zerolog.Nop())

	req := testBatchRequest()
	req.BatchSize = 6
	req.MaxDurationSeconds = 1
	job, err := scheduler.Prepare("batch-1", req)
	require.NoError(t, err)

	scheduler.Run(context.Background(), job)

	progress := job.Progress()
	assert.Equal(t, domain.JobAborted, progress.Status)
	assert.Equal(t, "time_budget", progress.AbortReason)
	assert.Equal(t, 6, progress.CompletedCombinations)
	assert.Equal(t, 6, stub.callCount())
}

func TestScheduler_PrepareRejectsBadRequests(t *testing.T) {
	scheduler := newTestScheduler(&stubExecutor{})

	req := testBatchRequest()
	req.Strategies = nil
	_, err := scheduler.Prepare("batch-1", req)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))

	req = testBatchRequest()
	req.BatchSize = -1
	_, err = scheduler.Prepare("batch-1", req)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))

	req = testBatchRequest()
	req.Timeframe = "H7"
	_, err = scheduler.Prepare("batch-1", req)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))

	req = testBatchRequest()
	req.Parameters = append(req.Parameters, numberDef("bad", 10, 1, 1))
	_, err = scheduler.Prepare("batch-1", req)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
}

func TestScheduler_ZeroBatchSizePicksConfiguredDefault(t *testing.T) {
	scheduler := newTestScheduler(&stubExecutor{})

	req := testBatchRequest()
	req.BatchSize = 0
	job, err := scheduler.Prepare("batch-1", req)
	require.NoError(t, err)

	assert.Equal(t, 1, job.Progress().TotalBatches)
}

func TestScheduler_RerunProducesIdenticalRankings(t *testing.T) {
	run := func() Results {
		stub := &stubExecutor{profit: func(i int) float64 { return float64((i * 53) % 29) }}
		scheduler := newTestScheduler(stub)
		job, err := scheduler.Prepare("batch-x", testBatchRequest())
		require.NoError(t, err)
		scheduler.Run(context.Background(), job)
		return job.Results()
	}

	first, second := run(), run()
	require.Equal(t, first.Rankings, second.Rankings)
	require.Equal(t, first.OverallBest, second.OverallBest)
	require.Equal(t, first.Errors, second.Errors)
}

// candleSource feeds the real executor a fixed window
type candleSource struct {
	candles []history.Candle
}

func (c *candleSource) GetCandles(symbol string, timeframe history.Timeframe, from, to time.Time) ([]history.Candle, error) {
	return c.candles, nil
}

func (c *candleSource) GetSymbol(symbol string) (*history.SymbolInfo, error) {
	return nil, nil
}

func e2eCandle(i int, open, high, low, close float64) history.Candle {
	return history.Candle{
		Time:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		Open:  open,
		High:  high,
		Low:   low,
		Close: close,
	}
}

// Full pipeline: enumerator feeds the real executor, results fold into
// rankings. A structure break at 106 with swing low 98 enters long at
// candle 10; higher risk/reward multiples ride the rally further, so net
// profit orders the rankings by riskReward.
func TestScheduler_EndToEndWithRealExecutor(t *testing.T) {
	source := &candleSource{candles: []history.Candle{
		e2eCandle(0, 100, 101, 99, 100.5),
		e2eCandle(1, 100.5, 102, 100, 101),
		e2eCandle(2, 101, 103, 101, 102),
		e2eCandle(3, 102, 106, 102, 104),
		e2eCandle(4, 104, 104, 100, 101),
		e2eCandle(5, 101, 103, 98, 100),
		e2eCandle(6, 100, 102, 99, 101),
		e2eCandle(7, 101, 103, 100, 102),
		e2eCandle(8, 102, 104, 101, 103),
		e2eCandle(9, 103, 105.5, 102, 105),
		e2eCandle(10, 105, 107.5, 104, 107),
		e2eCandle(11, 107, 126, 106, 124),
		e2eCandle(12, 124, 125, 120, 122),
	}}

	executor := backtest.NewExecutor(source, strategy.NewRegistry(), zerolog.Nop())
	scheduler := NewScheduler(executor, SchedulerConfig{Workers: 2, DefaultBatchSize: 50, DefaultTopK: 5}, zerolog.Nop())

	req := BatchRequest{
		Symbol:           "XAUUSD",
		Timeframe:        history.TimeframeH1,
		From:             source.candles[0].Time,
		To:               source.candles[len(source.candles)-1].Time,
		InitialBalance:   10000,
		LotSize:          0.1,
		CommissionPerLot: 7,
		SpreadPips:       2,
		SlippagePips:     1,
		Strategies:       []strategy.Kind{strategy.KindSMC},
		Parameters: []strategy.ParameterDef{
			{Name: "swingLookback", Type: strategy.ParamNumber, Min: 2, Max: 5, Step: 1, Default: 2, Enabled: false},
			{Name: "riskReward", Type: strategy.ParamNumber, Min: 1.0, Max: 2.0, Step: 0.5, Enabled: true},
			{Name: "minRangePips", Type: strategy.ParamNumber, Min: 10, Max: 100, Step: 10, Default: 30, Enabled: false},
		},
		BatchSize: 2,
	}

	job, err := scheduler.Prepare("batch-e2e", req)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Progress().TotalCombinations)
	assert.Equal(t, 2, job.Progress().TotalBatches)

	scheduler.Run(context.Background(), job)

	progress := job.Progress()
	require.Equal(t, domain.JobDone, progress.Status)
	require.Equal(t, 3, progress.CompletedCombinations)
	require.Equal(t, 0, progress.Errors)

	results := job.Results()
	top := results.Rankings[CategoryProfitability]
	require.Len(t, top, 3)

	// riskReward 2.0 exits at 125, 1.5 at 120.5, 1.0 at 116; entry fills at
	// 107.3 after costs, 0.1 lots at 10 per pip, 1.4 commission round trip
	assert.Equal(t, 2, top[0].EnumIndex)
	assert.InDelta(t, 175.6, top[0].Metrics.NetProfit, 1e-9)
	assert.Equal(t, 1, top[1].EnumIndex)
	assert.InDelta(t, 130.6, top[1].Metrics.NetProfit, 1e-9)
	assert.Equal(t, 0, top[2].EnumIndex)
	assert.InDelta(t, 85.6, top[2].Metrics.NetProfit, 1e-9)

	require.NotNil(t, results.OverallBest)
	assert.Equal(t, 2, results.OverallBest.EnumIndex)
	assert.InDelta(t, 2.0, results.OverallBest.Parameters.Float("riskReward", -1), 1e-9)

	// Pinned parameters flow into every run
	assert.InDelta(t, 2.0, top[2].Parameters.Float("swingLookback", -1), 1e-9)
}
