package optimization

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/aristath/crucible/internal/modules/backtest"
)

// Category identifies one ranking the aggregator maintains
type Category string

const (
	// CategoryProfitability orders by net profit, highest first
	CategoryProfitability Category = "profitability"
	// CategoryRecoveryFactor orders by recovery factor, highest first
	CategoryRecoveryFactor Category = "recoveryFactor"
	// CategoryMinDrawdown orders by maximum drawdown, lowest first
	CategoryMinDrawdown Category = "minDrawdown"
	// CategoryWinRate orders by win rate, highest first
	CategoryWinRate Category = "winRate"
)

// Categories lists every ranking in presentation order
var Categories = []Category{
	CategoryProfitability,
	CategoryRecoveryFactor,
	CategoryMinDrawdown,
	CategoryWinRate,
}

// betterFunc reports whether a ranks strictly above b in one category.
// Ties on the metric fall back to the lower enumeration index, which makes
// every comparator a total order and rankings independent of fold order.
type betterFunc func(a, b *backtest.RunResult) bool

func comparator(c Category) betterFunc {
	switch c {
	case CategoryRecoveryFactor:
		return moreIsBetter(func(r *backtest.RunResult) *float64 { return r.Metrics.RecoveryFactor })
	case CategoryMinDrawdown:
		return lessIsBetter(func(r *backtest.RunResult) *float64 { return r.Metrics.MaxDrawdownPercent })
	case CategoryWinRate:
		return moreIsBetter(func(r *backtest.RunResult) *float64 { return r.Metrics.WinRate })
	default: // profitability
		return func(a, b *backtest.RunResult) bool {
			if a.Metrics.NetProfit != b.Metrics.NetProfit {
				return a.Metrics.NetProfit > b.Metrics.NetProfit
			}
			return a.EnumIndex < b.EnumIndex
		}
	}
}

// moreIsBetter ranks higher metric values first. A nil metric (undefined,
// e.g. no trades) ranks below every defined value.
func moreIsBetter(metric func(*backtest.RunResult) *float64) betterFunc {
	return func(a, b *backtest.RunResult) bool {
		av, bv := metric(a), metric(b)
		switch {
		case av == nil && bv == nil:
			return a.EnumIndex < b.EnumIndex
		case av == nil:
			return false
		case bv == nil:
			return true
		case *av != *bv:
			return *av > *bv
		default:
			return a.EnumIndex < b.EnumIndex
		}
	}
}

func lessIsBetter(metric func(*backtest.RunResult) *float64) betterFunc {
	return func(a, b *backtest.RunResult) bool {
		av, bv := metric(a), metric(b)
		switch {
		case av == nil && bv == nil:
			return a.EnumIndex < b.EnumIndex
		case av == nil:
			return false
		case bv == nil:
			return true
		case *av != *bv:
			return *av < *bv
		default:
			return a.EnumIndex < b.EnumIndex
		}
	}
}

// topK is a size-capped container keyed by one comparator. It is a min-heap
// on rank, so the root is always the weakest kept result and an insertion
// costs O(log K).
type topK struct {
	better betterFunc
	limit  int
	items  []*backtest.RunResult
}

func (h *topK) Len() int           { return len(h.items) }
func (h *topK) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }
func (h *topK) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *topK) Push(x any) {
	h.items = append(h.items, x.(*backtest.RunResult))
}

func (h *topK) Pop() any {
	last := len(h.items) - 1
	item := h.items[last]
	h.items[last] = nil
	h.items = h.items[:last]
	return item
}

// offer inserts r if the container has room or r outranks the weakest entry
func (h *topK) offer(r *backtest.RunResult) {
	if len(h.items) < h.limit {
		heap.Push(h, r)
		return
	}
	if h.better(r, h.items[0]) {
		h.items[0] = r
		heap.Fix(h, 0)
	}
}

// sorted returns the kept results best first
func (h *topK) sorted() []*backtest.RunResult {
	out := make([]*backtest.RunResult, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool { return h.better(out[i], out[j]) })
	return out
}

// Aggregator folds completed runs into one bounded ranking per category plus
// a single overall best chosen by profitability. It retains at most
// K results per category, so memory stays flat across arbitrarily large
// combination spaces. Safe for one writer and any number of snapshot readers.
type Aggregator struct {
	mu         sync.Mutex
	rankings   map[Category]*topK
	overall    *backtest.RunResult
	overallCmp betterFunc
}

// DefaultTopK bounds each ranking when a request does not say otherwise
const DefaultTopK = 5

// NewAggregator creates an aggregator keeping the top k results per category
func NewAggregator(k int) *Aggregator {
	if k <= 0 {
		k = DefaultTopK
	}
	rankings := make(map[Category]*topK, len(Categories))
	for _, category := range Categories {
		rankings[category] = &topK{better: comparator(category), limit: k}
	}
	return &Aggregator{
		rankings:   rankings,
		overallCmp: comparator(CategoryProfitability),
	}
}

// Fold offers one completed result to every category
func (a *Aggregator) Fold(r *backtest.RunResult) {
	if r == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, ranking := range a.rankings {
		ranking.offer(r)
	}
	if a.overall == nil || a.overallCmp(r, a.overall) {
		a.overall = r
	}
}

// Snapshot returns the current rankings, best first, and the overall best.
// The returned slices are copies; the referenced results are shared and
// immutable.
func (a *Aggregator) Snapshot() (map[Category][]*backtest.RunResult, *backtest.RunResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rankings := make(map[Category][]*backtest.RunResult, len(a.rankings))
	for category, ranking := range a.rankings {
		rankings[category] = ranking.sorted()
	}
	return rankings, a.overall
}
