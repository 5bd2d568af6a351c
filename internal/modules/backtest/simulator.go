package backtest

import (
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/internal/modules/strategy"
)

// SimulationSettings are the execution costs and instrument constants for one
// run. Pip fields come from the symbol metadata, the rest from the request.
type SimulationSettings struct {
	InitialBalance   float64
	LotSize          float64
	CommissionPerLot float64
	SpreadPips       float64
	SlippagePips     float64
	MaxSpreadPips    float64
	PipSize          float64
	PipValuePerLot   float64
}

type openPosition struct {
	side       strategy.Direction
	lots       float64
	entryTime  history.Candle
	entryPrice float64
	stopLoss   float64
	takeProfit float64
	entryTag   string
}

// Simulator owns all execution effects of one replay: fills, costs, balance,
// the trade list, and the equity curve. Strategies never see any of it except
// the open-position view.
//
// Cost model: a round trip pays the spread once and slippage once, applied to
// the charged side's fill. Long trades are charged on entry (bought at ask),
// short trades on exit (bought back at ask). Commission is charged per lot
// per leg and settled when the trade closes.
type Simulator struct {
	settings SimulationSettings
	balance  float64
	position *openPosition
	trades   []Trade
	equity   []EquityPoint
	nextID   int
}

// NewSimulator creates a simulator with the starting balance as the first
// equity point once replay begins
func NewSimulator(settings SimulationSettings) *Simulator {
	return &Simulator{
		settings: settings,
		balance:  settings.InitialBalance,
		nextID:   1,
	}
}

// Start records the initial equity point at the first candle's time
func (s *Simulator) Start(first history.Candle) {
	s.equity = append(s.equity, EquityPoint{Time: first.Time, Equity: s.balance})
}

// OpenPositions returns the strategy-facing view of the open position
func (s *Simulator) OpenPositions() []strategy.Position {
	if s.position == nil {
		return nil
	}
	return []strategy.Position{{
		Direction:  s.position.side,
		EntryPrice: s.position.entryPrice,
		StopLoss:   s.position.stopLoss,
		TakeProfit: s.position.takeProfit,
		Lots:       s.position.lots,
		OpenTime:   s.position.entryTime.Time,
	}}
}

// costOffset is the spread plus slippage expressed in price units
func (s *Simulator) costOffset() float64 {
	return (s.settings.SpreadPips + s.settings.SlippagePips) * s.settings.PipSize
}

// CheckExits tests the open position against a candle's range and closes it
// at the crossed level. When both the stop-loss and the take-profit lie
// inside the candle, the stop-loss is assumed to have filled first.
func (s *Simulator) CheckExits(candle history.Candle) {
	p := s.position
	if p == nil {
		return
	}

	switch p.side {
	case strategy.DirectionBuy:
		if p.stopLoss != 0 && candle.Low <= p.stopLoss {
			s.closeAt(candle, p.stopLoss, ExitStopLoss)
			return
		}
		if p.takeProfit != 0 && candle.High >= p.takeProfit {
			s.closeAt(candle, p.takeProfit, ExitTakeProfit)
		}
	case strategy.DirectionSell:
		if p.stopLoss != 0 && candle.High >= p.stopLoss {
			s.closeAt(candle, p.stopLoss, ExitStopLoss)
			return
		}
		if p.takeProfit != 0 && candle.Low <= p.takeProfit {
			s.closeAt(candle, p.takeProfit, ExitTakeProfit)
		}
	}
}

// ApplySignal handles a strategy decision at the candle close. A signal with
// no position opens one; an opposite-direction signal first closes the open
// position at the close, then opens the new one. Same-direction signals while
// positioned are ignored.
func (s *Simulator) ApplySignal(candle history.Candle, signal *strategy.Signal) {
	if signal == nil {
		return
	}

	if s.position != nil {
		if s.position.side == signal.Direction {
			return
		}
		s.closeAt(candle, candle.Close, ExitSignal)
	}

	s.open(candle, signal)
}

// ForceClose closes any open position at the candle close. Used at the end
// of the data window.
func (s *Simulator) ForceClose(candle history.Candle) {
	if s.position == nil {
		return
	}
	s.closeAt(candle, candle.Close, ExitEndOfData)
}

// Results returns the accumulated trades, equity curve, and final balance
func (s *Simulator) Results() ([]Trade, []EquityPoint, float64) {
	return s.trades, s.equity, s.balance
}

func (s *Simulator) open(candle history.Candle, signal *strategy.Signal) {
	if s.settings.MaxSpreadPips > 0 && s.settings.SpreadPips > s.settings.MaxSpreadPips {
		return
	}

	lots := s.settings.LotSize
	if signal.LotMultiplier > 0 {
		lots *= signal.LotMultiplier
	}

	entry := candle.Close
	if signal.Direction == strategy.DirectionBuy {
		entry += s.costOffset()
	}

	s.position = &openPosition{
		side:       signal.Direction,
		lots:       lots,
		entryTime:  candle,
		entryPrice: entry,
		stopLoss:   signal.StopLoss,
		takeProfit: signal.TakeProfit,
		entryTag:   signal.Reason,
	}
}

func (s *Simulator) closeAt(candle history.Candle, level float64, reason ExitReason) {
	p := s.position

	exit := level
	if p.side == strategy.DirectionSell {
		exit += s.costOffset()
	}

	var profitPips float64
	if p.side == strategy.DirectionBuy {
		profitPips = (exit - p.entryPrice) / s.settings.PipSize
	} else {
		profitPips = (p.entryPrice - exit) / s.settings.PipSize
	}

	commission := 2 * s.settings.CommissionPerLot * p.lots
	netProfit := profitPips*s.settings.PipValuePerLot*p.lots - commission

	s.balance += netProfit
	s.trades = append(s.trades, Trade{
		ID:         s.nextID,
		Side:       p.side,
		Lots:       p.lots,
		EntryTime:  p.entryTime.Time,
		ExitTime:   candle.Time,
		EntryPrice: p.entryPrice,
		ExitPrice:  exit,
		ProfitPips: profitPips,
		NetProfit:  netProfit,
		ExitReason: reason,
		EntryTag:   p.entryTag,
	})
	s.equity = append(s.equity, EquityPoint{Time: candle.Time, Equity: s.balance})

	s.nextID++
	s.position = nil
}
