package strategy

import (
	"fmt"

	"pci-pair-trader/internal/config"
)

// SignalGenerator turns one pair's z-scores over one trading window into
// positions and completed trades. Bars must be fed in date order. beta is in
// price units; convert a fitted beta with PriceBeta.
type SignalGenerator struct {
	cfg       config.SignalConfig
	pairKey   string
	windowKey string
	beta      float64
	session   *Session
	sm        *StateMachine
	open      *Trade
}

func NewSignalGenerator(cfg config.SignalConfig, pairKey, windowKey string, beta float64, session *Session) *SignalGenerator {
	if session == nil {
		session = NewSession()
	}
	return &SignalGenerator{
		cfg:       cfg,
		pairKey:   pairKey,
		windowKey: windowKey,
		beta:      beta,
		session:   session,
		sm:        NewStateMachine(),
	}
}

func (g *SignalGenerator) Position() Position {
	return g.sm.Current()
}

// OpenTrade returns the position entered but not yet exited, if any.
func (g *SignalGenerator) OpenTrade() (Trade, bool) {
	if g.open == nil {
		return Trade{}, false
	}
	return *g.open, true
}

// Step evaluates one bar. The stop-loss is checked before anything else; a
// stopped window accepts no further entries. A position is never closed on the
// bar it was opened. The returned trade is non-nil only on an exit.
func (g *SignalGenerator) Step(bar Bar) (Signal, *Trade) {
	hedge := HedgeRatio(g.beta, bar.Price1, bar.Price2)
	sig := Signal{
		Date:       bar.Date,
		ZScore:     bar.ZScore,
		Event:      EventHold,
		HedgeRatio: hedge,
		Value:      g.cfg.InitialValue,
	}
	pos := g.sm.Current()

	if pos != PositionFlat {
		sig.Value = MarkToMarket(g.cfg.InitialValue, pos, bar.Price1, bar.Price2, g.open.EntryPrice1, g.open.EntryPrice2, hedge)
		if StopLossBreached(sig.Value, g.cfg.InitialValue, g.cfg.StopLossFraction) {
			trade := g.exit(bar, sig.Value, EventStopLoss, ExitStopLoss)
			g.session.MarkStopped(g.pairKey, g.windowKey, bar.Date)
			sig.Event = EventStopLoss
			sig.Position = PositionFlat
			return sig, trade
		}
	}

	switch {
	case pos == PositionFlat:
		if g.session.Stopped(g.pairKey, g.windowKey) {
			break
		}
		if bar.ZScore < -g.cfg.TauOpen {
			sig.Event = EventOpenLong
			g.enter(bar, EventOpenLong)
		} else if bar.ZScore > g.cfg.TauOpen {
			sig.Event = EventOpenShort
			g.enter(bar, EventOpenShort)
		}
	case g.shouldClose(pos, bar.ZScore):
		trade := g.exit(bar, sig.Value, EventClose, ExitTarget)
		sig.Event = EventClose
		sig.Position = PositionFlat
		return sig, trade
	}
	sig.Position = g.sm.Current()
	return sig, nil
}

// Run steps through bars in order. Only completed trades are returned; a
// position still open after the last bar stays available via OpenTrade.
func (g *SignalGenerator) Run(bars []Bar) ([]Signal, []Trade) {
	signals := make([]Signal, 0, len(bars))
	var trades []Trade
	for _, bar := range bars {
		sig, trade := g.Step(bar)
		signals = append(signals, sig)
		if trade != nil {
			trades = append(trades, *trade)
		}
	}
	return signals, trades
}

func (g *SignalGenerator) shouldClose(pos Position, z float64) bool {
	switch pos {
	case PositionLong:
		return z > g.cfg.TauClose
	case PositionShort:
		return z < -g.cfg.TauClose
	}
	return false
}

func (g *SignalGenerator) enter(bar Bar, event Event) {
	pos, ok := g.sm.Apply(event)
	if !ok || g.open != nil {
		panic(fmt.Sprintf("strategy: %s for %s while %s", event, g.pairKey, g.sm.Current()))
	}
	g.open = &Trade{
		PairKey:     g.pairKey,
		WindowKey:   g.windowKey,
		EntryDate:   bar.Date,
		EntryPrice1: bar.Price1,
		EntryPrice2: bar.Price2,
		EntryZScore: bar.ZScore,
		Position:    pos,
	}
}

func (g *SignalGenerator) exit(bar Bar, value float64, event Event, exitType ExitType) *Trade {
	if _, ok := g.sm.Apply(event); !ok || g.open == nil {
		panic(fmt.Sprintf("strategy: %s for %s with no open position", event, g.pairKey))
	}
	trade := *g.open
	trade.ExitDate = bar.Date
	trade.ExitPrice1 = bar.Price1
	trade.ExitPrice2 = bar.Price2
	trade.ExitZScore = bar.ZScore
	trade.ExitType = exitType
	trade.PnL = value - g.cfg.InitialValue
	g.open = nil
	return &trade
}
