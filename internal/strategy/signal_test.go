package strategy

import (
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"pci-pair-trader/internal/config"
	"pci-pair-trader/internal/kalman"
	"pci-pair-trader/internal/pci"
)

func testSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		TauOpen:          1.0,
		TauClose:         -0.5,
		RollingStdWindow: 63,
		StopLossFraction: 0.9,
		InitialValue:     1.0,
	}
}

func bars(rows ...[3]float64) []Bar {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	out := make([]Bar, len(rows))
	for i, r := range rows {
		out[i] = Bar{Date: start.AddDate(0, 0, i), Price1: r[0], Price2: r[1], ZScore: r[2]}
	}
	return out
}

func TestLongEntryAndTargetExit(t *testing.T) {
	g := NewSignalGenerator(testSignalConfig(), "TECH_A_B", "w", 1, NewSession())
	signals, trades := g.Run(bars(
		[3]float64{10, 10, -1.5},
		[3]float64{10.05, 10, -0.6},
		[3]float64{10.1, 10, -0.4},
	))
	if signals[0].Event != EventOpenLong || signals[0].Position != PositionLong {
		t.Fatalf("expected long entry, got %+v", signals[0])
	}
	if signals[1].Event != EventHold || signals[1].Position != PositionLong {
		t.Fatalf("expected hold while z below close band, got %+v", signals[1])
	}
	if len(trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitType != ExitTarget || tr.Position != PositionLong {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if math.Abs(tr.PnL-0.1) > 1e-9 {
		t.Fatalf("expected pnl 0.1, got %v", tr.PnL)
	}
	if tr.EntryZScore != -1.5 || tr.ExitZScore != -0.4 || tr.EntryPrice1 != 10 || tr.ExitPrice1 != 10.1 {
		t.Fatalf("unexpected trade fields %+v", tr)
	}
	if tr.PairKey != "TECH_A_B" || tr.WindowKey != "w" {
		t.Fatalf("unexpected trade identity %+v", tr)
	}
	if g.Position() != PositionFlat {
		t.Fatalf("expected flat after exit")
	}
}

func TestShortEntryAndTargetExit(t *testing.T) {
	g := NewSignalGenerator(testSignalConfig(), "TECH_A_B", "w", 1, NewSession())
	_, trades := g.Run(bars(
		[3]float64{10, 10, 1.5},
		[3]float64{9.95, 10, 0.6},
		[3]float64{9.9, 10, 0.4},
	))
	if len(trades) != 1 || trades[0].Position != PositionShort || trades[0].ExitType != ExitTarget {
		t.Fatalf("unexpected trades %+v", trades)
	}
	if math.Abs(trades[0].PnL-0.1) > 1e-9 {
		t.Fatalf("expected pnl 0.1, got %v", trades[0].PnL)
	}
}

func TestNoExitOnEntryBar(t *testing.T) {
	g := NewSignalGenerator(config.SignalConfig{TauOpen: 1, TauClose: -2, StopLossFraction: 0.9, InitialValue: 1}, "P", "w", 1, nil)
	// -1.5 is past the open band and already above the close band
	sig, trade := g.Step(bars([3]float64{10, 10, -1.5})[0])
	if trade != nil || sig.Event != EventOpenLong {
		t.Fatalf("expected entry only, got %+v %+v", sig, trade)
	}
}

func TestStopLossClosesWindow(t *testing.T) {
	session := NewSession()
	g := NewSignalGenerator(testSignalConfig(), "TECH_A_B", "w", 1, session)
	signals, trades := g.Run(bars(
		[3]float64{10, 10, -1.5},
		// leg one loses 0.5 against a flat leg two: value 0.5 < 0.9
		[3]float64{9.5, 10, -1.2},
		[3]float64{9.5, 10, -2.0},
		[3]float64{9.5, 10, 2.0},
	))
	if len(trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(trades))
	}
	if trades[0].ExitType != ExitStopLoss {
		t.Fatalf("expected stop_loss exit, got %s", trades[0].ExitType)
	}
	if math.Abs(trades[0].PnL+0.5) > 1e-9 {
		t.Fatalf("expected pnl -0.5, got %v", trades[0].PnL)
	}
	if signals[1].Event != EventStopLoss || signals[1].Position != PositionFlat {
		t.Fatalf("expected stop-loss signal, got %+v", signals[1])
	}
	for _, s := range signals[2:] {
		if s.Event != EventHold || s.Position != PositionFlat {
			t.Fatalf("expected no entries after stop-loss, got %+v", s)
		}
	}
	if !session.Stopped("TECH_A_B", "w") {
		t.Fatalf("expected session to record the stopped window")
	}
}

func TestStopLossUsesPriceUnitBeta(t *testing.T) {
	// legs anchored at 1.0 and 0.5; leg two then rises 0.06 against a long
	in := bars(
		[3]float64{1.0, 0.5, -1.5},
		[3]float64{1.0, 0.56, -1.2},
	)
	g := NewSignalGenerator(testSignalConfig(), "P", "w", PriceBeta(1, 1.0, 0.5), NewSession())
	signals, trades := g.Run(in)
	if math.Abs(signals[0].HedgeRatio-1) > 1e-12 {
		t.Fatalf("expected hedge 1 at entry, got %v", signals[0].HedgeRatio)
	}
	if len(trades) != 0 || signals[1].Position != PositionLong {
		t.Fatalf("expected the long to survive a 0.06 move, got %+v", signals[1])
	}
	want := 1 - 0.06*0.5/0.56
	if math.Abs(signals[1].Value-want) > 1e-9 {
		t.Fatalf("expected value %v, got %v", want, signals[1].Value)
	}

	// the unconverted beta doubles the hedge and the loss trips the stop
	raw := NewSignalGenerator(testSignalConfig(), "P", "w", 1, NewSession())
	_, trades = raw.Run(in)
	if len(trades) != 1 || trades[0].ExitType != ExitStopLoss {
		t.Fatalf("expected a stop-loss with the normalised beta, got %+v", trades)
	}
}

func TestStoppedWindowBlocksNewGenerator(t *testing.T) {
	session := NewSession()
	session.MarkStopped("TECH_A_B", "w", time.Now())
	g := NewSignalGenerator(testSignalConfig(), "TECH_A_B", "w", 1, session)
	_, trades := g.Run(bars([3]float64{10, 10, -3}, [3]float64{10, 10, 0}))
	if len(trades) != 0 || g.Position() != PositionFlat {
		t.Fatalf("expected stopped window to stay flat")
	}
	other := NewSignalGenerator(testSignalConfig(), "TECH_A_B", "w2", 1, session)
	if sig, _ := other.Step(bars([3]float64{10, 10, -3})[0]); sig.Event != EventOpenLong {
		t.Fatalf("expected other window to trade, got %s", sig.Event)
	}
}

func TestOpenPositionAtWindowEndIsNotEmitted(t *testing.T) {
	g := NewSignalGenerator(testSignalConfig(), "P", "w", 1, nil)
	_, trades := g.Run(bars([3]float64{10, 10, 1.5}, [3]float64{10, 10, 1.2}))
	if len(trades) != 0 {
		t.Fatalf("expected no completed trades, got %d", len(trades))
	}
	open, ok := g.OpenTrade()
	if !ok || open.Position != PositionShort || !open.ExitDate.IsZero() {
		t.Fatalf("expected open short, got %+v", open)
	}
}

func TestDoubleEntryPanics(t *testing.T) {
	g := NewSignalGenerator(testSignalConfig(), "P", "w", 1, nil)
	b := bars([3]float64{10, 10, -1.5})[0]
	g.enter(b, EventOpenLong)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on second entry")
		}
	}()
	g.enter(b, EventOpenShort)
}

func randomBars(seed uint64, n int) []Bar {
	rng := rand.New(rand.NewPCG(seed, 0))
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	p1, p2 := 50.0, 40.0
	out := make([]Bar, n)
	for i := range out {
		p1 *= math.Exp(0.02 * rng.NormFloat64())
		p2 *= math.Exp(0.02 * rng.NormFloat64())
		out[i] = Bar{Date: start.AddDate(0, 0, i), Price1: p1, Price2: p2, ZScore: 2 * rng.NormFloat64()}
	}
	return out
}

func TestEntriesAlternateWithExits(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		g := NewSignalGenerator(testSignalConfig(), "P", "w", 0.9, NewSession())
		signals, trades := g.Run(randomBars(seed, 250))
		open := false
		exits := 0
		for _, s := range signals {
			switch s.Event {
			case EventOpenLong, EventOpenShort:
				if open {
					t.Fatalf("seed %d: second entry on %s without an exit", seed, s.Date)
				}
				open = true
			case EventClose, EventStopLoss:
				if !open {
					t.Fatalf("seed %d: exit on %s without an entry", seed, s.Date)
				}
				open = false
				exits++
			}
		}
		if exits != len(trades) {
			t.Fatalf("seed %d: %d exits but %d trades", seed, exits, len(trades))
		}
	}
}

func TestDecomposeAndTradeAreIdempotent(t *testing.T) {
	raw := randomBars(42, 300)
	p1 := make([]float64, len(raw))
	p2 := make([]float64, len(raw))
	for i, b := range raw {
		p1[i], p2[i] = b.Price1, b.Price2
	}
	params := pci.ModelParameters{Beta: 0.9, Rho: 0.9, SigmaM: 0.3, SigmaR: 0.2}
	run := func() []Trade {
		states, err := kalman.Decompose(params, p1, p2, 63)
		if err != nil {
			t.Fatalf("decompose: %v", err)
		}
		in := make([]Bar, len(raw))
		for i := range raw {
			in[i] = Bar{Date: raw[i].Date, Price1: p1[i], Price2: p2[i], ZScore: states[i].ZScore}
		}
		beta := PriceBeta(params.Beta, p1[0], p2[0])
		_, trades := NewSignalGenerator(testSignalConfig(), "P", "w", beta, NewSession()).Run(in)
		return trades
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("trade records differ between identical runs")
	}
}
