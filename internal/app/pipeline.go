package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"pci-pair-trader/internal/alerts"
	"pci-pair-trader/internal/kalman"
	"pci-pair-trader/internal/market"
	"pci-pair-trader/internal/pci"
	"pci-pair-trader/internal/selection"
	persist "pci-pair-trader/internal/state"
	"pci-pair-trader/internal/strategy"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoWindows = errors.New("price history is too short for one formation window")

type Report struct {
	RunID   string
	Windows []WindowReport
	// Trades lists completed trades in window, group and selection order.
	Trades  []strategy.Trade
	Summary strategy.Summary
}

type WindowReport struct {
	Window market.Window
	Groups []GroupReport
}

type GroupReport struct {
	Group string
	// Rejected are pairs dropped before fitting, mostly for short formation
	// histories. Fit failures are in Selection.Rejected.
	Rejected  []selection.Rejection
	Selection selection.Selection
	Pairs     []PairResult
}

// PairResult is the trading outcome of one selected pair in one window.
type PairResult struct {
	Key            string
	Params         pci.ModelParameters
	HedgeBeta      float64
	InSampleSharpe float64
	States         []kalman.LatentState
	Signals        []strategy.Signal
	Trades         []strategy.Trade
	Open           *strategy.Trade
	Summary        strategy.Summary
	Err            error
}

type universe struct {
	groups []string
	pairs  map[string][]market.CandidatePair
	first  time.Time
	last   time.Time
}

// Execute loads the universe, then selects and trades pairs window by window.
func (a *App) Execute(ctx context.Context) (Report, error) {
	report := Report{RunID: a.runID}
	if a.cfg.State.Resume {
		a.restoreSession(ctx)
	}
	u, err := a.loadUniverse(ctx)
	if err != nil {
		return report, err
	}
	first := u.first
	if start, _ := a.cfg.Universe.Start(); !start.IsZero() {
		first = start
	}
	windows := market.Windows(first, u.last, a.cfg.Window.FormationMonths, a.cfg.Window.TradingMonths, a.cfg.Window.Rolling)
	if len(windows) == 0 {
		return report, fmt.Errorf("%w: data spans %s to %s", ErrNoWindows, u.first.Format(time.DateOnly), u.last.Format(time.DateOnly))
	}

	selector := selection.New(a.cfg.Selection, a.estimator).WithCache(persist.NewParamsCache(a.store))
	pairsTraded := 0
	for _, w := range windows {
		wr, err := a.runWindow(ctx, selector, w, u)
		if err != nil {
			return report, err
		}
		report.Windows = append(report.Windows, wr)
		for _, gr := range wr.Groups {
			for _, pr := range gr.Pairs {
				if pr.Err == nil {
					pairsTraded++
				}
				report.Trades = append(report.Trades, pr.Trades...)
			}
		}
		a.saveSession(ctx)
		a.metrics.WindowsRun.Inc()
	}

	report.Summary = strategy.Summarize(report.Trades)
	a.metrics.LastRunPnL.Set(report.Summary.TotalPnL)
	if a.alerts != nil {
		run := alerts.RunSummary{RunID: a.runID, Windows: len(report.Windows), PairsTraded: pairsTraded, Summary: report.Summary}
		a.alertFailed(a.alerts.SendRunSummary(ctx, run))
	}
	return report, nil
}

// loadUniverse fetches closes for every instrument and builds the candidate
// pairs of each group over the full history.
func (a *App) loadUniverse(ctx context.Context) (universe, error) {
	instruments, err := a.source.Universe(ctx, a.cfg.Universe.Groups)
	if err != nil {
		return universe{}, fmt.Errorf("load universe: %w", err)
	}
	from, _ := a.cfg.Universe.Start()
	to, _ := a.cfg.Universe.End()

	series := make([]market.PriceSeries, len(instruments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for i, inst := range instruments {
		g.Go(func() error {
			s, err := a.source.Closes(gctx, inst, from, to)
			if err != nil {
				return fmt.Errorf("load closes %s: %w", inst.Symbol, err)
			}
			series[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return universe{}, err
	}

	byGroup := make(map[string][]market.PriceSeries)
	u := universe{pairs: make(map[string][]market.CandidatePair)}
	for _, s := range series {
		if err := s.Validate(); err != nil {
			a.log.Warn("instrument skipped", zap.String("symbol", s.Symbol), zap.Error(err))
			continue
		}
		first, last := s.Points[0].Date, s.Points[len(s.Points)-1].Date
		if u.first.IsZero() || first.Before(u.first) {
			u.first = first
		}
		if last.After(u.last) {
			u.last = last
		}
		byGroup[s.Group] = append(byGroup[s.Group], s)
	}
	// Windows treat the end bound as exclusive.
	if !u.last.IsZero() {
		u.last = u.last.AddDate(0, 0, 1)
	}

	for group, list := range byGroup {
		pairs, rejected := selection.BuildCandidates(group, list)
		for _, r := range rejected {
			a.log.Info("pair rejected", zap.String("pair", r.Key), zap.Error(r.Err))
		}
		if len(pairs) == 0 {
			continue
		}
		u.groups = append(u.groups, group)
		u.pairs[group] = pairs
	}
	sort.Strings(u.groups)
	a.log.Info("universe loaded",
		zap.Int("instruments", len(instruments)),
		zap.Int("groups", len(u.groups)),
		zap.Time("first", u.first),
		zap.Time("last", u.last),
	)
	return u, nil
}

func (a *App) runWindow(ctx context.Context, selector *selection.Selector, w market.Window, u universe) (WindowReport, error) {
	wr := WindowReport{Window: w}
	log := a.log.With(zap.String("window", w.Key()))
	for _, group := range u.groups {
		gr := GroupReport{Group: group}
		var formations []market.CandidatePair
		full := make(map[string]market.CandidatePair)
		for _, pair := range u.pairs[group] {
			formation := w.Formation(pair)
			if formation.Len() < a.cfg.Window.MinObservations {
				gr.Rejected = append(gr.Rejected, selection.Rejection{
					Key: pair.Key(),
					Err: fmt.Errorf("%w: %d formation bars", pci.ErrTooFewObs, formation.Len()),
				})
				continue
			}
			formations = append(formations, formation)
			full[pair.Key()] = w.Full(pair)
		}
		if len(formations) == 0 {
			wr.Groups = append(wr.Groups, gr)
			continue
		}

		sel, err := selector.Select(ctx, group, formations)
		if err != nil {
			return wr, err
		}
		gr.Selection = sel
		a.recordSelection(log, sel)

		results := make([]PairResult, len(sel.Selected))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.workers())
		for i, sc := range sel.Selected {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := a.tradePair(gctx, w, full[sc.Key()], sc.Params)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return wr, err
		}
		for _, res := range results {
			if res.Err != nil {
				log.Warn("pair skipped", zap.String("pair", res.Key), zap.Error(res.Err))
			}
		}
		gr.Pairs = results
		wr.Groups = append(wr.Groups, gr)
	}
	return wr, nil
}

func (a *App) recordSelection(log *zap.Logger, sel selection.Selection) {
	for range sel.Ranked {
		a.metrics.PairsScored.Inc()
	}
	for _, r := range sel.Rejected {
		a.metrics.PairsRejected.Inc()
		log.Info("pair rejected", zap.String("pair", r.Key), zap.Error(r.Err))
	}
	for range sel.Selected {
		a.metrics.PairsSelected.Inc()
	}
	for i := 0; i < sel.CacheHits; i++ {
		a.metrics.CacheHits.Inc()
	}
	for _, err := range sel.CacheErrors {
		log.Warn("fit cache failed", zap.Error(err))
	}
	keys := make([]string, len(sel.Selected))
	for i, sc := range sel.Selected {
		keys[i] = sc.Key()
	}
	log.Info("pairs selected",
		zap.String("group", sel.Group),
		zap.Int("ranked", len(sel.Ranked)),
		zap.Int("filtered", len(sel.Filtered)),
		zap.Strings("selected", keys),
	)
}

// tradePair decomposes the formation and trading bars with the formation fit
// and runs the signal generator over the trading bars. A decomposition failure
// is reported in the result; only a failing sink aborts the window.
func (a *App) tradePair(ctx context.Context, w market.Window, pair market.CandidatePair, params pci.ModelParameters) (PairResult, error) {
	res := PairResult{Key: pair.Key(), Params: params}
	states, err := kalman.DecomposePair(params, pair, a.cfg.Signal.RollingStdWindow)
	if err != nil {
		res.Err = err
		return res, nil
	}
	res.States = states

	// beta was fitted on series rebased at the formation start
	res.HedgeBeta = strategy.PriceBeta(params.Beta, pair.Series1.Points[0].Close, pair.Series2.Points[0].Close)

	var formationBars, tradingBars []strategy.Bar
	var formationMt []float64
	for i, st := range states {
		bar := strategy.Bar{
			Date:   st.Date,
			Price1: pair.Series1.Points[i].Close,
			Price2: pair.Series2.Points[i].Close,
			ZScore: st.ZScore,
		}
		if st.Date.Before(w.FormationEnd) {
			formationBars = append(formationBars, bar)
			formationMt = append(formationMt, st.Mt)
		} else {
			tradingBars = append(tradingBars, bar)
		}
	}
	for i, z := range strategy.FormationZScores(formationMt) {
		formationBars[i].ZScore = z
	}
	res.InSampleSharpe = strategy.InSampleSharpe(formationBars, res.HedgeBeta, a.cfg.Signal)

	gen := strategy.NewSignalGenerator(a.cfg.Signal, res.Key, w.Key(), res.HedgeBeta, a.session)
	res.Signals, res.Trades = gen.Run(tradingBars)
	if open, ok := gen.OpenTrade(); ok {
		res.Open = &open
	}
	res.Summary = strategy.Summarize(res.Trades)

	for _, st := range states {
		if err := a.emitState(ctx, w, res.Key, params, st); err != nil {
			return res, err
		}
	}
	for _, sig := range res.Signals {
		if sig.Event == strategy.EventOpenLong || sig.Event == strategy.EventOpenShort {
			a.metrics.TradesOpened.Inc()
		}
	}
	for _, trade := range res.Trades {
		if err := a.emitTrade(ctx, trade); err != nil {
			return res, err
		}
		a.metrics.TradesClosed.Inc()
		if trade.ExitType == strategy.ExitStopLoss {
			a.metrics.StopLosses.Inc()
			if a.alerts != nil {
				a.alertFailed(a.alerts.SendStopLoss(ctx, trade))
			}
		}
	}
	a.log.Debug("pair traded",
		zap.String("pair", res.Key),
		zap.String("window", w.Key()),
		zap.Float64("beta", params.Beta),
		zap.Float64("hedge_beta", res.HedgeBeta),
		zap.Float64("in_sample_sharpe", res.InSampleSharpe),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("pnl", res.Summary.TotalPnL),
	)
	return res, nil
}

func (a *App) restoreSession(ctx context.Context) {
	snap, ok, err := persist.LoadSessionSnapshot(ctx, a.store)
	if err != nil {
		a.log.Warn("session restore failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	a.session.Restore(snap.StoppedTimes())
	a.log.Info("session restored", zap.String("previous_run_id", snap.RunID), zap.Int("stopped_windows", len(snap.Stopped)))
}

func (a *App) saveSession(ctx context.Context) {
	snap := persist.NewSessionSnapshot(a.runID, a.session.Snapshot(), time.Now())
	if err := persist.SaveSessionSnapshot(ctx, a.store, snap); err != nil {
		a.log.Warn("session save failed", zap.Error(err))
	}
}

func (a *App) alertFailed(err error) {
	if err != nil {
		a.log.Warn("telegram alert failed", zap.Error(err))
	}
}

func (a *App) workers() int {
	if a.cfg.Selection.Workers > 0 {
		return a.cfg.Selection.Workers
	}
	return runtime.NumCPU()
}
