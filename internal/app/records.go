package app

import (
	"context"

	"pci-pair-trader/internal/kalman"
	"pci-pair-trader/internal/market"
	"pci-pair-trader/internal/pci"
	"pci-pair-trader/internal/strategy"
	"pci-pair-trader/internal/timescale"

	"go.uber.org/zap"
)

func (a *App) emitState(ctx context.Context, w market.Window, pairKey string, params pci.ModelParameters, st kalman.LatentState) error {
	if a.sink == nil {
		return nil
	}
	return a.sink.EnqueueState(ctx, stateRecord(a.runID, w.Key(), pairKey, params, st))
}

func (a *App) emitTrade(ctx context.Context, trade strategy.Trade) error {
	a.log.Info("trade closed",
		zap.String("pair", trade.PairKey),
		zap.String("window", trade.WindowKey),
		zap.String("position", string(trade.Position)),
		zap.String("exit_type", string(trade.ExitType)),
		zap.Time("entry", trade.EntryDate),
		zap.Time("exit", trade.ExitDate),
		zap.Float64("pnl", trade.PnL),
	)
	if a.sink == nil {
		return nil
	}
	return a.sink.EnqueueTrade(ctx, tradeRecord(a.runID, trade))
}

func stateRecord(runID, windowKey, pairKey string, params pci.ModelParameters, st kalman.LatentState) timescale.StateRecord {
	return timescale.StateRecord{
		RunID:     runID,
		PairKey:   pairKey,
		WindowKey: windowKey,
		Date:      st.Date,
		Beta:      params.Beta,
		Rho:       params.Rho,
		SigmaM:    params.SigmaM,
		SigmaR:    params.SigmaR,
		Mt:        st.Mt,
		Rt:        st.Rt,
		ZScore:    st.ZScore,
		R2MR:      params.R2MR,
		LRScore:   params.LRScore,
	}
}

func tradeRecord(runID string, t strategy.Trade) timescale.TradeRecord {
	return timescale.TradeRecord{
		RunID:        runID,
		PairKey:      t.PairKey,
		WindowKey:    t.WindowKey,
		EntryDate:    t.EntryDate,
		EntryPrice1:  t.EntryPrice1,
		EntryPrice2:  t.EntryPrice2,
		EntryZScore:  t.EntryZScore,
		PositionType: string(t.Position),
		ExitDate:     t.ExitDate,
		ExitPrice1:   t.ExitPrice1,
		ExitPrice2:   t.ExitPrice2,
		ExitZScore:   t.ExitZScore,
		ExitType:     string(t.ExitType),
		PnL:          t.PnL,
	}
}
