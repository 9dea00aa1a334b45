package strategy

import "gonum.org/v1/gonum/stat"

// Summary aggregates the completed trades of one pair or one run.
type Summary struct {
	Trades      int
	Wins        int
	StopLosses  int
	WinRate     float64
	TotalPnL    float64
	AvgPnL      float64
	MaxDrawdown float64
	Sharpe      float64
	AvgHoldDays float64
}

// Summarize computes trade statistics. Drawdown is measured on cumulative PnL
// in trade order, starting from zero.
func Summarize(trades []Trade) Summary {
	var s Summary
	s.Trades = len(trades)
	if s.Trades == 0 {
		return s
	}
	pnls := make([]float64, len(trades))
	holds := make([]float64, len(trades))
	var cum, peak float64
	for i, t := range trades {
		pnls[i] = t.PnL
		holds[i] = t.ExitDate.Sub(t.EntryDate).Hours() / 24
		if t.PnL > 0 {
			s.Wins++
		}
		if t.ExitType == ExitStopLoss {
			s.StopLosses++
		}
		cum += t.PnL
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
	s.TotalPnL = cum
	s.AvgPnL = stat.Mean(pnls, nil)
	s.AvgHoldDays = stat.Mean(holds, nil)
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	s.Sharpe = sharpe(pnls)
	return s
}
