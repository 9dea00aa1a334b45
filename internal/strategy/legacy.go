package strategy

import (
	"math"

	"pci-pair-trader/internal/config"

	"gonum.org/v1/gonum/stat"
)

// FormationZScores standardises m_t by its own population mean and standard
// deviation over the formation window. A flat series yields zeros.
func FormationZScores(mt []float64) []float64 {
	out := make([]float64, len(mt))
	if len(mt) == 0 {
		return out
	}
	mean, variance := stat.PopMeanVariance(mt, nil)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return out
	}
	for i, v := range mt {
		out[i] = (v - mean) / std
	}
	return out
}

// InSampleSharpe replays the entry and exit bands over formation bars without
// a stop-loss and scores each completed trade by its return-ratio PnL on the
// exit bar. bars carry formation z-scores (see FormationZScores) and beta is in
// price units. Fewer than two trades or a zero spread of returns yields 0.
func InSampleSharpe(bars []Bar, beta float64, cfg config.SignalConfig) float64 {
	pos := PositionFlat
	var returns []float64
	for i := 1; i < len(bars); i++ {
		bar, prev := bars[i], bars[i-1]
		prevPos := pos
		switch pos {
		case PositionFlat:
			if bar.ZScore > cfg.TauOpen {
				pos = PositionShort
			} else if bar.ZScore < -cfg.TauOpen {
				pos = PositionLong
			}
		case PositionLong:
			if bar.ZScore > cfg.TauClose {
				pos = PositionFlat
			}
		case PositionShort:
			if bar.ZScore < -cfg.TauClose {
				pos = PositionFlat
			}
		}
		if pos != prevPos && prevPos != PositionFlat {
			hedge := HedgeRatio(beta, bar.Price1, bar.Price2)
			returns = append(returns, ReturnRatioPnL(prevPos, bar.Price1, prev.Price1, bar.Price2, prev.Price2, hedge))
		}
	}
	return sharpe(returns)
}

func sharpe(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}
