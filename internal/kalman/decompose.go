package kalman

import (
	"errors"
	"fmt"
	"math"
	"time"

	"pci-pair-trader/internal/market"
	"pci-pair-trader/internal/pci"

	"gonum.org/v1/gonum/stat"
)

// MaxZScore bounds the magnitude of every emitted z-score.
const MaxZScore = 5.0

const DefaultWindow = 63

var ErrLengthMismatch = errors.New("price series lengths differ")

// LatentState is the filtered split of one day's spread into its
// mean-reverting (Mt) and permanent (Rt) parts, in units of leg two's price.
type LatentState struct {
	Date   time.Time
	Mt     float64
	Rt     float64
	ZScore float64
}

// SteadyStateGain is the share of each spread innovation assigned to the
// mean-reverting component.
func SteadyStateGain(rho, sigmaM, sigmaR float64) float64 {
	num := sigmaM * sigmaM * (1 - rho*rho)
	den := num + sigmaR*sigmaR
	if den == 0 {
		return 0
	}
	return num / den
}

// Decompose filters the spread of two close series with fixed model
// parameters. States are de-normalised by price2[0].
func Decompose(params pci.ModelParameters, price1, price2 []float64, window int) ([]LatentState, error) {
	if len(price1) != len(price2) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(price1), len(price2))
	}
	x1, err := market.Normalize(price1)
	if err != nil {
		return nil, fmt.Errorf("leg 1: %w", err)
	}
	x2, err := market.Normalize(price2)
	if err != nil {
		return nil, fmt.Errorf("leg 2: %w", err)
	}
	anchor := price2[0]
	gain := SteadyStateGain(params.Rho, params.SigmaM, params.SigmaR)

	out := make([]LatentState, len(x1))
	mt := make([]float64, len(x1))
	var m, r float64
	for t := range x1 {
		w := x2[t] - params.Beta*x1[t]
		if t == 0 {
			m, r = 0, w
		} else {
			predM := params.Rho * m
			e := w - predM - r
			m = predM + gain*e
			r += (1 - gain) * e
		}
		mt[t] = m * anchor
		out[t] = LatentState{Mt: mt[t], Rt: r * anchor}
	}
	for t, z := range RollingZScore(mt, window) {
		out[t].ZScore = z
	}
	return out, nil
}

// DecomposePair runs Decompose over a candidate pair and stamps each state
// with its date.
func DecomposePair(params pci.ModelParameters, pair market.CandidatePair, window int) ([]LatentState, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	states, err := Decompose(params, pair.Series1.Closes(), pair.Series2.Closes(), window)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pair.Key(), err)
	}
	for i, p := range pair.Series1.Points {
		states[i].Date = p.Date
	}
	return states, nil
}

// RollingZScore scales each value by the population standard deviation of the
// trailing window ending at it; the window grows from the first value until it
// is full. A zero deviation yields 0. Results are clamped to MaxZScore.
func RollingZScore(values []float64, window int) []float64 {
	if window <= 0 {
		window = DefaultWindow
	}
	out := make([]float64, len(values))
	for i := range values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		_, variance := stat.PopMeanVariance(values[lo:i+1], nil)
		std := math.Sqrt(variance)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		out[i] = clamp(values[i]/std, MaxZScore)
	}
	return out
}

func clamp(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-limit, math.Min(limit, v))
}
