package pci

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Bound is a closed box constraint on one parameter.
type Bound struct {
	Lo float64
	Hi float64
}

// interiorMargin keeps start points off the box faces, where the logistic
// mapping has no gradient.
const interiorMargin = 1e-4

var gradSettings = &fd.Settings{Formula: fd.Central}

// minimizeBounded runs L-BFGS on an unconstrained reparameterisation of the
// box: x = lo + (hi-lo)*logistic(u). The returned point always lies inside the
// bounds. maxIter <= 0 leaves the iteration count unbounded.
func minimizeBounded(f func(x []float64) float64, x0 []float64, bounds []Bound, maxIter int) ([]float64, float64, error) {
	if len(x0) != len(bounds) {
		return nil, 0, fmt.Errorf("start point has %d values for %d bounds", len(x0), len(bounds))
	}
	x := make([]float64, len(x0))
	objective := func(u []float64) float64 {
		toBox(bounds, u, x)
		v := f(x)
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}
	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, u []float64) {
			fd.Gradient(grad, objective, u, gradSettings)
		},
	}
	settings := &optimize.Settings{MajorIterations: maxIter}
	result, err := optimize.Minimize(problem, fromBox(bounds, x0), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if err != nil && !stalled(err) {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, 0, fmt.Errorf("%w: objective is %v", ErrNotConverged, result.F)
	}
	best := make([]float64, len(x0))
	toBox(bounds, result.X, best)
	return best, result.F, nil
}

// stalled reports line-search failures that leave the best point found so far
// usable. Finite-difference gradients regularly trigger these near an optimum
// sitting on a box face.
func stalled(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNoProgress) ||
		errors.Is(err, optimize.ErrNonDescentDirection)
}

func toBox(bounds []Bound, u, dst []float64) {
	for i, b := range bounds {
		dst[i] = b.Lo + (b.Hi-b.Lo)*logistic(u[i])
	}
}

func fromBox(bounds []Bound, x []float64) []float64 {
	u := make([]float64, len(x))
	for i, b := range bounds {
		frac := (x[i] - b.Lo) / (b.Hi - b.Lo)
		frac = math.Min(math.Max(frac, interiorMargin), 1-interiorMargin)
		u[i] = math.Log(frac / (1 - frac))
	}
	return u
}

func logistic(u float64) float64 {
	return 1 / (1 + math.Exp(-u))
}

// Clip returns x limited to the bound.
func (b Bound) Clip(x float64) float64 {
	return math.Min(math.Max(x, b.Lo), b.Hi)
}
