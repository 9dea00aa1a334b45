package pci

import (
	"math"
	"testing"
)

func TestRestrictedLogLikelihoodByHand(t *testing.T) {
	x1 := []float64{1, 1, 1}
	x2 := []float64{1, 1.1, 1.0}
	got := RestrictedLogLikelihood(x1, x2, 1, 0.1)
	want := -(math.Log(0.01) + 1)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFullLogLikelihoodByHand(t *testing.T) {
	x1 := []float64{1, 1, 1}
	x2 := []float64{1, 1.1, 1.0}
	v := 0.01*(1-0.81) + 0.01
	got := FullLogLikelihood(x1, x2, 1, 0.9, 0.1, 0.1)
	// the permanent drift leaves -0.0001 as the second innovation
	want := -0.5 * (2*math.Log(v) + 0.01/v + 1e-8/v)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLikelihoodSkipsFirstObservation(t *testing.T) {
	if got := RestrictedLogLikelihood([]float64{1}, []float64{5}, 1, 0.1); got != 0 {
		t.Fatalf("expected zero log-likelihood for one point, got %v", got)
	}
	if got := FullLogLikelihood([]float64{1}, []float64{5}, 1, 0.9, 0.1, 0.1); got != 0 {
		t.Fatalf("expected zero log-likelihood for one point, got %v", got)
	}
}

func TestR2MRWithinUnitIntervalOverBounds(t *testing.T) {
	steps := 12
	grid := func(b Bound, i int) float64 {
		return b.Lo + (b.Hi-b.Lo)*float64(i)/float64(steps)
	}
	for i := 0; i <= steps; i++ {
		for j := 0; j <= steps; j++ {
			for k := 0; k <= steps; k++ {
				rho, sm, sr := grid(RhoBound, i), grid(SigmaMBound, j), grid(SigmaRBound, k)
				got := R2MR(rho, sm, sr)
				if got < 0 || got > 1 || math.IsNaN(got) {
					t.Fatalf("r2_mr(%v, %v, %v) = %v outside [0,1]", rho, sm, sr, got)
				}
			}
		}
	}
}

func TestR2MRZeroDenominator(t *testing.T) {
	if got := R2MR(0.9, 0, 0); got != 0 {
		t.Fatalf("expected 0 for zero variances, got %v", got)
	}
	if got := R2MR(-1, 0, 0.5); got != 0 {
		t.Fatalf("expected 0 when rho cancels the permanent term, got %v", got)
	}
}

func TestR2MRKnownValue(t *testing.T) {
	got := R2MR(0.9, 0.1, 0.1)
	want := 0.02 / (0.02 + 0.01*1.9)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLRScoreSign(t *testing.T) {
	if got := LRScore(-10, -4); got != 12 {
		t.Fatalf("expected 12 when the full model fits better, got %v", got)
	}
	if got := LRScore(-4, -10); got != -12 {
		t.Fatalf("expected -12 when the restricted model fits better, got %v", got)
	}
}
