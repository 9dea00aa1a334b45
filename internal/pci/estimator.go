package pci

import (
	"errors"
	"fmt"
	"math"

	"pci-pair-trader/internal/market"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotConverged    = errors.New("likelihood optimisation did not converge")
	ErrTooFewObs       = errors.New("too few observations to fit")
	ErrLengthMismatch  = errors.New("price series lengths differ")
	ErrDegenerateInput = errors.New("normalised series has no variance")
)

var (
	BetaBound            = Bound{Lo: -2, Hi: 2}
	RestrictedSigmaBound = Bound{Lo: 1e-6, Hi: 1}
	RhoBound             = Bound{Lo: 0.6, Hi: 0.99}
	SigmaMBound          = Bound{Lo: 0.1, Hi: 1}
	SigmaRBound          = Bound{Lo: 0.1, Hi: 1}
)

const (
	defaultFullIterations = 100
	defaultMinObs         = 3
	rhoStart              = 0.9
)

// ModelParameters is one calibration of the partial cointegration model for a
// pair over a formation window. Beta is the hedge ratio between the normalised
// series.
type ModelParameters struct {
	Beta             float64
	Rho              float64
	SigmaM           float64
	SigmaR           float64
	R2MR             float64
	LRScore          float64
	LogLikRestricted float64
	LogLikFull       float64
	Observations     int
}

type RestrictedFit struct {
	Beta   float64
	SigmaR float64
	LogLik float64
}

type FullFit struct {
	Beta   float64
	Rho    float64
	SigmaM float64
	SigmaR float64
	LogLik float64
}

type Estimator struct {
	// MinObservations rejects shorter samples before fitting.
	MinObservations int
	// RestrictedIterations caps the random-walk fit; 0 means no cap.
	RestrictedIterations int
	// FullIterations caps the partial cointegration fit.
	FullIterations int
}

func NewEstimator(minObs int) *Estimator {
	if minObs < defaultMinObs {
		minObs = defaultMinObs
	}
	return &Estimator{
		MinObservations: minObs,
		FullIterations:  defaultFullIterations,
	}
}

// Estimate fits both hypotheses to raw close prices and returns the full
// model's parameters with the likelihood-ratio score against the random walk.
func (e *Estimator) Estimate(price1, price2 []float64) (ModelParameters, error) {
	if len(price1) != len(price2) {
		return ModelParameters{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(price1), len(price2))
	}
	if len(price1) < e.minObs() {
		return ModelParameters{}, fmt.Errorf("%w: have %d, need %d", ErrTooFewObs, len(price1), e.minObs())
	}
	x1, err := market.Normalize(price1)
	if err != nil {
		return ModelParameters{}, fmt.Errorf("leg 1: %w", err)
	}
	x2, err := market.Normalize(price2)
	if err != nil {
		return ModelParameters{}, fmt.Errorf("leg 2: %w", err)
	}
	restricted, err := e.FitRestricted(x1, x2)
	if err != nil {
		return ModelParameters{}, fmt.Errorf("restricted model: %w", err)
	}
	full, err := e.FitFull(x1, x2)
	if err != nil {
		return ModelParameters{}, fmt.Errorf("full model: %w", err)
	}
	return ModelParameters{
		Beta:             full.Beta,
		Rho:              full.Rho,
		SigmaM:           full.SigmaM,
		SigmaR:           full.SigmaR,
		R2MR:             R2MR(full.Rho, full.SigmaM, full.SigmaR),
		LRScore:          LRScore(restricted.LogLik, full.LogLik),
		LogLikRestricted: restricted.LogLik,
		LogLikFull:       full.LogLik,
		Observations:     len(x1),
	}, nil
}

// FitRestricted maximises the random-walk likelihood over (beta, sigma_r) on
// normalised series.
func (e *Estimator) FitRestricted(x1, x2 []float64) (RestrictedFit, error) {
	beta0, std0, err := initialGuess(x1, x2)
	if err != nil {
		return RestrictedFit{}, err
	}
	bounds := []Bound{BetaBound, RestrictedSigmaBound}
	start := []float64{BetaBound.Clip(beta0), RestrictedSigmaBound.Clip(std0)}
	best, negLL, err := minimizeBounded(func(p []float64) float64 {
		return -RestrictedLogLikelihood(x1, x2, p[0], p[1])
	}, start, bounds, e.RestrictedIterations)
	if err != nil {
		return RestrictedFit{}, err
	}
	return RestrictedFit{Beta: best[0], SigmaR: best[1], LogLik: -negLL}, nil
}

// FitFull maximises the partial cointegration likelihood over
// (beta, rho, sigma_m, sigma_r) on normalised series.
func (e *Estimator) FitFull(x1, x2 []float64) (FullFit, error) {
	beta0, std0, err := initialGuess(x1, x2)
	if err != nil {
		return FullFit{}, err
	}
	bounds := []Bound{BetaBound, RhoBound, SigmaMBound, SigmaRBound}
	start := []float64{
		BetaBound.Clip(beta0),
		rhoStart,
		SigmaMBound.Clip(0.5 * std0),
		SigmaRBound.Clip(0.5 * std0),
	}
	best, negLL, err := minimizeBounded(func(p []float64) float64 {
		return -FullLogLikelihood(x1, x2, p[0], p[1], p[2], p[3])
	}, start, bounds, e.FullIterations)
	if err != nil {
		return FullFit{}, err
	}
	return FullFit{Beta: best[0], Rho: best[1], SigmaM: best[2], SigmaR: best[3], LogLik: -negLL}, nil
}

// initialGuess returns the OLS slope of x2 on x1 and the residual standard
// deviation. The slope uses the sample covariance over the population variance.
func initialGuess(x1, x2 []float64) (float64, float64, error) {
	if err := market.CheckFinite(x1); err != nil {
		return 0, 0, err
	}
	if err := market.CheckFinite(x2); err != nil {
		return 0, 0, err
	}
	_, var1 := stat.PopMeanVariance(x1, nil)
	beta := 0.0
	if var1 > 0 {
		beta = stat.Covariance(x1, x2, nil) / var1
	}
	resid := make([]float64, len(x1))
	for i := range x1 {
		resid[i] = x2[i] - beta*x1[i]
	}
	_, residVar := stat.PopMeanVariance(resid, nil)
	std := math.Sqrt(residVar)
	if var1 == 0 && std == 0 {
		return 0, 0, ErrDegenerateInput
	}
	return beta, std, nil
}

func (e *Estimator) minObs() int {
	if e.MinObservations < defaultMinObs {
		return defaultMinObs
	}
	return e.MinObservations
}
