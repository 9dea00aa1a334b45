package pci

import "math"

// permanentDrift is how much of each innovation the full model folds into the
// permanent component. It is a fixed slow update, not a Kalman gain.
const permanentDrift = 0.001

// RestrictedLogLikelihood is the random-walk spread model: every innovation is
// absorbed into the permanent component.
func RestrictedLogLikelihood(x1, x2 []float64, beta, sigmaR float64) float64 {
	variance := sigmaR * sigmaR
	logVar := math.Log(variance)
	var rt, llh float64
	for t := 1; t < len(x1); t++ {
		innov := x2[t] - (beta*x1[t] + rt)
		llh += -0.5 * (logVar + innov*innov/variance)
		rt += innov
	}
	return llh
}

// FullLogLikelihood is the partial cointegration model with an AR(1)
// mean-reverting component and a slowly drifting permanent component.
func FullLogLikelihood(x1, x2 []float64, beta, rho, sigmaM, sigmaR float64) float64 {
	variance := InnovationVariance(rho, sigmaM, sigmaR)
	logVar := math.Log(variance)
	var mt, rt, llh float64
	for t := 1; t < len(x1); t++ {
		mt = rho * mt
		innov := x2[t] - (beta*x1[t] + mt + rt)
		llh += -0.5 * (logVar + innov*innov/variance)
		rt += innov * permanentDrift
	}
	return llh
}

// InnovationVariance is the one-step variance of the full model's spread.
func InnovationVariance(rho, sigmaM, sigmaR float64) float64 {
	return sigmaM*sigmaM*(1-rho*rho) + sigmaR*sigmaR
}

// R2MR is the share of spread variance explained by the mean-reverting part.
func R2MR(rho, sigmaM, sigmaR float64) float64 {
	num := 2 * sigmaM * sigmaM
	den := num + sigmaR*sigmaR*(1+rho)
	if den == 0 {
		return 0
	}
	return num / den
}

// LRScore is the likelihood-ratio statistic of the full model against the
// restricted one.
func LRScore(restricted, full float64) float64 {
	return -2 * (restricted - full)
}
