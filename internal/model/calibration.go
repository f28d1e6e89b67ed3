package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// VolPoint is one market quote on an implied-volatility surface: Moneyness
// is strike/spot, MaturityYears the option maturity, ImpliedVol the quoted
// lognormal volatility.
type VolPoint struct {
	Moneyness     float64
	MaturityYears float64
	ImpliedVol    float64
}

// get maps hypHypParams onto an unconstrained (-Inf, Inf) domain so the
// optimizer never has to respect Sigma/Kappa positivity or |Rho|<1 directly.
// Index 3 is Kappa; setHypHypParams below reads Kappa back from the same
// index, so the pair round-trips regardless of how other implementations
// order this vector.
func (p hypHypParams) get() []float64 {
	return []float64{
		math.Log(p.Sigma),
		p.Alpha,
		p.Beta,
		math.Log(p.Kappa),
		math.Atanh(clampUnit(p.Rho)),
	}
}

func clampUnit(x float64) float64 {
	if x >= 1 {
		return 1 - 1e-9
	}
	if x <= -1 {
		return -1 + 1e-9
	}
	return x
}

// setHypHypParams constructs a hypHypParams from the unconstrained representation get
// produces.
func setHypHypParams(par []float64) hypHypParams {
	return hypHypParams{
		Sigma: math.Exp(par[0]),
		Alpha: par[1],
		Beta:  par[2],
		Kappa: math.Exp(par[3]),
		Rho:   math.Tanh(par[4]),
	}
}

// CalibrateHypHyp fits Sigma/Alpha/Beta/Kappa/Rho to a quoted implied-vol
// surface by Nelder-Mead minimization of mean squared error, mirroring the
// teacher's mc.Fit calibration loop.
func CalibrateHypHyp(seed IndexSpec, surface []VolPoint) (IndexSpec, error) {
	if len(surface) == 0 {
		return seed, fmt.Errorf("model: calibration surface must be non-empty")
	}
	start := hypHypParams{Sigma: seed.Sigma, Alpha: seed.Alpha, Beta: seed.Beta, Kappa: seed.Kappa, Rho: seed.Rho}
	if start.Sigma == 0 {
		start = defaultHypHypParams()
	}

	problem := optimize.Problem{
		Func: func(par []float64) float64 {
			return hypHypMSE(setHypHypParams(par), surface)
		},
	}
	res, err := optimize.Minimize(problem, start.get(), nil, &optimize.NelderMead{})
	if err != nil {
		return seed, fmt.Errorf("model: calibration failed: %w", err)
	}
	fitted := setHypHypParams(res.X)
	seed.Sigma, seed.Alpha, seed.Beta, seed.Kappa, seed.Rho = fitted.Sigma, fitted.Alpha, fitted.Beta, fitted.Kappa, fitted.Rho
	return seed, nil
}

func hypHypMSE(p hypHypParams, surface []VolPoint) float64 {
	loss := 0.0
	for _, pt := range surface {
		v := p.impliedVol(pt.Moneyness, pt.MaturityYears)
		loss += (v - pt.ImpliedVol) * (v - pt.ImpliedVol)
	}
	return loss / float64(len(surface))
}
