package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalibrateHypHypRejectsEmptySurface(t *testing.T) {
	_, err := CalibrateHypHyp(IndexSpec{Name: "SPX", Spot: 100}, nil)
	require.Error(t, err)
}

func TestCalibrateHypHypImprovesFitToQuotedSurface(t *testing.T) {
	target := hypHypParams{Sigma: 0.22, Alpha: 0.05, Beta: 0.9, Kappa: 1.5, Rho: -0.25}
	surface := []VolPoint{
		{Moneyness: 0.8, MaturityYears: 0.5, ImpliedVol: target.impliedVol(0.8, 0.5)},
		{Moneyness: 1.0, MaturityYears: 0.5, ImpliedVol: target.impliedVol(1.0, 0.5)},
		{Moneyness: 1.2, MaturityYears: 0.5, ImpliedVol: target.impliedVol(1.2, 0.5)},
		{Moneyness: 1.0, MaturityYears: 1.0, ImpliedVol: target.impliedVol(1.0, 1.0)},
	}
	seed := IndexSpec{Name: "SPX", Spot: 100, Sigma: 0.4, Alpha: 0.01, Beta: 0.01, Kappa: 5.0, Rho: 0.0}

	before := hypHypMSE(hypHypParams{Sigma: seed.Sigma, Alpha: seed.Alpha, Beta: seed.Beta, Kappa: seed.Kappa, Rho: seed.Rho}, surface)
	fitted, err := CalibrateHypHyp(seed, surface)
	require.NoError(t, err)
	after := hypHypMSE(hypHypParams{Sigma: fitted.Sigma, Alpha: fitted.Alpha, Beta: fitted.Beta, Kappa: fitted.Kappa, Rho: fitted.Rho}, surface)

	require.Less(t, after, before)
}
