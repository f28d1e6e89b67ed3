package collateral

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCalculationType(t *testing.T) {
	ct, err := ParseCalculationType("AsymmetricCVA")
	require.NoError(t, err)
	require.Equal(t, AsymmetricCVA, ct)

	_, err = ParseCalculationType("Bogus")
	require.Error(t, err)
}

func TestEvolveRejectsEmptySeries(t *testing.T) {
	_, err := Evolve(CSA{}, nil, false)
	require.Error(t, err)
}

func TestEvolveZeroInitialWithoutFullCollateralisation(t *testing.T) {
	acc, err := Evolve(CSA{Threshold: 0, MinimumTransferAmount: 0}, []float64{100, 100, 100}, false)
	require.NoError(t, err)
	require.Equal(t, 0.0, acc.Balance[0])
}

func TestEvolveFullInitialCollateralisation(t *testing.T) {
	acc, err := Evolve(CSA{Threshold: 0}, []float64{100, 100, 100}, true)
	require.NoError(t, err)
	require.Equal(t, 100.0, acc.Balance[0])
}

func TestEvolveRespectsThresholdAndMTA(t *testing.T) {
	csa := CSA{Threshold: 50, MinimumTransferAmount: 10}
	acc, err := Evolve(csa, []float64{0, 40, 60, 65}, false)
	require.NoError(t, err)
	require.Equal(t, 0.0, acc.Balance[1]) // below threshold
	require.Equal(t, 10.0, acc.Balance[2]) // 60-50=10
	require.Equal(t, 10.0, acc.Balance[3]) // 65-50=15, but delta 5 < MTA, no call
}

func TestEvolveNoLagUsesCurrentMTM(t *testing.T) {
	csa := CSA{Threshold: 0, CalcType: NoLag, MPORSteps: 5}
	acc, err := Evolve(csa, []float64{0, 20, 30}, false)
	require.NoError(t, err)
	require.Equal(t, 30.0, acc.Balance[2])
}

func TestEvolveSymmetricLagLooksBack(t *testing.T) {
	csa := CSA{Threshold: 0, CalcType: Symmetric, MPORSteps: 2}
	mtm := []float64{0, 10, 20, 30, 40}
	acc, err := Evolve(csa, mtm, false)
	require.NoError(t, err)
	// at t=4, lag 2 steps back to t=2 (mtm=20)
	require.Equal(t, 20.0, acc.Balance[4])
}

func TestEvolveAsymmetricCVAOnlyLagsPositiveExposure(t *testing.T) {
	csa := CSA{Threshold: 0, CalcType: AsymmetricCVA, MPORSteps: 2}
	mtm := []float64{0, -10, -20, -30, -40}
	acc, err := Evolve(csa, mtm, false)
	require.NoError(t, err)
	// negative mtm isn't lagged under AsymmetricCVA
	require.Equal(t, -40.0, acc.Balance[4])
}

func TestExposureAfterCollateral(t *testing.T) {
	epe, ene := ExposureAfterCollateral(100, 40)
	require.Equal(t, 60.0, epe)
	require.Equal(t, 0.0, ene)

	epe, ene = ExposureAfterCollateral(20, 50)
	require.Equal(t, 0.0, epe)
	require.Equal(t, 30.0, ene)
}
