package xva

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banachtech/orex/internal/collateral"
	"github.com/banachtech/orex/internal/cube"
	"github.com/banachtech/orex/internal/scenario"
)

var asof = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func flatDF(rate float64) func(time.Time) float64 {
	return func(t time.Time) float64 {
		return 1 / (1 + rate*yearFrac(asof, t))
	}
}

func buildCube(t *testing.T, trades []string, dates []time.Time, samples int, value func(trade string, dateIdx, sample int) float64) *cube.Cube {
	t.Helper()
	cb, err := cube.New(asof, trades, dates, samples, 1)
	require.NoError(t, err)
	for _, tr := range trades {
		require.NoError(t, cb.SetT0(tr, 0, value(tr, -1, 0)))
		for di, d := range dates {
			for s := 0; s < samples; s++ {
				require.NoError(t, cb.Set(tr, d, s, 0, value(tr, di, s)))
			}
		}
	}
	return cb
}

func basicInputs(t *testing.T, cb *cube.Cube) Inputs {
	t.Helper()
	cc, err := FlatCreditCurve(asof, asof.AddDate(10, 0, 0), 0.02)
	require.NoError(t, err)
	ownCC, err := FlatCreditCurve(asof, asof.AddDate(10, 0, 0), 0.01)
	require.NoError(t, err)
	return Inputs{
		Cube:    cb,
		BaseCcy: "USD",
		TradeNettingSet: map[string]string{
			"A": "NS1", "B": "NS1",
		},
		NettingSets: map[string]NettingSetConfig{
			"NS1": {
				ID:                      "NS1",
				CSA:                     collateral.CSA{Threshold: 0},
				CounterpartyCreditCurve: cc,
				OwnCreditCurve:          ownCC,
				LGDCounterparty:         0.6,
				LGDOur:                  0.6,
				FundingSpreadOur:        0.005,
				FVASurvivalWeighted:     true,
				CollateralSpread:        0.001,
			},
		},
		DiscountFactor: flatDF(0.03),
	}
}

func TestNewRejectsUnassignedTrade(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0)}
	cb := buildCube(t, []string{"A"}, dates, 4, func(string, int, int) float64 { return 0 })
	in := basicInputs(t, cb)
	delete(in.TradeNettingSet, "A")
	_, err := New(in)
	require.Error(t, err)
}

func TestNewRejectsMismatchedScenarioDimensions(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0)}
	cb := buildCube(t, []string{"A", "B"}, dates, 4, func(string, int, int) float64 { return 0 })
	in := basicInputs(t, cb)

	sd, err := scenario.New(dates, 8, []string{"NUMERAIRE/USD"})
	require.NoError(t, err)
	in.Scenario = sd

	_, err = New(in)
	require.Error(t, err)
}

func TestNewAcceptsMatchingScenarioDimensions(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0)}
	cb := buildCube(t, []string{"A", "B"}, dates, 4, func(string, int, int) float64 { return 0 })
	in := basicInputs(t, cb)

	sd, err := scenario.New(dates, 4, []string{"NUMERAIRE/USD"})
	require.NoError(t, err)
	in.Scenario = sd

	_, err = New(in)
	require.NoError(t, err)
}

func TestRunProducesNonNegativeExposureProfile(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0), asof.AddDate(1, 0, 0)}
	cb := buildCube(t, []string{"A", "B"}, dates, 8, func(tr string, di, s int) float64 {
		base := float64(s) - 3.5
		if tr == "B" {
			base = -base
		}
		return base * 10
	})
	in := basicInputs(t, cb)
	pp, err := New(in)
	require.NoError(t, err)
	require.NoError(t, pp.Run())

	res, err := pp.Result("NS1")
	require.NoError(t, err)
	for _, v := range res.EPE {
		require.GreaterOrEqual(t, v, 0.0)
	}
	for _, v := range res.ENE {
		require.GreaterOrEqual(t, v, 0.0)
	}
	require.GreaterOrEqual(t, res.CVA, 0.0)
	require.GreaterOrEqual(t, res.DVA, 0.0)
	require.Len(t, res.CVASensitivities, len(DefaultSensiGrid))
}

func TestResultErrorsBeforeRun(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0)}
	cb := buildCube(t, []string{"A"}, dates, 4, func(string, int, int) float64 { return 0 })
	pp, err := New(basicInputs(t, cb))
	require.NoError(t, err)
	_, err = pp.Result("NS1")
	require.Error(t, err)
}

func TestAllocationRelativeFairValueGrossRejectsZeroDenominator(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0)}
	cb := buildCube(t, []string{"A", "B"}, dates, 4, func(tr string, di, s int) float64 {
		if di == -1 {
			if tr == "A" {
				return 5
			}
			return -5
		}
		return 0
	})
	in := basicInputs(t, cb)
	in.Allocation = AllocationRelativeFairValueGross
	pp, err := New(in)
	require.NoError(t, err)
	err = pp.Run()
	require.Error(t, err)
}

func TestAllocationNoneZerosOut(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0)}
	cb := buildCube(t, []string{"A", "B"}, dates, 4, func(tr string, di, s int) float64 { return 1 })
	in := basicInputs(t, cb)
	in.Allocation = AllocationNone
	pp, err := New(in)
	require.NoError(t, err)
	require.NoError(t, pp.Run())
	res, err := pp.Result("NS1")
	require.NoError(t, err)
	require.Equal(t, 0.0, res.AllocatedCVA["A"])
	require.Equal(t, 0.0, res.AllocatedDVA["B"])
}

func TestCreditCurveSurvivalDecreasesInTime(t *testing.T) {
	cc, err := NewCreditCurve(asof, []time.Time{asof.AddDate(1, 0, 0), asof.AddDate(5, 0, 0)}, []float64{0.01, 0.02})
	require.NoError(t, err)
	s1 := cc.SurvivalProbability(asof.AddDate(0, 6, 0))
	s2 := cc.SurvivalProbability(asof.AddDate(2, 0, 0))
	s3 := cc.SurvivalProbability(asof.AddDate(6, 0, 0))
	require.Greater(t, s1, s2)
	require.Greater(t, s2, s3)
}

func TestCreditCurveBumpedAtTenorRaisesHazard(t *testing.T) {
	cc, err := NewCreditCurve(asof, []time.Time{asof.AddDate(1, 0, 0)}, []float64{0.01})
	require.NoError(t, err)
	bumped := cc.BumpedAtTenor(1, DefaultSensiShift)
	require.Less(t, bumped.SurvivalProbability(asof.AddDate(1, 0, 0)), cc.SurvivalProbability(asof.AddDate(1, 0, 0)))
}

func TestKVADisabledByDefault(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0)}
	cb := buildCube(t, []string{"A"}, dates, 4, func(string, int, int) float64 { return 1 })
	in := basicInputs(t, cb)
	pp, err := New(in)
	require.NoError(t, err)
	require.NoError(t, pp.Run())
	res, err := pp.Result("NS1")
	require.NoError(t, err)
	require.Equal(t, 0.0, res.KVACCR)
	require.Equal(t, 0.0, res.KVACVA)
}

func TestKVAEnabledProducesPositiveCharge(t *testing.T) {
	dates := []time.Time{asof.AddDate(0, 6, 0), asof.AddDate(1, 0, 0)}
	cb := buildCube(t, []string{"A"}, dates, 4, func(string, int, int) float64 { return 100 })
	in := basicInputs(t, cb)
	in.KVAEnabled = true
	pp, err := New(in)
	require.NoError(t, err)
	require.NoError(t, pp.Run())
	res, err := pp.Result("NS1")
	require.NoError(t, err)
	require.Greater(t, res.KVACCR, 0.0)
	require.Greater(t, res.KVACVA, 0.0)
}
