package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banachtech/orex/internal/randvar"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{
		ref.AddDate(0, 3, 0),
		ref.AddDate(0, 6, 0),
		ref.AddDate(1, 0, 0),
	}
	corr := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1})
	return Config{
		NumSamples: 64,
		RefDate:    ref,
		Dates:      dates,
		Curves: map[string]Curve{
			"USD": {Rate: 0.03},
			"EUR": {Rate: 0.02},
		},
		Indices: []IndexSpec{
			{Name: "SPX", Spot: 100, Currency: "USD", Sigma: 0.2, Beta: 0.9, Kappa: 2, Alpha: 0.05, Rho: -0.3},
			{Name: "SX5E", Spot: 50, Currency: "EUR", Sigma: 0.25, Beta: 0.85, Kappa: 1.5, Alpha: 0.04, Rho: -0.2},
		},
		Corr: corr,
		Seed: 42,
	}
}

func TestNewCrossAssetModelRejectsEmptyGrid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dates = nil
	_, err := NewCrossAssetModel(cfg)
	require.Error(t, err)
}

func TestNewCrossAssetModelBuildsLevelsForEveryGridDate(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)
	require.Equal(t, cfg.NumSamples, m.Size())

	for _, d := range cfg.Dates {
		rv, err := m.Eval("SPX", d, nil)
		require.NoError(t, err)
		require.Equal(t, cfg.NumSamples, rv.Size())
		for i := 0; i < rv.Size(); i++ {
			require.Greater(t, rv.At(i), 0.0)
		}
	}
}

func TestEvalAtReferenceDateIsDeterministicSpot(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	rv, err := m.Eval("SPX", cfg.RefDate, nil)
	require.NoError(t, err)
	require.True(t, rv.Deterministic())
	require.Equal(t, 100.0, rv.At(0))
}

func TestEvalUnknownIndexErrors(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	_, err = m.Eval("NOPE", cfg.RefDate, nil)
	require.Error(t, err)
}

func TestDiscountDecreasesWithMaturity(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	near, err := m.Discount(cfg.RefDate, cfg.Dates[0], "USD")
	require.NoError(t, err)
	far, err := m.Discount(cfg.RefDate, cfg.Dates[2], "USD")
	require.NoError(t, err)
	require.Greater(t, near.At(0), far.At(0))
}

func TestDiscountUnknownCurrencyErrors(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	_, err = m.Discount(cfg.RefDate, cfg.Dates[0], "GBP")
	require.Error(t, err)
}

func TestPayAppliesDiscountFactor(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	amount := randvar.New(cfg.NumSamples, 10)
	paid, err := m.Pay(amount, cfg.RefDate, cfg.Dates[0], "USD")
	require.NoError(t, err)
	df, err := m.Discount(cfg.RefDate, cfg.Dates[0], "USD")
	require.NoError(t, err)
	require.InDelta(t, 10*df.At(0), paid.At(0), 1e-9)
}

func TestNPVOfDeterministicAmountIsItself(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	amount := randvar.New(cfg.NumSamples, 5)
	out, err := m.NPV(amount, cfg.Dates[0], NPVOptions{})
	require.NoError(t, err)
	require.InDelta(t, 5.0, out.At(0), 1e-9)
}

func TestNPVRegressesOnDefaultRegressor(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	spx, err := m.Eval("SPX", cfg.Dates[0], nil)
	require.NoError(t, err)
	out, err := m.NPV(spx, cfg.Dates[0], NPVOptions{})
	require.NoError(t, err)
	require.Equal(t, cfg.NumSamples, out.Size())
}

func TestBarrierProbabilityIsOneWhenAlreadyAboveStrike(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	out, err := m.BarrierProbability("SPX", cfg.RefDate, cfg.Dates[0], 50, true)
	require.NoError(t, err)
	for i := 0; i < out.Size(); i++ {
		require.Equal(t, 1.0, out.At(i))
	}
}

func TestBarrierProbabilityZeroWhenObsOrderReversed(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	out, err := m.BarrierProbability("SPX", cfg.Dates[1], cfg.Dates[0], 150, true)
	require.NoError(t, err)
	require.True(t, out.Deterministic())
	require.Equal(t, 0.0, out.At(0))
}

func TestFwdCompAvgAppliesSpreadAndGearing(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	plain, err := m.FwdCompAvg(FwdCompAvgParams{
		Index: "SPX", Obs: cfg.RefDate, Start: cfg.RefDate, End: cfg.Dates[0],
	})
	require.NoError(t, err)

	withSpread, err := m.FwdCompAvg(FwdCompAvgParams{
		Index: "SPX", Obs: cfg.RefDate, Start: cfg.RefDate, End: cfg.Dates[0],
		HasSpreadGearing: true, Spread: 0.01, Gearing: 1.0,
	})
	require.NoError(t, err)
	require.InDelta(t, plain.At(0)+0.01, withSpread.At(0), 1e-9)
}

func TestFwdCompAvgUnknownIndexErrors(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)

	_, err = m.FwdCompAvg(FwdCompAvgParams{Index: "NOPE", Obs: cfg.RefDate, Start: cfg.RefDate, End: cfg.Dates[0]})
	require.Error(t, err)
}

func TestTypeIsMonteCarlo(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewCrossAssetModel(cfg)
	require.NoError(t, err)
	require.Equal(t, MonteCarlo, m.Type())
}
