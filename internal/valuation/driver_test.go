package valuation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/script/ast"
	"github.com/banachtech/orex/internal/script/parser"
	"github.com/banachtech/orex/internal/valuetype"
)

type testTrade struct {
	id         string
	ccy        string
	nettingSet string
	script     *ast.Node
	isOption   bool
	exercised  bool
}

func (t *testTrade) ID() string               { return t.id }
func (t *testTrade) Currency() string         { return t.ccy }
func (t *testTrade) NettingSet() string       { return t.nettingSet }
func (t *testTrade) Script() *ast.Node        { return t.script }
func (t *testTrade) IsOption() bool           { return t.isOption }
func (t *testTrade) ExercisedPhysically() bool { return t.exercised }

func buildTestModel(t *testing.T) (*model.CrossAssetModel, []time.Time) {
	t.Helper()
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{ref.AddDate(0, 6, 0), ref.AddDate(1, 0, 0)}
	corr := mat.NewSymDense(1, []float64{1})
	m, err := model.NewCrossAssetModel(model.Config{
		NumSamples: 32,
		RefDate:    ref,
		Dates:      dates,
		Curves:     map[string]model.Curve{"USD": {Rate: 0.03}},
		Indices:    []model.IndexSpec{{Name: "SPX", Spot: 100, Currency: "USD", Sigma: 0.2, Beta: 0.9, Kappa: 2, Alpha: 0.05}},
		Corr:       corr,
		Seed:       7,
	})
	require.NoError(t, err)
	return m, dates
}

func buildFixedCashflowTrade(t *testing.T, id string, pay time.Time) *testTrade {
	t.Helper()
	root, err := parser.Parse(`NUMBER amount; amount = 100; logpay(amount, obsDate, payDate, "USD");`)
	require.NoError(t, err)
	return &testTrade{id: id, ccy: "USD", nettingSet: "NS1", script: root}
}

func contextFor(ref, pay time.Time) *valuetype.Context {
	ctx := valuetype.NewContext()
	ctx.Bind("obsDate", valuetype.Event(ref))
	ctx.Bind("payDate", valuetype.Event(pay))
	return ctx
}

func TestDriverRunRejectsEmptyPortfolio(t *testing.T) {
	m, dates := buildTestModel(t)
	d := &Driver{
		Model: m, BaseCcy: "USD", DateGrid: dates,
		Calculators: []Calculator{&NPVCalculator{Slot: 0}},
		ContextFor:  func(Trade) *valuetype.Context { return valuetype.NewContext() },
	}
	_, _, _, err := d.Run(nil)
	require.Error(t, err)
}

func TestDriverRunWritesNPVAndCashflowCube(t *testing.T) {
	m, dates := buildTestModel(t)
	trade := buildFixedCashflowTrade(t, "trade1", dates[0])

	d := &Driver{
		Model:       m,
		BaseCcy:     "USD",
		DateGrid:    dates,
		Calculators: []Calculator{&NPVCalculator{Slot: 0}, &CashflowCalculator{Slot: 1}},
		ContextFor: func(tr Trade) *valuetype.Context {
			return contextFor(m.ReferenceDate(), dates[0])
		},
	}

	cb, _, log, err := d.Run([]Trade{trade})
	require.NoError(t, err)
	require.NotNil(t, cb)
	require.Len(t, log.Entries(), 1)

	npvAtStart, err := cb.Get("trade1", dates[0], 0, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.0, npvAtStart, 1e-9) // cashflow already paid by its own date

	npvT0, err := cb.GetT0("trade1", 0)
	require.NoError(t, err)
	require.Greater(t, npvT0, 0.0)

	flow, err := cb.Get("trade1", dates[0], 0, 1)
	require.NoError(t, err)
	require.Greater(t, flow, 0.0)

	flowLater, err := cb.Get("trade1", dates[1], 0, 1)
	require.NoError(t, err)
	require.Equal(t, 0.0, flowLater)
}

func TestDriverRunPopulatesScenarioMatchingCube(t *testing.T) {
	m, dates := buildTestModel(t)
	trade := buildFixedCashflowTrade(t, "trade1", dates[0])

	d := &Driver{
		Model:       m,
		BaseCcy:     "USD",
		DateGrid:    dates,
		Calculators: []Calculator{&NPVCalculator{Slot: 0}},
		ContextFor: func(tr Trade) *valuetype.Context {
			return contextFor(m.ReferenceDate(), dates[0])
		},
	}

	cb, sd, _, err := d.Run([]Trade{trade})
	require.NoError(t, err)
	require.NotNil(t, sd)
	require.True(t, sd.DimensionsMatch(cb.NumDates(), cb.NumSamples()))

	numeraire, err := sd.Get(dates[0], 0, "NUMERAIRE/USD")
	require.NoError(t, err)
	require.Greater(t, numeraire, 0.0)

	fx, err := sd.Get(dates[0], 0, "FX/USD")
	require.NoError(t, err)
	require.Equal(t, 1.0, fx)

	level, err := sd.Get(dates[0], 0, "INDEX/SPX")
	require.NoError(t, err)
	require.Greater(t, level, 0.0)
}

func TestDriverRunMultiTradeWritesDisjointCells(t *testing.T) {
	m, dates := buildTestModel(t)
	trade1 := buildFixedCashflowTrade(t, "A", dates[1])
	trade2 := buildFixedCashflowTrade(t, "B", dates[1])

	d := &Driver{
		Model:       m,
		BaseCcy:     "USD",
		DateGrid:    dates,
		Calculators: []Calculator{&NPVCalculator{Slot: 0}},
		ContextFor: func(tr Trade) *valuetype.Context {
			return contextFor(m.ReferenceDate(), dates[1])
		},
	}

	cb, _, _, err := d.Run([]Trade{trade1, trade2})
	require.NoError(t, err)

	for _, id := range []string{"A", "B"} {
		v, err := cb.Get(id, dates[0], 5, 0)
		require.NoError(t, err)
		require.Greater(t, v, 0.0)
	}
}
