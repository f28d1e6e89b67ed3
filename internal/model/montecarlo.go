package model

import (
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/banachtech/orex/internal/randvar"
)

// Curve is a flat continuously-compounded discount curve for one currency.
// Spec §1 treats curve bootstrapping as an external collaborator; this is
// the minimal curve shape the Monte Carlo Model needs to implement
// Discount/Pay/FwdCompAvg.
type Curve struct {
	Rate float64
}

func (c Curve) discountFactor(yearsFromRef float64) float64 {
	return math.Exp(-c.Rate * yearsFromRef)
}

// IndexSpec describes one simulated named index (an equity, FX rate, or
// similar single-underlying process) within the cross-asset basket.
type IndexSpec struct {
	Name     string
	Spot     float64
	Currency string
	Sigma, Alpha, Beta, Kappa, Rho float64
}

// CrossAssetModel is a Monte Carlo Model (spec §4.3) simulating a basket of
// correlated single-asset SDEs on a fixed date grid, adapted from the
// teacher's mc.Basket + mc.HypHyp + api.distributions() pipeline.
type CrossAssetModel struct {
	numSamples int
	refDate    time.Time
	dates      []time.Time
	dayCount   func(a, b time.Time) float64

	curves map[string]Curve
	levels map[string]map[int]randvar.RandomVariable // index name -> grid date index -> level
	params map[string]hypHypParams
	specs  map[string]IndexSpec
}

// Config bundles the construction-time inputs for a CrossAssetModel.
type Config struct {
	NumSamples int
	RefDate    time.Time
	Dates      []time.Time // simulation grid, strictly increasing, after RefDate
	Curves     map[string]Curve
	Indices    []IndexSpec
	Corr       *mat.SymDense // len(Indices) x len(Indices), row/col order = Indices order
	Seed       uint64
}

func actual365(a, b time.Time) float64 { return b.Sub(a).Hours() / 24.0 / 365.0 }

// NewCrossAssetModel simulates every index over the date grid and returns a
// ready-to-evaluate Model.
func NewCrossAssetModel(cfg Config) (*CrossAssetModel, error) {
	if cfg.NumSamples <= 0 {
		return nil, fmt.Errorf("model: numSamples must be positive")
	}
	if len(cfg.Dates) == 0 {
		return nil, fmt.Errorf("model: date grid must be non-empty")
	}
	sorted := append([]time.Time(nil), cfg.Dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	dt := make([]float64, len(sorted))
	prev := cfg.RefDate
	for i, d := range sorted {
		dt[i] = actual365(prev, d)
		prev = d
	}

	mean := make([]float64, len(cfg.Indices))
	normal, ok := distmv.NewNormal(mean, cfg.Corr, rand.NewSource(cfg.Seed))
	if !ok {
		return nil, fmt.Errorf("model: correlation matrix is not positive definite")
	}
	z1 := make([][][]float64, len(cfg.Indices)) // [indexPos][sample][step]
	for i := range cfg.Indices {
		z1[i] = make([][]float64, cfg.NumSamples)
	}
	for s := 0; s < cfg.NumSamples; s++ {
		for step := 0; step < len(sorted); step++ {
			draw := normal.Rand(nil)
			for i := range cfg.Indices {
				if z1[i][s] == nil {
					z1[i][s] = make([]float64, len(sorted))
				}
				z1[i][s][step] = draw[i]
			}
		}
	}

	idStdNorm := newStdNormal(cfg.Seed + 1)
	levels := map[string]map[int]randvar.RandomVariable{}
	params := map[string]hypHypParams{}
	specs := map[string]IndexSpec{}
	for i, spec := range cfg.Indices {
		p := hypHypParams{Sigma: spec.Sigma, Alpha: spec.Alpha, Beta: spec.Beta, Kappa: spec.Kappa, Rho: spec.Rho}
		if p.Sigma == 0 {
			p = defaultHypHypParams()
		}
		z2 := make([][]float64, cfg.NumSamples)
		for s := 0; s < cfg.NumSamples; s++ {
			z2[s] = make([]float64, len(sorted))
			for step := range z2[s] {
				z2[s][step] = p.Rho*z1[i][s][step] + math.Sqrt(1.0-p.Rho*p.Rho)*idStdNorm.Rand()
			}
		}
		ratioPaths := p.simulate(dt, z1[i], z2)
		byDate := map[int]randvar.RandomVariable{}
		byDate[0] = randvar.New(cfg.NumSamples, spec.Spot)
		for step := 1; step <= len(sorted); step++ {
			lane := make([]float64, cfg.NumSamples)
			for s := 0; s < cfg.NumSamples; s++ {
				lane[s] = spec.Spot * ratioPaths[step][s]
			}
			byDate[step] = randvar.NewFromSlice(lane)
		}
		levels[spec.Name] = byDate
		params[spec.Name] = p
		specs[spec.Name] = spec
	}

	return &CrossAssetModel{
		numSamples: cfg.NumSamples,
		refDate:    cfg.RefDate,
		dates:      sorted,
		dayCount:   actual365,
		curves:     cfg.Curves,
		levels:     levels,
		params:     params,
		specs:      specs,
	}, nil
}

func (m *CrossAssetModel) Size() int               { return m.numSamples }
func (m *CrossAssetModel) ReferenceDate() time.Time { return m.refDate }
func (m *CrossAssetModel) Dt(from, to time.Time) float64 { return m.dayCount(from, to) }
func (m *CrossAssetModel) Type() Type { return MonteCarlo }

// Indices returns the simulated index names in sorted order.
func (m *CrossAssetModel) Indices() []string {
	names := make([]string, 0, len(m.specs))
	for name := range m.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// gridIndex returns the grid slot for date d: 0 for the reference date,
// otherwise the 1-based index of the matching simulation date.
func (m *CrossAssetModel) gridIndex(d time.Time) (int, error) {
	if !d.After(m.refDate) {
		return 0, nil
	}
	for i, g := range m.dates {
		if g.Equal(d) {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("model: date %s is not on the simulation grid", d.Format("2006-01-02"))
}

func (m *CrossAssetModel) curve(ccy string) (Curve, error) {
	c, ok := m.curves[ccy]
	if !ok {
		return Curve{}, fmt.Errorf("model: no curve for currency %q", ccy)
	}
	return c, nil
}

func (m *CrossAssetModel) Discount(obs, pay time.Time, ccy string) (randvar.RandomVariable, error) {
	c, err := m.curve(ccy)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	df := c.discountFactor(m.dayCount(obs, pay))
	return randvar.New(m.numSamples, df), nil
}

// Pay returns amount discounted from pay back to obs, under the modelling
// simplification that with a flat deterministic curve the numeraire ratio
// between obs and pay collapses to the ordinary discount factor.
func (m *CrossAssetModel) Pay(amount randvar.RandomVariable, obs, pay time.Time, ccy string) (randvar.RandomVariable, error) {
	df, err := m.Discount(obs, pay, ccy)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	return amount.Mul(df), nil
}

// NPV performs a cross-sectional least-squares regression of amount onto a
// quadratic basis of the supplied (or default) regressor, approximating the
// conditional expectation spec §4.3 calls for.
func (m *CrossAssetModel) NPV(amount randvar.RandomVariable, obs time.Time, opts NPVOptions) (randvar.RandomVariable, error) {
	regressor := opts.AddRegressor1
	if regressor == nil {
		regressor = m.defaultRegressor(obs)
	}
	if regressor == nil || amount.Deterministic() {
		mean := crossSectionalMean(amount)
		return randvar.New(m.numSamples, mean), nil
	}
	fitted, err := quadraticRegression(amount, *regressor)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	if opts.RegressionFilter != nil {
		fitted = randvar.Select(*opts.RegressionFilter, fitted, amount)
	}
	return fitted, nil
}

func (m *CrossAssetModel) defaultRegressor(obs time.Time) *randvar.RandomVariable {
	idx, err := m.gridIndex(obs)
	if err != nil {
		return nil
	}
	for _, byDate := range m.levels {
		if rv, ok := byDate[idx]; ok {
			return &rv
		}
	}
	return nil
}

func (m *CrossAssetModel) Eval(index string, obs time.Time, fwd *time.Time) (randvar.RandomVariable, error) {
	byDate, ok := m.levels[index]
	if !ok {
		return randvar.RandomVariable{}, fmt.Errorf("model: unknown index %q", index)
	}
	obsIdx, err := m.gridIndex(obs)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	if fwd == nil {
		return byDate[obsIdx], nil
	}
	fwdIdx, err := m.gridIndex(*fwd)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	return byDate[fwdIdx], nil
}

func (m *CrossAssetModel) FwdCompAvg(p FwdCompAvgParams) (randvar.RandomVariable, error) {
	ccy, ok := m.indexCurrency(p.Index)
	if !ok {
		return randvar.RandomVariable{}, fmt.Errorf("model: unknown index %q", p.Index)
	}
	c, err := m.curve(ccy)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	tau := m.dayCount(p.Start, p.End)
	rate := (math.Exp(c.Rate*tau) - 1.0) / tau // compounded flat-curve overnight rate proxy
	if p.HasSpreadGearing {
		rate = rate*p.Gearing + p.Spread
	}
	if p.HasCapFloor {
		if !p.NakedOption {
			rate = math.Min(rate, p.Cap)
			rate = math.Max(rate, p.Floor)
		}
	}
	return randvar.New(m.numSamples, rate), nil
}

func (m *CrossAssetModel) indexCurrency(index string) (string, bool) {
	spec, ok := m.specs[index]
	if !ok {
		return "", false
	}
	return spec.Currency, true
}

// BarrierProbability uses the closed-form reflection-principle touch
// probability for a driftless lognormal proxy, with volatility taken from
// the index's own implied-vol approximation (model.hypHypParams.impliedVol)
// evaluated ATM over [obs1, obs2].
func (m *CrossAssetModel) BarrierProbability(index string, obs1, obs2 time.Time, barrier float64, above bool) (randvar.RandomVariable, error) {
	byDate, ok := m.levels[index]
	if !ok {
		return randvar.RandomVariable{}, fmt.Errorf("model: unknown index %q", index)
	}
	idx1, err := m.gridIndex(obs1)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	spot := byDate[idx1]
	t := m.dayCount(obs1, obs2)
	if t <= 0 {
		return randvar.New(m.numSamples, 0), nil
	}
	p := m.params[index]
	vol := p.impliedVol(1.0, t)

	n := m.numSamples
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		s0 := spot.At(k)
		out[k] = touchProbability(s0, barrier, vol, t, above)
	}
	return randvar.NewFromSlice(out), nil
}

func touchProbability(s0, b, vol, t float64, above bool) float64 {
	if vol <= 0 || t <= 0 {
		if above {
			if s0 >= b {
				return 1
			}
			return 0
		}
		if s0 <= b {
			return 1
		}
		return 0
	}
	sigmaSqrtT := vol * math.Sqrt(t)
	if above {
		if s0 >= b {
			return 1
		}
		d := (math.Log(b/s0) - 0.5*vol*vol*t) / sigmaSqrtT
		dPrime := (math.Log(s0/b) - 0.5*vol*vol*t) / sigmaSqrtT
		return normalTail(-d) + (b/s0)*normalTail(-dPrime)
	}
	if s0 <= b {
		return 1
	}
	d := (math.Log(s0/b) - 0.5*vol*vol*t) / sigmaSqrtT
	dPrime := (math.Log(b/s0) - 0.5*vol*vol*t) / sigmaSqrtT
	return normalTail(-d) + (b/s0)*normalTail(-dPrime)
}

func normalTail(x float64) float64 { return 0.5 * math.Erfc(-x/math.Sqrt2) }

func crossSectionalMean(rv randvar.RandomVariable) float64 {
	if rv.Deterministic() {
		return rv.At(0)
	}
	n := rv.Size()
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += rv.At(i)
	}
	return sum / float64(n)
}

// quadraticRegression fits y ~ a + b*x + c*x^2 by ordinary least squares via
// gonum/mat normal equations and returns the fitted values.
func quadraticRegression(y, x randvar.RandomVariable) (randvar.RandomVariable, error) {
	n := y.Size()
	A := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		xi := x.At(i)
		A.SetRow(i, []float64{1, xi, xi * xi})
		b.SetVec(i, y.At(i))
	}
	var ata mat.Dense
	ata.Mul(A.T(), A)
	var atb mat.VecDense
	atb.MulVec(A.T(), b)
	var coef mat.VecDense
	if err := coef.SolveVec(&ata, &atb); err != nil {
		return randvar.RandomVariable{}, fmt.Errorf("model: regression failed: %w", err)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		xi := x.At(i)
		out[i] = coef.AtVec(0) + coef.AtVec(1)*xi + coef.AtVec(2)*xi*xi
	}
	return randvar.NewFromSlice(out), nil
}
