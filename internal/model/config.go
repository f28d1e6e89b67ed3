package model

import (
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banachtech/orex/internal/apperr"
	"github.com/banachtech/orex/internal/config"
)

// BuildFromConfig builds a CrossAssetModel and its simulation date grid
// from a parsed run configuration's simulation/markets/curves groups.
// Curve bootstrapping and model calibration proper are external
// collaborators per spec §1's Non-goals; this reads the already-bootstrapped
// flat curve levels and index vol/mean-reversion parameters the config
// carries as name/value pairs (e.g. "curve.USD.rate",
// "index.SPX.spot"), rather than fitting them from quoted market data.
func BuildFromConfig(cfg *config.Config, asof time.Time) (*CrossAssetModel, []time.Time, error) {
	sim := cfg.Simulation

	numSamples, err := intParam(sim, "samples", 1000)
	if err != nil {
		return nil, nil, err
	}
	horizonYears, err := floatParam(sim, "horizonYears", 1)
	if err != nil {
		return nil, nil, err
	}
	gridSize, err := intParam(sim, "gridSize", 4)
	if err != nil {
		return nil, nil, err
	}
	seed, err := intParam(sim, "seed", 42)
	if err != nil {
		return nil, nil, err
	}

	dates := make([]time.Time, gridSize)
	for i := 0; i < gridSize; i++ {
		frac := horizonYears * float64(i+1) / float64(gridSize)
		days := int(frac * 365.25)
		dates[i] = asof.AddDate(0, 0, days)
	}

	curves, err := parseCurves(cfg.Curves)
	if err != nil {
		return nil, nil, err
	}
	indices, err := parseIndices(cfg.Markets)
	if err != nil {
		return nil, nil, err
	}
	if len(indices) == 0 {
		return nil, nil, apperr.NewConfigError("markets", errNoIndices{})
	}

	corr := mat.NewSymDense(len(indices), nil)
	for i := range indices {
		corr.SetSym(i, i, 1)
	}

	mdl, err := NewCrossAssetModel(Config{
		NumSamples: numSamples,
		RefDate:    asof,
		Dates:      dates,
		Curves:     curves,
		Indices:    indices,
		Corr:       corr,
		Seed:       uint64(seed),
	})
	if err != nil {
		return nil, nil, apperr.NewModelError("BuildFromConfig", err)
	}
	return mdl, dates, nil
}

func intParam(g config.Group, key string, def int) (int, error) {
	s := g.GetOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperr.NewConfigError(key, err)
	}
	return v, nil
}

func floatParam(g config.Group, key string, def float64) (float64, error) {
	s := g.GetOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperr.NewConfigError(key, err)
	}
	return v, nil
}

// parseCurves reads "curve.<CCY>.rate" entries from the curves group into
// flat continuously-compounded Curve values.
func parseCurves(g config.Group) (map[string]Curve, error) {
	out := map[string]Curve{}
	for key, val := range g {
		ccy, field, ok := splitDotted(key, "curve")
		if !ok || field != "rate" {
			continue
		}
		rate, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, apperr.NewConfigError(key, err)
		}
		out[ccy] = Curve{Rate: rate}
	}
	return out, nil
}

// parseIndices reads "index.<NAME>.<field>" entries from the markets
// group into IndexSpec values (field in {spot, currency, sigma, alpha,
// beta, kappa, rho}); currency is left unset unless an
// index.<NAME>.currency entry is given. Unknown fields are ignored.
func parseIndices(g config.Group) ([]IndexSpec, error) {
	specs := map[string]*IndexSpec{}
	var order []string
	get := func(name string) *IndexSpec {
		if s, ok := specs[name]; ok {
			return s
		}
		s := &IndexSpec{Name: name}
		specs[name] = s
		order = append(order, name)
		return s
	}
	for key, val := range g {
		name, field, ok := splitDotted(key, "index")
		if !ok {
			continue
		}
		spec := get(name)
		var err error
		switch field {
		case "spot":
			spec.Spot, err = strconv.ParseFloat(val, 64)
		case "currency":
			spec.Currency = val
		case "sigma":
			spec.Sigma, err = strconv.ParseFloat(val, 64)
		case "alpha":
			spec.Alpha, err = strconv.ParseFloat(val, 64)
		case "beta":
			spec.Beta, err = strconv.ParseFloat(val, 64)
		case "kappa":
			spec.Kappa, err = strconv.ParseFloat(val, 64)
		case "rho":
			spec.Rho, err = strconv.ParseFloat(val, 64)
		default:
			continue
		}
		if err != nil {
			return nil, apperr.NewConfigError(key, err)
		}
	}
	out := make([]IndexSpec, 0, len(order))
	for _, name := range order {
		out = append(out, *specs[name])
	}
	return out, nil
}

// splitDotted splits a "<prefix>.<middle>.<field>" key, returning middle
// and field when the leading segment matches prefix.
func splitDotted(key, prefix string) (middle, field string, ok bool) {
	n := len(key)
	dot1 := -1
	for i := 0; i < n; i++ {
		if key[i] == '.' {
			dot1 = i
			break
		}
	}
	if dot1 < 0 || key[:dot1] != prefix {
		return "", "", false
	}
	rest := key[dot1+1:]
	dot2 := -1
	for i := 0; i < len(rest); i++ {
		if rest[i] == '.' {
			dot2 = i
			break
		}
	}
	if dot2 < 0 {
		return "", "", false
	}
	return rest[:dot2], rest[dot2+1:], true
}

type errNoIndices struct{}

func (errNoIndices) Error() string { return "markets group defines no index.* entries" }
