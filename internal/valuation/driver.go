package valuation

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/banachtech/orex/internal/cube"
	"github.com/banachtech/orex/internal/fixing"
	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/paylog"
	"github.com/banachtech/orex/internal/randvar"
	"github.com/banachtech/orex/internal/scenario"
	"github.com/banachtech/orex/internal/script/engine"
	"github.com/banachtech/orex/internal/valuetype"
)

// Driver owns the cube and orchestrates, for each trade, running the
// scripted payoff once to build its cashflow log, then invoking every
// registered Calculator over the date grid. Per spec §5, the model is
// read-only once built, so per-trade work requires no cloning; the driver
// fans trades out across a bounded worker pool and then writes each
// Calculator's per-sample results to disjoint cube cells, also fanned out,
// mirroring the teacher's channel-based concurrent-path pattern
// (api/pricer.go, api/backtest.go).
type Driver struct {
	Model       model.Model
	Fixings     fixing.Store
	BaseCcy     string
	DateGrid    []time.Time
	Calculators []Calculator
	StoreFlows  bool

	// FX resolves the spot rate converting ccy into BaseCcy as observed at
	// obs; Numeraire resolves the cash numeraire at obs. Both default to
	// flat functions (1.0 for BaseCcy, 1/Discount(ref,obs,BaseCcy)
	// otherwise) when left nil.
	FX        func(ccy string, obs time.Time) (float64, error)
	Numeraire func(obs time.Time) (float64, error)

	// Workers bounds trade-level concurrency; defaults to GOMAXPROCS.
	Workers int

	// Progress, when non-nil, is advanced once per trade completed.
	Progress *progressbar.ProgressBar

	// ContextFor builds the per-trade Context (externally bound trade
	// terms) before the script runs.
	ContextFor func(t Trade) *valuetype.Context
}

func (d *Driver) defaultFX(ccy string, obs time.Time) (float64, error) {
	if d.FX != nil {
		return d.FX(ccy, obs)
	}
	if ccy == d.BaseCcy {
		return 1.0, nil
	}
	return 0, fmt.Errorf("valuation: no FX resolver for currency %q", ccy)
}

func (d *Driver) defaultNumeraire(obs time.Time) (float64, error) {
	if d.Numeraire != nil {
		return d.Numeraire(obs)
	}
	df, err := d.Model.Discount(d.Model.ReferenceDate(), obs, d.BaseCcy)
	if err != nil {
		return 0, err
	}
	if df.At(0) == 0 {
		return 0, fmt.Errorf("valuation: degenerate numeraire at %s", obs.Format("2006-01-02"))
	}
	return 1.0 / df.At(0), nil
}

// Run evaluates every trade's script, then every Calculator at every date
// (plus the T0 row), writing results into a freshly allocated Cube, and
// populates a companion AggregationScenarioData store (spec §3) with the
// numeraire, FX and index levels the post-processor needs at each
// (date, sample) the cube covers.
func (d *Driver) Run(trades []Trade) (*cube.Cube, *scenario.Data, *paylog.Log, error) {
	if len(trades) == 0 {
		return nil, nil, nil, fmt.Errorf("valuation: portfolio must be non-empty")
	}
	depth := 1
	for _, c := range d.Calculators {
		if c.DepthSlot()+1 > depth {
			depth = c.DepthSlot() + 1
		}
	}
	tradeIDs := make([]string, len(trades))
	for i, t := range trades {
		tradeIDs[i] = t.ID()
	}
	cb, err := cube.New(d.Model.ReferenceDate(), tradeIDs, d.DateGrid, d.Model.Size(), depth)
	if err != nil {
		return nil, nil, nil, err
	}
	sd, err := d.buildScenario(trades)
	if err != nil {
		return nil, nil, nil, err
	}

	workers := d.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	errCh := make(chan error, len(trades))
	logs := make([]*paylog.Log, len(trades))

	for i, t := range trades {
		i, t := i, t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			tradeLog, err := d.runTrade(cb, t)
			if err != nil {
				errCh <- fmt.Errorf("valuation: trade %q: %w", t.ID(), err)
				return
			}
			logs[i] = tradeLog
			if d.Progress != nil {
				_ = d.Progress.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return nil, nil, nil, err
	}

	merged := paylog.New()
	for _, l := range logs {
		if l != nil {
			merged.Merge(l)
		}
	}
	return cb, sd, merged, nil
}

// buildScenario populates an AggregationScenarioData store dimensioned to
// match the cube Run is about to write: the base-currency numeraire, an
// FX spot per currency referenced by the portfolio, and a level per
// simulated index, at every date on the grid.
func (d *Driver) buildScenario(trades []Trade) (*scenario.Data, error) {
	ccySet := map[string]bool{d.BaseCcy: true}
	for _, t := range trades {
		ccySet[t.Currency()] = true
	}
	ccys := make([]string, 0, len(ccySet))
	for c := range ccySet {
		ccys = append(ccys, c)
	}
	sort.Strings(ccys)
	indices := d.Model.Indices()

	keys := make([]string, 0, 1+len(ccys)+len(indices))
	keys = append(keys, "NUMERAIRE/"+d.BaseCcy)
	for _, c := range ccys {
		keys = append(keys, "FX/"+c)
	}
	for _, idx := range indices {
		keys = append(keys, "INDEX/"+idx)
	}

	sd, err := scenario.New(d.DateGrid, d.Model.Size(), keys)
	if err != nil {
		return nil, err
	}

	for _, date := range d.DateGrid {
		df, err := d.Model.Discount(d.Model.ReferenceDate(), date, d.BaseCcy)
		if err != nil {
			return nil, err
		}
		for s := 0; s < d.Model.Size(); s++ {
			if df.At(s) == 0 {
				return nil, fmt.Errorf("valuation: degenerate numeraire at %s", date.Format("2006-01-02"))
			}
			if err := sd.Set(date, s, "NUMERAIRE/"+d.BaseCcy, 1.0/df.At(s)); err != nil {
				return nil, err
			}
		}
		for _, c := range ccys {
			fx, err := d.defaultFX(c, date)
			if err != nil {
				return nil, err
			}
			for s := 0; s < d.Model.Size(); s++ {
				if err := sd.Set(date, s, "FX/"+c, fx); err != nil {
					return nil, err
				}
			}
		}
		for _, idx := range indices {
			rv, err := d.Model.Eval(idx, date, nil)
			if err != nil {
				return nil, err
			}
			for s := 0; s < d.Model.Size(); s++ {
				if err := sd.Set(date, s, "INDEX/"+idx, rv.At(s)); err != nil {
					return nil, err
				}
			}
		}
	}
	return sd, nil
}

func (d *Driver) runTrade(cb *cube.Cube, t Trade) (*paylog.Log, error) {
	ctx := d.ContextFor(t)
	log := paylog.New()
	eng := engine.New(ctx, d.Model, d.Fixings, log, t.ID())
	if err := eng.Run(t.Script()); err != nil {
		return nil, err
	}

	calcCtx := &CalcContext{
		Trade:     t,
		Cashflows: log.Entries(),
		Model:     d.Model,
		BaseCcy:   d.BaseCcy,
		FX:        d.defaultFX,
		Numeraire: d.defaultNumeraire,
	}

	for _, c := range d.Calculators {
		for dateIdx := range d.DateGrid {
			rv, err := c.Calculate(calcCtx, d.DateGrid, dateIdx, false)
			if err != nil {
				return nil, err
			}
			if err := writeLanes(cb, t.ID(), d.DateGrid[dateIdx], c.DepthSlot(), rv); err != nil {
				return nil, err
			}
			closeOut, err := c.Calculate(calcCtx, d.DateGrid, dateIdx, true)
			if err != nil {
				return nil, err
			}
			if !closeOut.Deterministic() || closeOut.At(0) != 0 {
				if err := writeLanes(cb, t.ID(), d.DateGrid[dateIdx], c.DepthSlot(), closeOut); err != nil {
					return nil, err
				}
			}
		}
		t0, err := c.CalculateT0(calcCtx)
		if err != nil {
			return nil, err
		}
		if err := cb.SetT0(t.ID(), c.DepthSlot(), t0.At(0)); err != nil {
			return nil, err
		}
	}
	return log, nil
}

// writeLanes writes each sample lane of rv to its own disjoint cube cell.
// Lanes are independent (spec §5), so the writes are fanned out across a
// bounded worker pool rather than looped sequentially.
func writeLanes(cb *cube.Cube, tradeID string, date time.Time, depth int, rv randvar.RandomVariable) error {
	n := rv.Size()
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	type job struct{ lo, hi int }
	jobs := make(chan job, workers)
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		jobs <- job{lo, hi}
	}
	close(jobs)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				for s := j.lo; s < j.hi; s++ {
					if err := cb.Set(tradeID, date, s, depth, rv.At(s)); err != nil {
						errCh <- err
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return err
	}
	return nil
}
