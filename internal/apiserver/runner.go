// Package apiserver is the control-plane HTTP API SPEC_FULL.md's §6
// expansion adds on top of the CLI: submit a config XML path, poll a
// run's status, and stream its generated CSV reports. Grounded on the
// teacher's api package (Server struct, gin.Engine, bearer-token
// authentication, per-user rate limiting).
package apiserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banachtech/orex/internal/config"
	"github.com/banachtech/orex/internal/fixing"
	"github.com/banachtech/orex/internal/logging"
	"github.com/banachtech/orex/internal/marketdata"
	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/portfolio"
	"github.com/banachtech/orex/internal/report"
	"github.com/banachtech/orex/internal/store"
	"github.com/banachtech/orex/internal/valuation"
	"github.com/banachtech/orex/internal/valuetype"
	"github.com/banachtech/orex/internal/xva"
)

// newRunID returns a random 16-byte hex id, the control-plane analogue of
// the teacher's util.RandomString identifiers.
func newRunID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Runner executes one submitted config XML end to end (market data →
// model → portfolio → cube → post-process → reports) and records the
// run's lifecycle in Store, mirroring the CLI's own pipeline so the HTTP
// API and `orex` share one code path rather than diverging.
type Runner struct {
	Store     store.Store
	OutputDir string // base directory each run's reports are written under
	Logger    *logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewRunner builds a Runner writing run output under outputDir.
func NewRunner(st store.Store, outputDir string, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard
	}
	return &Runner{Store: st, OutputDir: outputDir, Logger: logger, active: map[string]context.CancelFunc{}}
}

// Submit registers a new run for configPath and starts it asynchronously,
// returning the run id immediately (spec §6's "returns a run id").
func (rn *Runner) Submit(ctx context.Context, configPath string) (string, error) {
	id := newRunID()
	if _, err := rn.Store.CreateRun(ctx, id, configPath); err != nil {
		return "", err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	rn.mu.Lock()
	rn.active[id] = cancel
	rn.mu.Unlock()
	go rn.execute(runCtx, id, configPath)
	return id, nil
}

// Status returns the current lifecycle record for id.
func (rn *Runner) Status(ctx context.Context, id string) (store.Run, error) {
	return rn.Store.GetRun(ctx, id)
}

func (rn *Runner) execute(ctx context.Context, id, configPath string) {
	defer func() {
		rn.mu.Lock()
		delete(rn.active, id)
		rn.mu.Unlock()
	}()

	if _, err := rn.Store.UpdateRunStatus(ctx, store.UpdateRunStatusParams{ID: id, Status: store.RunRunning}); err != nil {
		rn.Logger.Errorf("run %s: update to running: %v", id, err)
	}

	reportDir := filepath.Join(rn.OutputDir, id)
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		rn.fail(ctx, id, err)
		return
	}

	if err := RunPipeline(configPath, reportDir, rn.Logger); err != nil {
		rn.fail(ctx, id, err)
		return
	}

	if _, err := rn.Store.UpdateRunStatus(ctx, store.UpdateRunStatusParams{
		ID: id, Status: store.RunCompleted, ReportDir: reportDir,
	}); err != nil {
		rn.Logger.Errorf("run %s: update to completed: %v", id, err)
	}
}

func (rn *Runner) fail(ctx context.Context, id string, err error) {
	rn.Logger.Errorf("run %s: %v", id, err)
	if _, uerr := rn.Store.UpdateRunStatus(ctx, store.UpdateRunStatusParams{
		ID: id, Status: store.RunFailed, Error: err.Error(),
	}); uerr != nil {
		rn.Logger.Errorf("run %s: update to failed: %v", id, uerr)
	}
}

// RunPipeline is the full cube-build-and-postprocess pipeline shared by
// the CLI entrypoint and the HTTP runner: parse config, load market data
// and fixings, build the Monte Carlo model, load the portfolio, run the
// valuation driver, post-process into exposures/XVA, and write reports
// into reportDir.
func RunPipeline(configPath, reportDir string, logger *logging.Logger) error {
	cfg, err := config.ParseFile(configPath)
	if err != nil {
		return err
	}
	asof, err := cfg.AsOfDate()
	if err != nil {
		return err
	}

	fixings := fixing.NewMemory()
	if mdf, ok := cfg.Setup.Get("marketDataFile"); ok && mdf != "" {
		quotes, err := marketdata.LoadFile(mdf)
		if err != nil {
			return err
		}
		marketdata.PopulateFixings(quotes, fixings)
	}
	if fdf, ok := cfg.Setup.Get("fixingDataFile"); ok && fdf != "" {
		quotes, err := marketdata.LoadFile(fdf)
		if err != nil {
			return err
		}
		marketdata.PopulateFixings(quotes, fixings)
	}

	mdl, dateGrid, err := model.BuildFromConfig(cfg, asof)
	if err != nil {
		return err
	}

	portfolioFile, _ := cfg.Setup.Get("portfolioFile")
	trades, err := portfolio.ParseFile(portfolioFile, mdl.Size())
	if err != nil {
		return err
	}

	storeFlows := cfg.Cashflow.Active()
	calculators := []valuation.Calculator{&valuation.NPVCalculator{Slot: 0}}
	if storeFlows {
		calculators = append(calculators, &valuation.CashflowCalculator{Slot: 1})
	}

	baseCcy := cfg.Setup.GetOrDefault("baseCurrency", "USD")
	driver := &valuation.Driver{
		Model:       mdl,
		Fixings:     fixings,
		BaseCcy:     baseCcy,
		DateGrid:    dateGrid,
		Calculators: calculators,
		StoreFlows:  storeFlows,
		ContextFor: func(t valuation.Trade) *valuetype.Context {
			if pt, ok := t.(*portfolio.Trade); ok {
				return pt.BindContext()
			}
			return valuetype.NewContext()
		},
	}
	cb, sd, _, err := driver.Run(trades)
	if err != nil {
		return err
	}

	if cubeOut, ok := cfg.NPV.Get("cubeOutputFile"); ok && cubeOut != "" {
		f, err := os.Create(filepath.Join(reportDir, cubeOut))
		if err != nil {
			return err
		}
		err = cb.Save(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	if !cfg.XVA.Active() {
		return nil
	}

	tradeNettingSet := map[string]string{}
	nettingSetSeen := map[string]bool{}
	var nettingSetIDs []string
	for _, t := range trades {
		ns := t.NettingSet()
		tradeNettingSet[t.ID()] = ns
		if !nettingSetSeen[ns] {
			nettingSetSeen[ns] = true
			nettingSetIDs = append(nettingSetIDs, ns)
		}
	}
	nettingSets, err := xva.BuildNettingSetConfigs(cfg.XVA, asof, nettingSetIDs)
	if err != nil {
		return err
	}
	in := xva.Inputs{
		Cube:            cb,
		BaseCcy:         baseCcy,
		Scenario:        sd,
		TradeNettingSet: tradeNettingSet,
		NettingSets:     nettingSets,
		DiscountFactor: func(t time.Time) float64 {
			df, err := mdl.Discount(mdl.ReferenceDate(), t, baseCcy)
			if err != nil {
				return 1
			}
			return df.At(0)
		},
	}
	in, err = xva.ApplyGlobalConfig(cfg.XVA, in)
	if err != nil {
		return err
	}
	pp, err := xva.New(in)
	if err != nil {
		return err
	}
	if err := pp.Run(); err != nil {
		return err
	}

	var rows []report.XVARow
	for _, ns := range pp.NettingSetIDs() {
		res, err := pp.Result(ns)
		if err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(reportDir, fmt.Sprintf("exposure_%s.csv", ns)))
		if err != nil {
			return err
		}
		err = report.WriteExposureReport(f, asof, res)
		f.Close()
		if err != nil {
			return err
		}
		rows = append(rows, report.NettingSetXVARows(ns, res)...)
	}
	f, err := os.Create(filepath.Join(reportDir, "xva.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	return report.WriteXVAReport(f, rows)
}
