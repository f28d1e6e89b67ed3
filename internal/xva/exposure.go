package xva

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banachtech/orex/internal/apperr"
	"github.com/banachtech/orex/internal/collateral"
)

// nettingSetPaths holds, for one netting set, the per-sample MTM series
// (index 0 is the as-of date, indices 1..N are the cube's date grid) and
// the per-sample collateral balance series evolved from it.
type nettingSetPaths struct {
	dates []time.Time // asof + cube date grid, len = cube.NumDates()+1
	mtm   [][]float64 // [sample][dateIdx]
	coll  [][]float64 // [sample][dateIdx]
}

func (p *PostProcess) buildNettingSetPaths(ns string) (*nettingSetPaths, error) {
	cb := p.in.Cube
	dateGrid := cb.Dates()
	dates := append([]time.Time{cb.AsOfDate()}, dateGrid...)
	samples := cb.NumSamples()

	mtm := make([][]float64, samples)
	for s := range mtm {
		mtm[s] = make([]float64, len(dates))
	}

	trades := p.tradesOf[ns]
	for _, tradeID := range trades {
		t0, err := cb.GetT0(tradeID, 0)
		if err != nil {
			return nil, apperr.NewAggregationError("buildNettingSetPaths", err)
		}
		for s := 0; s < samples; s++ {
			mtm[s][0] += t0
		}
		for di, d := range dateGrid {
			for s := 0; s < samples; s++ {
				v, err := cb.Get(tradeID, d, s, 0)
				if err != nil {
					return nil, apperr.NewAggregationError("buildNettingSetPaths", err)
				}
				mtm[s][di+1] += v
			}
		}
	}

	cfg := p.in.NettingSets[ns]
	coll := make([][]float64, samples)
	for s := 0; s < samples; s++ {
		acc, err := collateral.Evolve(cfg.CSA, mtm[s], cfg.FullInitialCollateralisation)
		if err != nil {
			return nil, apperr.NewAggregationError("buildNettingSetPaths", err)
		}
		coll[s] = acc.Balance
	}

	return &nettingSetPaths{dates: dates, mtm: mtm, coll: coll}, nil
}

// exposureProfile computes EPE/ENE/EE_B/EEE_B/PFE/EEPE_B from the netting
// set's MTM and collateral paths (spec §4.6 steps 3-4).
func (p *PostProcess) exposureProfile(ns string, paths *nettingSetPaths) (*NettingSetResult, error) {
	cfg := p.in.NettingSets[ns]
	nDates := len(paths.dates)
	samples := len(paths.mtm)

	epe := make([]float64, nDates)
	ene := make([]float64, nDates)
	pfe := make([]float64, nDates)

	for di := range paths.dates {
		epeSamples := make([]float64, samples)
		eneSamples := make([]float64, samples)
		for s := 0; s < samples; s++ {
			epeSamples[s], eneSamples[s] = collateral.ExposureAfterCollateral(paths.mtm[s][di], paths.coll[s][di])
		}
		epe[di] = stat.Mean(epeSamples, nil)
		ene[di] = stat.Mean(eneSamples, nil)
		sort.Float64s(epeSamples)
		pfe[di] = stat.Quantile(p.in.Quantile, stat.LinInterp, epeSamples, nil)
	}

	eeb := make([]float64, nDates)
	eeeb := make([]float64, nDates)
	for di, d := range paths.dates {
		survivalWeightedDF := p.in.DiscountFactor(d)
		if cfg.CounterpartyCreditCurve != nil {
			survivalWeightedDF *= cfg.CounterpartyCreditCurve.SurvivalProbability(d)
		}
		if survivalWeightedDF <= 0 {
			return nil, apperr.NewAggregationError("exposureProfile", fmt.Errorf("non-positive default-probability-weighted discount factor at %s", d))
		}
		eeb[di] = epe[di] / survivalWeightedDF
		if di == 0 {
			eeeb[di] = eeb[di]
		} else {
			eeeb[di] = eeeb[di-1]
			if eeb[di] > eeeb[di] {
				eeeb[di] = eeb[di]
			}
		}
	}

	eepeB := timeWeightedMeanOverFirstYear(paths.dates, eeeb)

	return &NettingSetResult{
		Dates: append([]time.Time(nil), paths.dates...),
		EPE:   epe, ENE: ene, EEB: eeb, EEEB: eeeb, PFE: pfe,
		EEPEB: eepeB,
	}, nil
}

func timeWeightedMeanOverFirstYear(dates []time.Time, series []float64) float64 {
	if len(dates) == 0 {
		return 0
	}
	asof := dates[0]
	cutoff := asof.AddDate(1, 0, 0)
	var weighted, totalWeight float64
	for i := 1; i < len(dates); i++ {
		if dates[i-1].After(cutoff) {
			break
		}
		segEnd := dates[i]
		if segEnd.After(cutoff) {
			segEnd = cutoff
		}
		dt := yearFrac(dates[i-1], segEnd)
		if dt <= 0 {
			continue
		}
		avg := 0.5 * (series[i-1] + series[i])
		weighted += avg * dt
		totalWeight += dt
	}
	if totalWeight == 0 {
		return series[0]
	}
	return weighted / totalWeight
}
