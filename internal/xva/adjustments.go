package xva

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// integral computes the trapezoidal sum Σ 0.5*(v[t-1]*df(t-1)+v[t]*df(t))*Δt
// for t=1..len(v)-1, matching spec §4.6's CVA/DVA/FVA formulas.
func integral(dates []time.Time, v []float64, df func(time.Time) float64) float64 {
	var total float64
	for t := 1; t < len(dates); t++ {
		dt := yearFrac(dates[t-1], dates[t])
		total += 0.5 * (v[t-1]*df(dates[t-1]) + v[t]*df(dates[t])) * dt
	}
	return total
}

// creditWeightedIntegral weights the trapezoidal sum by the default
// probability realized over each interval, per the CVA/DVA formula of spec
// §4.6 step 5: Σ LGD · PD(t-1,t) · 0.5·(v(t-1)·DF(t-1)+v(t)·DF(t)).
func creditWeightedIntegral(dates []time.Time, v []float64, df func(time.Time) float64, curve *CreditCurve, lgd float64) float64 {
	var total float64
	for t := 1; t < len(dates); t++ {
		pd := curve.DefaultProbability(dates[t-1], dates[t])
		total += lgd * pd * 0.5 * (v[t-1]*df(dates[t-1]) + v[t]*df(dates[t]))
	}
	return total
}

func (p *PostProcess) computeXVA(ns string, res *NettingSetResult, paths *nettingSetPaths) error {
	cfg := p.in.NettingSets[ns]
	df := p.in.DiscountFactor

	if cfg.CounterpartyCreditCurve != nil {
		res.CVA = creditWeightedIntegral(res.Dates, res.EPE, df, cfg.CounterpartyCreditCurve, cfg.LGDCounterparty)
	}
	if cfg.OwnCreditCurve != nil {
		res.DVA = creditWeightedIntegral(res.Dates, res.ENE, df, cfg.OwnCreditCurve, cfg.LGDOur)
	}

	res.FCA, res.FBA = fundingAdjustments(res.Dates, res.EPE, res.ENE, df, cfg)

	expectedCollateral := make([]float64, len(res.Dates))
	for di := range res.Dates {
		samples := make([]float64, len(paths.coll))
		for s := range paths.coll {
			samples[s] = paths.coll[s][di]
		}
		expectedCollateral[di] = stat.Mean(samples, nil)
	}
	res.ExpectedCollateral = expectedCollateral
	res.COLVA = cfg.CollateralSpread * integral(res.Dates, expectedCollateral, df)

	if cfg.DIMEnabled {
		expectedIM := make([]float64, len(res.Dates))
		for i, c := range expectedCollateral {
			expectedIM[i] = absf(c)
		}
		res.MVA = cfg.FundingSpreadOur * integral(res.Dates, expectedIM, df)
	}

	if cfg.CollateralFloorRate != 0 {
		shortfall := make([]float64, len(res.Dates))
		for i, c := range expectedCollateral {
			shortfall[i] = maxf(-c, 0)
		}
		res.CollateralFloor = cfg.CollateralFloorRate * integral(res.Dates, shortfall, df)
	}

	return nil
}

// fundingAdjustments computes FCA (cost of funding net positive exposure,
// at our own funding spread) and FBA (benefit of funding net negative
// exposure, at the counterparty's funding spread — we are effectively
// funded by them over that interval), optionally weighted by the netting
// set's own survival probability — the "with/without survival probability"
// variants of spec §4.6 step 5.
func fundingAdjustments(dates []time.Time, epe, ene []float64, df func(time.Time) float64, cfg NettingSetConfig) (fca, fba float64) {
	weightedDF := df
	if cfg.FVASurvivalWeighted && cfg.OwnCreditCurve != nil {
		curve := cfg.OwnCreditCurve
		weightedDF = func(t time.Time) float64 { return df(t) * curve.SurvivalProbability(t) }
	}
	fca = cfg.FundingSpreadOur * integral(dates, epe, weightedDF)
	fba = cfg.FundingSpreadTheir * integral(dates, ene, weightedDF)
	return fca, fba
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// sensitivities computes the CVA spread sensitivity grid of spec §4.6 step
// 6: bump the counterparty hazard curve at each pillar by SensiShift and
// re-run the CVA integral.
func (p *PostProcess) sensitivities(ns string, res *NettingSetResult) []float64 {
	cfg := p.in.NettingSets[ns]
	out := make([]float64, len(p.in.SensiGrid))
	if cfg.CounterpartyCreditCurve == nil {
		return out
	}
	for i, tenor := range p.in.SensiGrid {
		bumped := cfg.CounterpartyCreditCurve.BumpedAtTenor(tenor, p.in.SensiShift)
		bumpedCVA := creditWeightedIntegral(res.Dates, res.EPE, p.in.DiscountFactor, bumped, cfg.LGDCounterparty)
		out[i] = bumpedCVA - res.CVA
	}
	return out
}

// updateStandAloneXVA is the first state-machine stage of spec §4.6: build
// netting set exposure profiles and their stand-alone XVA figures, before
// any capital or allocation calculation.
func (p *PostProcess) updateStandAloneXVA() error {
	for _, ns := range p.nettingSets {
		paths, err := p.buildNettingSetPaths(ns)
		if err != nil {
			return err
		}
		res, err := p.exposureProfile(ns, paths)
		if err != nil {
			return err
		}
		if err := p.computeXVA(ns, res, paths); err != nil {
			return err
		}
		res.CVASensitivities = p.sensitivities(ns, res)
		p.results[ns] = res
	}
	return nil
}
