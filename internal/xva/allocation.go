package xva

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banachtech/orex/internal/apperr"
)

// tradeMTMPaths returns, for one trade, its per-sample MTM series aligned
// with nettingSetPaths.dates (as-of value then the cube date grid).
func (p *PostProcess) tradeMTMPaths(tradeID string) ([][]float64, error) {
	cb := p.in.Cube
	dateGrid := cb.Dates()
	samples := cb.NumSamples()
	out := make([][]float64, samples)
	for s := range out {
		out[s] = make([]float64, len(dateGrid)+1)
	}
	t0, err := cb.GetT0(tradeID, 0)
	if err != nil {
		return nil, err
	}
	for s := range out {
		out[s][0] = t0
	}
	for di, d := range dateGrid {
		for s := 0; s < samples; s++ {
			v, err := cb.Get(tradeID, d, s, 0)
			if err != nil {
				return nil, err
			}
			out[s][di+1] = v
		}
	}
	return out, nil
}

// marginalShare computes trade-by-trade marginal allocation weights for one
// date index via Pykhtin-Rosen: the covariance of each trade's MTM with the
// netting-set MTM, normalized by the netting-set MTM's variance, reverting
// to an equal split when the resulting weight is immaterial (spec §4.6
// step 7's MarginalAllocationLimit).
func marginalShare(tradeMTM [][]float64, nettingSetMTM []float64, limit float64) []float64 {
	n := len(tradeMTM)
	_, nsVar := stat.MeanVariance(nettingSetMTM, nil)
	weights := make([]float64, n)
	if nsVar <= 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
		return weights
	}
	total := 0.0
	for i := range tradeMTM {
		weights[i] = covariance(tradeMTM[i], nettingSetMTM) / nsVar
		total += weights[i]
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
		return weights
	}
	allEqual := true
	for _, w := range weights {
		if absf(w/total) >= limit {
			allEqual = false
			break
		}
	}
	if allEqual {
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func covariance(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	meanA, meanB := stat.Mean(a, nil), stat.Mean(b, nil)
	var sum float64
	for i := range a {
		sum += (a[i] - meanA) * (b[i] - meanB)
	}
	return sum / float64(n)
}

// updateAllocatedXVA is the third state-machine stage of spec §4.6: split
// each netting set's CVA/DVA across its member trades.
func (p *PostProcess) updateAllocatedXVA() error {
	for _, ns := range p.nettingSets {
		res := p.results[ns]
		trades := p.tradesOf[ns]
		res.AllocatedCVA = map[string]float64{}
		res.AllocatedDVA = map[string]float64{}

		if p.in.Allocation == AllocationNone || len(trades) == 0 {
			for _, tr := range trades {
				res.AllocatedCVA[tr] = 0
				res.AllocatedDVA[tr] = 0
			}
			continue
		}

		switch p.in.Allocation {
		case AllocationMarginal:
			if err := p.allocateMarginal(ns, res, trades); err != nil {
				return err
			}
		case AllocationRelativeFairValueGross:
			if err := p.allocateRelativeFairValueGross(ns, res, trades); err != nil {
				return err
			}
		case AllocationRelativeFairValueNet:
			if err := p.allocateRelativeFairValueNet(ns, res, trades); err != nil {
				return err
			}
		case AllocationRelativeXVA:
			if err := p.allocateRelativeXVA(ns, res, trades); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *PostProcess) allocateMarginal(ns string, res *NettingSetResult, trades []string) error {
	paths, err := p.buildNettingSetPaths(ns)
	if err != nil {
		return err
	}
	samples := len(paths.mtm)
	nsMTM := make([]float64, samples)

	tradeMTM := make(map[string][][]float64, len(trades))
	for _, tr := range trades {
		m, err := p.tradeMTMPaths(tr)
		if err != nil {
			return apperr.NewAggregationError("allocateMarginal", err)
		}
		tradeMTM[tr] = m
	}

	cfg := p.in.NettingSets[ns]
	df := p.in.DiscountFactor
	cvaContrib := make([]float64, len(res.Dates)) // cvaContrib[t] is the (t-1,t] interval's contribution
	dvaContrib := make([]float64, len(res.Dates))
	for t := 1; t < len(res.Dates); t++ {
		if cfg.CounterpartyCreditCurve != nil {
			pd := cfg.CounterpartyCreditCurve.DefaultProbability(res.Dates[t-1], res.Dates[t])
			cvaContrib[t] = cfg.LGDCounterparty * pd * 0.5 * (res.EPE[t-1]*df(res.Dates[t-1]) + res.EPE[t]*df(res.Dates[t]))
		}
		if cfg.OwnCreditCurve != nil {
			pd := cfg.OwnCreditCurve.DefaultProbability(res.Dates[t-1], res.Dates[t])
			dvaContrib[t] = cfg.LGDOur * pd * 0.5 * (res.ENE[t-1]*df(res.Dates[t-1]) + res.ENE[t]*df(res.Dates[t]))
		}
	}

	totalCVA := make(map[string]float64, len(trades))
	totalDVA := make(map[string]float64, len(trades))
	for di := range res.Dates {
		for s := 0; s < samples; s++ {
			nsMTM[s] = paths.mtm[s][di]
		}
		series := make([][]float64, len(trades))
		for i, tr := range trades {
			col := make([]float64, samples)
			for s := 0; s < samples; s++ {
				col[s] = tradeMTM[tr][s][di]
			}
			series[i] = col
		}
		weights := marginalShare(series, nsMTM, p.in.MarginalAllocationLimit)
		for i, tr := range trades {
			totalCVA[tr] += weights[i] * cvaContrib[di]
			totalDVA[tr] += weights[i] * dvaContrib[di]
		}
	}
	for _, tr := range trades {
		res.AllocatedCVA[tr] = totalCVA[tr]
		res.AllocatedDVA[tr] = totalDVA[tr]
	}
	return nil
}

func (p *PostProcess) allocateRelativeFairValueGross(ns string, res *NettingSetResult, trades []string) error {
	cb := p.in.Cube
	npv := make(map[string]float64, len(trades))
	var sumAbs float64
	for _, tr := range trades {
		v, err := cb.GetT0(tr, 0)
		if err != nil {
			return apperr.NewAggregationError("allocateRelativeFairValueGross", err)
		}
		npv[tr] = v
		sumAbs += v
	}
	if sumAbs == 0 {
		return apperr.NewAggregationError("allocateRelativeFairValueGross", errZeroDenominator("sum of trade NPVs"))
	}
	netEPE := 0.0
	if len(res.EPE) > 0 {
		netEPE = res.EPE[0]
	}
	for _, tr := range trades {
		share := netEPE * npv[tr] / sumAbs
		res.AllocatedCVA[tr] = share * ratio(res.CVA, netEPE)
		res.AllocatedDVA[tr] = share * ratio(res.DVA, netEPE)
	}
	return nil
}

func (p *PostProcess) allocateRelativeFairValueNet(ns string, res *NettingSetResult, trades []string) error {
	cb := p.in.Cube
	npv := make(map[string]float64, len(trades))
	var sumPos, sumNeg float64
	for _, tr := range trades {
		v, err := cb.GetT0(tr, 0)
		if err != nil {
			return apperr.NewAggregationError("allocateRelativeFairValueNet", err)
		}
		npv[tr] = v
		if v > 0 {
			sumPos += v
		} else {
			sumNeg += -v
		}
	}
	for _, tr := range trades {
		if npv[tr] > 0 {
			if sumPos == 0 {
				return apperr.NewAggregationError("allocateRelativeFairValueNet", errZeroDenominator("sum of positive trade NPVs"))
			}
			res.AllocatedCVA[tr] = res.CVA * npv[tr] / sumPos
			res.AllocatedDVA[tr] = 0
		} else if npv[tr] < 0 {
			if sumNeg == 0 {
				return apperr.NewAggregationError("allocateRelativeFairValueNet", errZeroDenominator("sum of negative trade NPVs"))
			}
			res.AllocatedDVA[tr] = res.DVA * (-npv[tr]) / sumNeg
			res.AllocatedCVA[tr] = 0
		}
	}
	return nil
}

func (p *PostProcess) allocateRelativeXVA(ns string, res *NettingSetResult, trades []string) error {
	standAloneCVA := make(map[string]float64, len(trades))
	standAloneDVA := make(map[string]float64, len(trades))
	var sumCVA, sumDVA float64
	cfg := p.in.NettingSets[ns]
	df := p.in.DiscountFactor

	for _, tr := range trades {
		m, err := p.tradeMTMPaths(tr)
		if err != nil {
			return apperr.NewAggregationError("allocateRelativeXVA", err)
		}
		epe := make([]float64, len(res.Dates))
		ene := make([]float64, len(res.Dates))
		for di := range res.Dates {
			samples := make([]float64, len(m))
			for s := range m {
				samples[s] = m[s][di]
			}
			for _, v := range samples {
				if v > 0 {
					epe[di] += v
				} else {
					ene[di] += -v
				}
			}
			epe[di] /= float64(len(samples))
			ene[di] /= float64(len(samples))
		}
		if cfg.CounterpartyCreditCurve != nil {
			standAloneCVA[tr] = creditWeightedIntegral(res.Dates, epe, df, cfg.CounterpartyCreditCurve, cfg.LGDCounterparty)
		}
		if cfg.OwnCreditCurve != nil {
			standAloneDVA[tr] = creditWeightedIntegral(res.Dates, ene, df, cfg.OwnCreditCurve, cfg.LGDOur)
		}
		sumCVA += standAloneCVA[tr]
		sumDVA += standAloneDVA[tr]
	}

	for _, tr := range trades {
		if sumCVA == 0 {
			res.AllocatedCVA[tr] = 0
		} else {
			res.AllocatedCVA[tr] = res.CVA * standAloneCVA[tr] / sumCVA
		}
		if sumDVA == 0 {
			res.AllocatedDVA[tr] = 0
		} else {
			res.AllocatedDVA[tr] = res.DVA * standAloneDVA[tr] / sumDVA
		}
	}
	return nil
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

type zeroDenominatorError struct{ what string }

func (e zeroDenominatorError) Error() string { return "xva: zero denominator: " + e.what }

func errZeroDenominator(what string) error { return zeroDenominatorError{what: what} }
