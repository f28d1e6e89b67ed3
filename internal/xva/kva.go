package xva

import (
	"math"
	"time"
)

// updateNettingSetKVA is the second state-machine stage of spec §4.6:
// optional KVA (CCR and CVA) regulatory capital charges, computed from
// the exposure profiles updateStandAloneXVA already produced.
//
// The capital formula follows the regulatory shape named by KVAParams:
// discount expected regulatory capital at CapitalDiscountRate, where
// capital at each date is RegAdjustment · Alpha · exposure · PD ·
// riskWeight. The CCR leg uses the counterparty's floored PD and
// TheirCvaRiskWeight; the CVA leg uses our own floored PD and
// OurCvaRiskWeight. No internal EAD/DIM calculator exists in this repository,
// so EAD is proxied by EPE(t) directly (Alpha already captures the
// regulatory EAD multiplier); this simplification is recorded in the
// design ledger.
func (p *PostProcess) updateNettingSetKVA() error {
	if !p.in.KVAEnabled {
		return nil
	}
	params := p.in.KVA
	capitalDF := func(t time.Time) float64 {
		return math.Exp(-params.CapitalDiscountRate * yearFrac(p.in.Cube.AsOfDate(), t))
	}
	for _, ns := range p.nettingSets {
		res := p.results[ns]
		cfg := p.in.NettingSets[ns]

		theirPD := 1.0
		if cfg.CounterpartyCreditCurve != nil && len(res.Dates) > 0 {
			theirPD = 1 - cfg.CounterpartyCreditCurve.SurvivalProbability(res.Dates[len(res.Dates)-1])
		}
		theirPD = math.Max(theirPD, params.TheirPdFloor)

		ourPD := 1.0
		if cfg.OwnCreditCurve != nil && len(res.Dates) > 0 {
			ourPD = 1 - cfg.OwnCreditCurve.SurvivalProbability(res.Dates[len(res.Dates)-1])
		}
		ourPD = math.Max(ourPD, params.OurPdFloor)

		ccrCapital := make([]float64, len(res.Dates))
		for i, epe := range res.EPE {
			ccrCapital[i] = params.RegAdjustment * params.Alpha * epe * theirPD * params.TheirCvaRiskWeight
		}
		res.KVACCR = params.CapitalHurdle * integral(res.Dates, ccrCapital, capitalDF)

		cvaCapital := make([]float64, len(res.Dates))
		for i, epe := range res.EPE {
			cvaCapital[i] = params.RegAdjustment * params.Alpha * epe * ourPD * params.OurCvaRiskWeight
		}
		res.KVACVA = params.CapitalHurdle * integral(res.Dates, cvaCapital, capitalDF)
	}
	return nil
}
