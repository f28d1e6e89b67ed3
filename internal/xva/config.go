package xva

import (
	"strconv"
	"strings"
	"time"

	"github.com/banachtech/orex/internal/apperr"
	"github.com/banachtech/orex/internal/collateral"
	"github.com/banachtech/orex/internal/config"
)

// nettingSetFloat reads "nettingSet.<ns>.<field>" from the XVA config
// group, returning def when the key is absent.
func nettingSetFloat(g config.Group, ns, field string, def float64) (float64, error) {
	key := "nettingSet." + ns + "." + field
	v, ok := g.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, apperr.NewConfigError(key, err)
	}
	return f, nil
}

func nettingSetInt(g config.Group, ns, field string, def int) (int, error) {
	key := "nettingSet." + ns + "." + field
	v, ok := g.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.NewConfigError(key, err)
	}
	return n, nil
}

func nettingSetFlag(g config.Group, ns, field string) bool {
	v := g.GetOrDefault("nettingSet."+ns+"."+field, "")
	return v == "Y" || v == "y"
}

// BuildNettingSetConfigs reads per-netting-set CSA, credit curve, LGD and
// funding parameters from the XVA config group's dotted
// "nettingSet.<id>.<field>" keys (spec §6), for every netting set id in
// nettingSetIDs. A netting set with no dedicated entries gets the
// zero-value CSA (zero threshold, MTA and independent amount, a margin
// call at every grid step, no lag), so its collateral tracks the
// netting-set MTM from the first grid date on, and no credit curves (no
// CVA/DVA).
func BuildNettingSetConfigs(g config.Group, asof time.Time, nettingSetIDs []string) (map[string]NettingSetConfig, error) {
	out := make(map[string]NettingSetConfig, len(nettingSetIDs))
	for _, ns := range nettingSetIDs {
		cfg := NettingSetConfig{ID: ns}

		var csa collateral.CSA
		var err error
		if csa.Threshold, err = nettingSetFloat(g, ns, "csa.threshold", 0); err != nil {
			return nil, err
		}
		if csa.MinimumTransferAmount, err = nettingSetFloat(g, ns, "csa.mta", 0); err != nil {
			return nil, err
		}
		if csa.IndependentAmount, err = nettingSetFloat(g, ns, "csa.ia", 0); err != nil {
			return nil, err
		}
		if csa.MPORSteps, err = nettingSetInt(g, ns, "csa.mporSteps", 0); err != nil {
			return nil, err
		}
		if csa.FrequencySteps, err = nettingSetInt(g, ns, "csa.frequencySteps", 0); err != nil {
			return nil, err
		}
		calcType := g.GetOrDefault("nettingSet."+ns+".csa.calcType", "")
		if csa.CalcType, err = collateral.ParseCalculationType(calcType); err != nil {
			return nil, apperr.NewConfigError("nettingSet."+ns+".csa.calcType", err)
		}
		cfg.CSA = csa
		cfg.FullInitialCollateralisation = nettingSetFlag(g, ns, "fullInitialCollateralisation")

		ownHazard, err := nettingSetFloat(g, ns, "ownHazardRate", -1)
		if err != nil {
			return nil, err
		}
		if ownHazard >= 0 {
			cc, err := FlatCreditCurve(asof, asof.AddDate(50, 0, 0), ownHazard)
			if err != nil {
				return nil, apperr.NewConfigError("nettingSet."+ns+".ownHazardRate", err)
			}
			cfg.OwnCreditCurve = cc
		}
		cptyHazard, err := nettingSetFloat(g, ns, "counterpartyHazardRate", -1)
		if err != nil {
			return nil, err
		}
		if cptyHazard >= 0 {
			cc, err := FlatCreditCurve(asof, asof.AddDate(50, 0, 0), cptyHazard)
			if err != nil {
				return nil, apperr.NewConfigError("nettingSet."+ns+".counterpartyHazardRate", err)
			}
			cfg.CounterpartyCreditCurve = cc
		}

		if cfg.LGDOur, err = nettingSetFloat(g, ns, "lgdOur", 0.6); err != nil {
			return nil, err
		}
		if cfg.LGDCounterparty, err = nettingSetFloat(g, ns, "lgdCounterparty", 0.6); err != nil {
			return nil, err
		}
		if cfg.FundingSpreadOur, err = nettingSetFloat(g, ns, "fundingSpreadOur", 0); err != nil {
			return nil, err
		}
		if cfg.FundingSpreadTheir, err = nettingSetFloat(g, ns, "fundingSpreadTheir", 0); err != nil {
			return nil, err
		}
		cfg.FVASurvivalWeighted = nettingSetFlag(g, ns, "fvaSurvivalWeighted")
		if cfg.CollateralSpread, err = nettingSetFloat(g, ns, "collateralSpread", 0); err != nil {
			return nil, err
		}
		if cfg.CollateralFloorRate, err = nettingSetFloat(g, ns, "collateralFloorRate", 0); err != nil {
			return nil, err
		}
		cfg.DIMEnabled = nettingSetFlag(g, ns, "dimEnabled")

		out[ns] = cfg
	}
	return out, nil
}

// ParseAllocationMethod parses the XVA config group's "allocationMethod"
// value (spec §4.6 step 7); an empty string defaults to AllocationNone.
func ParseAllocationMethod(s string) (AllocationMethod, error) {
	switch s {
	case "", "None":
		return AllocationNone, nil
	case "Marginal":
		return AllocationMarginal, nil
	case "RelativeFairValueGross":
		return AllocationRelativeFairValueGross, nil
	case "RelativeFairValueNet":
		return AllocationRelativeFairValueNet, nil
	case "RelativeXVA":
		return AllocationRelativeXVA, nil
	default:
		return 0, apperr.NewConfigError("allocationMethod", unknownAllocationError(s))
	}
}

type unknownAllocationError string

func (e unknownAllocationError) Error() string { return "unknown allocation method: " + string(e) }

// ApplyGlobalConfig reads the XVA config group's run-wide settings
// (allocation method, PFE quantile, KVA enable/parameters, sensitivity
// grid) into in, leaving Cube/BaseCcy/TradeNettingSet/NettingSets/
// Scenario/DiscountFactor untouched.
func ApplyGlobalConfig(g config.Group, in Inputs) (Inputs, error) {
	method, err := ParseAllocationMethod(g.GetOrDefault("allocationMethod", ""))
	if err != nil {
		return in, err
	}
	in.Allocation = method

	if v, ok := g.Get("marginalAllocationLimit"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apperr.NewConfigError("marginalAllocationLimit", err)
		}
		in.MarginalAllocationLimit = f
	}
	if v, ok := g.Get("quantile"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apperr.NewConfigError("quantile", err)
		}
		in.Quantile = f
	}
	in.KVAEnabled = g.GetOrDefault("kvaEnabled", "") == "Y"
	if v, ok := g.Get("kva.capitalDiscountRate"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apperr.NewConfigError("kva.capitalDiscountRate", err)
		}
		in.KVA.CapitalDiscountRate = f
	}
	if v, ok := g.Get("kva.alpha"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apperr.NewConfigError("kva.alpha", err)
		}
		in.KVA.Alpha = f
	}
	if v, ok := g.Get("kva.regAdjustment"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apperr.NewConfigError("kva.regAdjustment", err)
		}
		in.KVA.RegAdjustment = f
	}
	if v, ok := g.Get("kva.capitalHurdle"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apperr.NewConfigError("kva.capitalHurdle", err)
		}
		in.KVA.CapitalHurdle = f
	}
	if v, ok := g.Get("sensiShift"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apperr.NewConfigError("sensiShift", err)
		}
		in.SensiShift = f
	}
	if v, ok := g.Get("sensiGrid"); ok && v != "" {
		grid, err := parseFloatList(v)
		if err != nil {
			return in, apperr.NewConfigError("sensiGrid", err)
		}
		in.SensiGrid = grid
	}
	return in, nil
}

func parseFloatList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
