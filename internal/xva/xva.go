// Package xva implements PostProcess (spec §4.6): the netting, collateral
// and exposure aggregation step that turns a valuation driver's NPV cube
// into exposure profiles, CVA/DVA/FVA/MVA/COLVA, optional KVA capital
// charges, CVA spread sensitivities, and trade-level XVA allocation.
package xva

import (
	"fmt"
	"sort"
	"time"

	"github.com/banachtech/orex/internal/apperr"
	"github.com/banachtech/orex/internal/collateral"
	"github.com/banachtech/orex/internal/cube"
	"github.com/banachtech/orex/internal/scenario"
)

// AllocationMethod selects how netting-set-level CVA/DVA are split across
// member trades (spec §4.6 step 7).
type AllocationMethod int

const (
	AllocationNone AllocationMethod = iota
	AllocationMarginal
	AllocationRelativeFairValueGross
	AllocationRelativeFairValueNet
	AllocationRelativeXVA
)

// DefaultSensiGrid is the CVA spread sensitivity pillar grid, expressed as
// year fractions from the as-of date: {6M, 1Y, 3Y, 5Y, 10Y}.
var DefaultSensiGrid = []float64{0.5, 1, 3, 5, 10}

// DefaultSensiShift is the hazard-rate bump applied at each sensitivity
// pillar, 1bp.
const DefaultSensiShift = 0.0001

// DefaultQuantile is the PFE confidence level.
const DefaultQuantile = 0.95

// KVAParams are the regulatory-capital parameters driving the optional KVA
// (CCR and CVA) charges, taken from the constructor defaults this package's
// KVA formula is modeled on.
type KVAParams struct {
	CapitalDiscountRate float64
	Alpha               float64
	RegAdjustment       float64
	CapitalHurdle       float64
	OurPdFloor          float64
	TheirPdFloor        float64
	OurCvaRiskWeight    float64
	TheirCvaRiskWeight  float64
}

// DefaultKVAParams returns the zero-value defaults named in this package's
// design documentation.
func DefaultKVAParams() KVAParams {
	return KVAParams{
		CapitalDiscountRate: 0.10,
		Alpha:               1.4,
		RegAdjustment:       12.5,
		CapitalHurdle:       0.012,
		OurPdFloor:          0.03,
		TheirPdFloor:        0.03,
		OurCvaRiskWeight:    0.05,
		TheirCvaRiskWeight:  0.05,
	}
}

func (p KVAParams) withDefaults() KVAParams {
	d := DefaultKVAParams()
	if p.CapitalDiscountRate == 0 {
		p.CapitalDiscountRate = d.CapitalDiscountRate
	}
	if p.Alpha == 0 {
		p.Alpha = d.Alpha
	}
	if p.RegAdjustment == 0 {
		p.RegAdjustment = d.RegAdjustment
	}
	if p.CapitalHurdle == 0 {
		p.CapitalHurdle = d.CapitalHurdle
	}
	if p.OurPdFloor == 0 {
		p.OurPdFloor = d.OurPdFloor
	}
	if p.TheirPdFloor == 0 {
		p.TheirPdFloor = d.TheirPdFloor
	}
	if p.OurCvaRiskWeight == 0 {
		p.OurCvaRiskWeight = d.OurCvaRiskWeight
	}
	if p.TheirCvaRiskWeight == 0 {
		p.TheirCvaRiskWeight = d.TheirCvaRiskWeight
	}
	return p
}

// NettingSetConfig is one netting set's CSA, credit curves and funding
// parameters.
type NettingSetConfig struct {
	ID                           string
	CSA                          collateral.CSA
	FullInitialCollateralisation bool

	OwnCreditCurve          *CreditCurve
	CounterpartyCreditCurve *CreditCurve

	LGDOur, LGDCounterparty               float64
	FundingSpreadOur, FundingSpreadTheir  float64
	FVASurvivalWeighted                   bool
	CollateralSpread, CollateralFloorRate float64
	DIMEnabled                            bool
}

// Inputs are everything PostProcess needs, constructed once up front (the
// "constructed-with-inputs" state of spec §4.6's state machine).
type Inputs struct {
	Cube    *cube.Cube
	BaseCcy string

	// Scenario is the AggregationScenarioData store the valuation driver
	// populated alongside Cube (spec §3). When non-nil, New verifies its
	// date and sample dimensions agree with Cube's (spec §8 invariant 4)
	// before any exposure is computed.
	Scenario *scenario.Data

	// TradeNettingSet maps each cube trade id to the netting set it belongs
	// to; every cube trade id must appear.
	TradeNettingSet map[string]string
	NettingSets     map[string]NettingSetConfig

	// DiscountFactor(t) returns the base-currency discount factor from
	// the as-of date to t; used by the XVA integrals, independently of
	// whatever numeraire is already embedded in the cube's NPVs.
	DiscountFactor func(t time.Time) float64

	Quantile                 float64
	Allocation               AllocationMethod
	MarginalAllocationLimit  float64
	KVA                      KVAParams
	KVAEnabled               bool
	SensiGrid                []float64
	SensiShift               float64
}

func (in Inputs) withDefaults() Inputs {
	if in.Quantile == 0 {
		in.Quantile = DefaultQuantile
	}
	if len(in.SensiGrid) == 0 {
		in.SensiGrid = DefaultSensiGrid
	}
	if in.SensiShift == 0 {
		in.SensiShift = DefaultSensiShift
	}
	in.KVA = in.KVA.withDefaults()
	return in
}

// NettingSetResult is one netting set's fully computed exposure and XVA
// profile, valid only after PostProcess.Run has returned successfully.
type NettingSetResult struct {
	Dates                                   []time.Time
	EPE, ENE, EEB, EEEB, PFE, ExpectedCollateral []float64
	EEPEB                                   float64

	CVA, DVA, FBA, FCA, MVA, COLVA, CollateralFloor float64
	KVACCR, KVACVA                                  float64

	CVASensitivities []float64 // one per SensiGrid pillar

	AllocatedCVA, AllocatedDVA map[string]float64 // trade id -> value
}

// PostProcess is the netting/collateral/exposure/XVA aggregation pipeline
// (spec §4.6). Its accessors are only valid once Run has completed; the
// zero value is unusable — build one with New.
type PostProcess struct {
	in          Inputs
	nettingSets []string
	tradesOf    map[string][]string

	results map[string]*NettingSetResult
	done    bool
}

// New validates inputs and returns a PostProcess ready to Run. This is the
// "constructed-with-inputs" stage of spec §4.6's state machine.
func New(in Inputs) (*PostProcess, error) {
	in = in.withDefaults()
	if in.Cube == nil {
		return nil, apperr.NewAggregationError("New", fmt.Errorf("cube is required"))
	}
	if in.DiscountFactor == nil {
		return nil, apperr.NewAggregationError("New", fmt.Errorf("discount factor function is required"))
	}
	if in.Scenario != nil && !in.Scenario.DimensionsMatch(in.Cube.NumDates(), in.Cube.NumSamples()) {
		return nil, apperr.NewAggregationError("New", fmt.Errorf(
			"scenario dimensions (%d dates, %d samples) do not match cube dimensions (%d dates, %d samples)",
			in.Scenario.NumDates(), in.Scenario.NumSamples(), in.Cube.NumDates(), in.Cube.NumSamples()))
	}
	tradesOf := map[string][]string{}
	for _, tradeID := range in.Cube.TradeIDs() {
		ns, ok := in.TradeNettingSet[tradeID]
		if !ok {
			return nil, apperr.NewAggregationError("New", fmt.Errorf("trade %q has no netting set assignment", tradeID))
		}
		if _, ok := in.NettingSets[ns]; !ok {
			return nil, apperr.NewAggregationError("New", fmt.Errorf("trade %q assigned to unknown netting set %q", tradeID, ns))
		}
		tradesOf[ns] = append(tradesOf[ns], tradeID)
	}
	nettingSets := make([]string, 0, len(tradesOf))
	for ns := range tradesOf {
		nettingSets = append(nettingSets, ns)
	}
	sort.Strings(nettingSets)
	for _, ts := range tradesOf {
		sort.Strings(ts)
	}
	return &PostProcess{in: in, nettingSets: nettingSets, tradesOf: tradesOf, results: map[string]*NettingSetResult{}}, nil
}

// NettingSetIDs returns the sorted netting set ids discovered from the
// portfolio.
func (p *PostProcess) NettingSetIDs() []string { return append([]string(nil), p.nettingSets...) }

// Result returns the fully computed result for a netting set. It errors if
// Run has not completed.
func (p *PostProcess) Result(nettingSet string) (*NettingSetResult, error) {
	if !p.done {
		return nil, apperr.NewAggregationError("Result", fmt.Errorf("PostProcess.Run has not completed"))
	}
	r, ok := p.results[nettingSet]
	if !ok {
		return nil, apperr.NewAggregationError("Result", fmt.Errorf("unknown netting set %q", nettingSet))
	}
	return r, nil
}

// Run executes the full state machine: updateStandAloneXVA, then
// updateNettingSetKVA, then updateAllocatedXVA, per spec §4.6.
func (p *PostProcess) Run() error {
	if err := p.updateStandAloneXVA(); err != nil {
		return err
	}
	if err := p.updateNettingSetKVA(); err != nil {
		return err
	}
	if err := p.updateAllocatedXVA(); err != nil {
		return err
	}
	p.done = true
	return nil
}
