// Package model defines the pricing-model capability interface the script
// engine drives (spec §4.3), plus a Monte Carlo cross-asset implementation
// adapted from the teacher's mc package.
package model

import (
	"time"

	"github.com/banachtech/orex/internal/randvar"
)

// Type distinguishes the evaluation regime a Model supports.
type Type int

const (
	MonteCarlo Type = iota
	FiniteDifference
)

// FwdCompAvgParams bundles the optional-block parameters of the
// fwdComp/fwdAvg builtin (spec §4.4). Optional blocks must be supplied in
// full or not at all; the script engine enforces that before calling in.
type FwdCompAvgParams struct {
	IsAverage bool
	Index     string
	Obs       time.Time
	Start     time.Time
	End       time.Time

	HasSpreadGearing bool
	Spread, Gearing  float64

	HasLookback            bool
	Lookback               int
	RateCutoff, FixingDays int
	IncludeSpread          bool

	HasCapFloor               bool
	Cap, Floor                float64
	NakedOption, LocalCapFloor bool
}

// NPVOptions bundles the optional arguments of npv/npvmem (spec §4.4).
type NPVOptions struct {
	RegressionFilter           *randvar.Filter
	MemorySlot                 *int
	AddRegressor1, AddRegressor2 *randvar.RandomVariable
}

// Model is the capability set the interpreter calls into. Every returned
// RandomVariable must have length Size().
type Model interface {
	Size() int
	ReferenceDate() time.Time
	Dt(from, to time.Time) float64

	// Indices returns the names of every simulated index this Model can
	// Eval, in a stable order. Used to populate AggregationScenarioData
	// (spec §3) alongside a valuation run.
	Indices() []string

	// Pay returns the discounted, numeraire-normalized value of amount
	// observed at obs and paid at pay in currency ccy; zero if pay is not
	// after the reference date (caller-enforced past-payment fast path).
	Pay(amount randvar.RandomVariable, obs, pay time.Time, ccy string) (randvar.RandomVariable, error)

	// Discount returns the pathwise discount factor from pay back to obs.
	Discount(obs, pay time.Time, ccy string) (randvar.RandomVariable, error)

	// NPV returns the conditional expectation of amount at obs via
	// regression on path state.
	NPV(amount randvar.RandomVariable, obs time.Time, opts NPVOptions) (randvar.RandomVariable, error)

	// Eval returns the realization of index at obs, or its forward value
	// from obs to fwd when fwd is non-nil.
	Eval(index string, obs time.Time, fwd *time.Time) (randvar.RandomVariable, error)

	FwdCompAvg(p FwdCompAvgParams) (randvar.RandomVariable, error)

	BarrierProbability(index string, obs1, obs2 time.Time, barrier float64, above bool) (randvar.RandomVariable, error)

	Type() Type
}
