// Package valuation implements the NPV cube's valuation driver and its
// pluggable per-trade calculators (spec §4.5), grounded on the teacher's
// goroutine-per-unit-of-work fan-out pattern (api/pricer.go, api/backtest.go)
// and on the valuation-calculator semantics of the counterparty-risk engine
// this system's NPV/cashflow writers are adapted from.
package valuation

import (
	"time"

	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/paylog"
	"github.com/banachtech/orex/internal/randvar"
	"github.com/banachtech/orex/internal/script/ast"
)

// Trade is the minimal shape the valuation driver needs from a portfolio
// entry: an identity, a script to evaluate, and the option/exercise facts
// CashflowCalculator's physical-settlement gate depends on.
type Trade interface {
	ID() string
	Currency() string
	NettingSet() string
	Script() *ast.Node
	IsOption() bool
	ExercisedPhysically() bool
}

// CalcContext is the per-trade state a Calculator sees: the evaluated
// trade's cashflow log, its static facts, and the shared model/FX/numeraire
// helpers needed to convert into base currency.
type CalcContext struct {
	Trade     Trade
	Cashflows []paylog.Entry
	Model     model.Model
	BaseCcy   string
	FX        func(ccy string, obs time.Time) (float64, error)
	Numeraire func(obs time.Time) (float64, error)
}

// Calculator is a pluggable per-trade, per-date cube writer (spec §4.5's
// "registered Calculator" list: NPVCalculator, CashflowCalculator, …).
// Calculate returns one value per sample lane (the driver writes each lane
// to its own disjoint cube cell, safe to parallelize per spec §5); isCloseOut
// true requests the close-out-dated variant that feeds collateral sizing
// only, per this repository's resolution of the close-out-slot design
// question. CalculateT0 populates the cube's separate T0 row.
type Calculator interface {
	DepthSlot() int
	Calculate(ctx *CalcContext, dateGrid []time.Time, dateIdx int, isCloseOut bool) (randvar.RandomVariable, error)
	CalculateT0(ctx *CalcContext) (randvar.RandomVariable, error)
}

func sumCashflowsAfter(cfs []paylog.Entry, after time.Time) []paylog.Entry {
	var out []paylog.Entry
	for _, cf := range cfs {
		if cf.Pay.After(after) {
			out = append(out, cf)
		}
	}
	return out
}

func sumCashflowsInWindow(cfs []paylog.Entry, start, end time.Time) []paylog.Entry {
	var out []paylog.Entry
	for _, cf := range cfs {
		if cf.Pay.After(start) && !cf.Pay.After(end) {
			out = append(out, cf)
		}
	}
	return out
}
