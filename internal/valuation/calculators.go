package valuation

import (
	"time"

	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/paylog"
	"github.com/banachtech/orex/internal/randvar"
)

func realizedAmount(size int, cf paylog.Entry) randvar.RandomVariable {
	zero := randvar.New(size, 0)
	return randvar.Select(cf.Mask, cf.Amount, zero)
}

// NPVCalculator writes trade.NPV * fx(tradeCcy->baseCcy) / numeraire into
// its depth slot, where NPV is the model's conditional expectation of
// discounted future cashflows observed at the evaluation date. It is
// skipped (returns a deterministic zero) when isCloseOut is requested,
// since NPVCalculator feeds the ordinary exposure profile, not collateral
// sizing — the close-out variant is CloseOutNPVCalculator below.
type NPVCalculator struct {
	Slot int
}

func (c *NPVCalculator) DepthSlot() int { return c.Slot }

func (c *NPVCalculator) Calculate(ctx *CalcContext, dateGrid []time.Time, dateIdx int, isCloseOut bool) (randvar.RandomVariable, error) {
	if isCloseOut {
		return randvar.New(ctx.Model.Size(), 0), nil
	}
	return c.npvAt(ctx, dateGrid[dateIdx])
}

func (c *NPVCalculator) npvAt(ctx *CalcContext, date time.Time) (randvar.RandomVariable, error) {
	n := ctx.Model.Size()
	total := randvar.New(n, 0)
	for _, cf := range sumCashflowsAfter(ctx.Cashflows, date) {
		amount := realizedAmount(n, cf)
		df, err := ctx.Model.Discount(date, cf.Pay, cf.Currency)
		if err != nil {
			return randvar.RandomVariable{}, err
		}
		total = total.Add(amount.Mul(df))
	}
	npv, err := ctx.Model.NPV(total, date, model.NPVOptions{})
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	fx, err := ctx.FX(ctx.Trade.Currency(), date)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	numeraire, err := ctx.Numeraire(date)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	return npv.Mul(randvar.New(n, fx/numeraire)), nil
}

func (c *NPVCalculator) CalculateT0(ctx *CalcContext) (randvar.RandomVariable, error) {
	return c.npvAt(ctx, ctx.Model.ReferenceDate())
}

// CloseOutNPVCalculator recomputes NPVCalculator's value as of date+Shift
// (typically the margin period of risk), writing to a dedicated depth slot
// (the ordinary, non-close-out request returns zero). No component reads
// that slot: PostProcess and collateral evolution use depth slot 0 only,
// so close-out values never enter EPE/ENE/EE_B/EEE_B/EEPE_B.
type CloseOutNPVCalculator struct {
	Slot  int
	Shift time.Duration
}

func (c *CloseOutNPVCalculator) DepthSlot() int { return c.Slot }

func (c *CloseOutNPVCalculator) Calculate(ctx *CalcContext, dateGrid []time.Time, dateIdx int, isCloseOut bool) (randvar.RandomVariable, error) {
	if !isCloseOut {
		return randvar.New(ctx.Model.Size(), 0), nil
	}
	inner := &NPVCalculator{Slot: c.Slot}
	return inner.npvAt(ctx, dateGrid[dateIdx].Add(c.Shift))
}

func (c *CloseOutNPVCalculator) CalculateT0(ctx *CalcContext) (randvar.RandomVariable, error) {
	return randvar.New(ctx.Model.Size(), 0), nil
}

// NPVCalculatorFXT0 is NPVCalculator's variant that fixes the FX conversion
// at the as-of market rate (T0FX) instead of the live scenario rate, unless
// the trade already settles in the base currency — grounded on
// NPVCalculatorFXT0::calculate/npv.
type NPVCalculatorFXT0 struct {
	Slot int
	T0FX map[string]float64
}

func (c *NPVCalculatorFXT0) DepthSlot() int { return c.Slot }

func (c *NPVCalculatorFXT0) Calculate(ctx *CalcContext, dateGrid []time.Time, dateIdx int, isCloseOut bool) (randvar.RandomVariable, error) {
	if isCloseOut {
		return randvar.New(ctx.Model.Size(), 0), nil
	}
	return c.npvAt(ctx, dateGrid[dateIdx])
}

func (c *NPVCalculatorFXT0) npvAt(ctx *CalcContext, date time.Time) (randvar.RandomVariable, error) {
	n := ctx.Model.Size()
	total := randvar.New(n, 0)
	for _, cf := range sumCashflowsAfter(ctx.Cashflows, date) {
		amount := realizedAmount(n, cf)
		df, err := ctx.Model.Discount(date, cf.Pay, cf.Currency)
		if err != nil {
			return randvar.RandomVariable{}, err
		}
		total = total.Add(amount.Mul(df))
	}
	npv, err := ctx.Model.NPV(total, date, model.NPVOptions{})
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	fx := 1.0
	if ctx.Trade.Currency() != ctx.BaseCcy {
		var ok bool
		fx, ok = c.T0FX[ctx.Trade.Currency()]
		if !ok {
			var err error
			fx, err = ctx.FX(ctx.Trade.Currency(), ctx.Model.ReferenceDate())
			if err != nil {
				return randvar.RandomVariable{}, err
			}
		}
	}
	numeraire, err := ctx.Numeraire(date)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	return npv.Mul(randvar.New(n, fx/numeraire)), nil
}

func (c *NPVCalculatorFXT0) CalculateT0(ctx *CalcContext) (randvar.RandomVariable, error) {
	return c.npvAt(ctx, ctx.Model.ReferenceDate())
}

// CashflowCalculator sums cashflows whose payment date lies in
// (dateGrid[dateIdx], dateGrid[dateIdx+1]], converted to base currency and
// divided by numeraire; it is zero for an option underlying leg unless the
// option has been exercised and settles physically, grounded on
// CashflowCalculator::calculate's physical-exercise gate.
type CashflowCalculator struct {
	Slot int
}

func (c *CashflowCalculator) DepthSlot() int { return c.Slot }

func (c *CashflowCalculator) Calculate(ctx *CalcContext, dateGrid []time.Time, dateIdx int, isCloseOut bool) (randvar.RandomVariable, error) {
	n := ctx.Model.Size()
	if isCloseOut {
		return randvar.New(n, 0), nil
	}
	if ctx.Trade.IsOption() && !ctx.Trade.ExercisedPhysically() {
		return randvar.New(n, 0), nil
	}
	if dateIdx+1 >= len(dateGrid) {
		return randvar.New(n, 0), nil
	}
	start, end := dateGrid[dateIdx], dateGrid[dateIdx+1]
	total := randvar.New(n, 0)
	for _, cf := range sumCashflowsInWindow(ctx.Cashflows, start, end) {
		amount := realizedAmount(n, cf)
		total = total.Add(amount)
	}
	fx, err := ctx.FX(ctx.Trade.Currency(), end)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	numeraire, err := ctx.Numeraire(end)
	if err != nil {
		return randvar.RandomVariable{}, err
	}
	return total.Mul(randvar.New(n, fx/numeraire)), nil
}

func (c *CashflowCalculator) CalculateT0(ctx *CalcContext) (randvar.RandomVariable, error) {
	return randvar.New(ctx.Model.Size(), 0), nil
}
