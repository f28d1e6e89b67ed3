package engine

import (
	"fmt"

	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/paylog"
	"github.com/banachtech/orex/internal/randvar"
	"github.com/banachtech/orex/internal/script/ast"
	"github.com/banachtech/orex/internal/valuetype"
)

// evalCall dispatches the model-aware primitives of spec §4.4. Arguments
// are evaluated left to right and each is popped from the value stack as
// soon as it is pushed, so they arrive in textual order.
func (e *Engine) evalCall(n *ast.Node) error {
	switch n.FuncName {
	case "pay":
		return e.callPay(n, false)
	case "logpay":
		return e.callPay(n, true)
	case "npv":
		return e.callNPV(n, false)
	case "npvmem":
		return e.callNPV(n, true)
	case "discount":
		return e.callDiscount(n)
	case "black":
		return e.callBlack(n)
	case "histfixing":
		return e.callHistFixing(n)
	case "fwdComp":
		return e.callFwdCompAvg(n, true)
	case "fwdAvg":
		return e.callFwdCompAvg(n, false)
	case "aboveprob":
		return e.callBarrierProbability(n, true)
	case "belowprob":
		return e.callBarrierProbability(n, false)
	case "indexEval":
		return e.callIndexEval(n)
	default:
		return e.fail(n, fmt.Errorf("unknown function %q", n.FuncName))
	}
}

func (e *Engine) args(n *ast.Node) ([]valuetype.ValueType, error) {
	out := make([]valuetype.ValueType, len(n.Children))
	for i, c := range n.Children {
		v, err := e.evalPop(c)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Engine) callPay(n *ast.Node, logged bool) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	minArgs := 4
	if len(a) < minArgs {
		return e.fail(n, fmt.Errorf("%s expects at least %d arguments", n.FuncName, minArgs))
	}
	if a[0].Kind != valuetype.KindNumber {
		return e.fail(n, fmt.Errorf("%s: amount must be numeric", n.FuncName))
	}
	obs, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	pay, err := asEvent(a[2])
	if err != nil {
		return e.fail(n, err)
	}
	ccy, err := asText(a[3])
	if err != nil {
		return e.fail(n, err)
	}

	ref := e.mdl.ReferenceDate()
	isPast := !pay.After(ref)

	if logged && e.log != nil {
		legNo, typeName, slot := 0, "", 0
		if len(a) > 4 {
			if li, ok := deterministicInt(a[4]); ok {
				legNo = li
			}
		}
		if len(a) > 5 {
			typeName, _ = asText(a[5])
		}
		if len(a) > 6 {
			if si, ok := deterministicInt(a[6]); ok {
				slot = si
			}
		}
		e.log.Record(paylog.Entry{
			TradeID: e.tradeID, Amount: a[0].Number, Mask: e.currentFilter(),
			Obs: obs, Pay: pay, Currency: ccy, LegNo: legNo, CashflowType: typeName, Slot: slot,
		})
	}

	if isPast {
		e.push(valuetype.Number(randvar.New(e.n, 0)))
		return nil
	}
	if obs.After(pay) {
		return e.fail(n, fmt.Errorf("%s: observation date after payment date", n.FuncName))
	}
	result, err := e.mdl.Pay(a[0].Number, obs, pay, ccy)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(valuetype.Number(result))
	return nil
}

func (e *Engine) callNPV(n *ast.Node, withMemSlot bool) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	if len(a) < 2 {
		return e.fail(n, fmt.Errorf("%s expects at least 2 arguments", n.FuncName))
	}
	if a[0].Kind != valuetype.KindNumber {
		return e.fail(n, fmt.Errorf("%s: amount must be numeric", n.FuncName))
	}
	obs, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	ref := e.mdl.ReferenceDate()
	if obs.Before(ref) {
		obs = ref // NPV's obs clamps up to the reference date, per original engine.
	}
	var opts model.NPVOptions
	idx := 2
	if withMemSlot {
		if len(a) < 3 {
			return e.fail(n, fmt.Errorf("npvmem requires a memory slot argument"))
		}
		slot, ok := deterministicInt(a[2])
		if !ok {
			return e.fail(n, fmt.Errorf("npvmem: memory slot must be a deterministic integer"))
		}
		opts.MemorySlot = &slot
		idx = 3
	}
	if len(a) > idx {
		if a[idx].Kind != valuetype.KindFilter {
			return e.fail(n, fmt.Errorf("%s: regression filter must be a filter", n.FuncName))
		}
		opts.RegressionFilter = &a[idx].Filter
	}
	if len(a) > idx+1 {
		opts.AddRegressor1 = &a[idx+1].Number
	}
	if len(a) > idx+2 {
		opts.AddRegressor2 = &a[idx+2].Number
	}
	result, err := e.mdl.NPV(a[0].Number, obs, opts)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(valuetype.Number(result))
	return nil
}

func (e *Engine) callDiscount(n *ast.Node) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	if len(a) != 3 {
		return e.fail(n, fmt.Errorf("discount expects 3 arguments"))
	}
	obs, err := asEvent(a[0])
	if err != nil {
		return e.fail(n, err)
	}
	pay, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	ccy, err := asText(a[2])
	if err != nil {
		return e.fail(n, err)
	}
	ref := e.mdl.ReferenceDate()
	if obs.Before(ref) || pay.Before(obs) {
		return e.fail(n, fmt.Errorf("discount requires referenceDate <= obs <= pay"))
	}
	result, err := e.mdl.Discount(obs, pay, ccy)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(valuetype.Number(result))
	return nil
}

func (e *Engine) callBlack(n *ast.Node) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	if len(a) != 6 {
		return e.fail(n, fmt.Errorf("black expects 6 arguments"))
	}
	cp, ok := deterministicInt(a[0])
	if !ok {
		return e.fail(n, fmt.Errorf("black: call/put flag must be a deterministic number"))
	}
	obs, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	expiry, err := asEvent(a[2])
	if err != nil {
		return e.fail(n, err)
	}
	if obs.After(expiry) {
		return e.fail(n, fmt.Errorf("black requires obs <= expiry"))
	}
	if a[3].Kind != valuetype.KindNumber || a[4].Kind != valuetype.KindNumber || a[5].Kind != valuetype.KindNumber {
		return e.fail(n, fmt.Errorf("black: strike/forward/vol must be numeric"))
	}
	t := e.mdl.Dt(obs, expiry)
	result := black76(float64(cp), t, a[3].Number, a[4].Number, a[5].Number)
	e.push(valuetype.Number(result))
	return nil
}

// black76 implements the Black-76 undiscounted option price, vectorized
// across lanes; cp is +1 for a call, -1 for a put.
func black76(cp, t float64, k, f, vol randvar.RandomVariable) randvar.RandomVariable {
	n := k.Size()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		kk, ff, vv := k.At(i), f.At(i), vol.At(i)
		out[i] = black76Scalar(cp, t, kk, ff, vv)
	}
	rv := randvar.NewFromSlice(out)
	return rv
}
