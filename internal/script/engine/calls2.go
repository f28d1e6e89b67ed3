package engine

import (
	"fmt"

	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/randvar"
	"github.com/banachtech/orex/internal/script/ast"
	"github.com/banachtech/orex/internal/valuetype"
)

func (e *Engine) callHistFixing(n *ast.Node) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	if len(a) != 2 {
		return e.fail(n, fmt.Errorf("histfixing expects 2 arguments"))
	}
	index, err := asText(a[0])
	if err != nil {
		return e.fail(n, err)
	}
	obs, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	ref := e.mdl.ReferenceDate()
	if obs.After(ref) {
		e.push(valuetype.Number(randvar.New(e.n, 0)))
		return nil
	}
	if e.fixings == nil {
		e.push(valuetype.Number(randvar.New(e.n, 0)))
		return nil
	}
	if _, ok := e.fixings.Fixing(index, obs); ok {
		e.push(valuetype.Number(randvar.New(e.n, 1)))
	} else {
		e.push(valuetype.Number(randvar.New(e.n, 0)))
	}
	return nil
}

// callFwdCompAvg implements fwdComp/fwdAvg. Per spec §4.4 the optional
// blocks (spread/gearing; lookback/rateCutoff/fixingDays/includeSpread;
// cap/floor/nakedOption/localCapFloor) must each appear in full or not at
// all, and the three ±1-encoded booleans must be deterministic.
func (e *Engine) callFwdCompAvg(n *ast.Node, isComp bool) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	if len(a) < 4 {
		return e.fail(n, fmt.Errorf("%s expects at least 4 arguments", n.FuncName))
	}
	index, err := asText(a[0])
	if err != nil {
		return e.fail(n, err)
	}
	obs, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	start, err := asEvent(a[2])
	if err != nil {
		return e.fail(n, err)
	}
	end, err := asEvent(a[3])
	if err != nil {
		return e.fail(n, err)
	}
	p := model.FwdCompAvgParams{IsAverage: !isComp, Index: index, Obs: obs, Start: start, End: end}
	rest := a[4:]
	if len(rest) != 0 && len(rest) != 2 && len(rest) != 6 && len(rest) != 10 {
		return e.fail(n, fmt.Errorf("%s: optional blocks must each be supplied in full", n.FuncName))
	}
	if len(rest) >= 2 {
		if rest[0].Kind != valuetype.KindNumber || rest[1].Kind != valuetype.KindNumber {
			return e.fail(n, fmt.Errorf("%s: spread/gearing must be numeric", n.FuncName))
		}
		p.HasSpreadGearing = true
		p.Spread, p.Gearing = rest[0].Number.At(0), rest[1].Number.At(0)
	}
	if len(rest) >= 6 {
		lb, ok1 := deterministicInt(rest[2])
		rc, ok2 := deterministicInt(rest[3])
		fd, ok3 := deterministicInt(rest[4])
		inc, ok4 := deterministicInt(rest[5])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return e.fail(n, fmt.Errorf("%s: lookback block must be deterministic", n.FuncName))
		}
		if inc != 1 && inc != -1 {
			return e.fail(n, fmt.Errorf("%s: includeSpread must encode to +1 or -1", n.FuncName))
		}
		p.HasLookback = true
		p.Lookback, p.RateCutoff, p.FixingDays = lb, rc, fd
		p.IncludeSpread = inc == 1
	}
	if len(rest) == 10 {
		cap_, ok1 := rest[6].Number, rest[6].Kind == valuetype.KindNumber
		floor, ok2 := rest[7].Number, rest[7].Kind == valuetype.KindNumber
		naked, ok3 := deterministicInt(rest[8])
		local, ok4 := deterministicInt(rest[9])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return e.fail(n, fmt.Errorf("%s: cap/floor block must be deterministic where required", n.FuncName))
		}
		if naked != 1 && naked != -1 {
			return e.fail(n, fmt.Errorf("%s: nakedOption must encode to +1 or -1", n.FuncName))
		}
		if local != 1 && local != -1 {
			return e.fail(n, fmt.Errorf("%s: localCapFloor must encode to +1 or -1", n.FuncName))
		}
		p.HasCapFloor = true
		p.Cap, p.Floor = cap_.At(0), floor.At(0)
		p.NakedOption = naked == 1
		p.LocalCapFloor = local == 1
	}
	result, err := e.mdl.FwdCompAvg(p)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(valuetype.Number(result))
	return nil
}

func (e *Engine) callBarrierProbability(n *ast.Node, above bool) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	if len(a) != 4 {
		return e.fail(n, fmt.Errorf("%s expects 4 arguments", n.FuncName))
	}
	index, err := asText(a[0])
	if err != nil {
		return e.fail(n, err)
	}
	obs1, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	obs2, err := asEvent(a[2])
	if err != nil {
		return e.fail(n, err)
	}
	if a[3].Kind != valuetype.KindNumber {
		return e.fail(n, fmt.Errorf("%s: barrier must be numeric", n.FuncName))
	}
	if obs1.After(obs2) {
		e.push(valuetype.Number(randvar.New(e.n, 0)))
		return nil
	}
	result, err := e.mdl.BarrierProbability(index, obs1, obs2, a[3].Number.At(0), above)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(valuetype.Number(result))
	return nil
}

func (e *Engine) callIndexEval(n *ast.Node) error {
	a, err := e.args(n)
	if err != nil {
		return err
	}
	if len(a) < 2 {
		return e.fail(n, fmt.Errorf("indexEval expects at least 2 arguments"))
	}
	index, err := asText(a[0])
	if err != nil {
		return e.fail(n, err)
	}
	obs, err := asEvent(a[1])
	if err != nil {
		return e.fail(n, err)
	}
	if len(a) == 2 {
		result, err := e.mdl.Eval(index, obs, nil)
		if err != nil {
			return e.fail(n, err)
		}
		e.push(valuetype.Number(result))
		return nil
	}
	fwd, err := asEvent(a[2])
	if err != nil {
		return e.fail(n, err)
	}
	if !obs.Before(fwd) {
		result, err := e.mdl.Eval(index, obs, nil)
		if err != nil {
			return e.fail(n, err)
		}
		e.push(valuetype.Number(result))
		return nil
	}
	result, err := e.mdl.Eval(index, obs, &fwd)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(valuetype.Number(result))
	return nil
}
