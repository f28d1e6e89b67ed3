// Package engine implements the tree-walking payoff-script interpreter of
// spec §4.4: a switch-dispatched evaluator over an explicit value stack and
// filter stack, matching spec §9's Design Note preference for a stack
// machine over per-node virtual dispatch.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/banachtech/orex/internal/fixing"
	"github.com/banachtech/orex/internal/model"
	"github.com/banachtech/orex/internal/paylog"
	"github.com/banachtech/orex/internal/randvar"
	"github.com/banachtech/orex/internal/script/ast"
	"github.com/banachtech/orex/internal/valuetype"
)

// RuntimeError wraps an evaluation failure with the source location of the
// node being visited when it occurred, per spec §7's propagation policy.
type RuntimeError struct {
	Pos ast.Pos
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%d:%d: %v", e.Pos.Line, e.Pos.Col, e.Err)
}
func (e *RuntimeError) Unwrap() error { return e.Err }

// Engine evaluates one AST against one Context, Model and fixing Store,
// for one trade. A fresh Engine (or at least a fresh value/filter stack and
// a Reset of the AST's caches) is required per evaluation.
type Engine struct {
	ctx     *valuetype.Context
	mdl     model.Model
	fixings fixing.Store
	log     *paylog.Log
	tradeID string
	n       int

	valueStack  []valuetype.ValueType
	filterStack []randvar.Filter

	// Interactive is checked after every visited node; when it returns
	// true the run aborts with the last-visited node's position attached
	// (spec §5's cooperative cancellation checkpoint).
	Interactive func() bool
}

// New builds an Engine. ctx must already hold any externally bound trade
// terms (spec §3's Context "externally injected bindings").
func New(ctx *valuetype.Context, mdl model.Model, fixings fixing.Store, log *paylog.Log, tradeID string) *Engine {
	n := mdl.Size()
	return &Engine{
		ctx:         ctx,
		mdl:         mdl,
		fixings:     fixings,
		log:         log,
		tradeID:     tradeID,
		n:           n,
		valueStack:  []valuetype.ValueType{valuetype.Number(randvar.New(n, 0))}, // sentinel, spec §4.4
		filterStack: []randvar.Filter{randvar.NewFilter(n, true)},
	}
}

// Run resets the AST's caches and evaluates it from scratch. On success the
// value stack holds only the sentinel and the filter stack holds only the
// initial all-true mask (spec §8 Testable Property 3).
func (e *Engine) Run(root *ast.Node) error {
	ast.Reset(root)
	if err := e.eval(root); err != nil {
		return err
	}
	if isValueProducing(root.Kind) {
		e.pop()
	}
	return nil
}

// PostCondition reports whether the stacks are in the success state
// described by spec §8 Testable Property 3.
func (e *Engine) PostCondition() bool {
	return len(e.valueStack) == 1 && len(e.filterStack) == 1
}

func (e *Engine) push(v valuetype.ValueType)  { e.valueStack = append(e.valueStack, v) }
func (e *Engine) pop() valuetype.ValueType {
	n := len(e.valueStack) - 1
	v := e.valueStack[n]
	e.valueStack = e.valueStack[:n]
	return v
}

func (e *Engine) pushFilter(f randvar.Filter) { e.filterStack = append(e.filterStack, f) }
func (e *Engine) popFilter() randvar.Filter {
	n := len(e.filterStack) - 1
	f := e.filterStack[n]
	e.filterStack = e.filterStack[:n]
	return f
}
func (e *Engine) currentFilter() randvar.Filter { return e.filterStack[len(e.filterStack)-1] }

func (e *Engine) fail(n *ast.Node, err error) error { return &RuntimeError{Pos: n.Pos, Err: err} }

func isValueProducing(k ast.Kind) bool {
	switch k {
	case ast.KindNumberLit, ast.KindStringLit, ast.KindVarRef, ast.KindArrayIndex,
		ast.KindBinaryOp, ast.KindUnaryOp, ast.KindCompare, ast.KindAnd, ast.KindOr,
		ast.KindNot, ast.KindSize, ast.KindDateIndex, ast.KindCall:
		return true
	default:
		return false
	}
}

// evalPop evaluates n, then pops and returns the top of the value stack;
// callers only invoke it on value-producing nodes.
func (e *Engine) evalPop(n *ast.Node) (valuetype.ValueType, error) {
	if err := e.eval(n); err != nil {
		return valuetype.ValueType{}, err
	}
	return e.pop(), nil
}

func (e *Engine) checkAbort(n *ast.Node) error {
	if e.Interactive != nil && e.Interactive() {
		return e.fail(n, fmt.Errorf("evaluation aborted"))
	}
	return nil
}

// eval dispatches on n.Kind. Value-producing kinds push exactly one result;
// statement kinds push nothing.
func (e *Engine) eval(n *ast.Node) error {
	if err := e.checkAbort(n); err != nil {
		return err
	}
	switch n.Kind {
	case ast.KindNumberLit:
		e.push(valuetype.Number(randvar.New(e.n, n.NumberLit)))
		return nil

	case ast.KindStringLit:
		e.push(valuetype.Currency(n.StringLit))
		return nil

	case ast.KindVarRef:
		return e.evalVarRef(n)

	case ast.KindArrayIndex:
		return e.evalArrayIndex(n)

	case ast.KindBinaryOp:
		return e.evalBinaryOp(n)

	case ast.KindUnaryOp:
		v, err := e.evalPop(n.Left)
		if err != nil {
			return err
		}
		if v.Kind != valuetype.KindNumber {
			return e.fail(n, fmt.Errorf("unary minus on non-numeric value"))
		}
		e.push(valuetype.Number(v.Number.Neg()))
		return nil

	case ast.KindCompare:
		return e.evalCompare(n)

	case ast.KindAnd:
		return e.evalAnd(n)

	case ast.KindOr:
		return e.evalOr(n)

	case ast.KindNot:
		v, err := e.evalPop(n.Left)
		if err != nil {
			return err
		}
		if v.Kind != valuetype.KindFilter {
			return e.fail(n, fmt.Errorf("NOT on non-filter value"))
		}
		e.push(valuetype.FilterVal(v.Filter.Not()))
		return nil

	case ast.KindAssign:
		return e.evalAssign(n)

	case ast.KindIndexedAssign:
		return e.evalIndexedAssign(n)

	case ast.KindDeclareScalar:
		if e.ctx.IsIgnored(n.Name) {
			return nil
		}
		return e.ctx.DeclareScalar(n.Name, valuetype.Number(randvar.New(e.n, 0)))

	case ast.KindDeclareArray:
		size, err := e.evalPop(n.ArraySize)
		if err != nil {
			return err
		}
		if size.Kind != valuetype.KindNumber || !size.Number.Deterministic() {
			return e.fail(n, fmt.Errorf("array size for %q must be a deterministic number", n.Name))
		}
		if e.ctx.IsIgnored(n.Name) {
			return nil
		}
		sz := int(math.Round(size.Number.At(0)))
		if sz < 0 {
			return e.fail(n, fmt.Errorf("array size for %q is negative", n.Name))
		}
		if err := e.ctx.DeclareArray(n.Name, sz, valuetype.Number(randvar.New(e.n, 0))); err != nil {
			return e.fail(n, err)
		}
		return nil

	case ast.KindSequence:
		for _, c := range n.Children {
			if err := e.eval(c); err != nil {
				return err
			}
			if isValueProducing(c.Kind) {
				e.pop() // discard bare expression-statement result
			}
		}
		return nil

	case ast.KindIf:
		return e.evalIf(n)

	case ast.KindFor:
		return e.evalFor(n)

	case ast.KindRequire:
		return e.evalRequire(n)

	case ast.KindSize:
		sz, err := e.ctx.ArraySize(n.Name)
		if err != nil {
			return e.fail(n, err)
		}
		e.push(valuetype.Number(randvar.New(e.n, float64(sz))))
		return nil

	case ast.KindDateIndex:
		return e.evalDateIndex(n)

	case ast.KindSort:
		return e.evalSort(n)

	case ast.KindPermute:
		return e.evalPermute(n)

	case ast.KindCall:
		return e.evalCall(n)

	default:
		return e.fail(n, fmt.Errorf("unhandled node kind %v", n.Kind))
	}
}

func (e *Engine) evalVarRef(n *ast.Node) error {
	if n.Cache.Resolved && !n.Cache.IsArray {
		v, err := e.ctx.Scalar(n.Name)
		if err != nil {
			return e.fail(n, err)
		}
		e.push(v)
		return nil
	}
	if !e.ctx.IsScalar(n.Name) {
		return e.fail(n, fmt.Errorf("undeclared variable %q", n.Name))
	}
	n.Cache.Resolved = true
	n.Cache.IsArray = false
	v, err := e.ctx.Scalar(n.Name)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(v)
	return nil
}

func deterministicInt(v valuetype.ValueType) (int, bool) {
	if v.Kind != valuetype.KindNumber || !v.Number.Deterministic() {
		return 0, false
	}
	return int(math.Round(v.Number.At(0))), true
}

func (e *Engine) evalArrayIndex(n *ast.Node) error {
	idxVal, err := e.evalPop(n.Index)
	if err != nil {
		return err
	}
	i, ok := deterministicInt(idxVal)
	if !ok {
		return e.fail(n, fmt.Errorf("array subscript for %q must be a deterministic number", n.Name))
	}
	n.Cache.Resolved = true
	n.Cache.IsArray = true
	v, err := e.ctx.ArrayElement(n.Name, i)
	if err != nil {
		return e.fail(n, err)
	}
	e.push(v)
	return nil
}

func (e *Engine) evalBinaryOp(n *ast.Node) error {
	l, err := e.evalPop(n.Left)
	if err != nil {
		return err
	}
	r, err := e.evalPop(n.Right)
	if err != nil {
		return err
	}
	if l.Kind != valuetype.KindNumber || r.Kind != valuetype.KindNumber {
		return e.fail(n, fmt.Errorf("arithmetic on non-numeric operand"))
	}
	var result randvar.RandomVariable
	switch n.BinOp {
	case ast.OpAdd:
		result = l.Number.Add(r.Number)
	case ast.OpSub:
		result = l.Number.Sub(r.Number)
	case ast.OpMul:
		result = l.Number.Mul(r.Number)
	case ast.OpDiv:
		result = l.Number.Div(r.Number)
	case ast.OpPow:
		result = l.Number.Pow(r.Number)
	default:
		return e.fail(n, fmt.Errorf("unknown binary operator"))
	}
	e.push(valuetype.Number(result.WithoutTimeTag()))
	return nil
}

func (e *Engine) evalCompare(n *ast.Node) error {
	l, err := e.evalPop(n.Left)
	if err != nil {
		return err
	}
	r, err := e.evalPop(n.Right)
	if err != nil {
		return err
	}
	if l.Kind != valuetype.KindNumber || r.Kind != valuetype.KindNumber {
		return e.fail(n, fmt.Errorf("comparison on non-numeric operand"))
	}
	var f randvar.Filter
	switch n.CmpOp {
	case ast.CmpEq:
		f = randvar.Eq(l.Number, r.Number)
	case ast.CmpNe:
		f = randvar.Ne(l.Number, r.Number)
	case ast.CmpLt:
		f = randvar.Lt(l.Number, r.Number)
	case ast.CmpLe:
		f = randvar.Le(l.Number, r.Number)
	case ast.CmpGt:
		f = randvar.Gt(l.Number, r.Number)
	case ast.CmpGe:
		f = randvar.Ge(l.Number, r.Number)
	}
	e.push(valuetype.FilterVal(f))
	return nil
}

// evalAnd/evalOr implement the short-circuit contract of spec §4.4: once
// the left operand's deterministic form fixes the boolean outcome, the
// right operand is never evaluated.
func (e *Engine) evalAnd(n *ast.Node) error {
	l, err := e.evalPop(n.Left)
	if err != nil {
		return err
	}
	if l.Kind != valuetype.KindFilter {
		return e.fail(n, fmt.Errorf("AND on non-filter operand"))
	}
	if l.Filter.Deterministic() && !l.Filter.At(0) {
		e.push(valuetype.FilterVal(randvar.NewFilter(e.n, false)))
		return nil
	}
	r, err := e.evalPop(n.Right)
	if err != nil {
		return err
	}
	if r.Kind != valuetype.KindFilter {
		return e.fail(n, fmt.Errorf("AND on non-filter operand"))
	}
	e.push(valuetype.FilterVal(l.Filter.And(r.Filter)))
	return nil
}

func (e *Engine) evalOr(n *ast.Node) error {
	l, err := e.evalPop(n.Left)
	if err != nil {
		return err
	}
	if l.Kind != valuetype.KindFilter {
		return e.fail(n, fmt.Errorf("OR on non-filter operand"))
	}
	if l.Filter.Deterministic() && l.Filter.At(0) {
		e.push(valuetype.FilterVal(randvar.NewFilter(e.n, true)))
		return nil
	}
	r, err := e.evalPop(n.Right)
	if err != nil {
		return err
	}
	if r.Kind != valuetype.KindFilter {
		return e.fail(n, fmt.Errorf("OR on non-filter operand"))
	}
	e.push(valuetype.FilterVal(l.Filter.Or(r.Filter)))
	return nil
}

func (e *Engine) evalAssign(n *ast.Node) error {
	if e.ctx.IsConstant(n.Name) {
		return e.fail(n, fmt.Errorf("cannot assign to constant %q", n.Name))
	}
	rhs, err := e.evalPop(n.Right)
	if err != nil {
		return err
	}
	if e.ctx.IsIgnored(n.Name) {
		return nil
	}
	cur, err := e.ctx.Scalar(n.Name)
	if err != nil {
		return e.fail(n, err)
	}
	mask := e.currentFilter()
	switch cur.Kind {
	case valuetype.KindNumber:
		if rhs.Kind != valuetype.KindNumber {
			return e.fail(n, fmt.Errorf("cannot assign non-numeric value to numeric variable %q", n.Name))
		}
		merged := randvar.Select(mask, rhs.Number, cur.Number).WithoutTimeTag()
		merged.UpdateDeterministic()
		return e.ctx.SetScalar(n.Name, valuetype.Number(merged))
	default:
		if !cur.SameKind(rhs) {
			return e.fail(n, fmt.Errorf("type mismatch assigning to %q", n.Name))
		}
		if mask.AllTrue() {
			return e.ctx.SetScalar(n.Name, rhs)
		}
		if !mask.AllFalse() && !cur.Equal(rhs) {
			return e.fail(n, fmt.Errorf("type-safe assign to %q requires equal value under a partial mask", n.Name))
		}
		if mask.AllFalse() {
			return nil
		}
		return e.ctx.SetScalar(n.Name, rhs)
	}
}

func (e *Engine) evalIndexedAssign(n *ast.Node) error {
	if e.ctx.IsConstant(n.Name) {
		return e.fail(n, fmt.Errorf("cannot assign to constant %q", n.Name))
	}
	idxVal, err := e.evalPop(n.Index)
	if err != nil {
		return err
	}
	i, ok := deterministicInt(idxVal)
	if !ok {
		return e.fail(n, fmt.Errorf("array subscript for %q must be a deterministic number", n.Name))
	}
	rhs, err := e.evalPop(n.Right)
	if err != nil {
		return err
	}
	if e.ctx.IsIgnored(n.Name) {
		return nil
	}
	cur, err := e.ctx.ArrayElement(n.Name, i)
	if err != nil {
		return e.fail(n, err)
	}
	if cur.Kind != valuetype.KindNumber || rhs.Kind != valuetype.KindNumber {
		return e.fail(n, fmt.Errorf("non-numeric array assignment to %q[%d]", n.Name, i))
	}
	mask := e.currentFilter()
	merged := randvar.Select(mask, rhs.Number, cur.Number).WithoutTimeTag()
	merged.UpdateDeterministic()
	return e.ctx.SetArrayElement(n.Name, i, valuetype.Number(merged))
}

func (e *Engine) evalIf(n *ast.Node) error {
	cond, err := e.evalPop(n.Cond)
	if err != nil {
		return err
	}
	if cond.Kind != valuetype.KindFilter {
		return e.fail(n, fmt.Errorf("IF condition must be a filter"))
	}
	base := e.currentFilter()
	thenMask := base.And(cond.Filter)
	e.pushFilter(thenMask)
	if !(thenMask.Deterministic() && !thenMask.At(0)) {
		if err := e.eval(n.Then); err != nil {
			e.popFilter()
			return err
		}
	}
	e.popFilter()
	if n.Else != nil {
		elseMask := base.And(cond.Filter.Not())
		e.pushFilter(elseMask)
		if !(elseMask.Deterministic() && !elseMask.At(0)) {
			if err := e.eval(n.Else); err != nil {
				e.popFilter()
				return err
			}
		}
		e.popFilter()
	}
	return nil
}

func (e *Engine) evalFor(n *ast.Node) error {
	fromV, err := e.evalPop(n.From)
	if err != nil {
		return err
	}
	toV, err := e.evalPop(n.To)
	if err != nil {
		return err
	}
	stepV, err := e.evalPop(n.Step)
	if err != nil {
		return err
	}
	from, ok1 := deterministicInt(fromV)
	to, ok2 := deterministicInt(toV)
	step, ok3 := deterministicInt(stepV)
	if !ok1 || !ok2 || !ok3 {
		return e.fail(n, fmt.Errorf("FOR bounds/step must be deterministic numbers"))
	}
	if step == 0 {
		return e.fail(n, fmt.Errorf("FOR step must not be zero"))
	}
	if e.ctx.IsConstant(n.Name) {
		return e.fail(n, fmt.Errorf("FOR loop variable %q must not be constant", n.Name))
	}
	if !e.ctx.IsScalar(n.Name) {
		return e.fail(n, fmt.Errorf("FOR loop variable %q must be a declared scalar", n.Name))
	}
	for cl := from; (step > 0 && cl <= to) || (step < 0 && cl >= to); cl += step {
		if err := e.ctx.SetScalar(n.Name, valuetype.Number(randvar.New(e.n, float64(cl)))); err != nil {
			return e.fail(n, err)
		}
		if err := e.eval(n.Body); err != nil {
			return err
		}
		after, err := e.ctx.Scalar(n.Name)
		if err != nil {
			return e.fail(n, err)
		}
		ai, ok := deterministicInt(after)
		if !ok || ai != cl {
			return e.fail(n, fmt.Errorf("FOR loop variable %q was modified inside the loop body", n.Name))
		}
	}
	return nil
}

func (e *Engine) evalRequire(n *ast.Node) error {
	cond, err := e.evalPop(n.Cond)
	if err != nil {
		return err
	}
	if cond.Kind != valuetype.KindFilter {
		return e.fail(n, fmt.Errorf("REQUIRE condition must be a filter"))
	}
	mask := e.currentFilter()
	for k := 0; k < e.n; k++ {
		if mask.At(k) && !cond.Filter.At(k) {
			return e.fail(n, fmt.Errorf("REQUIRE failed on lane %d", k))
		}
	}
	return nil
}

func (e *Engine) evalDateIndex(n *ast.Node) error {
	eventVal, err := e.evalPop(n.Left)
	if err != nil {
		return err
	}
	if eventVal.Kind != valuetype.KindEvent {
		return e.fail(n, fmt.Errorf("DATEINDEX expects an Event value"))
	}
	arr, err := e.ctx.Array(n.Name)
	if err != nil {
		return e.fail(n, err)
	}
	idx := 0
	for i, v := range arr {
		if v.Kind != valuetype.KindEvent {
			return e.fail(n, fmt.Errorf("DATEINDEX array %q must hold Event values", n.Name))
		}
		var match bool
		switch n.DateIdxOp {
		case ast.DateIndexEQ:
			match = v.Event.Equal(eventVal.Event)
		case ast.DateIndexGEQ:
			match = !v.Event.Before(eventVal.Event)
		case ast.DateIndexGT:
			match = v.Event.After(eventVal.Event)
		}
		if match {
			idx = i + 1
			break
		}
	}
	e.push(valuetype.Number(randvar.New(e.n, float64(idx))))
	return nil
}

func (e *Engine) resolveArray(name string) ([]valuetype.ValueType, error) {
	arr, err := e.ctx.Array(name)
	if err != nil {
		return nil, err
	}
	for _, v := range arr {
		if v.Kind != valuetype.KindNumber {
			return nil, fmt.Errorf("array %q must hold Number values", name)
		}
	}
	return arr, nil
}

func (e *Engine) evalSort(n *ast.Node) error {
	xName := n.Names[0]
	yName := xName
	pName := ""
	if len(n.Names) >= 2 {
		yName = n.Names[1]
	}
	if len(n.Names) == 3 {
		pName = n.Names[2]
	}
	x, err := e.resolveArray(xName)
	if err != nil {
		return e.fail(n, err)
	}
	c := len(x)
	y := make([]valuetype.ValueType, c)
	copy(y, x)
	p := make([]valuetype.ValueType, c)
	for i := range p {
		p[i] = valuetype.Number(randvar.New(e.n, float64(i+1)))
	}
	mask := e.currentFilter()
	for k := 0; k < e.n; k++ {
		if !mask.At(k) {
			continue
		}
		order := make([]int, c)
		for i := range order {
			order[i] = i
		}
		vals := make([]float64, c)
		for i := range vals {
			vals[i] = x[i].Number.At(k)
		}
		// simple insertion sort: arrays are typically small (call lengths)
		for i := 1; i < c; i++ {
			for j := i; j > 0 && vals[order[j-1]] > vals[order[j]]; j-- {
				order[j-1], order[j] = order[j], order[j-1]
			}
		}
		for i := 0; i < c; i++ {
			y[i].Number.Set(k, vals[order[i]])
			p[i].Number.Set(k, float64(order[i]+1))
		}
	}
	for i := range y {
		y[i].Number.UpdateDeterministic()
		p[i].Number.UpdateDeterministic()
	}
	if err := e.ctx.SetArray(yName, y); err != nil {
		return e.fail(n, err)
	}
	if pName != "" {
		if err := e.ctx.SetArray(pName, p); err != nil {
			return e.fail(n, err)
		}
	}
	return nil
}

func (e *Engine) evalPermute(n *ast.Node) error {
	xName := n.Names[0]
	var yName, pName string
	switch len(n.Names) {
	case 2:
		// p←names[1], y←x (in place), per spec §4.4's parenthetical.
		pName = n.Names[1]
		yName = xName
	case 3:
		yName, pName = n.Names[1], n.Names[2]
	default:
		return e.fail(n, fmt.Errorf("PERMUTE requires a permutation array"))
	}
	x, err := e.resolveArray(xName)
	if err != nil {
		return e.fail(n, err)
	}
	p, err := e.resolveArray(pName)
	if err != nil {
		return e.fail(n, err)
	}
	c := len(x)
	if len(p) != c {
		return e.fail(n, fmt.Errorf("PERMUTE: %q and %q have different lengths", xName, pName))
	}
	y := make([]valuetype.ValueType, c)
	copy(y, x)
	mask := e.currentFilter()
	for k := 0; k < e.n; k++ {
		if !mask.At(k) {
			continue
		}
		for i := 0; i < c; i++ {
			src := int(math.Round(p[i].Number.At(k))) - 1
			if src < 0 || src >= c {
				return e.fail(n, fmt.Errorf("PERMUTE: permutation index out of range"))
			}
			y[i].Number.Set(k, x[src].Number.At(k))
		}
	}
	for i := range y {
		y[i].Number.UpdateDeterministic()
	}
	if err := e.ctx.SetArray(yName, y); err != nil {
		return e.fail(n, err)
	}
	return nil
}

// asEvent returns the date carried by an Event ValueType; a value of any
// other kind is an error.
func asEvent(v valuetype.ValueType) (time.Time, error) {
	if v.Kind != valuetype.KindEvent {
		return time.Time{}, fmt.Errorf("expected an Event value, got %v", v.Kind)
	}
	return v.Event, nil
}

func asText(v valuetype.ValueType) (string, error) {
	switch v.Kind {
	case valuetype.KindCurrency, valuetype.KindIndex, valuetype.KindDayCounter:
		return v.Text, nil
	default:
		return "", fmt.Errorf("expected a text-bearing value, got %v", v.Kind)
	}
}
