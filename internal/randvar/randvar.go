// Package randvar implements vectorized numeric and boolean lanes across
// Monte Carlo samples, with a deterministic-collapse optimization: a
// RandomVariable whose lanes all agree is stored in compact form and
// arithmetic on two compact operands stays O(1).
package randvar

import "math"

// RandomVariable holds N real-valued lanes. When det is true, value holds
// the common lane value and lanes is nil; otherwise lanes has length n.
type RandomVariable struct {
	n      int
	det    bool
	value  float64
	lanes  []float64
	timeTag float64
	hasTag  bool
}

// New builds a deterministic RandomVariable of size n with every lane set
// to v.
func New(n int, v float64) RandomVariable {
	return RandomVariable{n: n, det: true, value: v}
}

// NewFromSlice builds a RandomVariable from explicit per-lane values and
// collapses it to deterministic form if all lanes agree.
func NewFromSlice(lanes []float64) RandomVariable {
	rv := RandomVariable{n: len(lanes), lanes: append([]float64(nil), lanes...)}
	rv.UpdateDeterministic()
	return rv
}

// Size returns the fixed lane count N.
func (r RandomVariable) Size() int { return r.n }

// Deterministic reports whether r is currently stored in compact form.
func (r RandomVariable) Deterministic() bool { return r.det }

// At returns the value of lane k.
func (r RandomVariable) At(k int) float64 {
	if r.det {
		return r.value
	}
	return r.lanes[k]
}

// TimeTag returns the model-time tag and whether one is set.
func (r RandomVariable) TimeTag() (float64, bool) { return r.timeTag, r.hasTag }

// WithTimeTag returns a copy of r stamped with the given model time.
func (r RandomVariable) WithTimeTag(t float64) RandomVariable {
	r.timeTag = t
	r.hasTag = true
	return r
}

// WithoutTimeTag returns a copy of r with its time tag cleared; numeric
// assignment resets the tag per spec §4.1.
func (r RandomVariable) WithoutTimeTag() RandomVariable {
	r.timeTag = 0
	r.hasTag = false
	return r
}

// expand returns a fully materialized lane slice, regardless of current form.
func (r RandomVariable) expand() []float64 {
	if !r.det {
		return r.lanes
	}
	out := make([]float64, r.n)
	for i := range out {
		out[i] = r.value
	}
	return out
}

// Set overwrites lane k; a deterministic variable is demoted to general
// form on the first non-uniform write (spec §3 invariant).
func (r *RandomVariable) Set(k int, v float64) {
	if r.det && v == r.value {
		return
	}
	r.lanes = r.expand()
	r.det = false
	r.lanes[k] = v
	r.UpdateDeterministic()
}

// UpdateDeterministic re-scans the lanes and collapses to compact form if
// they all agree. This is the correctness-critical optimization spec §9
// calls out: short-circuit branch skipping depends on every operation
// calling this (or never needing to, because both operands were already
// deterministic).
func (r *RandomVariable) UpdateDeterministic() {
	if r.det || r.n == 0 {
		return
	}
	first := r.lanes[0]
	for _, v := range r.lanes[1:] {
		if v != first {
			return
		}
	}
	r.det = true
	r.value = first
	r.lanes = nil
}

func binOp(a, b RandomVariable, f func(x, y float64) float64) RandomVariable {
	if a.det && b.det {
		return New(a.n, f(a.value, b.value))
	}
	al, bl := a.expand(), b.expand()
	out := make([]float64, a.n)
	for i := range out {
		out[i] = f(al[i], bl[i])
	}
	rv := RandomVariable{n: a.n, lanes: out}
	rv.UpdateDeterministic()
	return rv
}

func unaryOp(a RandomVariable, f func(x float64) float64) RandomVariable {
	if a.det {
		return New(a.n, f(a.value))
	}
	out := make([]float64, a.n)
	for i, v := range a.lanes {
		out[i] = f(v)
	}
	rv := RandomVariable{n: a.n, lanes: out}
	rv.UpdateDeterministic()
	return rv
}

func (a RandomVariable) Add(b RandomVariable) RandomVariable { return binOp(a, b, func(x, y float64) float64 { return x + y }) }
func (a RandomVariable) Sub(b RandomVariable) RandomVariable { return binOp(a, b, func(x, y float64) float64 { return x - y }) }
func (a RandomVariable) Mul(b RandomVariable) RandomVariable { return binOp(a, b, func(x, y float64) float64 { return x * y }) }
func (a RandomVariable) Div(b RandomVariable) RandomVariable { return binOp(a, b, func(x, y float64) float64 { return x / y }) }
func (a RandomVariable) Neg() RandomVariable                 { return unaryOp(a, func(x float64) float64 { return -x }) }
func (a RandomVariable) Abs() RandomVariable                 { return unaryOp(a, math.Abs) }
func (a RandomVariable) Exp() RandomVariable                 { return unaryOp(a, math.Exp) }
func (a RandomVariable) Log() RandomVariable                 { return unaryOp(a, math.Log) }
func (a RandomVariable) Sqrt() RandomVariable                { return unaryOp(a, math.Sqrt) }
func (a RandomVariable) Pow(b RandomVariable) RandomVariable { return binOp(a, b, math.Pow) }
func (a RandomVariable) Min(b RandomVariable) RandomVariable { return binOp(a, b, math.Min) }
func (a RandomVariable) Max(b RandomVariable) RandomVariable { return binOp(a, b, math.Max) }

func normalCdf(x float64) float64 { return 0.5 * math.Erfc(-x/math.Sqrt2) }
func normalPdf(x float64) float64 { return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi) }

func (a RandomVariable) NormalCdf() RandomVariable { return unaryOp(a, normalCdf) }
func (a RandomVariable) NormalPdf() RandomVariable { return unaryOp(a, normalPdf) }

// Select returns, lane by lane, then[k] if mask[k] else els[k]. Determinism
// collapses automatically when mask, then and els are all deterministic and
// agree.
func Select(mask Filter, then, els RandomVariable) RandomVariable {
	if mask.Deterministic() {
		if mask.value {
			return then
		}
		return els
	}
	thenL, elsL := then.expand(), els.expand()
	out := make([]float64, mask.n)
	for i := 0; i < mask.n; i++ {
		if mask.at(i) {
			out[i] = thenL[i]
		} else {
			out[i] = elsL[i]
		}
	}
	rv := RandomVariable{n: mask.n, lanes: out}
	rv.UpdateDeterministic()
	return rv
}
