package xva

import (
	"fmt"
	"math"
	"time"
)

// CreditCurve is a piecewise-constant hazard-rate survival curve, used for
// both the counterparty and own credit curves feeding CVA/DVA and the CVA
// spread sensitivity pillar grid (spec §4.6 step 6).
type CreditCurve struct {
	asof    time.Time
	pillars []time.Time // ascending, strictly after asof
	hazards []float64   // hazards[i] applies on (pillars[i-1], pillars[i]]; hazards[0] applies on (asof, pillars[0]]
}

// NewCreditCurve builds a hazard curve from ascending pillar dates and their
// piecewise-constant hazard rates. len(hazards) must equal len(pillars).
func NewCreditCurve(asof time.Time, pillars []time.Time, hazards []float64) (*CreditCurve, error) {
	if len(pillars) == 0 {
		return nil, fmt.Errorf("xva: credit curve needs at least one pillar")
	}
	if len(pillars) != len(hazards) {
		return nil, fmt.Errorf("xva: credit curve has %d pillars but %d hazards", len(pillars), len(hazards))
	}
	prev := asof
	for i, p := range pillars {
		if !p.After(prev) {
			return nil, fmt.Errorf("xva: credit curve pillars must be strictly ascending after asof")
		}
		if hazards[i] < 0 {
			return nil, fmt.Errorf("xva: negative hazard rate at pillar %d", i)
		}
		prev = p
	}
	return &CreditCurve{
		asof:    asof,
		pillars: append([]time.Time(nil), pillars...),
		hazards: append([]float64(nil), hazards...),
	}, nil
}

func yearFrac(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / 365
}

// cumulativeHazard integrates the piecewise-constant hazard rate from asof
// to t.
func (c *CreditCurve) cumulativeHazard(t time.Time) float64 {
	if !t.After(c.asof) {
		return 0
	}
	total := 0.0
	segStart := c.asof
	for i, p := range c.pillars {
		segEnd := p
		if t.Before(segEnd) {
			segEnd = t
		}
		if segEnd.After(segStart) {
			total += c.hazards[i] * yearFrac(segStart, segEnd)
		}
		if !t.After(p) {
			return total
		}
		segStart = p
	}
	// t beyond the last pillar: flat-extrapolate the last hazard rate.
	last := c.hazards[len(c.hazards)-1]
	total += last * yearFrac(segStart, t)
	return total
}

// SurvivalProbability returns S(t) = exp(-∫hazard).
func (c *CreditCurve) SurvivalProbability(t time.Time) float64 {
	return math.Exp(-c.cumulativeHazard(t))
}

// DefaultProbability returns S(t1) - S(t2), the probability of default in
// (t1, t2].
func (c *CreditCurve) DefaultProbability(t1, t2 time.Time) float64 {
	return c.SurvivalProbability(t1) - c.SurvivalProbability(t2)
}

// BumpedAtTenor returns a copy of c with the hazard rate at the pillar
// nearest to yearsFromAsof shifted by shift (absolute, e.g. 1bp = 0.0001),
// used by the CVA spread sensitivity calculation (spec §4.6 step 6).
func (c *CreditCurve) BumpedAtTenor(yearsFromAsof, shift float64) *CreditCurve {
	target := c.asof.Add(time.Duration(yearsFromAsof * 365 * 24 * float64(time.Hour)))
	best := 0
	bestDiff := math.MaxFloat64
	for i, p := range c.pillars {
		diff := math.Abs(p.Sub(target).Hours())
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	hazards := append([]float64(nil), c.hazards...)
	hazards[best] = math.Max(0, hazards[best]+shift)
	bumped, _ := NewCreditCurve(c.asof, c.pillars, hazards)
	return bumped
}

// FlatCreditCurve builds a single-pillar curve with a constant hazard rate,
// useful as a default when no market-implied curve is supplied.
func FlatCreditCurve(asof time.Time, farPillar time.Time, hazard float64) (*CreditCurve, error) {
	return NewCreditCurve(asof, []time.Time{farPillar}, []float64{hazard})
}
