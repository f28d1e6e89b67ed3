package model

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// hypHypParams holds the parameters of a stochastic-volatility SDE used to
// simulate one underlying's price-ratio path, adapted from the teacher's
// single-asset model fit (mc/hyphyp.go): a CEV-like local-volatility
// backbone (Sigma, Beta) driven by an Ornstein-Uhlenbeck activity factor
// (Alpha, Kappa) correlated to the price innovations via Rho.
type hypHypParams struct {
	Sigma, Alpha, Beta, Kappa, Rho float64
}

func defaultHypHypParams() hypHypParams {
	return hypHypParams{Sigma: 0.40, Alpha: 0.01, Beta: 0.01, Rho: 0.0, Kappa: 5.0}
}

// simulate produces numSamples independent log-price-ratio paths over the
// step sizes dt, using the correlated normal draws z1 (price) and z2
// (activity factor), each sized numSamples x len(dt). It returns levels of
// shape [len(dt)+1][numSamples], level 0 being the deterministic start at 1.
func (p hypHypParams) simulate(dt []float64, z1, z2 [][]float64) [][]float64 {
	numSteps := len(dt)
	numSamples := len(z1)
	levels := make([][]float64, numSteps+1)
	levels[0] = make([]float64, numSamples)
	for s := range levels[0] {
		levels[0][s] = 1
	}
	logR := make([]float64, numSamples)
	y := make([]float64, numSamples)
	halfSigma2 := 0.5 * p.Sigma * p.Sigma
	b1 := p.Beta
	b2 := b1 * b1

	for step := 0; step < numSteps; step++ {
		out := make([]float64, numSamples)
		for s := 0; s < numSamples; s++ {
			x := math.Exp(logR[s])
			f := ((1.0-b1+b2)*x + (b1-1)*(math.Sqrt(x*x+b2*(1.0-x)*(1.0-x))-b1)) / b1
			g := y[s] + math.Sqrt(y[s]*y[s]+1.0)
			u := f * g / x
			logR[s] = logR[s] - halfSigma2*dt[step]*u*u + u*math.Sqrt(dt[step])*z1[s][step]
			y[s] = y[s]*math.Exp(-p.Kappa*dt[step]) + p.Alpha*math.Sqrt(1.0-math.Exp(-2.0*p.Kappa*dt[step]))*z2[s][step]
			out[s] = math.Exp(logR[s])
		}
		levels[step+1] = out
	}
	return levels
}

// impliedVol reproduces the teacher's asymptotic implied-volatility
// approximation (Watanabe expansion blended toward a Fouque ATM limit),
// used here only to derive an effective volatility for closed-form barrier
// probabilities; k is moneyness (strike/spot), t the option maturity.
func (p hypHypParams) impliedVol(k, t float64) float64 {
	a := p.Alpha * p.Kappa * t
	h := math.Sqrt(1.0+a) - math.Sqrt(a)
	vWatanabe := p.watanabe(k, t)
	vWatanabeATM := p.watanabe(1.0, t)
	vFouqueATM := p.fouqueATM(t)
	return vWatanabe * ((1.0-h)*vFouqueATM/vWatanabeATM + h)
}

func (p hypHypParams) fouqueATM(t float64) float64 {
	u := p.Kappa * t
	a2 := p.Alpha * p.Alpha
	s := math.Sqrt((math.Exp(-2.0*u)-1.0)*a2/u + 2.0*a2 + 1.0)
	return p.Sigma*s - (p.Alpha*(a2*a2-7.0*a2-1.0)*p.Rho*p.Sigma*p.Sigma)/(s*math.Sqrt(2.0*p.Kappa))
}

func (p hypHypParams) watanabe(k, t float64) float64 {
	a, b, s, r, h := p.Alpha, p.Beta, p.Sigma, p.Rho, p.Kappa
	a2, r2 := a*a, r*r
	h1 := math.Pow(h, 1.5)
	h2 := h * h
	u0 := h * t
	u02 := u0 * u0
	t2 := t * t
	t3 := t2 * t
	s2 := s * s
	u, u1 := math.Exp(-u0), math.Exp(u0)
	uu := u * u
	u2 := u1 * u1
	st := math.Sqrt(t)
	b1 := b * (b - 1.0)
	z := (k - 1.0) / (s * st)
	z2 := z * z
	f1, f2, f3, f4 := b, b1, -3.0*b1, -3.0*b1*(b*b-4.0)
	f12 := f1 * f1
	f13 := f12 * f1
	f22 := f2 * f2
	f44 := f4 * f4 * f4 * f4

	s1 := (z * s) / (2.0 * st) * ((f1-1.0)*s*t + math.Sqrt(8.0)*a*r*(u0+u-1)/(h1*t))

	s21 := 12.0 * math.Sqrt(2.0) * u1 * f1 * a * h1 * r * s * t2 * (u1*(u0-1.0) + 1.0)
	s22 := -u0 * (u2*(f12-2.0*f2-1.0)*t3*h2*s2 - 6.0*a2*r2*(2*u2*u02-5.0*u2*u0+u0-8.0*u1+6.0*u2+2.0))
	s23 := (-6.0 * a2) * (2.0*u2*u02*u0*(r2-1) + u02*(-9.0*u2*r2+r2+5.0*u2-1.0) - 2.0*u0*(u1-1.0)*(-7.0*u1*r2+r2+3.0*u1-1.0) - 4.0*(u1-1.0)*(u1-1.0)*r2)
	s24 := z2 * (-12.0*math.Sqrt(2.0)*u1*a*h1*r*s*t2*(u1*(u0-1.0)+1.0) - u0*(u2*u02*t*s2*(2.0*f12+6.0*f1-4.0*f2-8.0)-6.0*a2*r2*(4.0*u2*u0+8.0*u1-6.0*u2-2.0)) - 6.0*a2*(u02*(12*u2*r2-4.0*u2)+8.0*(u1-1.0)*(u1-1.0)*r2-2.0*(u1-1.0)*u0*(11.0*u1*r2-r2-3.0*u1+1.0)))

	s2term := (s * uu) / (24.0 * u02 * u0) * (s21 + s22 + s23 + s24)

	s3 := (math.Pow(t, 1.5) * z * s2 * s2) / 48.0 * (-f13 + f12 + (2.0*f2+3.0)*f1 - 2.0*f2 + 2.0*f3 - 3.0 + 2.0*z2*(f13+f12+(4.0-2.0*f2)*f1-2.0*f2+f3-6.0))

	s41 := 8.0 * z2 * z2 * (19.0*f12*f12 + 15.0*f13 + (20.0-46.0*f2)*f12 + 6.0*(3.0*f3-5.0*f2+15.0)*f1 - 40.0*f2 + 16.0*f22 + 15.0*f3 - 6.0*f4 - 144.0)
	s42 := -2.0 * z2 * (11.0*f44 + 30.0*f13 + (20.0-44.0*f2)*f12 + 6.0*(12.0*f3-10.0*f2-45.0)*f1 + 140.0*f2 + 44.0*f22 - 60.0*f3 + 36.0*f4 + 209.0)
	s43 := -3.0 * (3.0*f12*f12 - 2.0*(6.0*f2+5.0)*f12 + 16.0*f3*f1 + 12.0*f22 + 20.0*f2 + 8.0*f4 + 7.0)
	s4 := (-t2 * s2 * s2 * s) / 5760.0 * (s41 + s42 + s43)

	return s + s1 + s2term + s3 + s4
}

// newStdNormal wraps golang.org/x/exp/rand with a gonum distuv.Normal
// generator, matching the teacher's RNG choice in mc/hyphyp.go.
func newStdNormal(seed uint64) distuv.Normal {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}
}
