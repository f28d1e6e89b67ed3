package engine

import "math"

func normalCdf(x float64) float64 { return 0.5 * math.Erfc(-x/math.Sqrt2) }

// black76Scalar is the standard undiscounted Black-76 formula: cp=+1 call,
// cp=-1 put, t the variance time, k the strike, f the forward, vol the
// lognormal volatility.
func black76Scalar(cp, t, k, f, vol float64) float64 {
	if t <= 0 || vol <= 0 {
		if cp > 0 {
			return math.Max(f-k, 0)
		}
		return math.Max(k-f, 0)
	}
	sigmaSqrtT := vol * math.Sqrt(t)
	d1 := (math.Log(f/k) + 0.5*vol*vol*t) / sigmaSqrtT
	d2 := d1 - sigmaSqrtT
	return cp * (f*normalCdf(cp*d1) - k*normalCdf(cp*d2))
}
