// Package stats implements goodness-of-fit checks for samples drawn
// by Monte Carlo samplers.
package stats

import (
	"math"
	"sort"

	"github.com/gonum/mathext"
	"github.com/gonum/stat"
	"github.com/gonum/stat/distuv"
)

// KolmogorovSmirnov returns the one-sample Kolmogorov-Smirnov
// statistic of xs against the distribution function cdf and its
// asymptotic p-value.
func KolmogorovSmirnov(xs []float64, cdf func(float64) float64) (d, p float64) {
	n := len(xs)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	fn := float64(n)
	for i, x := range sorted {
		f := cdf(x)
		d = math.Max(d, math.Max(f-float64(i)/fn, float64(i+1)/fn-f))
	}
	sq := math.Sqrt(fn)
	return d, KolmogorovQ((sq + 0.12 + 0.11/sq) * d)
}

// NormalKS tests xs against the normal distribution with mean mu and
// standard deviation sigma.
func NormalKS(xs []float64, mu, sigma float64) (d, p float64) {
	norm := distuv.Normal{Mu: mu, Sigma: sigma}
	return KolmogorovSmirnov(xs, norm.CDF)
}

// KolmogorovQ is the complementary Kolmogorov distribution function,
// Q(λ) = 2 Σ (-1)^(j-1) exp(-2j²λ²).
func KolmogorovQ(lambda float64) float64 {
	if lambda < 0.2 {
		return 1
	}
	const eps1, eps2 = 1e-6, 1e-16
	a2 := -2 * lambda * lambda
	sum, sign, prev := 0.0, 2.0, 0.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return sum
		}
		sign = -sign
		prev = math.Abs(term)
	}
	// no convergence
	return 1
}

// VarianceTest compares the sample variance of xs to variance using
// the chi-square statistic (n-1)s²/σ². It returns the statistic and
// the two-sided p-value.
func VarianceTest(xs []float64, variance float64) (chi2, p float64) {
	n := len(xs)
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	df := float64(n - 1)
	chi2 = df * stat.Variance(xs, nil) / variance
	cdf := mathext.GammaInc(df/2, chi2/2)
	return chi2, math.Min(1, 2*math.Min(cdf, 1-cdf))
}

// Thin returns every k-th element of xs starting from burnin.
func Thin(xs []float64, burnin, k int) []float64 {
	if k < 1 {
		k = 1
	}
	var res []float64
	for i := burnin; i < len(xs); i += k {
		res = append(res, xs[i])
	}
	return res
}
