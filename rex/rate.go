package rex

import (
	"math"

	"github.com/gonum/floats"
)

// LogSwapRate estimates the log of the expected swap acceptance rate
// between ensembles p and q,
//
//	log ∫ p(x)q(y) min(1, p(y)q(x) / (p(x)q(y))) dx dy,
//
// from independent samples x of p and y of q. Samples are paired by
// index, extra samples of the longer pool are ignored.
func LogSwapRate(x, y [][]float64, logP, logQ func([]float64) float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return math.NaN()
	}
	terms := make([]float64, n)
	for k := 0; k < n; k++ {
		diff := logP(y[k]) + logQ(x[k]) - logP(x[k]) - logQ(y[k])
		terms[k] = math.Min(0, diff)
	}
	return floats.LogSumExp(terms) - math.Log(float64(n))
}
