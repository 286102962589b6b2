package mcmc

import (
	"fmt"
	"math/rand"

	"bitbucket.org/Davydov/gorex/model"
	"bitbucket.org/Davydov/gorex/params"
)

// RandomWalk is a Metropolis sampler with a symmetric uniform
// proposal, y = x + stepsize·U(-1, 1) elementwise.
type RandomWalk struct {
	*MetropolisHastings
	stepsize float64
}

// NewRandomWalk creates a random walk sampler for parameter par of m.
func NewRandomWalk(m model.Probability, par params.Parameter, stepsize float64, rng *rand.Rand) (*RandomWalk, error) {
	if !(stepsize > 0) {
		return nil, fmt.Errorf("%w: stepsize should be > 0, got %v", ErrConfig, stepsize)
	}
	rw := &RandomWalk{stepsize: stepsize}
	mh, err := NewMetropolisHastings(m, par, rw, rng)
	if err != nil {
		return nil, err
	}
	rw.MetropolisHastings = mh
	return rw, nil
}

// Stepsize returns the proposal half-width.
func (rw *RandomWalk) Stepsize() float64 {
	return rw.stepsize
}

// SetStepsize sets the proposal half-width.
func (rw *RandomWalk) SetStepsize(s float64) {
	rw.stepsize = s
}

// Propose shifts every element by a uniform random amount.
func (rw *RandomWalk) Propose(current State) (State, error) {
	x := current.Value()
	y := make([]float64, len(x))
	for i := range x {
		y[i] = x[i] + rw.stepsize*(2*rw.rng.Float64()-1)
	}
	return rw.Evaluate(y)
}
