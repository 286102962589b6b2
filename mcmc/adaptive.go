package mcmc

import (
	"fmt"
	"math/rand"

	"bitbucket.org/Davydov/gorex/model"
	"bitbucket.org/Davydov/gorex/params"
)

const (
	// DefaultUprate is the default step size multiplier after an
	// accepted step.
	DefaultUprate = 1.02
	// DefaultDownrate is the default step size multiplier after a
	// rejected step.
	DefaultDownrate = 0.98
)

// Adaptation tunes a step size: after an accepted step it is
// multiplied by the uprate, after a rejected one by the downrate.
// Adaptation stops as soon as the history contains AdaptUntil trials.
type Adaptation struct {
	uprate   float64
	downrate float64
	// AdaptUntil is the number of trials after which the step
	// size is frozen.
	AdaptUntil int
	active     bool
}

// NewAdaptation creates an inactive adaptation.
func NewAdaptation(uprate, downrate float64, adaptUntil int) (Adaptation, error) {
	a := Adaptation{AdaptUntil: adaptUntil}
	if err := a.SetRates(uprate, downrate); err != nil {
		return a, err
	}
	return a, nil
}

// SetRates sets the multipliers, uprate should be > 1 and downrate in
// (0, 1).
func (a *Adaptation) SetRates(uprate, downrate float64) error {
	if !(uprate > 1) {
		return fmt.Errorf("%w: uprate should be > 1, got %v", ErrConfig, uprate)
	}
	if !(downrate > 0 && downrate < 1) {
		return fmt.Errorf("%w: downrate should be in (0, 1), got %v", ErrConfig, downrate)
	}
	a.uprate, a.downrate = uprate, downrate
	return nil
}

// Rates returns the uprate and the downrate.
func (a *Adaptation) Rates() (uprate, downrate float64) {
	return a.uprate, a.downrate
}

// Activate enables adaptation.
func (a *Adaptation) Activate() {
	a.active = true
}

// Deactivate disables adaptation.
func (a *Adaptation) Deactivate() {
	a.active = false
}

// IsActive returns true if adaptation is enabled.
func (a *Adaptation) IsActive() bool {
	return a.active
}

// Adapt returns the new step size given the history of the chain.
func (a *Adaptation) Adapt(h *History, stepsize float64) float64 {
	if h.Len() >= a.AdaptUntil {
		a.Deactivate()
	}
	if !a.active {
		return stepsize
	}
	if h.Last() {
		return stepsize * a.uprate
	}
	return stepsize * a.downrate
}

// AdaptiveWalk is a random walk with step size adaptation.
type AdaptiveWalk struct {
	*RandomWalk
	Adaptation
}

// NewAdaptiveWalk creates an inactive adaptive random walk, call
// Activate to enable adaptation.
func NewAdaptiveWalk(m model.Probability, par params.Parameter, stepsize float64, adaptUntil int, rng *rand.Rand) (*AdaptiveWalk, error) {
	adaptation, err := NewAdaptation(DefaultUprate, DefaultDownrate, adaptUntil)
	if err != nil {
		return nil, err
	}
	rw, err := NewRandomWalk(m, par, stepsize, rng)
	if err != nil {
		return nil, err
	}
	return &AdaptiveWalk{RandomWalk: rw, Adaptation: adaptation}, nil
}

// Next performs a random walk step and adapts the step size.
func (a *AdaptiveWalk) Next() (State, error) {
	state, err := a.RandomWalk.Next()
	if err != nil {
		return nil, err
	}
	a.SetStepsize(a.Adapt(a.History(), a.Stepsize()))
	return state, nil
}

// Run performs n adaptive steps and returns the visited states.
func (a *AdaptiveWalk) Run(n int) ([]State, error) {
	return a.RunFunc(a.Next, n)
}
