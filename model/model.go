// Package model defines the contract between samplers and
// probabilistic models and implements several models: a Gaussian, a
// coupled harmonic oscillator, distance likelihoods and a weighted
// posterior.
package model

import (
	"errors"
	"math/rand"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gorex/params"
)

// log is the global logging variable.
var log = logging.MustGetLogger("model")

var (
	// ErrBounds is returned if a lower bound exceeds an upper bound.
	ErrBounds = errors.New("lower bound exceeds upper bound")
	// ErrData is returned if data and mock lengths differ.
	ErrData = errors.New("data length mismatch")
	// ErrKind is returned for an unregistered likelihood kind.
	ErrKind = errors.New("unknown likelihood kind")
)

// Probability is a probabilistic model. LogProb is computed from the
// current parameter values and may rely on derived quantities
// refreshed by Update.
type Probability interface {
	Name() string
	LogProb() float64
}

// Updater is a model with cached derived quantities.
type Updater interface {
	// Update recomputes derived quantities from the current
	// parameter values. It is idempotent.
	Update() error
}

// ForceUpdater is a model which can compute its gradient.
type ForceUpdater interface {
	// UpdateForces adds the gradient of LogProb with respect to the
	// coordinates to the forces parameter. It should be called
	// after Update.
	UpdateForces() error
}

// Sampleable is a model which can draw its parameters.
type Sampleable interface {
	Sample(rng *rand.Rand) error
}

// Differentiable is a model with coordinates and forces usable by
// Hamiltonian Monte Carlo.
type Differentiable interface {
	Probability
	ForceUpdater
	Params() *params.Parameters
}

// Update calls m.Update if m is an Updater.
func Update(m Probability) error {
	if u, ok := m.(Updater); ok {
		return u.Update()
	}
	return nil
}

// Evaluate updates derived quantities and returns the log-density.
func Evaluate(m Probability) (float64, error) {
	if err := Update(m); err != nil {
		return 0, err
	}
	return m.LogProb(), nil
}
