// Package hmc implements Hamiltonian Monte Carlo over the coordinates
// of a differentiable model.
package hmc

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/gonum/blas/blas64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gorex/model"
	"bitbucket.org/Davydov/gorex/params"
)

// log is the global logging variable.
var log = logging.MustGetLogger("hmc")

// ErrModel is returned if a model lacks coordinates or forces.
var ErrModel = errors.New("model is not differentiable")

// Hamiltonian is H(q, p) = U(q) + pᵀp/2 with U = -log p(q).
type Hamiltonian struct {
	model  model.Differentiable
	coords *params.Coordinates
	forces *params.Forces
	rng    *rand.Rand
}

// NewHamiltonian creates a Hamiltonian for model m.
func NewHamiltonian(m model.Differentiable, rng *rand.Rand) (*Hamiltonian, error) {
	ps := m.Params()
	if ps == nil {
		return nil, fmt.Errorf("%w: %s has no parameters", ErrModel, m.Name())
	}
	c, ok := ps.Lookup(params.CoordinatesName)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s", ErrModel, m.Name(), params.CoordinatesName)
	}
	coords, ok := c.(*params.Coordinates)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrModel, params.CoordinatesName, c)
	}
	f, ok := ps.Lookup(params.ForcesName)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s", ErrModel, m.Name(), params.ForcesName)
	}
	forces, ok := f.(*params.Forces)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrModel, params.ForcesName, f)
	}
	return &Hamiltonian{
		model:  m,
		coords: coords,
		forces: forces,
		rng:    rng,
	}, nil
}

// Coordinates returns the position parameter.
func (h *Hamiltonian) Coordinates() *params.Coordinates {
	return h.coords
}

// PotentialEnergy returns -log p(q).
func (h *Hamiltonian) PotentialEnergy(q []float64) (float64, error) {
	if err := h.coords.Set(q); err != nil {
		return 0, err
	}
	l, err := model.Evaluate(h.model)
	if err != nil {
		return 0, err
	}
	return -l, nil
}

// KineticEnergy returns pᵀp/2.
func (h *Hamiltonian) KineticEnergy(p []float64) float64 {
	v := blas64.Vector{Inc: 1, Data: p}
	return 0.5 * blas64.Dot(len(p), v, v)
}

// GradientMomenta returns ∂H/∂p, which is p itself.
func (h *Hamiltonian) GradientMomenta(p []float64) []float64 {
	return p
}

// UpdateForces sets the coordinates to q and recomputes the forces
// there.
func (h *Hamiltonian) UpdateForces(q []float64) error {
	h.forces.Fill(0)
	if err := h.coords.Set(q); err != nil {
		return err
	}
	if err := model.Update(h.model); err != nil {
		return err
	}
	return h.model.UpdateForces()
}

// GradientPositions writes ∂H/∂q = -∇log p(q) into grad.
func (h *Hamiltonian) GradientPositions(q []float64, grad []float64) error {
	if err := h.UpdateForces(q); err != nil {
		return err
	}
	for i, f := range h.forces.Value() {
		grad[i] = -f
	}
	return nil
}

// SampleMomenta fills p with independent standard normal draws.
func (h *Hamiltonian) SampleMomenta(p []float64) {
	for i := range p {
		p[i] = h.rng.NormFloat64()
	}
}
