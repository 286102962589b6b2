package hmc

import (
	"fmt"

	"github.com/gonum/blas/blas64"
)

// State is a point in phase space.
type State struct {
	Positions []float64
	Momenta   []float64
	Potential float64
	Kinetic   float64
}

// Value returns the positions.
func (s *State) Value() []float64 {
	return s.Positions
}

// LogProb returns -H.
func (s *State) LogProb() float64 {
	return -s.Potential - s.Kinetic
}

// Energy returns the total energy.
func (s *State) Energy() float64 {
	return s.Potential + s.Kinetic
}

func (s *State) String() string {
	return fmt.Sprintf("U=%f, K=%f", s.Potential, s.Kinetic)
}

// Leapfrog is the velocity Verlet integrator.
type Leapfrog struct {
	Hamiltonian *Hamiltonian
	Stepsize    float64
	NSteps      int

	grad []float64
}

// NewLeapfrog creates an integrator doing nsteps steps of size
// stepsize.
func NewLeapfrog(h *Hamiltonian, stepsize float64, nsteps int) (*Leapfrog, error) {
	if !(stepsize > 0) {
		return nil, fmt.Errorf("leapfrog stepsize should be > 0, got %v", stepsize)
	}
	if nsteps < 1 {
		return nil, fmt.Errorf("leapfrog needs at least one step, got %d", nsteps)
	}
	return &Leapfrog{
		Hamiltonian: h,
		Stepsize:    stepsize,
		NSteps:      nsteps,
	}, nil
}

// kick updates p by -dt∇U(q).
func (l *Leapfrog) kick(q, p []float64, dt float64) error {
	if len(l.grad) != len(q) {
		l.grad = make([]float64, len(q))
	}
	if err := l.Hamiltonian.GradientPositions(q, l.grad); err != nil {
		return err
	}
	blas64.Axpy(len(p), -dt, blas64.Vector{Inc: 1, Data: l.grad}, blas64.Vector{Inc: 1, Data: p})
	return nil
}

// drift updates q by dt·p.
func (l *Leapfrog) drift(q, p []float64, dt float64) {
	v := l.Hamiltonian.GradientMomenta(p)
	blas64.Axpy(len(q), dt, blas64.Vector{Inc: 1, Data: v}, blas64.Vector{Inc: 1, Data: q})
}

// Run integrates the trajectory in place and returns q and p.
func (l *Leapfrog) Run(q, p []float64) ([]float64, []float64, error) {
	eps := l.Stepsize
	if err := l.kick(q, p, eps/2); err != nil {
		return nil, nil, err
	}
	for i := 0; i < l.NSteps-1; i++ {
		l.drift(q, p, eps)
		if err := l.kick(q, p, eps); err != nil {
			return nil, nil, err
		}
	}
	l.drift(q, p, eps)
	if err := l.kick(q, p, eps/2); err != nil {
		return nil, nil, err
	}
	return q, p, nil
}
