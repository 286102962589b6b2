package hmc

import (
	"fmt"
	"math/rand"
	"time"

	"bitbucket.org/Davydov/gorex/mcmc"
	"bitbucket.org/Davydov/gorex/model"
)

const (
	// DefaultUprate is the stepsize multiplier after acceptance.
	DefaultUprate = 1.05
	// DefaultDownrate is the stepsize multiplier after rejection.
	DefaultDownrate = 0.96
)

// HamiltonianMonteCarlo samples the coordinates of a differentiable
// model. Momenta are resampled at the beginning of every iteration.
type HamiltonianMonteCarlo struct {
	*mcmc.MetropolisHastings
	mcmc.Adaptation
	leapfrog    *Leapfrog
	hamiltonian *Hamiltonian
}

// NewHamiltonianMonteCarlo creates an inactive adaptive sampler doing
// nsteps leapfrog steps per iteration.
func NewHamiltonianMonteCarlo(m model.Differentiable, stepsize float64, nsteps int, rng *rand.Rand) (*HamiltonianMonteCarlo, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ham, err := NewHamiltonian(m, rng)
	if err != nil {
		return nil, err
	}
	lf, err := NewLeapfrog(ham, stepsize, nsteps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mcmc.ErrConfig, err)
	}
	adaptation, err := mcmc.NewAdaptation(DefaultUprate, DefaultDownrate, 0)
	if err != nil {
		return nil, err
	}
	h := &HamiltonianMonteCarlo{
		Adaptation:  adaptation,
		leapfrog:    lf,
		hamiltonian: ham,
	}
	mh, err := mcmc.NewMetropolisHastings(m, ham.Coordinates(), h, rng)
	if err != nil {
		return nil, err
	}
	h.MetropolisHastings = mh
	return h, nil
}

// Leapfrog returns the integrator.
func (h *HamiltonianMonteCarlo) Leapfrog() *Leapfrog {
	return h.leapfrog
}

// Stepsize returns the leapfrog stepsize.
func (h *HamiltonianMonteCarlo) Stepsize() float64 {
	return h.leapfrog.Stepsize
}

// SetStepsize sets the leapfrog stepsize.
func (h *HamiltonianMonteCarlo) SetStepsize(s float64) {
	h.leapfrog.Stepsize = s
}

// current returns the phase space state of the chain if there is one.
func (h *HamiltonianMonteCarlo) current() *State {
	if h.MetropolisHastings == nil {
		return nil
	}
	s, _ := h.State().(*State)
	return s
}

// NewState creates a phase space state at the current coordinates.
// The momenta of the current state are kept, so that the kinetic
// energy cancels when comparing states created by this sampler.
// Without a current state the momenta are sampled.
func (h *HamiltonianMonteCarlo) NewState() (mcmc.State, error) {
	q, err := h.hamiltonian.Coordinates().Get()
	if err != nil {
		return nil, err
	}
	p := make([]float64, len(q))
	if cur := h.current(); cur != nil && len(cur.Momenta) == len(p) {
		copy(p, cur.Momenta)
	} else {
		h.hamiltonian.SampleMomenta(p)
	}
	u, err := h.hamiltonian.PotentialEnergy(q)
	if err != nil {
		return nil, err
	}
	return &State{
		Positions: q,
		Momenta:   p,
		Potential: u,
		Kinetic:   h.hamiltonian.KineticEnergy(p),
	}, nil
}

// Propose resamples the momenta of current and integrates the
// equations of motion.
func (h *HamiltonianMonteCarlo) Propose(current mcmc.State) (mcmc.State, error) {
	cur, ok := current.(*State)
	if !ok {
		return nil, fmt.Errorf("%w: expected phase space state, got %T", mcmc.ErrConfig, current)
	}
	p := make([]float64, len(cur.Positions))
	h.hamiltonian.SampleMomenta(p)
	cur.Momenta = p
	cur.Kinetic = h.hamiltonian.KineticEnergy(p)

	q := append([]float64(nil), cur.Positions...)
	q, p, err := h.leapfrog.Run(q, append([]float64(nil), p...))
	if err != nil {
		return nil, err
	}
	u, err := h.hamiltonian.PotentialEnergy(q)
	if err != nil {
		return nil, err
	}
	candidate := &State{
		Positions: q,
		Momenta:   p,
		Potential: u,
		Kinetic:   h.hamiltonian.KineticEnergy(p),
	}
	log.Debugf("H: %f -> %f", cur.Energy(), candidate.Energy())
	return candidate, nil
}

// Next performs one iteration and adapts the stepsize. After a
// rejection the forces are recomputed at the current positions.
func (h *HamiltonianMonteCarlo) Next() (mcmc.State, error) {
	s, err := h.MetropolisHastings.Next()
	if err != nil {
		return nil, err
	}
	if !h.History().Last() {
		if err := h.hamiltonian.UpdateForces(s.Value()); err != nil {
			return nil, err
		}
	}
	h.SetStepsize(h.Adapt(h.History(), h.Stepsize()))
	return s, nil
}

// Run performs n iterations and returns the visited states.
func (h *HamiltonianMonteCarlo) Run(n int) ([]mcmc.State, error) {
	return h.RunFunc(h.Next, n)
}
