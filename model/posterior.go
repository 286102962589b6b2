package model

import (
	"fmt"

	"github.com/gonum/floats"

	"bitbucket.org/Davydov/gorex/params"
)

// component is a weighted sub-model.
type component struct {
	Probability
	weight float64
}

// Posterior is a weighted sum of priors and likelihoods sharing one
// parameter set.
type Posterior struct {
	name       string
	ps         *params.Parameters
	components []component
	// scratch stores forces before a weighted component adds to them.
	scratch []float64
}

// NewPosterior creates a posterior from components with unit weights.
func NewPosterior(name string, ps *params.Parameters, components ...Probability) *Posterior {
	p := &Posterior{name: name, ps: ps}
	for _, c := range components {
		p.Add(c, 1)
	}
	return p
}

// Add adds a component with a weight.
func (p *Posterior) Add(m Probability, weight float64) {
	log.Debugf("%s: adding %s (weight=%v)", p.name, m.Name(), weight)
	p.components = append(p.components, component{m, weight})
}

// Name returns the posterior name.
func (p *Posterior) Name() string {
	return p.name
}

// Params returns the shared parameter set.
func (p *Posterior) Params() *params.Parameters {
	return p.ps
}

// Len returns the number of components.
func (p *Posterior) Len() int {
	return len(p.components)
}

// Component returns i-th component and its weight.
func (p *Posterior) Component(i int) (Probability, float64) {
	return p.components[i].Probability, p.components[i].weight
}

// Lookup returns a component by name.
func (p *Posterior) Lookup(name string) (Probability, bool) {
	for _, c := range p.components {
		if c.Name() == name {
			return c.Probability, true
		}
	}
	return nil, false
}

// Update updates all the components.
func (p *Posterior) Update() error {
	for _, c := range p.components {
		if err := Update(c.Probability); err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
	}
	return nil
}

// LogProb returns the weighted sum of the component log-densities.
func (p *Posterior) LogProb() (l float64) {
	for _, c := range p.components {
		l += c.weight * c.LogProb()
	}
	return
}

// UpdateForces adds the weighted gradients of all the components to
// the forces.
func (p *Posterior) UpdateForces() error {
	par, err := p.ps.Get(params.ForcesName)
	if err != nil {
		return err
	}
	forces, ok := par.(*params.Forces)
	if !ok {
		return fmt.Errorf("%w: %s is %T", params.ErrUnknown, params.ForcesName, par)
	}
	f := forces.Value()
	for _, c := range p.components {
		fu, ok := c.Probability.(ForceUpdater)
		if !ok {
			continue
		}
		if c.weight == 1 {
			if err := fu.UpdateForces(); err != nil {
				return fmt.Errorf("%s: %w", c.Name(), err)
			}
			continue
		}
		// forces += w * (forces' - forces)
		p.scratch = append(p.scratch[:0], f...)
		if err := fu.UpdateForces(); err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
		floats.Sub(f, p.scratch)
		floats.Scale(c.weight, f)
		floats.Add(f, p.scratch)
	}
	return nil
}
