package model

import (
	"math"
	"math/rand"

	"bitbucket.org/Davydov/gorex/params"
)

// Gaussian is a one-dimensional normal distribution over its location
// parameter X with mean Mu and precision Tau.
type Gaussian struct {
	name string
	X    *params.Location
	Mu   *params.Location
	Tau  *params.Precision
	ps   *params.Parameters
}

// NewGaussian creates a standard normal model and registers its
// parameters (name.x, name.mu, name.tau) in ps.
func NewGaussian(name string, ps *params.Parameters) (*Gaussian, error) {
	g := &Gaussian{
		name: name,
		X:    params.NewLocation(name + ".x"),
		Mu:   params.NewLocation(name + ".mu"),
		Tau:  params.NewPrecision(name + ".tau"),
		ps:   ps,
	}
	g.X.SetFloat(0)
	g.Mu.SetFloat(0)
	if err := ps.AddAll(g.X, g.Mu, g.Tau); err != nil {
		return nil, err
	}
	return g, nil
}

// Name returns the model name.
func (g *Gaussian) Name() string {
	return g.name
}

// Params returns the parameter set.
func (g *Gaussian) Params() *params.Parameters {
	return g.ps
}

// Sigma returns the standard deviation.
func (g *Gaussian) Sigma() float64 {
	return 1 / math.Sqrt(g.Tau.Float())
}

// LogProb returns the normalized log-density at X.
func (g *Gaussian) LogProb() float64 {
	tau := g.Tau.Float()
	d := g.X.Float() - g.Mu.Float()
	logNorm := 0.5 * (math.Log(2*math.Pi) - math.Log(tau))
	return -0.5*tau*d*d - logNorm
}

// Sample draws X from the distribution.
func (g *Gaussian) Sample(rng *rand.Rand) error {
	return g.X.SetFloat(g.Mu.Float() + rng.NormFloat64()*g.Sigma())
}
