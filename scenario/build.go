package scenario

import (
	"fmt"
	"math/rand"
	"time"

	"bitbucket.org/Davydov/gorex/hmc"
	"bitbucket.org/Davydov/gorex/mcmc"
	"bitbucket.org/Davydov/gorex/model"
	"bitbucket.org/Davydov/gorex/params"
	"bitbucket.org/Davydov/gorex/rex"
)

// Replica is a tempered model with its sampler.
type Replica struct {
	Beta    float64
	Model   model.Probability
	Params  *params.Parameters
	Sampler mcmc.Sampler
}

// Build creates the replicas described by the configuration. Every
// replica gets its own model, parameters and random generator seeded
// from cfg.Seed. A negative seed is replaced by a time based one.
// Models which can draw their parameters start from a draw unless
// the start is given.
func Build(cfg *Config) ([]*Replica, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed < 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	seed := cfg.Seed
	betas := cfg.Betas()
	replicas := make([]*Replica, len(betas))
	for i, beta := range betas {
		ps := params.NewParameters()
		m, par, err := buildModel(&cfg.Model, beta, ps)
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", i, err)
		}
		rng := rand.New(rand.NewSource(seed + int64(i) + 1))
		if sm, ok := m.(model.Sampleable); ok && len(cfg.Model.Start) == 0 {
			if err := sm.Sample(rng); err != nil {
				return nil, fmt.Errorf("replica %d: %w", i, err)
			}
		}
		s, err := buildSampler(&cfg.Sampler, m, par, cfg.Stepsize(i, beta), rng)
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", i, err)
		}
		log.Debugf("Replica %d: beta=%v, model %s, stepsize %v", i, beta, m.Name(), s.Stepsize())
		if post, ok := m.(*model.Posterior); ok {
			for k := 0; k < post.Len(); k++ {
				c, w := post.Component(k)
				log.Debugf("Replica %d: component %s, weight %v", i, c.Name(), w)
			}
		}
		replicas[i] = &Replica{
			Beta:    beta,
			Model:   m,
			Params:  ps,
			Sampler: s,
		}
	}
	return replicas, nil
}

// NewReplicaExchange builds the replicas and the replica exchange
// over them.
func NewReplicaExchange(cfg *Config) (*rex.ReplicaExchange, []*Replica, error) {
	replicas, err := Build(cfg)
	if err != nil {
		return nil, nil, err
	}
	samplers := make([]mcmc.Sampler, len(replicas))
	for i, r := range replicas {
		samplers[i] = r.Sampler
	}
	re, err := rex.NewReplicaExchange(samplers, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return nil, nil, err
	}
	re.Workers = cfg.Workers
	re.StepsPerRound = cfg.StepsPerRound
	re.ReportPeriod = cfg.Report
	return re, replicas, nil
}

// buildModel returns the model tempered by beta and the parameter to
// sample.
func buildModel(cfg *ModelConfig, beta float64, ps *params.Parameters) (model.Probability, params.Parameter, error) {
	switch cfg.Kind {
	case "gaussian":
		g, err := model.NewGaussian("gaussian", ps)
		if err != nil {
			return nil, nil, err
		}
		g.Mu.SetFloat(cfg.Mu)
		if err := g.Tau.SetFloat(beta * cfg.Tau); err != nil {
			return nil, nil, err
		}
		if len(cfg.Start) == 1 {
			g.X.SetFloat(cfg.Start[0])
		}
		return g, g.X, nil
	case "oscillator":
		k := make([]float64, len(cfg.Coupling))
		for i, x := range cfg.Coupling {
			k[i] = beta * x
		}
		osc, err := model.NewOscillator(k, cfg.Dim, ps)
		if err != nil {
			return nil, nil, err
		}
		coords := ps.MustGet(params.CoordinatesName)
		if len(cfg.Start) > 0 {
			if err := coords.Set(cfg.Start); err != nil {
				return nil, nil, err
			}
		}
		return osc, coords, nil
	case "chain":
		post, err := buildChain(&cfg.Chain, beta, ps)
		if err != nil {
			return nil, nil, err
		}
		coords := ps.MustGet(params.CoordinatesName)
		if len(cfg.Start) > 0 {
			if err := coords.Set(cfg.Start); err != nil {
				return nil, nil, err
			}
		}
		return post, coords, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown model kind: %s", ErrConfig, cfg.Kind)
}

// buildChain creates a posterior over the coordinates of a chain
// stretched along the x axis. Contacts and the radius of gyration are
// tempered by beta, the bonds are not.
func buildChain(cfg *ChainConfig, beta float64, ps *params.Parameters) (*model.Posterior, error) {
	n := cfg.Particles
	coords := params.NewCoordinates(3 * n)
	bond := (cfg.BondLower + cfg.BondUpper) / 2
	x := coords.Value()
	for i := 0; i < n; i++ {
		x[3*i] = float64(i) * bond
	}
	if err := ps.AddAll(coords, params.NewForces(3*n)); err != nil {
		return nil, err
	}

	pairs := make([]params.Pair, n-1)
	lower := make([]float64, n-1)
	upper := make([]float64, n-1)
	for i := range pairs {
		pairs[i] = params.Pair{I: i, J: i + 1}
		lower[i], upper[i] = cfg.BondLower, cfg.BondUpper
	}
	bonds, err := params.NewModelDistances(coords, pairs, "bonds")
	if err != nil {
		return nil, err
	}
	backbone, err := model.NewLowerUpper("backbone", upper, bonds, lower, upper, cfg.BondForce, ps)
	if err != nil {
		return nil, err
	}
	post := model.NewPosterior("chain", ps, backbone)

	if len(cfg.Contacts) > 0 {
		cpairs := make([]params.Pair, len(cfg.Contacts))
		data := make([]float64, len(cfg.Contacts))
		for i, c := range cfg.Contacts {
			cpairs[i] = params.Pair{I: c[0], J: c[1]}
			data[i] = cfg.ContactDistance
		}
		d, err := params.NewModelDistances(coords, cpairs, "contact_distances")
		if err != nil {
			return nil, err
		}
		contacts, err := model.NewLogistic("contacts", data, d, cfg.ContactAlpha, ps)
		if err != nil {
			return nil, err
		}
		contacts.Beta = beta
		post.Add(contacts, 1)
	}

	if cfg.Rog > 0 {
		rog, err := model.NewNormal("rog", []float64{cfg.Rog}, params.NewRadiusOfGyration(coords), cfg.RogTau, ps)
		if err != nil {
			return nil, err
		}
		rog.Beta = beta
		post.Add(rog, 1)
	}
	return post, nil
}

// buildSampler creates a sampler of kind cfg.Kind.
func buildSampler(cfg *SamplerConfig, m model.Probability, par params.Parameter, stepsize float64, rng *rand.Rand) (mcmc.Sampler, error) {
	switch cfg.Kind {
	case "rw":
		return mcmc.NewRandomWalk(m, par, stepsize, rng)
	case "adaptive":
		s, err := mcmc.NewAdaptiveWalk(m, par, stepsize, cfg.AdaptUntil, rng)
		if err != nil {
			return nil, err
		}
		if err := setRates(&s.Adaptation, cfg); err != nil {
			return nil, err
		}
		s.Activate()
		return s, nil
	case "hmc":
		dm, ok := m.(model.Differentiable)
		if !ok {
			return nil, fmt.Errorf("%w: model %s is not differentiable", ErrConfig, m.Name())
		}
		s, err := hmc.NewHamiltonianMonteCarlo(dm, stepsize, cfg.LeapfrogSteps, rng)
		if err != nil {
			return nil, err
		}
		if err := setRates(&s.Adaptation, cfg); err != nil {
			return nil, err
		}
		s.AdaptUntil = cfg.AdaptUntil
		s.Activate()
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown sampler kind: %s", ErrConfig, cfg.Kind)
}

func setRates(a *mcmc.Adaptation, cfg *SamplerConfig) error {
	if cfg.Uprate == 0 && cfg.Downrate == 0 {
		return nil
	}
	return a.SetRates(cfg.Uprate, cfg.Downrate)
}
