package scenario

import (
	"context"
	"errors"
	"math"
	"testing"

	"bitbucket.org/Davydov/gorex/hmc"
	"bitbucket.org/Davydov/gorex/mcmc"
	"bitbucket.org/Davydov/gorex/model"
)

func TestDefaults(tst *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if cfg.Seed != -1 || cfg.Rounds != 10000 || cfg.StepsPerRound != 1 {
		tst.Errorf("Wrong defaults: %+v", cfg)
	}
	if cfg.Model.Kind != "gaussian" || cfg.Sampler.Kind != "adaptive" {
		tst.Errorf("Wrong default model or sampler: %s, %s", cfg.Model.Kind, cfg.Sampler.Kind)
	}
	if betas := cfg.Betas(); len(betas) != 1 || betas[0] != 1 {
		tst.Errorf("Expected a single replica with beta=1, got %v", betas)
	}
	if err := cfg.Validate(); err != nil {
		tst.Error("Defaults should be valid: ", err)
	}

	// fields not in the document keep the defaults
	cfg, err = Parse([]byte("sampler:\n  stepsize: 0.5\n"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if cfg.Sampler.Stepsize != 0.5 || cfg.Sampler.AdaptUntil != 1000 {
		tst.Errorf("Wrong sampler: %+v", cfg.Sampler)
	}

	if _, err := Parse([]byte("rounds: [1, 2]")); err == nil {
		tst.Error("Expected a parse error")
	}
	if _, err := Load("testdata/missing.yaml"); err == nil {
		tst.Error("Expected an error for a missing file")
	}
}

func TestLoad(tst *testing.T) {
	cfg, err := Load("testdata/two_gaussians.yaml")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if cfg.Seed != 42 || cfg.Rounds != 2000 || cfg.StepsPerRound != 5 || cfg.Workers != 2 {
		tst.Errorf("Wrong run settings: %+v", cfg)
	}
	if cfg.Checkpoint.File != "rex.db" || cfg.Checkpoint.Key != "rex" || cfg.Checkpoint.Seconds != 30 {
		tst.Errorf("Wrong checkpoint settings: %+v", cfg.Checkpoint)
	}
	betas := cfg.Betas()
	if len(betas) != 2 || betas[0] != 1 || betas[1] != 0.1 {
		tst.Errorf("Wrong betas: %v", betas)
	}
	if s := cfg.Stepsize(0, betas[0]); s != 1 {
		tst.Errorf("Expected stepsize 1, got %v", s)
	}
	if s := cfg.Stepsize(1, betas[1]); s != 3 {
		tst.Errorf("Expected stepsize override 3, got %v", s)
	}
}

func TestSchedule(tst *testing.T) {
	cfg := Default()
	cfg.Schedule = &ScheduleConfig{N: 4, Min: 0.25, Max: 1}
	betas := cfg.Betas()
	exp := []float64{1, 0.75, 0.5, 0.25}
	if len(betas) != len(exp) {
		tst.Fatalf("Expected %d betas, got %v", len(exp), betas)
	}
	for i := range exp {
		if math.Abs(betas[i]-exp[i]) > 1e-12 {
			tst.Errorf("Linear schedule: expected %v, got %v", exp, betas)
			break
		}
	}

	cfg.Schedule = &ScheduleConfig{N: 3, Min: 0.01, Max: 1, Spacing: "geometric"}
	betas = cfg.Betas()
	exp = []float64{1, 0.1, 0.01}
	for i := range exp {
		if math.Abs(betas[i]-exp[i]) > 1e-12 {
			tst.Errorf("Geometric schedule: expected %v, got %v", exp, betas)
			break
		}
	}

	cfg.Schedule = &ScheduleConfig{N: 1, Min: 0.5, Max: 0.5}
	if betas = cfg.Betas(); len(betas) != 1 || betas[0] != 0.5 {
		tst.Errorf("Expected a single replica with beta=0.5, got %v", betas)
	}

	// explicit replicas win
	cfg.Replicas = []ReplicaConfig{{Beta: 1}, {Beta: 0.2}}
	if betas = cfg.Betas(); len(betas) != 2 || betas[1] != 0.2 {
		tst.Errorf("Expected explicit betas, got %v", betas)
	}
}

func TestStepsize(tst *testing.T) {
	cfg := Default()
	cfg.Sampler.Stepsize = 2
	if s := cfg.Stepsize(0, 0.25); s != 4 {
		tst.Errorf("Expected stepsize 4, got %v", s)
	}
	cfg.Sampler.Kind = "hmc"
	if s := cfg.Stepsize(0, 0.25); s != 2 {
		tst.Errorf("HMC stepsize should not be scaled, got %v", s)
	}
}

func TestValidate(tst *testing.T) {
	chain := func(c *Config) {
		c.Model.Kind = "chain"
		c.Model.Chain.Particles = 4
	}
	for _, t := range []struct {
		name   string
		modify func(*Config)
	}{
		{"sampler kind", func(c *Config) { c.Sampler.Kind = "gibbs" }},
		{"model kind", func(c *Config) { c.Model.Kind = "ising" }},
		{"hmc gaussian", func(c *Config) { c.Sampler.Kind = "hmc" }},
		{"stepsize", func(c *Config) { c.Sampler.Stepsize = 0 }},
		{"rates", func(c *Config) { c.Sampler.Uprate, c.Sampler.Downrate = 0.9, 0.5 }},
		{"leapfrog", func(c *Config) {
			chain(c)
			c.Sampler.Kind = "hmc"
			c.Sampler.LeapfrogSteps = 0
		}},
		{"steps per round", func(c *Config) { c.StepsPerRound = 0 }},
		{"workers", func(c *Config) { c.Workers = -1 }},
		{"beta", func(c *Config) { c.Replicas = []ReplicaConfig{{Beta: 1}, {Beta: 0}} }},
		{"schedule", func(c *Config) { c.Schedule = &ScheduleConfig{N: 3, Min: 0, Max: 1} }},
		{"spacing", func(c *Config) { c.Schedule = &ScheduleConfig{N: 3, Min: 0.1, Max: 1, Spacing: "log"} }},
		{"tau", func(c *Config) { c.Model.Tau = -1 }},
		{"oscillator", func(c *Config) {
			c.Model.Kind = "oscillator"
			c.Model.Dim = 2
			c.Model.Coupling = []float64{1, 0, 0}
		}},
		{"contact", func(c *Config) {
			chain(c)
			c.Model.Chain.Contacts = [][]int{{0, 4}}
		}},
		{"self contact", func(c *Config) {
			chain(c)
			c.Model.Chain.Contacts = [][]int{{2, 2}}
		}},
		{"start", func(c *Config) {
			chain(c)
			c.Model.Start = []float64{0, 0, 0}
		}},
		{"checkpoint", func(c *Config) {
			c.Checkpoint.File = "rex.db"
			c.Checkpoint.Key = ""
		}},
	} {
		cfg := Default()
		t.modify(cfg)
		err := cfg.Validate()
		if !errors.Is(err, ErrConfig) {
			tst.Errorf("%s: expected configuration error, got %v", t.name, err)
		}
		if _, err := Build(cfg); !errors.Is(err, ErrConfig) {
			tst.Errorf("%s: build should fail, got %v", t.name, err)
		}
	}
}

func TestBuildGaussians(tst *testing.T) {
	cfg, err := Load("testdata/two_gaussians.yaml")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	re, replicas, err := NewReplicaExchange(cfg)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if re.Len() != 2 || len(replicas) != 2 {
		tst.Fatalf("Expected 2 replicas, got %d", re.Len())
	}
	if re.Workers != 2 || re.StepsPerRound != 5 || re.ReportPeriod != 0 {
		tst.Errorf("Wrong replica exchange settings: %d, %d, %d", re.Workers, re.StepsPerRound, re.ReportPeriod)
	}
	for i, r := range replicas {
		g, ok := r.Model.(*model.Gaussian)
		if !ok {
			tst.Fatalf("Replica %d: expected gaussian, got %T", i, r.Model)
		}
		if tau := g.Tau.Float(); tau != r.Beta {
			tst.Errorf("Replica %d: expected tau=%v, got %v", i, r.Beta, tau)
		}
		aw, ok := r.Sampler.(*mcmc.AdaptiveWalk)
		if !ok {
			tst.Fatalf("Replica %d: expected adaptive walk, got %T", i, r.Sampler)
		}
		if !aw.IsActive() || aw.AdaptUntil != 500 {
			tst.Errorf("Replica %d: wrong adaptation: %v, %d", i, aw.IsActive(), aw.AdaptUntil)
		}
		if re.Sampler(i) != r.Sampler {
			tst.Errorf("Replica %d: sampler is not used by the replica exchange", i)
		}
	}
	other, _, err := NewReplicaExchange(cfg)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for i, r := range replicas {
		x := r.Model.(*model.Gaussian).X.Float()
		if x == 0 {
			tst.Errorf("Replica %d: start should be drawn", i)
		}
		if y := other.State()[i].Value()[0]; y != x {
			tst.Errorf("Replica %d: equal seeds should give equal starts, got %v and %v", i, x, y)
		}
		if v := re.State()[i].Value()[0]; v != x {
			tst.Errorf("Replica %d: sampler state %v differs from the start %v", i, v, x)
		}
	}
	if s := replicas[1].Sampler.Stepsize(); s != 3 {
		tst.Errorf("Expected stepsize 3, got %v", s)
	}
	if err := re.Run(context.Background(), 50); err != nil {
		tst.Fatal("Error: ", err)
	}
	if n := replicas[0].Sampler.History().Len(); n != 250 {
		tst.Errorf("Expected 250 steps, got %d", n)
	}
}

func TestSeed(tst *testing.T) {
	run := func(cfg *Config) []float64 {
		re, _, err := NewReplicaExchange(cfg)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		re.ReportPeriod = 0
		if err := re.Run(context.Background(), 20); err != nil {
			tst.Fatal("Error: ", err)
		}
		var v []float64
		for _, s := range re.State() {
			v = append(v, s.Value()...)
		}
		return v
	}
	cfg := Default()
	cfg.Seed = 5
	cfg.Replicas = []ReplicaConfig{{Beta: 1}, {Beta: 0.5}}
	a := run(cfg)
	b := run(cfg)
	for i := range a {
		if a[i] != b[i] {
			tst.Fatalf("Equal seeds should give equal chains: %v, %v", a, b)
		}
	}

	cfg.Seed = -1
	if _, err := Build(cfg); err != nil {
		tst.Fatal("Error: ", err)
	}
	if cfg.Seed < 0 {
		tst.Error("Negative seed should be replaced")
	}
}

func TestBuildOscillator(tst *testing.T) {
	cfg, err := Parse([]byte(`
seed: 3
model:
  kind: oscillator
  dim: 2
  coupling: [1, 0, 0, 2]
  start: [0.5, -0.5]
sampler:
  kind: hmc
  stepsize: 0.2
  adapt_until: 0
replicas:
  - beta: 1
  - beta: 0.3
`))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	re, replicas, err := NewReplicaExchange(cfg)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	osc, ok := replicas[1].Model.(*model.Oscillator)
	if !ok {
		tst.Fatalf("Expected oscillator, got %T", replicas[1].Model)
	}
	if k := osc.K.At(1, 1); math.Abs(k-0.6) > 1e-12 {
		tst.Errorf("Expected tempered coupling 0.6, got %v", k)
	}
	h, ok := replicas[0].Sampler.(*hmc.HamiltonianMonteCarlo)
	if !ok {
		tst.Fatalf("Expected HMC, got %T", replicas[0].Sampler)
	}
	if h.Leapfrog().NSteps != 10 || h.Stepsize() != 0.2 {
		tst.Errorf("Wrong leapfrog: %d steps, stepsize %v", h.Leapfrog().NSteps, h.Stepsize())
	}
	if v, err := replicas[0].Params.MustGet("coordinates").Get(); err != nil || v[0] != 0.5 || v[1] != -0.5 {
		tst.Errorf("Wrong start: %v, %v", v, err)
	}
	re.ReportPeriod = 0
	if err := re.Run(context.Background(), 100); err != nil {
		tst.Fatal("Error: ", err)
	}
	if rate := h.History().AcceptanceRate(0); rate < 0.5 {
		tst.Errorf("Acceptance rate too low: %v", rate)
	}
}

func TestBuildChain(tst *testing.T) {
	cfg, err := Load("testdata/chain.yaml")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	re, replicas, err := NewReplicaExchange(cfg)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(replicas) != 4 {
		tst.Fatalf("Expected 4 replicas, got %d", len(replicas))
	}
	if replicas[0].Beta != 1 || math.Abs(replicas[3].Beta-0.1) > 1e-12 {
		tst.Errorf("Wrong schedule: %v ... %v", replicas[0].Beta, replicas[3].Beta)
	}
	post, ok := replicas[2].Model.(*model.Posterior)
	if !ok {
		tst.Fatalf("Expected posterior, got %T", replicas[2].Model)
	}
	if post.Len() != 3 {
		tst.Errorf("Expected 3 components, got %d", post.Len())
	}
	for _, name := range []string{"contacts", "rog"} {
		c, ok := post.Lookup(name)
		if !ok {
			tst.Fatalf("Component %s not found", name)
		}
		if l := c.(*model.Likelihood); l.Beta != replicas[2].Beta {
			tst.Errorf("%s: expected beta=%v, got %v", name, replicas[2].Beta, l.Beta)
		}
	}
	for k := 0; k < post.Len(); k++ {
		if _, w := post.Component(k); w != 1 {
			tst.Errorf("Component %d: expected weight 1, got %v", k, w)
		}
	}
	if c, _ := post.Lookup("backbone"); c.(*model.Likelihood).Beta != 1 {
		tst.Error("Backbone should not be tempered")
	}
	if v, err := replicas[0].Params.MustGet("coordinates").Get(); err != nil || len(v) != 24 {
		tst.Errorf("Expected 24 coordinates, got %d, %v", len(v), err)
	}

	re.ReportPeriod = 0
	if err := re.Run(context.Background(), 30); err != nil {
		tst.Fatal("Error: ", err)
	}
	for i, s := range re.State() {
		if math.IsInf(s.LogProb(), 0) || math.IsNaN(s.LogProb()) {
			tst.Errorf("Replica %d: log p=%v", i, s.LogProb())
		}
	}
	if n := re.History().Get(re.History().Pairs()[0]).Len(); n != 15 {
		tst.Errorf("Expected 15 swap attempts, got %d", n)
	}
}
