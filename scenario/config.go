// Package scenario describes replica exchange runs in YAML and builds
// the samplers they need.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/gonum/floats"
	"github.com/op/go-logging"
	"gopkg.in/yaml.v3"
)

// log is the global logging variable.
var log = logging.MustGetLogger("scenario")

// ErrConfig is returned for an invalid scenario.
var ErrConfig = errors.New("invalid scenario")

// Config is the root configuration structure.
type Config struct {
	// Seed initializes all the random generators, time based if
	// negative.
	Seed int64 `yaml:"seed"`
	// Rounds is the number of replica exchange rounds.
	Rounds int `yaml:"rounds"`
	// StepsPerRound is the number of sampler steps between swaps.
	StepsPerRound int `yaml:"steps_per_round"`
	// Workers limits the number of concurrently advanced
	// replicas, 0 means no limit.
	Workers int `yaml:"workers"`
	// Report is how often (in rounds) the progress is reported.
	Report int `yaml:"report"`

	Model      ModelConfig      `yaml:"model"`
	Sampler    SamplerConfig    `yaml:"sampler"`
	Replicas   []ReplicaConfig  `yaml:"replicas"`
	Schedule   *ScheduleConfig  `yaml:"schedule"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// ModelConfig selects the model of every replica.
type ModelConfig struct {
	// Kind is gaussian, oscillator or chain.
	Kind string `yaml:"kind"`
	// Mu and Tau are the Gaussian mean and precision.
	Mu  float64 `yaml:"mu"`
	Tau float64 `yaml:"tau"`
	// Dim and Coupling define the oscillator, the coupling matrix
	// is row-major dim×dim.
	Dim      int       `yaml:"dim"`
	Coupling []float64 `yaml:"coupling"`
	// Chain defines the chain model.
	Chain ChainConfig `yaml:"chain"`
	// Start is the starting value of the sampled parameter.
	Start []float64 `yaml:"start"`
}

// ChainConfig is a chain of particles with bond restraints, contacts
// and a radius of gyration restraint.
type ChainConfig struct {
	Particles       int     `yaml:"particles"`
	BondLower       float64 `yaml:"bond_lower"`
	BondUpper       float64 `yaml:"bond_upper"`
	BondForce       float64 `yaml:"bond_force"`
	Contacts        [][]int `yaml:"contacts"`
	ContactDistance float64 `yaml:"contact_distance"`
	ContactAlpha    float64 `yaml:"contact_alpha"`
	// Rog is the target radius of gyration, no restraint if 0.
	Rog    float64 `yaml:"rog"`
	RogTau float64 `yaml:"rog_tau"`
}

// SamplerConfig selects the sampler of every replica.
type SamplerConfig struct {
	// Kind is rw, adaptive or hmc.
	Kind     string  `yaml:"kind"`
	Stepsize float64 `yaml:"stepsize"`
	// AdaptUntil is the number of steps with stepsize adaptation.
	AdaptUntil int `yaml:"adapt_until"`
	// Uprate and Downrate override the default adaptation rates if
	// not zero.
	Uprate   float64 `yaml:"uprate"`
	Downrate float64 `yaml:"downrate"`
	// LeapfrogSteps is the HMC trajectory length.
	LeapfrogSteps int `yaml:"leapfrog_steps"`
}

// ReplicaConfig is one replica of the exchange.
type ReplicaConfig struct {
	// Beta is the inverse temperature.
	Beta float64 `yaml:"beta"`
	// Stepsize overrides the sampler stepsize if not zero.
	Stepsize float64 `yaml:"stepsize"`
}

// ScheduleConfig generates inverse temperatures from Max down to Min.
type ScheduleConfig struct {
	N   int     `yaml:"n"`
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
	// Spacing is linear or geometric.
	Spacing string `yaml:"spacing"`
}

// CheckpointConfig holds checkpoint settings.
type CheckpointConfig struct {
	// File is the bbolt database, no checkpoints if empty.
	File string `yaml:"file"`
	// Key is the checkpoint key inside the database.
	Key string `yaml:"key"`
	// Seconds is the minimum time between checkpoints.
	Seconds float64 `yaml:"seconds"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Seed:          -1,
		Rounds:        10000,
		StepsPerRound: 1,
		Report:        1000,
		Model: ModelConfig{
			Kind: "gaussian",
			Tau:  1,
			Chain: ChainConfig{
				BondLower:       0.9,
				BondUpper:       1.1,
				BondForce:       50,
				ContactDistance: 1.5,
				ContactAlpha:    10,
				RogTau:          1,
			},
		},
		Sampler: SamplerConfig{
			Kind:          "adaptive",
			Stepsize:      1,
			AdaptUntil:    1000,
			LeapfrogSteps: 10,
		},
		Checkpoint: CheckpointConfig{
			Key:     "rex",
			Seconds: 60,
		},
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return cfg, nil
}

// Betas returns the inverse temperatures of the replicas, either
// listed explicitly or generated by the schedule. Without both a
// single replica with beta=1 is used.
func (c *Config) Betas() []float64 {
	if len(c.Replicas) > 0 {
		betas := make([]float64, len(c.Replicas))
		for i, r := range c.Replicas {
			betas[i] = r.Beta
		}
		return betas
	}
	s := c.Schedule
	if s == nil {
		return []float64{1}
	}
	switch {
	case s.N < 1:
		return nil
	case s.N == 1:
		return []float64{s.Max}
	}
	betas := make([]float64, s.N)
	if s.Spacing == "geometric" {
		floats.LogSpan(betas, s.Max, s.Min)
	} else {
		floats.Span(betas, s.Max, s.Min)
	}
	return betas
}

// Stepsize returns the initial stepsize of i-th replica. Unless
// overridden it is scaled by 1/√β.
func (c *Config) Stepsize(i int, beta float64) float64 {
	if i < len(c.Replicas) && c.Replicas[i].Stepsize > 0 {
		return c.Replicas[i].Stepsize
	}
	if c.Sampler.Kind == "hmc" {
		return c.Sampler.Stepsize
	}
	return c.Sampler.Stepsize / math.Sqrt(beta)
}

func configErr(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, a...))
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Rounds < 0 {
		return configErr("rounds should be >= 0, got %d", c.Rounds)
	}
	if c.StepsPerRound < 1 {
		return configErr("steps_per_round should be >= 1, got %d", c.StepsPerRound)
	}
	if c.Workers < 0 {
		return configErr("workers should be >= 0, got %d", c.Workers)
	}
	if s := c.Schedule; s != nil && len(c.Replicas) == 0 {
		if s.N < 1 {
			return configErr("schedule needs at least one replica")
		}
		if !(s.Min > 0) || s.Max < s.Min {
			return configErr("schedule should have 0 < min <= max, got min=%v, max=%v", s.Min, s.Max)
		}
		if s.Spacing != "" && s.Spacing != "linear" && s.Spacing != "geometric" {
			return configErr("unknown schedule spacing: %s", s.Spacing)
		}
	}
	for i, beta := range c.Betas() {
		if !(beta > 0) {
			return configErr("replica %d: beta should be > 0, got %v", i, beta)
		}
	}
	if err := c.Model.validate(); err != nil {
		return err
	}
	if err := c.Sampler.validate(); err != nil {
		return err
	}
	if c.Sampler.Kind == "hmc" && c.Model.Kind == "gaussian" {
		return configErr("hmc sampler needs coordinates, gaussian model has none")
	}
	if c.Checkpoint.File != "" && c.Checkpoint.Key == "" {
		return configErr("checkpoint key is empty")
	}
	if c.Checkpoint.Seconds < 0 {
		return configErr("checkpoint seconds should be >= 0, got %v", c.Checkpoint.Seconds)
	}
	return nil
}

func (m *ModelConfig) validate() error {
	switch m.Kind {
	case "gaussian":
		if !(m.Tau > 0) {
			return configErr("gaussian tau should be > 0, got %v", m.Tau)
		}
		if len(m.Start) > 1 {
			return configErr("gaussian start should have one value, got %d", len(m.Start))
		}
	case "oscillator":
		if m.Dim < 1 || len(m.Coupling) != m.Dim*m.Dim {
			return configErr("oscillator coupling should have %d×%d values, got %d", m.Dim, m.Dim, len(m.Coupling))
		}
		if len(m.Start) != 0 && len(m.Start) != m.Dim {
			return configErr("oscillator start should have %d values, got %d", m.Dim, len(m.Start))
		}
	case "chain":
		ch := m.Chain
		if ch.Particles < 2 {
			return configErr("chain needs at least two particles, got %d", ch.Particles)
		}
		if ch.BondLower > ch.BondUpper {
			return configErr("bond_lower %v > bond_upper %v", ch.BondLower, ch.BondUpper)
		}
		for _, p := range ch.Contacts {
			if len(p) != 2 || p[0] < 0 || p[1] < 0 || p[0] >= ch.Particles || p[1] >= ch.Particles || p[0] == p[1] {
				return configErr("invalid contact %v", p)
			}
		}
		if len(m.Start) != 0 && len(m.Start) != 3*ch.Particles {
			return configErr("chain start should have %d values, got %d", 3*ch.Particles, len(m.Start))
		}
	default:
		return configErr("unknown model kind: %s", m.Kind)
	}
	return nil
}

func (s *SamplerConfig) validate() error {
	switch s.Kind {
	case "rw", "adaptive", "hmc":
	default:
		return configErr("unknown sampler kind: %s", s.Kind)
	}
	if !(s.Stepsize > 0) {
		return configErr("stepsize should be > 0, got %v", s.Stepsize)
	}
	if s.AdaptUntil < 0 {
		return configErr("adapt_until should be >= 0, got %d", s.AdaptUntil)
	}
	if s.Uprate != 0 || s.Downrate != 0 {
		if !(s.Uprate > 1) || !(s.Downrate > 0 && s.Downrate < 1) {
			return configErr("rates should be uprate > 1 and 0 < downrate < 1, got %v, %v", s.Uprate, s.Downrate)
		}
	}
	if s.Kind == "hmc" && s.LeapfrogSteps < 1 {
		return configErr("leapfrog_steps should be >= 1, got %d", s.LeapfrogSteps)
	}
	return nil
}
