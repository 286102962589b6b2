// Package mcmc implements Metropolis-Hastings samplers over a single
// parameter of a probabilistic model.
package mcmc

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gorex/model"
	"bitbucket.org/Davydov/gorex/params"
)

// log is the global logging variable.
var log = logging.MustGetLogger("mcmc")

var (
	// ErrNotImplemented is returned if a sampler has no proposal
	// strategy.
	ErrNotImplemented = errors.New("proposal strategy not implemented")
	// ErrConfig is returned for invalid sampler settings.
	ErrConfig = errors.New("invalid sampler configuration")
)

// State is a snapshot of a chain.
type State interface {
	// Value returns the parameter value.
	Value() []float64
	// LogProb returns the log-density used in the acceptance test.
	LogProb() float64
}

// Point is a parameter value with its log-density.
type Point struct {
	value   []float64
	logProb float64
}

// NewPoint creates a new point, the value is copied.
func NewPoint(value []float64, logProb float64) *Point {
	return &Point{
		value:   append([]float64(nil), value...),
		logProb: logProb,
	}
}

// Value returns the parameter value.
func (p *Point) Value() []float64 {
	return p.value
}

// LogProb returns the log-density.
func (p *Point) LogProb() float64 {
	return p.logProb
}

// Proposer generates a candidate state from the current one. A
// proposer may refresh auxiliary variables of the current state
// (e.g. momenta) before the acceptance test.
type Proposer interface {
	Propose(current State) (State, error)
}

// StateCreator is a proposer which creates its own kind of states
// from the current parameter value.
type StateCreator interface {
	NewState() (State, error)
}

// Sampler is a Markov chain over one parameter.
type Sampler interface {
	// Next performs one step of the chain.
	Next() (State, error)
	// State returns the current state.
	State() State
	// SetState replaces the current state and sets the parameter.
	SetState(State) error
	// CreateState evaluates the model at the current parameter
	// value.
	CreateState() (State, error)
	Parameter() params.Parameter
	History() *History
	Stepsize() float64
	SetStepsize(float64)
}

// MetropolisHastings implements the Metropolis acceptance test on
// top of a proposal strategy.
type MetropolisHastings struct {
	model     model.Probability
	parameter params.Parameter
	proposer  Proposer
	history   *History
	state     State
	rng       *rand.Rand
	i         int

	// AccPeriod is how often (in steps) Run reports the
	// acceptance rate.
	AccPeriod int
	// RepPeriod is how often Run writes the trajectory.
	RepPeriod int
	// Trajectory receives tab-separated steps if not nil.
	Trajectory io.Writer
}

// NewMetropolisHastings creates a sampler for parameter par of model
// m. The initial state is created from the current parameter value.
// If rng is nil a time-seeded generator is used.
func NewMetropolisHastings(m model.Probability, par params.Parameter, proposer Proposer, rng *rand.Rand) (*MetropolisHastings, error) {
	if m == nil || par == nil {
		return nil, fmt.Errorf("%w: model and parameter are required", ErrConfig)
	}
	if proposer == nil {
		return nil, ErrNotImplemented
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	mh := &MetropolisHastings{
		model:     m,
		parameter: par,
		proposer:  proposer,
		history:   NewHistory(),
		rng:       rng,
		AccPeriod: 1000,
		RepPeriod: 10,
	}
	state, err := mh.CreateState()
	if err != nil {
		return nil, err
	}
	mh.state = state
	return mh, nil
}

// Parameter returns the sampled parameter.
func (m *MetropolisHastings) Parameter() params.Parameter {
	return m.parameter
}

// History returns the accept/reject history.
func (m *MetropolisHastings) History() *History {
	return m.history
}

// State returns the current state.
func (m *MetropolisHastings) State() State {
	return m.state
}

// SetState replaces the current state and writes its value to the
// parameter.
func (m *MetropolisHastings) SetState(s State) error {
	if err := m.parameter.Set(s.Value()); err != nil {
		return err
	}
	if err := model.Update(m.model); err != nil {
		return err
	}
	m.state = s
	return nil
}

// CreateState creates a state from the current parameter value.
func (m *MetropolisHastings) CreateState() (State, error) {
	if sc, ok := m.proposer.(StateCreator); ok {
		return sc.NewState()
	}
	value, err := m.parameter.Get()
	if err != nil {
		return nil, err
	}
	l, err := model.Evaluate(m.model)
	if err != nil {
		return nil, err
	}
	return &Point{value: value, logProb: l}, nil
}

// Evaluate sets the parameter to value and creates a state there. A
// value outside of the parameter domain gives a point with zero
// density.
func (m *MetropolisHastings) Evaluate(value []float64) (State, error) {
	if err := m.parameter.Set(value); err != nil {
		if errors.Is(err, params.ErrDomain) {
			log.Debugf("%v", err)
			return NewPoint(value, math.Inf(-1)), nil
		}
		return nil, err
	}
	return m.CreateState()
}

// Accept performs the Metropolis test.
func (m *MetropolisHastings) Accept(candidate, current State) bool {
	diff := candidate.LogProb() - current.LogProb()
	return math.Log(m.rng.Float64()) < diff
}

// Next proposes a new state which is accepted or rejected according
// to the Metropolis criterion. Afterwards the parameter holds the
// value of the returned state.
func (m *MetropolisHastings) Next() (State, error) {
	current := m.state
	candidate, err := m.proposer.Propose(current)
	if err != nil {
		return nil, err
	}
	accept := m.Accept(candidate, current)
	if accept {
		m.state = candidate
	}
	if err := m.parameter.Set(m.state.Value()); err != nil {
		return nil, err
	}
	if !accept {
		// derived parameters still hold the candidate
		if err := model.Update(m.model); err != nil {
			return nil, err
		}
	}
	m.history.Update(accept)
	m.i++
	return m.state, nil
}

// RunFunc performs n steps using next and returns the visited
// states. Samplers overriding Next run through it.
func (m *MetropolisHastings) RunFunc(next func() (State, error), n int) ([]State, error) {
	samples := make([]State, 0, n)
	m.printHeader()
	accepted := m.history.Accepted()
	for i := 0; i < n; i++ {
		state, err := next()
		if err != nil {
			return samples, err
		}
		samples = append(samples, state)
		if m.AccPeriod > 0 && m.i%m.AccPeriod == 0 {
			log.Infof("Acceptance rate %.2f%%", 100*float64(m.history.Accepted()-accepted)/float64(m.AccPeriod))
			accepted = m.history.Accepted()
		}
		if m.RepPeriod > 0 && m.i%m.RepPeriod == 0 {
			log.Debugf("%d: L=%f", m.i, state.LogProb())
			m.printLine(state)
		}
	}
	return samples, nil
}

// Run performs n steps and returns the visited states.
func (m *MetropolisHastings) Run(n int) ([]State, error) {
	return m.RunFunc(m.Next, n)
}

func (m *MetropolisHastings) printHeader() {
	if m.Trajectory != nil {
		fmt.Fprintf(m.Trajectory, "iteration\tlikelihood\t%s\n", m.parameter.Name())
	}
}

func (m *MetropolisHastings) printLine(s State) {
	if m.Trajectory == nil {
		return
	}
	vals := make([]string, len(s.Value()))
	for i, x := range s.Value() {
		vals[i] = strconv.FormatFloat(x, 'f', 6, 64)
	}
	fmt.Fprintf(m.Trajectory, "%d\t%f\t%s\n", m.i, s.LogProb(), strings.Join(vals, "\t"))
}
