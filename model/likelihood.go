package model

import (
	"fmt"
	"math"

	"bitbucket.org/Davydov/gorex/params"
)

// Kind is a likelihood family.
type Kind int

const (
	// Normal is a Gaussian error model with a precision.
	Normal Kind = iota
	// LowerUpper is a flat-bottom harmonic restraint between
	// lower and upper bounds.
	LowerUpper
	// Logistic is a smooth step penalizing mock values above
	// the data.
	Logistic
	// Relu is a linear penalty for mock values above the data.
	Relu
)

// Mock is a derived parameter a likelihood compares with data.
type Mock interface {
	params.Derived
	Value() []float64
}

// Strategy implements one likelihood family. LogProb returns the
// unweighted log-density of mock values x, Derivatives writes
// d logp / dx into grad.
type Strategy struct {
	Name        string
	LogProb     func(l *Likelihood, x []float64) float64
	Derivatives func(l *Likelihood, x, grad []float64)
}

// strategies is the registered strategy table.
var strategies = map[Kind]Strategy{}

// Register registers a likelihood family.
func Register(kind Kind, s Strategy) {
	strategies[kind] = s
}

func init() {
	Register(Normal, Strategy{"Normal", normalLogProb, normalDerivatives})
	Register(LowerUpper, Strategy{"LowerUpper", lowerUpperLogProb, lowerUpperDerivatives})
	Register(Logistic, Strategy{"Logistic", logisticLogProb, logisticDerivatives})
	Register(Relu, Strategy{"Relu", reluLogProb, reluDerivatives})
}

// String returns the family name.
func (k Kind) String() string {
	if s, ok := strategies[k]; ok {
		return s.Name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Likelihood compares mock data computed from coordinates with
// observed data. The Beta exponent tempers the likelihood.
type Likelihood struct {
	name string
	kind Kind
	// Data are the observations.
	Data []float64
	// Mock are the derived quantities matching Data.
	Mock Mock
	// Beta is the likelihood weight (inverse temperature).
	Beta float64
	// Precision is used by Normal and LowerUpper.
	Precision *params.Precision
	// Steepness is used by Logistic and Relu.
	Steepness *params.Scale
	// Lower and Upper bounds are used by LowerUpper.
	Lower, Upper []float64

	ps       *params.Parameters
	strategy Strategy
	grad     []float64
}

// newLikelihood creates a likelihood and registers its
// hyperparameter in ps.
func newLikelihood(kind Kind, name string, data []float64, mock Mock, ps *params.Parameters) (*Likelihood, error) {
	s, ok := strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrKind, kind)
	}
	if len(data) != len(mock.Value()) {
		return nil, fmt.Errorf("%w: %s has %d data points and %d mock values", ErrData, name, len(data), len(mock.Value()))
	}
	l := &Likelihood{
		name:     name,
		kind:     kind,
		Data:     append([]float64(nil), data...),
		Mock:     mock,
		Beta:     1,
		ps:       ps,
		strategy: s,
		grad:     make([]float64, len(data)),
	}
	return l, nil
}

// NewNormal creates a Gaussian likelihood with precision tau. The
// precision is registered as name.tau.
func NewNormal(name string, data []float64, mock Mock, tau float64, ps *params.Parameters) (*Likelihood, error) {
	l, err := newLikelihood(Normal, name, data, mock, ps)
	if err != nil {
		return nil, err
	}
	l.Precision = params.NewPrecision(name + ".tau")
	if err := l.Precision.SetFloat(tau); err != nil {
		return nil, err
	}
	return l, ps.Add(l.Precision)
}

// NewLowerUpper creates a flat-bottom restraint with force constant
// k. The force constant is registered as name.tau.
func NewLowerUpper(name string, data []float64, mock Mock, lower, upper []float64, k float64, ps *params.Parameters) (*Likelihood, error) {
	l, err := newLikelihood(LowerUpper, name, data, mock, ps)
	if err != nil {
		return nil, err
	}
	if len(lower) != len(data) || len(upper) != len(data) {
		return nil, fmt.Errorf("%w: %s bounds and data differ in length", ErrData, name)
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("%w: %s[%d]: %v > %v", ErrBounds, name, i, lower[i], upper[i])
		}
	}
	l.Lower = append([]float64(nil), lower...)
	l.Upper = append([]float64(nil), upper...)
	l.Precision = params.NewPrecision(name + ".tau")
	if err := l.Precision.SetFloat(k); err != nil {
		return nil, err
	}
	return l, ps.Add(l.Precision)
}

// newSteep creates a likelihood with a steepness parameter
// registered as name.alpha.
func newSteep(kind Kind, name string, data []float64, mock Mock, alpha float64, ps *params.Parameters) (*Likelihood, error) {
	l, err := newLikelihood(kind, name, data, mock, ps)
	if err != nil {
		return nil, err
	}
	l.Steepness = params.NewScale(name + ".alpha")
	if err := l.Steepness.SetFloat(alpha); err != nil {
		return nil, err
	}
	return l, ps.Add(l.Steepness)
}

// NewLogistic creates a logistic likelihood with steepness alpha.
func NewLogistic(name string, data []float64, mock Mock, alpha float64, ps *params.Parameters) (*Likelihood, error) {
	return newSteep(Logistic, name, data, mock, alpha, ps)
}

// NewRelu creates a linear penalty likelihood with slope alpha.
func NewRelu(name string, data []float64, mock Mock, alpha float64, ps *params.Parameters) (*Likelihood, error) {
	return newSteep(Relu, name, data, mock, alpha, ps)
}

// Name returns the likelihood name.
func (l *Likelihood) Name() string {
	return l.name
}

// Kind returns the likelihood family.
func (l *Likelihood) Kind() Kind {
	return l.kind
}

// Params returns the parameter set.
func (l *Likelihood) Params() *params.Parameters {
	return l.ps
}

// Update recomputes the mock data.
func (l *Likelihood) Update() error {
	return l.Mock.Update()
}

// LogProb returns the tempered log-likelihood of the current mock
// data.
func (l *Likelihood) LogProb() float64 {
	return l.Beta * l.strategy.LogProb(l, l.Mock.Value())
}

// UpdateDerivatives computes d logp / d mock and returns it. The
// returned slice is reused between calls.
func (l *Likelihood) UpdateDerivatives() []float64 {
	l.strategy.Derivatives(l, l.Mock.Value(), l.grad)
	for i := range l.grad {
		l.grad[i] *= l.Beta
	}
	return l.grad
}

// UpdateForces propagates the derivatives through the mock data into
// the forces parameter.
func (l *Likelihood) UpdateForces() error {
	par, err := l.ps.Get(params.ForcesName)
	if err != nil {
		return err
	}
	forces, ok := par.(*params.Forces)
	if !ok {
		return fmt.Errorf("%w: %s is %T", params.ErrUnknown, params.ForcesName, par)
	}
	return l.Mock.Backprop(l.UpdateDerivatives(), forces)
}

func normalLogProb(l *Likelihood, x []float64) float64 {
	tau := l.Precision.Float()
	var chi2 float64
	for i, y := range l.Data {
		chi2 += (x[i] - y) * (x[i] - y)
	}
	return -0.5*tau*chi2 + 0.5*float64(len(x))*math.Log(tau/(2*math.Pi))
}

func normalDerivatives(l *Likelihood, x, grad []float64) {
	tau := l.Precision.Float()
	for i, y := range l.Data {
		grad[i] = -tau * (x[i] - y)
	}
}

func lowerUpperLogProb(l *Likelihood, x []float64) float64 {
	var chi2 float64
	for i := range x {
		switch {
		case x[i] > l.Upper[i]:
			chi2 += (x[i] - l.Upper[i]) * (x[i] - l.Upper[i])
		case x[i] < l.Lower[i]:
			chi2 += (l.Lower[i] - x[i]) * (l.Lower[i] - x[i])
		}
	}
	return -0.5 * l.Precision.Float() * chi2
}

func lowerUpperDerivatives(l *Likelihood, x, grad []float64) {
	tau := l.Precision.Float()
	for i := range x {
		switch {
		case x[i] > l.Upper[i]:
			grad[i] = -tau * (x[i] - l.Upper[i])
		case x[i] < l.Lower[i]:
			grad[i] = -tau * (x[i] - l.Lower[i])
		default:
			grad[i] = 0
		}
	}
}

// logAddExp0 computes log(1 + exp(z)) without overflow.
func logAddExp0(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func logisticLogProb(l *Likelihood, x []float64) float64 {
	alpha := l.Steepness.Float()
	var s float64
	for i, y := range l.Data {
		s += logAddExp0(alpha * (x[i] - y))
	}
	return -s
}

func logisticDerivatives(l *Likelihood, x, grad []float64) {
	alpha := l.Steepness.Float()
	for i, y := range l.Data {
		grad[i] = -alpha / (1 + math.Exp(-alpha*(x[i]-y)))
	}
}

func reluLogProb(l *Likelihood, x []float64) float64 {
	var s float64
	for i, y := range l.Data {
		s += math.Max(0, x[i]-y)
	}
	return -l.Steepness.Float() * s
}

func reluDerivatives(l *Likelihood, x, grad []float64) {
	alpha := l.Steepness.Float()
	for i, y := range l.Data {
		if x[i] > y {
			grad[i] = -alpha
		} else {
			grad[i] = 0
		}
	}
}
