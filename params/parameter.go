// Package params implements named, mutable numeric parameters shared
// between probabilistic models and samplers.
package params

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("params")

var (
	// ErrNotSet is returned when a parameter is read before it was set.
	ErrNotSet = errors.New("parameter not set")
	// ErrDomain is returned when a value violates the parameter domain.
	ErrDomain = errors.New("value outside of parameter domain")
	// ErrShape is returned when a value does not match the parameter shape.
	ErrShape = errors.New("parameter shape mismatch")
	// ErrDuplicate is returned when a parameter name is already registered.
	ErrDuplicate = errors.New("duplicate parameter name")
	// ErrUnknown is returned when a parameter name is not registered.
	ErrUnknown = errors.New("unknown parameter name")
)

// Parameter is a named value holder. Values are always flat float64
// vectors; scalars have length one.
type Parameter interface {
	// Name returns the parameter name.
	Name() string
	// Get returns a copy of the current value.
	Get() ([]float64, error)
	// Set validates and stores a value. If validation fails the
	// previous value is kept.
	Set([]float64) error
	// Update recomputes a derived value, it is a no-op for
	// independent parameters.
	Update() error
}

// Derived is a parameter computed from coordinates which can
// propagate a gradient back to the coordinates.
type Derived interface {
	Parameter
	// Backprop adds grad·∂value/∂coordinates to forces.
	Backprop(grad []float64, forces *Forces) error
}

// base stores the name and the value.
type base struct {
	name  string
	value []float64
}

// Name returns the parameter name.
func (p *base) Name() string {
	return p.name
}

// IsSet returns true if the value was set.
func (p *base) IsSet() bool {
	return p.value != nil
}

// Get returns a copy of the value.
func (p *base) Get() ([]float64, error) {
	if p.value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotSet, p.name)
	}
	v := make([]float64, len(p.value))
	copy(v, p.value)
	return v, nil
}

// Value returns the stored slice without copying. It panics if the
// parameter was never set.
func (p *base) Value() []float64 {
	if p.value == nil {
		panic(fmt.Sprintf("parameter %s not set", p.name))
	}
	return p.value
}

// Update does nothing.
func (p *base) Update() error {
	return nil
}

// store copies v into the value, keeping the backing array.
func (p *base) store(v []float64) {
	if len(p.value) != len(v) || p.value == nil {
		p.value = make([]float64, len(v))
	}
	copy(p.value, v)
}

// String returns the name and the formatted value.
func (p *base) String() string {
	if p.value == nil {
		return p.name + "=<not set>"
	}
	s := make([]string, len(p.value))
	for i, x := range p.value {
		s[i] = strconv.FormatFloat(x, 'f', 6, 64)
	}
	return p.name + "=" + strings.Join(s, ",")
}

// scalar implements a parameter holding exactly one value.
type scalar struct {
	base
	check func(float64) error
}

// Set sets a scalar value, v should have length one.
func (p *scalar) Set(v []float64) error {
	if len(v) != 1 {
		return fmt.Errorf("%w: %s expects a scalar, got %d values", ErrShape, p.name, len(v))
	}
	if p.check != nil {
		if err := p.check(v[0]); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	p.store(v)
	return nil
}

// Float returns the scalar value. It panics if unset.
func (p *scalar) Float() float64 {
	return p.Value()[0]
}

// SetFloat sets the scalar value.
func (p *scalar) SetFloat(x float64) error {
	return p.Set([]float64{x})
}

// nonNegative checks that x >= 0.
func nonNegative(x float64) error {
	if math.IsNaN(x) || x < 0 {
		return fmt.Errorf("%w: %v must be non-negative", ErrDomain, x)
	}
	return nil
}

// Location is an unconstrained real scalar.
type Location struct {
	scalar
}

// NewLocation creates a new location parameter which is not set.
func NewLocation(name string) *Location {
	return &Location{scalar{base: base{name: name}}}
}

// Scale is a non-negative scalar factor, 1 by default.
type Scale struct {
	scalar
}

// NewScale creates a new scale parameter set to 1.
func NewScale(name string) *Scale {
	s := &Scale{scalar{base: base{name: name}, check: nonNegative}}
	s.store([]float64{1})
	return s
}

// Precision is an inverse variance.
type Precision struct {
	Scale
}

// NewPrecision creates a new precision parameter set to 1.
func NewPrecision(name string) *Precision {
	return &Precision{*NewScale(name)}
}
