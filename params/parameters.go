package params

import (
	"fmt"
	"strings"
)

// Parameters is an insertion-ordered set of uniquely named
// parameters. It is shared by reference between all the models
// constructed against it.
type Parameters struct {
	order []Parameter
	index map[string]int
}

// NewParameters creates an empty parameter set.
func NewParameters() *Parameters {
	return &Parameters{index: make(map[string]int)}
}

// Add registers a parameter.
func (ps *Parameters) Add(par Parameter) error {
	if par == nil {
		return fmt.Errorf("%w: nil parameter", ErrUnknown)
	}
	if _, ok := ps.index[par.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, par.Name())
	}
	ps.index[par.Name()] = len(ps.order)
	ps.order = append(ps.order, par)
	log.Debugf("registered parameter %s", par.Name())
	return nil
}

// AddAll registers all the parameters in order and stops at the first
// error.
func (ps *Parameters) AddAll(pars ...Parameter) error {
	for _, par := range pars {
		if err := ps.Add(par); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns a parameter by name.
func (ps *Parameters) Lookup(name string) (Parameter, bool) {
	i, ok := ps.index[name]
	if !ok {
		return nil, false
	}
	return ps.order[i], true
}

// Get returns a parameter by name or ErrUnknown.
func (ps *Parameters) Get(name string) (Parameter, error) {
	par, ok := ps.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return par, nil
}

// MustGet returns a parameter by name and panics if it is not
// registered.
func (ps *Parameters) MustGet(name string) Parameter {
	par, ok := ps.Lookup(name)
	if !ok {
		panic("unknown parameter name: " + name)
	}
	return par
}

// Len returns the number of parameters.
func (ps *Parameters) Len() int {
	return len(ps.order)
}

// At returns i-th parameter in insertion order.
func (ps *Parameters) At(i int) Parameter {
	return ps.order[i]
}

// Names returns parameter names in insertion order.
func (ps *Parameters) Names() []string {
	names := make([]string, len(ps.order))
	for i, par := range ps.order {
		names[i] = par.Name()
	}
	return names
}

// Values returns a copy of all the parameter values.
func (ps *Parameters) Values() (map[string][]float64, error) {
	vals := make(map[string][]float64, len(ps.order))
	for _, par := range ps.order {
		v, err := par.Get()
		if err != nil {
			return nil, err
		}
		vals[par.Name()] = v
	}
	return vals, nil
}

// SetValues sets parameters from the map. Names missing from the
// set are an error.
func (ps *Parameters) SetValues(vals map[string][]float64) error {
	for name, v := range vals {
		par, err := ps.Get(name)
		if err != nil {
			return err
		}
		if err := par.Set(v); err != nil {
			return err
		}
	}
	return nil
}

// String prints one parameter per line.
func (ps *Parameters) String() string {
	s := make([]string, len(ps.order))
	for i, par := range ps.order {
		if st, ok := par.(fmt.Stringer); ok {
			s[i] = st.String()
		} else {
			s[i] = par.Name()
		}
	}
	return strings.Join(s, "\n")
}
