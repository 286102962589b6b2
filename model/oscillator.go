package model

import (
	"fmt"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/gorex/params"
)

// Oscillator is a harmonic oscillator with coupled degrees of
// freedom, log p(x) = -xᵀKx/2.
type Oscillator struct {
	name   string
	K      *mat64.SymDense
	coords *params.Coordinates
	forces *params.Forces
	ps     *params.Parameters
	kx     *mat64.Vector
}

// NewOscillator creates an oscillator from an n×n row-major coupling
// matrix. The matrix is symmetrized. Coordinates and forces of
// length n are registered in ps.
func NewOscillator(k []float64, n int, ps *params.Parameters) (*Oscillator, error) {
	if n <= 0 || len(k) != n*n {
		return nil, fmt.Errorf("%w: coupling matrix has %d elements, expected %d×%d", ErrData, len(k), n, n)
	}
	sym := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sym[i*n+j] = (k[i*n+j] + k[j*n+i]) / 2
		}
	}
	o := &Oscillator{
		name:   fmt.Sprintf("%dd-oscillator", n),
		K:      mat64.NewSymDense(n, sym),
		coords: params.NewCoordinates(n),
		forces: params.NewForces(n),
		ps:     ps,
		kx:     mat64.NewVector(n, nil),
	}
	if err := ps.AddAll(o.coords, o.forces); err != nil {
		return nil, err
	}
	return o, nil
}

// Name returns the model name.
func (o *Oscillator) Name() string {
	return o.name
}

// Params returns the parameter set.
func (o *Oscillator) Params() *params.Parameters {
	return o.ps
}

// Dim returns the number of degrees of freedom.
func (o *Oscillator) Dim() int {
	return o.coords.Len()
}

// LogProb returns -xᵀKx/2.
func (o *Oscillator) LogProb() float64 {
	x := mat64.NewVector(o.Dim(), o.coords.Value())
	return -0.5 * mat64.Inner(x, o.K, x)
}

// UpdateForces adds -Kx to the forces.
func (o *Oscillator) UpdateForces() error {
	x := mat64.NewVector(o.Dim(), o.coords.Value())
	o.kx.MulVec(o.K, x)
	floats.AddScaled(o.forces.Value(), -1, o.kx.RawVector().Data)
	return nil
}
