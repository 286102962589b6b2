package params

import (
	"fmt"
	"math"

	"github.com/gonum/floats"
)

// Pair is a pair of particle indices.
type Pair struct {
	I, J int
}

// Distances stores non-negative distances between particle pairs.
type Distances struct {
	base
	pairs []Pair
}

// NewDistances creates zero distances for the given pairs.
func NewDistances(name string, pairs []Pair) *Distances {
	d := &Distances{
		base:  base{name: name},
		pairs: append([]Pair(nil), pairs...),
	}
	d.value = make([]float64, len(pairs))
	return d
}

// Pairs returns the particle pairs.
func (d *Distances) Pairs() []Pair {
	return d.pairs
}

// Len returns the number of distances.
func (d *Distances) Len() int {
	return len(d.pairs)
}

// Set sets the distance values.
func (d *Distances) Set(v []float64) error {
	if len(v) != len(d.pairs) {
		return fmt.Errorf("%w: %s has %d pairs, got %d values", ErrShape, d.name, len(d.pairs), len(v))
	}
	for _, x := range v {
		if err := nonNegative(x); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	d.store(v)
	return nil
}

// checkIndices returns an error if a pair references a particle
// outside of the coordinates.
func checkIndices(pairs []Pair, n int) error {
	for _, p := range pairs {
		if p.I < 0 || p.J < 0 || p.I >= n || p.J >= n {
			return fmt.Errorf("%w: pair (%d, %d) outside of %d particles", ErrShape, p.I, p.J, n)
		}
	}
	return nil
}

// ModelDistances are distances computed from coordinates.
type ModelDistances struct {
	Distances
	coords *Coordinates
}

// NewModelDistances creates distances between pairs of particles
// defined by coords.
func NewModelDistances(coords *Coordinates, pairs []Pair, name string) (*ModelDistances, error) {
	if err := checkIndices(pairs, coords.NParticles()); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &ModelDistances{
		Distances: *NewDistances(name, pairs),
		coords:    coords,
	}, nil
}

// Update recomputes the distances from the coordinates.
func (d *ModelDistances) Update() error {
	x, err := d.coords.Get()
	if err != nil {
		return err
	}
	for k, p := range d.pairs {
		d.value[k] = floats.Distance(x[3*p.I:3*p.I+3], x[3*p.J:3*p.J+3], 2)
	}
	return nil
}

// Backprop adds grad[k]·∂d_k/∂x to forces. The distances should be
// up to date.
func (d *ModelDistances) Backprop(grad []float64, forces *Forces) error {
	if len(grad) != len(d.pairs) {
		return fmt.Errorf("%w: gradient for %s has length %d", ErrShape, d.name, len(grad))
	}
	x := d.coords.Value()
	f := forces.Value()
	if len(f) != len(x) {
		return fmt.Errorf("%w: forces and coordinates differ in length", ErrShape)
	}
	for k, p := range d.pairs {
		if d.value[k] == 0 {
			continue
		}
		s := grad[k] / d.value[k]
		for c := 0; c < 3; c++ {
			delta := s * (x[3*p.I+c] - x[3*p.J+c])
			f[3*p.I+c] += delta
			f[3*p.J+c] -= delta
		}
	}
	return nil
}

// RadiusOfGyration is the root mean square distance of the particles
// from their centroid.
type RadiusOfGyration struct {
	scalar
	coords *Coordinates
}

// NewRadiusOfGyration creates a radius of gyration derived from
// coords.
func NewRadiusOfGyration(coords *Coordinates) *RadiusOfGyration {
	r := &RadiusOfGyration{
		scalar: scalar{base: base{name: "rog"}, check: nonNegative},
		coords: coords,
	}
	r.store([]float64{0})
	return r
}

// centroid returns the mean particle position.
func centroid(x []float64) (c [3]float64) {
	n := len(x) / 3
	for k := 0; k < n; k++ {
		for i := 0; i < 3; i++ {
			c[i] += x[3*k+i]
		}
	}
	for i := range c {
		c[i] /= float64(n)
	}
	return
}

// Update recomputes the radius of gyration.
func (r *RadiusOfGyration) Update() error {
	x, err := r.coords.Get()
	if err != nil {
		return err
	}
	n := len(x) / 3
	if n == 0 {
		return fmt.Errorf("%w: no particles", ErrShape)
	}
	c := centroid(x)
	var s float64
	for k := 0; k < n; k++ {
		dk := floats.Distance(x[3*k:3*k+3], c[:], 2)
		s += dk * dk
	}
	r.value[0] = math.Sqrt(s / float64(n))
	return nil
}

// Backprop adds grad[0]·∂Rg/∂x to forces.
func (r *RadiusOfGyration) Backprop(grad []float64, forces *Forces) error {
	if len(grad) != 1 {
		return fmt.Errorf("%w: gradient for %s has length %d", ErrShape, r.name, len(grad))
	}
	rg := r.Float()
	if rg == 0 {
		return nil
	}
	x := r.coords.Value()
	f := forces.Value()
	n := len(x) / 3
	c := centroid(x)
	s := grad[0] / (float64(n) * rg)
	for k := 0; k < n; k++ {
		for i := 0; i < 3; i++ {
			f[3*k+i] += s * (x[3*k+i] - c[i])
		}
	}
	return nil
}
