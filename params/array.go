package params

import "fmt"

const (
	// CoordinatesName is the name of the Cartesian coordinates.
	CoordinatesName = "coordinates"
	// ForcesName is the name of the gradient of the log-density.
	ForcesName = "forces"
)

// Array is a vector parameter. Once the length is established it
// cannot change.
type Array struct {
	base
}

// NewArray creates an array of n zeros. If n is zero the array is
// not set and its length is established by the first Set.
func NewArray(name string, n int) *Array {
	a := &Array{base{name: name}}
	if n > 0 {
		a.value = make([]float64, n)
	}
	return a
}

// Set copies v into the array.
func (a *Array) Set(v []float64) error {
	if a.value != nil && len(v) != len(a.value) {
		return fmt.Errorf("%w: %s has length %d, got %d", ErrShape, a.name, len(a.value), len(v))
	}
	if len(v) == 0 {
		return fmt.Errorf("%w: %s cannot be empty", ErrShape, a.name)
	}
	a.store(v)
	return nil
}

// Fill sets all the elements to x.
func (a *Array) Fill(x float64) {
	for i := range a.Value() {
		a.value[i] = x
	}
}

// Len returns the array length.
func (a *Array) Len() int {
	return len(a.value)
}

// Coordinates are flat Cartesian coordinates (x1, y1, z1, x2, ...).
type Coordinates struct {
	Array
}

// NewCoordinates creates n zero coordinates values.
func NewCoordinates(n int) *Coordinates {
	return &Coordinates{*NewArray(CoordinatesName, n)}
}

// NParticles returns the number of three-dimensional particles.
func (c *Coordinates) NParticles() int {
	return c.Len() / 3
}

// Forces stores the gradient of the log-density with respect to the
// coordinates.
type Forces struct {
	Array
}

// NewForces creates n zero forces.
func NewForces(n int) *Forces {
	return &Forces{*NewArray(ForcesName, n)}
}
