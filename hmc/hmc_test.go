package hmc

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/gonum/stat"

	"bitbucket.org/Davydov/gorex/model"
	"bitbucket.org/Davydov/gorex/params"
)

func newOscillator(tst *testing.T, k []float64, n int) *model.Oscillator {
	osc, err := model.NewOscillator(k, n, params.NewParameters())
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return osc
}

func TestLeapfrogPeriod(tst *testing.T) {
	osc := newOscillator(tst, []float64{1}, 1)
	ham, err := NewHamiltonian(osc, rand.New(rand.NewSource(1)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	n := 100
	lf, err := NewLeapfrog(ham, 2*math.Sin(math.Pi/float64(n)), n)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	q, p, err := lf.Run([]float64{1.3}, []float64{-0.4})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if math.Abs(q[0]-1.3) > 1e-9 || math.Abs(p[0]+0.4) > 1e-9 {
		tst.Errorf("Trajectory is not periodic: q=%v, p=%v", q[0], p[0])
	}
}

func TestLeapfrogEnergy(tst *testing.T) {
	osc := newOscillator(tst, []float64{1, 0.3, 0.3, 2}, 2)
	ham, err := NewHamiltonian(osc, rand.New(rand.NewSource(2)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	eps := 0.05
	lf, err := NewLeapfrog(ham, eps, 1)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	q := []float64{1, -0.5}
	p := []float64{0.2, 0.7}
	u0, _ := ham.PotentialEnergy(q)
	h0 := u0 + ham.KineticEnergy(p)
	for i := 0; i < 1000; i++ {
		if _, _, err := lf.Run(q, p); err != nil {
			tst.Fatal("Error: ", err)
		}
		u, _ := ham.PotentialEnergy(q)
		if dh := math.Abs(u + ham.KineticEnergy(p) - h0); dh > 0.02 {
			tst.Fatalf("Step %d: energy drift %v", i, dh)
		}
	}
}

func TestGradientSign(tst *testing.T) {
	osc := newOscillator(tst, []float64{3}, 1)
	ham, err := NewHamiltonian(osc, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	grad := make([]float64, 1)
	if err := ham.GradientPositions([]float64{2}, grad); err != nil {
		tst.Fatal("Error: ", err)
	}
	// U = 3x²/2, dU/dx = 3x
	if math.Abs(grad[0]-6) > 1e-12 {
		tst.Errorf("Expected gradient 6, got %v", grad[0])
	}
}

func TestAcceptanceLimit(tst *testing.T) {
	osc := newOscillator(tst, []float64{1, 0.5, 0.5, 2}, 2)
	h, err := NewHamiltonianMonteCarlo(osc, 1e-3, 10, rand.New(rand.NewSource(3)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if _, err := h.Run(500); err != nil {
		tst.Fatal("Error: ", err)
	}
	if rate := h.History().AcceptanceRate(0); rate < 0.99 {
		tst.Errorf("Expected acceptance close to 1, got %v", rate)
	}
}

func TestOscillatorMarginals(tst *testing.T) {
	osc := newOscillator(tst, []float64{1, 0.5, 0.5, 2}, 2)
	h, err := NewHamiltonianMonteCarlo(osc, 0.2, 10, rand.New(rand.NewSource(4)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	n := 20000
	samples, err := h.Run(n)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	x := make([]float64, n)
	y := make([]float64, n)
	for i, s := range samples {
		x[i], y[i] = s.Value()[0], s.Value()[1]
	}
	// covariance is the inverse of K
	det := 2 - 0.25
	for i, c := range []struct {
		xs       []float64
		variance float64
	}{{x, 2 / det}, {y, 1 / det}} {
		_, v := stat.MeanVariance(c.xs, nil)
		if math.Abs(v-c.variance) > 0.1*c.variance {
			tst.Errorf("Coordinate %d: expected variance %v, got %v", i, c.variance, v)
		}
	}
	if cov := stat.Covariance(x, y, nil); math.Abs(cov+0.5/det) > 0.05 {
		tst.Errorf("Expected covariance %v, got %v", -0.5/det, cov)
	}
}

func TestMomentaReuse(tst *testing.T) {
	osc := newOscillator(tst, []float64{2, 0, 0, 1}, 2)
	h, err := NewHamiltonianMonteCarlo(osc, 0.1, 5, rand.New(rand.NewSource(5)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if _, err := h.Run(10); err != nil {
		tst.Fatal("Error: ", err)
	}
	cur := h.State().(*State)
	s, err := h.CreateState()
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	created := s.(*State)
	if created.Kinetic != cur.Kinetic || math.Abs(created.Potential-cur.Potential) > 1e-12 {
		tst.Errorf("Expected %v, got %v", cur, created)
	}
	created.Momenta[0]++
	if created.Momenta[0] == cur.Momenta[0] {
		tst.Error("Created state shares momenta with the current state")
	}
}

func TestAdaptation(tst *testing.T) {
	osc := newOscillator(tst, []float64{1}, 1)
	h, err := NewHamiltonianMonteCarlo(osc, 5, 10, rand.New(rand.NewSource(6)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	h.AdaptUntil = 200
	h.Activate()
	if _, err := h.Run(200); err != nil {
		tst.Fatal("Error: ", err)
	}
	if h.IsActive() {
		tst.Error("Adaptation should be frozen")
	}
	frozen := h.Stepsize()
	if frozen == 5 {
		tst.Error("Stepsize was not adapted")
	}
	if _, err := h.Run(50); err != nil {
		tst.Fatal("Error: ", err)
	}
	if h.Stepsize() != frozen {
		tst.Errorf("Stepsize changed after freezing: %v != %v", h.Stepsize(), frozen)
	}
}

// gaussian has no coordinates.
type gaussian struct {
	*model.Gaussian
}

func (gaussian) UpdateForces() error { return nil }

func TestNotDifferentiable(tst *testing.T) {
	g, err := model.NewGaussian("g", params.NewParameters())
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if _, err := NewHamiltonianMonteCarlo(gaussian{g}, 0.1, 10, nil); !errors.Is(err, ErrModel) {
		tst.Errorf("Expected ErrModel, got %v", err)
	}
}

func BenchmarkHMC(b *testing.B) {
	osc, _ := model.NewOscillator([]float64{1, 0.5, 0.5, 2}, 2, params.NewParameters())
	h, _ := NewHamiltonianMonteCarlo(osc, 0.2, 10, rand.New(rand.NewSource(1)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Next()
	}
}

func TestRejectedForces(tst *testing.T) {
	osc := newOscillator(tst, []float64{1, 0, 0, 4}, 2)
	coords := osc.Params().MustGet(params.CoordinatesName)
	if err := coords.Set([]float64{1, -1}); err != nil {
		tst.Fatal("Error: ", err)
	}
	// the integrator is unstable at this stepsize
	h, err := NewHamiltonianMonteCarlo(osc, 3, 10, rand.New(rand.NewSource(9)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	forces := osc.Params().MustGet(params.ForcesName)
	rejected := 0
	for i := 0; i < 20; i++ {
		s, err := h.Next()
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if h.History().Last() {
			continue
		}
		rejected++
		x := s.Value()
		f, err := forces.Get()
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if math.Abs(f[0]+x[0]) > 1e-12 || math.Abs(f[1]+4*x[1]) > 1e-12 {
			tst.Errorf("Step %d: forces %v do not match positions %v", i, f, x)
		}
		if q, _ := coords.Get(); q[0] != x[0] || q[1] != x[1] {
			tst.Errorf("Step %d: coordinates %v, state %v", i, q, x)
		}
	}
	if rejected == 0 {
		tst.Error("Expected rejected steps")
	}
}
