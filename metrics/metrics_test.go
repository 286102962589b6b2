package metrics

import (
	"context"
	"io"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bitbucket.org/Davydov/gorex/mcmc"
	"bitbucket.org/Davydov/gorex/model"
	"bitbucket.org/Davydov/gorex/params"
	"bitbucket.org/Davydov/gorex/rex"
)

func newRex(tst *testing.T) *rex.ReplicaExchange {
	var samplers []mcmc.Sampler
	for i, beta := range []float64{1, 0.5, 0.25} {
		g, err := model.NewGaussian("g", params.NewParameters())
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		g.Tau.SetFloat(beta)
		s, err := mcmc.NewRandomWalk(g, g.X, 1+float64(i), rand.New(rand.NewSource(int64(i))))
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		samplers = append(samplers, s)
	}
	r, err := rex.NewReplicaExchange(samplers, rand.New(rand.NewSource(7)))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	r.ReportPeriod = 0
	return r
}

func TestRecorder(tst *testing.T) {
	rec := NewRecorder()
	r := newRex(tst)
	r.OnRound = rec.OnRound(5)
	if err := r.Run(context.Background(), 12); err != nil {
		tst.Fatal("Error: ", err)
	}
	if n := testutil.ToFloat64(rec.rounds); n != 12 {
		tst.Errorf("Expected 12 rounds, got %v", n)
	}
	// last observed at round 10
	for i := 0; i < r.Len(); i++ {
		l := string(rune('0' + i))
		if s := testutil.ToFloat64(rec.stepsize.WithLabelValues(l)); s != float64(1+i) {
			tst.Errorf("Replica %d: expected stepsize %v, got %v", i, 1+i, s)
		}
	}
	if n := testutil.CollectAndCount(rec.swapRate); n != 2 {
		tst.Errorf("Expected 2 swap pairs, got %d", n)
	}

	rec.Observe(r, r.State())
	h := r.History().Get(rex.Pair{I: 1, J: 2})
	if rate := testutil.ToFloat64(rec.swapRate.WithLabelValues("1<->2")); rate != h.AcceptanceRate(0) {
		tst.Errorf("Expected swap rate %v, got %v", h.AcceptanceRate(0), rate)
	}
	if lp := testutil.ToFloat64(rec.logProb.WithLabelValues("2")); lp != r.State()[2].LogProb() {
		tst.Errorf("Expected log p %v, got %v", r.State()[2].LogProb(), lp)
	}
}

func TestHandler(tst *testing.T) {
	rec := NewRecorder()
	r := newRex(tst)
	r.OnRound = rec.OnRound(1)
	if err := r.Run(context.Background(), 3); err != nil {
		tst.Fatal("Error: ", err)
	}
	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for _, name := range []string{"gorex_rounds_total 3", "gorex_replica_stepsize", "gorex_swap_acceptance_rate"} {
		if !strings.Contains(string(body), name) {
			tst.Errorf("Metric %s not found", name)
		}
	}
}
