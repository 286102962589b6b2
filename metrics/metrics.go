// Package metrics exports replica exchange progress as prometheus
// metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitbucket.org/Davydov/gorex/rex"
)

// log is the global logging variable.
var log = logging.MustGetLogger("metrics")

const namespace = "gorex"

// Recorder keeps replica and swap gauges up to date.
type Recorder struct {
	registry *prometheus.Registry

	rounds     prometheus.Counter
	stepsize   *prometheus.GaugeVec
	logProb    *prometheus.GaugeVec
	acceptance *prometheus.GaugeVec
	swapRate   *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Number of finished replica exchange rounds.",
		}),
		stepsize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replica",
			Name:      "stepsize",
			Help:      "Current sampler stepsize.",
		}, []string{"replica"}),
		logProb: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replica",
			Name:      "log_prob",
			Help:      "Log-density of the current replica state.",
		}, []string{"replica"}),
		acceptance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replica",
			Name:      "acceptance_rate",
			Help:      "Fraction of accepted sampler steps.",
		}, []string{"replica"}),
		swapRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "acceptance_rate",
			Help:      "Fraction of accepted swaps between neighboring replicas.",
		}, []string{"pair"}),
	}
	r.registry.MustRegister(r.rounds, r.stepsize, r.logProb, r.acceptance, r.swapRate)
	return r
}

// Registry returns the registry holding the metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records the state of re after a round.
func (r *Recorder) Observe(re *rex.ReplicaExchange, state rex.ReplicaState) {
	for i := 0; i < re.Len(); i++ {
		s := re.Sampler(i)
		l := strconv.Itoa(i)
		r.stepsize.WithLabelValues(l).Set(s.Stepsize())
		r.logProb.WithLabelValues(l).Set(state[i].LogProb())
		if s.History().Len() > 0 {
			r.acceptance.WithLabelValues(l).Set(s.History().AcceptanceRate(0))
		}
	}
	for _, p := range re.History().Pairs() {
		h := re.History().Get(p)
		if h.Len() > 0 {
			r.swapRate.WithLabelValues(p.String()).Set(h.AcceptanceRate(0))
		}
	}
}

// OnRound returns a round callback counting rounds and recording the
// gauges every period rounds.
func (r *Recorder) OnRound(period int) func(*rex.ReplicaExchange, rex.ReplicaState) error {
	if period < 1 {
		period = 1
	}
	return func(re *rex.ReplicaExchange, state rex.ReplicaState) error {
		r.rounds.Inc()
		if re.Round()%period == 0 {
			r.Observe(re, state)
		}
		return nil
	}
}

// Handler returns the HTTP handler exposing the metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Listen serves the metrics on addr in the background. The process
// is terminated if the server fails.
func (r *Recorder) Listen(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.Handler())
		server := &http.Server{
			Addr:    addr,
			Handler: mux,
		}
		log.Infof("Serving metrics on %s", addr)
		log.Fatal(server.ListenAndServe())
	}()
}
