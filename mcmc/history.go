package mcmc

import (
	"fmt"
	"math"
)

// History keeps track of accepted and rejected Monte Carlo trials.
type History struct {
	trials    []bool
	naccepted int
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Update records one trial.
func (h *History) Update(accept bool) {
	h.trials = append(h.trials, accept)
	if accept {
		h.naccepted++
	}
}

// Len returns the number of trials.
func (h *History) Len() int {
	return len(h.trials)
}

// At returns the outcome of i-th trial.
func (h *History) At(i int) bool {
	return h.trials[i]
}

// Last returns the outcome of the last trial, false if there were
// no trials.
func (h *History) Last() bool {
	if len(h.trials) == 0 {
		return false
	}
	return h.trials[len(h.trials)-1]
}

// Accepted returns the number of accepted trials.
func (h *History) Accepted() int {
	return h.naccepted
}

// Clear removes all the trials.
func (h *History) Clear() {
	h.trials = h.trials[:0]
	h.naccepted = 0
}

// AcceptanceRate returns the fraction of accepted trials after
// skipping the first burnin trials. It is NaN if no trials remain.
func (h *History) AcceptanceRate(burnin int) float64 {
	if burnin < 0 {
		burnin = 0
	}
	if burnin >= len(h.trials) {
		return math.NaN()
	}
	accepted := h.naccepted
	for _, a := range h.trials[:burnin] {
		if a {
			accepted--
		}
	}
	return float64(accepted) / float64(len(h.trials)-burnin)
}

// String returns number of trials and the acceptance rate.
func (h *History) String() string {
	return fmt.Sprintf("n_steps = %d, acceptance rate = %.1f%%", h.Len(), h.AcceptanceRate(0)*100)
}
