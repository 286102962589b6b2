package rex

import (
	"fmt"
	"sort"
	"strings"

	"bitbucket.org/Davydov/gorex/mcmc"
)

// ReplicaState holds the current state of every replica.
type ReplicaState []mcmc.State

// LogProb returns the sum of the replica log-densities.
func (rs ReplicaState) LogProb() float64 {
	sum := 0.0
	for _, s := range rs {
		sum += s.LogProb()
	}
	return sum
}

// ReplicaHistory keeps swap outcomes for every pair.
type ReplicaHistory struct {
	swaps map[Pair]*mcmc.History
}

// NewReplicaHistory creates an empty history.
func NewReplicaHistory() *ReplicaHistory {
	return &ReplicaHistory{swaps: make(map[Pair]*mcmc.History)}
}

// Get returns the history of pair p, creating it if needed.
func (h *ReplicaHistory) Get(p Pair) *mcmc.History {
	hist, ok := h.swaps[p]
	if !ok {
		hist = mcmc.NewHistory()
		h.swaps[p] = hist
	}
	return hist
}

// Update records swap outcomes of one round.
func (h *ReplicaHistory) Update(accepted map[Pair]bool) {
	for p, a := range accepted {
		h.Get(p).Update(a)
	}
}

// Pairs returns the pairs with at least one attempt sorted by the
// first replica.
func (h *ReplicaHistory) Pairs() []Pair {
	pairs := make([]Pair, 0, len(h.swaps))
	for p := range h.swaps {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].I != pairs[b].I {
			return pairs[a].I < pairs[b].I
		}
		return pairs[a].J < pairs[b].J
	})
	return pairs
}

// Clear removes all the records.
func (h *ReplicaHistory) Clear() {
	h.swaps = make(map[Pair]*mcmc.History)
}

// String returns one line per pair.
func (h *ReplicaHistory) String() string {
	lines := make([]string, 0, len(h.swaps))
	for _, p := range h.Pairs() {
		lines = append(lines, fmt.Sprintf("%3d<-->%-3d: %s", p.I, p.J, h.swaps[p]))
	}
	return strings.Join(lines, "\n")
}
