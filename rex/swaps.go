// Package rex implements replica exchange Monte Carlo (parallel
// tempering) over a list of samplers.
package rex

import "fmt"

// Pair is a pair of neighboring replicas, I < J.
type Pair struct {
	I, J int
}

func (p Pair) String() string {
	return fmt.Sprintf("%d<->%d", p.I, p.J)
}

// Swaps cycles through the two perfect matchings of neighboring
// replicas: {(0,1), (2,3), ...} and {(1,2), (3,4), ...}.
type Swaps struct {
	schedule [2][]Pair
	round    int
}

// NewSwaps creates a swap schedule for n replicas.
func NewSwaps(n int) *Swaps {
	s := &Swaps{}
	for i := 0; i+1 < n; i++ {
		s.schedule[i%2] = append(s.schedule[i%2], Pair{i, i + 1})
	}
	return s
}

// Next returns the pairs to be swapped in the next round.
func (s *Swaps) Next() []Pair {
	pairs := s.schedule[s.round%2]
	s.round++
	return pairs
}

// Round returns the number of rounds served.
func (s *Swaps) Round() int {
	return s.round
}

// SetRound moves the schedule to the given round.
func (s *Swaps) SetRound(round int) {
	s.round = round
}
