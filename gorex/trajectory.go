package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"bitbucket.org/Davydov/gorex/rex"
)

// trajectory writes replica states as tab-separated lines, one line
// per replica every period rounds.
type trajectory struct {
	w      io.Writer
	period int
	header bool
}

func newTrajectory(w io.Writer, period int) *trajectory {
	if period < 1 {
		period = 1
	}
	return &trajectory{w: w, period: period}
}

func (t *trajectory) write(round int, state rex.ReplicaState) error {
	if !t.header {
		if _, err := fmt.Fprintln(t.w, "round\treplica\tlikelihood\tvalue"); err != nil {
			return err
		}
		t.header = true
	}
	for i, s := range state {
		vals := make([]string, len(s.Value()))
		for k, x := range s.Value() {
			vals[k] = strconv.FormatFloat(x, 'f', 6, 64)
		}
		if _, err := fmt.Fprintf(t.w, "%d\t%d\t%f\t%s\n", round, i, s.LogProb(), strings.Join(vals, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// OnRound returns the round callback writing the trajectory.
func (t *trajectory) OnRound() func(*rex.ReplicaExchange, rex.ReplicaState) error {
	return func(r *rex.ReplicaExchange, state rex.ReplicaState) error {
		if r.Round()%t.period != 0 {
			return nil
		}
		return t.write(r.Round(), state)
	}
}

// onRound combines round callbacks, nil callbacks are skipped. The
// first error stops the chain.
func onRound(hooks ...func(*rex.ReplicaExchange, rex.ReplicaState) error) func(*rex.ReplicaExchange, rex.ReplicaState) error {
	var hs []func(*rex.ReplicaExchange, rex.ReplicaState) error
	for _, h := range hooks {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return func(r *rex.ReplicaExchange, state rex.ReplicaState) error {
		for _, h := range hs {
			if err := h(r, state); err != nil {
				return err
			}
		}
		return nil
	}
}
