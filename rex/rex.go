package rex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/gorex/mcmc"
)

// log is the global logging variable.
var log = logging.MustGetLogger("rex")

var (
	// ErrConfig is returned for an invalid replica exchange setup.
	ErrConfig = errors.New("invalid replica exchange configuration")
	// ErrSnapshot is returned if a snapshot does not fit the
	// replicas.
	ErrSnapshot = errors.New("snapshot does not match replicas")
)

// ReplicaExchange advances every replica with its own sampler and
// then attempts configuration swaps between neighboring replicas.
type ReplicaExchange struct {
	samplers []mcmc.Sampler
	swaps    *Swaps
	history  *ReplicaHistory
	rng      *rand.Rand

	// Workers is the maximum number of replicas advanced
	// concurrently, no limit if <= 0.
	Workers int
	// StepsPerRound is the number of sampler steps before every
	// swap round.
	StepsPerRound int
	// ReportPeriod is how often (in rounds) Run logs the swap
	// acceptance rates.
	ReportPeriod int
	// OnRound is called by Run after every round.
	OnRound func(r *ReplicaExchange, state ReplicaState) error
}

// NewReplicaExchange creates a replica exchange over samplers. Every
// sampler must have its own model and random generator. The generator
// rng is used for swap decisions, a time-seeded one is used if nil.
func NewReplicaExchange(samplers []mcmc.Sampler, rng *rand.Rand) (*ReplicaExchange, error) {
	if len(samplers) == 0 {
		return nil, fmt.Errorf("%w: no replicas", ErrConfig)
	}
	for i, s := range samplers {
		if s == nil {
			return nil, fmt.Errorf("%w: replica %d has no sampler", ErrConfig, i)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ReplicaExchange{
		samplers:      samplers,
		swaps:         NewSwaps(len(samplers)),
		history:       NewReplicaHistory(),
		rng:           rng,
		StepsPerRound: 1,
		ReportPeriod:  1000,
	}, nil
}

// Len returns the number of replicas.
func (r *ReplicaExchange) Len() int {
	return len(r.samplers)
}

// Sampler returns the sampler of i-th replica.
func (r *ReplicaExchange) Sampler(i int) mcmc.Sampler {
	return r.samplers[i]
}

// History returns the swap history.
func (r *ReplicaExchange) History() *ReplicaHistory {
	return r.history
}

// Round returns the number of finished rounds.
func (r *ReplicaExchange) Round() int {
	return r.swaps.Round()
}

// State returns the current states of the replicas.
func (r *ReplicaExchange) State() ReplicaState {
	state := make(ReplicaState, len(r.samplers))
	for i, s := range r.samplers {
		state[i] = s.State()
	}
	return state
}

// CreateState evaluates every replica at its current parameter value.
func (r *ReplicaExchange) CreateState() (ReplicaState, error) {
	state := make(ReplicaState, len(r.samplers))
	for i, s := range r.samplers {
		st, err := s.CreateState()
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", i, err)
		}
		state[i] = st
	}
	return state, nil
}

// advance performs StepsPerRound steps of every replica.
func (r *ReplicaExchange) advance(ctx context.Context) error {
	steps := r.StepsPerRound
	if steps < 1 {
		steps = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	if r.Workers > 0 {
		g.SetLimit(r.Workers)
	}
	for i, s := range r.samplers {
		i, s := i, s
		g.Go(func() error {
			for k := 0; k < steps; k++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := s.Next(); err != nil {
					return fmt.Errorf("replica %d: %w", i, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// proposeSwap evaluates replica i at the value of replica j and vice
// versa.
func (r *ReplicaExchange) proposeSwap(state ReplicaState, i, j int) (mcmc.State, mcmc.State, error) {
	si, sj := r.samplers[i], r.samplers[j]
	if err := si.Parameter().Set(state[j].Value()); err != nil {
		return nil, nil, err
	}
	if err := sj.Parameter().Set(state[i].Value()); err != nil {
		return nil, nil, err
	}
	ij, err := si.CreateState()
	if err != nil {
		return nil, nil, err
	}
	ji, err := sj.CreateState()
	if err != nil {
		return nil, nil, err
	}
	return ij, ji, nil
}

// sampleSwap attempts to exchange the configurations of replicas i
// and j. On acceptance state is modified.
func (r *ReplicaExchange) sampleSwap(state ReplicaState, i, j int) (bool, error) {
	ij, ji, err := r.proposeSwap(state, i, j)
	if err != nil {
		return false, fmt.Errorf("swap %d<->%d: %w", i, j, err)
	}
	diff := (ij.LogProb() + ji.LogProb()) - (state[i].LogProb() + state[j].LogProb())
	accept := math.Log(r.rng.Float64()) < diff
	if accept {
		state[i], state[j] = ij, ji
	}
	return accept, nil
}

// Next performs one round: all the replicas are advanced, then the
// swaps scheduled for this round are attempted. Afterwards every
// replica holds its post-swap state.
func (r *ReplicaExchange) Next(ctx context.Context) (ReplicaState, map[Pair]bool, error) {
	if err := r.advance(ctx); err != nil {
		return nil, nil, err
	}
	state := r.State()
	accepted := make(map[Pair]bool)
	for _, p := range r.swaps.Next() {
		a, err := r.sampleSwap(state, p.I, p.J)
		if err != nil {
			return nil, nil, err
		}
		accepted[p] = a
	}
	r.history.Update(accepted)
	for i, s := range r.samplers {
		if err := s.SetState(state[i]); err != nil {
			return nil, nil, fmt.Errorf("replica %d: %w", i, err)
		}
	}
	return state, accepted, nil
}

// Run performs n rounds. It stops early if ctx is done and returns
// the context error.
func (r *ReplicaExchange) Run(ctx context.Context, n int) error {
	log.Infof("Replica exchange: %d replicas, %d rounds, %d steps per round", r.Len(), n, r.StepsPerRound)
	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			log.Warningf("Stopping after %d rounds: %v", r.Round(), err)
			return err
		}
		state, _, err := r.Next(ctx)
		if err != nil {
			return err
		}
		if r.ReportPeriod > 0 && r.Round()%r.ReportPeriod == 0 {
			log.Infof("Round %d, log p=%f\n%s", r.Round(), state.LogProb(), r.history)
		}
		if r.OnRound != nil {
			if err := r.OnRound(r, state); err != nil {
				return err
			}
		}
	}
	return nil
}

// SwapCount is the number of accepted and attempted swaps of a pair.
type SwapCount struct {
	I        int `json:"i"`
	J        int `json:"j"`
	Accepted int `json:"accepted"`
	Trials   int `json:"trials"`
}

// Snapshot is the restorable state of a replica exchange.
type Snapshot struct {
	Values    [][]float64 `json:"values"`
	Stepsizes []float64   `json:"stepsizes"`
	Round     int         `json:"round"`
	Swaps     []SwapCount `json:"swaps"`
}

// Snapshot returns the current replica values, stepsizes, round and
// swap counts.
func (r *ReplicaExchange) Snapshot() *Snapshot {
	s := &Snapshot{
		Values:    make([][]float64, r.Len()),
		Stepsizes: make([]float64, r.Len()),
		Round:     r.Round(),
	}
	for i, sampler := range r.samplers {
		s.Values[i] = append([]float64(nil), sampler.State().Value()...)
		s.Stepsizes[i] = sampler.Stepsize()
	}
	for _, p := range r.history.Pairs() {
		h := r.history.Get(p)
		s.Swaps = append(s.Swaps, SwapCount{I: p.I, J: p.J, Accepted: h.Accepted(), Trials: h.Len()})
	}
	return s
}

// Restore sets replica values and stepsizes from a snapshot and
// continues the swap schedule at the snapshot round. Swap histories
// are rebuilt from the counts.
func (r *ReplicaExchange) Restore(s *Snapshot) error {
	if len(s.Values) != r.Len() || len(s.Stepsizes) != r.Len() {
		return fmt.Errorf("%w: %d replicas, snapshot has %d values and %d stepsizes",
			ErrSnapshot, r.Len(), len(s.Values), len(s.Stepsizes))
	}
	for i, sampler := range r.samplers {
		if err := sampler.Parameter().Set(s.Values[i]); err != nil {
			return fmt.Errorf("%w: replica %d: %v", ErrSnapshot, i, err)
		}
		st, err := sampler.CreateState()
		if err != nil {
			return err
		}
		if err := sampler.SetState(st); err != nil {
			return err
		}
		sampler.SetStepsize(s.Stepsizes[i])
	}
	r.swaps.SetRound(s.Round)
	r.history.Clear()
	for _, c := range s.Swaps {
		if c.Accepted > c.Trials {
			return fmt.Errorf("%w: pair %d<->%d accepted %d of %d", ErrSnapshot, c.I, c.J, c.Accepted, c.Trials)
		}
		h := r.history.Get(Pair{c.I, c.J})
		for k := 0; k < c.Trials; k++ {
			h.Update(k < c.Accepted)
		}
	}
	log.Infof("Restored %d replicas at round %d", r.Len(), s.Round)
	return nil
}
