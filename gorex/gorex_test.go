package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gorex/rex"
	"bitbucket.org/Davydov/gorex/scenario"
)

func newRex(tst *testing.T) (*rex.ReplicaExchange, []*scenario.Replica) {
	cfg := scenario.Default()
	cfg.Seed = 1
	cfg.Report = 0
	cfg.Replicas = []scenario.ReplicaConfig{{Beta: 1}, {Beta: 0.5}, {Beta: 0.25}}
	re, replicas, err := scenario.NewReplicaExchange(cfg)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return re, replicas
}

func TestTrajectory(tst *testing.T) {
	re, _ := newRex(tst)
	var buf bytes.Buffer
	re.OnRound = newTrajectory(&buf, 5).OnRound()
	if err := re.Run(context.Background(), 12); err != nil {
		tst.Fatal("Error: ", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// header and three replicas at rounds 5 and 10
	if len(lines) != 7 {
		tst.Fatalf("Expected 7 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "round\treplica\tlikelihood\tvalue" {
		tst.Errorf("Wrong header: %s", lines[0])
	}
	fields := strings.Split(lines[6], "\t")
	if len(fields) != 4 || fields[0] != "10" || fields[1] != "2" {
		tst.Errorf("Wrong line: %s", lines[6])
	}
}

func TestOnRound(tst *testing.T) {
	re, _ := newRex(tst)
	var calls []string
	hook := func(name string, err error) func(*rex.ReplicaExchange, rex.ReplicaState) error {
		return func(*rex.ReplicaExchange, rex.ReplicaState) error {
			calls = append(calls, name)
			return err
		}
	}
	stop := errors.New("stop")
	re.OnRound = onRound(hook("a", nil), nil, hook("b", stop), hook("c", nil))
	if err := re.Run(context.Background(), 5); err != stop {
		tst.Errorf("Expected the hook error, got %v", err)
	}
	if strings.Join(calls, "") != "ab" {
		tst.Errorf("Wrong hook calls: %v", calls)
	}
	if re.Round() != 1 {
		tst.Errorf("Run should stop after the first round, got %d", re.Round())
	}
}

func TestSummarize(tst *testing.T) {
	re, replicas := newRex(tst)
	if err := re.Run(context.Background(), 10); err != nil {
		tst.Fatal("Error: ", err)
	}
	summary := &RunSummary{}
	summarize(summary, re, replicas)
	if summary.Rounds != 10 || len(summary.Replicas) != 3 {
		tst.Fatalf("Wrong summary: %+v", summary)
	}
	if summary.Replicas[2].Beta != 0.25 || summary.Replicas[2].Stepsize != replicas[2].Sampler.Stepsize() {
		tst.Errorf("Wrong replica summary: %+v", summary.Replicas[2])
	}
	trials := 0
	for _, s := range summary.Swaps {
		trials += s.Trials
		if s.Rate < 0 || s.Rate > 1 {
			tst.Errorf("Wrong swap rate: %+v", s)
		}
	}
	// (0,1) on odd rounds, (1,2) on even rounds
	if trials != 10 {
		tst.Errorf("Expected 10 swap trials, got %d", trials)
	}
}

func TestSetLevel(tst *testing.T) {
	defer setLevel(logging.NOTICE)
	setLevel(logging.DEBUG)
	for _, m := range []string{"gorex", "params", "mcmc", "hmc", "rex", "model", "scenario", "checkpoint", "metrics"} {
		if l := logging.GetLevel(m); l != logging.DEBUG {
			tst.Errorf("Logger %s: expected level %v, got %v", m, logging.DEBUG, l)
		}
	}
}
