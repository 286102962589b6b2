/*

Gorex samples tempered probabilistic models with replica exchange
Monte Carlo. Every replica is advanced by its own random walk,
adaptive random walk or Hamiltonian Monte Carlo sampler, after
which configurations of neighboring replicas are swapped.

The basic usage of gorex looks like this:

	gorex scenario.yaml

, this will run the replicas described in the scenario file.

Long runs can be checkpointed and resumed:

	gorex -checkpoint run.db -json summary.json scenario.yaml

To see all the options run:

	gorex -h

*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/gorex/checkpoint"
	"bitbucket.org/Davydov/gorex/metrics"
	"bitbucket.org/Davydov/gorex/rex"
	"bitbucket.org/Davydov/gorex/scenario"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("gorex")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules are the loggers controlled by --loglevel.
var modules = []string{"gorex", "params", "mcmc", "hmc", "rex", "model", "scenario", "checkpoint", "metrics"}

// setLevel sets the level of all the module loggers.
func setLevel(level logging.Level) {
	setLevel(level)
}

// command-line options
var (
	// application
	app = kingpin.New("gorex", "replica exchange Monte Carlo sampler").Version(version)

	scenarioFileName = app.Arg("scenario", "scenario file (YAML)").Required().ExistingFile()

	// overrides
	seed    = app.Flag("seed", "random generator seed, overrides the scenario if not negative").Default("-1").Int64()
	rounds  = app.Flag("rounds", "number of rounds, overrides the scenario if not negative").Default("-1").Int()
	steps   = app.Flag("steps", "number of sampler steps per round, overrides the scenario if positive").Int()
	workers = app.Flag("workers", "maximum number of concurrently advanced replicas, "+
		"overrides the scenario if not negative (0 is no limit)").Default("-1").Int()
	report = app.Flag("report", "report every N rounds, overrides the scenario if positive").Int()

	// checkpoints
	checkpointF       = app.Flag("checkpoint", "checkpoint database, overrides the scenario").String()
	checkpointKey     = app.Flag("checkpoint-key", "checkpoint key, overrides the scenario").String()
	checkpointSeconds = app.Flag("checkpoint-seconds", "minimum time between checkpoints in seconds, overrides the scenario if positive").Float64()

	// technical
	metricsAddr = app.Flag("metrics", "serve prometheus metrics on this address (e.g. :9090)").String()
	cpuProfile  = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write replica trajectories to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// loadScenario reads the scenario and applies the command-line
// overrides.
func loadScenario() *scenario.Config {
	cfg, err := scenario.Load(*scenarioFileName)
	if err != nil {
		log.Fatal(err)
	}
	if *seed >= 0 {
		cfg.Seed = *seed
	}
	if *rounds >= 0 {
		cfg.Rounds = *rounds
	}
	if *steps > 0 {
		cfg.StepsPerRound = *steps
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}
	if *report > 0 {
		cfg.Report = *report
	}
	if *checkpointF != "" {
		cfg.Checkpoint.File = *checkpointF
	}
	if *checkpointKey != "" {
		cfg.Checkpoint.Key = *checkpointKey
	}
	if *checkpointSeconds > 0 {
		cfg.Checkpoint.Seconds = *checkpointSeconds
	}
	if cfg.Seed < 0 {
		log.Debug("Random seed from time")
	}
	return cfg
}

// openCheckpoint opens the checkpoint database and restores re from
// an unfinished checkpoint. It returns the number of remaining
// rounds.
func openCheckpoint(cfg *scenario.Config, re *rex.ReplicaExchange, summary *RunSummary) (*bolt.DB, *checkpoint.CheckpointIO, int) {
	remaining := cfg.Rounds
	if cfg.Checkpoint.File == "" {
		return nil, nil, remaining
	}
	db, err := bolt.Open(cfg.Checkpoint.File, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		log.Fatal("Error opening checkpoint database:", err)
	}
	log.Infof("Checkpoint database: %s, key: %s", cfg.Checkpoint.File, cfg.Checkpoint.Key)
	if keys, err := checkpoint.Keys(db); err == nil {
		log.Debugf("Stored checkpoints: %v", keys)
	}
	cio := checkpoint.NewCheckpointIO(db, []byte(cfg.Checkpoint.Key), cfg.Checkpoint.Seconds)
	data, err := cio.Load()
	switch {
	case err != nil:
		log.Warning("Unusable checkpoint, starting from scratch:", err)
	case data == nil:
		log.Info("No checkpoint found")
	default:
		if err := data.Restore(re); err != nil {
			log.Fatal("Checkpoint does not fit the scenario:", err)
		}
		summary.Resumed = true
		if data.Final {
			log.Notice("Checkpoint is final, nothing to do")
			return db, cio, 0
		}
		remaining -= data.Round
		if remaining < 0 {
			remaining = 0
		}
		log.Noticef("Resuming from round %d, %d rounds left", data.Round, remaining)
	}
	return db, cio, remaining
}

// summarize fills the replica and swap results.
func summarize(summary *RunSummary, re *rex.ReplicaExchange, replicas []*scenario.Replica) {
	state := re.State()
	summary.Rounds = re.Round()
	summary.LogProb = state.LogProb()
	summary.Replicas = make([]ReplicaSummary, re.Len())
	for i, r := range replicas {
		rs := ReplicaSummary{
			Beta:     r.Beta,
			Stepsize: r.Sampler.Stepsize(),
			LogProb:  state[i].LogProb(),
			Value:    state[i].Value(),
		}
		if h := r.Sampler.History(); h.Len() > 0 {
			rs.AcceptanceRate = h.AcceptanceRate(0)
		}
		log.Noticef("Replica %d: beta=%v, stepsize=%v, acceptance=%.2f%%, log p=%f",
			i, rs.Beta, rs.Stepsize, 100*rs.AcceptanceRate, rs.LogProb)
		summary.Replicas[i] = rs
	}
	for _, c := range re.Snapshot().Swaps {
		ss := SwapSummary{SwapCount: c}
		if c.Trials > 0 {
			ss.Rate = float64(c.Accepted) / float64(c.Trials)
		}
		summary.Swaps = append(summary.Swaps, ss)
	}
	log.Noticef("Swap acceptance:\n%s", re.History())
}

func run(ctx context.Context, cfg *scenario.Config, summary *RunSummary) {
	startTime := time.Now()

	re, replicas, err := scenario.NewReplicaExchange(cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Random seed=%v", cfg.Seed)
	summary.Seed = cfg.Seed
	summary.Workers = cfg.Workers
	log.Infof("Model: %s, sampler: %s, %d replicas", cfg.Model.Kind, cfg.Sampler.Kind, re.Len())

	db, cio, remaining := openCheckpoint(cfg, re, summary)
	if db != nil {
		defer db.Close()
	}

	var traj func(*rex.ReplicaExchange, rex.ReplicaState) error
	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			log.Fatal("Error creating trajectory file:", err)
		}
		defer f.Close()
		traj = newTrajectory(f, cfg.Report).OnRound()
	}

	var rec func(*rex.ReplicaExchange, rex.ReplicaState) error
	if *metricsAddr != "" {
		recorder := metrics.NewRecorder()
		recorder.Listen(*metricsAddr)
		rec = recorder.OnRound(cfg.Report)
	}

	var save func(*rex.ReplicaExchange, rex.ReplicaState) error
	if cio != nil {
		save = cio.OnRound()
	}
	re.OnRound = onRound(traj, rec, save)

	err = re.Run(ctx, remaining)
	switch {
	case errors.Is(err, context.Canceled):
		summary.Interrupted = true
	case err != nil:
		log.Fatal(err)
	}

	if cio != nil {
		if err := cio.Save(checkpoint.NewData(re, !summary.Interrupted)); err != nil {
			log.Error("Error saving final checkpoint:", err)
		}
	}

	summarize(summary, re, replicas)

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.TotalTime = deltaT.Seconds()
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	setLevel(level)

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	summary := &RunSummary{
		RunID:       uuid.New().String(),
		Version:     version,
		CommandLine: os.Args,
	}
	log.Infof("Run id: %s", summary.RunID)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx, loadScenario(), summary)

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
