package main

import (
	"bitbucket.org/Davydov/gorex/rex"
)

// RunSummary is storing gorex run summary information.
type RunSummary struct {
	// RunID is a unique identifier of the run.
	RunID string `json:"runID"`
	// Version stores gorex version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// Workers is the maximum number of concurrently advanced replicas.
	Workers int `json:"workers"`
	// Resumed is true if the run continued from a checkpoint.
	Resumed bool `json:"resumed,omitempty"`
	// Interrupted is true if the run was stopped by a signal.
	Interrupted bool `json:"interrupted,omitempty"`
	// Rounds is the number of finished rounds.
	Rounds int `json:"rounds"`
	// LogProb is the sum of final replica log-densities.
	LogProb float64 `json:"logProb"`
	// Replicas has per-replica results.
	Replicas []ReplicaSummary `json:"replicas"`
	// Swaps has the per-pair swap statistics.
	Swaps []SwapSummary `json:"swaps"`
	// Time is the computations time in seconds.
	TotalTime float64 `json:"time"`
}

// ReplicaSummary stores the results of one replica.
type ReplicaSummary struct {
	Beta           float64   `json:"beta"`
	Stepsize       float64   `json:"stepsize"`
	AcceptanceRate float64   `json:"acceptanceRate"`
	LogProb        float64   `json:"logProb"`
	Value          []float64 `json:"value"`
}

// SwapSummary stores the swap statistics of a pair of replicas.
type SwapSummary struct {
	rex.SwapCount
	Rate float64 `json:"rate"`
}
