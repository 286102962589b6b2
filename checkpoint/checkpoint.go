// Package checkpoint provides CheckpointIO which saves and loads
// replica exchange checkpoints.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/gorex/rex"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// Bucket is the bucket holding all the checkpoints, one per key.
var Bucket = []byte("rex")

// Data stores checkpoint data.
type Data struct {
	rex.Snapshot
	// LogProb is the sum of the replica log-densities, nil if it is
	// not finite (JSON has no infinities).
	LogProb *float64 `json:"logProb,omitempty"`
	// Final is true if the run finished.
	Final bool `json:"final"`
	// Saved is the time of saving.
	Saved time.Time `json:"saved"`
}

// NewData creates checkpoint data from the current state of r.
func NewData(r *rex.ReplicaExchange, final bool) *Data {
	return newData(r.Snapshot(), r.State(), final)
}

func newData(s *rex.Snapshot, state rex.ReplicaState, final bool) *Data {
	d := &Data{
		Snapshot: *s,
		Final:    final,
	}
	if l := state.LogProb(); !math.IsInf(l, 0) && !math.IsNaN(l) {
		d.LogProb = &l
	}
	return d
}

// Restore continues r from the checkpoint.
func (d *Data) Restore(r *rex.ReplicaExchange) error {
	return r.Restore(&d.Snapshot)
}

func (d *Data) String() string {
	lp := "-"
	if d.LogProb != nil {
		lp = fmt.Sprint(*d.LogProb)
	}
	status := "unfinished"
	if d.Final {
		status = "finished"
	}
	return fmt.Sprintf("%s replica exchange checkpoint (round=%v, log p=%v, replicas=%d)",
		status, d.Round, lp, len(d.Values))
}

// CheckpointIO saves and loads checkpoints of one run.
type CheckpointIO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewCheckpointIO creates a new CheckpointIO storing data under key.
// Checkpoints are considered old after the given number of seconds.
func NewCheckpointIO(db *bolt.DB, key []byte, seconds float64) *CheckpointIO {
	return &CheckpointIO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
}

// Save saves checkpoint to the database.
func (s *CheckpointIO) Save(data *Data) error {
	// a failed save still postpones the next one
	s.SetNow()
	data.Saved = s.last
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serializing checkpoint: %w", err)
	}
	if err := SaveData(s.db, s.key, b); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	log.Debugf("Saved %s", data)
	return nil
}

// Load returns the checkpoint or nil if there is none.
func (s *CheckpointIO) Load() (*Data, error) {
	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}
	var data Data
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", s.key, err)
	}
	if len(data.Values) == 0 {
		return nil, nil
	}
	log.Noticef("Found %s", &data)
	return &data, nil
}

// Delete removes the checkpoint.
func (s *CheckpointIO) Delete() error {
	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		return b.Delete(s.key)
	})
}

// OnRound returns a round callback which saves a checkpoint whenever
// the last one is old. Saving errors are logged and do not stop the
// run.
func (s *CheckpointIO) OnRound() func(*rex.ReplicaExchange, rex.ReplicaState) error {
	return func(r *rex.ReplicaExchange, state rex.ReplicaState) error {
		if !s.Old() {
			return nil
		}
		if err := s.Save(newData(r.Snapshot(), state, false)); err != nil {
			log.Error(err)
		}
		return nil
	}
}

// Old returns true if the last checkpoint was saved too long ago.
func (s *CheckpointIO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *CheckpointIO) SetNow() {
	s.last = time.Now()
}

// Keys returns the sorted keys of all the checkpoints in db.
func Keys(db *bolt.DB) ([]string, error) {
	var keys []string
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

// SaveData stores data under key, nothing is done if db is nil.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(Bucket)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData returns data stored under key or nil.
func LoadData(db *bolt.DB, key []byte) (data []byte, err error) {
	if db == nil {
		return nil, nil
	}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		// v is only valid inside the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return
}
