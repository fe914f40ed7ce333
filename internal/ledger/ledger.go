// Package ledger persists the outcome of every matrix cell so that abandoned
// cells remain visible after a sweep finishes.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	BucketSweeps  = "sweeps"
	BucketEntries = "entries"
)

// ErrNotFound is returned when a sweep ID is not in the ledger.
var ErrNotFound = errors.New("not found in ledger")

// Status is the final state of a cell.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusAbandoned Status = "abandoned"
)

// Sweep describes one invocation of the runner.
type Sweep struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	DataRoot string    `json:"dataRoot" yaml:"dataRoot"`
	Cells    int       `json:"cells" yaml:"cells"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished,omitempty" yaml:"finished,omitempty"`
}

// Entry is the outcome of one matrix cell.
type Entry struct {
	SweepID      string    `json:"sweepId" yaml:"sweepId"`
	TestName     string    `json:"testName" yaml:"testName"`
	Service      string    `json:"service" yaml:"service"`
	Algorithm    string    `json:"algorithm" yaml:"algorithm"`
	Requests     int       `json:"requests" yaml:"requests"`
	Concurrency  int       `json:"concurrency" yaml:"concurrency"`
	Status       Status    `json:"status" yaml:"status"`
	Attempts     int       `json:"attempts" yaml:"attempts"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
	OutputPath   string    `json:"outputPath" yaml:"outputPath"`
	ArtifactPath string    `json:"artifactPath" yaml:"artifactPath"`
	Started      time.Time `json:"started" yaml:"started"`
	Finished     time.Time `json:"finished" yaml:"finished"`
}

// Store is a bbolt-backed ledger. Sweeps are keyed by ID; entries live in a
// nested bucket per sweep, in insertion order.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{BucketSweeps, BucketEntries} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path is the ledger file location.
func (s *Store) Path() string { return s.path }

// Close releases the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginSweep registers a new sweep.
func (s *Store) BeginSweep(sw Sweep) error {
	if sw.ID == "" {
		return errors.New("sweep id is required")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.Bucket([]byte(BucketEntries)).CreateBucketIfNotExists([]byte(sw.ID)); err != nil {
			return err
		}
		return putJSON(tx.Bucket([]byte(BucketSweeps)), []byte(sw.ID), sw)
	})
}

// FinishSweep stamps the finish time of a sweep.
func (s *Store) FinishSweep(id string, finished time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketSweeps))
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("sweep %s: %w", id, ErrNotFound)
		}

		var sw Sweep
		if err := json.Unmarshal(v, &sw); err != nil {
			return err
		}
		sw.Finished = finished
		return putJSON(b, []byte(id), sw)
	})
}

// Record appends an entry to its sweep.
func (s *Store) Record(e Entry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(BucketSweeps)).Get([]byte(e.SweepID)) == nil {
			return fmt.Errorf("sweep %s: %w", e.SweepID, ErrNotFound)
		}

		b, err := tx.Bucket([]byte(BucketEntries)).CreateBucketIfNotExists([]byte(e.SweepID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return putJSON(b, key, e)
	})
}

// Entries returns the entries of a sweep in the order they were recorded.
func (s *Store) Entries(sweepID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketEntries)).Bucket([]byte(sweepID))
		if b == nil {
			return fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
		}

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding entry: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Sweeps returns every sweep, oldest first.
func (s *Store) Sweeps() ([]Sweep, error) {
	var sweeps []Sweep
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketSweeps)).ForEach(func(_, v []byte) error {
			var sw Sweep
			if err := json.Unmarshal(v, &sw); err != nil {
				return fmt.Errorf("decoding sweep: %w", err)
			}
			sweeps = append(sweeps, sw)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(sweeps, func(i, j int) bool {
		return sweeps[i].Started.Before(sweeps[j].Started)
	})
	return sweeps, nil
}

// Sweep returns one sweep by ID.
func (s *Store) Sweep(id string) (*Sweep, error) {
	var sw Sweep
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketSweeps)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("sweep %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &sw)
	})
	if err != nil {
		return nil, err
	}
	return &sw, nil
}

// Latest returns the most recently started sweep.
func (s *Store) Latest() (*Sweep, error) {
	sweeps, err := s.Sweeps()
	if err != nil {
		return nil, err
	}
	if len(sweeps) == 0 {
		return nil, fmt.Errorf("no sweeps: %w", ErrNotFound)
	}
	return &sweeps[len(sweeps)-1], nil
}

// Filter returns the entries with the given status.
func Filter(entries []Entry, status Status) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func putJSON(b *bbolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
