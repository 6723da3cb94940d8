// Package journal is an optional, best-effort history of past sandbox
// invocations, persisted to a BoltDB file so operators can query runs
// after the fact without standing up a database of their own.
//
// Unlike the report file (package report), a journal write failure is
// never fatal to the supervisor: it is logged as a warning and the run's
// exit status is unaffected.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("runs")

// Entry is one historical run record, keyed by its correlation UUID.
type Entry struct {
	StartedAt    time.Time `json:"started_at"`
	Argv0        string    `json:"argv0"`
	ExitCode     int64     `json:"exit_code"`
	TimeMs       int64     `json:"time_ms"`
	RealTimeMs   int64     `json:"real_time_ms"`
	MemoryBytes  int64     `json:"memory_bytes"`
	KilledReason string    `json:"killed_reason"`
}

// Append writes entry to the journal database at path, under key id. The
// database is opened, written to, and closed again within this call;
// there is no long-lived handle shared across invocations.
func Append(path, id string, entry Entry) error {
	if path == "" {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}

	return withDB(path, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			bkt, err := tx.CreateBucketIfNotExists(bucketName)
			if err != nil {
				return fmt.Errorf("journal: create bucket: %w", err)
			}
			return bkt.Put([]byte(id), data)
		})
	})
}

// Get reads back a single entry by its correlation UUID. Returns
// (Entry{}, false, nil) if no such entry exists.
func Get(path, id string) (Entry, bool, error) {
	var entry Entry
	var found bool

	err := withDB(path, func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			bkt := tx.Bucket(bucketName)
			if bkt == nil {
				return nil
			}
			data := bkt.Get([]byte(id))
			if data == nil {
				return nil
			}
			found = true
			return json.Unmarshal(data, &entry)
		})
	})
	if err != nil {
		return Entry{}, false, err
	}
	return entry, found, nil
}

// withDB opens path with a short timeout, runs f, and closes it. The
// journal is written to once per run, never held open across the
// sandbox's lifetime.
func withDB(path string, f func(*bolt.DB) error) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer func() {
		_ = db.Close()
	}()
	return f(db)
}
