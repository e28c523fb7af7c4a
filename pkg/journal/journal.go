// Package journal persists recorded cache events to a local Badger store
// for offline analysis. The journal is write-mostly and fire-and-forget:
// the monitor's live buffer stays the only source of truth for
// statistics, and journal failures never affect recording.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/cachepulse/cachepulse/pkg/event"
)

const keyPrefix = "evt:"

// Journal is a Badger-backed event archive with TTL-based retention.
type Journal struct {
	db        *badger.DB
	retention time.Duration
}

// Open opens (or creates) a journal at path. Entries expire after the
// retention period via Badger's native TTL.
func Open(path string, retention time.Duration) (*Journal, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal.Open: %s: %w", path, err)
	}
	return &Journal{db: db, retention: retention}, nil
}

// eventKey orders entries by start time, then operation ID for
// uniqueness. Zero-padded nanoseconds keep lexicographic order equal to
// chronological order.
func eventKey(e event.Event) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", keyPrefix, e.StartTime.UnixNano(), e.OperationID))
}

// Append persists one event with the configured retention TTL.
func (j *Journal) Append(e event.Event) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal.Append: marshal: %w", err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(eventKey(e), val)
		if j.retention > 0 {
			entry = entry.WithTTL(j.retention)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("journal.Append: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]event.Event, error) {
	var out []event.Event
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the end of the prefix space, then walk backwards.
		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if len(out) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var e event.Event
				if err := json.Unmarshal(val, &e); err != nil {
					return nil // skip corrupt entries
				}
				out = append(out, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal.Recent: %w", err)
	}
	return out, nil
}

// Len counts the journaled events. Intended for diagnostics and tests;
// it scans keys only.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("journal.Len: %w", err)
	}
	return n, nil
}

// Close flushes and closes the underlying store.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal.Close: %w", err)
	}
	return nil
}
