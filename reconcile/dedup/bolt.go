// Package dedup provides a BoltDB-backed store of already-processed payment
// event ids.
//
// Payment providers deliver webhook events at-least-once, so the same event
// id can arrive multiple times. The settlement state machine is idempotent on
// its own (terminal states absorb redelivery), but skipping known event ids
// before touching Postgres keeps redelivery storms cheap. The bolt file is a
// fast-path cache, not the authoritative guard: losing it is safe.
package dedup

import (
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "processed_events"

// BoltStore records payment event ids that have already been handed to the
// reconciler. All operations are idempotent.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a BoltDB database at the given path and
// ensures the processed-events bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists([]byte(bucketName))
		return createErr
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Seen reports whether the event id was already marked as processed.
func (s *BoltStore) Seen(eventID string) (bool, error) {
	var seen bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		seen = b.Get([]byte(eventID)) != nil
		return nil
	})
	if err != nil {
		return false, err
	}

	return seen, nil
}

// MarkProcessed records the event id with the time it was processed.
// Marking the same id again overwrites the timestamp, which is harmless.
func (s *BoltStore) MarkProcessed(eventID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put([]byte(eventID), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}
