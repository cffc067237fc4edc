package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
)

var (
	bucketAggregator = []byte("aggregator")
	keyState         = []byte("state")
)

// BoltStore keeps the aggregator state in a single bbolt key.
type BoltStore struct {
	db    *bolt.DB
	nowFn func() time.Time
}

var _ aggregator.StateStore = (*BoltStore)(nil)

// NewBoltStore opens (and creates) the database at path.
func NewBoltStore(path string, options *bolt.Options) (*BoltStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAggregator)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, nowFn: time.Now}, nil
}

// Close releases the underlying Bolt database handle.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the stored state or aggregator.ErrStateNotFound.
func (s *BoltStore) Load(ctx context.Context) (aggregator.State, error) {
	if err := ctx.Err(); err != nil {
		return aggregator.State{}, err
	}
	var rec stateRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAggregator).Get(keyState)
		if raw == nil {
			return aggregator.ErrStateNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return aggregator.State{}, err
	}
	return rec.toState()
}

// Save replaces the stored state.
func (s *BoltStore) Save(ctx context.Context, state aggregator.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(toRecord(state, s.nowFn()))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAggregator).Put(keyState, payload)
	})
}
