// Package pruningstore persists the current pruning point (spec.md §4.6):
// the block below which history may be garbage-collected.
package pruningstore

import (
	"sync"

	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

type db interface {
	Get(key []byte) ([]byte, error)
}

// Store is the pruning-point store.
type Store struct {
	db db

	mu      sync.RWMutex
	current *externalapi.DomainHash
	staged  *externalapi.DomainHash
}

// New returns a new, empty pruning store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{db: underlyingDB}
}

// PruningPoint returns the current pruning point.
func (s *Store) PruningPoint() (*externalapi.DomainHash, error) {
	s.mu.RLock()
	if s.staged != nil {
		defer s.mu.RUnlock()
		return s.staged, nil
	}
	if s.current != nil {
		defer s.mu.RUnlock()
		return s.current, nil
	}
	s.mu.RUnlock()

	raw, err := s.db.Get(database.BucketPruning)
	if err != nil {
		return nil, errors.Wrap(err, "pruning point not yet set")
	}
	hash := externalapi.NewDomainHashFromByteSlice(raw)
	s.mu.Lock()
	s.current = hash
	s.mu.Unlock()
	return hash, nil
}

// StagePruningPoint buffers a new pruning point, replacing any prior staged value.
func (s *Store) StagePruningPoint(hash *externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = hash
}

// IsStaged reports whether a new pruning point is buffered awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staged != nil
}

// Commit flushes the staged pruning point into the cache and write batch.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return nil
	}
	if err := dbTx.Put(database.BucketPruning, s.staged[:]); err != nil {
		return err
	}
	s.current = s.staged
	s.staged = nil
	return nil
}

var _ model.PruningStore = (*Store)(nil)
