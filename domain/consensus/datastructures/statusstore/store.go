// Package statusstore persists the per-block BlockStatus state machine
// (spec.md §4.7).
package statusstore

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

// Store is the status store.
type Store struct {
	db db

	mu      sync.RWMutex
	cache   map[externalapi.DomainHash]externalapi.BlockStatus
	staging map[externalapi.DomainHash]externalapi.BlockStatus
}

// New returns a new, empty status store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{db: underlyingDB, cache: map[externalapi.DomainHash]externalapi.BlockStatus{}}
}

// Get returns hash's current status.
func (s *Store) Get(hash *externalapi.DomainHash) (externalapi.BlockStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status, ok := s.staging[*hash]; ok {
		return status, nil
	}
	if status, ok := s.cache[*hash]; ok {
		return status, nil
	}
	return 0, errors.Errorf("status not found for %s", hash)
}

// Exists reports whether a status has been recorded for hash.
func (s *Store) Exists(hash *externalapi.DomainHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.staging[*hash]; ok {
		return true
	}
	_, ok := s.cache[*hash]
	return ok
}

// Stage buffers a status transition for hash, rejecting illegal edges of
// the status FSM (spec.md §4.7).
func (s *Store) Stage(hash *externalapi.DomainHash, status externalapi.BlockStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, known := s.staging[*hash]
	if !known {
		current, known = s.cache[*hash]
	}
	if known && !externalapi.CanTransition(current, status) {
		return errors.Errorf("illegal status transition for %s: %s -> %s", hash, current, status)
	}

	if s.staging == nil {
		s.staging = map[externalapi.DomainHash]externalapi.BlockStatus{}
	}
	s.staging[*hash] = status
	return nil
}

// IsStaged reports whether there are buffered mutations awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staging) > 0
}

// Commit flushes staged status transitions into the cache and write batch.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, status := range s.staging {
		if err := dbTx.Put(database.BucketStatus.HashKey(&hash), []byte{byte(status)}); err != nil {
			return err
		}
		s.cache[hash] = status
	}
	s.staging = nil
	return nil
}
