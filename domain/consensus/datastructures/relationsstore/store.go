// Package relationsstore persists parent/child adjacency (spec.md §4.7):
// parents are append-only once written for a hash, children grow
// monotonically until pruning.
package relationsstore

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

type db interface {
	Get(key []byte) ([]byte, error)
}

// Store is the relations store.
type Store struct {
	db db

	mu       sync.RWMutex
	parents  map[externalapi.DomainHash][]*externalapi.DomainHash
	children map[externalapi.DomainHash][]*externalapi.DomainHash

	stagingParents       map[externalapi.DomainHash][]*externalapi.DomainHash
	stagingChildAppends  map[externalapi.DomainHash][]*externalapi.DomainHash
}

// New returns a new, empty relations store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{
		db:       underlyingDB,
		parents:  map[externalapi.DomainHash][]*externalapi.DomainHash{},
		children: map[externalapi.DomainHash][]*externalapi.DomainHash{},
	}
}

// Parents returns hash's direct parents.
func (s *Store) Parents(hash *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if parents, ok := s.stagingParents[*hash]; ok {
		return parents, nil
	}
	if parents, ok := s.parents[*hash]; ok {
		return parents, nil
	}
	return nil, errors.Errorf("relations not found for %s", hash)
}

// Children returns hash's currently known children.
func (s *Store) Children(hash *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	children := append([]*externalapi.DomainHash{}, s.children[*hash]...)
	children = append(children, s.stagingChildAppends[*hash]...)
	return children, nil
}

// Has reports whether relations exist (staged or committed) for hash.
func (s *Store) Has(hash *externalapi.DomainHash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.stagingParents[*hash]; ok {
		return true, nil
	}
	_, ok := s.parents[*hash]
	return ok, nil
}

// StageParents buffers a hash's parent set. Parents are append-only: a
// hash's parents must be staged exactly once in its lifetime.
func (s *Store) StageParents(hash *externalapi.DomainHash, parents []*externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stagingParents == nil {
		s.stagingParents = map[externalapi.DomainHash][]*externalapi.DomainHash{}
	}
	s.stagingParents[*hash] = parents
}

// AppendChild buffers an append of child onto parent's children list.
func (s *Store) AppendChild(parent, child *externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stagingChildAppends == nil {
		s.stagingChildAppends = map[externalapi.DomainHash][]*externalapi.DomainHash{}
	}
	s.stagingChildAppends[*parent] = append(s.stagingChildAppends[*parent], child)
}

// IsStaged reports whether there are buffered mutations awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stagingParents) > 0 || len(s.stagingChildAppends) > 0
}

// Commit flushes staged mutations into the cache and the shared write batch.
// Parent writes and child-list appends share the single batch passed in, so
// a block's relations become visible atomically (spec.md §4.7).
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, parents := range s.stagingParents {
		encoded, err := serializeHashes(parents)
		if err != nil {
			return err
		}
		if err := dbTx.Put(database.BucketRelationsParents.HashKey(&hash), encoded); err != nil {
			return err
		}
		s.parents[hash] = parents
	}
	for parent, appended := range s.stagingChildAppends {
		s.children[parent] = append(s.children[parent], appended...)
		encoded, err := serializeHashes(s.children[parent])
		if err != nil {
			return err
		}
		if err := dbTx.Put(database.BucketRelationsChildren.HashKey(&parent), encoded); err != nil {
			return err
		}
	}
	s.stagingParents = nil
	s.stagingChildAppends = nil
	return nil
}

func serializeHashes(hashes []*externalapi.DomainHash) ([]byte, error) {
	flat := make([]externalapi.DomainHash, len(hashes))
	for i, h := range hashes {
		flat[i] = *h
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(flat); err != nil {
		return nil, errors.Wrap(err, "failed to encode hash list")
	}
	return buf.Bytes(), nil
}
