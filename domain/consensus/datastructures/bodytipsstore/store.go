// Package bodytipsstore persists the body-tip set (spec.md §4.6/§4.5): the
// blocks with a validated body that no other validated-body block points
// to as a parent, i.e. the frontier virtual parent selection draws from.
package bodytipsstore

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

// Store is the body-tips store.
type Store struct {
	db db

	mu          sync.RWMutex
	current     externalapi.DomainHashSet
	staged      externalapi.DomainHashSet
	hasStaged   bool
	initialized bool
}

// New returns a new, empty body-tips store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{db: underlyingDB}
}

// Tips returns the current body-tip set.
func (s *Store) Tips() ([]*externalapi.DomainHash, error) {
	s.mu.RLock()
	if s.hasStaged {
		defer s.mu.RUnlock()
		return s.staged.ToSlice(), nil
	}
	if s.initialized {
		defer s.mu.RUnlock()
		return s.current.ToSlice(), nil
	}
	s.mu.RUnlock()

	raw, err := s.db.Get(database.BucketBodyTips)
	if err != nil {
		return nil, errors.Wrap(err, "body tips not yet initialized")
	}
	set, err := deserialize(raw)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = set
	s.initialized = true
	s.mu.Unlock()
	return set.ToSlice(), nil
}

func (s *Store) stagedOrCurrent() externalapi.DomainHashSet {
	if s.hasStaged {
		return s.staged
	}
	clone := externalapi.NewDomainHashSet()
	for _, h := range s.current.ToSlice() {
		clone.Add(h)
	}
	return clone
}

// StageInit replaces the tip set wholesale, used by the pruning-proof
// applier to seed the frontier at the new pruning point.
func (s *Store) StageInit(tips []*externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = externalapi.NewDomainHashSet(tips...)
	s.hasStaged = true
}

// StageAddTip buffers tip's insertion into the tip set.
func (s *Store) StageAddTip(tip *externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.stagedOrCurrent()
	next.Add(tip)
	s.staged = next
	s.hasStaged = true
}

// StageRemoveTip buffers tip's removal from the tip set, used when a child
// body supersedes it.
func (s *Store) StageRemoveTip(tip *externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.stagedOrCurrent()
	remaining := externalapi.NewDomainHashSet()
	for _, h := range next.ToSlice() {
		if !h.Equal(tip) {
			remaining.Add(h)
		}
	}
	s.staged = remaining
	s.hasStaged = true
}

// IsStaged reports whether a new tip set is buffered awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasStaged
}

// Commit flushes the staged tip set into the cache and write batch.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasStaged {
		return nil
	}
	encoded, err := serialize(s.staged)
	if err != nil {
		return err
	}
	if err := dbTx.Put(database.BucketBodyTips, encoded); err != nil {
		return err
	}
	s.current = s.staged
	s.initialized = true
	s.staged = nil
	s.hasStaged = false
	return nil
}

func serialize(set externalapi.DomainHashSet) ([]byte, error) {
	var hashes []externalapi.DomainHash
	for _, h := range set.ToSlice() {
		hashes = append(hashes, *h)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(hashes); err != nil {
		return nil, errors.Wrap(err, "failed to encode body tips")
	}
	return buf.Bytes(), nil
}

func deserialize(raw []byte) (externalapi.DomainHashSet, error) {
	var hashes []externalapi.DomainHash
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&hashes); err != nil {
		return nil, errors.Wrap(err, "failed to decode body tips")
	}
	set := externalapi.NewDomainHashSet()
	for i := range hashes {
		set.Add(&hashes[i])
	}
	return set, nil
}

var _ model.BodyTipsStore = (*Store)(nil)
