// Package reachabilitystore persists externalapi.ReachabilityData. Writes
// are staged on the Store and flushed by Commit. The StagingReachabilityStore
// wrapper (see processes/reachabilitymanager) holds the store's one-shot
// staging token, so at most one wrapper session is open at a time; the
// header processor and the pruning-proof applier stage into the Store
// directly, without that wrapper or its token.
package reachabilitystore

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

// Store is the reachability data store.
type Store struct {
	db db

	mu          sync.RWMutex
	cache       map[externalapi.DomainHash]*externalapi.ReachabilityData
	reindexRoot *externalapi.DomainHash

	staging            map[externalapi.DomainHash]*externalapi.ReachabilityData
	stagingReindexRoot *externalapi.DomainHash

	tokenMu  sync.Mutex
	tokenOut bool
}

// StagingToken is a one-shot permit proving its holder is the sole live
// staging session against this store, enforced structurally per spec.md §9
// ("the staging's constructor consumes a token held by the physical store").
type StagingToken struct {
	store *Store
}

// AcquireStagingToken returns a token if no staging session currently holds
// one, or an error otherwise. Release must be called exactly once.
func (s *Store) AcquireStagingToken() (*StagingToken, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if s.tokenOut {
		return nil, errors.New("a reachability staging session is already live")
	}
	s.tokenOut = true
	return &StagingToken{store: s}, nil
}

// Release returns the token, allowing a new staging session to be acquired.
func (t *StagingToken) Release() {
	t.store.tokenMu.Lock()
	defer t.store.tokenMu.Unlock()
	t.store.tokenOut = false
}

// New returns a new, empty reachability data store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{db: underlyingDB, cache: map[externalapi.DomainHash]*externalapi.ReachabilityData{}}
}

// Get returns hash's reachability data.
func (s *Store) Get(hash *externalapi.DomainHash) (*externalapi.ReachabilityData, error) {
	s.mu.RLock()
	if data, ok := s.staging[*hash]; ok {
		s.mu.RUnlock()
		return data, nil
	}
	if data, ok := s.cache[*hash]; ok {
		s.mu.RUnlock()
		return data, nil
	}
	s.mu.RUnlock()

	raw, err := s.db.Get(database.BucketReachability.HashKey(hash))
	if err != nil {
		return nil, errors.Errorf("reachability data not found for %s", hash)
	}
	data, err := deserialize(raw)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[*hash] = data
	s.mu.Unlock()
	return data, nil
}

// Has reports whether reachability data exists for hash.
func (s *Store) Has(hash *externalapi.DomainHash) (bool, error) {
	s.mu.RLock()
	if _, ok := s.staging[*hash]; ok {
		s.mu.RUnlock()
		return true, nil
	}
	if _, ok := s.cache[*hash]; ok {
		s.mu.RUnlock()
		return true, nil
	}
	s.mu.RUnlock()
	if s.db == nil {
		return false, nil
	}
	_, err := s.db.Get(database.BucketReachability.HashKey(hash))
	return err == nil, nil
}

// StageData buffers a reachability data write for hash.
func (s *Store) StageData(hash *externalapi.DomainHash, data *externalapi.ReachabilityData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staging == nil {
		s.staging = map[externalapi.DomainHash]*externalapi.ReachabilityData{}
	}
	s.staging[*hash] = data
}

// StageReachabilityReindexRoot buffers a new reindex root marker, flushed by
// Commit. The reachability manager's reindex does not set it.
func (s *Store) StageReachabilityReindexRoot(root *externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stagingReindexRoot = root
}

// ReachabilityReindexRoot returns the last committed reindex root.
func (s *Store) ReachabilityReindexRoot() (*externalapi.DomainHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stagingReindexRoot != nil {
		return s.stagingReindexRoot, nil
	}
	return s.reindexRoot, nil
}

// IsStaged reports whether there are buffered mutations awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staging) > 0 || s.stagingReindexRoot != nil
}

// DiscardStaging drops any buffered mutations without writing them,
// letting an aborted staging session release the store back to a clean state.
func (s *Store) DiscardStaging() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging = nil
	s.stagingReindexRoot = nil
}

// Commit flushes staged mutations into the cache and write batch.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, data := range s.staging {
		encoded, err := serialize(data)
		if err != nil {
			return err
		}
		if err := dbTx.Put(database.BucketReachability.HashKey(&hash), encoded); err != nil {
			return err
		}
		s.cache[hash] = data
	}
	if s.stagingReindexRoot != nil {
		if err := dbTx.Put(database.BucketReachabilityRoot, s.stagingReindexRoot[:]); err != nil {
			return err
		}
		s.reindexRoot = s.stagingReindexRoot
	}
	s.staging = nil
	s.stagingReindexRoot = nil
	return nil
}

// serializable is the gob-friendly mirror of externalapi.ReachabilityData.
type serializable struct {
	IntervalStart     uint64
	IntervalEnd       uint64
	HasTreeParent     bool
	TreeParent        externalapi.DomainHash
	Children          []externalapi.DomainHash
	FutureCoveringSet []externalapi.DomainHash
}

func serialize(data *externalapi.ReachabilityData) ([]byte, error) {
	s := serializable{
		IntervalStart: data.Interval.Start,
		IntervalEnd:   data.Interval.End,
	}
	if data.ParentInReachabilityTree != nil {
		s.HasTreeParent = true
		s.TreeParent = *data.ParentInReachabilityTree
	}
	for _, h := range data.Children {
		s.Children = append(s.Children, *h)
	}
	for _, h := range data.FutureCoveringSet {
		s.FutureCoveringSet = append(s.FutureCoveringSet, *h)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "failed to encode reachability data")
	}
	return buf.Bytes(), nil
}

func deserialize(raw []byte) (*externalapi.ReachabilityData, error) {
	var s serializable
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to decode reachability data")
	}
	data := &externalapi.ReachabilityData{
		Interval: &externalapi.ReachabilityInterval{Start: s.IntervalStart, End: s.IntervalEnd},
	}
	if s.HasTreeParent {
		data.ParentInReachabilityTree = &s.TreeParent
	}
	for i := range s.Children {
		data.Children = append(data.Children, &s.Children[i])
	}
	for i := range s.FutureCoveringSet {
		data.FutureCoveringSet = append(data.FutureCoveringSet, &s.FutureCoveringSet[i])
	}
	return data, nil
}
