// Package selectedchainstore persists the chain_index <-> Hash mapping
// along the virtual's selected parent chain, from the pruning point to the
// selected tip (spec.md §4.5), enabling O(1) "is this hash on the selected
// chain" and "what hash is at depth d" queries.
package selectedchainstore

import (
	"encoding/binary"
	"sync"

	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

type db interface {
	Get(key []byte) ([]byte, error)
}

// Store is the selected-chain index store.
type Store struct {
	db db

	mu           sync.RWMutex
	byIndex      map[uint64]*externalapi.DomainHash
	byHash       map[externalapi.DomainHash]uint64
	highestIndex uint64
	initialized  bool

	stagedAppends     []*externalapi.DomainHash
	stagedRemoveFrom  uint64
	hasStagedRemoval  bool
}

// New returns a new, empty selected-chain store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{db: underlyingDB, byIndex: map[uint64]*externalapi.DomainHash{}, byHash: map[externalapi.DomainHash]uint64{}}
}

// InitWithPruningPoint seeds the chain with pruningPoint at index 0, the
// starting point of the indexable selected-chain window.
func (s *Store) InitWithPruningPoint(pruningPoint *externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIndex[0] = pruningPoint
	s.byHash[*pruningPoint] = 0
	s.highestIndex = 0
	s.initialized = true
}

// Get returns the hash at chain index.
func (s *Store) Get(index uint64) (*externalapi.DomainHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if hash, ok := s.byIndex[index]; ok {
		return hash, nil
	}
	return nil, errors.Errorf("no selected chain entry at index %d", index)
}

// IndexOf returns the chain index of hash, or an error if hash is not on
// the currently indexed selected chain.
func (s *Store) IndexOf(hash *externalapi.DomainHash) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index, ok := s.byHash[*hash]; ok {
		return index, nil
	}
	return 0, errors.Errorf("%s is not on the indexed selected chain", hash)
}

// HighestIndex returns the index of the current selected tip.
func (s *Store) HighestIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return 0, errors.New("selected chain store not yet initialized")
	}
	return s.highestIndex, nil
}

// StageAppend buffers hash to be appended past the current highest index.
func (s *Store) StageAppend(hash *externalapi.DomainHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stagedAppends = append(s.stagedAppends, hash)
}

// StageRemoveFrom buffers removal of every indexed entry at or above index,
// used to unwind the chain down to a reorg's split point before reapplying.
func (s *Store) StageRemoveFrom(index uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stagedRemoveFrom = index
	s.hasStagedRemoval = true
}

// IsStaged reports whether there are buffered mutations awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stagedAppends) > 0 || s.hasStagedRemoval
}

// Commit flushes staged removals then appends into the cache and write
// batch, in that order, so a reorg's unwind always precedes its reapply.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasStagedRemoval {
		for index := s.stagedRemoveFrom; index <= s.highestIndex; index++ {
			if hash, ok := s.byIndex[index]; ok {
				delete(s.byHash, *hash)
				delete(s.byIndex, index)
				if err := dbTx.Delete(database.BucketSelectedChainByHash.HashKey(hash)); err != nil {
					return err
				}
			}
			if err := dbTx.Delete(database.BucketSelectedChainByIdx.Key(indexKey(index))); err != nil {
				return err
			}
		}
		if s.stagedRemoveFrom > 0 {
			s.highestIndex = s.stagedRemoveFrom - 1
		}
		s.hasStagedRemoval = false
		s.stagedRemoveFrom = 0
	}

	for _, hash := range s.stagedAppends {
		s.highestIndex++
		s.byIndex[s.highestIndex] = hash
		s.byHash[*hash] = s.highestIndex
		if err := dbTx.Put(database.BucketSelectedChainByIdx.Key(indexKey(s.highestIndex)), hash[:]); err != nil {
			return err
		}
		if err := dbTx.Put(database.BucketSelectedChainByHash.HashKey(hash), indexKey(s.highestIndex)); err != nil {
			return err
		}
	}
	s.stagedAppends = nil
	return nil
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

var _ model.SelectedChainStore = (*Store)(nil)
