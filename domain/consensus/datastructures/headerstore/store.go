// Package headerstore persists sealed externalapi.DomainBlockHeader values,
// immutable once written (spec.md §3).
package headerstore

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

type entry struct {
	header *externalapi.DomainBlockHeader
	level  externalapi.BlockLevel
}

// Store is the header store.
type Store struct {
	mu      sync.RWMutex
	cache   map[externalapi.DomainHash]entry
	staging map[externalapi.DomainHash]entry
}

// New returns a new, empty header store.
func New() *Store {
	return &Store{cache: map[externalapi.DomainHash]entry{}}
}

// Header returns the sealed header for hash.
func (s *Store) Header(hash *externalapi.DomainHash) (*externalapi.DomainBlockHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.staging[*hash]; ok {
		return e.header, nil
	}
	if e, ok := s.cache[*hash]; ok {
		return e.header, nil
	}
	return nil, errors.Errorf("header not found for %s", hash)
}

// HasHeader reports whether hash's header has been written.
func (s *Store) HasHeader(hash *externalapi.DomainHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.staging[*hash]; ok {
		return true
	}
	_, ok := s.cache[*hash]
	return ok
}

// BlockLevel returns the PoW level recorded for hash's header.
func (s *Store) BlockLevel(hash *externalapi.DomainHash) (externalapi.BlockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.staging[*hash]; ok {
		return e.level, nil
	}
	if e, ok := s.cache[*hash]; ok {
		return e.level, nil
	}
	return 0, errors.Errorf("block level not found for %s", hash)
}

// Stage buffers a header write for hash.
func (s *Store) Stage(hash *externalapi.DomainHash, header *externalapi.DomainBlockHeader, level externalapi.BlockLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staging == nil {
		s.staging = map[externalapi.DomainHash]entry{}
	}
	s.staging[*hash] = entry{header: header, level: level}
}

// IsStaged reports whether there are buffered mutations awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staging) > 0
}

// Commit flushes staged headers into the cache and write batch.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, e := range s.staging {
		encoded, err := serialize(e)
		if err != nil {
			return err
		}
		if err := dbTx.Put(database.BucketHeaders.HashKey(&hash), encoded); err != nil {
			return err
		}
		s.cache[hash] = e
	}
	s.staging = nil
	return nil
}

type serializableHeader struct {
	Version              uint16
	ParentsByLevel        [][]externalapi.DomainHash
	HashMerkleRoot       externalapi.DomainHash
	AcceptedIDMerkleRoot externalapi.DomainHash
	UTXOCommitment       externalapi.DomainHash
	TimeInMilliseconds   int64
	Bits                 uint32
	Nonce                uint64
	DAAScore             uint64
	BlueScore            uint64
	BlueWork             []byte
	PruningPoint         externalapi.DomainHash
	Level                externalapi.BlockLevel
}

func serialize(e entry) ([]byte, error) {
	h := e.header
	s := serializableHeader{
		Version:              h.Version,
		HashMerkleRoot:       h.HashMerkleRoot,
		AcceptedIDMerkleRoot: h.AcceptedIDMerkleRoot,
		UTXOCommitment:       h.UTXOCommitment,
		TimeInMilliseconds:   h.TimeInMilliseconds,
		Bits:                 h.Bits,
		Nonce:                h.Nonce,
		DAAScore:             h.DAAScore,
		BlueScore:            h.BlueScore,
		BlueWork:             h.BlueWork.Bytes(),
		PruningPoint:         h.PruningPoint,
		Level:                e.level,
	}
	for _, level := range h.ParentsByLevel {
		flat := make([]externalapi.DomainHash, len(level))
		for i, p := range level {
			flat[i] = *p
		}
		s.ParentsByLevel = append(s.ParentsByLevel, flat)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "failed to encode header")
	}
	return buf.Bytes(), nil
}
