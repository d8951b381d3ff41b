// Package ghostdagstore persists externalapi.GhostdagData, append-only per
// hash as required by spec.md §3 ("GhostdagData (per block, append-only
// once written)").
package ghostdagstore

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// Store is the ghostdag data store. Reads take a shared read lock on the
// cache maps; writes are staged and flushed in a single Commit.
type Store struct {
	db db

	mu      sync.RWMutex
	cache   map[externalapi.DomainHash]*externalapi.GhostdagData
	trusted map[externalapi.DomainHash]*externalapi.GhostdagData

	staging        map[externalapi.DomainHash]*externalapi.GhostdagData
	stagingTrusted map[externalapi.DomainHash]*externalapi.GhostdagData
}

type db interface {
	Get(key []byte) ([]byte, error)
}

// New returns a new, empty ghostdag data store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{
		db:      underlyingDB,
		cache:   map[externalapi.DomainHash]*externalapi.GhostdagData{},
		trusted: map[externalapi.DomainHash]*externalapi.GhostdagData{},
	}
}

// Get returns the ghostdag data for hash. If isTrustedData is true, the
// trusted variant (written during pruning-proof application) is consulted
// instead of the regular store, per spec.md §9's trusted-data switch.
func (s *Store) Get(hash *externalapi.DomainHash, isTrustedData bool) (*externalapi.GhostdagData, error) {
	s.mu.RLock()
	if isTrustedData {
		if data, ok := s.stagingTrusted[*hash]; ok {
			s.mu.RUnlock()
			return data, nil
		}
		if data, ok := s.trusted[*hash]; ok {
			s.mu.RUnlock()
			return data, nil
		}
	} else {
		if data, ok := s.staging[*hash]; ok {
			s.mu.RUnlock()
			return data, nil
		}
		if data, ok := s.cache[*hash]; ok {
			s.mu.RUnlock()
			return data, nil
		}
	}
	s.mu.RUnlock()

	key := keyFor(hash)
	if isTrustedData {
		key = trustedKeyFor(hash)
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return nil, errors.Errorf("ghostdag data not found for %s", hash)
	}
	data, err := deserialize(raw)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if isTrustedData {
		s.trusted[*hash] = data
	} else {
		s.cache[*hash] = data
	}
	s.mu.Unlock()
	return data, nil
}

// Has reports whether ghostdag data has been written (staged or committed) for hash.
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
	_, err := s.db.Get(keyFor(hash))
	return err == nil, nil
}

// StageData buffers data for hash into the current batch.
func (s *Store) StageData(hash *externalapi.DomainHash, data *externalapi.GhostdagData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staging == nil {
		s.staging = map[externalapi.DomainHash]*externalapi.GhostdagData{}
	}
	s.staging[*hash] = data
}

// StageTrustedData buffers trusted ghostdag data (written verbatim from a
// pruning-point proof's trusted set) for hash into the current batch.
func (s *Store) StageTrustedData(hash *externalapi.DomainHash, data *externalapi.GhostdagData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stagingTrusted == nil {
		s.stagingTrusted = map[externalapi.DomainHash]*externalapi.GhostdagData{}
	}
	s.stagingTrusted[*hash] = data
}

// IsStaged reports whether there are buffered mutations awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staging) > 0 || len(s.stagingTrusted) > 0
}

// Commit flushes staged mutations into the cache and the shared write batch.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, data := range s.staging {
		encoded, err := serialize(data)
		if err != nil {
			return err
		}
		if err := dbTx.Put(keyFor(&hash), encoded); err != nil {
			return err
		}
		s.cache[hash] = data
	}
	for hash, data := range s.stagingTrusted {
		encoded, err := serialize(data)
		if err != nil {
			return err
		}
		if err := dbTx.Put(trustedKeyFor(&hash), encoded); err != nil {
			return err
		}
		s.trusted[hash] = data
	}
	s.staging = nil
	s.stagingTrusted = nil
	return nil
}

func keyFor(hash *externalapi.DomainHash) []byte {
	return database.BucketGhostdag.HashKey(hash)
}

func trustedKeyFor(hash *externalapi.DomainHash) []byte {
	return database.BucketGhostdagTrusted.HashKey(hash)
}

// serializable is the gob-friendly mirror of externalapi.GhostdagData: the
// store package owns codec concerns so externalapi stays a pure domain type.
type serializable struct {
	BlueScore          uint64
	BlueWork           []byte
	SelectedParent     externalapi.DomainHash
	MergeSetBlues      []externalapi.DomainHash
	MergeSetReds       []externalapi.DomainHash
	BluesAnticoneSizes map[externalapi.DomainHash]externalapi.KType
}

func serialize(data *externalapi.GhostdagData) ([]byte, error) {
	s := serializable{
		BlueScore:          data.BlueScore,
		BlueWork:           data.BlueWork.Bytes(),
		SelectedParent:     *data.SelectedParent,
		BluesAnticoneSizes: data.BluesAnticoneSizes,
	}
	for _, h := range data.MergeSetBlues {
		s.MergeSetBlues = append(s.MergeSetBlues, *h)
	}
	for _, h := range data.MergeSetReds {
		s.MergeSetReds = append(s.MergeSetReds, *h)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "failed to encode ghostdag data")
	}
	return buf.Bytes(), nil
}

func deserialize(raw []byte) (*externalapi.GhostdagData, error) {
	var s serializable
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to decode ghostdag data")
	}
	data := &externalapi.GhostdagData{
		BlueScore:          s.BlueScore,
		BlueWork:           externalapi.BlueWorkFromBytes(s.BlueWork),
		SelectedParent:     &s.SelectedParent,
		BluesAnticoneSizes: s.BluesAnticoneSizes,
	}
	for i := range s.MergeSetBlues {
		data.MergeSetBlues = append(data.MergeSetBlues, &s.MergeSetBlues[i])
	}
	for i := range s.MergeSetReds {
		data.MergeSetReds = append(data.MergeSetReds, &s.MergeSetReds[i])
	}
	return data, nil
}
