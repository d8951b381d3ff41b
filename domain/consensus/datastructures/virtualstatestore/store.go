// Package virtualstatestore persists the singleton externalapi.VirtualState
// (spec.md §4.5): the virtual's parents, selected tip, DAA score, and
// accepted transaction set.
package virtualstatestore

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

// Store is the virtual state store.
type Store struct {
	db db

	mu      sync.RWMutex
	current *externalapi.VirtualState
	staged  *externalapi.VirtualState
	hasRead bool
}

// New returns a new, empty virtual state store reading through underlyingDB.
func New(underlyingDB db) *Store {
	return &Store{db: underlyingDB}
}

// Get returns the current VirtualState.
func (s *Store) Get() (*externalapi.VirtualState, error) {
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

	raw, err := s.db.Get(database.BucketVirtualState)
	if err != nil {
		return nil, errors.Wrap(err, "virtual state not yet initialized")
	}
	state, err := deserialize(raw)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = state
	s.mu.Unlock()
	return state, nil
}

// Stage buffers a new VirtualState, replacing any prior staged value: the
// virtual advances as a whole, never incrementally.
func (s *Store) Stage(state *externalapi.VirtualState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = state
}

// IsStaged reports whether a new VirtualState is buffered awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staged != nil
}

// Commit flushes the staged VirtualState into the cache and write batch.
// Its UTXODiff is intentionally not part of the encoded record: UTXODiff is
// a collaborator-owned interface (spec.md §1 Non-goals) whose concrete type
// this package cannot register with gob without depending on that
// collaborator's implementation; restart-time UTXO state is expected to be
// rebuilt by the collaborator from its own durable store.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return nil
	}
	encoded, err := serialize(s.staged)
	if err != nil {
		return err
	}
	if err := dbTx.Put(database.BucketVirtualState, encoded); err != nil {
		return err
	}
	s.current = s.staged
	s.staged = nil
	return nil
}

type serializable struct {
	Parents       []externalapi.DomainHash
	SelectedTip   externalapi.DomainHash
	DAAScore      uint64
	AcceptedTxIDs []externalapi.DomainHash

	GhostdagBlueScore          uint64
	GhostdagBlueWork           []byte
	GhostdagSelectedParent     externalapi.DomainHash
	GhostdagMergeSetBlues      []externalapi.DomainHash
	GhostdagMergeSetReds       []externalapi.DomainHash
	GhostdagBluesAnticoneSizes map[externalapi.DomainHash]externalapi.KType
}

func serialize(state *externalapi.VirtualState) ([]byte, error) {
	s := serializable{
		SelectedTip:                *state.SelectedTip,
		DAAScore:                   state.DAAScore,
		GhostdagBlueScore:          state.GhostdagData.BlueScore,
		GhostdagBlueWork:           state.GhostdagData.BlueWork.Bytes(),
		GhostdagSelectedParent:     *state.GhostdagData.SelectedParent,
		GhostdagBluesAnticoneSizes: state.GhostdagData.BluesAnticoneSizes,
	}
	for _, p := range state.Parents {
		s.Parents = append(s.Parents, *p)
	}
	for _, id := range state.AcceptedTxIDs.ToSlice() {
		s.AcceptedTxIDs = append(s.AcceptedTxIDs, *id)
	}
	for _, h := range state.GhostdagData.MergeSetBlues {
		s.GhostdagMergeSetBlues = append(s.GhostdagMergeSetBlues, *h)
	}
	for _, h := range state.GhostdagData.MergeSetReds {
		s.GhostdagMergeSetReds = append(s.GhostdagMergeSetReds, *h)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "failed to encode virtual state")
	}
	return buf.Bytes(), nil
}

func deserialize(raw []byte) (*externalapi.VirtualState, error) {
	var s serializable
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to decode virtual state")
	}
	state := &externalapi.VirtualState{
		SelectedTip:   &s.SelectedTip,
		DAAScore:      s.DAAScore,
		AcceptedTxIDs: externalapi.NewDomainHashSet(),
		GhostdagData: &externalapi.GhostdagData{
			BlueScore:          s.GhostdagBlueScore,
			BlueWork:           externalapi.BlueWorkFromBytes(s.GhostdagBlueWork),
			SelectedParent:     &s.GhostdagSelectedParent,
			BluesAnticoneSizes: s.GhostdagBluesAnticoneSizes,
		},
	}
	for i := range s.Parents {
		state.Parents = append(state.Parents, &s.Parents[i])
	}
	for i := range s.AcceptedTxIDs {
		state.AcceptedTxIDs.Add(&s.AcceptedTxIDs[i])
	}
	for i := range s.GhostdagMergeSetBlues {
		state.GhostdagData.MergeSetBlues = append(state.GhostdagData.MergeSetBlues, &s.GhostdagMergeSetBlues[i])
	}
	for i := range s.GhostdagMergeSetReds {
		state.GhostdagData.MergeSetReds = append(state.GhostdagData.MergeSetReds, &s.GhostdagMergeSetReds[i])
	}
	return state, nil
}

var _ model.VirtualStateStore = (*Store)(nil)
