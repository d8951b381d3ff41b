package reachabilitymanager

import (
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/reachabilitystore"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
)

// StagingReachabilityStore is the unit-of-work wrapper described in
// spec.md §4.1: it buffers mutations in memory and only becomes visible to
// readers once Commit is called. Two instances can never be live at once;
// NewStaging enforces this by consuming a one-shot token held by the physical
// store (spec.md §9).
type StagingReachabilityStore struct {
	store *reachabilitystore.Store
	token *reachabilitystore.StagingToken
}

// NewStaging opens a staging session against store, failing if another
// session is already live.
func NewStaging(store *reachabilitystore.Store) (*StagingReachabilityStore, error) {
	token, err := store.AcquireStagingToken()
	if err != nil {
		return nil, err
	}
	return &StagingReachabilityStore{store: store, token: token}, nil
}

// Get delegates to the underlying store, seeing staged-but-uncommitted data.
func (s *StagingReachabilityStore) Get(hash *externalapi.DomainHash) (*externalapi.ReachabilityData, error) {
	return s.store.Get(hash)
}

// Has delegates to the underlying store.
func (s *StagingReachabilityStore) Has(hash *externalapi.DomainHash) (bool, error) {
	return s.store.Has(hash)
}

// StageData buffers data for hash.
func (s *StagingReachabilityStore) StageData(hash *externalapi.DomainHash, data *externalapi.ReachabilityData) {
	s.store.StageData(hash, data)
}

// StageReindexRoot buffers a new reindex root marker.
func (s *StagingReachabilityStore) StageReindexRoot(root *externalapi.DomainHash) {
	s.store.StageReachabilityReindexRoot(root)
}

// ReindexRoot returns the last committed (or staged) reindex root.
func (s *StagingReachabilityStore) ReindexRoot() (*externalapi.DomainHash, error) {
	return s.store.ReachabilityReindexRoot()
}

// Commit flushes the staged mutations through dbTx and releases the token,
// allowing a subsequent staging session to open.
func (s *StagingReachabilityStore) Commit(dbTx model.DBTransaction) error {
	defer s.token.Release()
	return s.store.Commit(dbTx)
}

// Abort discards the staged mutations and releases the token so a new
// staging session can open.
func (s *StagingReachabilityStore) Abort() {
	s.store.DiscardStaging()
	s.token.Release()
}
