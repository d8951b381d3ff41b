package model

import "github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"

// GhostdagDataStoreReader reads per-block GhostdagData. GhostdagData is
// append-only: once staged for a hash it never changes.
type GhostdagDataStoreReader interface {
	Get(hash *externalapi.DomainHash, isTrustedData bool) (*externalapi.GhostdagData, error)
	Has(hash *externalapi.DomainHash) (bool, error)
}

// GhostdagDataStore is the read-write extension used by the header
// processor and pruning-proof applier.
type GhostdagDataStore interface {
	GhostdagDataStoreReader
	StageData(hash *externalapi.DomainHash, data *externalapi.GhostdagData)
	StageTrustedData(hash *externalapi.DomainHash, data *externalapi.GhostdagData)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// RelationsStoreReader reads parent/child adjacency.
type RelationsStoreReader interface {
	Parents(hash *externalapi.DomainHash) ([]*externalapi.DomainHash, error)
	Children(hash *externalapi.DomainHash) ([]*externalapi.DomainHash, error)
	Has(hash *externalapi.DomainHash) (bool, error)
}

// RelationsStore is the read-write extension. Parents are append-only;
// children grow monotonically until pruning.
type RelationsStore interface {
	RelationsStoreReader
	StageParents(hash *externalapi.DomainHash, parents []*externalapi.DomainHash)
	AppendChild(parent, child *externalapi.DomainHash)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// ReachabilityDataStoreReader reads reachability tree bookkeeping.
type ReachabilityDataStoreReader interface {
	Get(hash *externalapi.DomainHash) (*externalapi.ReachabilityData, error)
	Has(hash *externalapi.DomainHash) (bool, error)
}

// ReachabilityDataStore is the read-write extension. Writes are staged on
// the store itself and flushed by Commit; the pipeline does not route them
// through a StagingReachabilityStore (see processes/reachabilitymanager).
type ReachabilityDataStore interface {
	ReachabilityDataStoreReader
	StageData(hash *externalapi.DomainHash, data *externalapi.ReachabilityData)
	StageReachabilityReindexRoot(root *externalapi.DomainHash)
	ReachabilityReindexRoot() (*externalapi.DomainHash, error)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// StatusStoreReader reads per-block lifecycle status.
type StatusStoreReader interface {
	Get(hash *externalapi.DomainHash) (externalapi.BlockStatus, error)
	Exists(hash *externalapi.DomainHash) bool
}

// StatusStore is the read-write extension.
type StatusStore interface {
	StatusStoreReader
	Stage(hash *externalapi.DomainHash, status externalapi.BlockStatus) error
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// HeaderStoreReader reads sealed headers.
type HeaderStoreReader interface {
	Header(hash *externalapi.DomainHash) (*externalapi.DomainBlockHeader, error)
	HasHeader(hash *externalapi.DomainHash) bool
	BlockLevel(hash *externalapi.DomainHash) (externalapi.BlockLevel, error)
}

// HeaderStore is the read-write extension.
type HeaderStore interface {
	HeaderStoreReader
	Stage(hash *externalapi.DomainHash, header *externalapi.DomainBlockHeader, level externalapi.BlockLevel)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// BlockStore persists validated transaction bodies, keyed by block hash,
// so the virtual processor can re-derive UTXO diffs for chain blocks being
// reapplied during a reorg without re-downloading them.
type BlockStore interface {
	Block(hash *externalapi.DomainHash) (*externalapi.DomainBlock, error)
	Stage(hash *externalapi.DomainHash, block *externalapi.DomainBlock)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// VirtualStateStore holds the singleton VirtualState.
type VirtualStateStore interface {
	Get() (*externalapi.VirtualState, error)
	Stage(state *externalapi.VirtualState)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// SelectedChainStore maps chain_index <-> Hash along the selected parent
// chain from the pruning point to the virtual selected tip.
type SelectedChainStore interface {
	Get(index uint64) (*externalapi.DomainHash, error)
	IndexOf(hash *externalapi.DomainHash) (uint64, error)
	HighestIndex() (uint64, error)
	StageAppend(hash *externalapi.DomainHash)
	StageRemoveFrom(index uint64)
	InitWithPruningPoint(pruningPoint *externalapi.DomainHash)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// PruningStore tracks the current pruning point.
type PruningStore interface {
	PruningPoint() (*externalapi.DomainHash, error)
	StagePruningPoint(hash *externalapi.DomainHash)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// BodyTipsStore tracks the set of blocks with a validated body that have no
// child with a validated body, i.e. the frontier the virtual processor
// selects new virtual parents from.
type BodyTipsStore interface {
	Tips() ([]*externalapi.DomainHash, error)
	StageInit(tips []*externalapi.DomainHash)
	StageAddTip(tip *externalapi.DomainHash)
	StageRemoveTip(tip *externalapi.DomainHash)
	IsStaged() bool
	Commit(dbTx DBTransaction) error
}

// DBTransaction is the minimal batched-write handle every store commits
// through; exactly one physical write batch backs a single pipeline commit.
type DBTransaction interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Commit() error
	Rollback() error
}

// DBManager opens batched transactions against the underlying key-value store.
type DBManager interface {
	Begin() (DBTransaction, error)
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}
