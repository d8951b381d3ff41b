package model

import "github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"

// ReachabilityManager answers ancestry queries over the DAG in amortized
// O(log N) and maintains the tree via AddBlock during header processing.
type ReachabilityManager interface {
	AddBlock(hash, selectedParent *externalapi.DomainHash, mergeSetWithoutSelectedParent []*externalapi.DomainHash) error
	IsDAGAncestorOf(a, b *externalapi.DomainHash) (bool, error)
	IsDAGAncestorOfAny(a *externalapi.DomainHash, others []*externalapi.DomainHash) (bool, error)
	FindCommonAncestor(a, b *externalapi.DomainHash) (*externalapi.DomainHash, error)
}

// GHOSTDAGManager computes the GHOSTDAG tuple for a candidate block from
// its direct parents.
type GHOSTDAGManager interface {
	GHOSTDAG(parents []*externalapi.DomainHash) (*externalapi.GhostdagData, error)
}

// PastMedianTimeManager computes PMT over a GHOSTDAG selected-parent window.
type PastMedianTimeManager interface {
	PastMedianTime(ghostdagData *externalapi.GhostdagData) (int64, error)
}
