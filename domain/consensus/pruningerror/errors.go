// Package pruningerror defines the pruning-point-proof import error
// taxonomy (spec.md §7), kept separate from ruleerror since these failures
// belong to node bootstrap rather than per-block consensus validation.
package pruningerror

import (
	"fmt"

	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
)

// Kind identifies a specific proof-import failure.
type Kind int

const (
	KindPruningPointPastMissingReachability Kind = iota
	KindProofHeaderOutOfOrder
	KindLevelInconsistent
)

// PruningImportError is returned by ApplyPruningProof.
type PruningImportError struct {
	Kind    Kind
	Hash    *externalapi.DomainHash
	Message string
}

func (e *PruningImportError) Error() string {
	if e.Hash != nil {
		return fmt.Sprintf("%s(%s): %s", e.kindString(), e.Hash, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.kindString(), e.Message)
}

func (e *PruningImportError) kindString() string {
	switch e.Kind {
	case KindPruningPointPastMissingReachability:
		return "PruningPointPastMissingReachability"
	case KindProofHeaderOutOfOrder:
		return "ProofHeaderOutOfOrder"
	case KindLevelInconsistent:
		return "LevelInconsistent"
	default:
		return "Unknown"
	}
}

// ErrPruningPointPastMissingReachability builds the error returned when a
// trusted header-only block is not a reachability ancestor of the pruning point.
func ErrPruningPointPastMissingReachability(hash *externalapi.DomainHash) *PruningImportError {
	return &PruningImportError{
		Kind:    KindPruningPointPastMissingReachability,
		Hash:    hash,
		Message: "trusted header-only block is not an ancestor of the pruning point",
	}
}

// ErrProofHeaderOutOfOrder builds the error returned when a proof level's
// headers are not sorted by ascending blue work.
func ErrProofHeaderOutOfOrder(hash *externalapi.DomainHash) *PruningImportError {
	return &PruningImportError{Kind: KindProofHeaderOutOfOrder, Hash: hash, Message: "proof level headers out of blue-work order"}
}
