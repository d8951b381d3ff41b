package externalapi

// VirtualState is the single logical "virtual" tip-of-tips. Exactly one
// instance exists per consensus.
type VirtualState struct {
	Parents       []*DomainHash
	GhostdagData  *GhostdagData
	SelectedTip   *DomainHash
	DAAScore      uint64
	AcceptedTxIDs DomainHashSet
	UTXODiff      UTXODiff
}

// UTXODiff is the minimal shape the virtual processor needs from a UTXO
// diff in order to rewind/reapply acceptance. Full diff semantics (conflict
// resolution, collection iteration) live behind the UtxoView collaborator.
type UTXODiff interface {
	WithDiff(other UTXODiff) (UTXODiff, error)
}

// VirtualChainChangedNotification describes a selected-chain reorg: the
// blocks removed from and added to the chain, paired with the blue score at
// which each added block's transactions were accepted.
type VirtualChainChangedNotification struct {
	RemovedChainBlocks   []*DomainHash
	AddedChainBlocks     []*DomainHash
	AcceptingBlueScores  map[DomainHash]uint64
}
