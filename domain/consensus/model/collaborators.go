package model

import "github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"

// TxValidator delegates UTXO-free and UTXO-aware transaction rules. Its
// implementation is outside core scope (spec.md §1 Non-goals); the core
// only calls through this seam.
type TxValidator interface {
	UTXOFreeTxValidation(tx *externalapi.DomainTransaction, daaScore uint64, pastMedianTime int64) error
	ValidateAndApply(tx *externalapi.DomainTransaction, utxoView UtxoView) error
}

// CoinbaseManager extracts coinbase payload data and computes the subsidy
// schedule. The subsidy schedule itself (not its plumbing into the body
// processor) is core-owned per spec.md §4.4.
type CoinbaseManager interface {
	ExtractCoinbaseData(tx *externalapi.DomainTransaction) (*CoinbaseData, error)
	CalcBlockSubsidy(daaScore uint64) uint64
}

// CoinbaseData is the payload extracted from a coinbase transaction.
type CoinbaseData struct {
	ScriptPubKey []byte
	Subsidy      uint64
}

// PoWResolver exposes the PoW collaborator's block_level function, used by
// the pruning-proof applier to stratify headers across levels.
type PoWResolver interface {
	BlockLevel(header *externalapi.DomainBlockHeader) externalapi.BlockLevel
}

// UtxoView lets the virtual processor commit UTXO diffs without owning UTXO
// set semantics.
type UtxoView interface {
	ApplyDiff(diff externalapi.UTXODiff) error
}

// NotificationKind enumerates the notifications the core publishes.
type NotificationKind byte

const (
	// NotificationVirtualChainChanged fires on every virtual selected chain update.
	NotificationVirtualChainChanged NotificationKind = iota
	// NotificationBlockAdded fires when a new block's body is accepted.
	NotificationBlockAdded
	// NotificationFinalityConflict fires when two chains older than finality depth conflict.
	NotificationFinalityConflict
)

// Notification is the value handed to Notifier.Notify.
type Notification struct {
	Kind                NotificationKind
	VirtualChainChanged *externalapi.VirtualChainChangedNotification
	BlockAdded          *externalapi.DomainHash
}

// Notifier publishes consensus notifications. The pipeline calls Notify
// synchronously from its processing stages; the core itself neither buffers
// nor drops notifications.
type Notifier interface {
	Notify(notification *Notification)
}
