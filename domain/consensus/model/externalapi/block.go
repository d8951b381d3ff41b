package externalapi

// BlockLevel is a PoW level as returned by the PoW collaborator's
// block_level(header) function. Level 0 is the base DAG; higher levels
// are progressively sparser and back the pruning-point proof.
type BlockLevel uint8

// DomainBlockHeader is the immutable, sealed header of a block.
type DomainBlockHeader struct {
	Version              uint16
	ParentsByLevel        [][]*DomainHash
	HashMerkleRoot       DomainHash
	AcceptedIDMerkleRoot DomainHash
	UTXOCommitment       DomainHash
	TimeInMilliseconds   int64
	Bits                 uint32
	Nonce                uint64
	DAAScore             uint64
	BlueScore            uint64
	BlueWork             *BlueWork
	PruningPoint         DomainHash

	hash *DomainHash
}

// DirectParents returns the level-0 parent set, i.e. the real DAG parents.
func (h *DomainBlockHeader) DirectParents() []*DomainHash {
	if len(h.ParentsByLevel) == 0 {
		return nil
	}
	return h.ParentsByLevel[0]
}

// Hash returns the header's finalized hash. Finalize must have been called.
func (h *DomainBlockHeader) Hash() *DomainHash {
	if h.hash == nil {
		panic("DomainBlockHeader.Hash called before Finalize")
	}
	return h.hash
}

// Finalize seals the header by deriving and caching its hash. It is
// idempotent and safe to call more than once with the same hasher output.
func (h *DomainBlockHeader) Finalize(hash *DomainHash) {
	h.hash = hash
}

// DomainOutpoint is a transaction outpoint (non-UTXO-validating, used only
// for acceptance bookkeeping within the core).
type DomainOutpoint struct {
	TransactionID DomainHash
	Index         uint32
}

// DomainTransaction is a minimal transaction shape sufficient for the core's
// non-UTXO rules (coinbase extraction, TxValidator context calls, merkle
// roots). Full UTXO/script semantics are delegated to the TxValidator and
// UtxoView collaborators.
type DomainTransaction struct {
	Version  uint16
	Inputs   []*DomainTransactionInput
	Outputs  []*DomainTransactionOutput
	LockTime uint64
	Payload  []byte

	id *DomainHash
}

// ID returns the transaction's cached id.
func (tx *DomainTransaction) ID() *DomainHash {
	return tx.id
}

// SetID assigns the transaction's id (computed by a collaborator hasher).
func (tx *DomainTransaction) SetID(id *DomainHash) {
	tx.id = id
}

// DomainTransactionInput is a transaction input.
type DomainTransactionInput struct {
	PreviousOutpoint DomainOutpoint
	SignatureScript  []byte
	Sequence         uint64
}

// DomainTransactionOutput is a transaction output.
type DomainTransactionOutput struct {
	Value        uint64
	ScriptPubKey []byte
}

// DomainBlock is a sealed header paired with its ordered transactions.
// Transactions[0] is always the coinbase.
type DomainBlock struct {
	Header       *DomainBlockHeader
	Transactions []*DomainTransaction
}

// IsHeaderOnly returns whether the block carries no transaction bodies yet.
func (b *DomainBlock) IsHeaderOnly() bool {
	return len(b.Transactions) == 0
}

// Hash is a convenience accessor for the block's header hash.
func (b *DomainBlock) Hash() *DomainHash {
	return b.Header.Hash()
}
