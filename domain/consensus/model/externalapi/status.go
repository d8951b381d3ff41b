package externalapi

// BlockStatus is a block's position in the per-block lifecycle state
// machine described in spec.md §4.7.
type BlockStatus byte

const (
	// StatusHeaderOnly means the header was validated and processed but no
	// transaction body has arrived yet.
	StatusHeaderOnly BlockStatus = iota
	// StatusInvalid means the block failed a rule check and is permanently
	// rejected.
	StatusInvalid
	// StatusUTXOPendingVerification means the body passed context checks
	// but has not yet been folded into the virtual's accepted set.
	StatusUTXOPendingVerification
	// StatusUTXOValid means the block's transactions were accepted and its
	// UTXO effects applied along the selected chain.
	StatusUTXOValid
	// StatusHeaderDisqualifiedFromChain means a previously UTXOValid block
	// lost its place on the selected chain during a reorg. Reversible: the
	// block can return to StatusUTXOValid if it re-enters the chain.
	StatusHeaderDisqualifiedFromChain
)

func (s BlockStatus) String() string {
	switch s {
	case StatusHeaderOnly:
		return "HeaderOnly"
	case StatusInvalid:
		return "Invalid"
	case StatusUTXOPendingVerification:
		return "UTXOPendingVerification"
	case StatusUTXOValid:
		return "UTXOValid"
	case StatusHeaderDisqualifiedFromChain:
		return "HeaderDisqualifiedFromChain"
	default:
		return "Unknown"
	}
}

// HasBlockBody returns whether a block in this status carries a processed
// transaction body (used by the body processor's parent-bodies-exist check).
func (s BlockStatus) HasBlockBody() bool {
	return s == StatusUTXOPendingVerification || s == StatusUTXOValid || s == StatusHeaderDisqualifiedFromChain
}

// validTransitions enumerates the monotonic edges of the status FSM, plus
// the one reversible edge (UTXOValid -> HeaderDisqualifiedFromChain) and its
// reorg-driven reverse.
var validTransitions = map[BlockStatus]map[BlockStatus]bool{
	StatusHeaderOnly: {
		StatusInvalid:                 true,
		StatusUTXOPendingVerification: true,
	},
	StatusUTXOPendingVerification: {
		StatusInvalid:  true,
		StatusUTXOValid: true,
	},
	StatusUTXOValid: {
		StatusHeaderDisqualifiedFromChain: true,
	},
	StatusHeaderDisqualifiedFromChain: {
		StatusUTXOValid: true,
	},
}

// CanTransition reports whether moving a block from `from` to `to` is a
// legal edge of the status state machine.
func CanTransition(from, to BlockStatus) bool {
	if from == to {
		return true
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
