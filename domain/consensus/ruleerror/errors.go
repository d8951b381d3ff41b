// Package ruleerror defines the consensus rule-error taxonomy described in
// spec.md §7: values returned whenever a block or header fails a rule the
// protocol itself enforces, as opposed to a transient or storage failure.
package ruleerror

import (
	"fmt"

	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// RuleError wraps a specific rule violation with the Kind it belongs to, so
// callers can classify permanent-invalidity vs. retryable-missing-data
// (spec.md §4.4, §7) with a single type switch on Kind.
type RuleError struct {
	Kind       Kind
	InnerError error
}

func (e *RuleError) Error() string {
	if e.InnerError != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.InnerError)
	}
	return e.Kind.String()
}

func (e *RuleError) Unwrap() error { return e.InnerError }

// Kind identifies a specific rule violation.
type Kind int

const (
	// KindMissingParents is retryable: the block's parent(s) have not completed the relevant pipeline stage yet.
	KindMissingParents Kind = iota
	KindWrongSubsidy
	KindKnownInvalid
	KindTxInContextFailed
	KindCandidateBlueAnticoneExceedsK
	KindChainBlueAnticoneExceedsK
	KindInvalidPruningPoint
	KindInvalidDifficulty
	KindSelectedParentNotFound
	KindPrunedBlock
	KindInternal
	KindInvalidParents
	KindInvalidProofOfWorkLevel
	KindTimestampTooEarly
)

func (k Kind) String() string {
	switch k {
	case KindMissingParents:
		return "MissingParents"
	case KindWrongSubsidy:
		return "WrongSubsidy"
	case KindKnownInvalid:
		return "KnownInvalid"
	case KindTxInContextFailed:
		return "TxInContextFailed"
	case KindCandidateBlueAnticoneExceedsK:
		return "CandidateBlueAnticoneExceedsK"
	case KindChainBlueAnticoneExceedsK:
		return "ChainBlueAnticoneExceedsK"
	case KindInvalidPruningPoint:
		return "InvalidPruningPoint"
	case KindInvalidDifficulty:
		return "InvalidDifficulty"
	case KindSelectedParentNotFound:
		return "SelectedParentNotFound"
	case KindPrunedBlock:
		return "PrunedBlock"
	case KindInternal:
		return "Internal"
	case KindInvalidParents:
		return "InvalidParents"
	case KindInvalidProofOfWorkLevel:
		return "InvalidProofOfWorkLevel"
	case KindTimestampTooEarly:
		return "TimestampTooEarly"
	default:
		return "Unknown"
	}
}

// IsRetryable reports whether the error kind should re-queue the block
// behind its missing dependency rather than mark it permanently Invalid.
func (k Kind) IsRetryable() bool {
	return k == KindMissingParents
}

// New builds a RuleError of the given kind whose InnerError carries message.
func New(kind Kind, message string) *RuleError {
	return &RuleError{Kind: kind, InnerError: errors.New(message)}
}

// Wrap builds a RuleError of the given kind wrapping cause.
func Wrap(kind Kind, cause error) *RuleError {
	return &RuleError{Kind: kind, InnerError: cause}
}

// ErrMissingParents builds the MissingParents rule error.
func ErrMissingParents(missing []*externalapi.DomainHash) *RuleError {
	return &RuleError{Kind: KindMissingParents, InnerError: errors.Errorf("missing parents: %v", missing)}
}

// WrongSubsidyDetail carries both the expected and actual subsidy values of
// a WrongSubsidy rule error for the caller to inspect.
type WrongSubsidyDetail struct {
	Expected, Actual uint64
}

// ErrWrongSubsidy builds the WrongSubsidy rule error.
func ErrWrongSubsidy(expected, actual uint64) *RuleError {
	return &RuleError{
		Kind:       KindWrongSubsidy,
		InnerError: &wrongSubsidyError{WrongSubsidyDetail{expected, actual}},
	}
}

type wrongSubsidyError struct{ WrongSubsidyDetail }

func (e *wrongSubsidyError) Error() string {
	return fmt.Sprintf("expected subsidy %d, got %d", e.Expected, e.Actual)
}

// AsWrongSubsidy extracts the expected/actual pair from a RuleError of kind
// WrongSubsidy, if that is what err is.
func AsWrongSubsidy(err error) (WrongSubsidyDetail, bool) {
	re, ok := err.(*RuleError)
	if !ok || re.Kind != KindWrongSubsidy {
		return WrongSubsidyDetail{}, false
	}
	wse, ok := re.InnerError.(*wrongSubsidyError)
	if !ok {
		return WrongSubsidyDetail{}, false
	}
	return wse.WrongSubsidyDetail, true
}

// ErrKnownInvalid builds the KnownInvalid rule error returned when a
// previously rejected block is resubmitted.
func ErrKnownInvalid() *RuleError {
	return &RuleError{Kind: KindKnownInvalid, InnerError: errors.New("block is known to be invalid")}
}

// ErrTxInContextFailed builds the TxInContextFailed rule error.
func ErrTxInContextFailed(txID *externalapi.DomainHash, inner error) *RuleError {
	return &RuleError{Kind: KindTxInContextFailed, InnerError: errors.Wrapf(inner, "tx %s failed context validation", txID)}
}
