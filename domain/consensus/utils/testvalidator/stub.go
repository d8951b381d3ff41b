// Package testvalidator provides trivial, always-succeeding collaborator
// implementations (spec.md §1 Non-goals: UTXO/script/signature validation is
// out of core scope) so the pipeline can be exercised end to end in tests
// without a real UTXO engine, grounded on the teacher's convention of
// thin test-double types living under utils/ next to the real
// implementations they stand in for.
package testvalidator

import (
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
)

// TxValidator accepts every transaction unconditionally.
type TxValidator struct{}

// NewTxValidator returns a permissive TxValidator test double.
func NewTxValidator() *TxValidator {
	return &TxValidator{}
}

// UTXOFreeTxValidation always succeeds.
func (*TxValidator) UTXOFreeTxValidation(tx *externalapi.DomainTransaction, daaScore uint64, pastMedianTime int64) error {
	return nil
}

// ValidateAndApply always succeeds without mutating utxoView.
func (*TxValidator) ValidateAndApply(tx *externalapi.DomainTransaction, utxoView model.UtxoView) error {
	return nil
}

// UtxoView is a no-op UtxoView collaborator that discards every diff it is handed.
type UtxoView struct{}

// NewUtxoView returns a no-op UtxoView test double.
func NewUtxoView() *UtxoView {
	return &UtxoView{}
}

// ApplyDiff discards diff and always succeeds.
func (*UtxoView) ApplyDiff(diff externalapi.UTXODiff) error {
	return nil
}

// PoWResolver reports every header as block level 0, the base DAG level.
type PoWResolver struct{}

// NewPoWResolver returns a PoWResolver test double that never promotes a
// header above the base level.
func NewPoWResolver() *PoWResolver {
	return &PoWResolver{}
}

// BlockLevel always returns 0.
func (*PoWResolver) BlockLevel(header *externalapi.DomainBlockHeader) externalapi.BlockLevel {
	return 0
}

// Notifier records every notification it is handed for later inspection by a test.
type Notifier struct {
	Received []*model.Notification
}

// NewNotifier returns a Notifier test double that records what it receives.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Notify records notification for later inspection by a test.
func (n *Notifier) Notify(notification *model.Notification) {
	n.Received = append(n.Received, notification)
}

var (
	_ model.TxValidator = (*TxValidator)(nil)
	_ model.UtxoView    = (*UtxoView)(nil)
	_ model.PoWResolver = (*PoWResolver)(nil)
	_ model.Notifier    = (*Notifier)(nil)
)
