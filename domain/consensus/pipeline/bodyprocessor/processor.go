// Package bodyprocessor implements the second pipeline stage (spec.md §2,
// §4.4): validating a block's transaction body once its header has already
// passed GHOSTDAG/reachability staging. Ported directly from
// original_source/consensus/src/pipeline/body_processor/body_validation_in_context.rs's
// four checks, run in the same order: parent bodies exist, coinbase
// subsidy matches the schedule, every transaction passes UTXO-free
// validation in context, and the block is not beneath the pruning point.
package bodyprocessor

import (
	"fmt"

	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/ruleerror"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
	"github.com/pkg/errors"
)

var log = logger.NewSubsystem("bodyprocessor")

// Processor validates block bodies in the context of already-staged headers.
type Processor struct {
	genesisHash externalapi.DomainHash

	headerStore           model.HeaderStore
	statusStore           model.StatusStore
	ghostdagStore         model.GhostdagDataStore
	reachabilityManager   model.ReachabilityManager
	pruningStore          model.PruningStore
	pastMedianTimeManager model.PastMedianTimeManager
	coinbaseManager       model.CoinbaseManager
	txValidator           model.TxValidator
	blockStore            model.BlockStore
	dbManager             model.DBManager
}

// New returns a body processor.
func New(
	genesisHash externalapi.DomainHash,
	headerStore model.HeaderStore,
	statusStore model.StatusStore,
	ghostdagStore model.GhostdagDataStore,
	reachabilityManager model.ReachabilityManager,
	pruningStore model.PruningStore,
	pastMedianTimeManager model.PastMedianTimeManager,
	coinbaseManager model.CoinbaseManager,
	txValidator model.TxValidator,
	blockStore model.BlockStore,
	dbManager model.DBManager,
) *Processor {
	return &Processor{
		genesisHash:           genesisHash,
		headerStore:           headerStore,
		statusStore:           statusStore,
		ghostdagStore:         ghostdagStore,
		reachabilityManager:   reachabilityManager,
		pruningStore:          pruningStore,
		pastMedianTimeManager: pastMedianTimeManager,
		coinbaseManager:       coinbaseManager,
		txValidator:           txValidator,
		blockStore:            blockStore,
		dbManager:             dbManager,
	}
}

// ValidateBody runs all four in-context checks and, on success, stages the
// block as StatusUTXOPendingVerification (the virtual processor resolves it
// to StatusUTXOValid or StatusHeaderDisqualifiedFromChain).
func (p *Processor) ValidateBody(block *externalapi.DomainBlock) error {
	hash := block.Hash()
	if err := p.checkParentBodiesExist(block); err != nil {
		log.Warnf("body %s rejected: %s", hash, err)
		return err
	}
	if err := p.checkCoinbaseSubsidy(block); err != nil {
		log.Warnf("body %s rejected: %s", hash, err)
		return err
	}
	if err := p.checkTransactionsInContext(block); err != nil {
		log.Warnf("body %s rejected: %s", hash, err)
		return err
	}
	if err := p.checkNotPruned(block); err != nil {
		log.Warnf("body %s rejected: %s", hash, err)
		return err
	}

	if err := p.statusStore.Stage(hash, externalapi.StatusUTXOPendingVerification); err != nil {
		return err
	}
	p.blockStore.Stage(hash, block)

	dbTx, err := p.dbManager.Begin()
	if err != nil {
		return err
	}
	if err := p.statusStore.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := p.blockStore.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return err
	}

	log.Debugf("validated body for %s (%d transactions)", hash, len(block.Transactions))
	return nil
}

func (p *Processor) checkParentBodiesExist(block *externalapi.DomainBlock) error {
	parents := block.Header.DirectParents()
	if len(parents) == 1 && parents[0].Equal(&p.genesisHash) {
		return nil
	}

	var missing []*externalapi.DomainHash
	for _, parent := range parents {
		status, err := p.statusStore.Get(parent)
		if err != nil || !status.HasBlockBody() {
			missing = append(missing, parent)
		}
	}
	if len(missing) > 0 {
		return ruleerror.New(ruleerror.KindMissingParents, "parent body not yet present")
	}
	return nil
}

func (p *Processor) checkCoinbaseSubsidy(block *externalapi.DomainBlock) error {
	if len(block.Transactions) == 0 {
		return ruleerror.New(ruleerror.KindWrongSubsidy, "block has no coinbase transaction")
	}
	coinbaseData, err := p.coinbaseManager.ExtractCoinbaseData(block.Transactions[0])
	if err != nil {
		return errors.Wrap(err, "failed to extract coinbase data")
	}
	expected := p.coinbaseManager.CalcBlockSubsidy(block.Header.DAAScore)
	if coinbaseData.Subsidy != expected {
		return ruleerror.New(ruleerror.KindWrongSubsidy, fmt.Sprintf(
			"coinbase subsidy %d does not match expected subsidy %d at DAA score %d",
			coinbaseData.Subsidy, expected, block.Header.DAAScore))
	}
	return nil
}

func (p *Processor) checkTransactionsInContext(block *externalapi.DomainBlock) error {
	ghostdagData, err := p.ghostdagStore.Get(block.Hash(), false)
	if err != nil {
		return err
	}
	pastMedianTime, err := p.pastMedianTimeManager.PastMedianTime(ghostdagData)
	if err != nil {
		return err
	}
	for _, tx := range block.Transactions {
		if err := p.txValidator.UTXOFreeTxValidation(tx, block.Header.DAAScore, pastMedianTime); err != nil {
			return ruleerror.Wrap(ruleerror.KindTxInContextFailed, errors.Wrapf(err, "transaction %s failed in-context validation", tx.ID()))
		}
	}
	return nil
}

// checkNotPruned resolves the source TODO (spec.md §9 Design Notes item 1):
// a block beneath the current pruning point — i.e. the pruning point is not
// one of its reachability ancestors — is rejected rather than silently
// accepted.
func (p *Processor) checkNotPruned(block *externalapi.DomainBlock) error {
	pruningPoint, err := p.pruningStore.PruningPoint()
	if err != nil {
		// No pruning point set yet (pre-proof-import bootstrap): nothing to reject against.
		return nil
	}
	hash := block.Hash()
	if hash.Equal(pruningPoint) {
		return nil
	}
	isAncestor, err := p.reachabilityManager.IsDAGAncestorOf(pruningPoint, hash)
	if err != nil {
		return err
	}
	if !isAncestor {
		return ruleerror.New(ruleerror.KindPrunedBlock, fmt.Sprintf("block %s is beneath the pruning point %s", hash, pruningPoint))
	}
	return nil
}
