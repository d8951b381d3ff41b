// Package virtualprocessor implements the third pipeline stage (spec.md
// §2, §4.5): maintaining the singleton virtual (tip-of-tips) and its
// selected parent chain as new block bodies arrive. The tip-set and
// selected-parent-chain bookkeeping is generalized from the teacher's
// consensus/blockdag/virtualblock.go virtualBlock.{addTip,setTips,
// updateSelectedParentSet}; this package is the single writer for the
// virtual (spec.md §5), so every public method takes an internal lock.
package virtualprocessor

import (
	"sync"

	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/ruleerror"
	"github.com/kasparov-dag/corenode/domain/consensus/utils/utxo"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
	"github.com/pkg/errors"
)

var log = logger.NewSubsystem("virtualprocessor")

// Processor maintains the virtual and its selected parent chain.
type Processor struct {
	mu sync.Mutex

	bodyTipsStore       model.BodyTipsStore
	virtualStateStore   model.VirtualStateStore
	selectedChainStore  model.SelectedChainStore
	statusStore         model.StatusStore
	blockStore          model.BlockStore
	ghostdagStore       model.GhostdagDataStore
	ghostdagManager     model.GHOSTDAGManager
	reachabilityManager model.ReachabilityManager
	txValidator         model.TxValidator
	utxoView            model.UtxoView
	notifier            model.Notifier
	dbManager           model.DBManager
}

// New returns a virtual processor.
func New(
	bodyTipsStore model.BodyTipsStore,
	virtualStateStore model.VirtualStateStore,
	selectedChainStore model.SelectedChainStore,
	statusStore model.StatusStore,
	blockStore model.BlockStore,
	ghostdagStore model.GhostdagDataStore,
	ghostdagManager model.GHOSTDAGManager,
	reachabilityManager model.ReachabilityManager,
	txValidator model.TxValidator,
	utxoView model.UtxoView,
	notifier model.Notifier,
	dbManager model.DBManager,
) *Processor {
	return &Processor{
		bodyTipsStore:       bodyTipsStore,
		virtualStateStore:   virtualStateStore,
		selectedChainStore:  selectedChainStore,
		statusStore:         statusStore,
		blockStore:          blockStore,
		ghostdagStore:       ghostdagStore,
		ghostdagManager:     ghostdagManager,
		reachabilityManager: reachabilityManager,
		txValidator:         txValidator,
		utxoView:            utxoView,
		notifier:            notifier,
		dbManager:           dbManager,
	}
}

// AddTip folds newTip's body into the virtual: newTip replaces any of its
// own parents in the tip set (mirroring virtualBlock.addTip), the virtual's
// GHOSTDAG is recomputed over the updated tip set, and the selected parent
// chain is rewound to the split point and reapplied up to the new selected
// tip (mirroring updateSelectedParentSet).
func (p *Processor) AddTip(newTip *externalapi.DomainHash, block *externalapi.DomainBlock) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tips, err := p.bodyTipsStore.Tips()
	if err != nil {
		return err
	}

	// newTip's direct parents now have a child with a validated body, so
	// they drop out of the tip set; newTip takes their place.
	finalTips := externalapi.NewDomainHashSet()
	parentSet := externalapi.NewDomainHashSet(block.Header.DirectParents()...)
	for _, tip := range tips {
		if !parentSet.Contains(tip) {
			finalTips.Add(tip)
		}
	}
	finalTips.Add(newTip)

	newTipSlice := finalTips.ToSlice()
	newGhostdagData, err := p.ghostdagManager.GHOSTDAG(newTipSlice)
	if err != nil {
		return err
	}

	oldState, err := p.virtualStateStore.Get()
	var oldSelectedTip *externalapi.DomainHash
	if err == nil {
		oldSelectedTip = oldState.SelectedTip
	}
	newSelectedTip := newGhostdagData.SelectedParent
	if len(newTipSlice) == 1 {
		newSelectedTip = newTipSlice[0]
	}

	removed, added, err := p.computeChainUpdate(oldSelectedTip, newSelectedTip)
	if err != nil {
		return err
	}

	for _, removedHash := range removed {
		if err := p.statusStore.Stage(removedHash, externalapi.StatusHeaderDisqualifiedFromChain); err != nil {
			return err
		}
	}

	if len(removed) > 0 {
		splitIndex, err := p.selectedChainStore.IndexOf(removed[len(removed)-1])
		if err == nil {
			p.selectedChainStore.StageRemoveFrom(splitIndex)
		}
	}

	acceptingBlueScores := map[externalapi.DomainHash]uint64{}
	for _, addedHash := range added {
		if err := p.applyChainBlock(addedHash); err != nil {
			return err
		}
		p.selectedChainStore.StageAppend(addedHash)
		gd, gdErr := p.ghostdagStore.Get(addedHash, false)
		if gdErr == nil {
			acceptingBlueScores[*addedHash] = gd.BlueScore
		}
	}

	p.bodyTipsStore.StageInit(newTipSlice)
	p.virtualStateStore.Stage(&externalapi.VirtualState{
		Parents:       newTipSlice,
		GhostdagData:  newGhostdagData,
		SelectedTip:   newSelectedTip,
		DAAScore:      newGhostdagData.BlueScore,
		AcceptedTxIDs: externalapi.NewDomainHashSet(),
	})

	dbTx, err := p.dbManager.Begin()
	if err != nil {
		return err
	}
	for _, commit := range []func(model.DBTransaction) error{
		p.statusStore.Commit,
		p.selectedChainStore.Commit,
		p.bodyTipsStore.Commit,
		p.virtualStateStore.Commit,
	} {
		if err := commit(dbTx); err != nil {
			_ = dbTx.Rollback()
			return err
		}
	}
	if err := dbTx.Commit(); err != nil {
		return err
	}

	p.notifier.Notify(&model.Notification{
		Kind: model.NotificationVirtualChainChanged,
		VirtualChainChanged: &externalapi.VirtualChainChangedNotification{
			RemovedChainBlocks:  removed,
			AddedChainBlocks:    added,
			AcceptingBlueScores: acceptingBlueScores,
		},
	})

	if len(added) > 0 || len(removed) > 0 {
		log.Infof("virtual selected tip is now %s (blue score %d), %d chain blocks added, %d removed",
			newSelectedTip, newGhostdagData.BlueScore, len(added), len(removed))
	} else {
		log.Debugf("added tip %s without a selected parent chain change", newTip)
	}
	return nil
}

// computeChainUpdate finds the split point between the old and new
// selected tips via reachability LCA, then returns the chain blocks to
// unwind (old tip down to, but excluding, the split point) and the chain
// blocks to reapply (split point's child up to the new tip), mirroring
// virtualBlock.updateSelectedParentSet without needing an in-memory set:
// ancestry is answered by the reachability tree instead.
func (p *Processor) computeChainUpdate(oldTip, newTip *externalapi.DomainHash) (removed, added []*externalapi.DomainHash, err error) {
	if oldTip == nil {
		added, err = p.collectChainDown(newTip, &externalapi.ORIGIN)
		if err != nil {
			return nil, nil, err
		}
		reverse(added)
		return nil, added, nil
	}
	if oldTip.Equal(newTip) {
		return nil, nil, nil
	}

	splitPoint, err := p.reachabilityManager.FindCommonAncestor(oldTip, newTip)
	if err != nil {
		return nil, nil, err
	}

	removed, err = p.collectChainDown(oldTip, splitPoint)
	if err != nil {
		return nil, nil, err
	}
	added, err = p.collectChainDown(newTip, splitPoint)
	if err != nil {
		return nil, nil, err
	}
	reverse(added)
	return removed, added, nil
}

// collectChainDown walks from tip's selected-parent chain down to (but not
// including) stopAt, returning blocks in tip-to-stopAt order.
func (p *Processor) collectChainDown(tip, stopAt *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	var chain []*externalapi.DomainHash
	current := tip
	for current != nil && !current.Equal(stopAt) && !externalapi.IsOrigin(current) {
		chain = append(chain, current)
		gd, err := p.ghostdagStore.Get(current, false)
		if err != nil {
			return nil, err
		}
		current = gd.SelectedParent
	}
	return chain, nil
}

func reverse(hashes []*externalapi.DomainHash) {
	for left, right := 0, len(hashes)-1; left < right; left, right = left+1, right-1 {
		hashes[left], hashes[right] = hashes[right], hashes[left]
	}
}

// applyChainBlock validates and applies a newly-accepted chain block's
// transactions against the UtxoView collaborator, building its UTXO diff
// from the block body staged by the body processor, then promotes its
// status to StatusUTXOValid (or marks it StatusHeaderDisqualifiedFromChain
// and returns a RuleError on failure).
func (p *Processor) applyChainBlock(hash *externalapi.DomainHash) error {
	block, err := p.blockStore.Block(hash)
	if err != nil {
		return err
	}

	diff := utxo.NewDiff()
	for _, tx := range block.Transactions {
		if err := p.txValidator.ValidateAndApply(tx, p.utxoView); err != nil {
			if stageErr := p.statusStore.Stage(hash, externalapi.StatusHeaderDisqualifiedFromChain); stageErr != nil {
				return stageErr
			}
			return ruleerror.Wrap(ruleerror.KindTxInContextFailed, errors.Wrapf(err, "transaction %s failed validation for chain block %s", tx.ID(), hash))
		}
		if err := diff.AddTransaction(tx, block.Header.BlueScore); err != nil {
			return err
		}
	}

	if err := p.utxoView.ApplyDiff(diff); err != nil {
		if stageErr := p.statusStore.Stage(hash, externalapi.StatusHeaderDisqualifiedFromChain); stageErr != nil {
			return stageErr
		}
		return ruleerror.Wrap(ruleerror.KindTxInContextFailed, errors.Wrapf(err, "failed to apply UTXO diff for %s", hash))
	}

	return p.statusStore.Stage(hash, externalapi.StatusUTXOValid)
}
