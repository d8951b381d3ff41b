// Package consensus wires every store, process, and pipeline stage built
// under domain/consensus into the three inbound operations spec.md §6
// exposes to the repo's outer layers: SubmitBlock, SubmitHeader, and
// ApplyPruningProof. Grounded on the teacher's top-level
// domain/consensus.consensus struct, which plays the same "one struct per
// instance, one method per inbound call" role over an equivalent pipeline.
package consensus

import (
	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/blockstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/bodytipsstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/ghostdagstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/headerstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/pruningstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/reachabilitystore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/relationsstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/selectedchainstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/statusstore"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/virtualstatestore"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/pipeline/bodyprocessor"
	"github.com/kasparov-dag/corenode/domain/consensus/pipeline/headerprocessor"
	"github.com/kasparov-dag/corenode/domain/consensus/pipeline/virtualprocessor"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/coinbasemanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/difficultymanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/ghostdagmanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/pastmediantimemanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/pruningmanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/reachabilitymanager"
	"github.com/kasparov-dag/corenode/domain/consensus/ruleerror"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
)

var log = logger.NewSubsystem("consensus")

// Collaborators bundles every outer-layer dependency the core calls through
// (spec.md §1 Non-goals / §6 Outbound interfaces): TxValidator, UtxoView,
// and PoW are all owned outside the core.
type Collaborators struct {
	TxValidator model.TxValidator
	UtxoView    model.UtxoView
	PoWResolver model.PoWResolver
	Notifier    model.Notifier
}

// Consensus is a single consensus instance: every store, process, and
// pipeline stage wired against one underlying database.
type Consensus struct {
	params *config.Params
	db     *database.DB

	headerStore        model.HeaderStore
	relationsStore     model.RelationsStore
	statusStore        model.StatusStore
	ghostdagStore      model.GhostdagDataStore
	reachabilityStore  *reachabilitystore.Store
	blockStore         model.BlockStore
	bodyTipsStore      model.BodyTipsStore
	virtualStateStore  model.VirtualStateStore
	selectedChainStore model.SelectedChainStore
	pruningStore       model.PruningStore

	reachabilityManager model.ReachabilityManager
	ghostdagManager     model.GHOSTDAGManager

	headerProcessor  *headerprocessor.Processor
	bodyProcessor    *bodyprocessor.Processor
	virtualProcessor *virtualprocessor.Processor
	pruningManager   *pruningmanager.Manager

	notifier model.Notifier
}

// New wires a full Consensus instance against db, ready to accept headers
// and blocks once genesis has been processed.
func New(params *config.Params, db *database.DB, collaborators *Collaborators) (*Consensus, error) {
	headerStore := headerstore.New()
	relationsStore := relationsstore.New(db)
	statusStore := statusstore.New(db)
	ghostdagStore := ghostdagstore.New(db)
	reachabilityStore := reachabilitystore.New(db)
	blockStore := blockstore.New()
	bodyTipsStore := bodytipsstore.New(db)
	virtualStateStore := virtualstatestore.New(db)
	selectedChainStore := selectedchainstore.New(db)
	pruningStore := pruningstore.New(db)

	reachabilityManager := reachabilitymanager.New(reachabilityStore, params.GenesisHash)
	difficultyManager := difficultymanager.New(params)
	ghostdagManager := ghostdagmanager.New(params.GenesisHash, params.GhostdagK, ghostdagStore, relationsStore, reachabilityManager, headerStore, difficultyManager)
	pastMedianTimeManager := pastmediantimemanager.New(headerStore, ghostdagStore, params.PastMedianTimeWindowSize)
	coinbaseManager := coinbasemanager.New(params)

	headerProcessor := headerprocessor.New(
		params.GenesisHash,
		params,
		db,
		headerStore,
		relationsStore,
		statusStore,
		ghostdagStore,
		reachabilityStore,
		ghostdagManager,
		reachabilityManager,
		difficultyManager,
		collaborators.PoWResolver,
		pastMedianTimeManager,
	)

	bodyProcessor := bodyprocessor.New(
		params.GenesisHash,
		headerStore,
		statusStore,
		ghostdagStore,
		reachabilityManager,
		pruningStore,
		pastMedianTimeManager,
		coinbaseManager,
		collaborators.TxValidator,
		blockStore,
		db,
	)

	virtualProcessor := virtualprocessor.New(
		bodyTipsStore,
		virtualStateStore,
		selectedChainStore,
		statusStore,
		blockStore,
		ghostdagStore,
		ghostdagManager,
		reachabilityManager,
		collaborators.TxValidator,
		collaborators.UtxoView,
		collaborators.Notifier,
		db,
	)

	pm := pruningmanager.New(
		params,
		headerStore,
		relationsStore,
		ghostdagStore,
		reachabilityStore,
		reachabilityManager,
		virtualStateStore,
		selectedChainStore,
		bodyTipsStore,
		pruningStore,
		ghostdagManager,
		collaborators.PoWResolver,
		db,
	)

	c := &Consensus{
		params:              params,
		db:                  db,
		headerStore:         headerStore,
		relationsStore:      relationsStore,
		statusStore:         statusStore,
		ghostdagStore:       ghostdagStore,
		reachabilityStore:   reachabilityStore,
		blockStore:          blockStore,
		bodyTipsStore:       bodyTipsStore,
		virtualStateStore:   virtualStateStore,
		selectedChainStore:  selectedChainStore,
		pruningStore:        pruningStore,
		reachabilityManager: reachabilityManager,
		ghostdagManager:     ghostdagManager,
		headerProcessor:     headerProcessor,
		bodyProcessor:       bodyProcessor,
		virtualProcessor:    virtualProcessor,
		pruningManager:      pm,
		notifier:            collaborators.Notifier,
	}

	if err := c.headerProcessor.ProcessGenesisIfNeeded(); err != nil {
		return nil, err
	}
	if err := c.seedGenesisVirtualStateIfNeeded(); err != nil {
		return nil, err
	}
	return c, nil
}

// seedGenesisVirtualStateIfNeeded makes genesis the sole body tip and
// virtual selected tip the first time a fresh database is opened, mirroring
// the teacher's genesis-bootstrap convention for the virtual block.
func (c *Consensus) seedGenesisVirtualStateIfNeeded() error {
	if _, err := c.virtualStateStore.Get(); err == nil {
		return nil
	}

	genesisGhostdagData := externalapi.NewGenesisGhostdagData()
	c.bodyTipsStore.StageInit([]*externalapi.DomainHash{&c.params.GenesisHash})
	c.virtualStateStore.Stage(&externalapi.VirtualState{
		Parents:       []*externalapi.DomainHash{&c.params.GenesisHash},
		GhostdagData:  genesisGhostdagData,
		SelectedTip:   &c.params.GenesisHash,
		DAAScore:      0,
		AcceptedTxIDs: externalapi.NewDomainHashSet(),
	})
	c.selectedChainStore.InitWithPruningPoint(&c.params.GenesisHash)
	c.pruningStore.StagePruningPoint(&c.params.GenesisHash)

	dbTx, err := c.db.Begin()
	if err != nil {
		return err
	}
	for _, commit := range []func(model.DBTransaction) error{
		c.bodyTipsStore.Commit,
		c.virtualStateStore.Commit,
		c.selectedChainStore.Commit,
		c.pruningStore.Commit,
	} {
		if err := commit(dbTx); err != nil {
			_ = dbTx.Rollback()
			return err
		}
	}
	return dbTx.Commit()
}

// SubmitHeader validates and stages a standalone header (the IBD path,
// spec.md §6).
func (c *Consensus) SubmitHeader(header *externalapi.DomainBlockHeader) (*externalapi.SubmitOutcome, error) {
	return c.headerProcessor.SubmitHeader(header)
}

// SubmitBlock validates header and body, then folds the block into the
// virtual if its header was newly accepted (spec.md §6, §2's three-stage
// pipeline run end to end for a fully-formed block).
func (c *Consensus) SubmitBlock(block *externalapi.DomainBlock) (*externalapi.SubmitOutcome, error) {
	outcome, err := c.headerProcessor.SubmitHeader(block.Header)
	if err != nil {
		return nil, err
	}
	if outcome.Kind != externalapi.SubmitOutcomeAccepted {
		return outcome, nil
	}

	if err := c.bodyProcessor.ValidateBody(block); err != nil {
		if ruleErr, ok := err.(*ruleerror.RuleError); ok {
			return externalapi.Rejected(ruleErr), nil
		}
		return nil, err
	}

	hash := block.Hash()
	if err := c.virtualProcessor.AddTip(hash, block); err != nil {
		if ruleErr, ok := err.(*ruleerror.RuleError); ok {
			return externalapi.Rejected(ruleErr), nil
		}
		return nil, err
	}

	c.notifier.Notify(&model.Notification{Kind: model.NotificationBlockAdded, BlockAdded: hash})
	return externalapi.Accepted(), nil
}

// ApplyPruningProof imports a pruning-point proof into an empty or stale
// store set (spec.md §4.6, §6).
func (c *Consensus) ApplyPruningProof(proof [][]*externalapi.DomainBlockHeader, trustedSet []*pruningmanager.TrustedBlock) error {
	return c.pruningManager.ApplyProof(proof, trustedSet)
}

// Wait blocks until every currently queued header has finished processing,
// used at shutdown to avoid dropping in-flight work.
func (c *Consensus) Wait() {
	c.headerProcessor.Wait()
}
