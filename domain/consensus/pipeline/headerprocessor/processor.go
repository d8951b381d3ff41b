// Package headerprocessor implements the first pipeline stage (spec.md §2):
// parallel header validation and GHOSTDAG/reachability staging, grounded on
// the teacher's original Rust header_processor.rs pending/processing
// bookkeeping (pending map + processing set behind one mutex, ready/idle
// condition variables, a bounded worker pool) reimplemented with Go
// goroutines and sync.Cond in place of rayon::spawn and parking_lot.
package headerprocessor

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/reachabilitystore"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/difficultymanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/reachabilitymanager"
	"github.com/kasparov-dag/corenode/domain/consensus/ruleerror"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
	"github.com/pkg/errors"
)

var log = logger.NewSubsystem("headerprocessor")

// pendingState is the coarse global bookkeeping the worker pool shares,
// mirroring the teacher's PendingBlocksManager.
type pendingState struct {
	pending    map[externalapi.DomainHash][]*externalapi.DomainBlockHeader
	processing map[externalapi.DomainHash]bool
}

// Processor runs header validation, GHOSTDAG computation, and reachability
// tree maintenance for incoming headers.
type Processor struct {
	genesisHash externalapi.DomainHash
	params      *config.Params

	dbManager             model.DBManager
	headerStore           model.HeaderStore
	relationsStore        model.RelationsStore
	statusStore           model.StatusStore
	ghostdagStore         model.GhostdagDataStore
	reachabilityStore     *reachabilitystore.Store
	ghostdagManager       model.GHOSTDAGManager
	reachabilityManager   model.ReachabilityManager
	difficultyManager     *difficultymanager.Manager
	powResolver           model.PoWResolver
	pastMedianTimeManager model.PastMedianTimeManager

	mu             sync.Mutex
	state          pendingState
	readyCond      *sync.Cond
	idleCond       *sync.Cond
	readyThreshold int

	sem chan struct{}
	wg  sync.WaitGroup
}

// New returns a header processor with a worker pool sized to the host's
// CPU count, matching the teacher's rayon::current_num_threads() sizing.
func New(
	genesisHash externalapi.DomainHash,
	params *config.Params,
	dbManager model.DBManager,
	headerStore model.HeaderStore,
	relationsStore model.RelationsStore,
	statusStore model.StatusStore,
	ghostdagStore model.GhostdagDataStore,
	reachabilityStore *reachabilitystore.Store,
	ghostdagManager model.GHOSTDAGManager,
	reachabilityManager model.ReachabilityManager,
	difficultyManager *difficultymanager.Manager,
	powResolver model.PoWResolver,
	pastMedianTimeManager model.PastMedianTimeManager,
) *Processor {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	p := &Processor{
		genesisHash: genesisHash,
		params:      params,

		dbManager:             dbManager,
		headerStore:           headerStore,
		relationsStore:        relationsStore,
		statusStore:           statusStore,
		ghostdagStore:         ghostdagStore,
		reachabilityStore:     reachabilityStore,
		ghostdagManager:       ghostdagManager,
		reachabilityManager:   reachabilityManager,
		difficultyManager:     difficultyManager,
		powResolver:           powResolver,
		pastMedianTimeManager: pastMedianTimeManager,

		state: pendingState{
			pending:    map[externalapi.DomainHash][]*externalapi.DomainBlockHeader{},
			processing: map[externalapi.DomainHash]bool{},
		},
		readyThreshold: workers * 4,
		sem:            make(chan struct{}, workers),
	}
	p.readyCond = sync.NewCond(&p.mu)
	p.idleCond = sync.NewCond(&p.mu)
	return p
}

// ProcessGenesisIfNeeded seeds the genesis block's GhostdagData and
// reachability root, idempotently.
func (p *Processor) ProcessGenesisIfNeeded() error {
	if p.headerWasProcessed(&p.genesisHash) {
		return nil
	}
	if err := p.reachabilityManager.(*reachabilitymanager.Manager).Init(); err != nil {
		return err
	}

	header := &externalapi.DomainBlockHeader{BlueWork: externalapi.ZeroBlueWork()}
	header.Finalize(&p.genesisHash)
	if err := p.processAndCommit(header, nil); err != nil {
		return err
	}
	log.Infof("seeded genesis header %s", p.genesisHash.String())
	return nil
}

func (p *Processor) headerWasProcessed(hash *externalapi.DomainHash) bool {
	has, _ := p.reachabilityStore.Has(hash)
	return has
}

// SubmitHeader processes header on a pooled goroutine and waits for that
// result. A header that is already processed returns AlreadyKnown, and one
// whose direct parents are not all processed returns Pending with the
// missing parents; neither is queued. SubmitHeader does not wait for any
// dependents the header unblocks.
func (p *Processor) SubmitHeader(header *externalapi.DomainBlockHeader) (*externalapi.SubmitOutcome, error) {
	hash := header.Hash()

	if p.headerWasProcessed(hash) {
		return externalapi.AlreadyKnown(), nil
	}

	missing := p.missingParents(header.DirectParents())
	if len(missing) > 0 {
		return externalapi.Pending(missing), nil
	}

	done := make(chan error, 1)
	p.queueHeader(header, done)
	if err := <-done; err != nil {
		if ruleErr, ok := err.(*ruleerror.RuleError); ok {
			return externalapi.Rejected(ruleErr), nil
		}
		return nil, err
	}
	return externalapi.Accepted(), nil
}

func (p *Processor) missingParents(parents []*externalapi.DomainHash) []*externalapi.DomainHash {
	var missing []*externalapi.DomainHash
	for _, parent := range parents {
		if !p.headerWasProcessed(parent) {
			missing = append(missing, parent)
		}
	}
	return missing
}

// queueHeader mirrors the teacher's queue_block: it registers header under
// the pending map keyed by its own hash (so dependents can find it), blocks
// on the ready condition if the pool is saturated, then spawns the worker.
func (p *Processor) queueHeader(header *externalapi.DomainBlockHeader, done chan<- error) {
	hash := header.Hash()

	p.mu.Lock()
	if _, exists := p.state.pending[*hash]; exists {
		p.mu.Unlock()
		done <- nil
		return
	}
	p.state.pending[*hash] = nil
	for len(p.state.pending) > p.readyThreshold {
		p.readyCond.Wait()
	}
	p.mu.Unlock()

	p.wg.Add(1)
	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem; p.wg.Done() }()
		p.runHeader(header, done)
	}()
}

func (p *Processor) runHeader(header *externalapi.DomainBlockHeader, done chan<- error) {
	hash := header.Hash()
	err := func() (procErr error) {
		defer func() {
			if r := recover(); r != nil {
				procErr = ruleerror.Wrap(ruleerror.KindInternal, errorFromRecover(r))
			}
		}()
		return p.processAndCommit(header, header.DirectParents())
	}()
	if err != nil {
		log.Warnf("header %s rejected: %s", hash, err)
	}

	p.mu.Lock()
	deps := p.state.pending[*hash]
	delete(p.state.pending, *hash)
	delete(p.state.processing, *hash)
	if len(p.state.pending) <= p.readyThreshold {
		p.readyCond.Broadcast()
	}
	if len(p.state.pending) == 0 {
		p.idleCond.Broadcast()
	}
	p.mu.Unlock()

	done <- err

	for _, dep := range deps {
		depDone := make(chan error, 1)
		p.queueHeader(dep, depDone)
		go func() { <-depDone }()
	}
}

// processAndCommit runs the delegated validation hooks (spec.md §4.3),
// GHOSTDAG, stages reachability, and flushes one batched transaction across
// every affected store (spec.md §2's "each stage writes a batched
// transaction").
func (p *Processor) processAndCommit(header *externalapi.DomainBlockHeader, parents []*externalapi.DomainHash) error {
	hash := header.Hash()
	isGenesis := hash.Equal(&p.genesisHash)

	if err := p.validateParentStructure(isGenesis, header); err != nil {
		return err
	}
	if err := p.validateProofOfWorkLevel(header); err != nil {
		return err
	}

	ghostdagData, err := p.ghostdagManager.GHOSTDAG(parents)
	if err != nil {
		return err
	}

	if !isGenesis {
		if err := p.validateTimestamp(header, ghostdagData); err != nil {
			return err
		}
		if err := p.validateDifficulty(header, ghostdagData); err != nil {
			return err
		}
	}

	p.ghostdagStore.StageData(hash, ghostdagData)
	p.headerStore.Stage(hash, header, 0)
	p.relationsStore.StageParents(hash, parents)
	for _, parent := range parents {
		p.relationsStore.AppendChild(parent, hash)
	}
	if err := p.statusStore.Stage(hash, externalapi.StatusHeaderOnly); err != nil {
		return err
	}

	var mergeSetWithoutSelectedParent []*externalapi.DomainHash
	if mergeSet := ghostdagData.MergeSet(); len(mergeSet) > 1 {
		mergeSetWithoutSelectedParent = mergeSet[1:]
	}
	if err := p.reachabilityManager.AddBlock(hash, ghostdagData.SelectedParent, mergeSetWithoutSelectedParent); err != nil {
		return err
	}

	log.Debugf("staged header %s (blue score %d, selected parent %s)", hash, ghostdagData.BlueScore, ghostdagData.SelectedParent)

	dbTx, err := p.dbManager.Begin()
	if err != nil {
		return err
	}
	if err := p.ghostdagStore.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := p.headerStore.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := p.relationsStore.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := p.statusStore.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := p.reachabilityStore.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

// validateParentStructure checks parent-count and parent-level-coherence
// (spec.md §4.3 "Validation hooks"): a non-genesis header must declare at
// least one direct (level 0) parent (spec.md §8 boundary behavior) and no
// higher PoW level may claim more parents than level 0 itself does.
func (p *Processor) validateParentStructure(isGenesis bool, header *externalapi.DomainBlockHeader) error {
	if isGenesis {
		return nil
	}
	if len(header.ParentsByLevel) == 0 || len(header.ParentsByLevel[0]) == 0 {
		return ruleerror.New(ruleerror.KindInvalidParents, "non-genesis header has an empty direct parent set")
	}
	for level := 1; level < len(header.ParentsByLevel); level++ {
		if len(header.ParentsByLevel[level]) > len(header.ParentsByLevel[0]) {
			return ruleerror.New(ruleerror.KindInvalidParents, "higher PoW level parent set is larger than the direct parent set")
		}
	}
	return nil
}

// validateProofOfWorkLevel delegates to the PoW collaborator's block_level
// function and rejects anything beyond this network's configured ceiling
// (spec.md §4.3 "Proof-of-work level check").
func (p *Processor) validateProofOfWorkLevel(header *externalapi.DomainBlockHeader) error {
	level := p.powResolver.BlockLevel(header)
	if level > p.params.MaxBlockLevel {
		return ruleerror.New(ruleerror.KindInvalidProofOfWorkLevel, fmt.Sprintf(
			"block level %d exceeds max block level %d", level, p.params.MaxBlockLevel))
	}
	return nil
}

// validateTimestamp rejects a header whose timestamp does not strictly
// exceed the past median time of its selected-parent window (spec.md §4.3
// "Timestamp sanity relative to past median time").
func (p *Processor) validateTimestamp(header *externalapi.DomainBlockHeader, ghostdagData *externalapi.GhostdagData) error {
	pastMedianTime, err := p.pastMedianTimeManager.PastMedianTime(ghostdagData)
	if err != nil {
		return err
	}
	if header.TimeInMilliseconds <= pastMedianTime {
		return ruleerror.New(ruleerror.KindTimestampTooEarly, fmt.Sprintf(
			"header timestamp %d is not greater than past median time %d", header.TimeInMilliseconds, pastMedianTime))
	}
	return nil
}

// validateDifficulty rejects a header whose bits do not match the expected
// retarget over the DAA window along its selected-parent chain (spec.md
// §4.3 "Difficulty (bits) against expected retarget").
func (p *Processor) validateDifficulty(header *externalapi.DomainBlockHeader, ghostdagData *externalapi.GhostdagData) error {
	timestamps, bitsWindow, err := p.difficultyWindow(ghostdagData)
	if err != nil {
		return err
	}
	if len(bitsWindow) == 0 {
		// Not enough selected-parent-chain history yet to retarget against.
		return nil
	}
	expected := p.difficultyManager.RequiredDifficulty(timestamps, bitsWindow)
	if header.Bits != expected {
		return ruleerror.New(ruleerror.KindInvalidDifficulty, fmt.Sprintf(
			"header bits %08x does not match expected retarget bits %08x", header.Bits, expected))
	}
	return nil
}

// difficultyWindow walks ghostdagData's selected-parent chain, oldest first,
// collecting up to DifficultyAdjustmentWindowSize timestamps and bits for
// the retarget computation.
func (p *Processor) difficultyWindow(ghostdagData *externalapi.GhostdagData) ([]int64, []uint32, error) {
	windowSize := p.params.DifficultyAdjustmentWindowSize
	timestamps := make([]int64, 0, windowSize)
	bitsWindow := make([]uint32, 0, windowSize)

	current := ghostdagData.SelectedParent
	for i := 0; i < windowSize && !externalapi.IsOrigin(current); i++ {
		header, err := p.headerStore.Header(current)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "difficulty window: header missing for %s", current)
		}
		timestamps = append(timestamps, header.TimeInMilliseconds)
		bitsWindow = append(bitsWindow, header.Bits)

		data, err := p.ghostdagStore.Get(current, false)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "difficulty window: ghostdag data missing for %s", current)
		}
		current = data.SelectedParent
	}

	for i, j := 0, len(timestamps)-1; i < j; i, j = i+1, j-1 {
		timestamps[i], timestamps[j] = timestamps[j], timestamps[i]
		bitsWindow[i], bitsWindow[j] = bitsWindow[j], bitsWindow[i]
	}
	return timestamps, bitsWindow, nil
}

// Wait blocks until every currently queued header (and its dependents) has
// finished processing, mirroring the teacher's exit-time idle wait.
func (p *Processor) Wait() {
	p.mu.Lock()
	for len(p.state.pending) > 0 {
		p.idleCond.Wait()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func errorFromRecover(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return ruleerror.New(ruleerror.KindInternal, "panic in header worker")
}
