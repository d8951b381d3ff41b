// Package pruningmanager imports a pruning-point proof into an empty or
// stale store set (spec.md §4.6), grounded directly on the teacher's
// original Rust apply.rs: populate a single reachability oracle across
// every proof level's headers via a blue-work-ordered min-heap, then
// replay each level's headers to rebuild relations and (for level 0)
// GHOSTDAG data, finally seeding the virtual state at the new pruning
// point.
package pruningmanager

import (
	"container/heap"
	"sort"

	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/reachabilitystore"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/pruningerror"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
)

var log = logger.NewSubsystem("pruningmanager")

// TrustedBlock is a block whose GhostdagData is supplied directly by a
// trusted peer rather than recomputed, used to seed the blue-anticone
// bookkeeping walk past the proof's own horizon.
type TrustedBlock struct {
	Header       *externalapi.DomainBlockHeader
	GhostdagData *externalapi.GhostdagData
}

// Manager applies pruning-point proofs.
type Manager struct {
	params *config.Params

	headerStore         model.HeaderStore
	relationsStore      model.RelationsStore
	ghostdagStore       model.GhostdagDataStore
	reachabilityStore   *reachabilitystore.Store
	reachabilityManager model.ReachabilityManager
	virtualStateStore   model.VirtualStateStore
	selectedChainStore  model.SelectedChainStore
	bodyTipsStore       model.BodyTipsStore
	pruningStore        model.PruningStore
	ghostdagManager     model.GHOSTDAGManager
	powResolver         model.PoWResolver
	dbManager           model.DBManager
}

// New returns a pruning-proof applier.
func New(
	params *config.Params,
	headerStore model.HeaderStore,
	relationsStore model.RelationsStore,
	ghostdagStore model.GhostdagDataStore,
	reachabilityStore *reachabilitystore.Store,
	reachabilityManager model.ReachabilityManager,
	virtualStateStore model.VirtualStateStore,
	selectedChainStore model.SelectedChainStore,
	bodyTipsStore model.BodyTipsStore,
	pruningStore model.PruningStore,
	ghostdagManager model.GHOSTDAGManager,
	powResolver model.PoWResolver,
	dbManager model.DBManager,
) *Manager {
	return &Manager{
		params:              params,
		headerStore:         headerStore,
		relationsStore:      relationsStore,
		ghostdagStore:       ghostdagStore,
		reachabilityStore:   reachabilityStore,
		reachabilityManager: reachabilityManager,
		virtualStateStore:   virtualStateStore,
		selectedChainStore:  selectedChainStore,
		bodyTipsStore:       bodyTipsStore,
		pruningStore:        pruningStore,
		ghostdagManager:     ghostdagManager,
		powResolver:         powResolver,
		dbManager:           dbManager,
	}
}

// sortableHeader pairs a header with its blue work for min-heap ordering,
// mirroring ghostdagmanager's sortableBlock but over headers rather than
// stored GhostdagData (the proof carries blue work directly on the header).
type sortableHeader struct {
	hash     *externalapi.DomainHash
	header   *externalapi.DomainBlockHeader
	blueWork *externalapi.BlueWork
}

// minHeapByBlueWork is a container/heap.Interface min-heap, replacing the
// teacher's std::collections::BinaryHeap<Reverse<SortableBlock>>.
type minHeapByBlueWork []sortableHeader

func (h minHeapByBlueWork) Len() int { return len(h) }
func (h minHeapByBlueWork) Less(i, j int) bool {
	return h[i].blueWork.Cmp(h[j].blueWork) < 0
}
func (h minHeapByBlueWork) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeapByBlueWork) Push(x interface{}) {
	*h = append(*h, x.(sortableHeader))
}
func (h *minHeapByBlueWork) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ApplyProof imports proof (one header slice per PoW level, each already
// sorted by ascending blue work) plus any trusted blocks supplied
// out-of-band, replacing the current store state entirely.
func (m *Manager) ApplyProof(proof [][]*externalapi.DomainBlockHeader, trustedSet []*TrustedBlock) error {
	if len(proof) == 0 || len(proof[0]) == 0 {
		return pruningerror.ErrProofHeaderOutOfOrder(&externalapi.ORIGIN)
	}
	pruningPointHeader := proof[0][len(proof[0])-1]
	pruningPoint := pruningPointHeader.Hash()

	proofSets := make([]externalapi.DomainHashSet, len(proof))
	for level, headers := range proof {
		set := externalapi.NewDomainHashSet()
		for _, header := range headers {
			set.Add(header.Hash())
		}
		proofSets[level] = set
	}

	trustedGhostdag := map[externalapi.DomainHash]*externalapi.GhostdagData{}
	for _, tb := range trustedSet {
		hash := tb.Header.Hash()
		trustedGhostdag[*hash] = tb.GhostdagData
		level := m.powResolver.BlockLevel(tb.Header)
		for current := externalapi.BlockLevel(0); current <= level; current++ {
			if int(current) < len(proofSets) && proofSets[current].Contains(hash) {
				continue
			}
			for int(current) >= len(proof) {
				proof = append(proof, nil)
				proofSets = append(proofSets, externalapi.NewDomainHashSet())
			}
			proof[current] = append(proof[current], tb.Header)
		}
	}

	for level, headers := range proof {
		sort.Slice(headers, func(i, j int) bool {
			return headers[i].BlueWork.Cmp(headers[j].BlueWork) < 0
		})
		proof[level] = headers
	}

	if err := m.populateReachabilityAndHeaders(proof); err != nil {
		return err
	}

	for _, tb := range trustedSet {
		if len(tb.Header.DirectParents()) != 0 {
			continue
		}
		hash := tb.Header.Hash()
		isAncestor, err := m.reachabilityManager.IsDAGAncestorOf(hash, pruningPoint)
		if err != nil {
			return err
		}
		if !isAncestor {
			return pruningerror.ErrPruningPointPastMissingReachability(hash)
		}
	}

	for level, headers := range proof {
		log.Debugf("applying level %d from the pruning point proof (%d headers)", level, len(headers))
		levelAncestors := externalapi.NewDomainHashSet(&externalapi.ORIGIN)

		for _, header := range headers {
			hash := header.Hash()
			var parents []*externalapi.DomainHash
			for _, parent := range levelParents(header, externalapi.BlockLevel(level)) {
				if levelAncestors.Contains(parent) {
					parents = append(parents, parent)
				}
			}
			if len(parents) == 0 {
				parents = []*externalapi.DomainHash{&externalapi.ORIGIN}
			}

			m.relationsStore.StageParents(hash, parents)
			for _, parent := range parents {
				m.relationsStore.AppendChild(parent, hash)
			}

			if level == 0 {
				var gd *externalapi.GhostdagData
				if trusted, ok := trustedGhostdag[*hash]; ok {
					gd = trusted
				} else {
					calculated, err := m.ghostdagManager.GHOSTDAG(parents)
					if err != nil {
						return err
					}
					gd = &externalapi.GhostdagData{
						BlueScore:          header.BlueScore,
						BlueWork:           header.BlueWork,
						SelectedParent:     calculated.SelectedParent,
						MergeSetBlues:      calculated.MergeSetBlues,
						MergeSetReds:       calculated.MergeSetReds,
						BluesAnticoneSizes: calculated.BluesAnticoneSizes,
					}
				}
				m.ghostdagStore.StageData(hash, gd)
			}

			levelAncestors.Add(hash)
		}
	}

	virtualParents := []*externalapi.DomainHash{pruningPoint}
	virtualGhostdag, err := m.ghostdagManager.GHOSTDAG(virtualParents)
	if err != nil {
		return err
	}
	m.virtualStateStore.Stage(&externalapi.VirtualState{
		Parents:      virtualParents,
		SelectedTip:  pruningPoint,
		GhostdagData: virtualGhostdag,
	})
	m.bodyTipsStore.StageInit(virtualParents)
	m.selectedChainStore.InitWithPruningPoint(pruningPoint)
	m.pruningStore.StagePruningPoint(pruningPoint)

	dbTx, err := m.dbManager.Begin()
	if err != nil {
		return err
	}
	for _, commit := range []func(model.DBTransaction) error{
		m.headerStore.Commit,
		m.relationsStore.Commit,
		m.ghostdagStore.Commit,
		m.reachabilityStore.Commit,
		m.virtualStateStore.Commit,
		m.bodyTipsStore.Commit,
		m.selectedChainStore.Commit,
		m.pruningStore.Commit,
	} {
		if err := commit(dbTx); err != nil {
			_ = dbTx.Rollback()
			return err
		}
	}
	return dbTx.Commit()
}

func levelParents(header *externalapi.DomainBlockHeader, level externalapi.BlockLevel) []*externalapi.DomainHash {
	if int(level) >= len(header.ParentsByLevel) {
		return nil
	}
	return header.ParentsByLevel[level]
}

// populateReachabilityAndHeaders builds one unified reachability oracle
// across every proof level's headers (a block's parents at every level it
// appears in are unioned into the same DAG, so a single reachability index
// serves every level-specific sub-DAG), processing headers in ascending
// blue-work order so each header's reachability parents have already been
// indexed.
func (m *Manager) populateReachabilityAndHeaders(proof [][]*externalapi.DomainBlockHeader) error {
	type dagEntry struct {
		header  *externalapi.DomainBlockHeader
		parents externalapi.DomainHashSet
	}
	dag := map[externalapi.DomainHash]*dagEntry{}
	upHeap := &minHeapByBlueWork{}
	heap.Init(upHeap)

	for _, headers := range proof {
		for _, header := range headers {
			hash := header.Hash()
			if _, exists := dag[*hash]; exists {
				continue
			}
			blockLevel := m.powResolver.BlockLevel(header)
			m.headerStore.Stage(hash, header, blockLevel)

			parents := externalapi.NewDomainHashSet()
			for lvl := 0; lvl <= int(m.params.MaxBlockLevel); lvl++ {
				for _, parent := range levelParents(header, externalapi.BlockLevel(lvl)) {
					parents.Add(parent)
				}
			}
			dag[*hash] = &dagEntry{header: header, parents: parents}
			heap.Push(upHeap, sortableHeader{hash: hash, header: header, blueWork: header.BlueWork})
		}
	}

	for upHeap.Len() > 0 {
		item := heap.Pop(upHeap).(sortableHeader)
		hash := item.hash
		entry := dag[*hash]

		var inDAG []sortableHeader
		for _, parent := range entry.parents.ToSlice() {
			if parentEntry, ok := dag[*parent]; ok {
				inDAG = append(inDAG, sortableHeader{hash: parent, blueWork: parentEntry.header.BlueWork})
			}
		}
		sort.Slice(inDAG, func(i, j int) bool { return inDAG[i].blueWork.Cmp(inDAG[j].blueWork) < 0 })

		var reachabilityParents []*externalapi.DomainHash
		for _, candidate := range inDAG {
			isAncestorOfExisting, err := m.reachabilityManager.IsDAGAncestorOfAny(candidate.hash, reachabilityParents)
			if err != nil {
				return err
			}
			if isAncestorOfExisting {
				continue
			}
			reachabilityParents = append(reachabilityParents, candidate.hash)
		}
		if len(reachabilityParents) == 0 {
			reachabilityParents = []*externalapi.DomainHash{&externalapi.ORIGIN}
		}

		selectedParent := &externalapi.ORIGIN
		var best *externalapi.BlueWork
		for _, parent := range reachabilityParents {
			if parentEntry, ok := dag[*parent]; ok {
				if best == nil || parentEntry.header.BlueWork.Cmp(best) > 0 {
					selectedParent = parent
					best = parentEntry.header.BlueWork
				}
			}
		}

		var mergeSet []*externalapi.DomainHash
		for _, parent := range reachabilityParents {
			if !parent.Equal(selectedParent) {
				mergeSet = append(mergeSet, parent)
			}
		}
		if err := m.reachabilityManager.AddBlock(hash, selectedParent, mergeSet); err != nil {
			return err
		}
	}
	return nil
}
