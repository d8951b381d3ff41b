// Package reachabilitymanager implements the online reachability tree
// described in spec.md §4.1: a spanning tree over the DAG (tree parent =
// GHOSTDAG selected parent) with half-open interval codes per node, plus
// per-node future-covering-set antichains for DAG-descendants that are not
// tree-descendants.
package reachabilitymanager

import (
	"sort"

	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
	"github.com/pkg/errors"
)

var log = logger.NewSubsystem("reachabilitymanager")

// reachabilityStore is the minimal read-write surface the manager needs;
// satisfied by both the committed store and a live StagingReachabilityStore.
type reachabilityStore interface {
	Get(hash *externalapi.DomainHash) (*externalapi.ReachabilityData, error)
	Has(hash *externalapi.DomainHash) (bool, error)
	StageData(hash *externalapi.DomainHash, data *externalapi.ReachabilityData)
}

// Manager drives reachability tree construction and ancestry queries
// against a given staging (or committed) store.
type Manager struct {
	store       reachabilityStore
	genesisHash externalapi.DomainHash
}

// New returns a Manager operating against store.
func New(store reachabilityStore, genesisHash externalapi.DomainHash) *Manager {
	return &Manager{store: store, genesisHash: genesisHash}
}

// Init seeds the ORIGIN sentinel's reachability data, the root of the tree.
func (m *Manager) Init() error {
	if has, err := m.store.Has(&externalapi.ORIGIN); err != nil {
		return err
	} else if has {
		return nil
	}
	m.store.StageData(&externalapi.ORIGIN, externalapi.NewReachabilityData(rootInterval, nil))
	return nil
}

// AddBlock inserts hash into the reachability tree with tree parent
// selectedParent, and records hash in the future-covering-set of every
// block in mergeSetWithoutSelectedParent (spec.md §4.1 step 3).
func (m *Manager) AddBlock(hash, selectedParent *externalapi.DomainHash, mergeSetWithoutSelectedParent []*externalapi.DomainHash) error {
	parentData, err := m.store.Get(selectedParent)
	if err != nil {
		return errors.Wrapf(err, "reachability data corruption: selected parent %s not found", selectedParent)
	}

	childInterval, err := m.allocateIntervalForNewChild(selectedParent, parentData)
	if err != nil {
		return err
	}

	newData := externalapi.NewReachabilityData(childInterval, selectedParent)
	m.store.StageData(hash, newData)

	parentData.Children = append(parentData.Children, hash)
	m.store.StageData(selectedParent, parentData)

	for _, mergeBlock := range mergeSetWithoutSelectedParent {
		if err := m.insertIntoFutureCoveringSet(mergeBlock, hash); err != nil {
			return err
		}
	}
	return nil
}

// allocateIntervalForNewChild finds free capacity inside parent for one
// more tree child, reindexing iteratively (an explicit worklist, never
// recursion, per spec.md §9) if parent's interval is exhausted.
func (m *Manager) allocateIntervalForNewChild(parentHash *externalapi.DomainHash, parentData *externalapi.ReachabilityData) (*externalapi.ReachabilityInterval, error) {
	usedEnd, err := m.usedEnd(parentData)
	if err != nil {
		return nil, err
	}

	if interval, ok := splitForNewChild(parentData.Interval, usedEnd); ok {
		return interval, nil
	}

	if err := m.reindexSubtree(parentHash, parentData); err != nil {
		return nil, err
	}

	usedEnd, err = m.usedEnd(parentData)
	if err != nil {
		return nil, err
	}
	interval, ok := splitForNewChild(parentData.Interval, usedEnd)
	if !ok {
		return nil, errors.Errorf("reachability corruption: %s has no capacity for a new child even after reindex", parentHash)
	}
	return interval, nil
}

// usedEnd returns the first free preorder code inside parent's interval.
func (m *Manager) usedEnd(parentData *externalapi.ReachabilityData) (uint64, error) {
	end := parentData.Interval.Start + 1
	for _, childHash := range parentData.Children {
		childData, err := m.store.Get(childHash)
		if err != nil {
			return 0, errors.Wrapf(err, "reachability data corruption: child %s not found", childHash)
		}
		if childData.Interval.End > end {
			end = childData.Interval.End
		}
	}
	return end, nil
}

// reindexSubtree redistributes interval allocation starting from the first
// ancestor of startHash (possibly startHash itself) with room to repartition
// its own interval, then walks back down reassigning every descendant's
// interval so it proportionally fits inside its (possibly moved) tree
// parent's new interval, all the way to the leaves. This is an iterative
// worklist, not recursion, to bound call-stack depth on pathological DAGs
// (spec.md §9), and it must cover the whole subtree: moving a child to a new
// interval while leaving its own descendants on their old intervals would
// break the ancestor/descendant interval-containment invariant those
// descendants' intervals are no longer guaranteed to fit inside.
func (m *Manager) reindexSubtree(startHash *externalapi.DomainHash, startData *externalapi.ReachabilityData) error {
	reindexRootHash, reindexRootData, err := m.findReindexRoot(startHash, startData)
	if err != nil {
		return err
	}

	type work struct {
		hash     *externalapi.DomainHash
		data     *externalapi.ReachabilityData
		interval *externalapi.ReachabilityInterval
	}
	worklist := []work{{reindexRootHash, reindexRootData, reindexRootData.Interval}}

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		item.data.Interval = item.interval
		m.store.StageData(item.hash, item.data)

		slots := evenSplit(item.interval, len(item.data.Children)+1)
		for i, childHash := range item.data.Children {
			childData, err := m.store.Get(childHash)
			if err != nil {
				return errors.Wrapf(err, "reachability data corruption: child %s not found during reindex", childHash)
			}
			worklist = append(worklist, work{childHash, childData, slots[i]})
		}
	}
	return nil
}

// findReindexRoot climbs from startHash toward the reachability tree root
// until it finds an ancestor whose own interval still has enough raw
// capacity to evenly repartition across its children plus one reserved
// future-child slot. Reindexing begins there so the whole affected subtree
// (startHash's ancestors-within-the-reindex down through every one of its
// descendants) is redistributed in a single consistent pass, rather than
// leaving descendants stranded on intervals that no longer fit.
func (m *Manager) findReindexRoot(startHash *externalapi.DomainHash, startData *externalapi.ReachabilityData) (*externalapi.DomainHash, *externalapi.ReachabilityData, error) {
	hash, data := startHash, startData
	for {
		if data.Interval.Size() >= uint64(len(data.Children)+1)*2 {
			return hash, data, nil
		}
		if data.ParentInReachabilityTree == nil {
			// Already at the tree root (ORIGIN): nowhere left to climb, so
			// reindex with whatever capacity remains.
			return hash, data, nil
		}
		parentHash := data.ParentInReachabilityTree
		parentData, err := m.store.Get(parentHash)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "reachability data corruption: tree parent %s not found during reindex", parentHash)
		}
		hash, data = parentHash, parentData
	}
}

// insertIntoFutureCoveringSet inserts descendantHash into block's
// future-covering-set, maintained as an antichain sorted by interval start
// (spec.md §4.1 step 3).
func (m *Manager) insertIntoFutureCoveringSet(blockHash, descendantHash *externalapi.DomainHash) error {
	blockData, err := m.store.Get(blockHash)
	if err != nil {
		return errors.Wrapf(err, "reachability data corruption: %s not found", blockHash)
	}
	descendantData, err := m.store.Get(descendantHash)
	if err != nil {
		return errors.Wrapf(err, "reachability data corruption: %s not found", descendantHash)
	}

	set := blockData.FutureCoveringSet
	idx := sort.Search(len(set), func(i int) bool {
		existing, err := m.store.Get(set[i])
		if err != nil {
			return false
		}
		return existing.Interval.Start >= descendantData.Interval.Start
	})
	set = append(set, nil)
	copy(set[idx+1:], set[idx:])
	set[idx] = descendantHash
	blockData.FutureCoveringSet = set
	m.store.StageData(blockHash, blockData)
	return nil
}

// IsAncestorInTree returns whether a's interval contains b's interval, i.e.
// a is b's ancestor along the reachability tree (not merely the DAG).
func (m *Manager) IsAncestorInTree(a, b *externalapi.DomainHash) (bool, error) {
	aData, err := m.store.Get(a)
	if err != nil {
		return false, err
	}
	bData, err := m.store.Get(b)
	if err != nil {
		return false, err
	}
	return aData.Interval.Contains(bData.Interval), nil
}

// IsDAGAncestorOf returns whether a is a DAG-ancestor of b: either a tree
// ancestor, or some block in a's future-covering-set is a tree ancestor of
// b (spec.md §4.1).
func (m *Manager) IsDAGAncestorOf(a, b *externalapi.DomainHash) (bool, error) {
	if externalapi.IsOrigin(a) {
		return true, nil
	}
	isTreeAncestor, err := m.IsAncestorInTree(a, b)
	if err != nil {
		return false, err
	}
	if isTreeAncestor {
		return true, nil
	}

	aData, err := m.store.Get(a)
	if err != nil {
		return false, err
	}
	bData, err := m.store.Get(b)
	if err != nil {
		return false, err
	}

	set := aData.FutureCoveringSet
	idx := sort.Search(len(set), func(i int) bool {
		wData, err := m.store.Get(set[i])
		if err != nil {
			return false
		}
		return wData.Interval.Start > bData.Interval.Start
	})
	if idx == 0 {
		return false, nil
	}
	candidate := set[idx-1]
	candidateData, err := m.store.Get(candidate)
	if err != nil {
		return false, err
	}
	return candidateData.Interval.Contains(bData.Interval), nil
}

// IsDAGAncestorOfAny returns whether a is a DAG-ancestor of any hash in others.
func (m *Manager) IsDAGAncestorOfAny(a *externalapi.DomainHash, others []*externalapi.DomainHash) (bool, error) {
	for _, b := range others {
		isAncestor, err := m.IsDAGAncestorOf(a, b)
		if err != nil {
			return false, err
		}
		if isAncestor {
			return true, nil
		}
	}
	return false, nil
}

// FindCommonAncestor walks a's tree-ancestor chain upward until it reaches a
// tree ancestor of b, i.e. their lowest common tree ancestor, used by the
// virtual processor to find the split point between two selected-parent
// chains (spec.md §4.5).
func (m *Manager) FindCommonAncestor(a, b *externalapi.DomainHash) (*externalapi.DomainHash, error) {
	isAAncestor, err := m.IsAncestorInTree(a, b)
	if err != nil {
		return nil, err
	}
	if isAAncestor {
		return a, nil
	}
	isBAncestor, err := m.IsAncestorInTree(b, a)
	if err != nil {
		return nil, err
	}
	if isBAncestor {
		return b, nil
	}

	current := a
	for {
		data, err := m.store.Get(current)
		if err != nil {
			return nil, err
		}
		if data.ParentInReachabilityTree == nil {
			return current, nil
		}
		current = data.ParentInReachabilityTree
		isAncestor, err := m.IsAncestorInTree(current, b)
		if err != nil {
			return nil, err
		}
		if isAncestor {
			return current, nil
		}
	}
}

var _ model.ReachabilityManager = (*Manager)(nil)
