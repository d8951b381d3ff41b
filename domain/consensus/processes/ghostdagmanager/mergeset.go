package ghostdagmanager

import "github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"

// orderedMergesetWithoutSelectedParent computes mergeset(x) \ {selectedParent}
// for a candidate block x with direct parents parents, in consensus-agreed
// topological order (spec.md §4.2 step 2): an upward BFS from
// parents \ {selectedParent}, bounded by reachability into selectedParent's
// past, sorted by increasing blue work with hash as a tiebreak.
func (gm *Manager) orderedMergesetWithoutSelectedParent(selectedParent *externalapi.DomainHash, parents []*externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	visited := map[externalapi.DomainHash]bool{*selectedParent: true}
	var queue []*externalapi.DomainHash
	var collected []sortableBlock

	for _, parent := range parents {
		if parent.Equal(selectedParent) {
			continue
		}
		if visited[*parent] {
			continue
		}
		visited[*parent] = true
		queue = append(queue, parent)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		isAncestorOfSelectedParent, err := gm.reachabilityService.IsDAGAncestorOf(current, selectedParent)
		if err != nil {
			return nil, err
		}
		if isAncestorOfSelectedParent {
			continue
		}

		currentData, err := gm.ghostdagStore.Get(current, false)
		if err != nil {
			return nil, err
		}
		collected = append(collected, sortableBlock{hash: current, blueWork: currentData.BlueWork})

		currentParents, err := gm.relationsStore.Parents(current)
		if err != nil {
			return nil, err
		}
		for _, parent := range currentParents {
			if visited[*parent] {
				continue
			}
			visited[*parent] = true
			queue = append(queue, parent)
		}
	}

	sortBlocks(collected)
	ordered := make([]*externalapi.DomainHash, len(collected))
	for i, b := range collected {
		ordered[i] = b.hash
	}
	return ordered, nil
}
