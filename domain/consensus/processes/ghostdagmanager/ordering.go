package ghostdagmanager

import "github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"

// sortableBlock pairs a hash with the blue work used to order it in
// consensus-agreed topological order: increasing blue work, ties broken by
// hash (spec.md §4.2 step 2).
type sortableBlock struct {
	hash     *externalapi.DomainHash
	blueWork *externalapi.BlueWork
}

// less reports whether a sorts before b.
func less(a, b sortableBlock) bool {
	if cmp := a.blueWork.Cmp(b.blueWork); cmp != 0 {
		return cmp < 0
	}
	return a.hash.Less(b.hash)
}

// max returns the sortableBlock with the greatest blue work, ties broken by
// hash, used to pick the selected parent among a block's direct parents.
func max(blocks []sortableBlock) sortableBlock {
	best := blocks[0]
	for _, b := range blocks[1:] {
		if less(best, b) {
			best = b
		}
	}
	return best
}

func sortBlocks(blocks []sortableBlock) {
	// insertion sort: mergesets are small (bounded by K plus the size of a
	// single block's anticone), and keeping this allocation-free avoids
	// pulling in sort.Slice's reflection path for a hot path.
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && less(blocks[j], blocks[j-1]); j-- {
			blocks[j], blocks[j-1] = blocks[j-1], blocks[j]
		}
	}
}
