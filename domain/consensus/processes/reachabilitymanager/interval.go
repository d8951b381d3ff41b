package reachabilitymanager

import "github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"

// rootInterval is the interval reserved for the root of the reachability
// tree (ORIGIN). It is wide enough that a realistic DAG never exhausts it
// without at least one reindex, and the reindex worklist in manager.go
// handles that case iteratively when it does.
var rootInterval = &externalapi.ReachabilityInterval{Start: 1, End: 1 << 62}

// splitForNewChild carves a new child's interval out of the remaining free
// space in parentInterval, given usedEnd — the first free preorder code not
// yet claimed by an existing child. It reserves half the remaining capacity
// for the new child so further siblings can still be appended later without
// an immediate reindex (the exponential-slack technique that keeps
// reindexing amortized O(log N) rather than triggering on every insert).
func splitForNewChild(parentInterval *externalapi.ReachabilityInterval, usedEnd uint64) (*externalapi.ReachabilityInterval, bool) {
	if usedEnd >= parentInterval.End {
		return nil, false
	}
	remaining := parentInterval.End - usedEnd
	if remaining < 2 {
		return nil, false
	}
	size := remaining / 2
	if size < 1 {
		size = 1
	}
	return &externalapi.ReachabilityInterval{Start: usedEnd, End: usedEnd + size}, true
}

// evenSplit divides interval into n consecutive, equally sized sub-intervals
// (the last absorbing any remainder), used when reindexing a subtree to
// redistribute a parent's full capacity among its children.
func evenSplit(interval *externalapi.ReachabilityInterval, n int) []*externalapi.ReachabilityInterval {
	if n == 0 {
		return nil
	}
	total := interval.End - interval.Start
	each := total / uint64(n)
	if each < 1 {
		each = 1
	}
	out := make([]*externalapi.ReachabilityInterval, n)
	cursor := interval.Start
	for i := 0; i < n; i++ {
		end := cursor + each
		if i == n-1 || end > interval.End {
			end = interval.End
		}
		out[i] = &externalapi.ReachabilityInterval{Start: cursor, End: end}
		cursor = end
	}
	return out
}
