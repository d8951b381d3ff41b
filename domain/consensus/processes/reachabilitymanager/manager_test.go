package reachabilitymanager_test

import (
	"testing"

	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/reachabilitystore"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/reachabilitymanager"
	"github.com/stretchr/testify/require"
)

func hashN(n byte) *externalapi.DomainHash {
	h := externalapi.DomainHash{n}
	return &h
}

// buildForkAndMergeTree stages a small reachability tree entirely through
// StageData, never touching a backing database: genesis has two children
// a1 and b1, and a merge block m with tree parent b1 whose mergeset also
// includes a1.
func buildForkAndMergeTree(t *testing.T) (m *reachabilitymanager.Manager, genesis, a1, b1, merge *externalapi.DomainHash) {
	t.Helper()
	store := reachabilitystore.New(nil)
	genesis = hashN(1)
	mgr := reachabilitymanager.New(store, *genesis)

	require.NoError(t, mgr.Init())
	require.NoError(t, mgr.AddBlock(genesis, &externalapi.ORIGIN, nil))

	a1 = hashN(2)
	require.NoError(t, mgr.AddBlock(a1, genesis, nil))

	b1 = hashN(3)
	require.NoError(t, mgr.AddBlock(b1, genesis, nil))

	merge = hashN(4)
	require.NoError(t, mgr.AddBlock(merge, b1, []*externalapi.DomainHash{a1}))

	return mgr, genesis, a1, b1, merge
}

func TestIsDAGAncestorOf_TreeAncestry(t *testing.T) {
	mgr, genesis, a1, b1, _ := buildForkAndMergeTree(t)

	isAncestor, err := mgr.IsDAGAncestorOf(genesis, a1)
	require.NoError(t, err)
	require.True(t, isAncestor, "genesis must be an ancestor of its tree child a1")

	isAncestor, err = mgr.IsDAGAncestorOf(genesis, b1)
	require.NoError(t, err)
	require.True(t, isAncestor, "genesis must be an ancestor of its tree child b1")

	isAncestor, err = mgr.IsDAGAncestorOf(a1, b1)
	require.NoError(t, err)
	require.False(t, isAncestor, "sibling blocks must not be ancestors of each other")
}

func TestIsDAGAncestorOf_FutureCoveringSet(t *testing.T) {
	mgr, _, a1, _, merge := buildForkAndMergeTree(t)

	// a1 is not merge's tree ancestor (merge's tree parent is b1), but a1 is
	// in merge's mergeset, so merge must appear in a1's future-covering set
	// and the DAG-ancestry query must still answer true.
	isAncestor, err := mgr.IsDAGAncestorOf(a1, merge)
	require.NoError(t, err)
	require.True(t, isAncestor)
}

func TestIsDAGAncestorOf_OriginIsAncestorOfEverything(t *testing.T) {
	mgr, _, a1, _, _ := buildForkAndMergeTree(t)

	isAncestor, err := mgr.IsDAGAncestorOf(&externalapi.ORIGIN, a1)
	require.NoError(t, err)
	require.True(t, isAncestor)
}

func TestFindCommonAncestor_SiblingsShareGenesis(t *testing.T) {
	mgr, genesis, a1, b1, _ := buildForkAndMergeTree(t)

	common, err := mgr.FindCommonAncestor(a1, b1)
	require.NoError(t, err)
	require.True(t, common.Equal(genesis))
}

func TestFindCommonAncestor_AncestorOfItself(t *testing.T) {
	mgr, genesis, a1, _, _ := buildForkAndMergeTree(t)

	common, err := mgr.FindCommonAncestor(genesis, a1)
	require.NoError(t, err)
	require.True(t, common.Equal(genesis))
}

func TestIsDAGAncestorOfAny(t *testing.T) {
	mgr, genesis, a1, b1, _ := buildForkAndMergeTree(t)

	isAncestor, err := mgr.IsDAGAncestorOfAny(genesis, []*externalapi.DomainHash{a1, b1})
	require.NoError(t, err)
	require.True(t, isAncestor)

	isAncestor, err = mgr.IsDAGAncestorOfAny(a1, []*externalapi.DomainHash{b1})
	require.NoError(t, err)
	require.False(t, isAncestor)
}
