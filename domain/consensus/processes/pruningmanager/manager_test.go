package pruningmanager

import (
	"sort"
	"strings"
	"testing"

	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/reachabilitystore"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/reachabilitymanager"
	"github.com/kasparov-dag/corenode/domain/consensus/pruningerror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeDBTransaction struct{}

func (fakeDBTransaction) Put(key, value []byte) error { return nil }
func (fakeDBTransaction) Delete(key []byte) error      { return nil }
func (fakeDBTransaction) Commit() error                { return nil }
func (fakeDBTransaction) Rollback() error              { return nil }

type fakeDBManager struct{}

func (fakeDBManager) Begin() (model.DBTransaction, error) { return fakeDBTransaction{}, nil }
func (fakeDBManager) Get(key []byte) ([]byte, error)      { return nil, errors.New("not found") }
func (fakeDBManager) Has(key []byte) (bool, error)        { return false, nil }

type fakeHeaderStore struct {
	headers map[externalapi.DomainHash]*externalapi.DomainBlockHeader
	levels  map[externalapi.DomainHash]externalapi.BlockLevel
}

func newFakeHeaderStore() *fakeHeaderStore {
	return &fakeHeaderStore{
		headers: map[externalapi.DomainHash]*externalapi.DomainBlockHeader{},
		levels:  map[externalapi.DomainHash]externalapi.BlockLevel{},
	}
}
func (s *fakeHeaderStore) Header(hash *externalapi.DomainHash) (*externalapi.DomainBlockHeader, error) {
	h, ok := s.headers[*hash]
	if !ok {
		return nil, errors.New("header not found")
	}
	return h, nil
}
func (s *fakeHeaderStore) HasHeader(hash *externalapi.DomainHash) bool {
	_, ok := s.headers[*hash]
	return ok
}
func (s *fakeHeaderStore) BlockLevel(hash *externalapi.DomainHash) (externalapi.BlockLevel, error) {
	level, ok := s.levels[*hash]
	if !ok {
		return 0, errors.New("level not found")
	}
	return level, nil
}
func (s *fakeHeaderStore) Stage(hash *externalapi.DomainHash, header *externalapi.DomainBlockHeader, level externalapi.BlockLevel) {
	s.headers[*hash] = header
	s.levels[*hash] = level
}
func (s *fakeHeaderStore) IsStaged() bool                   { return false }
func (s *fakeHeaderStore) Commit(model.DBTransaction) error { return nil }

type fakeRelationsStore struct {
	parents  map[externalapi.DomainHash][]*externalapi.DomainHash
	children map[externalapi.DomainHash][]*externalapi.DomainHash
}

func newFakeRelationsStore() *fakeRelationsStore {
	return &fakeRelationsStore{
		parents:  map[externalapi.DomainHash][]*externalapi.DomainHash{},
		children: map[externalapi.DomainHash][]*externalapi.DomainHash{},
	}
}
func (s *fakeRelationsStore) Parents(hash *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	return s.parents[*hash], nil
}
func (s *fakeRelationsStore) Children(hash *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	return s.children[*hash], nil
}
func (s *fakeRelationsStore) Has(hash *externalapi.DomainHash) (bool, error) {
	_, ok := s.parents[*hash]
	return ok, nil
}
func (s *fakeRelationsStore) StageParents(hash *externalapi.DomainHash, parents []*externalapi.DomainHash) {
	s.parents[*hash] = parents
}
func (s *fakeRelationsStore) AppendChild(parent, child *externalapi.DomainHash) {
	s.children[*parent] = append(s.children[*parent], child)
}
func (s *fakeRelationsStore) IsStaged() bool                   { return false }
func (s *fakeRelationsStore) Commit(model.DBTransaction) error { return nil }

type fakeGhostdagStore struct {
	data map[externalapi.DomainHash]*externalapi.GhostdagData
}

func newFakeGhostdagStore() *fakeGhostdagStore {
	return &fakeGhostdagStore{data: map[externalapi.DomainHash]*externalapi.GhostdagData{}}
}
func (s *fakeGhostdagStore) Get(hash *externalapi.DomainHash, _ bool) (*externalapi.GhostdagData, error) {
	d, ok := s.data[*hash]
	if !ok {
		return nil, errors.New("ghostdag data not found")
	}
	return d, nil
}
func (s *fakeGhostdagStore) Has(hash *externalapi.DomainHash) (bool, error) {
	_, ok := s.data[*hash]
	return ok, nil
}
func (s *fakeGhostdagStore) StageData(hash *externalapi.DomainHash, data *externalapi.GhostdagData) {
	s.data[*hash] = data
}
func (s *fakeGhostdagStore) StageTrustedData(hash *externalapi.DomainHash, data *externalapi.GhostdagData) {
	s.data[*hash] = data
}
func (s *fakeGhostdagStore) IsStaged() bool                   { return false }
func (s *fakeGhostdagStore) Commit(model.DBTransaction) error { return nil }

// fakeGhostdagManager returns a pre-registered result keyed by the exact
// (order-independent) parent set, mirroring the ghostdagmanager test's
// approach to sidestepping DomainHashSet's non-deterministic iteration.
type fakeGhostdagManager struct {
	results map[string]*externalapi.GhostdagData
}

func newFakeGhostdagManager() *fakeGhostdagManager {
	return &fakeGhostdagManager{results: map[string]*externalapi.GhostdagData{}}
}
func parentSetKey(parents []*externalapi.DomainHash) string {
	strs := make([]string, len(parents))
	for i, p := range parents {
		strs[i] = p.String()
	}
	sort.Strings(strs)
	return strings.Join(strs, ",")
}
func (m *fakeGhostdagManager) register(parents []*externalapi.DomainHash, data *externalapi.GhostdagData) {
	m.results[parentSetKey(parents)] = data
}
func (m *fakeGhostdagManager) GHOSTDAG(parents []*externalapi.DomainHash) (*externalapi.GhostdagData, error) {
	data, ok := m.results[parentSetKey(parents)]
	if !ok {
		return nil, errors.Errorf("no fake ghostdag result registered for parent set %s", parentSetKey(parents))
	}
	return data, nil
}

type fakeVirtualStateStore struct{ state *externalapi.VirtualState }

func (s *fakeVirtualStateStore) Get() (*externalapi.VirtualState, error) {
	if s.state == nil {
		return nil, errors.New("no virtual state")
	}
	return s.state, nil
}
func (s *fakeVirtualStateStore) Stage(state *externalapi.VirtualState) { s.state = state }
func (s *fakeVirtualStateStore) IsStaged() bool                        { return false }
func (s *fakeVirtualStateStore) Commit(model.DBTransaction) error      { return nil }

type fakeSelectedChainStore struct {
	chain []*externalapi.DomainHash
}

func (s *fakeSelectedChainStore) Get(index uint64) (*externalapi.DomainHash, error) {
	if index >= uint64(len(s.chain)) {
		return nil, errors.New("index out of range")
	}
	return s.chain[index], nil
}
func (s *fakeSelectedChainStore) IndexOf(hash *externalapi.DomainHash) (uint64, error) {
	for i, h := range s.chain {
		if h.Equal(hash) {
			return uint64(i), nil
		}
	}
	return 0, errors.New("hash not found on selected chain")
}
func (s *fakeSelectedChainStore) HighestIndex() (uint64, error) { return uint64(len(s.chain) - 1), nil }
func (s *fakeSelectedChainStore) StageAppend(hash *externalapi.DomainHash) {
	s.chain = append(s.chain, hash)
}
func (s *fakeSelectedChainStore) StageRemoveFrom(index uint64) { s.chain = s.chain[:index] }
func (s *fakeSelectedChainStore) InitWithPruningPoint(pruningPoint *externalapi.DomainHash) {
	s.chain = []*externalapi.DomainHash{pruningPoint}
}
func (s *fakeSelectedChainStore) IsStaged() bool                   { return false }
func (s *fakeSelectedChainStore) Commit(model.DBTransaction) error { return nil }

type fakeBodyTipsStore struct{ tips []*externalapi.DomainHash }

func (s *fakeBodyTipsStore) Tips() ([]*externalapi.DomainHash, error) { return s.tips, nil }
func (s *fakeBodyTipsStore) StageInit(tips []*externalapi.DomainHash) { s.tips = tips }
func (s *fakeBodyTipsStore) StageAddTip(tip *externalapi.DomainHash)  { s.tips = append(s.tips, tip) }
func (s *fakeBodyTipsStore) StageRemoveTip(tip *externalapi.DomainHash) {
	for i, t := range s.tips {
		if t.Equal(tip) {
			s.tips = append(s.tips[:i], s.tips[i+1:]...)
			return
		}
	}
}
func (s *fakeBodyTipsStore) IsStaged() bool                   { return false }
func (s *fakeBodyTipsStore) Commit(model.DBTransaction) error { return nil }

type fakePruningStore struct{ point *externalapi.DomainHash }

func (s *fakePruningStore) PruningPoint() (*externalapi.DomainHash, error) {
	if s.point == nil {
		return nil, errors.New("no pruning point set")
	}
	return s.point, nil
}
func (s *fakePruningStore) StagePruningPoint(hash *externalapi.DomainHash) { s.point = hash }
func (s *fakePruningStore) IsStaged() bool                                { return false }
func (s *fakePruningStore) Commit(model.DBTransaction) error              { return nil }

type fakePoWResolver struct{ level externalapi.BlockLevel }

func (r fakePoWResolver) BlockLevel(*externalapi.DomainBlockHeader) externalapi.BlockLevel { return r.level }

func hashN(n byte) *externalapi.DomainHash {
	h := externalapi.DomainHash{n}
	return &h
}

func levelZeroHeader(hash *externalapi.DomainHash, parent *externalapi.DomainHash, blueScore uint64) *externalapi.DomainBlockHeader {
	var parentsByLevel [][]*externalapi.DomainHash
	if parent == nil {
		parentsByLevel = [][]*externalapi.DomainHash{{}}
	} else {
		parentsByLevel = [][]*externalapi.DomainHash{{parent}}
	}
	header := &externalapi.DomainBlockHeader{
		ParentsByLevel: parentsByLevel,
		BlueScore:      blueScore,
		BlueWork:       externalapi.NewBlueWorkFromUint64(blueScore),
	}
	header.Finalize(hash)
	return header
}

type testFixture struct {
	manager            *Manager
	headerStore        *fakeHeaderStore
	relationsStore     *fakeRelationsStore
	ghostdagStore      *fakeGhostdagStore
	ghostdagManager    *fakeGhostdagManager
	virtualStateStore  *fakeVirtualStateStore
	selectedChainStore *fakeSelectedChainStore
	bodyTipsStore      *fakeBodyTipsStore
	pruningStore       *fakePruningStore
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	reachStore := reachabilitystore.New(nil)
	reachMgr := reachabilitymanager.New(reachStore, externalapi.ORIGIN)
	require.NoError(t, reachMgr.Init())

	headerStore := newFakeHeaderStore()
	relationsStore := newFakeRelationsStore()
	ghostdagStore := newFakeGhostdagStore()
	ghostdagManager := newFakeGhostdagManager()
	virtualStateStore := &fakeVirtualStateStore{}
	selectedChainStore := &fakeSelectedChainStore{}
	bodyTipsStore := &fakeBodyTipsStore{}
	pruningStore := &fakePruningStore{}

	manager := New(
		&config.Params{MaxBlockLevel: 0},
		headerStore,
		relationsStore,
		ghostdagStore,
		reachStore,
		reachMgr,
		virtualStateStore,
		selectedChainStore,
		bodyTipsStore,
		pruningStore,
		ghostdagManager,
		fakePoWResolver{level: 0},
		fakeDBManager{},
	)

	return &testFixture{
		manager:            manager,
		headerStore:        headerStore,
		relationsStore:     relationsStore,
		ghostdagStore:      ghostdagStore,
		ghostdagManager:    ghostdagManager,
		virtualStateStore:  virtualStateStore,
		selectedChainStore: selectedChainStore,
		bodyTipsStore:      bodyTipsStore,
		pruningStore:       pruningStore,
	}
}

func TestApplyProof_SingleLevelChain_StagesRelationsAndGhostdagAndVirtual(t *testing.T) {
	f := newTestFixture(t)

	genesis := hashN(1)
	p1 := hashN(2)
	p2 := hashN(3)

	genesisHeader := levelZeroHeader(genesis, nil, 0)
	p1Header := levelZeroHeader(p1, genesis, 1)
	p2Header := levelZeroHeader(p2, p1, 2)

	origin := externalapi.ORIGIN
	f.ghostdagManager.register([]*externalapi.DomainHash{&origin}, &externalapi.GhostdagData{SelectedParent: &origin, BlueScore: 0})
	f.ghostdagManager.register([]*externalapi.DomainHash{genesis}, &externalapi.GhostdagData{SelectedParent: genesis, BlueScore: 1})
	f.ghostdagManager.register([]*externalapi.DomainHash{p1}, &externalapi.GhostdagData{SelectedParent: p1, BlueScore: 2})
	f.ghostdagManager.register([]*externalapi.DomainHash{p2}, &externalapi.GhostdagData{SelectedParent: p2, BlueScore: 2})

	proof := [][]*externalapi.DomainBlockHeader{{genesisHeader, p1Header, p2Header}}

	err := f.manager.ApplyProof(proof, nil)
	require.NoError(t, err)

	genesisParents, err := f.relationsStore.Parents(genesis)
	require.NoError(t, err)
	require.Len(t, genesisParents, 1)
	require.True(t, genesisParents[0].Equal(&origin))

	p1Parents, err := f.relationsStore.Parents(p1)
	require.NoError(t, err)
	require.ElementsMatch(t, []*externalapi.DomainHash{genesis}, p1Parents)

	p2Parents, err := f.relationsStore.Parents(p2)
	require.NoError(t, err)
	require.ElementsMatch(t, []*externalapi.DomainHash{p1}, p2Parents)

	p2Data, err := f.ghostdagStore.Get(p2, false)
	require.NoError(t, err)
	require.True(t, p2Data.SelectedParent.Equal(p1))
	require.Equal(t, uint64(2), p2Data.BlueScore)

	require.True(t, f.virtualStateStore.state.SelectedTip.Equal(p2))
	require.Equal(t, []*externalapi.DomainHash{p2}, f.virtualStateStore.state.Parents)
	require.Equal(t, []*externalapi.DomainHash{p2}, f.bodyTipsStore.tips)
	require.Equal(t, 1, len(f.selectedChainStore.chain))
	require.True(t, f.selectedChainStore.chain[0].Equal(p2))

	stagedPruningPoint, err := f.pruningStore.PruningPoint()
	require.NoError(t, err)
	require.True(t, stagedPruningPoint.Equal(p2))
}

func TestApplyProof_TrustedBlockDisconnectedFromPruningPoint_Rejected(t *testing.T) {
	f := newTestFixture(t)

	genesis := hashN(1)
	p1 := hashN(2)
	p2 := hashN(3)
	orphan := hashN(9)

	genesisHeader := levelZeroHeader(genesis, nil, 0)
	p1Header := levelZeroHeader(p1, genesis, 1)
	p2Header := levelZeroHeader(p2, p1, 2)
	orphanHeader := levelZeroHeader(orphan, nil, 0)

	origin := externalapi.ORIGIN
	f.ghostdagManager.register([]*externalapi.DomainHash{&origin}, &externalapi.GhostdagData{SelectedParent: &origin, BlueScore: 0})
	f.ghostdagManager.register([]*externalapi.DomainHash{genesis}, &externalapi.GhostdagData{SelectedParent: genesis, BlueScore: 1})
	f.ghostdagManager.register([]*externalapi.DomainHash{p1}, &externalapi.GhostdagData{SelectedParent: p1, BlueScore: 2})

	proof := [][]*externalapi.DomainBlockHeader{{genesisHeader, p1Header, p2Header}}
	trustedSet := []*TrustedBlock{
		{Header: orphanHeader, GhostdagData: &externalapi.GhostdagData{SelectedParent: &origin, BlueScore: 0}},
	}

	err := f.manager.ApplyProof(proof, trustedSet)
	require.Error(t, err)
	pruningImportErr, ok := err.(*pruningerror.PruningImportError)
	require.True(t, ok, "expected a *pruningerror.PruningImportError, got %T", err)
	require.Equal(t, pruningerror.KindPruningPointPastMissingReachability, pruningImportErr.Kind)
	require.True(t, pruningImportErr.Hash.Equal(orphan))
}
