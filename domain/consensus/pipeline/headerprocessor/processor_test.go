package headerprocessor

import (
	"sort"
	"strings"
	"testing"

	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus/datastructures/reachabilitystore"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/difficultymanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/pastmediantimemanager"
	"github.com/kasparov-dag/corenode/domain/consensus/processes/reachabilitymanager"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakePoWResolver always reports level 0, well below any test's
// MaxBlockLevel, keeping validateProofOfWorkLevel a no-op for these fixtures.
type fakePoWResolver struct{}

func (fakePoWResolver) BlockLevel(*externalapi.DomainBlockHeader) externalapi.BlockLevel { return 0 }

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
}

func newFakeHeaderStore() *fakeHeaderStore {
	return &fakeHeaderStore{headers: map[externalapi.DomainHash]*externalapi.DomainBlockHeader{}}
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
func (s *fakeHeaderStore) BlockLevel(*externalapi.DomainHash) (externalapi.BlockLevel, error) { return 0, nil }
func (s *fakeHeaderStore) Stage(hash *externalapi.DomainHash, header *externalapi.DomainBlockHeader, _ externalapi.BlockLevel) {
	s.headers[*hash] = header
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

type fakeStatusStore struct {
	statuses map[externalapi.DomainHash]externalapi.BlockStatus
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{statuses: map[externalapi.DomainHash]externalapi.BlockStatus{}}
}
func (s *fakeStatusStore) Get(hash *externalapi.DomainHash) (externalapi.BlockStatus, error) {
	st, ok := s.statuses[*hash]
	if !ok {
		return 0, errors.New("status not found")
	}
	return st, nil
}
func (s *fakeStatusStore) Exists(hash *externalapi.DomainHash) bool {
	_, ok := s.statuses[*hash]
	return ok
}
func (s *fakeStatusStore) Stage(hash *externalapi.DomainHash, status externalapi.BlockStatus) error {
	s.statuses[*hash] = status
	return nil
}
func (s *fakeStatusStore) IsStaged() bool                   { return false }
func (s *fakeStatusStore) Commit(model.DBTransaction) error { return nil }

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
// (order-independent) parent set, matching the approach used across the
// other process-level tests to sidestep DomainHashSet's unstable iteration.
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
		return nil, errors.Errorf("no fake ghostdag result registered for parent set %q", parentSetKey(parents))
	}
	return data, nil
}

func hashN(n byte) *externalapi.DomainHash {
	h := externalapi.DomainHash{n}
	return &h
}

type testFixture struct {
	processor       *Processor
	headerStore     *fakeHeaderStore
	relationsStore  *fakeRelationsStore
	statusStore     *fakeStatusStore
	ghostdagStore   *fakeGhostdagStore
	ghostdagManager *fakeGhostdagManager
	reachStore      *reachabilitystore.Store
}

func newTestFixture(genesisHash *externalapi.DomainHash) *testFixture {
	reachStore := reachabilitystore.New(nil)
	reachMgr := reachabilitymanager.New(reachStore, *genesisHash)
	params := &config.Params{MaxBlockLevel: 225}
	diffMgr := difficultymanager.New(params)

	headerStore := newFakeHeaderStore()
	relationsStore := newFakeRelationsStore()
	statusStore := newFakeStatusStore()
	ghostdagStore := newFakeGhostdagStore()
	ghostdagManager := newFakeGhostdagManager()
	pastMedianTimeManager := pastmediantimemanager.New(headerStore, ghostdagStore, params.PastMedianTimeWindowSize)

	processor := New(
		*genesisHash,
		params,
		fakeDBManager{},
		headerStore,
		relationsStore,
		statusStore,
		ghostdagStore,
		reachStore,
		ghostdagManager,
		reachMgr,
		diffMgr,
		fakePoWResolver{},
		pastMedianTimeManager,
	)

	return &testFixture{
		processor:       processor,
		headerStore:     headerStore,
		relationsStore:  relationsStore,
		statusStore:     statusStore,
		ghostdagStore:   ghostdagStore,
		ghostdagManager: ghostdagManager,
		reachStore:      reachStore,
	}
}

func childHeader(hash, parent *externalapi.DomainHash) *externalapi.DomainBlockHeader {
	header := &externalapi.DomainBlockHeader{
		ParentsByLevel:     [][]*externalapi.DomainHash{{parent}},
		BlueWork:           externalapi.ZeroBlueWork(),
		TimeInMilliseconds: 1,
	}
	header.Finalize(hash)
	return header
}

func TestSubmitHeader_UnprocessedParent_ReturnsPending(t *testing.T) {
	genesis := hashN(1)
	f := newTestFixture(genesis)

	a1 := hashN(2)
	header := childHeader(a1, genesis)

	outcome, err := f.processor.SubmitHeader(header)
	require.NoError(t, err)
	require.Equal(t, externalapi.SubmitOutcomePending, outcome.Kind)
	require.ElementsMatch(t, []*externalapi.DomainHash{genesis}, outcome.MissingParents)
}

func TestSubmitHeader_GenesisResubmitted_ReturnsAlreadyKnown(t *testing.T) {
	genesis := hashN(1)
	f := newTestFixture(genesis)

	f.ghostdagManager.register(nil, externalapi.NewGenesisGhostdagData())

	require.NoError(t, f.processor.ProcessGenesisIfNeeded())

	genesisHeaderAgain := &externalapi.DomainBlockHeader{BlueWork: externalapi.ZeroBlueWork()}
	genesisHeaderAgain.Finalize(genesis)

	outcome, err := f.processor.SubmitHeader(genesisHeaderAgain)
	require.NoError(t, err)
	require.Equal(t, externalapi.SubmitOutcomeAlreadyKnown, outcome.Kind)

	// Idempotent re-seeding must also be a no-op.
	require.NoError(t, f.processor.ProcessGenesisIfNeeded())
}

func TestSubmitHeader_ParentProcessed_AcceptsAndStagesEverything(t *testing.T) {
	genesis := hashN(1)
	f := newTestFixture(genesis)
	f.ghostdagManager.register(nil, externalapi.NewGenesisGhostdagData())
	require.NoError(t, f.processor.ProcessGenesisIfNeeded())

	a1 := hashN(2)
	a1GhostdagData := &externalapi.GhostdagData{
		SelectedParent: genesis,
		BlueScore:      1,
		BlueWork:       externalapi.NewBlueWorkFromUint64(1),
	}
	f.ghostdagManager.register([]*externalapi.DomainHash{genesis}, a1GhostdagData)

	header := childHeader(a1, genesis)
	outcome, err := f.processor.SubmitHeader(header)
	require.NoError(t, err)
	require.Equal(t, externalapi.SubmitOutcomeAccepted, outcome.Kind)

	storedHeader, err := f.headerStore.Header(a1)
	require.NoError(t, err)
	require.Same(t, header, storedHeader)

	storedParents, err := f.relationsStore.Parents(a1)
	require.NoError(t, err)
	require.ElementsMatch(t, []*externalapi.DomainHash{genesis}, storedParents)

	storedStatus, err := f.statusStore.Get(a1)
	require.NoError(t, err)
	require.Equal(t, externalapi.StatusHeaderOnly, storedStatus)

	storedGhostdag, err := f.ghostdagStore.Get(a1, false)
	require.NoError(t, err)
	require.True(t, storedGhostdag.SelectedParent.Equal(genesis))

	isAncestor, err := f.processor.reachabilityManager.IsDAGAncestorOf(genesis, a1)
	require.NoError(t, err)
	require.True(t, isAncestor, "genesis must become a1's reachability-tree ancestor once a1's header is accepted")
}
