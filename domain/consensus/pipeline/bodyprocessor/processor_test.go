package bodyprocessor

import (
	"testing"

	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/ruleerror"
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
func (s *fakeHeaderStore) BlockLevel(hash *externalapi.DomainHash) (externalapi.BlockLevel, error) {
	return 0, nil
}
func (s *fakeHeaderStore) Stage(hash *externalapi.DomainHash, header *externalapi.DomainBlockHeader, level externalapi.BlockLevel) {
	s.headers[*hash] = header
}
func (s *fakeHeaderStore) IsStaged() bool            { return false }
func (s *fakeHeaderStore) Commit(model.DBTransaction) error { return nil }

type fakeStatusStore struct {
	statuses map[externalapi.DomainHash]externalapi.BlockStatus
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{statuses: map[externalapi.DomainHash]externalapi.BlockStatus{}}
}
func (s *fakeStatusStore) Get(hash *externalapi.DomainHash) (externalapi.BlockStatus, error) {
	status, ok := s.statuses[*hash]
	if !ok {
		return 0, errors.New("status not found")
	}
	return status, nil
}
func (s *fakeStatusStore) Exists(hash *externalapi.DomainHash) bool {
	_, ok := s.statuses[*hash]
	return ok
}
func (s *fakeStatusStore) Stage(hash *externalapi.DomainHash, status externalapi.BlockStatus) error {
	s.statuses[*hash] = status
	return nil
}
func (s *fakeStatusStore) IsStaged() bool            { return false }
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
func (s *fakeGhostdagStore) IsStaged() bool            { return false }
func (s *fakeGhostdagStore) Commit(model.DBTransaction) error { return nil }

type fakeReachabilityManager struct {
	ancestors map[externalapi.DomainHash]map[externalapi.DomainHash]bool
}

func (m *fakeReachabilityManager) AddBlock(*externalapi.DomainHash, *externalapi.DomainHash, []*externalapi.DomainHash) error {
	return nil
}
func (m *fakeReachabilityManager) IsDAGAncestorOf(a, b *externalapi.DomainHash) (bool, error) {
	if a.Equal(b) {
		return true, nil
	}
	if m.ancestors == nil {
		return false, nil
	}
	return m.ancestors[*a][*b], nil
}
func (m *fakeReachabilityManager) IsDAGAncestorOfAny(a *externalapi.DomainHash, others []*externalapi.DomainHash) (bool, error) {
	for _, b := range others {
		if ok, _ := m.IsDAGAncestorOf(a, b); ok {
			return true, nil
		}
	}
	return false, nil
}
func (m *fakeReachabilityManager) FindCommonAncestor(a, _ *externalapi.DomainHash) (*externalapi.DomainHash, error) {
	return a, nil
}

type fakePruningStore struct {
	point *externalapi.DomainHash
}

func (s *fakePruningStore) PruningPoint() (*externalapi.DomainHash, error) {
	if s.point == nil {
		return nil, errors.New("no pruning point set")
	}
	return s.point, nil
}
func (s *fakePruningStore) StagePruningPoint(hash *externalapi.DomainHash) { s.point = hash }
func (s *fakePruningStore) IsStaged() bool                                { return false }
func (s *fakePruningStore) Commit(model.DBTransaction) error              { return nil }

type fakePastMedianTimeManager struct{}

func (fakePastMedianTimeManager) PastMedianTime(*externalapi.GhostdagData) (int64, error) {
	return 0, nil
}

type fakeCoinbaseManager struct {
	subsidy  uint64
	extracted *model.CoinbaseData
}

func (m *fakeCoinbaseManager) ExtractCoinbaseData(tx *externalapi.DomainTransaction) (*model.CoinbaseData, error) {
	if m.extracted != nil {
		return m.extracted, nil
	}
	return &model.CoinbaseData{Subsidy: m.subsidy}, nil
}
func (m *fakeCoinbaseManager) CalcBlockSubsidy(daaScore uint64) uint64 { return m.subsidy }

type fakeTxValidator struct{}

func (fakeTxValidator) UTXOFreeTxValidation(*externalapi.DomainTransaction, uint64, int64) error {
	return nil
}
func (fakeTxValidator) ValidateAndApply(*externalapi.DomainTransaction, model.UtxoView) error {
	return nil
}

type fakeBlockStore struct {
	blocks map[externalapi.DomainHash]*externalapi.DomainBlock
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{blocks: map[externalapi.DomainHash]*externalapi.DomainBlock{}}
}
func (s *fakeBlockStore) Block(hash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	b, ok := s.blocks[*hash]
	if !ok {
		return nil, errors.New("block not found")
	}
	return b, nil
}
func (s *fakeBlockStore) Stage(hash *externalapi.DomainHash, block *externalapi.DomainBlock) {
	s.blocks[*hash] = block
}
func (s *fakeBlockStore) IsStaged() bool            { return false }
func (s *fakeBlockStore) Commit(model.DBTransaction) error { return nil }

func hashN(n byte) *externalapi.DomainHash {
	h := externalapi.DomainHash{n}
	return &h
}

func genesisOnlyBlock(hash, genesis *externalapi.DomainHash, daaScore uint64) *externalapi.DomainBlock {
	header := &externalapi.DomainBlockHeader{
		ParentsByLevel: [][]*externalapi.DomainHash{{genesis}},
		DAAScore:       daaScore,
		BlueWork:       externalapi.ZeroBlueWork(),
	}
	header.Finalize(hash)
	coinbase := &externalapi.DomainTransaction{}
	coinbase.SetID(hashN(200))
	return &externalapi.DomainBlock{Header: header, Transactions: []*externalapi.DomainTransaction{coinbase}}
}

func newTestProcessor(genesis *externalapi.DomainHash, ghostdagStore *fakeGhostdagStore, coinbaseManager *fakeCoinbaseManager, pruningStore *fakePruningStore, blockStore *fakeBlockStore, statusStore *fakeStatusStore) *Processor {
	return New(
		*genesis,
		newFakeHeaderStore(),
		statusStore,
		ghostdagStore,
		&fakeReachabilityManager{},
		pruningStore,
		fakePastMedianTimeManager{},
		coinbaseManager,
		fakeTxValidator{},
		blockStore,
		fakeDBManager{},
	)
}

func TestValidateBody_CoinbaseSubsidyMismatch_Rejected(t *testing.T) {
	genesis := hashN(1)
	blockHash := hashN(2)
	ghostdagStore := newFakeGhostdagStore()
	ghostdagStore.StageData(blockHash, &externalapi.GhostdagData{BlueScore: 1})

	coinbaseManager := &fakeCoinbaseManager{subsidy: 1000, extracted: &model.CoinbaseData{Subsidy: 999}}
	processor := newTestProcessor(genesis, ghostdagStore, coinbaseManager, &fakePruningStore{}, newFakeBlockStore(), newFakeStatusStore())

	block := genesisOnlyBlock(blockHash, genesis, 5)

	err := processor.ValidateBody(block)
	require.Error(t, err)
	ruleErr, ok := err.(*ruleerror.RuleError)
	require.True(t, ok, "expected a *ruleerror.RuleError")
	require.Equal(t, ruleerror.KindWrongSubsidy, ruleErr.Kind)

	// Resubmitting the identical block is a pure function of its (unchanged)
	// inputs: the body processor itself has no dedup memory, so it fails the
	// same way again rather than returning some distinct "already known
	// invalid" signal.
	err = processor.ValidateBody(block)
	require.Error(t, err)
	ruleErr, ok = err.(*ruleerror.RuleError)
	require.True(t, ok)
	require.Equal(t, ruleerror.KindWrongSubsidy, ruleErr.Kind)
}

func TestValidateBody_Success_StagesStatusAndBlock(t *testing.T) {
	genesis := hashN(1)
	blockHash := hashN(2)
	ghostdagStore := newFakeGhostdagStore()
	ghostdagStore.StageData(blockHash, &externalapi.GhostdagData{BlueScore: 1})

	coinbaseManager := &fakeCoinbaseManager{subsidy: 500}
	statusStore := newFakeStatusStore()
	blockStore := newFakeBlockStore()
	processor := newTestProcessor(genesis, ghostdagStore, coinbaseManager, &fakePruningStore{}, blockStore, statusStore)

	block := genesisOnlyBlock(blockHash, genesis, 5)

	err := processor.ValidateBody(block)
	require.NoError(t, err)

	status, err := statusStore.Get(blockHash)
	require.NoError(t, err)
	require.Equal(t, externalapi.StatusUTXOPendingVerification, status)

	staged, err := blockStore.Block(blockHash)
	require.NoError(t, err)
	require.Same(t, block, staged)
}

func TestValidateBody_BelowPruningPoint_Rejected(t *testing.T) {
	genesis := hashN(1)
	blockHash := hashN(2)
	ghostdagStore := newFakeGhostdagStore()
	ghostdagStore.StageData(blockHash, &externalapi.GhostdagData{BlueScore: 1})

	coinbaseManager := &fakeCoinbaseManager{subsidy: 500}
	pruningPoint := hashN(3)
	pruningStore := &fakePruningStore{point: pruningPoint}
	processor := newTestProcessor(genesis, ghostdagStore, coinbaseManager, pruningStore, newFakeBlockStore(), newFakeStatusStore())
	// leave the fakeReachabilityManager's ancestors map nil, so
	// IsDAGAncestorOf(pruningPoint, blockHash) answers false: blockHash is
	// not reachable from (i.e. not above) the pruning point.

	block := genesisOnlyBlock(blockHash, genesis, 5)

	err := processor.ValidateBody(block)
	require.Error(t, err)
	ruleErr, ok := err.(*ruleerror.RuleError)
	require.True(t, ok)
	require.Equal(t, ruleerror.KindPrunedBlock, ruleErr.Kind)
}
