// Package ghostdagmanager implements the GHOSTDAG protocol (spec.md §4.2):
// selected-parent election, mergeset classification into blues and reds
// under a k-cluster bound, and blue score/work accumulation.
package ghostdagmanager

import (
	"fmt"

	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kasparov-dag/corenode/domain/consensus/ruleerror"
	"github.com/pkg/errors"
)

type ghostdagStoreReader interface {
	Get(hash *externalapi.DomainHash, isTrustedData bool) (*externalapi.GhostdagData, error)
	Has(hash *externalapi.DomainHash) (bool, error)
}

type relationsStoreReader interface {
	Parents(hash *externalapi.DomainHash) ([]*externalapi.DomainHash, error)
}

type reachabilityService interface {
	IsDAGAncestorOf(a, b *externalapi.DomainHash) (bool, error)
}

type headerStoreReader interface {
	Header(hash *externalapi.DomainHash) (*externalapi.DomainBlockHeader, error)
}

// workCalculator converts a header's compact bits into the work it
// contributes to blue_work accumulation (spec.md §4.2 step 5).
type workCalculator interface {
	WorkFromBits(bits uint32) *externalapi.BlueWork
}

// Manager computes GhostdagData for candidate blocks from their direct
// parents, per spec.md §4.2.
type Manager struct {
	genesisHash         externalapi.DomainHash
	k                   externalapi.KType
	ghostdagStore       ghostdagStoreReader
	relationsStore      relationsStoreReader
	reachabilityService reachabilityService
	headerStore         headerStoreReader
	difficultyManager   workCalculator
}

// New returns a Manager parameterized by the network's k. difficultyManager
// supplies the bits-to-work conversion blue_work accumulation needs for
// every block in a candidate's mergeset (spec.md §4.2 step 5).
func New(
	genesisHash externalapi.DomainHash,
	k externalapi.KType,
	ghostdagStore ghostdagStoreReader,
	relationsStore relationsStoreReader,
	reachabilityService reachabilityService,
	headerStore headerStoreReader,
	difficultyManager workCalculator,
) *Manager {
	return &Manager{
		genesisHash:         genesisHash,
		k:                   k,
		ghostdagStore:       ghostdagStore,
		relationsStore:      relationsStore,
		reachabilityService: reachabilityService,
		headerStore:         headerStore,
		difficultyManager:   difficultyManager,
	}
}

// findSelectedParent returns the parent with maximal blue work, ties broken
// by hash (spec.md §4.2 step 1).
func (gm *Manager) findSelectedParent(parents []*externalapi.DomainHash) (*externalapi.DomainHash, error) {
	blocks := make([]sortableBlock, len(parents))
	for i, parent := range parents {
		data, err := gm.ghostdagStore.Get(parent, false)
		if err != nil {
			return nil, ruleerror.Wrap(ruleerror.KindSelectedParentNotFound, errors.Wrapf(err, "parent %s has no ghostdag data", parent))
		}
		blocks[i] = sortableBlock{hash: parent, blueWork: data.BlueWork}
	}
	return max(blocks).hash, nil
}

// GHOSTDAG computes the full GhostdagData tuple for a candidate block with
// direct parents, per spec.md §4.2.
func (gm *Manager) GHOSTDAG(parents []*externalapi.DomainHash) (*externalapi.GhostdagData, error) {
	if len(parents) == 0 {
		return externalapi.NewGenesisGhostdagData(), nil
	}

	selectedParent, err := gm.findSelectedParent(parents)
	if err != nil {
		return nil, err
	}

	newBlockData := &externalapi.GhostdagData{
		SelectedParent:     selectedParent,
		MergeSetBlues:      []*externalapi.DomainHash{selectedParent},
		MergeSetReds:       []*externalapi.DomainHash{},
		BluesAnticoneSizes: map[externalapi.DomainHash]externalapi.KType{*selectedParent: 0},
	}

	orderedMergeset, err := gm.orderedMergesetWithoutSelectedParent(selectedParent, parents)
	if err != nil {
		return nil, err
	}

	for _, blueCandidate := range orderedMergeset {
		isBlue, candidateAnticoneSize, candidateBluesAnticoneSizes, err := gm.checkBlueCandidate(newBlockData, blueCandidate)
		if err != nil {
			return nil, err
		}
		if isBlue {
			newBlockData.MergeSetBlues = append(newBlockData.MergeSetBlues, blueCandidate)
			newBlockData.BluesAnticoneSizes[*blueCandidate] = candidateAnticoneSize
			for hash, size := range candidateBluesAnticoneSizes {
				newBlockData.BluesAnticoneSizes[hash] = size + 1
			}
		} else {
			newBlockData.MergeSetReds = append(newBlockData.MergeSetReds, blueCandidate)
		}
	}

	selectedParentData, err := gm.ghostdagStore.Get(selectedParent, false)
	if err != nil {
		return nil, ruleerror.Wrap(ruleerror.KindSelectedParentNotFound, errors.Wrapf(err, "selected parent %s has no ghostdag data", selectedParent))
	}

	// mergeSetBlues here includes the selected parent itself, matching
	// |mergeset_blues(x)| in spec.md §4.2 step 5.
	blueScore := selectedParentData.BlueScore + uint64(len(newBlockData.MergeSetBlues))
	blueWork, err := gm.accumulateBlueWork(selectedParentData.BlueWork, newBlockData.MergeSetBlues)
	if err != nil {
		return nil, err
	}
	newBlockData.BlueScore = blueScore
	newBlockData.BlueWork = blueWork

	return newBlockData, nil
}

// accumulateBlueWork computes blue_work(sp) + Σ_{b∈mergeSetBlues} work(b),
// each block's work derived from its own header's bits (spec.md §4.2
// step 5), rather than collapsing work to a per-block count.
func (gm *Manager) accumulateBlueWork(selectedParentBlueWork *externalapi.BlueWork, mergeSetBlues []*externalapi.DomainHash) (*externalapi.BlueWork, error) {
	total := selectedParentBlueWork
	for _, blue := range mergeSetBlues {
		header, err := gm.headerStore.Header(blue)
		if err != nil {
			return nil, ruleerror.Wrap(ruleerror.KindSelectedParentNotFound, errors.Wrapf(err, "blue block %s has no header for work calculation", blue))
		}
		total = total.Add(gm.difficultyManager.WorkFromBits(header.Bits))
	}
	return total, nil
}

// checkBlueCandidate determines whether blueCandidate can be added to
// newBlockData's blue set without violating the k-cluster bound, walking
// the chain of selected parents back from newBlockData (spec.md §4.2 step 3).
func (gm *Manager) checkBlueCandidate(newBlockData *externalapi.GhostdagData, blueCandidate *externalapi.DomainHash) (bool, externalapi.KType, map[externalapi.DomainHash]externalapi.KType, error) {
	if externalapi.KType(len(newBlockData.MergeSetBlues)) == gm.k+1 {
		return false, 0, nil, nil
	}

	candidateBluesAnticoneSizes := make(map[externalapi.DomainHash]externalapi.KType, gm.k)
	var candidateAnticoneSize externalapi.KType

	chainHash := (*externalapi.DomainHash)(nil)
	chainData := newBlockData

	for {
		isBlue, isRed, err := gm.checkBlueCandidateWithChainBlock(newBlockData, chainHash, chainData, blueCandidate, candidateBluesAnticoneSizes, &candidateAnticoneSize)
		if err != nil {
			return false, 0, nil, err
		}
		if isBlue {
			return true, candidateAnticoneSize, candidateBluesAnticoneSizes, nil
		}
		if isRed {
			return false, 0, nil, nil
		}

		nextHash := chainData.SelectedParent
		nextData, err := gm.ghostdagStore.Get(nextHash, false)
		if err != nil {
			return false, 0, nil, ruleerror.Wrap(ruleerror.KindSelectedParentNotFound, errors.Wrapf(err, "chain block %s has no ghostdag data", nextHash))
		}
		chainHash = nextHash
		chainData = nextData
	}
}

// checkBlueCandidateWithChainBlock is one step of the selected-parent-chain
// walk: it returns (isBlue, isRed) for blueCandidate relative to one chain
// block's own mergeset blues.
func (gm *Manager) checkBlueCandidateWithChainBlock(
	newBlockData *externalapi.GhostdagData,
	chainHash *externalapi.DomainHash,
	chainData *externalapi.GhostdagData,
	blueCandidate *externalapi.DomainHash,
	candidateBluesAnticoneSizes map[externalapi.DomainHash]externalapi.KType,
	candidateAnticoneSize *externalapi.KType,
) (isBlue, isRed bool, err error) {
	if chainHash != nil {
		isAncestor, err := gm.reachabilityService.IsDAGAncestorOf(chainHash, blueCandidate)
		if err != nil {
			return false, false, err
		}
		if isAncestor {
			return true, false, nil
		}
	}

	for _, block := range chainData.MergeSetBlues {
		isAncestor, err := gm.reachabilityService.IsDAGAncestorOf(block, blueCandidate)
		if err != nil {
			return false, false, err
		}
		if isAncestor {
			continue
		}

		blockAnticoneSize, err := gm.blueAnticoneSize(block, newBlockData)
		if err != nil {
			return false, false, err
		}
		candidateBluesAnticoneSizes[*block] = blockAnticoneSize

		*candidateAnticoneSize++
		if *candidateAnticoneSize > gm.k {
			return false, true, nil
		}
		if candidateBluesAnticoneSizes[*block] == gm.k {
			return false, true, nil
		}
	}

	return false, false, nil
}

// blueAnticoneSize returns the blue anticone size of block as recorded in
// context's ancestry, walking the chain of selected parents toward genesis
// (and then ORIGIN's trusted data) until block is found (spec.md §4.2).
func (gm *Manager) blueAnticoneSize(block *externalapi.DomainHash, context *externalapi.GhostdagData) (externalapi.KType, error) {
	isTrustedData := false
	currentSizes := context.BluesAnticoneSizes
	currentSelectedParent := context.SelectedParent

	for {
		if size, ok := currentSizes[*block]; ok {
			return size, nil
		}

		if currentSelectedParent.Equal(&gm.genesisHash) {
			return 0, ruleerror.New(ruleerror.KindCandidateBlueAnticoneExceedsK, fmt.Sprintf("block %s is not in the blue set of the given context", block))
		}

		data, err := gm.ghostdagStore.Get(currentSelectedParent, isTrustedData)
		if err != nil {
			return 0, ruleerror.Wrap(ruleerror.KindSelectedParentNotFound, errors.Wrapf(err, "selected parent %s has no ghostdag data", currentSelectedParent))
		}
		currentSizes = data.BluesAnticoneSizes
		currentSelectedParent = data.SelectedParent

		if externalapi.IsOrigin(currentSelectedParent) {
			isTrustedData = true
			data, err := gm.ghostdagStore.Get(currentSelectedParent, isTrustedData)
			if err != nil {
				return 0, ruleerror.Wrap(ruleerror.KindSelectedParentNotFound, errors.Wrap(err, "trusted origin data missing"))
			}
			currentSizes = data.BluesAnticoneSizes
			currentSelectedParent = data.SelectedParent
		}
	}
}
