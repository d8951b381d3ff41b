// Package config holds the consensus-wide configuration parameters
// enumerated in spec.md §6, grounded on kaspad's dagconfig.Params pattern.
package config

import (
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
)

// Params bundles every tunable the core consensus engine reads.
type Params struct {
	// GenesisHash is the root of the DAG.
	GenesisHash externalapi.DomainHash

	// GhostdagK is the k-cluster bound. Mainnet-equivalent default is 18.
	GhostdagK externalapi.KType

	// MaxBlockLevel bounds the number of PoW levels in the pruning proof.
	MaxBlockLevel externalapi.BlockLevel

	// DeflationaryPhaseDAAScore is the DAA score at which the subsidy
	// schedule switches to its monotonically non-increasing deflationary curve.
	DeflationaryPhaseDAAScore uint64

	// PastMedianTimeWindowSize is the GHOSTDAG selected-parent-chain window
	// size used to compute past median time.
	PastMedianTimeWindowSize int

	// PruningDepth is the DAA-score distance behind the virtual selected
	// tip at which a block becomes eligible for pruning.
	PruningDepth uint64

	// FinalityDepth is the depth at which reorgs are refused.
	FinalityDepth uint64

	// TargetTimePerBlock and related retarget parameters are consumed by
	// the difficulty manager's expected-bits computation.
	TargetTimePerBlockMilliseconds int64
	DifficultyAdjustmentWindowSize int

	// BaseSubsidy is the subsidy (in sompi-equivalent base units) paid
	// before the deflationary phase begins.
	BaseSubsidy uint64
	// SubsidyReductionIntervalDAA is the DAA-score interval over which the
	// deflationary-phase subsidy halves.
	SubsidyReductionIntervalDAA uint64
}

// MainnetParams returns a representative parameter set, mirroring the
// shape (not the exact production constants) of kaspad's MAINNET_PARAMS.
func MainnetParams() *Params {
	return &Params{
		GhostdagK:                      18,
		MaxBlockLevel:                  225,
		DeflationaryPhaseDAAScore:      15_778_800,
		PastMedianTimeWindowSize:       87,
		PruningDepth:                   185_798,
		FinalityDepth:                  86_400,
		TargetTimePerBlockMilliseconds: 1000,
		DifficultyAdjustmentWindowSize: 2641,
		BaseSubsidy:                    50_000_000_000,
		SubsidyReductionIntervalDAA:    15_778_800,
	}
}

// SimnetParams returns small, fast-converging parameters suited to unit
// and integration tests (shrunk K, shallow finality), matching the
// teacher's pattern of a dedicated low-K simnet parameter set for tests.
func SimnetParams() *Params {
	p := MainnetParams()
	p.GhostdagK = 3
	p.PastMedianTimeWindowSize = 5
	p.PruningDepth = 1000
	p.FinalityDepth = 200
	p.DeflationaryPhaseDAAScore = 100
	p.BaseSubsidy = 50_000_000_000
	p.SubsidyReductionIntervalDAA = 100
	return p
}
