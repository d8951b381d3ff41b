// Package difficultymanager converts between a header's compact `bits`
// encoding and its underlying big.Int target/work values, and computes the
// expected retarget bits over a DAA window (spec.md §4 "Difficulty (bits)
// against expected retarget"), grounded on the teacher's
// util.BigToCompact/CompactToBig pattern (consensus/blockdag/dag.go).
package difficultymanager

import (
	"math/big"

	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
)

// Manager computes and validates proof-of-work difficulty.
type Manager struct {
	params *config.Params
}

// New returns a Manager reading its retarget parameters from params.
func New(params *config.Params) *Manager {
	return &Manager{params: params}
}

// CompactToBig expands a compact nBits encoding into its big.Int target,
// mirroring the teacher's util.CompactToBig.
func CompactToBig(bits uint32) *big.Int {
	mantissa := bits & 0x007fffff
	exponent := uint(bits >> 24)

	var result big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		result.SetUint64(uint64(mantissa))
	} else {
		result.SetUint64(uint64(mantissa))
		result.Lsh(&result, 8*(exponent-3))
	}

	if bits&0x00800000 != 0 {
		result.Neg(&result)
	}
	return &result
}

// BigToCompact packs a big.Int target into its compact nBits encoding,
// mirroring the teacher's util.BigToCompact.
func BigToCompact(target *big.Int) uint32 {
	if target.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(target.Bytes()))

	if exponent <= 3 {
		mantissa = uint32(target.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(target)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if target.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// workFromBits returns the work contributed by a block with the given bits:
// floor(2^256 / (target+1)), the standard difficulty-to-work conversion
// (spec.md §4.2 step 5, "work(·) is derived from bits").
func workFromBits(bits uint32) *externalapi.BlueWork {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return externalapi.ZeroBlueWork()
	}

	denominator := new(big.Int).Add(target, big.NewInt(1))
	maxWork := new(big.Int).Lsh(big.NewInt(1), 256)
	work := new(big.Int).Div(maxWork, denominator)
	return externalapi.BlueWorkFromBytes(work.Bytes())
}

// WorkFromBits exposes workFromBits for use by header processing, which
// needs each block's own contributed work to feed blue_work accumulation.
func (dm *Manager) WorkFromBits(bits uint32) *externalapi.BlueWork {
	return workFromBits(bits)
}

// RequiredDifficulty computes the expected bits for a new block given the
// timestamps and bits of the preceding DifficultyAdjustmentWindowSize
// blocks along the selected-parent chain, oldest first. A simple windowed
// average retarget: scale the window's average target by the ratio of
// actual to target elapsed time.
func (dm *Manager) RequiredDifficulty(windowTimestamps []int64, windowBits []uint32) uint32 {
	if len(windowBits) == 0 {
		return 0
	}
	if len(windowBits) < 2 {
		return windowBits[len(windowBits)-1]
	}

	total := new(big.Int)
	for _, bits := range windowBits {
		total.Add(total, CompactToBig(bits))
	}
	avgTarget := total.Div(total, big.NewInt(int64(len(windowBits))))

	actualElapsed := windowTimestamps[len(windowTimestamps)-1] - windowTimestamps[0]
	expectedElapsed := dm.params.TargetTimePerBlockMilliseconds * int64(len(windowTimestamps)-1)
	if actualElapsed <= 0 {
		actualElapsed = 1
	}
	if expectedElapsed <= 0 {
		expectedElapsed = 1
	}

	newTarget := new(big.Int).Mul(avgTarget, big.NewInt(actualElapsed))
	newTarget.Div(newTarget, big.NewInt(expectedElapsed))

	return BigToCompact(newTarget)
}
