// Package coinbasemanager implements the subsidy schedule referenced in
// spec.md §4.3 ("coinbase subsidy... compare against expected_subsidy(daa_score)
// from a subsidy schedule, monotonically non-increasing after a
// deflationary-start threshold"), grounded on the shape of the teacher's
// dagconfig-driven subsidy parameters.
package coinbasemanager

import (
	"encoding/binary"

	"github.com/kasparov-dag/corenode/config"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// subsidyFieldSize is the width of the subsidy prefix in a coinbase
// transaction's payload; the remainder is the miner's script public key.
const subsidyFieldSize = 8

// EncodeCoinbasePayload builds a coinbase payload from its component parts,
// the inverse of ExtractCoinbaseData.
func EncodeCoinbasePayload(data *model.CoinbaseData) []byte {
	payload := make([]byte, subsidyFieldSize+len(data.ScriptPubKey))
	binary.LittleEndian.PutUint64(payload[:subsidyFieldSize], data.Subsidy)
	copy(payload[subsidyFieldSize:], data.ScriptPubKey)
	return payload
}

// ExtractCoinbaseData parses a coinbase transaction's payload into its
// declared subsidy and the miner's script public key.
func (cm *Manager) ExtractCoinbaseData(tx *externalapi.DomainTransaction) (*model.CoinbaseData, error) {
	if len(tx.Payload) < subsidyFieldSize {
		return nil, errors.Errorf("coinbase payload too short: %d bytes", len(tx.Payload))
	}
	return &model.CoinbaseData{
		Subsidy:      binary.LittleEndian.Uint64(tx.Payload[:subsidyFieldSize]),
		ScriptPubKey: append([]byte{}, tx.Payload[subsidyFieldSize:]...),
	}, nil
}

// Manager computes the expected coinbase subsidy for a given DAA score.
type Manager struct {
	params *config.Params
}

// New returns a Manager reading its schedule from params.
func New(params *config.Params) *Manager {
	return &Manager{params: params}
}

// CalcBlockSubsidy returns the subsidy payable to a block at daaScore: the
// flat BaseSubsidy before DeflationaryPhaseDAAScore, halving once per
// SubsidyReductionIntervalDAA elapsed thereafter, floored at 1 so the
// schedule never reaches zero.
func (cm *Manager) CalcBlockSubsidy(daaScore uint64) uint64 {
	if daaScore < cm.params.DeflationaryPhaseDAAScore {
		return cm.params.BaseSubsidy
	}
	if cm.params.SubsidyReductionIntervalDAA == 0 {
		return cm.params.BaseSubsidy
	}

	elapsed := daaScore - cm.params.DeflationaryPhaseDAAScore
	reductions := elapsed / cm.params.SubsidyReductionIntervalDAA

	subsidy := cm.params.BaseSubsidy
	for i := uint64(0); i < reductions; i++ {
		if subsidy <= 1 {
			return 1
		}
		subsidy /= 2
	}
	return subsidy
}

var _ model.CoinbaseManager = (*Manager)(nil)
