// Package utxo provides the core's minimal UTXO-diff bookkeeping: an
// add/remove outpoint set sufficient to satisfy externalapi.UTXODiff and
// drive a multiset commitment, adapted from the teacher's
// domain/consensus/utils/utxo package (mutable_utxo_diff.go, utxo_diff.go)
// and consensus/utxo/utxo_ecmh.go. Amount/script-level UTXO entry data is
// deliberately not modeled here: that remains the UtxoView collaborator's
// concern (spec.md §1 Non-goals).
package utxo

import (
	"fmt"

	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
)

type outpointSet map[externalapi.DomainOutpoint]struct{}

func (s outpointSet) clone() outpointSet {
	cloned := make(outpointSet, len(s))
	for outpoint := range s {
		cloned[outpoint] = struct{}{}
	}
	return cloned
}

// Diff is the core's UTXODiff implementation: the set of outpoints a
// transaction set adds versus removes relative to some base UTXO state.
type Diff struct {
	toAdd    outpointSet
	toRemove outpointSet
}

// NewDiff returns an empty Diff.
func NewDiff() *Diff {
	return &Diff{toAdd: outpointSet{}, toRemove: outpointSet{}}
}

func (d *Diff) String() string {
	return fmt.Sprintf("toAdd: %d outpoints, toRemove: %d outpoints", len(d.toAdd), len(d.toRemove))
}

// WithDiff combines d with other, canceling out outpoints that one side
// adds and the other removes, mirroring the teacher's withDiff.
func (d *Diff) WithDiff(other externalapi.UTXODiff) (externalapi.UTXODiff, error) {
	o, ok := other.(*Diff)
	if !ok {
		return nil, errors.New("other is not a *utxo.Diff")
	}

	combined := &Diff{toAdd: d.toAdd.clone(), toRemove: d.toRemove.clone()}
	for outpoint := range o.toAdd {
		if err := combined.addOutpoint(outpoint); err != nil {
			return nil, err
		}
	}
	for outpoint := range o.toRemove {
		if err := combined.removeOutpoint(outpoint); err != nil {
			return nil, err
		}
	}
	return combined, nil
}

func (d *Diff) addOutpoint(outpoint externalapi.DomainOutpoint) error {
	if _, ok := d.toRemove[outpoint]; ok {
		delete(d.toRemove, outpoint)
		return nil
	}
	if _, ok := d.toAdd[outpoint]; ok {
		return errors.Errorf("cannot add outpoint %s twice", outpoint.TransactionID.String())
	}
	d.toAdd[outpoint] = struct{}{}
	return nil
}

func (d *Diff) removeOutpoint(outpoint externalapi.DomainOutpoint) error {
	if _, ok := d.toAdd[outpoint]; ok {
		delete(d.toAdd, outpoint)
		return nil
	}
	if _, ok := d.toRemove[outpoint]; ok {
		return errors.Errorf("cannot remove outpoint %s twice", outpoint.TransactionID.String())
	}
	d.toRemove[outpoint] = struct{}{}
	return nil
}

// AddTransaction stages transaction's inputs as removed outpoints and its
// outputs as added outpoints, mirroring the teacher's
// mutableUTXODiff.AddTransaction. blockBlueScore is accepted for symmetry
// with the teacher's signature but not recorded: entry-level bookkeeping
// (amount, blue score, coinbase flag) belongs to the UtxoView collaborator.
func (d *Diff) AddTransaction(tx *externalapi.DomainTransaction, blockBlueScore uint64) error {
	_ = blockBlueScore
	for _, input := range tx.Inputs {
		if err := d.removeOutpoint(input.PreviousOutpoint); err != nil {
			return err
		}
	}
	for i := range tx.Outputs {
		outpoint := externalapi.DomainOutpoint{TransactionID: *tx.ID(), Index: uint32(i)}
		if err := d.addOutpoint(outpoint); err != nil {
			return err
		}
	}
	return nil
}

// ToAdd returns the set of outpoints this diff adds.
func (d *Diff) ToAdd() []externalapi.DomainOutpoint {
	outpoints := make([]externalapi.DomainOutpoint, 0, len(d.toAdd))
	for outpoint := range d.toAdd {
		outpoints = append(outpoints, outpoint)
	}
	return outpoints
}

// ToRemove returns the set of outpoints this diff removes.
func (d *Diff) ToRemove() []externalapi.DomainOutpoint {
	outpoints := make([]externalapi.DomainOutpoint, 0, len(d.toRemove))
	for outpoint := range d.toRemove {
		outpoints = append(outpoints, outpoint)
	}
	return outpoints
}

var _ externalapi.UTXODiff = (*Diff)(nil)

// Commitment tracks the rolling ECMH multiset commitment over the UTXO set,
// via github.com/kaspanet/go-secp256k1, mirroring the teacher's
// consensus/utxo/utxo_ecmh.go AddUTXOToMultiset/RemoveUTXOFromMultiset.
type Commitment struct {
	multiset *secp256k1.MultiSet
}

// NewCommitment returns the empty multiset commitment.
func NewCommitment() *Commitment {
	return &Commitment{multiset: secp256k1.NewMultiset()}
}

// Add folds outpoint into the commitment.
func (c *Commitment) Add(outpoint externalapi.DomainOutpoint) {
	c.multiset.Add(serializeOutpoint(outpoint))
}

// Remove unfolds outpoint from the commitment.
func (c *Commitment) Remove(outpoint externalapi.DomainOutpoint) {
	c.multiset.Remove(serializeOutpoint(outpoint))
}

// Hash returns the commitment's current finalized hash.
func (c *Commitment) Hash() externalapi.DomainHash {
	return externalapi.DomainHash(*c.multiset.Finalize())
}

func serializeOutpoint(outpoint externalapi.DomainOutpoint) []byte {
	serialized := make([]byte, externalapi.DomainHashSize+4)
	copy(serialized, outpoint.TransactionID[:])
	serialized[externalapi.DomainHashSize] = byte(outpoint.Index)
	serialized[externalapi.DomainHashSize+1] = byte(outpoint.Index >> 8)
	serialized[externalapi.DomainHashSize+2] = byte(outpoint.Index >> 16)
	serialized[externalapi.DomainHashSize+3] = byte(outpoint.Index >> 24)
	return serialized
}
