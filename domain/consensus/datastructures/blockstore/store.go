// Package blockstore persists validated transaction bodies keyed by block
// hash, following the same cache/staging idiom as headerstore, so the
// virtual processor can re-derive a chain block's UTXO diff on reorg
// reapplication without re-downloading it.
package blockstore

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/kasparov-dag/corenode/domain/consensus/database"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// Store is the block body store.
type Store struct {
	mu      sync.RWMutex
	cache   map[externalapi.DomainHash]*externalapi.DomainBlock
	staging map[externalapi.DomainHash]*externalapi.DomainBlock
}

// New returns a new, empty block store.
func New() *Store {
	return &Store{cache: map[externalapi.DomainHash]*externalapi.DomainBlock{}}
}

// Block returns the validated block for hash.
func (s *Store) Block(hash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if block, ok := s.staging[*hash]; ok {
		return block, nil
	}
	if block, ok := s.cache[*hash]; ok {
		return block, nil
	}
	return nil, errors.Errorf("block not found for %s", hash)
}

// Stage buffers a block write for hash.
func (s *Store) Stage(hash *externalapi.DomainHash, block *externalapi.DomainBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staging == nil {
		s.staging = map[externalapi.DomainHash]*externalapi.DomainBlock{}
	}
	s.staging[*hash] = block
}

// IsStaged reports whether there are buffered mutations awaiting Commit.
func (s *Store) IsStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staging) > 0
}

// Commit flushes staged blocks into the cache and write batch.
func (s *Store) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, block := range s.staging {
		encoded, err := serialize(block)
		if err != nil {
			return err
		}
		if err := dbTx.Put(database.BucketBlocks.HashKey(&hash), encoded); err != nil {
			return err
		}
		s.cache[hash] = block
	}
	s.staging = nil
	return nil
}

type serializableOutpoint struct {
	TransactionID externalapi.DomainHash
	Index         uint32
}

type serializableInput struct {
	PreviousOutpoint serializableOutpoint
	SignatureScript  []byte
	Sequence         uint64
}

type serializableOutput struct {
	Value        uint64
	ScriptPubKey []byte
}

type serializableTransaction struct {
	Version  uint16
	Inputs   []serializableInput
	Outputs  []serializableOutput
	LockTime uint64
	Payload  []byte
	ID       externalapi.DomainHash
}

type serializableBlock struct {
	HeaderHash   externalapi.DomainHash
	Transactions []serializableTransaction
}

func serialize(block *externalapi.DomainBlock) ([]byte, error) {
	s := serializableBlock{HeaderHash: *block.Hash()}
	for _, tx := range block.Transactions {
		st := serializableTransaction{
			Version:  tx.Version,
			LockTime: tx.LockTime,
			Payload:  tx.Payload,
		}
		if tx.ID() != nil {
			st.ID = *tx.ID()
		}
		for _, input := range tx.Inputs {
			st.Inputs = append(st.Inputs, serializableInput{
				PreviousOutpoint: serializableOutpoint{
					TransactionID: input.PreviousOutpoint.TransactionID,
					Index:         input.PreviousOutpoint.Index,
				},
				SignatureScript: input.SignatureScript,
				Sequence:        input.Sequence,
			})
		}
		for _, output := range tx.Outputs {
			st.Outputs = append(st.Outputs, serializableOutput{
				Value:        output.Value,
				ScriptPubKey: output.ScriptPubKey,
			})
		}
		s.Transactions = append(s.Transactions, st)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "failed to encode block")
	}
	return buf.Bytes(), nil
}

var _ model.BlockStore = (*Store)(nil)
