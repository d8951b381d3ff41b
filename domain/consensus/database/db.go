// Package database wraps a badger.DB as the core's key-value store,
// implementing model.DBManager / model.DBTransaction. Badger is the
// closest Go-ecosystem analogue to the Rust pipeline's RocksDB WriteBatch
// (kaspad itself ships an embedded badger-backed store), and the teacher's
// own infrastructure/db/database.DataAccessor interface is already
// engine-agnostic, so swapping the concrete engine for Badger here
// continues the teacher's abstraction rather than breaking it.
package database

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/kasparov-dag/corenode/domain/consensus/model"
	"github.com/kasparov-dag/corenode/infrastructure/logger"
	"github.com/pkg/errors"
)

var log = logger.NewSubsystem("database")

// schemaVersion is written to a reserved key on first open and checked on
// every subsequent open; a mismatch aborts startup (spec.md §6).
const schemaVersion = byte(1)

var schemaVersionKey = []byte("schema-version")

// DB is the consensus key-value store.
type DB struct {
	badgerDB *badger.DB
}

// Open opens or creates a badger database at dir and checks its schema version.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	badgerDB, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db := &DB{badgerDB: badgerDB}
	if err := db.checkOrInitSchemaVersion(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) checkOrInitSchemaVersion() error {
	existing, err := db.Get(schemaVersionKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		tx, beginErr := db.Begin()
		if beginErr != nil {
			return beginErr
		}
		if putErr := tx.Put(schemaVersionKey, []byte{schemaVersion}); putErr != nil {
			return putErr
		}
		return tx.Commit()
	}
	if len(existing) != 1 || existing[0] != schemaVersion {
		return errors.Errorf("on-disk schema version %v is incompatible with expected version %d", existing, schemaVersion)
	}
	return nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.badgerDB.Close()
}

// Get reads a single key outside of any transaction, lock-free per
// spec.md §5 ("Key-value store: shared, lock-free reads").
func (db *DB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := db.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Has reports whether key exists.
func (db *DB) Has(key []byte) (bool, error) {
	_, err := db.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Begin opens a new batched write transaction. Each pipeline commit uses
// exactly one of these (spec.md §2: "each stage writes a batched
// transaction ... and then releases locks").
func (db *DB) Begin() (model.DBTransaction, error) {
	return &transaction{db: db, batch: db.badgerDB.NewWriteBatch()}, nil
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

type transaction struct {
	db    *DB
	batch *badger.WriteBatch
	done  bool
}

func (tx *transaction) Put(key, value []byte) error {
	if tx.done {
		return errors.New("transaction already finalized")
	}
	return tx.batch.Set(key, value)
}

func (tx *transaction) Delete(key []byte) error {
	if tx.done {
		return errors.New("transaction already finalized")
	}
	return tx.batch.Delete(key)
}

func (tx *transaction) Commit() error {
	if tx.done {
		return errors.New("transaction already finalized")
	}
	tx.done = true
	if err := tx.batch.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush write batch")
	}
	return nil
}

func (tx *transaction) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.batch.Cancel()
	return nil
}
