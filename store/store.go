package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/canopy-network/dualledger/lib"
	"github.com/dgraph-io/badger/v4"
)

var _ lib.StoreI = &Store{} // enforce the Store interface

/*
The Store is the node's single key value database, a thin layer over one BadgerDB instance.

Every component owns a key prefix inside it (native ledger, evm ledger, staking, replay history).
Reads and single writes open short lived badger transactions; Batch() groups many writes into one
atomic badger transaction, which is what a session's Write() lands on.

Snapshot() appends an incremental badger backup to the data directory every BackupInterval heights.
*/
type Store struct {
	db             *badger.DB  // underlying database
	log            lib.LoggerI // logger
	inMemory       bool        // no durable storage behind the db
	backupDir      string      // where incremental backups are written
	backupInterval int64       // heights between backups (0 disables)
	mu             sync.Mutex  // guards lastBackup
	lastBackup     uint64      // badger version covered by the previous backup
}

// New() creates a new instance of a StoreI either in memory or an actual disk DB
func New(config lib.Config, l lib.LoggerI) (*Store, lib.ErrorI) {
	if config.StoreConfig.InMemory {
		return NewStoreInMemory(l)
	}
	return NewStore(config.StoreConfig, l)
}

// NewStore() opens (or creates) the on-disk database under the data directory
func NewStore(config lib.StoreConfig, log lib.LoggerI) (*Store, lib.ErrorI) {
	path := filepath.Join(config.DataDirPath, config.DBName)
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{log}).
		WithLoggingLevel(badger.WARNING)
	if config.MemTableSize > 0 {
		opts = opts.WithMemTableSize(config.MemTableSize)
	}
	if config.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(config.ValueLogFileSize)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &Store{
		db:             db,
		log:            log,
		backupDir:      filepath.Join(config.DataDirPath, lib.BackupDirPath),
		backupInterval: config.BackupInterval,
	}, nil
}

// NewStoreInMemory() creates a new instance of a mem DB
func NewStoreInMemory(log lib.LoggerI) (*Store, lib.ErrorI) {
	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(badgerLogger{log}).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, ErrOpenDB(err)
	}
	return &Store{db: db, log: log, inMemory: true}, nil
}

// Get() returns the value bytes under key or nil if absent
func (s *Store) Get(key []byte) (value []byte, err lib.ErrorI) {
	if e := s.db.View(func(txn *badger.Txn) error {
		value, err = NewTxnWrapper(txn, s.log, nil).Get(key)
		return nil
	}); e != nil {
		return nil, ErrStoreGet(e)
	}
	return
}

// Set() writes a single key value pair
func (s *Store) Set(key, value []byte) lib.ErrorI {
	return s.Batch(func(w lib.WStoreI) lib.ErrorI { return w.Set(key, value) })
}

// Delete() removes a single key
func (s *Store) Delete(key []byte) lib.ErrorI {
	return s.Batch(func(w lib.WStoreI) lib.ErrorI { return w.Delete(key) })
}

// Batch() runs fn inside one read-write badger transaction; either all of fn's writes land or none do
func (s *Store) Batch(fn func(w lib.WStoreI) lib.ErrorI) lib.ErrorI {
	var inner lib.ErrorI
	err := s.db.Update(func(txn *badger.Txn) error {
		if inner = fn(NewTxnWrapper(txn, s.log, nil)); inner != nil {
			return inner
		}
		return nil
	})
	if inner != nil {
		return inner
	}
	if err != nil {
		return ErrCommitDB(err)
	}
	return nil
}

// Iterator() opens a forward iterator on a fresh read transaction; Close() releases both
func (s *Store) Iterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	txn := s.db.NewTransaction(false)
	it, err := NewTxnWrapper(txn, s.log, nil).Iterator(prefix)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	it.(*Iterator).onClose = txn.Discard
	return it, nil
}

// RevIterator() opens a reverse iterator on a fresh read transaction; Close() releases both
func (s *Store) RevIterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	txn := s.db.NewTransaction(false)
	it, err := NewTxnWrapper(txn, s.log, nil).RevIterator(prefix)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	it.(*Iterator).onClose = txn.Discard
	return it, nil
}

// Flush() forces the write ahead log to disk
func (s *Store) Flush() lib.ErrorI {
	if s.inMemory {
		return nil
	}
	if err := s.db.Sync(); err != nil {
		return ErrFlushDB(err)
	}
	return nil
}

// Snapshot() writes an incremental backup of everything changed since the previous one
// no-op when backups are disabled, when height is off-interval or for in-memory databases
func (s *Store) Snapshot(height int64) lib.ErrorI {
	if s.inMemory || s.backupInterval <= 0 || height%s.backupInterval != 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.backupDir, os.ModePerm); err != nil {
		return ErrSnapshot(err)
	}
	file, err := os.Create(filepath.Join(s.backupDir, fmt.Sprintf("backup-%d.bak", height)))
	if err != nil {
		return ErrSnapshot(err)
	}
	defer file.Close()
	since, err := s.db.Backup(file, s.lastBackup)
	if err != nil {
		return ErrSnapshot(err)
	}
	if err = file.Sync(); err != nil {
		return ErrSnapshot(err)
	}
	s.log.Debugf("Wrote incremental backup at height %d (versions %d..%d)", height, s.lastBackup, since)
	s.lastBackup = since
	return nil
}

// Close() gracefully stops the database
func (s *Store) Close() lib.ErrorI {
	if err := s.db.Close(); err != nil {
		return ErrCloseDB(err)
	}
	return nil
}

// badgerLogger routes badger's internal logging through the node logger
type badgerLogger struct{ l lib.LoggerI }

func (b badgerLogger) Errorf(f string, a ...interface{})   { b.l.Errorf("badger: "+f, a...) }
func (b badgerLogger) Warningf(f string, a ...interface{}) { b.l.Warnf("badger: "+f, a...) }
func (b badgerLogger) Infof(f string, a ...interface{})    { b.l.Debugf("badger: "+f, a...) }
func (b badgerLogger) Debugf(f string, a ...interface{})   { b.l.Debugf("badger: "+f, a...) }
