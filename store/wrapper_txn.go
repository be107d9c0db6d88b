package store

import (
	"bytes"

	"github.com/canopy-network/dualledger/lib"
	"github.com/dgraph-io/badger/v4"
)

// RWStoreI interface enforcement
var _ lib.RWStoreI = &TxnWrapper{}

// TxnWrapper is a wrapper over the badgerDB Txn object that conforms to the RWStoreI interface
type TxnWrapper struct {
	logger lib.LoggerI
	db     *badger.Txn
	prefix []byte
}

// NewTxnWrapper() creates a new TxnWrapper with the provided params
func NewTxnWrapper(db *badger.Txn, logger lib.LoggerI, prefix []byte) *TxnWrapper {
	return &TxnWrapper{
		logger: logger,
		db:     db,
		prefix: prefix,
	}
}

// Get() retrieves the value associated with the key from the BadgerDB transaction
func (t *TxnWrapper) Get(k []byte) ([]byte, lib.ErrorI) {
	item, err := t.db.Get(join(t.prefix, k))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, ErrStoreGet(err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, ErrStoreGet(err)
	}
	return val, nil
}

// Set() stores the key-value pair in the BadgerDB transaction
func (t *TxnWrapper) Set(k, v []byte) lib.ErrorI {
	if err := t.db.Set(join(t.prefix, k), v); err != nil {
		return ErrStoreSet(err)
	}
	return nil
}

// Delete() removes the key-value pair from the BadgerDB transaction
func (t *TxnWrapper) Delete(k []byte) lib.ErrorI {
	if err := t.db.Delete(join(t.prefix, k)); err != nil {
		return ErrStoreDelete(err)
	}
	return nil
}

// Close() discards the current transaction
func (t *TxnWrapper) Close() { t.db.Discard() }

// Iterator() creates a new iterator for the given prefix in the BadgerDB transaction
func (t *TxnWrapper) Iterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	parent := t.db.NewIterator(badger.IteratorOptions{
		Prefix: join(t.prefix, prefix),
	})
	parent.Rewind()
	return &Iterator{
		logger: t.logger,
		parent: parent,
		prefix: t.prefix,
		bound:  join(t.prefix, prefix),
	}, nil
}

// RevIterator() creates a new reverse iterator for the given prefix in the BadgerDB transaction
func (t *TxnWrapper) RevIterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	newPrefix := join(t.prefix, prefix)
	// the prefix option is left unset: a reverse seek must be able to land on (and step over) the prefix end
	parent := t.db.NewIterator(badger.IteratorOptions{Reverse: true})
	seekLast(parent, newPrefix)
	return &Iterator{
		logger: t.logger,
		parent: parent,
		prefix: t.prefix,
		bound:  newPrefix,
	}, nil
}

// seekLast() positions a reverse iterator at the last key for the given prefix
func seekLast(it *badger.Iterator, prefix []byte) {
	end := prefixEnd(prefix)
	if end == nil {
		it.Rewind()
		return
	}
	it.Seek(end)
	// a reverse seek lands on the first key <= end; end itself is outside the prefix
	if it.Valid() && bytes.Equal(it.Item().Key(), end) {
		it.Next()
	}
}

// prefixEnd() returns the smallest key that sorts after every key starting with prefix
// nil means no such key exists (empty or all 0xFF prefix)
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// join() concatenates a and b into a fresh slice
func join(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

// IteratorI interface enforcement
var _ lib.IteratorI = &Iterator{}

// Iterator implements a wrapper around BadgerDB's iterator but satisfies the IteratorI interface
type Iterator struct {
	logger  lib.LoggerI
	parent  *badger.Iterator
	prefix  []byte // wrapper prefix stripped from returned keys
	bound   []byte // full prefix every returned key must carry
	onClose func() // releases the read transaction the iterator was opened on
}

// Valid() checks if the iterator is positioned on a valid element
func (i *Iterator) Valid() bool { return i.parent.ValidForPrefix(i.bound) }

// Next() advances the iterator
func (i *Iterator) Next() { i.parent.Next() }

// Key() returns the current key with the wrapper prefix removed
func (i *Iterator) Key() []byte {
	return i.parent.Item().KeyCopy(nil)[len(i.prefix):]
}

// Value() returns a copy of the current value
func (i *Iterator) Value() []byte {
	value, err := i.parent.Item().ValueCopy(nil)
	if err != nil {
		i.logger.Error(err.Error())
	}
	return value
}

// Close() closes the iterator and the read transaction it owns, if any
func (i *Iterator) Close() {
	i.parent.Close()
	if i.onClose != nil {
		i.onClose()
	}
}
