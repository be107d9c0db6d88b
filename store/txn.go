package store

import (
	"bytes"
	"sort"
	"strings"

	"github.com/canopy-network/dualledger/lib"
)

// enforce the RWStoreI interface
var _ lib.RWStoreI = &Txn{}

/*
	Txn is an in-memory write session layered over a parent store.
	Set/Delete operations are buffered; reads merge the buffer with the parent as if Write() had already happened.
	Write() applies the buffer to the parent (atomically when the parent supports batches) and Discard() drops it.

	Sessions nest: a Txn may be the parent of another Txn, which is how a block-level overlay hosts a
	revertible per-transaction session.

	CONTRACT:
	- not thread safe; callers serialize access
	- deleted values read back as nil
*/
type Txn struct {
	parent lib.RWStoreI // store to Write() to
	opSet
}

// opSet maintains the buffered operations sorted lexicographically by key
type opSet struct {
	ops    map[string]op // [string(key)] -> set/del operation
	sorted []string      // ops keys in lexicographical order; needed for iteration and deterministic writes
}

// op has the value portion of the operation and whether it's a *delete* or a *set*
type op struct {
	value  []byte // value of key value pair
	delete bool   // is operation delete
}

// NewTxn() creates a new, empty session over parent
func NewTxn(parent lib.RWStoreI) *Txn {
	return &Txn{parent: parent, opSet: newOpSet()}
}

func newOpSet() opSet { return opSet{ops: make(map[string]op), sorted: make([]string, 0)} }

// Get() retrieves the value for a given key from either the buffered operations or the parent store
func (c *Txn) Get(key []byte) ([]byte, lib.ErrorI) {
	if v, found := c.ops[string(key)]; found {
		return v.value, nil
	}
	return c.parent.Get(key)
}

// Set() buffers a write of value under key
func (c *Txn) Set(key, value []byte) lib.ErrorI {
	c.update(string(key), bytes.Clone(value), false)
	return nil
}

// Delete() buffers a removal of key
func (c *Txn) Delete(key []byte) lib.ErrorI {
	c.update(string(key), nil, true)
	return nil
}

// Len() returns the number of buffered keys
func (c *Txn) Len() int { return len(c.sorted) }

// update() modifies or adds an operation for a key and maintains order
func (c *Txn) update(key string, v []byte, delete bool) {
	if _, found := c.ops[key]; !found {
		i := sort.SearchStrings(c.sorted, key)
		c.sorted = append(c.sorted, "")
		copy(c.sorted[i+1:], c.sorted[i:])
		c.sorted[i] = key
	}
	c.ops[key] = op{value: v, delete: delete}
}

// Iterator() returns a merged iterator over the buffered operations and the parent for prefix
func (c *Txn) Iterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	parent, err := c.parent.Iterator(prefix)
	if err != nil {
		return nil, err
	}
	return newTxnIterator(parent, c.opSet, prefix, false), nil
}

// RevIterator() returns a reverse merged iterator over the buffered operations and the parent for prefix
func (c *Txn) RevIterator(prefix []byte) (lib.IteratorI, lib.ErrorI) {
	parent, err := c.parent.RevIterator(prefix)
	if err != nil {
		return nil, err
	}
	return newTxnIterator(parent, c.opSet, prefix, true), nil
}

// Discard() drops every buffered operation; the session stays usable
func (c *Txn) Discard() { c.opSet = newOpSet() }

// Write() applies the buffered operations to the parent in key order and empties the session
func (c *Txn) Write() lib.ErrorI {
	apply := func(w lib.WStoreI) lib.ErrorI {
		for _, k := range c.sorted {
			v := c.ops[k]
			if v.delete {
				if err := w.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := w.Set([]byte(k), v.value); err != nil {
				return err
			}
		}
		return nil
	}
	var err lib.ErrorI
	// a database parent takes the whole session as one atomic batch
	if db, ok := c.parent.(lib.StoreI); ok {
		err = db.Batch(apply)
	} else {
		err = apply(c.parent)
	}
	if err != nil {
		return err
	}
	c.opSet = newOpSet()
	return nil
}

// enforce the Iterator interface
var _ lib.IteratorI = &TxnIterator{}

// TxnIterator is a reversible, merged iterator of the parent and the buffered operations
type TxnIterator struct {
	parent lib.IteratorI
	opSet
	prefix  string
	index   int
	reverse bool
	useTxn  bool
}

// newTxnIterator() initializes a merged iterator positioned at the first entry in the traversal direction
func newTxnIterator(parent lib.IteratorI, s opSet, prefix []byte, reverse bool) *TxnIterator {
	it := &TxnIterator{parent: parent, opSet: s, prefix: string(prefix), reverse: reverse}
	if reverse {
		if end := prefixEnd(prefix); end == nil {
			it.index = len(s.sorted) - 1
		} else {
			it.index = sort.SearchStrings(s.sorted, string(end)) - 1
		}
	} else {
		it.index = sort.SearchStrings(s.sorted, it.prefix)
	}
	return it
}

// Close() closes the merged iterator
func (c *TxnIterator) Close() { c.parent.Close() }

// Next() advances past the current entry, moving both sides when their keys are equal
func (c *TxnIterator) Next() {
	switch {
	case !c.parent.Valid():
		c.bufNext()
	case c.bufDone():
		c.parent.Next()
	default:
		switch c.compare(c.bufKey(), c.parent.Key()) {
		case 1:
			c.parent.Next()
		case 0:
			c.parent.Next()
			c.bufNext()
		case -1:
			c.bufNext()
		}
	}
}

// Key() returns the current key from either the buffered operations or the parent store
func (c *TxnIterator) Key() []byte {
	if c.useTxn {
		return c.bufKey()
	}
	return c.parent.Key()
}

// Value() returns the current value from either the buffered operations or the parent store
func (c *TxnIterator) Value() []byte {
	if c.useTxn {
		return c.bufOp().value
	}
	return c.parent.Value()
}

// Valid() positions on the next visible entry (skipping buffered deletes) and reports whether one exists
func (c *TxnIterator) Valid() bool {
	for {
		if !c.parent.Valid() {
			// only the buffer remains; skip deletes
			for !c.bufDone() && c.bufOp().delete {
				c.bufNext()
			}
			c.useTxn = true
			break
		}
		if c.bufDone() {
			c.useTxn = false
			break
		}
		switch c.compare(c.bufKey(), c.parent.Key()) {
		case 1: // parent is first
			c.useTxn = false
		case 0: // buffer shadows parent
			if c.bufOp().delete {
				c.parent.Next()
				c.bufNext()
				continue
			}
			c.useTxn = true
		case -1: // buffer is first
			if c.bufOp().delete {
				c.bufNext()
				continue
			}
			c.useTxn = true
		}
		break
	}
	return !c.bufDone() || c.parent.Valid()
}

// bufDone() is true once the buffer index left the slice or the prefix range
func (c *TxnIterator) bufDone() bool {
	if c.index < 0 || c.index >= len(c.sorted) {
		return true
	}
	return !strings.HasPrefix(c.sorted[c.index], c.prefix)
}

func (c *TxnIterator) bufKey() []byte { return []byte(c.sorted[c.index]) }

func (c *TxnIterator) bufOp() op { return c.ops[c.sorted[c.index]] }

// compare() compares two keys in traversal order
func (c *TxnIterator) compare(a, b []byte) int {
	if c.reverse {
		return -bytes.Compare(a, b)
	}
	return bytes.Compare(a, b)
}

func (c *TxnIterator) bufNext() {
	if c.reverse {
		c.index--
	} else {
		c.index++
	}
}
