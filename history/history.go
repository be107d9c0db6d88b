// Package history is the replay history: the set of native transaction fingerprints ever scheduled for application.
package history

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-network/dualledger/lib"
)

var historyPrefix = []byte("h/") // h/<fingerprint> -> record

// record is the persisted value under a fingerprint
type record struct {
	Height int64 `cramberry:"1"`
}

// Entry is a fingerprint waiting to be written
type Entry struct {
	Fingerprint []byte
	Height      int64
}

/*
TxHistory answers "was this transaction already scheduled?" for admission and delivery.

Reads go straight to the database under a shared lock. Writes are queued by Record() and persisted in
batches by a single background writer that takes the exclusive lock per batch. Record() never blocks the caller.

Because writes are asynchronous, a fingerprint recorded during DeliverTx becomes visible to Contains()
only once its batch lands (normally within FlushIntervalMS). A duplicate submitted inside that window may
pass admission; the native ledger's double spend checks reject it at delivery.
*/
type TxHistory struct {
	db      lib.StoreI
	log     lib.LoggerI
	metrics *lib.Metrics
	mu      sync.RWMutex
	w       *writer
	closed  atomic.Bool
}

// New() starts the background writer
func New(config lib.HistoryConfig, db lib.StoreI, metrics *lib.Metrics, log lib.LoggerI) *TxHistory {
	h := &TxHistory{db: db, log: log, metrics: metrics}
	h.w = newWriter(config, h.write, metrics, log)
	h.w.start()
	return h
}

// Contains() reports whether the fingerprint has been durably recorded
func (h *TxHistory) Contains(fingerprint []byte) (bool, lib.ErrorI) {
	_, found, err := h.Lookup(fingerprint)
	return found, err
}

// Lookup() returns the height a fingerprint was recorded at
func (h *TxHistory) Lookup(fingerprint []byte) (height int64, found bool, err lib.ErrorI) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bz, err := h.db.Get(key(fingerprint))
	if err != nil || bz == nil {
		return 0, false, err
	}
	r := new(record)
	if err = lib.Unmarshal(bz, r); err != nil {
		return 0, false, err
	}
	return r.Height, true, nil
}

// Record() schedules the fingerprint for insertion and returns immediately
func (h *TxHistory) Record(fingerprint []byte, height int64) {
	if h.closed.Load() {
		h.log.Warnf("Dropping history entry %s recorded after close", lib.BytesToTruncatedString(fingerprint))
		return
	}
	if !h.w.add(Entry{Fingerprint: append([]byte{}, fingerprint...), Height: height}) {
		// the native ledger still refuses the replay; only admission and lookups miss it
		h.log.Errorf("History backlog full, dropping entry %s at height %d", lib.BytesToTruncatedString(fingerprint), height)
	}
}

// Sync() blocks until every entry recorded before the call is durable or timeout elapses
func (h *TxHistory) Sync(timeout time.Duration) lib.ErrorI { return h.w.sync(timeout) }

// Close() writes whatever is still queued and stops the writer
func (h *TxHistory) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.w.stop()
}

// write() persists one batch atomically under the exclusive lock
func (h *TxHistory) write(batch []Entry) lib.ErrorI {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Batch(func(w lib.WStoreI) lib.ErrorI {
		for _, e := range batch {
			bz, err := lib.Marshal(&record{Height: e.Height})
			if err != nil {
				return err
			}
			if err = w.Set(key(e.Fingerprint), bz); err != nil {
				return err
			}
		}
		return nil
	})
}

func key(fingerprint []byte) []byte {
	return append(append([]byte{}, historyPrefix...), fingerprint...)
}
