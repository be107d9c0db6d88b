package controller

import (
	"bytes"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
)

// TxCatalog names the ledger a raw transaction targets
type TxCatalog int

const (
	UnknownTx TxCatalog = iota // matches neither wire format
	NativeTx                   // a json native ledger transaction
	EvmTx                      // an evm tagged RLP transaction
)

// String() returns the catalog label used in logs and metrics
func (t TxCatalog) String() string {
	switch t {
	case NativeTx:
		return "native"
	case EvmTx:
		return "evm"
	default:
		return "unknown"
	}
}

// Classify() inspects the leading bytes only; it never decodes and never fails
func Classify(raw []byte) TxCatalog {
	// the tag alone, without a payload, is not an evm transaction
	if len(raw) > len(ledger.EVMTxTag) && bytes.HasPrefix(raw, []byte(ledger.EVMTxTag)) {
		return EvmTx
	}
	if trimmed := bytes.TrimLeft(raw, " \t\r\n"); len(trimmed) != 0 && trimmed[0] == '{' {
		return NativeTx
	}
	return UnknownTx
}

// CheckTx() is the mempool admission gate; it never mutates committed state
func (c *Controller) CheckTx(req lib.RequestCheckTx) (resp lib.ResponseCheckTx) {
	catalog := Classify(req.Tx)
	defer func() { c.metrics.ObserveCheckTx(catalog.String(), resp.Code) }()
	height := c.height.Load()
	switch catalog {
	case NativeTx:
		tx, err := ledger.DecodeTransaction(req.Tx)
		if err != nil {
			return rejectCheck(lib.CodeTypeRejected, err)
		}
		c.monitorEarlyEVM(height, tx)
		if !tx.ValidInABCI() {
			return rejectCheck(lib.CodeTypeRejected, ErrNotAllowedInABCI())
		}
		// rechecks go through the history too: the transaction may have been delivered since first admission
		found, err := c.history.Contains(tx.Hash())
		if err != nil {
			return rejectCheck(lib.CodeTypeRejected, err)
		}
		if found {
			return rejectCheck(lib.CodeTypeRejected, ErrHistoricalTx(tx.Hash()))
		}
		return lib.ResponseCheckTx{Code: lib.CodeTypeOK, Data: tx.Hash()}
	case EvmTx:
		if c.evmDisabled(height) {
			return rejectCheck(lib.CodeTypeEVMDisabled, ErrEVMDisabled())
		}
		c.monitorEarlyEVM(height, nil)
		c.evmMu.RLock()
		defer c.evmMu.RUnlock()
		return c.evm.CheckTx(req)
	default:
		return rejectCheck(lib.CodeTypeRejected, ErrUnknownTransaction())
	}
}

// DeliverTx() applies one transaction of the current block to the ledger its catalog designates
func (c *Controller) DeliverTx(req lib.RequestDeliverTx) (resp lib.ResponseDeliverTx) {
	catalog := Classify(req.Tx)
	defer func() { c.metrics.ObserveDeliverTx(catalog.String(), resp.Code) }()
	c.laMu.Lock()
	defer c.laMu.Unlock()
	height := c.height.Load()
	switch catalog {
	case NativeTx:
		return c.deliverNative(height, req.Tx)
	case EvmTx:
		if c.evmDisabled(height) {
			return rejectDeliver(lib.CodeTypeEVMDisabled, ErrEVMDisabled())
		}
		c.monitorEarlyEVM(height, nil)
		c.evmMu.Lock()
		defer c.evmMu.Unlock()
		return c.evm.DeliverTx(req)
	default:
		return rejectDeliver(lib.CodeTypeRejected, ErrUnknownTransaction())
	}
}

// deliverNative() decodes, schedules the history write, and applies a native transaction
func (c *Controller) deliverNative(height int64, raw []byte) lib.ResponseDeliverTx {
	tx, err := ledger.DecodeTransaction(raw)
	if err != nil {
		return rejectDeliver(lib.CodeTypeRejected, err)
	}
	c.monitorEarlyEVM(height, tx)
	if c.pending == nil && !c.openBlock() {
		return rejectDeliver(lib.CodeTypeRejected, ledger.ErrNoOpenBlock())
	}
	fingerprint := tx.Hash()
	// already delivered: in this block, or in an earlier one whose history write has landed
	if c.pending.markSeen(fingerprint) {
		return rejectDeliver(lib.CodeTypeRejected, ErrHistoricalTx(fingerprint))
	}
	if found, e := c.history.Contains(fingerprint); e != nil {
		return rejectDeliver(lib.CodeTypeRejected, e)
	} else if found {
		return rejectDeliver(lib.CodeTypeRejected, ErrHistoricalTx(fingerprint))
	}
	// the write is asynchronous; until it lands the native ledger's spent checks are the replay guard
	c.history.Record(fingerprint, height)
	if !tx.ValidInABCI() {
		return rejectDeliver(lib.CodeTypeRejected, ErrNotAllowedInABCI())
	}
	switch {
	case tx.IsConvertAccount() && c.evmDisabled(height):
		// the evm side can't be credited, so the native inputs stay unspent
		return rejectDeliver(lib.CodeTypeEVMDisabled, ErrEVMDisabled())
	case tx.IsConvertAccount():
		err = c.deliverConversion(tx)
	default:
		err = c.pending.CacheTransaction(tx)
	}
	if err != nil {
		return rejectDeliver(lib.CodeTypeRejected, err)
	}
	resp := lib.ResponseDeliverTx{Code: lib.CodeTypeOK, Data: fingerprint}
	if c.config.KeepHistory {
		resp.Events = txEvents(tx)
	}
	return resp
}

// deliverConversion() applies a conversion to both ledgers or to neither
func (c *Controller) deliverConversion(tx *ledger.Transaction) lib.ErrorI {
	c.evmMu.Lock()
	defer c.evmMu.Unlock()
	// the evm side goes first inside a revertible session
	if err := c.evm.DeliverNativeTx(tx); err != nil {
		c.evm.DiscardSession()
		return ErrConvertFailed(err)
	}
	// the native side is atomic on its own: a failure leaves the open block untouched
	if err := c.pending.CacheTransaction(tx); err != nil {
		c.evm.DiscardSession()
		return ErrConvertFailed(err)
	}
	c.evm.CommitSession()
	return nil
}

// monitorEarlyEVM() reports evm related activity below the configured first evm height
func (c *Controller) monitorEarlyEVM(height int64, tx *ledger.Transaction) {
	if height >= c.config.EVMFirstBlockHeight {
		return
	}
	if tx == nil {
		c.log.Warnf("EVM transaction seen at height %d, below first evm height %d", height, c.config.EVMFirstBlockHeight)
	} else if tx.IsConvertAccount() {
		c.log.Warnf("Account conversion %s seen at height %d, below first evm height %d",
			lib.BytesToTruncatedString(tx.Hash()), height, c.config.EVMFirstBlockHeight)
	}
}

func rejectCheck(code uint32, err lib.ErrorI) lib.ResponseCheckTx {
	return lib.ResponseCheckTx{Code: code, Log: err.Error()}
}

func rejectDeliver(code uint32, err lib.ErrorI) lib.ResponseDeliverTx {
	return lib.ResponseDeliverTx{Code: code, Log: err.Error()}
}
