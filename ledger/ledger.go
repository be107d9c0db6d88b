// Package ledger defines the collaborators the consensus core drives: the native UTXO ledger,
// the evm account ledger and the staking module, plus the native transaction envelope they share.
package ledger

import (
	"github.com/canopy-network/dualledger/lib"
)

// EVMTxTag is the leading tag of every evm transaction on the wire; the RLP payload follows it
const EVMTxTag = "evm:"

// OpenBlock is the native ledger's in-progress block
type OpenBlock interface {
	TxnCount() int // transactions applied so far
}

// TxnEffect is the validated, state independent effect of a native transaction
type TxnEffect interface {
	Tx() *Transaction
}

// NativeLedger is the UTXO ledger's block lifecycle
type NativeLedger interface {
	// StartBlock() opens a new block; only one block may be open at a time
	StartBlock() (OpenBlock, lib.ErrorI)
	// ComputeEffect() validates the transaction's structure without touching state
	ComputeEffect(tx *Transaction) (TxnEffect, lib.ErrorI)
	// ApplyTransaction() applies an effect to the open block against current state
	ApplyTransaction(block OpenBlock, effect TxnEffect) lib.ErrorI
	// FinishBlock() makes the open block durable and advances the state commitment
	FinishBlock(block OpenBlock) lib.ErrorI
	// StateCommitment() returns the root of the last finished block
	StateCommitment() []byte
	// BlockCount() returns the number of finished blocks
	BlockCount() uint64
	// Height() returns the consensus height marker persisted at the last commit
	Height() int64
	// SetHeight() persists the consensus height marker
	SetHeight(height int64) lib.ErrorI
	// Flush() forces buffered ledger writes to durable storage
	Flush() lib.ErrorI
	// Snapshot() takes a best effort backup of the committed state
	Snapshot(height int64) lib.ErrorI
}

// EVMInfo is the evm ledger's view of its last commit
type EVMInfo struct {
	LastBlockHeight  int64
	LastBlockAppHash []byte
}

// EVMApp is the evm account ledger
type EVMApp interface {
	// Info() reports the last committed height and state root
	Info() EVMInfo
	// CheckTx() admits a transaction to the mempool; safe to call concurrently with itself
	CheckTx(req lib.RequestCheckTx) lib.ResponseCheckTx
	// BeginBlock() opens block level state
	BeginBlock(req lib.RequestBeginBlock) lib.ResponseBeginBlock
	// DeliverTx() applies an evm transaction
	DeliverTx(req lib.RequestDeliverTx) lib.ResponseDeliverTx
	// DeliverNativeTx() applies the evm side of a conversion transaction inside a revertible session
	DeliverNativeTx(tx *Transaction) lib.ErrorI
	// CommitSession() keeps everything written since the session opened
	CommitSession()
	// DiscardSession() reverts everything written since the session opened
	DiscardSession()
	// EndBlock() closes block level state
	EndBlock(req lib.RequestEndBlock) lib.ResponseEndBlock
	// Commit() persists the block and returns the new state root (empty if no state exists)
	Commit(height int64) ([]byte, lib.ErrorI)
}

// Staking is the validator and reward module
type Staking interface {
	// SetHeight() informs staking of the block being processed
	SetHeight(height int64)
	// RefreshSimulator() rebuilds the projected staking state when a native block stays open across heights
	RefreshSimulator() lib.ErrorI
	// SystemMintPay() returns the system transaction for this block, if any
	SystemMintPay(evm EVMApp) (*Transaction, lib.ErrorI)
	// GetValidators() returns validator power changes to report to consensus
	GetValidators(lastCommit lib.LastCommitInfo) ([]lib.ValidatorUpdate, lib.ErrorI)
	// SystemOps() applies block level staking operations (rewards, byzantine punishment)
	SystemOps(header lib.Header, lastCommit lib.LastCommitInfo, byzantine []lib.Evidence) lib.ErrorI
}
