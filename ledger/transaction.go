package ledger

import (
	"bytes"
	"encoding/json"

	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/lib/crypto"
)

// OperationType names a native ledger operation
type OperationType string

const (
	OpDefineAsset    OperationType = "define_asset"     // create a new asset code
	OpIssueAsset     OperationType = "issue_asset"      // mint new units of an existing asset
	OpTransferAsset  OperationType = "transfer_asset"   // spend txos into new txos
	OpConvertAccount OperationType = "convert_account"  // spend txos into an evm account balance
	OpMintCoinbase   OperationType = "mint_coinbase"    // system only: block reward
	OpUpdateStaking  OperationType = "update_validator" // system only: validator power change
)

// AddressLength is the size of an evm account address
const AddressLength = 20

// Output is a transaction output (txo) owned by a public key
type Output struct {
	Owner  lib.HexBytes `json:"owner"`
	Asset  string       `json:"asset"`
	Amount uint64       `json:"amount"`
}

// Operation is one step of a native transaction
type Operation struct {
	Type     OperationType `json:"type"`
	Asset    string        `json:"asset,omitempty"`    // define / issue
	Issuer   lib.HexBytes  `json:"issuer,omitempty"`   // define
	Inputs   []uint64      `json:"inputs,omitempty"`   // transfer / convert: consumed txo sids
	Outputs  []Output      `json:"outputs,omitempty"`  // issue / transfer / mint
	Receiver lib.HexBytes  `json:"receiver,omitempty"` // convert: evm address credited
	Amount   uint64        `json:"amount,omitempty"`   // convert: amount credited
	Power    int64         `json:"power,omitempty"`    // update_validator
}

// Body is the signed portion of a native transaction
type Body struct {
	NoReplayToken uint64      `json:"noReplayToken"`
	Operations    []Operation `json:"operations"`
	Memo          string      `json:"memo,omitempty"`
}

// Transaction is the native ledger's JSON transaction envelope
type Transaction struct {
	Body       Body           `json:"body"`
	Signatures []lib.HexBytes `json:"signatures,omitempty"`

	raw []byte // the exact bytes received; the fingerprint is computed over these
}

// DecodeTransaction() strictly parses a native transaction from wire bytes
func DecodeTransaction(raw []byte) (*Transaction, lib.ErrorI) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	tx := new(Transaction)
	if err := dec.Decode(tx); err != nil {
		return nil, ErrInvalidTxFormat(err.Error())
	}
	if dec.More() {
		return nil, ErrInvalidTxFormat("trailing data after transaction")
	}
	if len(tx.Body.Operations) == 0 {
		return nil, ErrEmptyTransaction()
	}
	for _, o := range tx.Body.Operations {
		switch o.Type {
		case OpDefineAsset, OpIssueAsset, OpTransferAsset, OpConvertAccount, OpMintCoinbase, OpUpdateStaking:
		default:
			return nil, ErrInvalidOperation(string(o.Type), "unknown operation")
		}
	}
	tx.raw = bytes.Clone(raw)
	return tx, nil
}

// NewSystemTransaction() builds a transaction produced by the node itself rather than received from a user
func NewSystemTransaction(height int64, ops ...Operation) (*Transaction, lib.ErrorI) {
	tx := &Transaction{Body: Body{NoReplayToken: uint64(height), Operations: ops}}
	raw, err := lib.MarshalJSON(tx)
	if err != nil {
		return nil, err
	}
	tx.raw = raw
	return tx, nil
}

// Bytes() returns the wire encoding
func (t *Transaction) Bytes() []byte { return t.raw }

// Hash() is the replay fingerprint: sha256 of the wire bytes
func (t *Transaction) Hash() []byte { return crypto.Hash(t.raw) }

// ValidInABCI() is false for transactions carrying operations that only the node itself may produce
func (t *Transaction) ValidInABCI() bool {
	for _, o := range t.Body.Operations {
		if o.Type == OpMintCoinbase || o.Type == OpUpdateStaking {
			return false
		}
	}
	return true
}

// IsConvertAccount() is true if any operation moves value into the evm ledger
func (t *Transaction) IsConvertAccount() bool {
	for _, o := range t.Body.Operations {
		if o.Type == OpConvertAccount {
			return true
		}
	}
	return false
}

// Conversions() returns the convert_account operations in order
func (t *Transaction) Conversions() (ops []Operation) {
	for _, o := range t.Body.Operations {
		if o.Type == OpConvertAccount {
			ops = append(ops, o)
		}
	}
	return
}
