package lib

import "time"

/*
	This file defines the boundary between the consensus engine and the application.
	The engine drives the lifecycle: Info (once at startup), then per block BeginBlock, DeliverTx*, EndBlock, Commit.
	CheckTx is called concurrently with all of the above for mempool admission.
*/

// response codes returned to the consensus engine
const (
	CodeTypeOK          uint32 = 0 // the transaction was admitted or applied
	CodeTypeRejected    uint32 = 1 // the transaction was rejected
	CodeTypeEVMDisabled uint32 = 2 // the transaction needs the evm ledger, which is switched off at this height
)

// ApplicationI is the set of lifecycle callbacks a consensus engine invokes
type ApplicationI interface {
	Info(req RequestInfo) ResponseInfo
	CheckTx(req RequestCheckTx) ResponseCheckTx
	BeginBlock(req RequestBeginBlock) ResponseBeginBlock
	DeliverTx(req RequestDeliverTx) ResponseDeliverTx
	EndBlock(req RequestEndBlock) ResponseEndBlock
	Commit(req RequestCommit) ResponseCommit
}

// CheckTxType distinguishes first admission from mempool re-validation after a commit
type CheckTxType int32

const (
	CheckTxNew     CheckTxType = 0
	CheckTxRecheck CheckTxType = 1
)

// Header is the subset of the consensus block header the application uses
type Header struct {
	ChainId         string    `json:"chainId"`
	Height          int64     `json:"height"`
	Time            time.Time `json:"time"`
	LastBlockHash   HexBytes  `json:"lastBlockHash"`
	ProposerAddress HexBytes  `json:"proposerAddress"`
}

// Validator is a consensus validator identified by address
type Validator struct {
	Address HexBytes `json:"address"`
	Power   int64    `json:"power"`
}

// VoteInfo reports whether a validator signed the previous block
type VoteInfo struct {
	Validator       Validator `json:"validator"`
	SignedLastBlock bool      `json:"signedLastBlock"`
}

// LastCommitInfo is the commit signature information for the previous block
type LastCommitInfo struct {
	Round int32      `json:"round"`
	Votes []VoteInfo `json:"votes"`
}

// Evidence is proof of byzantine behavior by a validator
type Evidence struct {
	Type             string    `json:"type"`
	Validator        Validator `json:"validator"`
	Height           int64     `json:"height"`
	Time             time.Time `json:"time"`
	TotalVotingPower int64     `json:"totalVotingPower"`
}

// ValidatorUpdate changes the voting power of a validator (power 0 removes it)
type ValidatorUpdate struct {
	PubKey HexBytes `json:"pubKey"`
	Power  int64    `json:"power"`
}

// EventAttribute is an indexable key/value pair attached to an event
type EventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Index bool   `json:"index"`
}

// Event is a typed group of attributes emitted during delivery
type Event struct {
	Type       string           `json:"type"`
	Attributes []EventAttribute `json:"attributes"`
}

type RequestInfo struct {
	Version string `json:"version"`
}

type ResponseInfo struct {
	Data             string   `json:"data"`
	Version          string   `json:"version"`
	LastBlockHeight  int64    `json:"lastBlockHeight"`
	LastBlockAppHash HexBytes `json:"lastBlockAppHash"`
}

type RequestBeginBlock struct {
	Hash                HexBytes       `json:"hash"`
	Header              Header         `json:"header"`
	LastCommitInfo      LastCommitInfo `json:"lastCommitInfo"`
	ByzantineValidators []Evidence     `json:"byzantineValidators"`
}

type ResponseBeginBlock struct {
	Events []Event `json:"events,omitempty"`
}

type RequestCheckTx struct {
	Tx   HexBytes    `json:"tx"`
	Type CheckTxType `json:"type"`
}

type ResponseCheckTx struct {
	Code uint32   `json:"code"`
	Log  string   `json:"log,omitempty"`
	Data HexBytes `json:"data,omitempty"`
}

// IsOK() is true when the transaction was admitted
func (r ResponseCheckTx) IsOK() bool { return r.Code == CodeTypeOK }

type RequestDeliverTx struct {
	Tx HexBytes `json:"tx"`
}

type ResponseDeliverTx struct {
	Code   uint32   `json:"code"`
	Log    string   `json:"log,omitempty"`
	Data   HexBytes `json:"data,omitempty"`
	Events []Event  `json:"events,omitempty"`
}

// IsOK() is true when the transaction was applied
func (r ResponseDeliverTx) IsOK() bool { return r.Code == CodeTypeOK }

type RequestEndBlock struct {
	Height int64 `json:"height"`
}

type ResponseEndBlock struct {
	ValidatorUpdates []ValidatorUpdate `json:"validatorUpdates,omitempty"`
	Events           []Event           `json:"events,omitempty"`
}

type RequestCommit struct{}

type ResponseCommit struct {
	Data         HexBytes `json:"data"`
	RetainHeight int64    `json:"retainHeight"`
}
