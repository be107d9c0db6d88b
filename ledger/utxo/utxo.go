// Package utxo is the reference native ledger: unspent transaction outputs addressed by sequential ids.
package utxo

import (
	"encoding/binary"
	"math"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/lib/crypto"
	"github.com/canopy-network/dualledger/store"
)

var (
	txoPrefix     = []byte("n/txo/")     // n/txo/<sid> -> Txo
	assetPrefix   = []byte("n/asset/")   // n/asset/<code> -> Asset
	appliedPrefix = []byte("n/applied/") // n/applied/<fingerprint> -> number of the native block that applied it
	metaKey       = []byte("n/meta")     // block count, next sid and commitment
	heightKey     = []byte("n/height")   // consensus height marker

	_ ledger.NativeLedger = &Ledger{}
)

// Txo is an unspent output
type Txo struct {
	Owner  []byte `cramberry:"1"`
	Asset  string `cramberry:"2"`
	Amount uint64 `cramberry:"3"`
}

// Asset is a defined asset code
type Asset struct {
	Issuer []byte `cramberry:"1"`
	Issued uint64 `cramberry:"2"`
}

// Meta is the ledger's bookkeeping written with every finished block
type Meta struct {
	NextSID    uint64 `cramberry:"1"`
	BlockCount uint64 `cramberry:"2"`
	Commitment []byte `cramberry:"3"`
}

// Height is the persisted consensus height marker
type Height struct {
	Value int64 `cramberry:"1"`
}

// Ledger is a badger backed UTXO ledger with a single open block at a time
type Ledger struct {
	db     lib.StoreI
	log    lib.LoggerI
	meta   Meta
	height int64
	open   *Block
}

// Block is the open block: an overlay of the database plus the fingerprints applied to it
type Block struct {
	state    *store.Txn
	meta     Meta
	txHashes [][]byte
}

// TxnCount() returns the number of applied transactions
func (b *Block) TxnCount() int { return len(b.txHashes) }

type effect struct{ tx *ledger.Transaction }

func (e *effect) Tx() *ledger.Transaction { return e.tx }

// New() loads the ledger's bookkeeping from db
func New(db lib.StoreI, log lib.LoggerI) (*Ledger, lib.ErrorI) {
	l := &Ledger{db: db, log: log}
	bz, err := db.Get(metaKey)
	if err != nil {
		return nil, err
	}
	if err = lib.Unmarshal(bz, &l.meta); err != nil {
		return nil, err
	}
	bz, err = db.Get(heightKey)
	if err != nil {
		return nil, err
	}
	h := new(Height)
	if err = lib.Unmarshal(bz, h); err != nil {
		return nil, err
	}
	l.height = h.Value
	return l, nil
}

// StartBlock() opens a block over the committed state
func (l *Ledger) StartBlock() (ledger.OpenBlock, lib.ErrorI) {
	if l.open != nil {
		return nil, ledger.ErrBlockAlreadyOpen()
	}
	l.open = &Block{state: store.NewTxn(l.db), meta: l.meta}
	return l.open, nil
}

// ComputeEffect() checks every operation's shape; state dependent rules are left to ApplyTransaction()
func (l *Ledger) ComputeEffect(tx *ledger.Transaction) (ledger.TxnEffect, lib.ErrorI) {
	spent := make(map[uint64]struct{})
	for _, o := range tx.Body.Operations {
		if err := checkOperation(o, spent); err != nil {
			return nil, err
		}
	}
	return &effect{tx: tx}, nil
}

func checkOperation(o ledger.Operation, spent map[uint64]struct{}) lib.ErrorI {
	kind := string(o.Type)
	switch o.Type {
	case ledger.OpDefineAsset:
		if o.Asset == "" || len(o.Asset) > 32 {
			return ledger.ErrInvalidOperation(kind, "asset code must be 1-32 bytes")
		}
		if len(o.Issuer) == 0 {
			return ledger.ErrInvalidOperation(kind, "missing issuer")
		}
		return nil
	case ledger.OpIssueAsset, ledger.OpMintCoinbase:
		if o.Type == ledger.OpIssueAsset && o.Asset == "" {
			return ledger.ErrInvalidOperation(kind, "missing asset code")
		}
		return checkOutputs(kind, o, false)
	case ledger.OpTransferAsset:
		if err := checkInputs(kind, o.Inputs, spent); err != nil {
			return err
		}
		return checkOutputs(kind, o, true)
	case ledger.OpConvertAccount:
		if err := checkInputs(kind, o.Inputs, spent); err != nil {
			return err
		}
		if len(o.Receiver) != ledger.AddressLength {
			return ledger.ErrInvalidAddress(o.Receiver)
		}
		if o.Amount == 0 || o.Asset == "" {
			return ledger.ErrInvalidOperation(kind, "conversion needs an asset and a positive amount")
		}
		return nil
	case ledger.OpUpdateStaking:
		return nil
	}
	return ledger.ErrInvalidOperation(kind, "unknown operation")
}

func checkInputs(kind string, inputs []uint64, spent map[uint64]struct{}) lib.ErrorI {
	if len(inputs) == 0 {
		return ledger.ErrInvalidOperation(kind, "no inputs")
	}
	for _, sid := range inputs {
		if _, dup := spent[sid]; dup {
			return ledger.ErrInvalidOperation(kind, "input spent twice in one transaction")
		}
		spent[sid] = struct{}{}
	}
	return nil
}

func checkOutputs(kind string, o ledger.Operation, anyAsset bool) lib.ErrorI {
	if len(o.Outputs) == 0 {
		return ledger.ErrInvalidOperation(kind, "no outputs")
	}
	for _, out := range o.Outputs {
		if out.Amount == 0 || len(out.Owner) == 0 {
			return ledger.ErrInvalidOperation(kind, "outputs need an owner and a positive amount")
		}
		if !anyAsset && o.Asset != "" && out.Asset != o.Asset {
			return ledger.ErrInvalidOperation(kind, "output asset differs from the issued asset")
		}
	}
	return nil
}

// ApplyTransaction() applies an effect to the open block; on failure the block is left exactly as before
func (l *Ledger) ApplyTransaction(block ledger.OpenBlock, e ledger.TxnEffect) lib.ErrorI {
	b, ok := block.(*Block)
	if !ok || b != l.open {
		return ledger.ErrNoOpenBlock()
	}
	// a fingerprint applies once over the life of the ledger, whatever its operations consume
	fingerprint := e.Tx().Hash()
	applied, err := b.state.Get(appliedKey(fingerprint))
	if err != nil {
		return err
	}
	if applied != nil {
		return ledger.ErrTxAlreadyApplied(fingerprint)
	}
	session, next := store.NewTxn(b.state), b.meta.NextSID
	for _, o := range e.Tx().Body.Operations {
		var err lib.ErrorI
		switch o.Type {
		case ledger.OpDefineAsset:
			err = defineAsset(session, o)
		case ledger.OpIssueAsset:
			next, err = issueAsset(session, o, next)
		case ledger.OpTransferAsset:
			next, err = transferAsset(session, o, b.meta.NextSID, next)
		case ledger.OpConvertAccount:
			err = convertAccount(session, o, b.meta.NextSID)
		case ledger.OpMintCoinbase:
			next, err = createOutputs(session, o.Outputs, next)
		}
		if err != nil {
			session.Discard()
			return err
		}
	}
	if err = session.Set(appliedKey(fingerprint), binary.BigEndian.AppendUint64(nil, b.meta.BlockCount+1)); err != nil {
		session.Discard()
		return err
	}
	if err = session.Write(); err != nil {
		return err
	}
	b.meta.NextSID = next
	b.txHashes = append(b.txHashes, fingerprint)
	return nil
}

func defineAsset(s lib.RWStoreI, o ledger.Operation) lib.ErrorI {
	bz, err := s.Get(assetKey(o.Asset))
	if err != nil {
		return err
	}
	if bz != nil {
		return ledger.ErrAssetExists(o.Asset)
	}
	return set(s, assetKey(o.Asset), &Asset{Issuer: o.Issuer})
}

func issueAsset(s lib.RWStoreI, o ledger.Operation, next uint64) (uint64, lib.ErrorI) {
	bz, err := s.Get(assetKey(o.Asset))
	if err != nil {
		return next, err
	}
	if bz == nil {
		return next, ledger.ErrAssetNotFound(o.Asset)
	}
	asset := new(Asset)
	if err = lib.Unmarshal(bz, asset); err != nil {
		return next, err
	}
	for _, out := range o.Outputs {
		if asset.Issued > math.MaxUint64-out.Amount {
			return next, ledger.ErrOverflow()
		}
		asset.Issued += out.Amount
	}
	if err = set(s, assetKey(o.Asset), asset); err != nil {
		return next, err
	}
	return createOutputs(s, o.Outputs, next)
}

func transferAsset(s lib.RWStoreI, o ledger.Operation, committedNext, next uint64) (uint64, lib.ErrorI) {
	in, err := spendInputs(s, o.Inputs, committedNext)
	if err != nil {
		return next, err
	}
	out := make(map[string]uint64)
	for _, output := range o.Outputs {
		if out[output.Asset] > math.MaxUint64-output.Amount {
			return next, ledger.ErrOverflow()
		}
		out[output.Asset] += output.Amount
	}
	for asset, amount := range in {
		if out[asset] != amount {
			return next, ledger.ErrUnbalancedTransfer(asset, amount, out[asset])
		}
	}
	for asset, amount := range out {
		if in[asset] != amount {
			return next, ledger.ErrUnbalancedTransfer(asset, in[asset], amount)
		}
	}
	return createOutputs(s, o.Outputs, next)
}

func convertAccount(s lib.RWStoreI, o ledger.Operation, committedNext uint64) lib.ErrorI {
	in, err := spendInputs(s, o.Inputs, committedNext)
	if err != nil {
		return err
	}
	if len(in) != 1 || in[o.Asset] != o.Amount {
		return ledger.ErrUnbalancedTransfer(o.Asset, in[o.Asset], o.Amount)
	}
	return nil
}

// spendInputs() deletes the inputs and sums them per asset
// an input below the open block's first sid that no longer exists was spent earlier
func spendInputs(s lib.RWStoreI, sids []uint64, committedNext uint64) (map[string]uint64, lib.ErrorI) {
	sums := make(map[string]uint64)
	for _, sid := range sids {
		bz, err := s.Get(txoKey(sid))
		if err != nil {
			return nil, err
		}
		if bz == nil {
			if sid < committedNext {
				return nil, ledger.ErrInputAlreadySpent(sid)
			}
			return nil, ledger.ErrInputNotFound(sid)
		}
		txo := new(Txo)
		if err = lib.Unmarshal(bz, txo); err != nil {
			return nil, err
		}
		if sums[txo.Asset] > math.MaxUint64-txo.Amount {
			return nil, ledger.ErrOverflow()
		}
		sums[txo.Asset] += txo.Amount
		if err = s.Delete(txoKey(sid)); err != nil {
			return nil, err
		}
	}
	return sums, nil
}

func createOutputs(s lib.RWStoreI, outputs []ledger.Output, next uint64) (uint64, lib.ErrorI) {
	for _, out := range outputs {
		if err := set(s, txoKey(next), &Txo{Owner: out.Owner, Asset: out.Asset, Amount: out.Amount}); err != nil {
			return next, err
		}
		next++
	}
	return next, nil
}

// FinishBlock() advances the commitment and writes the block atomically
func (l *Ledger) FinishBlock(block ledger.OpenBlock) lib.ErrorI {
	b, ok := block.(*Block)
	if !ok || b != l.open {
		return ledger.ErrNoOpenBlock()
	}
	b.meta.BlockCount++
	count := make([]byte, 8)
	binary.BigEndian.PutUint64(count, b.meta.BlockCount)
	b.meta.Commitment = crypto.HashConcat(l.meta.Commitment, crypto.MerkleRoot(b.txHashes), count)
	if err := set(b.state, metaKey, &b.meta); err != nil {
		return err
	}
	if err := b.state.Write(); err != nil {
		return err
	}
	l.log.Debugf("Finished native block %d with %d txs, commitment %s", b.meta.BlockCount, len(b.txHashes), lib.BytesToTruncatedString(b.meta.Commitment))
	l.meta, l.open = b.meta, nil
	return nil
}

// StateCommitment() returns the commitment of the last finished block
func (l *Ledger) StateCommitment() []byte { return append([]byte{}, l.meta.Commitment...) }

// BlockCount() returns the number of finished blocks
func (l *Ledger) BlockCount() uint64 { return l.meta.BlockCount }

// Height() returns the persisted consensus height marker
func (l *Ledger) Height() int64 { return l.height }

// SetHeight() persists the consensus height marker
func (l *Ledger) SetHeight(height int64) lib.ErrorI {
	if err := set(l.db, heightKey, &Height{Value: height}); err != nil {
		return err
	}
	l.height = height
	return nil
}

// Flush() forces the database's buffered writes to disk
func (l *Ledger) Flush() lib.ErrorI { return l.db.Flush() }

// Snapshot() takes an incremental database backup
func (l *Ledger) Snapshot(height int64) lib.ErrorI { return l.db.Snapshot(height) }

// GetTxo() returns an unspent output from committed state, or nil
func (l *Ledger) GetTxo(sid uint64) (*Txo, lib.ErrorI) {
	bz, err := l.db.Get(txoKey(sid))
	if err != nil || bz == nil {
		return nil, err
	}
	txo := new(Txo)
	return txo, lib.Unmarshal(bz, txo)
}

func set(s lib.WStoreI, key []byte, record any) lib.ErrorI {
	bz, err := lib.Marshal(record)
	if err != nil {
		return err
	}
	return s.Set(key, bz)
}

func txoKey(sid uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, txoPrefix...), sid)
}

func appliedKey(fingerprint []byte) []byte {
	return append(append([]byte{}, appliedPrefix...), fingerprint...)
}

func assetKey(code string) []byte {
	return append(append([]byte{}, assetPrefix...), code...)
}
