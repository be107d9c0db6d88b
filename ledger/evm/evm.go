// Package evm is the reference account ledger: signed ethereum value transfers over nonce/balance accounts.
package evm

import (
	"bytes"
	"math"
	"math/big"
	"sync"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/lib/crypto"
	"github.com/canopy-network/dualledger/store"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

const maxTxSize = 2048 // bytes of RLP accepted after the tag

var (
	accountPrefix = []byte("e/acct/") // e/acct/<address> -> Account
	metaKey       = []byte("e/meta")  // last committed height and root

	_ ledger.EVMApp = &App{}
)

// Account is an evm account
type Account struct {
	Nonce   uint64 `cramberry:"1"`
	Balance uint64 `cramberry:"2"`
}

// Meta is the evm ledger's last commit
type Meta struct {
	Height int64  `cramberry:"1"`
	Root   []byte `cramberry:"2"`
}

/*
App keeps three layers of state over the database:
  - check: the mempool's view, advanced by every admitted transaction and reset at Commit
  - deliver: the open block, written to the database at Commit
  - session: a revertible layer over deliver that hosts the evm side of a conversion transaction
*/
type App struct {
	db      lib.StoreI
	log     lib.LoggerI
	chainId *big.Int
	signer  ethTypes.Signer

	checkMu sync.Mutex
	check   *store.Txn

	deliver *store.Txn
	session *store.Txn
	meta    Meta
}

// New() loads the last commit from db
func New(config lib.EVMConfig, db lib.StoreI, log lib.LoggerI) (*App, lib.ErrorI) {
	chainId := new(big.Int).SetUint64(config.ChainId)
	app := &App{
		db:      db,
		log:     log,
		chainId: chainId,
		signer:  ethTypes.LatestSignerForChainID(chainId),
		check:   store.NewTxn(db),
	}
	bz, err := db.Get(metaKey)
	if err != nil {
		return nil, err
	}
	if err = lib.Unmarshal(bz, &app.meta); err != nil {
		return nil, err
	}
	return app, nil
}

// Info() reports the last committed height and root
func (a *App) Info() ledger.EVMInfo {
	return ledger.EVMInfo{LastBlockHeight: a.meta.Height, LastBlockAppHash: append([]byte{}, a.meta.Root...)}
}

// CheckTx() validates the transaction against the mempool view and advances it
func (a *App) CheckTx(req lib.RequestCheckTx) lib.ResponseCheckTx {
	a.checkMu.Lock()
	defer a.checkMu.Unlock()
	tx, sender, err := a.decode(req.Tx)
	if err == nil {
		err = a.transfer(a.check, tx, sender)
	}
	if err != nil {
		return lib.ResponseCheckTx{Code: lib.CodeTypeRejected, Log: err.Error()}
	}
	return lib.ResponseCheckTx{Code: lib.CodeTypeOK, Data: tx.Hash().Bytes()}
}

// BeginBlock() opens a fresh block layer
func (a *App) BeginBlock(req lib.RequestBeginBlock) lib.ResponseBeginBlock {
	a.deliver, a.session = store.NewTxn(a.db), nil
	return lib.ResponseBeginBlock{}
}

// DeliverTx() applies a value transfer to the open block
func (a *App) DeliverTx(req lib.RequestDeliverTx) lib.ResponseDeliverTx {
	tx, sender, err := a.decode(req.Tx)
	if err != nil {
		return lib.ResponseDeliverTx{Code: lib.CodeTypeRejected, Log: err.Error()}
	}
	txn := store.NewTxn(a.block())
	if err = a.transfer(txn, tx, sender); err != nil {
		return lib.ResponseDeliverTx{Code: lib.CodeTypeRejected, Log: err.Error()}
	}
	if err = txn.Write(); err != nil {
		return lib.ResponseDeliverTx{Code: lib.CodeTypeRejected, Log: err.Error()}
	}
	return lib.ResponseDeliverTx{Code: lib.CodeTypeOK, Data: tx.Hash().Bytes()}
}

// DeliverNativeTx() credits every conversion receiver inside the current session, opening one if needed
func (a *App) DeliverNativeTx(tx *ledger.Transaction) lib.ErrorI {
	if a.session == nil {
		a.session = store.NewTxn(a.block())
	}
	for _, o := range tx.Conversions() {
		if len(o.Receiver) != common.AddressLength {
			return ledger.ErrInvalidAddress(o.Receiver)
		}
		to := common.BytesToAddress(o.Receiver)
		acc, err := getAccount(a.session, to)
		if err != nil {
			return err
		}
		if acc.Balance > math.MaxUint64-o.Amount {
			return ledger.ErrOverflow()
		}
		acc.Balance += o.Amount
		if err = setAccount(a.session, to, acc); err != nil {
			return err
		}
	}
	return nil
}

// CommitSession() folds the session into the open block
func (a *App) CommitSession() {
	if a.session == nil {
		return
	}
	if err := a.session.Write(); err != nil {
		a.log.Errorf("Writing evm session failed: %s", err.Error())
	}
	a.session = nil
}

// DiscardSession() drops the session
func (a *App) DiscardSession() {
	if a.session == nil {
		return
	}
	a.session.Discard()
	a.session = nil
}

// EndBlock() has no block level evm operations
func (a *App) EndBlock(req lib.RequestEndBlock) lib.ResponseEndBlock {
	return lib.ResponseEndBlock{}
}

// Commit() computes the account root over the open block and writes the accounts and the new meta in one batch
func (a *App) Commit(height int64) ([]byte, lib.ErrorI) {
	a.DiscardSession()
	block := a.block()
	root, err := accountRoot(block)
	if err != nil {
		return nil, err
	}
	meta := Meta{Height: height, Root: root}
	bz, err := lib.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	if err = block.Set(metaKey, bz); err != nil {
		return nil, err
	}
	if err = block.Write(); err != nil {
		return nil, err
	}
	a.meta, a.deliver = meta, nil
	a.checkMu.Lock()
	a.check = store.NewTxn(a.db)
	a.checkMu.Unlock()
	return append([]byte{}, root...), nil
}

// Account() returns the committed account at addr
func (a *App) Account(addr common.Address) (*Account, lib.ErrorI) { return getAccount(a.db, addr) }

// block() returns the open block layer, opening one if BeginBlock was skipped
func (a *App) block() *store.Txn {
	if a.deliver == nil {
		a.deliver = store.NewTxn(a.db)
	}
	return a.deliver
}

// decode() strips the wire tag, decodes the RLP and recovers the sender
func (a *App) decode(raw []byte) (*ethTypes.Transaction, common.Address, lib.ErrorI) {
	var sender common.Address
	if !bytes.HasPrefix(raw, []byte(ledger.EVMTxTag)) {
		return nil, sender, ledger.ErrUnsupportedEthTx("missing evm tag")
	}
	payload := raw[len(ledger.EVMTxTag):]
	if len(payload) > maxTxSize {
		return nil, sender, ledger.ErrUnsupportedEthTx("transaction too large")
	}
	tx := new(ethTypes.Transaction)
	if err := tx.UnmarshalBinary(payload); err != nil {
		return nil, sender, ledger.ErrInvalidEthTx(err)
	}
	if tx.ChainId().Cmp(a.chainId) != 0 {
		return nil, sender, ledger.ErrWrongChainId(tx.ChainId().Uint64(), a.chainId.Uint64())
	}
	sender, err := ethTypes.Sender(a.signer, tx)
	if err != nil {
		return nil, sender, ledger.ErrInvalidEthTx(err)
	}
	switch {
	case tx.To() == nil:
		return nil, sender, ledger.ErrUnsupportedEthTx("contract creation")
	case len(tx.Data()) != 0:
		return nil, sender, ledger.ErrUnsupportedEthTx("contract call")
	case !tx.Value().IsUint64():
		return nil, sender, ledger.ErrOverflow()
	}
	return tx, sender, nil
}

// transfer() moves the transaction's value from sender to recipient in s
func (a *App) transfer(s lib.RWStoreI, tx *ethTypes.Transaction, sender common.Address) lib.ErrorI {
	from, err := getAccount(s, sender)
	if err != nil {
		return err
	}
	if tx.Nonce() != from.Nonce {
		return ledger.ErrInvalidNonce(tx.Nonce(), from.Nonce)
	}
	value := tx.Value().Uint64()
	if from.Balance < value {
		return ledger.ErrInsufficientFunds(from.Balance, value)
	}
	from.Balance -= value
	from.Nonce++
	if err = setAccount(s, sender, from); err != nil {
		return err
	}
	to, err := getAccount(s, *tx.To())
	if err != nil {
		return err
	}
	if to.Balance > math.MaxUint64-value {
		return ledger.ErrOverflow()
	}
	to.Balance += value
	return setAccount(s, *tx.To(), to)
}

// accountRoot() is the merkle root over every (address, account) entry in s; empty when no account exists
func accountRoot(s lib.RStoreI) ([]byte, lib.ErrorI) {
	it, err := s.Iterator(accountPrefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var leaves [][]byte
	for ; it.Valid(); it.Next() {
		leaves = append(leaves, append(append([]byte{}, it.Key()...), it.Value()...))
	}
	return crypto.MerkleRoot(leaves), nil
}

func getAccount(s lib.RStoreI, addr common.Address) (*Account, lib.ErrorI) {
	bz, err := s.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	acc := new(Account)
	return acc, lib.Unmarshal(bz, acc)
}

func setAccount(s lib.WStoreI, addr common.Address, acc *Account) lib.ErrorI {
	bz, err := lib.Marshal(acc)
	if err != nil {
		return err
	}
	return s.Set(accountKey(addr), bz)
}

func accountKey(addr common.Address) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}
