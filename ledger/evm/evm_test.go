package evm

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/store"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var recipient = common.HexToAddress("0x00000000000000000000000000000000000000bb")

func newTestApp(t *testing.T) (*App, *store.Store) {
	db, err := store.NewStoreInMemory(lib.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	app, err := New(lib.DefaultEVMConfig(), db, lib.NewNullLogger())
	require.NoError(t, err)
	return app, db
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	key, err := ethCrypto.GenerateKey()
	require.NoError(t, err)
	return key, ethCrypto.PubkeyToAddress(key.PublicKey)
}

// signedTx() returns the tagged wire bytes of a signed legacy transfer
func signedTx(t *testing.T, key *ecdsa.PrivateKey, chainId, nonce, value uint64, to *common.Address, data []byte) []byte {
	signer := ethTypes.NewEIP155Signer(new(big.Int).SetUint64(chainId))
	tx, err := ethTypes.SignTx(ethTypes.NewTx(&ethTypes.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    new(big.Int).SetUint64(value),
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Data:     data,
	}), signer, key)
	require.NoError(t, err)
	bz, err := tx.MarshalBinary()
	require.NoError(t, err)
	return append([]byte(ledger.EVMTxTag), bz...)
}

// fund() converts amount into addr's balance and commits
func fund(t *testing.T, app *App, height int64, addr common.Address, amount uint64) {
	app.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: height}})
	tx, err := ledger.NewSystemTransaction(height, ledger.Operation{Type: ledger.OpConvertAccount, Receiver: addr.Bytes(), Asset: "A", Amount: amount})
	require.NoError(t, err)
	require.NoError(t, app.DeliverNativeTx(tx))
	app.CommitSession()
	_, err = app.Commit(height)
	require.NoError(t, err)
}

func TestCheckTx(t *testing.T) {
	chainId := lib.DefaultEVMConfig().ChainId
	tests := []struct {
		name   string
		detail string
		tx     func(key *ecdsa.PrivateKey) []byte
		ok     bool
	}{
		{
			name:   "valid",
			detail: "a funded sender with the right nonce is admitted",
			tx:     func(k *ecdsa.PrivateKey) []byte { return signedTx(t, k, chainId, 0, 10, &recipient, nil) },
			ok:     true,
		},
		{
			name:   "wrong chain",
			detail: "transactions signed for another chain are refused",
			tx:     func(k *ecdsa.PrivateKey) []byte { return signedTx(t, k, chainId+1, 0, 10, &recipient, nil) },
		},
		{
			name:   "nonce gap",
			detail: "nonces must be sequential",
			tx:     func(k *ecdsa.PrivateKey) []byte { return signedTx(t, k, chainId, 1, 10, &recipient, nil) },
		},
		{
			name:   "insufficient",
			detail: "value above the balance is refused",
			tx:     func(k *ecdsa.PrivateKey) []byte { return signedTx(t, k, chainId, 0, 101, &recipient, nil) },
		},
		{
			name:   "contract creation",
			detail: "only value transfers are supported",
			tx:     func(k *ecdsa.PrivateKey) []byte { return signedTx(t, k, chainId, 0, 1, nil, []byte{0x60}) },
		},
		{
			name:   "contract call",
			detail: "calldata is refused",
			tx:     func(k *ecdsa.PrivateKey) []byte { return signedTx(t, k, chainId, 0, 1, &recipient, []byte{1}) },
		},
		{
			name:   "garbage",
			detail: "payloads that aren't RLP are refused",
			tx:     func(*ecdsa.PrivateKey) []byte { return []byte(ledger.EVMTxTag + "garbage") },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			app, _ := newTestApp(t)
			key, sender := newKey(t)
			fund(t, app, 1, sender, 100)
			resp := app.CheckTx(lib.RequestCheckTx{Tx: test.tx(key)})
			require.Equal(t, test.ok, resp.IsOK(), resp.Log)
		})
	}
}

func TestCheckTxAdvancesMempoolView(t *testing.T) {
	app, _ := newTestApp(t)
	key, sender := newKey(t)
	chainId := lib.DefaultEVMConfig().ChainId
	fund(t, app, 1, sender, 100)
	tx := signedTx(t, key, chainId, 0, 60, &recipient, nil)
	require.True(t, app.CheckTx(lib.RequestCheckTx{Tx: tx}).IsOK())
	// the same nonce is now stale and the balance is already committed to the first transfer
	require.False(t, app.CheckTx(lib.RequestCheckTx{Tx: tx}).IsOK())
	require.False(t, app.CheckTx(lib.RequestCheckTx{Tx: signedTx(t, key, chainId, 1, 60, &recipient, nil)}).IsOK())
	require.True(t, app.CheckTx(lib.RequestCheckTx{Tx: signedTx(t, key, chainId, 1, 40, &recipient, nil)}).IsOK())
	// commit resets the view to committed state
	app.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: 2}})
	_, err := app.Commit(2)
	require.NoError(t, err)
	require.True(t, app.CheckTx(lib.RequestCheckTx{Tx: tx}).IsOK())
}

func TestDeliverTx(t *testing.T) {
	app, _ := newTestApp(t)
	key, sender := newKey(t)
	chainId := lib.DefaultEVMConfig().ChainId
	fund(t, app, 1, sender, 100)
	app.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: 2}})
	require.True(t, app.DeliverTx(lib.RequestDeliverTx{Tx: signedTx(t, key, chainId, 0, 30, &recipient, nil)}).IsOK())
	// replaying the nonce fails
	require.False(t, app.DeliverTx(lib.RequestDeliverTx{Tx: signedTx(t, key, chainId, 0, 30, &recipient, nil)}).IsOK())
	// uncommitted
	acc, err := app.Account(recipient)
	require.NoError(t, err)
	require.Zero(t, acc.Balance)
	root, err := app.Commit(2)
	require.NoError(t, err)
	require.Len(t, root, 32)
	acc, err = app.Account(recipient)
	require.NoError(t, err)
	require.Equal(t, uint64(30), acc.Balance)
	acc, err = app.Account(sender)
	require.NoError(t, err)
	require.Equal(t, &Account{Nonce: 1, Balance: 70}, acc)
	require.Equal(t, ledger.EVMInfo{LastBlockHeight: 2, LastBlockAppHash: root}, app.Info())
}

func TestSession(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		commit   bool
		expected uint64
	}{
		{name: "commit", detail: "a committed session lands in the block", commit: true, expected: 5},
		{name: "discard", detail: "a discarded session leaves no trace", expected: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			app, _ := newTestApp(t)
			app.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: 1}})
			tx, err := ledger.NewSystemTransaction(1, ledger.Operation{Type: ledger.OpConvertAccount, Receiver: recipient.Bytes(), Asset: "A", Amount: 5})
			require.NoError(t, err)
			require.NoError(t, app.DeliverNativeTx(tx))
			if test.commit {
				app.CommitSession()
			} else {
				app.DiscardSession()
			}
			_, err = app.Commit(1)
			require.NoError(t, err)
			acc, err := app.Account(recipient)
			require.NoError(t, err)
			require.Equal(t, test.expected, acc.Balance)
		})
	}
}

func TestDeliverNativeTxInvalidReceiver(t *testing.T) {
	app, _ := newTestApp(t)
	app.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: 1}})
	tx, err := ledger.NewSystemTransaction(1, ledger.Operation{Type: ledger.OpConvertAccount, Receiver: []byte("short"), Asset: "A", Amount: 5})
	require.NoError(t, err)
	err = app.DeliverNativeTx(tx)
	require.Error(t, err)
	require.Equal(t, lib.CodeInvalidAddress, err.Code())
	app.DiscardSession()
}

func TestEmptyRootAndReload(t *testing.T) {
	app, db := newTestApp(t)
	app.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: 1}})
	root, err := app.Commit(1)
	require.NoError(t, err)
	require.Empty(t, root)
	_, sender := newKey(t)
	fund(t, app, 2, sender, 1)
	reloaded, err := New(lib.DefaultEVMConfig(), db, lib.NewNullLogger())
	require.NoError(t, err)
	require.Equal(t, app.Info(), reloaded.Info())
	require.Equal(t, int64(2), reloaded.Info().LastBlockHeight)
	require.NotEmpty(t, reloaded.Info().LastBlockAppHash)
}

func TestCommitWritesAccountsAndMetaTogether(t *testing.T) {
	app, db := newTestApp(t)
	key, sender := newKey(t)
	chainId := lib.DefaultEVMConfig().ChainId
	fund(t, app, 1, sender, 100)
	app.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: 2}})
	require.True(t, app.DeliverTx(lib.RequestDeliverTx{Tx: signedTx(t, key, chainId, 0, 30, &recipient, nil)}).IsOK())
	// before Commit neither the accounts nor the meta have moved
	committed, err := accountRoot(db)
	require.NoError(t, err)
	require.Equal(t, app.Info().LastBlockAppHash, committed)
	root, err := app.Commit(2)
	require.NoError(t, err)
	// a reopened ledger reports a root that matches the accounts on disk
	reloaded, err := New(lib.DefaultEVMConfig(), db, lib.NewNullLogger())
	require.NoError(t, err)
	onDisk, err := accountRoot(db)
	require.NoError(t, err)
	require.Equal(t, root, onDisk)
	require.Equal(t, ledger.EVMInfo{LastBlockHeight: 2, LastBlockAppHash: onDisk}, reloaded.Info())
	acc, err := reloaded.Account(recipient)
	require.NoError(t, err)
	require.Equal(t, uint64(30), acc.Balance)
}
