package controller

import (
	"math/rand"
	"testing"
	"time"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		raw      []byte
		expected TxCatalog
	}{
		{
			name:     "empty",
			detail:   "no bytes at all",
			raw:      nil,
			expected: UnknownTx,
		},
		{
			name:     "bare evm tag",
			detail:   "the tag without a payload is not an evm transaction",
			raw:      []byte(ledger.EVMTxTag),
			expected: UnknownTx,
		},
		{
			name:     "evm",
			detail:   "tag followed by any payload",
			raw:      []byte(ledger.EVMTxTag + "x"),
			expected: EvmTx,
		},
		{
			name:     "native",
			detail:   "a json object",
			raw:      []byte(`{"body":{}}`),
			expected: NativeTx,
		},
		{
			name:     "native with leading whitespace",
			detail:   "whitespace before the object is skipped",
			raw:      []byte(" \n\t{"),
			expected: NativeTx,
		},
		{
			name:     "json array",
			detail:   "only objects are native transactions",
			raw:      []byte(`[{}]`),
			expected: UnknownTx,
		},
		{
			name:     "whitespace only",
			detail:   "nothing after the whitespace",
			raw:      []byte("  \n"),
			expected: UnknownTx,
		},
		{
			name:     "tag case",
			detail:   "the tag is case sensitive",
			raw:      []byte("EVM:abc"),
			expected: UnknownTx,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, Classify(test.raw), test.detail)
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		raw := make([]byte, r.Intn(16))
		r.Read(raw)
		// bias towards the interesting prefixes
		switch i % 3 {
		case 1:
			raw = append([]byte(ledger.EVMTxTag), raw...)
		case 2:
			raw = append([]byte("{"), raw...)
		}
		first := Classify(raw)
		require.Equal(t, first, Classify(raw))
		require.Contains(t, []TxCatalog{UnknownTx, NativeTx, EvmTx}, first)
	}
}

func TestCheckTx(t *testing.T) {
	n := newTestNode(t, newTestConfig(t, 10, 20))
	defer n.close()
	n.c.Info(lib.RequestInfo{})
	historical := nativeTx(t, 99, ledger.Operation{Type: ledger.OpDefineAsset, Asset: "OLD", Issuer: testOwner})
	n.history.Record(mustDecode(t, historical).Hash(), 1)
	require.NoError(t, n.history.Sync(time.Second))
	tests := []struct {
		name     string
		detail   string
		height   int64
		tx       []byte
		recheck  bool
		code     uint32
		contains string
	}{
		{
			name:   "native",
			detail: "a well formed native transaction is admitted",
			height: 5,
			tx:     issueTx(t, 10),
			code:   lib.CodeTypeOK,
		},
		{
			name:     "native malformed",
			detail:   "a json object that isn't a transaction is rejected",
			height:   5,
			tx:       []byte(`{"unexpected":1}`),
			code:     lib.CodeTypeRejected,
			contains: "invalid transaction format",
		},
		{
			name:   "native reserved operation",
			detail: "coinbase operations may only come from the node",
			height: 5,
			tx: nativeTx(t, 3, ledger.Operation{Type: ledger.OpMintCoinbase, Outputs: []ledger.Output{
				{Owner: testOwner, Asset: testAsset, Amount: 1},
			}}),
			code:     lib.CodeTypeRejected,
			contains: "reserved for the node",
		},
		{
			name:     "native historical",
			detail:   "a recorded fingerprint is rejected",
			height:   5,
			tx:       historical,
			code:     lib.CodeTypeRejected,
			contains: "historical transaction",
		},
		{
			name:     "native historical on recheck",
			detail:   "rechecks consult the history as well",
			height:   5,
			tx:       historical,
			recheck:  true,
			code:     lib.CodeTypeRejected,
			contains: "historical transaction",
		},
		{
			name:     "evm inside window",
			detail:   "evm transactions are refused while the evm ledger is off",
			height:   11,
			tx:       evmTx(t, 0),
			code:     lib.CodeTypeEVMDisabled,
			contains: "EVM is disabled",
		},
		{
			name:   "evm at disable height",
			detail: "the window is open on the left",
			height: 10,
			tx:     evmTx(t, 0),
			code:   lib.CodeTypeOK,
		},
		{
			name:   "evm at enable height",
			detail: "the window is open on the right",
			height: 20,
			tx:     evmTx(t, 0),
			code:   lib.CodeTypeOK,
		},
		{
			name:   "evm bad nonce",
			detail: "outside the window the evm ledger decides",
			height: 25,
			tx:     evmTx(t, 7),
			code:   lib.CodeTypeRejected,
		},
		{
			name:     "unknown",
			detail:   "neither format is always rejected",
			height:   5,
			tx:       []byte("hello"),
			code:     lib.CodeTypeRejected,
			contains: "unknown transaction format",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			n.c.height.Store(test.height)
			typ := lib.CheckTxNew
			if test.recheck {
				typ = lib.CheckTxRecheck
			}
			resp := n.c.CheckTx(lib.RequestCheckTx{Tx: test.tx, Type: typ})
			require.Equal(t, test.code, resp.Code, resp.Log)
			if test.contains != "" {
				require.Contains(t, resp.Log, test.contains)
			}
		})
	}
}

func TestDeliverTx(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		disable  int64
		enable   int64
		height   int64
		tx       func(t *testing.T) []byte
		code     uint32
		contains string
	}{
		{
			name:    "native",
			detail:  "a valid native transaction is applied",
			height:  2,
			tx:      func(t *testing.T) []byte { return issueTx(t, 5) },
			code:    lib.CodeTypeOK,
		},
		{
			name:     "native undecodable",
			detail:   "decoding failures are rejected without touching state",
			height:   2,
			tx:       func(t *testing.T) []byte { return []byte(`{"body":`) },
			code:     lib.CodeTypeRejected,
			contains: "invalid transaction format",
		},
		{
			name:     "native ledger rejection",
			detail:   "the native ledger's own rules apply",
			height:   2,
			tx:       func(t *testing.T) []byte { return convertTx(t, 42, 1) },
			code:     lib.CodeTypeRejected,
			contains: "not found",
		},
		{
			name:     "evm inside window",
			detail:   "evm delivery is refused while the evm ledger is off",
			disable:  1,
			enable:   5,
			height:   2,
			tx:       func(t *testing.T) []byte { return evmTx(t, 0) },
			code:     lib.CodeTypeEVMDisabled,
			contains: "EVM is disabled",
		},
		{
			name:   "evm outside window",
			detail: "evm delivery goes to the evm ledger",
			height: 2,
			tx:     func(t *testing.T) []byte { return evmTx(t, 0) },
			code:   lib.CodeTypeOK,
		},
		{
			name:     "unknown",
			detail:   "unknown transactions never reach a ledger",
			height:   2,
			tx:       func(t *testing.T) []byte { return []byte{0x00, 0x01} },
			code:     lib.CodeTypeRejected,
			contains: "unknown transaction format",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			n := newTestNode(t, newTestConfig(t, test.disable, test.enable))
			defer n.close()
			n.c.Info(lib.RequestInfo{})
			n.c.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: test.height}})
			resp := n.c.DeliverTx(lib.RequestDeliverTx{Tx: test.tx(t)})
			require.Equal(t, test.code, resp.Code, resp.Log)
			if test.contains != "" {
				require.Contains(t, resp.Log, test.contains)
			}
			require.Empty(t, n.halted)
		})
	}
}

func TestConversionAtomic(t *testing.T) {
	tests := []struct {
		name       string
		detail     string
		convert    func(t *testing.T) []byte
		ok         bool
		evmBalance uint64
		txoSpent   bool
	}{
		{
			name:       "both sides succeed",
			detail:     "the txo is spent and the receiver credited",
			convert:    func(t *testing.T) []byte { return convertTx(t, 0, 100) },
			ok:         true,
			evmBalance: 100,
			txoSpent:   true,
		},
		{
			name:    "native side fails",
			detail:  "the evm credit is discarded when the native spend is rejected",
			convert: func(t *testing.T) []byte { return convertTx(t, 0, 99) },
		},
		{
			name:    "native input missing",
			detail:  "the evm credit is discarded when the input doesn't exist",
			convert: func(t *testing.T) []byte { return convertTx(t, 7, 100) },
		},
		{
			name:   "evm side fails",
			detail: "nothing is applied when the receiver is not an evm address",
			convert: func(t *testing.T) []byte {
				return nativeTx(t, 2, ledger.Operation{Type: ledger.OpConvertAccount, Inputs: []uint64{0}, Receiver: lib.HexBytes{1, 2}, Asset: testAsset, Amount: 100})
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			n := newTestNode(t, newTestConfig(t, 0, 0))
			defer n.close()
			n.c.Info(lib.RequestInfo{})
			n.block(t, 1, issueTx(t, 100))
			responses, _ := n.block(t, 2, test.convert(t))
			require.Equal(t, test.ok, responses[0].IsOK(), test.detail+": "+responses[0].Log)
			require.Equal(t, test.evmBalance, n.evmBalance(t), test.detail)
			txo, err := n.native.GetTxo(0)
			require.NoError(t, err)
			require.Equal(t, test.txoSpent, txo == nil, test.detail)
		})
	}
}

func TestConversionInsideWindowRejected(t *testing.T) {
	n := newTestNode(t, newTestConfig(t, 1, 10))
	defer n.close()
	n.c.Info(lib.RequestInfo{})
	n.block(t, 2, issueTx(t, 100))
	responses, appHash := n.block(t, 3, convertTx(t, 0, 100))
	require.Equal(t, lib.CodeTypeEVMDisabled, responses[0].Code)
	require.Contains(t, responses[0].Log, "EVM is disabled")
	require.Zero(t, n.evmBalance(t))
	// the input is still unspent
	txo, err := n.native.GetTxo(0)
	require.NoError(t, err)
	require.Equal(t, uint64(100), txo.Amount)
	require.Equal(t, n.native.StateCommitment(), appHash)
}

func TestDuplicateInSameBlock(t *testing.T) {
	n := newTestNode(t, newTestConfig(t, 0, 0))
	defer n.close()
	n.c.Info(lib.RequestInfo{})
	tx := issueTx(t, 10)
	responses, _ := n.block(t, 1, tx, tx)
	require.True(t, responses[0].IsOK(), responses[0].Log)
	require.False(t, responses[1].IsOK())
	require.Contains(t, responses[1].Log, "historical transaction")
	// the first copy was applied exactly once
	txo, err := n.native.GetTxo(0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), txo.Amount)
	txo, err = n.native.GetTxo(1)
	require.NoError(t, err)
	require.Nil(t, txo)
}

func TestReplayAcrossBlocks(t *testing.T) {
	n := newTestNode(t, newTestConfig(t, 0, 0))
	defer n.close()
	n.c.Info(lib.RequestInfo{})
	tx := issueTx(t, 10)
	responses, _ := n.block(t, 1, tx)
	require.True(t, responses[0].IsOK(), responses[0].Log)
	// once the history write lands the fingerprint is refused everywhere
	require.NoError(t, n.history.Sync(time.Second))
	check := n.c.CheckTx(lib.RequestCheckTx{Tx: tx})
	require.Equal(t, lib.CodeTypeRejected, check.Code)
	require.Contains(t, check.Log, "historical transaction")
	responses, _ = n.block(t, 2, tx)
	require.False(t, responses[0].IsOK())
	require.Contains(t, responses[0].Log, "historical transaction")
}

func TestReplayBeforeHistoryLands(t *testing.T) {
	config := newTestConfig(t, 0, 0)
	// the writer never flushes on its own
	config.HistoryConfig = lib.HistoryConfig{QueueSize: 64, FlushSize: 1000, FlushIntervalMS: 60_000, MaxRetryMS: 100}
	n := newTestNode(t, config)
	defer n.close()
	n.c.Info(lib.RequestInfo{})
	n.block(t, 1, issueTx(t, 100))
	spend := nativeTx(t, 5, ledger.Operation{Type: ledger.OpTransferAsset, Inputs: []uint64{0}, Outputs: []ledger.Output{
		{Owner: testOwner, Asset: testAsset, Amount: 100},
	}})
	responses, _ := n.block(t, 2, spend)
	require.True(t, responses[0].IsOK(), responses[0].Log)
	// not yet in the history, so the native ledger is what rejects the replay
	found, err := n.history.Contains(mustDecode(t, spend).Hash())
	require.NoError(t, err)
	require.False(t, found)
	responses, _ = n.block(t, 3, spend)
	require.False(t, responses[0].IsOK())
	require.Contains(t, responses[0].Log, "already applied")
}

func TestReplayIssueBeforeHistoryLands(t *testing.T) {
	config := newTestConfig(t, 0, 0)
	config.HistoryConfig = lib.HistoryConfig{QueueSize: 64, FlushSize: 1000, FlushIntervalMS: 60_000, MaxRetryMS: 100}
	n := newTestNode(t, config)
	defer n.close()
	n.c.Info(lib.RequestInfo{})
	define := nativeTx(t, 1, ledger.Operation{Type: ledger.OpDefineAsset, Asset: testAsset, Issuer: testOwner})
	issue := nativeTx(t, 2, ledger.Operation{Type: ledger.OpIssueAsset, Asset: testAsset, Outputs: []ledger.Output{
		{Owner: testOwner, Asset: testAsset, Amount: 50},
	}})
	n.block(t, 1, define)
	responses, _ := n.block(t, 2, issue)
	require.True(t, responses[0].IsOK(), responses[0].Log)
	// an issue consumes no inputs; only the ledger's applied set can refuse the copy
	responses, appHash := n.block(t, 3, issue)
	require.False(t, responses[0].IsOK())
	require.Contains(t, responses[0].Log, "already applied")
	txo, err := n.native.GetTxo(1)
	require.NoError(t, err)
	require.Nil(t, txo)
	// a node whose history had landed rejects the copy too and reaches the same commitment
	other := newTestNode(t, newTestConfig(t, 0, 0))
	defer other.close()
	other.c.Info(lib.RequestInfo{})
	other.block(t, 1, define)
	other.block(t, 2, issue)
	require.NoError(t, other.history.Sync(time.Second))
	responses, otherHash := other.block(t, 3, issue)
	require.Contains(t, responses[0].Log, "historical transaction")
	require.Equal(t, appHash, otherHash)
}

func TestKeepHistoryEvents(t *testing.T) {
	config := newTestConfig(t, 0, 0)
	config.KeepHistory = true
	n := newTestNode(t, config)
	defer n.close()
	n.c.Info(lib.RequestInfo{})
	n.block(t, 1, issueTx(t, 100))
	responses, _ := n.block(t, 2, convertTx(t, 0, 100))
	require.True(t, responses[0].IsOK(), responses[0].Log)
	events := responses[0].Events
	require.Len(t, events, 2)
	require.Equal(t, EventTypeNativeTx, events[0].Type)
	require.Equal(t, EventTypeConvert, events[1].Type)
	require.Equal(t, lib.EventAttribute{Key: "receiver", Value: testReceiver.String(), Index: true}, events[1].Attributes[0])
}

func mustDecode(t *testing.T, raw []byte) *ledger.Transaction {
	tx, err := ledger.DecodeTransaction(raw)
	require.NoError(t, err)
	return tx
}
