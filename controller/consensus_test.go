package controller

import (
	"bytes"
	"testing"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/lib/crypto"
	"github.com/stretchr/testify/require"
)

func TestAppHash(t *testing.T) {
	window, err := lib.NewFeatureWindow(10, 20)
	require.NoError(t, err)
	native, evm := crypto.Hash([]byte("native")), crypto.Hash([]byte("evm"))
	tests := []struct {
		name     string
		detail   string
		height   int64
		evmRoot  []byte
		expected []byte
	}{
		{
			name:     "inside window",
			detail:   "the evm root is ignored even when present",
			height:   15,
			evmRoot:  evm,
			expected: native,
		},
		{
			name:     "outside window",
			detail:   "both roots are hashed together",
			height:   25,
			evmRoot:  evm,
			expected: crypto.HashConcat(native, evm),
		},
		{
			name:     "at disable height",
			detail:   "the window excludes its left edge",
			height:   10,
			evmRoot:  evm,
			expected: crypto.HashConcat(native, evm),
		},
		{
			name:     "at enable height",
			detail:   "the window excludes its right edge",
			height:   20,
			evmRoot:  evm,
			expected: crypto.HashConcat(native, evm),
		},
		{
			name:     "empty evm root",
			detail:   "an evm ledger without state contributes nothing",
			height:   25,
			evmRoot:  []byte{},
			expected: native,
		},
		{
			name:     "nil evm root",
			detail:   "an evm ledger that never committed contributes nothing",
			height:   5,
			evmRoot:  nil,
			expected: native,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := AppHash(window, test.height, native, test.evmRoot)
			require.Equal(t, test.expected, got, test.detail)
			// recomputing from the same roots is stable
			require.Equal(t, got, AppHash(window, test.height, native, test.evmRoot))
		})
	}
}

func TestAppHashSensitivity(t *testing.T) {
	window, err := lib.NewFeatureWindow(10, 20)
	require.NoError(t, err)
	native, evm := crypto.Hash([]byte("native")), crypto.Hash([]byte("evm"))
	for _, height := range []int64{1, 10, 20, 21, 1000} {
		base := AppHash(window, height, native, evm)
		require.False(t, bytes.Equal(base, AppHash(window, height, crypto.Hash([]byte("other")), evm)))
		require.False(t, bytes.Equal(base, AppHash(window, height, native, crypto.Hash([]byte("other")))))
	}
	// inside the window only the native root matters
	for height := int64(11); height < 20; height++ {
		require.Equal(t, AppHash(window, height, native, evm), AppHash(window, height, native, crypto.Hash([]byte("other"))))
	}
}

func TestInfoAfterRestart(t *testing.T) {
	tests := []struct {
		name    string
		detail  string
		disable int64
		enable  int64
		tx      func(t *testing.T) []byte
	}{
		{
			name:    "evm enabled",
			detail:  "the combined hash is reported again after restart",
			disable: 0,
			enable:  0,
			tx:      func(t *testing.T) []byte { return convertTx(t, 0, 100) },
		},
		{
			name:    "evm disabled",
			detail:  "the native hash is reported again after restart",
			disable: 1,
			enable:  100,
			tx: func(t *testing.T) []byte {
				return nativeTx(t, 3, ledger.Operation{Type: ledger.OpTransferAsset, Inputs: []uint64{0}, Outputs: []ledger.Output{
					{Owner: testOwner, Asset: testAsset, Amount: 100},
				}})
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := newTestConfig(t, test.disable, test.enable)
			n := newTestNode(t, config)
			info := n.c.Info(lib.RequestInfo{})
			require.Zero(t, info.LastBlockHeight)
			require.Empty(t, info.LastBlockAppHash)
			n.block(t, 9, issueTx(t, 100))
			responses, appHash := n.block(t, 10, test.tx(t))
			require.True(t, responses[0].IsOK(), responses[0].Log)
			require.NotEmpty(t, appHash)
			n.close()
			// restart from the same data directory
			n = newTestNode(t, config)
			defer n.close()
			info = n.c.Info(lib.RequestInfo{})
			require.Equal(t, int64(10), info.LastBlockHeight, test.detail)
			require.Equal(t, appHash, []byte(info.LastBlockAppHash), test.detail)
			require.NotNil(t, n.c.pending)
			// Info is idempotent
			require.Equal(t, info, n.c.Info(lib.RequestInfo{}))
		})
	}
}

func TestInfoMidBlockRestart(t *testing.T) {
	config := newTestConfig(t, 0, 0)
	n := newTestNode(t, config)
	n.c.Info(lib.RequestInfo{})
	_, appHash := n.block(t, 1, issueTx(t, 100))
	// the next block begins and delivers but the node stops before EndBlock
	n.c.BeginBlock(lib.RequestBeginBlock{Header: lib.Header{Height: 2}})
	require.True(t, n.c.DeliverTx(lib.RequestDeliverTx{Tx: convertTx(t, 0, 100)}).IsOK())
	n.close()
	n = newTestNode(t, config)
	defer n.close()
	info := n.c.Info(lib.RequestInfo{})
	require.Equal(t, int64(1), info.LastBlockHeight)
	require.Equal(t, appHash, []byte(info.LastBlockAppHash))
}
