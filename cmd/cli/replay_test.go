package cli

import (
	"testing"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/stretchr/testify/require"
)

func TestReplay(t *testing.T) {
	l = lib.NewNullLogger()
	c := lib.DefaultConfig()
	c.DataDirPath = t.TempDir()
	c.MetricsConfig.Enabled = false
	issue, err := lib.MarshalJSON(&ledger.Transaction{Body: ledger.Body{Operations: []ledger.Operation{
		{Type: ledger.OpDefineAsset, Asset: "A", Issuer: lib.HexBytes("issuer")},
		{Type: ledger.OpIssueAsset, Asset: "A", Outputs: []ledger.Output{{Owner: lib.HexBytes("owner"), Asset: "A", Amount: 5}}},
	}}})
	require.NoError(t, err)
	blocks := []ReplayBlock{
		{RequestBeginBlock: lib.RequestBeginBlock{Header: lib.Header{Height: 1}}, Txs: []lib.HexBytes{issue, issue, lib.HexBytes("junk")}},
		{RequestBeginBlock: lib.RequestBeginBlock{Header: lib.Header{Height: 2}}},
	}
	n, err := NewNode(c, nil, l)
	require.NoError(t, err)
	summary, err := Replay(n.App, blocks)
	require.NoError(t, err)
	require.Equal(t, ReplaySummary{Applied: 1, Rejected: 2}, summary)
	n.Close()
	// a second run resumes after the committed height and skips everything
	n, err = NewNode(c, nil, l)
	require.NoError(t, err)
	defer n.Close()
	summary, err = Replay(n.App, blocks)
	require.NoError(t, err)
	require.Zero(t, summary)
	// a gap is refused
	_, err = Replay(n.App, []ReplayBlock{{RequestBeginBlock: lib.RequestBeginBlock{Header: lib.Header{Height: 5}}}})
	require.Error(t, err)
}
