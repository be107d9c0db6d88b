package staking

import (
	"testing"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/store"
	"github.com/stretchr/testify/require"
)

var (
	alice = lib.GenesisValidator{Address: lib.HexBytes("alice"), PubKey: lib.HexBytes("alice-pub"), Power: 10}
	bob   = lib.GenesisValidator{Address: lib.HexBytes("bob"), PubKey: lib.HexBytes("bob-pub"), Power: 20}
)

func newTestStaking(t *testing.T, config lib.StakingConfig) (*Staking, *store.Store) {
	db, err := store.NewStoreInMemory(lib.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := New(config, db, lib.NewNullLogger())
	require.NoError(t, err)
	return s, db
}

func TestGenesisSeed(t *testing.T) {
	config := lib.StakingConfig{Validators: []lib.GenesisValidator{alice, bob}}
	s, db := newTestStaking(t, config)
	v, ok := s.Validator(alice.Address)
	require.True(t, ok)
	require.Equal(t, int64(10), v.Power)
	// genesis only seeds an empty table
	config.Validators[0].Power = 99
	reloaded, err := New(config, db, lib.NewNullLogger())
	require.NoError(t, err)
	v, ok = reloaded.Validator(alice.Address)
	require.True(t, ok)
	require.Equal(t, int64(10), v.Power)
	_, ok = reloaded.Validator(lib.HexBytes("carol"))
	require.False(t, ok)
}

func TestSystemMintPay(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		config   lib.StakingConfig
		height   int64
		proposer []byte
		jail     bool
		minted   bool
	}{
		{
			name:     "interval height",
			detail:   "the previous proposer is paid on interval heights",
			config:   lib.StakingConfig{CoinbaseInterval: 2, CoinbaseAmount: 5, CoinbaseAsset: "FRA"},
			height:   4,
			proposer: alice.Address,
			minted:   true,
		},
		{
			name:     "off interval",
			detail:   "other heights mint nothing",
			config:   lib.StakingConfig{CoinbaseInterval: 2, CoinbaseAmount: 5, CoinbaseAsset: "FRA"},
			height:   3,
			proposer: alice.Address,
		},
		{
			name:     "disabled",
			detail:   "a zero interval disables the coinbase",
			config:   lib.StakingConfig{CoinbaseAmount: 5, CoinbaseAsset: "FRA"},
			height:   4,
			proposer: alice.Address,
		},
		{
			name:     "unknown proposer",
			detail:   "only validators are paid",
			config:   lib.StakingConfig{CoinbaseInterval: 1, CoinbaseAmount: 5, CoinbaseAsset: "FRA"},
			height:   4,
			proposer: []byte("mallory"),
		},
		{
			name:     "jailed proposer",
			detail:   "jailed validators aren't paid",
			config:   lib.StakingConfig{CoinbaseInterval: 1, CoinbaseAmount: 5, CoinbaseAsset: "FRA"},
			height:   4,
			proposer: alice.Address,
			jail:     true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.config.Validators = []lib.GenesisValidator{alice, bob}
			s, _ := newTestStaking(t, test.config)
			var byzantine []lib.Evidence
			if test.jail {
				byzantine = []lib.Evidence{{Type: "duplicate_vote", Validator: lib.Validator{Address: alice.Address}}}
			}
			require.NoError(t, s.SystemOps(lib.Header{Height: test.height - 1, ProposerAddress: test.proposer}, lib.LastCommitInfo{}, byzantine))
			s.SetHeight(test.height)
			tx, err := s.SystemMintPay(nil)
			require.NoError(t, err)
			if !test.minted {
				require.Nil(t, tx)
				return
			}
			require.NotNil(t, tx)
			require.False(t, tx.ValidInABCI())
			require.Equal(t, []ledger.Output{{Owner: alice.Address, Asset: "FRA", Amount: 5}}, tx.Body.Operations[0].Outputs)
		})
	}
}

func TestSystemOpsJailing(t *testing.T) {
	s, db := newTestStaking(t, lib.StakingConfig{Validators: []lib.GenesisValidator{alice, bob}})
	evidence := lib.Evidence{Type: "duplicate_vote", Validator: lib.Validator{Address: bob.Address}, Height: 3}
	require.NoError(t, s.SystemOps(lib.Header{Height: 4, ProposerAddress: alice.Address}, lib.LastCommitInfo{}, []lib.Evidence{evidence, evidence}))
	updates, err := s.GetValidators(lib.LastCommitInfo{})
	require.NoError(t, err)
	require.Equal(t, []lib.ValidatorUpdate{{PubKey: bob.PubKey, Power: 0}}, updates)
	// reported once
	updates, err = s.GetValidators(lib.LastCommitInfo{})
	require.NoError(t, err)
	require.Empty(t, updates)
	// jailing again changes nothing
	require.NoError(t, s.SystemOps(lib.Header{Height: 5, ProposerAddress: alice.Address}, lib.LastCommitInfo{}, []lib.Evidence{evidence}))
	updates, err = s.GetValidators(lib.LastCommitInfo{})
	require.NoError(t, err)
	require.Empty(t, updates)
	// persisted before it became visible
	reloaded, err := New(lib.StakingConfig{}, db, lib.NewNullLogger())
	require.NoError(t, err)
	v, ok := reloaded.Validator(bob.Address)
	require.True(t, ok)
	require.True(t, v.Jailed)
	v, ok = reloaded.Validator(alice.Address)
	require.True(t, ok)
	require.Equal(t, uint64(2), v.Proposed)
	// the proposer was written in the same batch and is paid after a reload
	reloaded, err = New(lib.StakingConfig{CoinbaseInterval: 1, CoinbaseAmount: 3, CoinbaseAsset: "FRA"}, db, lib.NewNullLogger())
	require.NoError(t, err)
	reloaded.SetHeight(6)
	tx, err := reloaded.SystemMintPay(nil)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, []ledger.Output{{Owner: alice.Address, Asset: "FRA", Amount: 3}}, tx.Body.Operations[0].Outputs)
}

func TestRefreshSimulator(t *testing.T) {
	s, db := newTestStaking(t, lib.StakingConfig{Validators: []lib.GenesisValidator{alice}})
	// a write that bypassed the projection becomes visible after a refresh
	bz, err := lib.Marshal(&Validator{Address: bob.Address, PubKey: bob.PubKey, Power: 7})
	require.NoError(t, err)
	require.NoError(t, db.Set(append(append([]byte{}, validatorPrefix...), bob.Address...), bz))
	_, ok := s.Validator(bob.Address)
	require.False(t, ok)
	require.NoError(t, s.RefreshSimulator())
	v, ok := s.Validator(bob.Address)
	require.True(t, ok)
	require.Equal(t, int64(7), v.Power)
	_, ok = s.Validator(alice.Address)
	require.True(t, ok)
}
