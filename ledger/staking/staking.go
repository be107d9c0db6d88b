// Package staking is the reference staking module: a validator power table, byzantine slashing and a periodic coinbase.
package staking

import (
	"bytes"
	"sort"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
)

var (
	validatorPrefix = []byte("s/val/")     // s/val/<address> -> Validator
	proposerKey     = []byte("s/proposer") // address of the last block's proposer

	_ ledger.Staking = &Staking{}
)

// Validator is a staked validator
type Validator struct {
	Address  []byte `cramberry:"1"`
	PubKey   []byte `cramberry:"2"`
	Power    int64  `cramberry:"3"`
	Jailed   bool   `cramberry:"4"`
	Proposed uint64 `cramberry:"5"`
}

// Staking keeps an in-memory projection of the validator table; every change made by SystemOps() is persisted
// before it becomes visible, so RefreshSimulator() can always rebuild the projection from the database
type Staking struct {
	db         lib.StoreI
	log        lib.LoggerI
	config     lib.StakingConfig
	height     int64
	validators map[string]*Validator
	proposer   []byte
	dirty      map[string]struct{} // validators whose power changed since the last report
}

// New() loads the validator table, seeding it from the configured genesis set on first start
func New(config lib.StakingConfig, db lib.StoreI, log lib.LoggerI) (*Staking, lib.ErrorI) {
	s := &Staking{db: db, log: log, config: config, dirty: make(map[string]struct{})}
	if err := s.RefreshSimulator(); err != nil {
		return nil, err
	}
	if len(s.validators) != 0 || len(config.Validators) == 0 {
		return s, nil
	}
	genesis := make([]*Validator, 0, len(config.Validators))
	for _, v := range config.Validators {
		genesis = append(genesis, &Validator{Address: v.Address, PubKey: v.PubKey, Power: v.Power})
	}
	if err := s.persist(genesis...); err != nil {
		return nil, err
	}
	for _, v := range genesis {
		s.validators[string(v.Address)] = v
	}
	return s, nil
}

// SetHeight() records the height being processed
func (s *Staking) SetHeight(height int64) { s.height = height }

// RefreshSimulator() rebuilds the in-memory projection from the database
func (s *Staking) RefreshSimulator() lib.ErrorI {
	it, err := s.db.Iterator(validatorPrefix)
	if err != nil {
		return err
	}
	defer it.Close()
	validators := make(map[string]*Validator)
	for ; it.Valid(); it.Next() {
		v := new(Validator)
		if err = lib.Unmarshal(it.Value(), v); err != nil {
			return err
		}
		validators[string(v.Address)] = v
	}
	proposer, err := s.db.Get(proposerKey)
	if err != nil {
		return err
	}
	s.validators, s.proposer = validators, proposer
	return nil
}

// SystemMintPay() pays the coinbase to the previous block's proposer every CoinbaseInterval heights
func (s *Staking) SystemMintPay(_ ledger.EVMApp) (*ledger.Transaction, lib.ErrorI) {
	if s.config.CoinbaseInterval <= 0 || s.config.CoinbaseAmount == 0 || s.height%s.config.CoinbaseInterval != 0 {
		return nil, nil
	}
	v, ok := s.validators[string(s.proposer)]
	if !ok || v.Jailed {
		return nil, nil
	}
	return ledger.NewSystemTransaction(s.height, ledger.Operation{
		Type: ledger.OpMintCoinbase,
		Outputs: []ledger.Output{{
			Owner:  v.Address,
			Asset:  s.config.CoinbaseAsset,
			Amount: s.config.CoinbaseAmount,
		}},
	})
}

// GetValidators() reports validators whose power changed since the last call, ordered by address
func (s *Staking) GetValidators(_ lib.LastCommitInfo) ([]lib.ValidatorUpdate, lib.ErrorI) {
	if len(s.dirty) == 0 {
		return nil, nil
	}
	updates := make([]lib.ValidatorUpdate, 0, len(s.dirty))
	addresses := make([]string, 0, len(s.dirty))
	for addr := range s.dirty {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	for _, addr := range addresses {
		v := s.validators[addr]
		power := v.Power
		if v.Jailed {
			power = 0
		}
		updates = append(updates, lib.ValidatorUpdate{PubKey: v.PubKey, Power: power})
	}
	s.dirty = make(map[string]struct{})
	return updates, nil
}

// SystemOps() credits the proposer and jails every validator with byzantine evidence against it
func (s *Staking) SystemOps(header lib.Header, _ lib.LastCommitInfo, byzantine []lib.Evidence) lib.ErrorI {
	pending := make(map[string]*Validator)
	// edit() returns a mutable copy of the projected validator
	edit := func(address []byte) *Validator {
		if v, ok := pending[string(address)]; ok {
			return v
		}
		v, ok := s.validators[string(address)]
		if !ok {
			return nil
		}
		c := *v
		pending[string(address)] = &c
		return &c
	}
	if v := edit(header.ProposerAddress); v != nil {
		v.Proposed++
	}
	for _, e := range byzantine {
		v := edit(e.Validator.Address)
		if v == nil || v.Jailed {
			continue
		}
		v.Jailed = true
		s.log.Warnf("Jailing validator %s for %s evidence at height %d", lib.BytesToString(v.Address), e.Type, e.Height)
	}
	changed := make([]*Validator, 0, len(pending))
	for _, v := range pending {
		changed = append(changed, v)
	}
	sort.Slice(changed, func(i, j int) bool { return bytes.Compare(changed[i].Address, changed[j].Address) < 0 })
	// the validator changes and the proposer land in one batch
	err := s.db.Batch(func(w lib.WStoreI) lib.ErrorI {
		if err := writeValidators(w, changed...); err != nil {
			return err
		}
		return w.Set(proposerKey, header.ProposerAddress)
	})
	if err != nil {
		return err
	}
	for _, v := range changed {
		if s.validators[string(v.Address)].Jailed != v.Jailed {
			s.dirty[string(v.Address)] = struct{}{}
		}
		s.validators[string(v.Address)] = v
	}
	s.proposer = header.ProposerAddress
	return nil
}

// Validator() returns the projected validator at address
func (s *Staking) Validator(address []byte) (Validator, bool) {
	v, ok := s.validators[string(address)]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// persist() writes validators atomically
func (s *Staking) persist(validators ...*Validator) lib.ErrorI {
	if len(validators) == 0 {
		return nil
	}
	return s.db.Batch(func(w lib.WStoreI) lib.ErrorI { return writeValidators(w, validators...) })
}

func writeValidators(w lib.WStoreI, validators ...*Validator) lib.ErrorI {
	for _, v := range validators {
		bz, err := lib.Marshal(v)
		if err != nil {
			return err
		}
		if err = w.Set(append(append([]byte{}, validatorPrefix...), v.Address...), bz); err != nil {
			return err
		}
	}
	return nil
}
