// Package controller is the consensus facing core: it receives the block lifecycle callbacks and drives the
// native and evm ledgers in lock step, producing one app hash per block.
package controller

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
)

// Version is reported to the consensus engine at Info()
const Version = "0.1.0"

var _ lib.ApplicationI = new(Controller)

// HistoryI is the replay history the controller consults and feeds
type HistoryI interface {
	// Contains() reports whether the fingerprint was durably recorded
	Contains(fingerprint []byte) (bool, lib.ErrorI)
	// Record() schedules the fingerprint for insertion without blocking
	Record(fingerprint []byte, height int64)
}

/*
Controller acts as the 'manager' of the two ledgers: it implements the consensus lifecycle
(Info, BeginBlock, CheckTx, DeliverTx, EndBlock, Commit) and routes each call by transaction catalog
and by the evm feature window.

Locking:
  - laMu guards the native ledger, the pending block and the staking module. Lifecycle phases take it exclusively.
  - evmMu guards the evm app. CheckTx shares it; DeliverTx, BeginBlock, EndBlock and Commit take it exclusively.
  - laMu is always acquired before evmMu.

CheckTx never touches laMu: native admission only reads the replay history, which has its own lock.
*/
type Controller struct {
	config lib.Config
	window lib.FeatureWindow

	laMu    sync.RWMutex
	native  ledger.NativeLedger
	staking ledger.Staking
	pending *PendingBlock
	status  *Status // the last status written at Commit

	evmMu sync.RWMutex
	evm   ledger.EVMApp

	history HistoryI

	height         atomic.Int64 // the height being processed
	inSafeInterval atomic.Bool  // true from BeginBlock until EndBlock
	bbMu           sync.Mutex
	beginBlock     *lib.RequestBeginBlock // context retained for EndBlock
	blockStart     time.Time

	signal  *lib.BlockSignal
	metrics *lib.Metrics
	log     lib.LoggerI
	halt    func(format string, args ...any) // stops the node when its commitment can no longer be trusted
}

// New() creates a new instance of a Controller, this is the entry point when initializing the application
func New(c lib.Config, native ledger.NativeLedger, evm ledger.EVMApp, staking ledger.Staking, history HistoryI, metrics *lib.Metrics, l lib.LoggerI) (*Controller, lib.ErrorI) {
	// validate the feature window once; it's a fixed input for the life of the process
	window, err := c.CheckpointConfig.Window()
	if err != nil {
		return nil, err
	}
	log := lib.WithPrefix(l, "controller")
	controller := &Controller{
		config:  c,
		window:  window,
		native:  native,
		staking: staking,
		evm:     evm,
		history: history,
		signal:  lib.NewBlockSignal(),
		metrics: metrics,
		log:     log,
		halt:    log.Fatalf,
	}
	// restore the height from the persisted marker
	controller.height.Store(native.Height())
	// load the last status if one exists
	if status, e := LoadStatus(c.DataDirPath); e == nil {
		controller.status = status
	}
	return controller, nil
}

// Stop() releases anything waiting on the block signal
func (c *Controller) Stop() { c.signal.Close() }

// Height() returns the height being processed
func (c *Controller) Height() int64 { return c.height.Load() }

// Window() returns the evm feature window
func (c *Controller) Window() lib.FeatureWindow { return c.window }

// BlockSignal() is notified every time a new block begins
func (c *Controller) BlockSignal() *lib.BlockSignal { return c.signal }

// InSafeInterval() is true while a block is accumulating transactions; committed state is stable then
func (c *Controller) InSafeInterval() bool { return c.inSafeInterval.Load() }

// Status() returns the last committed status without waiting on a lifecycle phase in progress
func (c *Controller) Status() (*Status, lib.ErrorI) {
	// never queue behind a block phase
	if !c.laMu.TryRLock() {
		return nil, ErrBlockInProgress()
	}
	defer c.laMu.RUnlock()
	if c.status == nil {
		return nil, ErrNoStatus()
	}
	s := *c.status
	return &s, nil
}

// setBeginBlock() saves the context of the block that just began
func (c *Controller) setBeginBlock(req lib.RequestBeginBlock) {
	c.bbMu.Lock()
	defer c.bbMu.Unlock()
	c.beginBlock = &req
}

// getBeginBlock() returns the context of the current block, empty if no block began since startup
func (c *Controller) getBeginBlock() lib.RequestBeginBlock {
	c.bbMu.Lock()
	defer c.bbMu.Unlock()
	if c.beginBlock == nil {
		return lib.RequestBeginBlock{}
	}
	return *c.beginBlock
}

// evmDisabled() is true when the evm ledger is switched off at height
func (c *Controller) evmDisabled(height int64) bool { return c.window.AppliesAt(height) }
