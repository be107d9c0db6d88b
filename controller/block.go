package controller

import (
	"time"

	"github.com/canopy-network/dualledger/ledger"
	"github.com/canopy-network/dualledger/lib"
)

// PendingBlock accumulates the native transactions of the block being delivered
type PendingBlock struct {
	native ledger.NativeLedger
	block  ledger.OpenBlock
	seen   map[string]struct{} // fingerprints delivered while this block was open
}

// openPendingBlock() starts a new native block
func openPendingBlock(native ledger.NativeLedger) (*PendingBlock, lib.ErrorI) {
	block, err := native.StartBlock()
	if err != nil {
		return nil, err
	}
	return &PendingBlock{native: native, block: block, seen: make(map[string]struct{})}, nil
}

// CacheTransaction() computes the transaction's effect and applies it to the open block
func (p *PendingBlock) CacheTransaction(tx *ledger.Transaction) lib.ErrorI {
	effect, err := p.native.ComputeEffect(tx)
	if err != nil {
		return err
	}
	return p.native.ApplyTransaction(p.block, effect)
}

// TxnCount() returns the number of transactions applied to the open block
func (p *PendingBlock) TxnCount() int { return p.block.TxnCount() }

// Finish() merges the block into committed native state
func (p *PendingBlock) Finish() lib.ErrorI { return p.native.FinishBlock(p.block) }

// markSeen() records a fingerprint and reports whether it was already delivered in this block
func (p *PendingBlock) markSeen(fingerprint []byte) (duplicate bool) {
	if _, duplicate = p.seen[string(fingerprint)]; !duplicate {
		p.seen[string(fingerprint)] = struct{}{}
	}
	return
}

// BeginBlock() records the block context, advances the height and prepares both ledgers for delivery
func (c *Controller) BeginBlock(req lib.RequestBeginBlock) lib.ResponseBeginBlock {
	c.laMu.Lock()
	defer c.laMu.Unlock()
	// retain the context for EndBlock
	c.setBeginBlock(req)
	height := req.Header.Height
	c.height.Store(height)
	c.blockStart = time.Now()
	c.inSafeInterval.Store(true)
	// persist whatever the previous block left buffered; failure here costs nothing but recovery time
	if err := c.native.Flush(); err != nil {
		c.log.Warnf("Flush before height %d failed: %s", height, err.Error())
	}
	if err := c.native.Snapshot(height - 1); err != nil {
		c.log.Warnf("Snapshot of height %d failed: %s", height-1, err.Error())
	}
	// wake readers waiting for a new block
	c.signal.Notify()
	c.staking.SetHeight(height)
	// open a block if the last one was finished, otherwise the open block carries over and staking is re-simulated
	if c.pending == nil {
		if !c.openBlock() {
			return lib.ResponseBeginBlock{}
		}
	} else if err := c.staking.RefreshSimulator(); err != nil {
		c.log.Errorf("Refreshing staking simulator at height %d failed: %s", height, err.Error())
	}
	disabled := c.evmDisabled(height)
	c.metrics.UpdateHeight(height, disabled)
	if disabled {
		return lib.ResponseBeginBlock{}
	}
	c.evmMu.Lock()
	defer c.evmMu.Unlock()
	return c.evm.BeginBlock(req)
}

// EndBlock() applies the block's system transaction, finishes the native block and reports validator changes
func (c *Controller) EndBlock(req lib.RequestEndBlock) lib.ResponseEndBlock {
	c.laMu.Lock()
	defer c.laMu.Unlock()
	c.inSafeInterval.Store(false)
	ctx, height := c.getBeginBlock(), c.height.Load()
	if req.Height != 0 && req.Height != height {
		c.log.Errorf("EndBlock height %d differs from BeginBlock height %d", req.Height, height)
	}
	if c.pending == nil && !c.openBlock() {
		return lib.ResponseEndBlock{}
	}
	// staking may pay out through a system transaction
	c.evmMu.RLock()
	systemTx, err := c.staking.SystemMintPay(c.evm)
	c.evmMu.RUnlock()
	if err != nil {
		c.halt("System mint pay at height %d failed: %s", height, err.Error())
		return lib.ResponseEndBlock{}
	}
	if systemTx != nil {
		if err = c.pending.CacheTransaction(systemTx); err != nil {
			c.halt("System transaction at height %d was rejected: %s", height, err.Error())
			return lib.ResponseEndBlock{}
		}
	}
	// an empty block stays open and is reused by the next height
	txCount := c.pending.TxnCount()
	if txCount > 0 {
		if err = c.pending.Finish(); err != nil {
			c.halt("Finishing native block at height %d failed: %s", height, err.Error())
			return lib.ResponseEndBlock{}
		}
		c.pending = nil
	}
	// updates come from changes made by earlier blocks; this block's punishments are reported at the next one
	updates, err := c.staking.GetValidators(ctx.LastCommitInfo)
	if err != nil {
		c.halt("Loading validator updates at height %d failed: %s", height, err.Error())
		return lib.ResponseEndBlock{}
	}
	if err = c.staking.SystemOps(ctx.Header, ctx.LastCommitInfo, ctx.ByzantineValidators); err != nil {
		c.halt("Staking system operations at height %d failed: %s", height, err.Error())
		return lib.ResponseEndBlock{}
	}
	resp := lib.ResponseEndBlock{ValidatorUpdates: updates}
	if !c.evmDisabled(height) {
		c.evmMu.Lock()
		evmResp := c.evm.EndBlock(req)
		c.evmMu.Unlock()
		resp.ValidatorUpdates = append(resp.ValidatorUpdates, evmResp.ValidatorUpdates...)
		resp.Events = append(resp.Events, evmResp.Events...)
	}
	c.metrics.ObserveBlock(c.blockStart, txCount)
	c.log.Debugf("Ended block %d with %d native txs and %d validator updates", height, txCount, len(resp.ValidatorUpdates))
	return resp
}

// Commit() persists the height marker, commits the evm ledger, writes the status file and returns the app hash
func (c *Controller) Commit(_ lib.RequestCommit) lib.ResponseCommit {
	c.laMu.Lock()
	defer c.laMu.Unlock()
	height := c.height.Load()
	if err := c.native.SetHeight(height); err != nil {
		c.halt("Persisting height marker %d failed: %s", height, err.Error())
		return lib.ResponseCommit{}
	}
	c.evmMu.Lock()
	defer c.evmMu.Unlock()
	// inside the window the evm ledger is inert and keeps its last root
	evmRoot := c.evm.Info().LastBlockAppHash
	if !c.evmDisabled(height) {
		root, err := c.evm.Commit(height)
		if err != nil {
			c.halt("EVM commit at height %d failed: %s", height, err.Error())
			return lib.ResponseCommit{}
		}
		evmRoot = root
	}
	nativeRoot := c.native.StateCommitment()
	appHash := AppHash(c.window, height, nativeRoot, evmRoot)
	status := &Status{
		Height:                height,
		NativeRoot:            nativeRoot,
		EVMRoot:               evmRoot,
		AppHash:               appHash,
		BlockCount:            c.native.BlockCount(),
		DisableEVMBlockHeight: c.window.DisableHeight,
		EnableEVMBlockHeight:  c.window.EnableHeight,
	}
	// a commitment that can't be proven persisted must never be reported
	if err := status.write(c.config.DataDirPath); err != nil {
		c.halt("Writing status at height %d failed: %s", height, err.Error())
		return lib.ResponseCommit{}
	}
	c.status = status
	c.log.Infof("Committed height %d with app hash %s", height, lib.BytesToTruncatedString(appHash))
	return lib.ResponseCommit{Data: appHash}
}

// openBlock() opens a pending block, halting if the native ledger refuses
func (c *Controller) openBlock() bool {
	pending, err := openPendingBlock(c.native)
	if err != nil {
		c.halt("Opening native block failed: %s", err.Error())
		return false
	}
	c.pending = pending
	return true
}
