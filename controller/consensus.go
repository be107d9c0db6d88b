package controller

import (
	"bytes"

	"github.com/canopy-network/dualledger/lib"
	"github.com/canopy-network/dualledger/lib/crypto"
)

// AppHash() combines the two ledger roots into the commitment reported to consensus
// Info() and Commit() must both go through here or restarted nodes would disagree with running ones
func AppHash(window lib.FeatureWindow, height int64, nativeRoot, evmRoot []byte) []byte {
	// inside the window, or before the evm ledger has any state, only the native root counts
	if window.AppliesAt(height) || len(evmRoot) == 0 {
		return bytes.Clone(nativeRoot)
	}
	return crypto.HashConcat(nativeRoot, evmRoot)
}

// Info() reports the last committed height and app hash, and opens a native block if none is open
func (c *Controller) Info(req lib.RequestInfo) lib.ResponseInfo {
	c.laMu.Lock()
	defer c.laMu.Unlock()
	height := c.native.Height()
	c.height.Store(height)
	resp := lib.ResponseInfo{Data: "dualledger", Version: Version, LastBlockHeight: height}
	if height > 0 {
		c.evmMu.RLock()
		evmRoot := c.evm.Info().LastBlockAppHash
		c.evmMu.RUnlock()
		resp.LastBlockAppHash = AppHash(c.window, height, c.native.StateCommitment(), evmRoot)
		c.checkStatus(height, resp.LastBlockAppHash)
	}
	// a node restarted mid block already holds an open block
	if c.pending == nil {
		c.openBlock()
	}
	c.log.Infof("Info: last height %d, app hash %s", height, lib.BytesToTruncatedString(resp.LastBlockAppHash))
	return resp
}

// checkStatus() compares the recomputed commitment with the one written at the last Commit
func (c *Controller) checkStatus(height int64, appHash []byte) {
	if c.status == nil || c.status.Height != height {
		return
	}
	if !bytes.Equal(c.status.AppHash, appHash) {
		c.log.Errorf("App hash at height %d is %s but %s was committed", height, lib.BytesToString(appHash), c.status.AppHash)
	}
	if c.status.DisableEVMBlockHeight != c.window.DisableHeight || c.status.EnableEVMBlockHeight != c.window.EnableHeight {
		c.log.Warnf("EVM window changed from (%d, %d) to (%d, %d) since the last commit",
			c.status.DisableEVMBlockHeight, c.status.EnableEVMBlockHeight, c.window.DisableHeight, c.window.EnableHeight)
	}
}
