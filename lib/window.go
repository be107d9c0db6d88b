package lib

// FeatureWindow is the closed-off range of heights in which the evm ledger is switched off.
// The range is exclusive on both ends: at DisableHeight and at EnableHeight the evm ledger runs.
// The zero value is an empty window.
type FeatureWindow struct {
	DisableHeight int64 `json:"disableHeight"`
	EnableHeight  int64 `json:"enableHeight"`
}

// NewFeatureWindow() validates and returns a window
func NewFeatureWindow(disable, enable int64) (FeatureWindow, ErrorI) {
	if disable > enable {
		return FeatureWindow{}, ErrInvalidWindow(disable, enable)
	}
	return FeatureWindow{DisableHeight: disable, EnableHeight: enable}, nil
}

// AppliesAt() reports whether the evm ledger is disabled at height
// every height sensitive decision (admission, delivery, begin/end block, app hash) goes through here
func (w FeatureWindow) AppliesAt(height int64) bool {
	return w.DisableHeight < height && height < w.EnableHeight
}

// IsEmpty() is true when no height can fall inside the window
func (w FeatureWindow) IsEmpty() bool { return w.EnableHeight-w.DisableHeight <= 1 }
