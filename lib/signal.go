package lib

import "sync"

// BlockSignal wakes readers that want to refresh their view once a new block has started.
// Notifications coalesce: many Notify() calls before a Wait() release it once.
type BlockSignal struct {
	mu      sync.Mutex
	cond    *sync.Cond
	created bool
	closed  bool
}

// NewBlockSignal() constructs a ready to use BlockSignal
func NewBlockSignal() *BlockSignal {
	s := &BlockSignal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Notify() records that a block was created and wakes one waiter
func (s *BlockSignal) Notify() {
	s.mu.Lock()
	s.created = true
	s.mu.Unlock()
	s.cond.Signal()
}

// Wait() blocks until a block is created or the signal is closed; returns false once closed
func (s *BlockSignal) Wait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.created && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return false
	}
	s.created = false
	return true
}

// Close() releases every waiter permanently
func (s *BlockSignal) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
