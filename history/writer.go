package history

import (
	"sync"
	"time"

	"github.com/canopy-network/dualledger/lib"
	"github.com/cenkalti/backoff/v4"
)

// writer buffers entries and flushes them by size or interval from a single goroutine
type writer struct {
	queue    chan Entry
	backlog  []Entry // entries that found the queue full, at most maxBacklog
	backMu   sync.Mutex
	wake     chan struct{}
	syncReqs chan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	flushSize     int
	flushInterval time.Duration
	maxRetry      time.Duration
	maxBacklog    int
	persist       func([]Entry) lib.ErrorI
	metrics       *lib.Metrics
	log           lib.LoggerI
}

func newWriter(config lib.HistoryConfig, persist func([]Entry) lib.ErrorI, metrics *lib.Metrics, log lib.LoggerI) *writer {
	if config.QueueSize <= 0 {
		config.QueueSize = lib.DefaultHistoryConfig().QueueSize
	}
	if config.FlushSize <= 0 {
		config.FlushSize = lib.DefaultHistoryConfig().FlushSize
	}
	if config.FlushIntervalMS == 0 {
		config.FlushIntervalMS = lib.DefaultHistoryConfig().FlushIntervalMS
	}
	// a zero budget would make backoff retry a failing batch forever and stall the writer
	if config.MaxRetryMS == 0 {
		config.MaxRetryMS = lib.DefaultHistoryConfig().MaxRetryMS
	}
	if config.MaxBacklog <= 0 {
		config.MaxBacklog = lib.DefaultHistoryConfig().MaxBacklog
	}
	return &writer{
		queue:         make(chan Entry, config.QueueSize),
		wake:          make(chan struct{}, 1),
		syncReqs:      make(chan chan struct{}),
		done:          make(chan struct{}),
		flushSize:     config.FlushSize,
		flushInterval: time.Duration(config.FlushIntervalMS) * time.Millisecond,
		maxRetry:      time.Duration(config.MaxRetryMS) * time.Millisecond,
		maxBacklog:    config.MaxBacklog,
		persist:       persist,
		metrics:       metrics,
		log:           log,
	}
}

func (w *writer) start() {
	w.wg.Add(1)
	go w.run()
}

// add() enqueues without blocking; a full queue spills into the backlog and a full backlog drops the entry
func (w *writer) add(e Entry) (added bool) {
	select {
	case w.queue <- e:
		w.metrics.UpdateHistoryQueue(len(w.queue))
		return true
	default:
	}
	w.backMu.Lock()
	if len(w.backlog) >= w.maxBacklog {
		w.backMu.Unlock()
		w.metrics.ObserveHistoryDrop()
		return false
	}
	w.backlog = append(w.backlog, e)
	w.backMu.Unlock()
	w.metrics.ObserveHistorySpill()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// sync() asks the writer to flush everything queued so far and waits for it
func (w *writer) sync(timeout time.Duration) lib.ErrorI {
	ack := make(chan struct{})
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case w.syncReqs <- ack:
	case <-w.done:
		return ErrHistoryClosed()
	case <-timer.C:
		return ErrHistoryTimeout(timeout)
	}
	select {
	case <-ack:
		return nil
	case <-timer.C:
		return ErrHistoryTimeout(timeout)
	}
}

// stop() flushes the remaining entries and waits for the writer to exit
func (w *writer) stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *writer) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	buf := make([]Entry, 0, w.flushSize)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		w.flush(buf)
		buf = make([]Entry, 0, w.flushSize)
	}
	// drain() moves everything queued or spilled into the buffer
	drain := func() {
		for {
			select {
			case e := <-w.queue:
				buf = append(buf, e)
				continue
			default:
			}
			break
		}
		w.backMu.Lock()
		buf = append(buf, w.backlog...)
		w.backlog = nil
		w.backMu.Unlock()
	}
	for {
		select {
		case e := <-w.queue:
			buf = append(buf, e)
			if len(buf) >= w.flushSize {
				flush()
			}
		case <-w.wake:
			drain()
			if len(buf) >= w.flushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case ack := <-w.syncReqs:
			drain()
			flush()
			close(ack)
		case <-w.done:
			drain()
			flush()
			return
		}
		w.metrics.UpdateHistoryQueue(len(w.queue))
	}
}

// flush() persists one batch, retrying with exponential backoff until maxRetry elapses
func (w *writer) flush(batch []Entry) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxElapsedTime = w.maxRetry
	err := backoff.Retry(func() error {
		if err := w.persist(batch); err != nil {
			w.log.Warnf("History batch of %d failed, retrying: %s", len(batch), err.Error())
			return err
		}
		return nil
	}, policy)
	if err != nil {
		w.log.Errorf("Dropping history batch of %d entries: %s", len(batch), err.Error())
		w.metrics.ObserveHistoryWrite(len(batch), true)
		return
	}
	w.log.Debugf("History batch of %d entries written", len(batch))
	w.metrics.ObserveHistoryWrite(len(batch), false)
}
