package machine

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// SignalQueue records signals delivered to the shell. Handlers run on the
// host's signal goroutine, so the pending state uses atomic operations;
// the VM drains the queue at instruction boundaries.
type SignalQueue struct {
	pending atomic.Uint32 // event flag checked by the dispatch loop
	masked  atomic.Bool   // set while inside a handler or termination hook

	mu  sync.Mutex
	set []unix.Signal // delivered, undrained signals
	ch  chan os.Signal
}

// NewSignalQueue creates an empty queue.
func NewSignalQueue() *SignalQueue {
	return &SignalQueue{ch: make(chan os.Signal, 16)}
}

// Listen installs the host signal handlers for the given signals and
// starts recording deliveries.
func (q *SignalQueue) Listen(sigs ...os.Signal) {
	signal.Notify(q.ch, sigs...)
	go func() {
		for s := range q.ch {
			us, ok := s.(unix.Signal)
			if !ok {
				continue
			}
			q.mu.Lock()
			q.set = append(q.set, us)
			q.mu.Unlock()
			q.pending.Store(1)
		}
	}()
}

// Stop uninstalls the host handlers.
func (q *SignalQueue) Stop() {
	signal.Stop(q.ch)
}

// Pending reports whether undrained signals exist and delivery is not
// masked.
func (q *SignalQueue) Pending() bool {
	return q.pending.Load() != 0 && !q.masked.Load()
}

// Drain removes and returns the delivered signals, clearing the pending
// flag.
func (q *SignalQueue) Drain() []unix.Signal {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.set
	q.set = nil
	q.pending.Store(0)
	return out
}

// Mask blocks delivery while inside a signal handler or termination hook,
// preventing re-entry.
func (q *SignalQueue) Mask() { q.masked.Store(true) }

// Unmask re-enables delivery.
func (q *SignalQueue) Unmask() { q.masked.Store(false) }
