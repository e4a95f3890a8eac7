package pipeline

import (
	"sync"
	"sync/atomic"
)

// IngressQueue hands out the configured [start, end] height range in
// strictly increasing order. A literal FIFO of up to ~900k heights would
// be wasteful to materialize; a range cursor preserves the same
// contract (pop yields the next unclaimed height, in order, until
// exhausted) with O(1) memory.
type IngressQueue struct {
	next int64
	end  int64
}

// NewIngressQueue creates a queue yielding start..end inclusive.
func NewIngressQueue(start, end int) *IngressQueue {
	return &IngressQueue{next: int64(start), end: int64(end)}
}

// Pop claims the next height, or returns (0, false) once exhausted.
func (q *IngressQueue) Pop() (int, bool) {
	for {
		cur := atomic.LoadInt64(&q.next)
		if cur > q.end {
			return 0, false
		}
		if atomic.CompareAndSwapInt64(&q.next, cur, cur+1) {
			return int(cur), true
		}
	}
}

// Empty reports whether every height has already been claimed. Claimed is
// not the same as processed; workers may still be mid-flight.
func (q *IngressQueue) Empty() bool {
	return atomic.LoadInt64(&q.next) > q.end
}

// Remaining returns an estimate of unclaimed heights, used for reporting.
func (q *IngressQueue) Remaining() int64 {
	n := q.end - atomic.LoadInt64(&q.next) + 1
	if n < 0 {
		return 0
	}
	return n
}

// Context carries everything every pipeline stage needs: the stop
// signal, the pause flags, the queues, and shared metrics — an explicit
// carrier replacing the original scanner's ambient module-level mutable
// state.
type Context struct {
	Ingress      *IngressQueue
	WorkerQueues []chan int
	WriteQueue   chan WriteEvent
	TargetDepth  int

	// HardStop is closed when the shutdown budget is exceeded. Producers
	// select on it alongside a WriteQueue send so they abandon an
	// in-flight push instead of racing a close of WriteQueue, which only
	// the supervisor closes, and only once it has confirmed no producer
	// can still be sending.
	HardStop chan struct{}

	Metrics *Metrics

	stopped      int32
	autoPause    int32
	manualPause  int32
	hardStopOnce sync.Once
}

// NewContext wires the queues for a run with the given worker count,
// per-worker target depth, and write-queue capacity.
func NewContext(workerCount, targetDepth, writeQueueCapacity int, ingress *IngressQueue) *Context {
	workerQueues := make([]chan int, workerCount)
	for i := range workerQueues {
		workerQueues[i] = make(chan int, targetDepth)
	}
	return &Context{
		Ingress:      ingress,
		WorkerQueues: workerQueues,
		WriteQueue:   make(chan WriteEvent, writeQueueCapacity),
		HardStop:     make(chan struct{}),
		TargetDepth:  targetDepth,
		Metrics:      NewMetrics(),
	}
}

// Stop signals every stage to terminate at its next safe point.
func (c *Context) Stop() { atomic.StoreInt32(&c.stopped, 1) }

// Stopped reports whether Stop has been called.
func (c *Context) Stopped() bool { return atomic.LoadInt32(&c.stopped) == 1 }

// ForceStop closes HardStop exactly once, telling every producer still
// blocked on a WriteQueue send to abandon it immediately. Safe to call
// more than once or concurrently.
func (c *Context) ForceStop() {
	c.hardStopOnce.Do(func() { close(c.HardStop) })
}

// SetAutoPause sets/clears the automatic backpressure pause flag; consulted
// by workers only when no manual override is active.
func (c *Context) SetAutoPause(paused bool) {
	if paused {
		atomic.StoreInt32(&c.autoPause, 1)
	} else {
		atomic.StoreInt32(&c.autoPause, 0)
	}
}

// SetManualPause sets/clears the operator's manual pause override, which
// short-circuits the automatic controller.
func (c *Context) SetManualPause(paused bool) {
	if paused {
		atomic.StoreInt32(&c.manualPause, 1)
	} else {
		atomic.StoreInt32(&c.manualPause, 0)
	}
}

// ManualPauseActive reports whether the operator has an active manual override.
func (c *Context) ManualPauseActive() bool { return atomic.LoadInt32(&c.manualPause) == 1 }

// AutoPaused reports the raw automatic-pause flag, ignoring any manual
// override. The Pause Controller uses this to decide whether it needs to
// flip the flag, independent of whether a manual pause also happens to be
// in effect.
func (c *Context) AutoPaused() bool { return atomic.LoadInt32(&c.autoPause) == 1 }

// Paused reports whether workers should currently suspend between blocks:
// a manual override always wins; absent one, the automatic flag applies.
func (c *Context) Paused() bool {
	if atomic.LoadInt32(&c.manualPause) == 1 {
		return true
	}
	return atomic.LoadInt32(&c.autoPause) == 1
}

// WriteQueueDepth reports the current number of buffered events, used by
// the Pause Controller and the operator's `u` command.
func (c *Context) WriteQueueDepth() int {
	return len(c.WriteQueue)
}
