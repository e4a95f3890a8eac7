package pipeline

import (
	"time"

	"github.com/krich11/qdayscanner/internal/logs"
)

var distLog = logs.Get(logs.TagDistributor)

// Distributor is the single cooperative task that tops up each worker
// queue to TargetDepth, in order, skipping any queue already full, and
// terminates once ingress and every worker queue are empty.
// Grounded on hydra_mode_scanner.py's distributor() top-up loop.
type Distributor struct {
	ctx *Context
}

// NewDistributor constructs a Distributor bound to ctx's queues.
func NewDistributor(ctx *Context) *Distributor {
	return &Distributor{ctx: ctx}
}

// Run executes the distribution loop until ingress and all worker queues
// are drained, or the context's stop signal fires. It closes every worker
// queue on exit so workers can observe the "no more heights coming" signal
// once their own queue empties.
func (d *Distributor) Run() {
	defer d.closeWorkerQueues()

	const idleBackoff = 10 * time.Millisecond
	for {
		if d.ctx.Stopped() {
			distLog.Infof("distributor stopping: stop signal received")
			return
		}

		moved := d.topUpOnePass()

		if d.ctx.Ingress.Empty() && d.allWorkerQueuesEmpty() {
			distLog.Infof("distributor finished: ingress drained, all worker queues empty")
			return
		}

		if !moved {
			time.Sleep(idleBackoff)
		}
	}
}

// topUpOnePass makes one ordered pass over the worker queues, moving at
// most one height per queue (so queues near target depth don't starve
// queues further down the list). It returns whether any height was moved.
func (d *Distributor) topUpOnePass() bool {
	moved := false
	for _, wq := range d.ctx.WorkerQueues {
		if len(wq) >= d.ctx.TargetDepth {
			continue
		}
		height, ok := d.ctx.Ingress.Pop()
		if !ok {
			continue
		}
		select {
		case wq <- height:
			d.ctx.Metrics.RecordDistributed()
			moved = true
		default:
			// Worker queue filled between the len() check and the send.
			// The height is already claimed from ingress and must not be
			// dropped, so block on the send until the worker frees a slot.
			wq <- height
			d.ctx.Metrics.RecordDistributed()
			moved = true
		}
	}
	return moved
}

func (d *Distributor) allWorkerQueuesEmpty() bool {
	for _, wq := range d.ctx.WorkerQueues {
		if len(wq) > 0 {
			return false
		}
	}
	return true
}

func (d *Distributor) closeWorkerQueues() {
	for _, wq := range d.ctx.WorkerQueues {
		close(wq)
	}
}
