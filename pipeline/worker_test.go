package pipeline

import (
	"testing"
	"time"
)

// TestWorker_PushBlockingAbandonsSendOnHardStop is a regression test for
// the shutdown-budget-exceeded path: a worker blocked on a full WriteQueue
// must abandon its send once HardStop fires, rather than the supervisor
// closing WriteQueue out from under it (which would panic with "send on
// closed channel").
func TestWorker_PushBlockingAbandonsSendOnHardStop(t *testing.T) {
	ctx := NewContext(1, 1, 1, NewIngressQueue(0, 0))
	ctx.WriteQueue <- WriteEvent{} // fill the only slot so the next send blocks
	w := &Worker{ID: 0, ctx: ctx}

	done := make(chan struct{})
	go func() {
		w.pushBlocking(WriteEvent{AddressKey: "stuck"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("expected pushBlocking to block while the queue is full and HardStop has not fired")
	case <-time.After(20 * time.Millisecond):
	}

	ctx.ForceStop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected pushBlocking to return once HardStop fired")
	}

	if len(ctx.WriteQueue) != 1 {
		t.Fatalf("expected the abandoned event to never reach WriteQueue, got depth %d", len(ctx.WriteQueue))
	}
}

func TestContext_ForceStopIsIdempotentAndSafeConcurrently(t *testing.T) {
	ctx := NewContext(1, 1, 1, NewIngressQueue(0, 0))
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			ctx.ForceStop()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	select {
	case <-ctx.HardStop:
	default:
		t.Fatalf("expected HardStop to be closed")
	}
}
