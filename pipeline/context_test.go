package pipeline

import "testing"

func TestIngressQueue_PopInOrderThenExhausts(t *testing.T) {
	q := NewIngressQueue(5, 7)
	for _, want := range []int{5, 6, 7} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("expected (%d, true), got (%d, %v)", want, got, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected exhausted queue to report false")
	}
	if !q.Empty() {
		t.Fatalf("expected Empty() true after exhaustion")
	}
}

func TestContext_ManualPauseOverridesAutomatic(t *testing.T) {
	ctx := NewContext(1, 4, 10, NewIngressQueue(0, 0))
	if ctx.Paused() {
		t.Fatalf("expected not paused initially")
	}
	ctx.SetAutoPause(true)
	if !ctx.Paused() {
		t.Fatalf("expected paused once auto-pause is set")
	}
	ctx.SetManualPause(true)
	ctx.SetAutoPause(false)
	if !ctx.Paused() {
		t.Fatalf("expected manual override to keep pipeline paused regardless of auto-pause")
	}
	ctx.SetManualPause(false)
	if ctx.Paused() {
		t.Fatalf("expected unpaused once both flags clear")
	}
}

func TestContext_StopIsIdempotentAndVisible(t *testing.T) {
	ctx := NewContext(1, 4, 10, NewIngressQueue(0, 0))
	if ctx.Stopped() {
		t.Fatalf("expected not stopped initially")
	}
	ctx.Stop()
	ctx.Stop()
	if !ctx.Stopped() {
		t.Fatalf("expected stopped after Stop()")
	}
}
