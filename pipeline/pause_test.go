package pipeline

import "testing"

func TestPauseController_TicksSetAndClearAutoPause(t *testing.T) {
	ctx := NewContext(1, 4, 10, NewIngressQueue(0, 0))
	pc := NewPauseController(ctx, PauseConfig{Enabled: true, HighThreshold: 2, LowThreshold: 1})

	for i := 0; i < 3; i++ {
		ctx.WriteQueue <- WriteEvent{}
	}
	pc.tick()
	if !ctx.AutoPaused() {
		t.Fatalf("expected auto-pause to engage once depth exceeds high threshold")
	}

	<-ctx.WriteQueue
	<-ctx.WriteQueue
	pc.tick()
	if !ctx.AutoPaused() {
		t.Fatalf("expected auto-pause to remain engaged until depth drops below low threshold")
	}

	<-ctx.WriteQueue
	pc.tick()
	if ctx.AutoPaused() {
		t.Fatalf("expected auto-pause to clear once depth drops below low threshold")
	}
}

func TestPauseController_DisabledNeverEngages(t *testing.T) {
	ctx := NewContext(1, 4, 10, NewIngressQueue(0, 0))
	pc := NewPauseController(ctx, PauseConfig{Enabled: false, HighThreshold: 1, LowThreshold: 0})
	done := make(chan struct{})
	go func() {
		pc.Run()
		close(done)
	}()
	<-done
	if ctx.AutoPaused() {
		t.Fatalf("expected disabled controller to never set auto-pause")
	}
}
