package pipeline

import "testing"

func TestProgressTracker_InOrderAdvancesImmediately(t *testing.T) {
	p := NewProgressTracker(100)
	if got := p.Complete(100); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	if got := p.Complete(101); got != 101 {
		t.Fatalf("expected 101, got %d", got)
	}
}

func TestProgressTracker_OutOfOrderHoldsUntilGapFills(t *testing.T) {
	p := NewProgressTracker(100)
	if got := p.Complete(102); got != 99 {
		t.Fatalf("expected frontier unchanged at 99, got %d", got)
	}
	if got := p.Complete(101); got != 99 {
		t.Fatalf("expected still 99 with 100 missing, got %d", got)
	}
	if got := p.Complete(100); got != 102 {
		t.Fatalf("expected jump to 102 once the gap fills, got %d", got)
	}
}

func TestProgressTracker_TotalDoneCountsEveryCompletion(t *testing.T) {
	p := NewProgressTracker(0)
	p.Complete(0)
	p.Complete(2)
	p.Complete(1)
	if p.TotalDone() != 3 {
		t.Fatalf("expected 3 completions recorded, got %d", p.TotalDone())
	}
}
