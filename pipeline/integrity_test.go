package pipeline

import "testing"

func TestIntegritySummary_RecordStoredTalliesCount(t *testing.T) {
	s := NewIntegritySummary()
	s.RecordStored("key1")
	s.RecordStored("key2")
	r := s.Snapshot()
	if r.Stored != 2 {
		t.Fatalf("expected 2 stored, got %d", r.Stored)
	}
}

func TestIntegritySummary_RecordFailedKeepsBoundedRecentRing(t *testing.T) {
	s := NewIntegritySummary()
	for i := 0; i < 15; i++ {
		s.RecordFailed(string(rune('a' + i)))
	}
	r := s.Snapshot()
	if r.Failed != 15 {
		t.Fatalf("expected 15 failed total, got %d", r.Failed)
	}
	if len(r.RecentFailed) != 10 {
		t.Fatalf("expected recent ring bounded to 10, got %d", len(r.RecentFailed))
	}
	if r.RecentFailed[len(r.RecentFailed)-1] != string(rune('a'+14)) {
		t.Fatalf("expected ring to keep the most recent entries, got %v", r.RecentFailed)
	}
}

func TestIntegritySummary_SnapshotIsACopy(t *testing.T) {
	s := NewIntegritySummary()
	s.RecordFailed("key1")
	r := s.Snapshot()
	r.RecentFailed[0] = "mutated"
	if s.Snapshot().RecentFailed[0] != "key1" {
		t.Fatalf("expected snapshot to be an independent copy")
	}
}
