package pipeline

import "sync"

// IntegritySummary tracks bounded, aggregate counts of address resolution
// outcomes for the operator's `i` command, giving the diagnostic
// visibility the original scanner's found/stored/failed sets provided —
// without holding full key sets in memory across a long run.
type IntegritySummary struct {
	mu            sync.Mutex
	storedCount   int64
	failedCount   int64
	recentFailed  []string
	maxRecentKept int
}

// NewIntegritySummary constructs an IntegritySummary keeping the last 10
// failed address keys for diagnostics.
func NewIntegritySummary() *IntegritySummary {
	return &IntegritySummary{maxRecentKept: 10}
}

// RecordStored tallies one successful address resolution.
func (s *IntegritySummary) RecordStored(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storedCount++
}

// RecordFailed tallies one address resolution that entered the retry map,
// keeping a bounded ring of the most recent failing keys.
func (s *IntegritySummary) RecordFailed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedCount++
	s.recentFailed = append(s.recentFailed, key)
	if len(s.recentFailed) > s.maxRecentKept {
		s.recentFailed = s.recentFailed[len(s.recentFailed)-s.maxRecentKept:]
	}
}

// IntegrityReport is a point-in-time copy for display.
type IntegrityReport struct {
	Stored       int64
	Failed       int64
	RecentFailed []string
}

// Snapshot returns a copy of the current counts and recent failures.
func (s *IntegritySummary) Snapshot() IntegrityReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	recent := make([]string, len(s.recentFailed))
	copy(recent, s.recentFailed)
	return IntegrityReport{Stored: s.storedCount, Failed: s.failedCount, RecentFailed: recent}
}
