package pipeline

import (
	"strings"
	"testing"
	"time"
)

func TestMetrics_SnapshotComputesAverages(t *testing.T) {
	m := NewMetrics()
	m.RecordRPC(10 * time.Millisecond)
	m.RecordRPC(20 * time.Millisecond)
	m.RecordDB(5 * time.Millisecond)
	m.RecordBlockScanned()
	m.RecordBlockFailed()
	m.RecordTx()
	m.RecordP2PKFound()
	m.RecordQueueWait(100 * time.Millisecond)
	m.RecordBatchFlush(50 * time.Millisecond)
	m.RecordDistributed()

	s := m.Snapshot()
	if s.RPCCalls != 2 {
		t.Fatalf("expected 2 rpc calls, got %d", s.RPCCalls)
	}
	if s.RPCAvgMillis != 15 {
		t.Fatalf("expected rpc avg of 15ms, got %v", s.RPCAvgMillis)
	}
	if s.BlocksScanned != 1 || s.BlocksFailed != 1 {
		t.Fatalf("unexpected block counters: %+v", s)
	}
	if s.TxsProcessed != 1 || s.P2PKFound != 1 || s.Distributed != 1 {
		t.Fatalf("unexpected single-tally counters: %+v", s)
	}
	if s.QueueWaitCount != 1 || s.QueueWaitAvgMs != 100 {
		t.Fatalf("unexpected queue wait stats: %+v", s)
	}
	if s.BatchFlushes != 1 || s.BatchAvgMillis != 50 {
		t.Fatalf("unexpected batch flush stats: %+v", s)
	}
}

func TestMetrics_SnapshotZeroValueNeverDivides(t *testing.T) {
	m := NewMetrics()
	s := m.Snapshot()
	if s.RPCAvgMillis != 0 || s.DBAvgMillis != 0 || s.QueueWaitAvgMs != 0 || s.BatchAvgMillis != 0 {
		t.Fatalf("expected all averages to stay zero with no samples, got %+v", s)
	}
}

func TestSnapshot_FormatReportIncludesEveryField(t *testing.T) {
	m := NewMetrics()
	m.RecordBlockScanned()
	report := m.Snapshot().FormatReport()
	for _, want := range []string{
		"uptime=", "blocks_scanned=", "blocks_failed=", "blocks/sec=", "txs=", "p2pk_found=",
		"rpc_calls=", "rpc_avg_ms=", "db_ops=", "db_avg_ms=",
		"queue_waits=", "queue_wait_avg_ms=", "batch_flushes=", "batch_avg_ms=", "distributed=",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("expected report to contain %q, got %q", want, report)
		}
	}
}
