package pipeline

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Metrics is an explicit counters record, replacing the original
// scanner's ambient module-level counters. Every field is updated with
// atomic operations so workers, the writer, and the reporter never need a
// shared lock.
type Metrics struct {
	startedAt time.Time

	rpcCalls       int64
	rpcTimeNanos   int64
	dbOperations   int64
	dbTimeNanos    int64
	blocksScanned  int64
	blocksFailed   int64
	txsProcessed   int64
	p2pkFound      int64
	queueWaitCount int64
	queueWaitNanos int64
	batchFlushes   int64
	batchTimeNanos int64
	distributed    int64
}

// NewMetrics returns a Metrics record timestamped at construction.
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// RecordRPC tallies one RPC call and its wall-clock duration.
func (m *Metrics) RecordRPC(d time.Duration) {
	atomic.AddInt64(&m.rpcCalls, 1)
	atomic.AddInt64(&m.rpcTimeNanos, int64(d))
}

// RecordDB tallies one DB operation and its wall-clock duration.
func (m *Metrics) RecordDB(d time.Duration) {
	atomic.AddInt64(&m.dbOperations, 1)
	atomic.AddInt64(&m.dbTimeNanos, int64(d))
}

// RecordBlockScanned increments the success counter. This must only be
// called on clean completion of a block.
func (m *Metrics) RecordBlockScanned() { atomic.AddInt64(&m.blocksScanned, 1) }

// RecordBlockFailed increments the failure counter without touching the
// success counter.
func (m *Metrics) RecordBlockFailed() { atomic.AddInt64(&m.blocksFailed, 1) }

// RecordTx tallies one processed transaction.
func (m *Metrics) RecordTx() { atomic.AddInt64(&m.txsProcessed, 1) }

// RecordP2PKFound tallies one P2PK sighting (output or input).
func (m *Metrics) RecordP2PKFound() { atomic.AddInt64(&m.p2pkFound, 1) }

// RecordQueueWait tallies one blocking wait on the write queue and its
// duration, surfacing backpressure to the operator's metrics view.
func (m *Metrics) RecordQueueWait(d time.Duration) {
	atomic.AddInt64(&m.queueWaitCount, 1)
	atomic.AddInt64(&m.queueWaitNanos, int64(d))
}

// RecordBatchFlush tallies one completed writer batch flush.
func (m *Metrics) RecordBatchFlush(d time.Duration) {
	atomic.AddInt64(&m.batchFlushes, 1)
	atomic.AddInt64(&m.batchTimeNanos, int64(d))
}

// RecordDistributed tallies one height moved from ingress to a worker queue.
func (m *Metrics) RecordDistributed() { atomic.AddInt64(&m.distributed, 1) }

// Snapshot is a point-in-time, race-free copy of every counter.
type Snapshot struct {
	Uptime          time.Duration
	RPCCalls        int64
	RPCAvgMillis    float64
	DBOperations    int64
	DBAvgMillis     float64
	BlocksScanned   int64
	BlocksFailed    int64
	TxsProcessed    int64
	P2PKFound       int64
	QueueWaitCount  int64
	QueueWaitAvgMs  float64
	BatchFlushes    int64
	BatchAvgMillis  float64
	Distributed     int64
	BlocksPerSecond float64
}

// Snapshot copies every counter into a Snapshot and derives the rolling
// averages the operator's `s` and `m` commands display.
func (m *Metrics) Snapshot() Snapshot {
	uptime := time.Since(m.startedAt)
	s := Snapshot{
		Uptime:         uptime,
		RPCCalls:       atomic.LoadInt64(&m.rpcCalls),
		DBOperations:   atomic.LoadInt64(&m.dbOperations),
		BlocksScanned:  atomic.LoadInt64(&m.blocksScanned),
		BlocksFailed:   atomic.LoadInt64(&m.blocksFailed),
		TxsProcessed:   atomic.LoadInt64(&m.txsProcessed),
		P2PKFound:      atomic.LoadInt64(&m.p2pkFound),
		QueueWaitCount: atomic.LoadInt64(&m.queueWaitCount),
		BatchFlushes:   atomic.LoadInt64(&m.batchFlushes),
		Distributed:    atomic.LoadInt64(&m.distributed),
	}
	if s.RPCCalls > 0 {
		s.RPCAvgMillis = float64(atomic.LoadInt64(&m.rpcTimeNanos)) / float64(s.RPCCalls) / 1e6
	}
	if s.DBOperations > 0 {
		s.DBAvgMillis = float64(atomic.LoadInt64(&m.dbTimeNanos)) / float64(s.DBOperations) / 1e6
	}
	if s.QueueWaitCount > 0 {
		s.QueueWaitAvgMs = float64(atomic.LoadInt64(&m.queueWaitNanos)) / float64(s.QueueWaitCount) / 1e6
	}
	if s.BatchFlushes > 0 {
		s.BatchAvgMillis = float64(atomic.LoadInt64(&m.batchTimeNanos)) / float64(s.BatchFlushes) / 1e6
	}
	if uptime > 0 {
		s.BlocksPerSecond = float64(s.BlocksScanned) / uptime.Seconds()
	}
	return s
}

// FormatReport renders a human-readable multi-line report, used by the
// operator's `s` and `m` commands. The supervisor does not log it
// periodically or at shutdown.
func (s Snapshot) FormatReport() string {
	return fmt.Sprintf(
		"uptime=%s blocks_scanned=%d blocks_failed=%d blocks/sec=%.2f txs=%d p2pk_found=%d\n"+
			"rpc_calls=%d rpc_avg_ms=%.2f db_ops=%d db_avg_ms=%.2f\n"+
			"queue_waits=%d queue_wait_avg_ms=%.2f batch_flushes=%d batch_avg_ms=%.2f distributed=%d",
		s.Uptime.Round(time.Second), s.BlocksScanned, s.BlocksFailed, s.BlocksPerSecond, s.TxsProcessed, s.P2PKFound,
		s.RPCCalls, s.RPCAvgMillis, s.DBOperations, s.DBAvgMillis,
		s.QueueWaitCount, s.QueueWaitAvgMs, s.BatchFlushes, s.BatchAvgMillis, s.Distributed,
	)
}
