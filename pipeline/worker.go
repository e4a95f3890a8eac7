package pipeline

import (
	"context"
	"time"

	"github.com/krich11/qdayscanner/classifier"
	"github.com/krich11/qdayscanner/internal/logs"
	"github.com/krich11/qdayscanner/noderpc"
)

var workLog = logs.Get(logs.TagWorker)

// WorkerConfig carries the per-run tuning knobs a worker consults.
type WorkerConfig struct {
	QuickScan    bool
	BatchRPC     bool
	RPCBatchSize int
	RPCTimeout   time.Duration
}

// Worker is one of the N scanning tasks. It owns one dedicated queue,
// fetches each assigned block, classifies outputs and resolves input
// provenance, and posts WriteEvents — never touching the database
// directly. Grounded on hydra_mode_scanner.py's worker() function.
type Worker struct {
	ID     int
	queue  <-chan int
	client *noderpc.Client
	ctx    *Context
	cfg    WorkerConfig
}

// NewWorker constructs a Worker bound to one of the Context's worker queues.
func NewWorker(id int, ctx *Context, client *noderpc.Client, cfg WorkerConfig) *Worker {
	return &Worker{ID: id, queue: ctx.WorkerQueues[id], client: client, ctx: ctx, cfg: cfg}
}

// OnComplete is called once per successfully processed height (including
// the quick-scan skip fast path), so the supervisor can advance progress.
type OnComplete func(height int)

// Run drains the worker's queue until it is closed and empty, or the
// pipeline's stop signal fires, via a timed select so a stop signal is
// noticed even while the queue is idle.
func (w *Worker) Run(onComplete OnComplete) {
	for {
		if w.ctx.Stopped() {
			workLog.Infof("worker %d stopping: stop signal received", w.ID)
			return
		}
		select {
		case height, ok := <-w.queue:
			if !ok {
				workLog.Infof("worker %d exiting: queue closed and drained", w.ID)
				return
			}
			w.processHeight(height, onComplete)
		case <-time.After(time.Second):
		}
	}
}

func (w *Worker) waitWhilePaused() {
	for w.ctx.Paused() {
		if w.ctx.Stopped() {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (w *Worker) processHeight(height int, onComplete OnComplete) {
	w.waitWhilePaused()
	if w.ctx.Stopped() {
		return
	}

	rpcCtx, cancel := context.WithTimeout(context.Background(), w.cfg.RPCTimeout)
	defer cancel()

	start := time.Now()
	block, err := w.client.GetBlockAt(rpcCtx, height)
	w.ctx.Metrics.RecordRPC(time.Since(start))
	if err != nil {
		workLog.Errorf("worker %d: failed to fetch block %d: %v", w.ID, height, err)
		w.ctx.Metrics.RecordBlockFailed()
		return
	}

	if w.cfg.QuickScan && !classifier.QuickScan(block) {
		onComplete(height)
		w.ctx.Metrics.RecordBlockScanned()
		return
	}

	if err := w.processBlock(rpcCtx, block); err != nil {
		workLog.Errorf("worker %d: failed to process block %d: %v", w.ID, height, err)
		w.ctx.Metrics.RecordBlockFailed()
		return
	}

	onComplete(height)
	w.ctx.Metrics.RecordBlockScanned()
}

// processBlock classifies every output, resolves every plausible input's
// previous transaction, dedupes within each transaction, and pushes every
// resulting event to the write queue (blocking, never dropping).
func (w *Worker) processBlock(rpcCtx context.Context, block *noderpc.BlockView) error {
	blockIndex := make(map[string]*noderpc.TxView, len(block.Txs))
	for i := range block.Txs {
		blockIndex[block.Txs[i].TxID] = &block.Txs[i]
	}

	prevTxCache := make(map[string]*noderpc.TxView)
	if err := w.prefetchInputs(rpcCtx, block, blockIndex, prevTxCache); err != nil {
		return err
	}

	for _, tx := range block.Txs {
		w.ctx.Metrics.RecordTx()
		seen := make(map[string]bool)

		for _, out := range tx.Outputs {
			key, ok := classifier.Classify(out.ScriptPubKey)
			if !ok {
				continue
			}
			dedupKey := key + ":output"
			if seen[dedupKey] {
				continue
			}
			seen[dedupKey] = true
			w.emit(key, tx.TxID, block, false, out.ValueSatoshi)
		}

		for _, in := range tx.Inputs {
			if in.Coinbase || in.PrevTxID == "" {
				continue
			}
			if !classifier.InputPlausiblyP2PK(in.ScriptSigAsm) {
				continue
			}
			prevTx := blockIndex[in.PrevTxID]
			if prevTx == nil {
				prevTx = prevTxCache[in.PrevTxID]
			}
			if prevTx == nil {
				continue // prior tx unresolvable; conservatively not counted as a hit
			}
			if in.PrevVout < 0 || in.PrevVout >= len(prevTx.Outputs) {
				continue
			}
			out := prevTx.Outputs[in.PrevVout]
			key, ok := classifier.Classify(out.ScriptPubKey)
			if !ok {
				continue
			}
			dedupKey := key + ":input"
			if seen[dedupKey] {
				continue
			}
			seen[dedupKey] = true
			w.emit(key, tx.TxID, block, true, out.ValueSatoshi)
		}
	}
	return nil
}

// prefetchInputs collects every distinct prevTxID this block's inputs
// plausibly need (excluding ones already present in the block itself),
// and resolves them either via one batched RPC call or individually.
func (w *Worker) prefetchInputs(rpcCtx context.Context, block *noderpc.BlockView, blockIndex map[string]*noderpc.TxView, cache map[string]*noderpc.TxView) error {
	var unresolved []string
	seenReq := make(map[string]bool)
	for _, tx := range block.Txs {
		for _, in := range tx.Inputs {
			if in.Coinbase || in.PrevTxID == "" {
				continue
			}
			if !classifier.InputPlausiblyP2PK(in.ScriptSigAsm) {
				continue
			}
			if _, ok := blockIndex[in.PrevTxID]; ok {
				continue
			}
			if seenReq[in.PrevTxID] {
				continue
			}
			seenReq[in.PrevTxID] = true
			unresolved = append(unresolved, in.PrevTxID)
		}
	}
	if len(unresolved) == 0 {
		return nil
	}

	start := time.Now()
	if w.cfg.BatchRPC {
		txs, err := w.client.GetTxsBatch(rpcCtx, unresolved, w.cfg.RPCBatchSize)
		w.ctx.Metrics.RecordRPC(time.Since(start))
		if err != nil {
			return err
		}
		for i, tx := range txs {
			if tx != nil {
				cache[unresolved[i]] = tx
			}
		}
		return nil
	}

	for _, txid := range unresolved {
		start := time.Now()
		tx, err := w.client.GetTx(rpcCtx, txid)
		w.ctx.Metrics.RecordRPC(time.Since(start))
		if err != nil {
			workLog.Warnf("worker %d: could not fetch prior tx %s: %v", w.ID, txid, err)
			continue
		}
		cache[txid] = tx
	}
	return nil
}

func (w *Worker) emit(pubkeyHex, txid string, block *noderpc.BlockView, isInput bool, amountSatoshi int64) {
	addressKey := pubkeyHex
	if len(addressKey) > 34 {
		addressKey = addressKey[:34]
	}
	w.ctx.Metrics.RecordP2PKFound()

	base := WriteEvent{
		AddressKey:   addressKey,
		TxID:         txid,
		BlockHeight:  block.Height,
		BlockTime:    block.TimeUnixSecs,
		IsInput:      isInput,
		AmountSatoshi: amountSatoshi,
	}

	addressSeen := base
	addressSeen.Kind = KindAddressSeen
	addressSeen.PublicKeyHex = pubkeyHex
	w.pushBlocking(addressSeen)

	txEvent := base
	txEvent.Kind = KindTxEvent
	w.pushBlocking(txEvent)

	blockEvent := base
	blockEvent.Kind = KindBlockEvent
	w.pushBlocking(blockEvent)
}

// pushBlocking posts an event to the write queue, blocking if full. This
// is the hard no-loss guarantee under ordinary operation: it never drops
// and never times out. The one exception is a forced shutdown — if
// HardStop fires while this call is blocked, the send is abandoned rather
// than risk a send on a WriteQueue the supervisor is closing concurrently.
func (w *Worker) pushBlocking(ev WriteEvent) {
	start := time.Now()
	select {
	case w.ctx.WriteQueue <- ev:
	case <-w.ctx.HardStop:
		workLog.Warnf("worker %d: dropping event, hard stop signaled during shutdown", w.ID)
		return
	}
	if waited := time.Since(start); waited > time.Millisecond {
		w.ctx.Metrics.RecordQueueWait(waited)
	}
}
