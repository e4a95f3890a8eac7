package pipeline

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/krich11/qdayscanner/internal/logs"
	"github.com/krich11/qdayscanner/store"
)

var writeLog = logs.Get(logs.TagWriter)

// FatalError marks the one data-integrity-fatal condition this pipeline
// recognizes: an address upsert that keeps failing past MaxRetries.
// Anything else the writer encounters is logged and retried at a higher
// level rather than raised as this type.
type FatalError struct {
	AddressKey string
	Attempts   int
	Cause      error
}

func (e *FatalError) Error() string {
	return errors.Wrapf(e.Cause, "address %s unresolved after %d attempts: halting for data integrity",
		e.AddressKey, e.Attempts).Error()
}

// WriterConfig carries the writer's tuning knobs.
type WriterConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
}

type addressAgg struct {
	pubkeyHex      string
	firstSeenBlock int
	firstSeenTxID  string
	lastSeenBlock  int
}

func (a *addressAgg) absorb(ev WriteEvent) {
	if a.pubkeyHex == "" {
		a.pubkeyHex = ev.PublicKeyHex
		a.firstSeenBlock = ev.BlockHeight
		a.firstSeenTxID = ev.TxID
		a.lastSeenBlock = ev.BlockHeight
		return
	}
	if ev.BlockHeight < a.firstSeenBlock {
		a.firstSeenBlock = ev.BlockHeight
		a.firstSeenTxID = ev.TxID
	}
	if ev.BlockHeight > a.lastSeenBlock {
		a.lastSeenBlock = ev.BlockHeight
	}
}

type retryEntry struct {
	agg      addressAgg
	attempts int
}

// Writer is the single write-behind task: it drains the bounded write
// queue, batches events, and performs the four-strategy address upsert
// before any dependent row is committed. Grounded on
// HydraModeDatabaseManager's _writer_loop/_flush_batch.
type Writer struct {
	ctx   *Context
	db    *store.Store
	cfg   WriterConfig
	integ *IntegritySummary

	retryMap   map[string]*retryEntry
	retryOrder []string

	pendingTx    []WriteEvent
	pendingBlock []WriteEvent
}

// NewWriter constructs a Writer.
func NewWriter(ctx *Context, db *store.Store, cfg WriterConfig) *Writer {
	return &Writer{
		ctx:      ctx,
		db:       db,
		cfg:      cfg,
		integ:    NewIntegritySummary(),
		retryMap: make(map[string]*retryEntry),
	}
}

// Integrity exposes the running integrity summary for the operator's `i`
// command.
func (w *Writer) Integrity() *IntegritySummary { return w.integ }

// Run drains WriteQueue until it is closed and empty, batching by size or
// timeout, and performs a final flush of any residual batch on exit. A
// HardStop signal (shutdown budget exceeded) short-circuits the drain:
// WriteQueue will never be closed in that case, so Run instead grabs
// whatever is already buffered, attempts one last flush, and returns.
func (w *Writer) Run() error {
	batch := make([]WriteEvent, 0, w.cfg.BatchSize)
	timer := time.NewTimer(w.cfg.BatchTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.ctx.WriteQueue:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(batch); err != nil {
						return err
					}
				}
				writeLog.Infof("writer exiting: queue closed and drained")
				return nil
			}
			batch = append(batch, ev)
			if len(batch) >= w.cfg.BatchSize {
				if err := w.flush(batch); err != nil {
					return err
				}
				batch = batch[:0]
				resetTimer(timer, w.cfg.BatchTimeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flush(batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
			resetTimer(timer, w.cfg.BatchTimeout)
		case <-w.ctx.HardStop:
			batch = append(batch, drainNonBlocking(w.ctx.WriteQueue)...)
			if len(batch) > 0 {
				if err := w.flush(batch); err != nil {
					return err
				}
			}
			writeLog.Warnf("writer exiting: shutdown budget exceeded, final flush attempted")
			return nil
		}
	}
}

// drainNonBlocking collects whatever is already buffered in ch without
// waiting for more to arrive.
func drainNonBlocking(ch <-chan WriteEvent) []WriteEvent {
	var out []WriteEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// flush partitions a batch into address sightings, transaction events, and
// block events; resolves every referenced address (carrying over retries
// from prior flushes ahead of new keys, in sorted order); and commits
// every event whose address resolved, deferring the rest to the next
// flush. An address that keeps failing past MaxRetries halts the pipeline
// via FatalError rather than being deferred indefinitely.
func (w *Writer) flush(batch []WriteEvent) error {
	start := time.Now()

	aggMap := make(map[string]*addressAgg)
	var txEvs, blockEvs []WriteEvent
	for _, ev := range batch {
		switch ev.Kind {
		case KindAddressSeen:
			a, ok := aggMap[ev.AddressKey]
			if !ok {
				a = &addressAgg{}
				aggMap[ev.AddressKey] = a
			}
			a.absorb(ev)
		case KindTxEvent:
			txEvs = append(txEvs, ev)
		case KindBlockEvent:
			blockEvs = append(blockEvs, ev)
		}
	}

	allTx := append(append([]WriteEvent{}, w.pendingTx...), txEvs...)
	allBlock := append(append([]WriteEvent{}, w.pendingBlock...), blockEvs...)

	referenced := make(map[string]bool)
	for k := range aggMap {
		referenced[k] = true
	}
	for _, ev := range allTx {
		referenced[ev.AddressKey] = true
	}
	for _, ev := range allBlock {
		referenced[ev.AddressKey] = true
	}

	var newKeys []string
	for k := range referenced {
		if _, carried := w.retryMap[k]; !carried {
			newKeys = append(newKeys, k)
		}
	}
	sort.Strings(newKeys)

	orderedKeys := append(append([]string{}, w.retryOrder...), newKeys...)

	resolved := make(map[string]uint64, len(orderedKeys))
	newRetryMap := make(map[string]*retryEntry)
	var newRetryOrder []string

	for _, key := range orderedKeys {
		var agg *addressAgg
		attempts := 0
		if entry, ok := w.retryMap[key]; ok {
			merged := entry.agg
			if fresh, ok2 := aggMap[key]; ok2 {
				merged.absorb(WriteEvent{BlockHeight: fresh.firstSeenBlock, TxID: fresh.firstSeenTxID})
				merged.absorb(WriteEvent{BlockHeight: fresh.lastSeenBlock, TxID: fresh.firstSeenTxID})
			}
			agg = &merged
			attempts = entry.attempts
		} else if fresh, ok := aggMap[key]; ok {
			agg = fresh
		}

		id, err := w.resolveAddressID(key, agg)
		if err != nil {
			attempts++
			if attempts >= w.cfg.MaxRetries {
				return &FatalError{AddressKey: key, Attempts: attempts, Cause: err}
			}
			var carryAgg addressAgg
			if agg != nil {
				carryAgg = *agg
			}
			newRetryMap[key] = &retryEntry{agg: carryAgg, attempts: attempts}
			newRetryOrder = append(newRetryOrder, key)
			w.integ.RecordFailed(key)
			continue
		}
		resolved[key] = id
		w.integ.RecordStored(key)
	}

	w.retryMap = newRetryMap
	w.retryOrder = newRetryOrder

	var readyTx, readyBlock []WriteEvent
	var stillPendingTx, stillPendingBlock []WriteEvent
	for _, ev := range allTx {
		if _, ok := resolved[ev.AddressKey]; ok {
			readyTx = append(readyTx, ev)
		} else {
			stillPendingTx = append(stillPendingTx, ev)
		}
	}
	for _, ev := range allBlock {
		if _, ok := resolved[ev.AddressKey]; ok {
			readyBlock = append(readyBlock, ev)
		} else {
			stillPendingBlock = append(stillPendingBlock, ev)
		}
	}
	w.pendingTx = stillPendingTx
	w.pendingBlock = stillPendingBlock

	if len(readyTx) == 0 && len(readyBlock) == 0 {
		return nil
	}

	txRows := make([]store.Transaction, 0, len(readyTx))
	for _, ev := range readyTx {
		txRows = append(txRows, store.Transaction{
			TxID: ev.TxID, BlockHeight: ev.BlockHeight, BlockTime: ev.BlockTime,
			AddressID: resolved[ev.AddressKey], IsInput: ev.IsInput, AmountSatoshi: ev.AmountSatoshi,
		})
	}
	blockRows := make([]store.AddressBlock, 0, len(readyBlock))
	for _, ev := range readyBlock {
		blockRows = append(blockRows, store.AddressBlock{
			AddressID: resolved[ev.AddressKey], BlockHeight: ev.BlockHeight,
			IsInput: ev.IsInput, AmountSatoshi: ev.AmountSatoshi, TxID: ev.TxID,
		})
	}

	tx := w.db.Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "begin batch transaction")
	}
	if err := w.db.InsertTransactions(tx, txRows); err != nil {
		tx.Rollback()
		return err
	}
	if err := w.db.InsertAddressBlocks(tx, blockRows); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return errors.Wrap(err, "commit batch transaction")
	}

	w.ctx.Metrics.RecordBatchFlush(time.Since(start))
	return nil
}

// resolveAddressID runs the four-strategy fallback: lookup, touch,
// insert-returning-id, and conflict-aware upsert. A nil agg means the key
// is only referenced by a tx/block event in this flush (its address-seen
// sibling landed in an earlier batch), so only a lookup is attempted —
// there is no pubkey to create a row with.
func (w *Writer) resolveAddressID(key string, agg *addressAgg) (uint64, error) {
	start := time.Now()
	defer func() { w.ctx.Metrics.RecordDB(time.Since(start)) }()

	id, found, err := w.db.LookupAddressID(key)
	if err != nil {
		return 0, errors.Wrap(err, "strategy 1: select")
	}
	if found {
		if agg != nil {
			if err := w.db.TouchAddress(id, agg.lastSeenBlock); err != nil {
				return 0, errors.Wrap(err, "strategy 2: update last_seen_block")
			}
		}
		return id, nil
	}
	if agg == nil {
		return 0, errors.Errorf("address %s has no known pubkey and no existing row", key)
	}

	candidate := store.Address{
		AddressKey: key, PublicKeyHex: agg.pubkeyHex,
		FirstSeenBlock: agg.firstSeenBlock, FirstSeenTxID: agg.firstSeenTxID, LastSeenBlock: agg.lastSeenBlock,
	}

	id, err = w.db.InsertAddressReturningID(candidate)
	if err == nil {
		return id, nil
	}
	writeLog.Debugf("strategy 3 insert failed for %s, falling back to conflict-aware upsert: %v", key, err)

	id, err = w.db.UpsertAddressOnConflict(candidate)
	if err == nil {
		return id, nil
	}
	writeLog.Debugf("strategy 4 upsert failed for %s, falling back to final select: %v", key, err)

	id, found, err = w.db.LookupAddressID(key)
	if err != nil {
		return 0, errors.Wrap(err, "final select")
	}
	if !found {
		return 0, errors.Errorf("address %s unresolved by every strategy", key)
	}
	return id, nil
}
