// Package pipeline's Supervisor wires every stage together, following the
// startup/shutdown ordering of apiserver/main.go (config -> database ->
// rpc client -> spawn workers -> interrupt listener -> ordered shutdown).
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/krich11/qdayscanner/internal/config"
	"github.com/krich11/qdayscanner/internal/logs"
	"github.com/krich11/qdayscanner/internal/panics"
	"github.com/krich11/qdayscanner/noderpc"
	"github.com/krich11/qdayscanner/store"
)

var supvLog = logs.Get(logs.TagSupervisor)
var spawn = panics.GoroutineWrapperFunc(supvLog)

// ShutdownBudget bounds how long graceful shutdown waits for workers to
// finish their in-hand block before forcing termination.
const ShutdownBudget = 5 * time.Minute

// Supervisor owns the full pipeline lifecycle: startup, progress
// resolution, stage orchestration, and ordered shutdown.
type Supervisor struct {
	cfg    *config.Config
	client *noderpc.Client
	db     *store.Store

	ctx      *Context
	writer   *Writer
	distrib  *Distributor
	workers  []*Worker
	pauseCtl *PauseController
	console  *OperatorConsole

	progress   *ProgressTracker
	completion chan int

	scannerID string
}

// NewSupervisor constructs a Supervisor. Call Run to start the pipeline.
func NewSupervisor(cfg *config.Config, client *noderpc.Client, db *store.Store, stdin *os.File) (*Supervisor, error) {
	s := &Supervisor{cfg: cfg, client: client, db: db, scannerID: cfg.ScannerID}
	return s, nil
}

// Run performs startup, launches every stage, blocks until termination,
// and returns a non-nil error when the node preflight or range resolution
// fails, or when the writer halts (a FatalError for an address unresolved
// past MaxRetries, or a database error from a batch), so the caller can
// map it to a process exit code.
func (s *Supervisor) Run(interrupt <-chan struct{}) error {
	if _, err := s.client.TestConnection(context.Background()); err != nil {
		return fmt.Errorf("node connection preflight failed: %w", err)
	}

	start, end, err := s.resolveRange()
	if err != nil {
		return err
	}
	supvLog.Infof("scanning range [%d, %d] as scanner %q", start, end, s.scannerID)

	ingress := NewIngressQueue(start, end)
	s.ctx = NewContext(s.cfg.Threads, s.cfg.TargetDepth, s.cfg.QueueSize, ingress)
	s.progress = NewProgressTracker(start)
	s.completion = make(chan int, s.cfg.QueueSize)

	s.writer = NewWriter(s.ctx, s.db, WriterConfig{
		BatchSize:    s.cfg.BatchSize,
		BatchTimeout: 2 * time.Second,
		MaxRetries:   s.cfg.MaxRetries,
	})
	s.distrib = NewDistributor(s.ctx)
	s.pauseCtl = NewPauseController(s.ctx, PauseConfig{
		Enabled:       s.cfg.AutoPauseEnabled,
		HighThreshold: s.cfg.PauseThreshold,
		LowThreshold:  s.cfg.ResumeThreshold,
	})

	workerCfg := WorkerConfig{
		QuickScan:    s.cfg.QuickScan,
		BatchRPC:     s.cfg.BatchRPC,
		RPCBatchSize: s.cfg.RPCBatchSize,
		RPCTimeout:   time.Duration(s.cfg.RPCTimeoutSec) * time.Second,
	}
	s.workers = make([]*Worker, s.cfg.Threads)
	for i := range s.workers {
		s.workers[i] = NewWorker(i, s.ctx, s.client, workerCfg)
	}

	s.console = NewOperatorConsole(s.ctx, os.Stdin, OperatorHooks{
		Quit:      s.ctx.Stop,
		Status:    s.statusLine,
		Metrics:   func() string { return s.ctx.Metrics.Snapshot().FormatReport() },
		Queue:     func() string { return fmt.Sprintf("write queue depth: %d/%d", s.ctx.WriteQueueDepth(), s.cfg.QueueSize) },
		Integrity: s.integrityLine,
	})

	var writerErr error
	var wg sync.WaitGroup

	wg.Add(1)
	spawn(func() {
		defer wg.Done()
		writerErr = s.writer.Run()
		if writerErr != nil {
			supvLog.Criticalf("writer halted: %v", writerErr)
			s.ctx.Stop()
		}
	})

	spawn(s.distrib.Run)

	var workersWg sync.WaitGroup
	for _, w := range s.workers {
		w := w
		workersWg.Add(1)
		spawn(func() {
			defer workersWg.Done()
			w.Run(s.onBlockComplete)
		})
	}

	spawn(s.pauseCtl.Run)
	spawn(s.console.Run)

	progressDone := make(chan struct{})
	spawn(func() {
		s.progressLoop()
		close(progressDone)
	})

	workersFinished := make(chan struct{})
	go func() {
		workersWg.Wait()
		close(workersFinished)
	}()

	workersDone := false
	select {
	case <-workersFinished:
		supvLog.Infof("all workers finished: ingress drained")
		workersDone = true
		close(s.ctx.WriteQueue)
	case <-interrupt:
		supvLog.Infof("interrupt received: initiating graceful shutdown")
		s.ctx.Stop()
		if s.waitWithBudget(workersFinished, ShutdownBudget) {
			workersDone = true
			close(s.ctx.WriteQueue)
		} else {
			// Workers may still be mid-block; closing WriteQueue here
			// would race their next pushBlocking send. Signal HardStop
			// instead so producers abandon their sends and the writer
			// performs a final flush on whatever it already has.
			s.ctx.ForceStop()
		}
	}

	wg.Wait()

	if workersDone {
		// No worker can report a completion any more; closing the channel
		// lets progressLoop take every buffered height and return.
		close(s.completion)
	}
	s.ctx.Stop()
	<-progressDone

	if err := s.finalProgressCommit(); err != nil {
		supvLog.Errorf("final progress commit failed: %v", err)
	}

	if writerErr != nil {
		var fatal *FatalError
		if asFatal(writerErr, &fatal) {
			return fatal
		}
		return writerErr
	}
	return nil
}

func asFatal(err error, target **FatalError) bool {
	fe, ok := err.(*FatalError)
	if ok {
		*target = fe
	}
	return ok
}

// waitWithBudget waits for done, up to budget, and reports whether done
// fired in time. false means the budget was exceeded and the caller must
// fall back to a forced shutdown rather than assume workers are idle.
// budget is a parameter (rather than reading ShutdownBudget directly) so
// tests can exercise the exceeded-budget branch without waiting 5 minutes.
func (s *Supervisor) waitWithBudget(done <-chan struct{}, budget time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(budget):
		supvLog.Warnf("shutdown budget of %s exceeded: forcing termination", budget)
		return false
	}
}

func (s *Supervisor) onBlockComplete(height int) {
	s.completion <- height
}

// progressLoop owns the ProgressTracker and periodically commits the
// highest contiguous completed height. It exits once Run closes the
// completion channel after every worker has returned, once the run is
// stopped with ingress drained and no completion left to record, or
// immediately on HardStop — a forced shutdown may leave ingress non-empty,
// and waiting for it to drain would hang forever.
func (s *Supervisor) progressLoop() {
	sinceCommit := 0
	for {
		select {
		case height, ok := <-s.completion:
			if !ok {
				return
			}
			s.progress.Complete(height)
			sinceCommit++
			if sinceCommit >= s.cfg.ProgressInterval {
				if err := s.commitProgress(); err != nil {
					supvLog.Errorf("progress commit failed: %v", err)
				}
				sinceCommit = 0
			}
		case <-s.ctx.HardStop:
			return
		case <-time.After(time.Second):
			if s.ctx.Stopped() && s.ctx.Ingress.Empty() && s.allWorkQueuesAndWriteQueueIdle() {
				return
			}
		}
	}
}

func (s *Supervisor) allWorkQueuesAndWriteQueueIdle() bool {
	return len(s.completion) == 0
}

func (s *Supervisor) commitProgress() error {
	height := s.progress.HighestContiguous()
	return s.db.UpdateScanProgress(s.scannerID, height, s.progress.TotalDone())
}

func (s *Supervisor) finalProgressCommit() error {
	return s.commitProgress()
}

// resolveRange reads ScanProgress, computes start = last_scanned + 1
// unless overridden/reset, and defaults end to the current chain tip.
func (s *Supervisor) resolveRange() (start, end int, err error) {
	start = s.cfg.StartBlock
	if !s.cfg.Reset {
		prog, err := s.db.GetScanProgress(s.scannerID)
		if err != nil {
			return 0, 0, fmt.Errorf("read scan progress: %w", err)
		}
		if prog != nil && s.cfg.StartBlock == 0 {
			start = prog.LastScannedBlock + 1
		}
	}

	if _, err := s.db.EnsureScanProgress(s.scannerID, start); err != nil {
		return 0, 0, fmt.Errorf("ensure scan progress row: %w", err)
	}

	end = s.cfg.EndBlock
	if end < 0 {
		tip, err := s.client.GetChainTip(context.Background())
		if err != nil {
			return 0, 0, fmt.Errorf("resolve chain tip: %w", err)
		}
		end = tip
	}
	return start, end, nil
}

func (s *Supervisor) statusLine() string {
	snap := s.ctx.Metrics.Snapshot()
	return fmt.Sprintf("height_frontier=%d paused=%v manual_pause=%v %s",
		s.progress.HighestContiguous(), s.ctx.Paused(), s.ctx.ManualPauseActive(), snap.FormatReport())
}

func (s *Supervisor) integrityLine() string {
	r := s.writer.Integrity().Snapshot()
	return fmt.Sprintf("addresses_stored=%d addresses_failed=%d recent_failed=%v", r.Stored, r.Failed, r.RecentFailed)
}
