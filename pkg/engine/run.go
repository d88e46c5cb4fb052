package engine

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/syncwave/syncwave/pkg/fileops"
	"github.com/syncwave/syncwave/pkg/logging"
	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/monitor"
)

// opOutcome is what a worker reports back for one operation. The op field
// is the worker's private clone carrying the terminal state.
type opOutcome struct {
	id          string
	op          *models.Operation
	res         *fileops.Result
	err         error
	retries     int
	interrupted bool
}

// rollbackEntry pairs a completed operation with the data needed to undo it
type rollbackEntry struct {
	op   *models.Operation
	info *fileops.RollbackInfo
}

// run executes the pending operations live. The orchestrator goroutine is
// the only one that touches the session, the rollback stack and the run
// counters; workers communicate results over channels and operate on
// operation clones.
func (e *Engine) run(ctx context.Context, sess *models.Session, pending []*models.Operation, skipped int) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.armCancel(cancel)
	defer e.disarmCancel()

	total := len(pending)
	jobs := make(chan *models.Operation, total)
	results := make(chan opOutcome, total)

	byID := make(map[string]*models.Operation, total)
	for _, op := range pending {
		byID[op.ID] = op
		jobs <- op.Clone()
	}
	close(jobs)

	live := e.opts.MaxConcurrency
	if live > total {
		live = total
	}
	e.desired.Store(int32(live))
	var wg sync.WaitGroup
	for i := 0; i < live; i++ {
		wg.Add(1)
		go e.worker(runCtx, i, jobs, results, &wg)
	}
	e.mon.SetWorkers(live)

	autosave := time.NewTicker(e.opts.AutosaveInterval)
	defer autosave.Stop()
	metrics := time.NewTicker(e.opts.MetricsInterval)
	defer metrics.Stop()

	var (
		settled      int
		runCompleted int
		runFailed    int
		runRetries   int
		bytesDone    int64
		undo         []rollbackEntry
		failures     []models.FailedOperation
		aborted      bool
		abortErr     error
		wasCancelled bool
	)

	saveSession := func() {
		if err := e.store.Save(sess); err != nil {
			e.log.Warn(ctx, "session save failed", logging.Fields{
				"session": sess.ID,
				"error":   err.Error(),
			})
		}
	}

	apply := func(out opOutcome) {
		real := byID[out.id]
		adoptOutcome(real, out.op)
		runRetries += out.retries
		sess.Stats.Retries += out.retries
		switch {
		case out.err == nil:
			runCompleted++
			bytesDone += out.res.BytesProcessed
			sess.Stats.Completed++
			sess.Stats.BytesProcessed += out.res.BytesProcessed
			if e.opts.Transactional && out.res.Rollback != nil {
				undo = append(undo, rollbackEntry{op: real, info: out.res.Rollback})
			}
			emit(e.sink, OperationComplete{Operation: out.op, Result: out.res})
		case out.interrupted:
			// went down with the cancellation, back to pending for resume
			real.ResetForRetry("interrupted")
		default:
			runFailed++
			sess.Stats.Failed++
			failures = append(failures, models.FailedOperation{
				OperationID: out.op.ID,
				Type:        out.op.Type,
				Path:        opPath(out.op),
				Error:       out.err.Error(),
				Attempts:    out.op.Attempts,
			})
			emit(e.sink, OperationFailed{
				Operation: out.op,
				Err:       out.err,
				Permanent: fileops.IsPermanent(out.err),
			})
		}
		saveSession()
	}

collect:
	for settled < total {
		select {
		case out := <-results:
			settled++
			apply(out)
			if out.err != nil && !out.interrupted &&
				(e.opts.Transactional || fileops.IsCritical(out.err)) {
				aborted = true
				abortErr = out.err
				break collect
			}
		case <-autosave.C:
			saveSession()
		case <-metrics.C:
			e.mon.SampleResources()
			emit(e.sink, Performance{Snapshot: e.mon.Snapshot()})
			if e.opts.Adaptive {
				live = e.resizePool(runCtx, live, jobs, results, &wg)
			}
		case <-runCtx.Done():
			wasCancelled = true
			break collect
		}
	}

	if aborted || wasCancelled {
		cancel()
		settled += e.drain(ctx, results, &wg, apply)
	} else {
		wg.Wait()
	}

	now := time.Now()
	switch {
	case aborted:
		sess.Status = models.SessionAborted
		sess.Stats.FinishedAt = &now
	case wasCancelled:
		// no FinishedAt, the session is expected to be resumed
		sess.Status = models.SessionCancelled
	case runFailed > 0:
		sess.Status = models.SessionCompletedWithErrors
		sess.Stats.FinishedAt = &now
	default:
		sess.Status = models.SessionCompleted
		sess.Stats.FinishedAt = &now
	}

	rolledBack, rollbackErrs := 0, 0
	if aborted && e.opts.Transactional {
		rolledBack, rollbackErrs = e.rollback(sess, undo)
		emit(e.sink, RolledBack{Count: rolledBack, Errors: rollbackErrs})
		e.log.Warn(ctx, "run aborted, completed operations rolled back", logging.Fields{
			"session":     sess.ID,
			"rolled_back": rolledBack,
			"errors":      rollbackErrs,
			"cause":       abortErr.Error(),
		})
	}

	saveSession()

	if wasCancelled {
		emit(e.sink, Cancelled{SessionID: sess.ID, Settled: settled, Pending: total - settled})
		e.log.Info(ctx, "run cancelled", logging.Fields{
			"session": sess.ID,
			"settled": settled,
			"pending": total - settled,
		})
	}

	if err := e.exec.Cleanup(); err != nil {
		e.log.Warn(ctx, "cleanup of staged files failed", logging.Fields{"error": err.Error()})
	}

	final := e.mon.Stop()
	res := &Result{
		ExecutionResult: models.ExecutionResult{
			SessionID:       sess.ID,
			Status:          sess.Status,
			Cancelled:       wasCancelled,
			Total:           total,
			Completed:       runCompleted,
			Failed:          runFailed,
			Skipped:         skipped,
			Retries:         runRetries,
			BytesProcessed:  bytesDone,
			Duration:        final.Duration,
			PeakConcurrency: int(e.peak.Load()),
			RolledBack:      aborted && e.opts.Transactional,
			RollbackCount:   rolledBack,
			RollbackErrors:  rollbackErrs,
			FailedOps:       failures,
		},
		Report: final,
	}

	e.log.Info(ctx, "execution finished", logging.Fields{
		"session":   sess.ID,
		"status":    string(sess.Status),
		"completed": runCompleted,
		"failed":    runFailed,
		"retries":   runRetries,
		"bytes":     bytesDone,
		"duration":  final.Duration.String(),
	})

	switch {
	case aborted:
		return res, abortErr
	case wasCancelled:
		return res, context.Canceled
	default:
		return res, nil
	}
}

// drain waits out in-flight operations after cancellation or abort. Results
// that still arrive are applied, so an operation finishing after cancel is
// recorded rather than lost. Bounded by CancelGrace.
func (e *Engine) drain(ctx context.Context, results <-chan opOutcome, wg *sync.WaitGroup, apply func(opOutcome)) int {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(e.opts.CancelGrace)
	defer grace.Stop()

	applied := 0
	for {
		select {
		case out := <-results:
			apply(out)
			applied++
		case <-done:
			for {
				select {
				case out := <-results:
					apply(out)
					applied++
				default:
					return applied
				}
			}
		case <-grace.C:
			e.log.Warn(ctx, "grace period expired with operations still in flight", nil)
			return applied
		}
	}
}

// resizePool applies the monitor's advice one worker at a time. Lowered
// workers notice the reduced desired count between jobs and exit; raises
// spawn a worker with the next id.
func (e *Engine) resizePool(ctx context.Context, live int, jobs chan *models.Operation, results chan opOutcome, wg *sync.WaitGroup) int {
	floor := 1
	ceiling := runtime.NumCPU()
	if e.opts.MaxConcurrency > ceiling {
		ceiling = e.opts.MaxConcurrency
	}

	advice := e.mon.Advise(live, floor, ceiling)
	switch advice.Action {
	case monitor.ActionLower:
		if live > floor {
			live--
			e.desired.Store(int32(live))
			e.log.Info(ctx, "lowering worker count", logging.Fields{
				"workers": live,
				"reason":  advice.Reason,
			})
		}
	case monitor.ActionRaise:
		if live < ceiling {
			e.desired.Store(int32(live + 1))
			wg.Add(1)
			go e.worker(ctx, live, jobs, results, wg)
			live++
			e.log.Info(ctx, "raising worker count", logging.Fields{
				"workers": live,
				"reason":  advice.Reason,
			})
		}
	}
	e.mon.SetWorkers(live)
	return live
}

// rollback reverts completed operations in reverse completion order. Every
// entry is attempted; failures are counted and logged, never fatal. The run
// context is dead by the time this runs, so rollback uses its own.
func (e *Engine) rollback(sess *models.Session, undo []rollbackEntry) (int, int) {
	ctx := context.Background()
	rolled, errs := 0, 0
	for i := len(undo) - 1; i >= 0; i-- {
		ent := undo[i]
		if err := e.exec.RollbackOperation(ctx, ent.op, ent.info); err != nil {
			errs++
			e.log.Error(ctx, "rollback failed", err, logging.Fields{
				"operation": ent.op.ID,
				"path":      opPath(ent.op),
			})
			continue
		}
		rolled++
		ent.op.ResetForRetry("rolled back")
		sess.Stats.Completed--
	}
	return rolled, errs
}
