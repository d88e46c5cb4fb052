package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/syncwave/syncwave/pkg/fileops"
	"github.com/syncwave/syncwave/pkg/logging"
	"github.com/syncwave/syncwave/pkg/models"
)

// worker pulls operations off the jobs channel until the channel closes,
// the context dies, or the desired pool size drops below its id
func (e *Engine) worker(ctx context.Context, id int, jobs <-chan *models.Operation, results chan<- opOutcome, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if int(e.desired.Load()) <= id {
			return
		}
		select {
		case <-ctx.Done():
			return
		case op, ok := <-jobs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				// grabbed after cancellation, leave it pending
				return
			}
			results <- e.runOperation(ctx, op)
		}
	}
}

// runOperation drives one operation through its attempt budget. The op is
// the worker's private clone; the orchestrator folds the outcome back into
// the session.
func (e *Engine) runOperation(ctx context.Context, op *models.Operation) opOutcome {
	cur := e.running.Add(1)
	for {
		p := e.peak.Load()
		if cur <= p || e.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	defer e.running.Add(-1)

	execOpts := fileops.ExecOptions{
		VerifyChecksums: e.opts.VerifyChecksums,
		CreateBackups:   e.opts.CreateBackups,
		Progress: func(done, total int64) {
			emit(e.sink, OperationProgress{
				OperationID: op.ID,
				Path:        opPath(op),
				BytesDone:   done,
				BytesTotal:  total,
			})
		},
	}

	retries := 0
	for {
		op.MarkRunning()
		emit(e.sink, OperationStarted{Operation: op.Clone(), Attempt: op.Attempts})

		start := time.Now()
		res, err := e.exec.Execute(ctx, op, execOpts)
		elapsed := time.Since(start)

		if err == nil {
			op.MarkCompleted()
			e.mon.RecordOperation(res.BytesProcessed, elapsed, true)
			return opOutcome{id: op.ID, op: op, res: res, retries: retries}
		}

		if interrupted(err) || ctx.Err() != nil {
			return opOutcome{id: op.ID, op: op, err: context.Canceled, retries: retries, interrupted: true}
		}

		if !retryable(err) || op.Attempts >= e.opts.MaxRetries {
			op.MarkFailed(err)
			e.mon.RecordOperation(0, elapsed, false)
			e.log.Error(ctx, "operation failed", err, logging.Fields{
				"operation": op.ID,
				"type":      string(op.Type),
				"path":      opPath(op),
				"attempts":  op.Attempts,
			})
			return opOutcome{id: op.ID, op: op, err: err, retries: retries}
		}

		delay := retryDelay(e.opts.RetryBaseDelay, op.Attempts)
		retries++
		e.mon.RecordRetry()
		emit(e.sink, OperationRetry{
			Operation: op.Clone(),
			Attempt:   op.Attempts + 1,
			Delay:     delay,
			Err:       err,
		})
		e.log.Warn(ctx, "operation failed, retrying", logging.Fields{
			"operation": op.ID,
			"path":      opPath(op),
			"attempt":   op.Attempts,
			"delay":     delay.String(),
			"error":     err.Error(),
		})

		select {
		case <-ctx.Done():
			return opOutcome{id: op.ID, op: op, err: context.Canceled, retries: retries, interrupted: true}
		case <-time.After(delay):
		}
	}
}

// retryDelay doubles from the base for each attempt already spent: 500ms
// before the second attempt, 1s before the third, and so on.
func retryDelay(base time.Duration, attemptsSoFar int) time.Duration {
	d := base
	for i := 1; i < attemptsSoFar; i++ {
		d *= 2
	}
	return d
}

// retryable reports whether another attempt could possibly succeed
func retryable(err error) bool {
	return !fileops.IsPermanent(err) && !fileops.IsIntegrity(err) && !fileops.IsCritical(err)
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
