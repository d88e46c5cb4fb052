package output

import (
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/syncwave/syncwave/pkg/engine"
)

// Progress renders a live byte bar during the run and the colored summary
// after it. Per-operation lines are suppressed so they do not fight the
// bar for the terminal; failures show up in the summary.
type Progress struct {
	mu       sync.Mutex
	w        io.Writer
	quiet    bool
	bar      *pb.ProgressBar
	byteMode bool
	done     map[string]int64
}

// NewProgress creates a progress-bar formatter writing to w
func NewProgress(w io.Writer, opts Options) *Progress {
	return &Progress{
		w:     w,
		quiet: opts.Quiet,
		done:  make(map[string]int64),
	}
}

// Emit drives the bar from engine events
func (f *Progress) Emit(ev engine.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch e := ev.(type) {
	case engine.Initialized:
		if e.DryRun {
			return
		}
		// With no payload bytes in the plan the bar counts operations.
		f.byteMode = e.TotalBytes > 0
		total := e.TotalBytes
		if !f.byteMode {
			total = int64(e.Total)
		}
		f.bar = pb.Full.New(0).
			SetTotal(total).
			Set(pb.Bytes, f.byteMode).
			SetWriter(f.w).
			SetRefreshRate(150 * time.Millisecond)
		f.bar.Start()

	case engine.OperationProgress:
		if f.bar == nil || !f.byteMode {
			return
		}
		// A retried operation restarts from zero, the negative delta
		// rewinds the bar by the lost bytes.
		f.bar.Add64(e.BytesDone - f.done[e.OperationID])
		f.done[e.OperationID] = e.BytesDone

	case engine.OperationComplete:
		if f.bar == nil {
			return
		}
		if f.byteMode {
			if rest := e.Operation.Size - f.done[e.Operation.ID]; rest > 0 {
				f.bar.Add64(rest)
			}
			delete(f.done, e.Operation.ID)
		} else {
			f.bar.Increment()
		}

	case engine.OperationFailed:
		if f.bar == nil {
			return
		}
		if f.byteMode {
			// The remainder of a failed operation never arrives, shrink
			// the goal so 100% stays reachable.
			if rest := e.Operation.Size - f.done[e.Operation.ID]; rest > 0 {
				f.bar.SetTotal(f.bar.Total() - rest)
			}
			delete(f.done, e.Operation.ID)
		} else {
			f.bar.Increment()
		}
	}
}

// Summary stops the bar and renders the final result block
func (f *Progress) Summary(res *engine.Result, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bar != nil {
		f.bar.Finish()
		f.bar = nil
	}
	return writeSummary(f.w, res, runErr, f.quiet)
}

// Close stops the bar if the run ended without a summary
func (f *Progress) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bar != nil {
		f.bar.Finish()
		f.bar = nil
	}
	return nil
}
