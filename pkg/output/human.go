package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/syncwave/syncwave/pkg/engine"
	"github.com/syncwave/syncwave/pkg/models"
)

// Human renders engine events as plain lines with a colored summary.
// It is the default for non-interactive output.
type Human struct {
	mu      sync.Mutex
	w       io.Writer
	quiet   bool
	width   int
	total   int
	settled int
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
)

// StatusColor returns the color a session status renders in
func StatusColor(status models.SessionStatus) *color.Color {
	switch status {
	case models.SessionCompleted:
		return green
	case models.SessionCompletedWithErrors, models.SessionCancelled, models.SessionActive:
		return yellow
	case models.SessionAborted:
		return red
	default:
		return cyan
	}
}

// NewHuman creates a human-readable formatter writing to w
func NewHuman(w io.Writer, opts Options) *Human {
	return &Human{
		w:     w,
		quiet: opts.Quiet,
		width: terminalWidth(w),
	}
}

// Emit renders one engine event
func (f *Human) Emit(ev engine.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch e := ev.(type) {
	case engine.Initialized:
		f.total = e.Total
		if f.quiet {
			return
		}
		if e.DryRun {
			fmt.Fprintf(f.w, "Previewing %d operations (%s)\n", e.Total, FormatBytes(e.TotalBytes))
			return
		}
		line := fmt.Sprintf("Starting sync: %d operations, %s total (%d workers)", e.Total, FormatBytes(e.TotalBytes), e.Workers)
		if e.Resumed {
			line = fmt.Sprintf("Resuming session %s: %d operations left, %d already done", shortID(e.SessionID), e.Total, e.Skipped)
		}
		fmt.Fprintln(f.w, line)

	case engine.OperationStarted:
		if f.quiet || e.Attempt > 1 {
			return
		}
		size := ""
		if e.Operation.Size > 0 {
			size = fmt.Sprintf(" (%s)", FormatBytes(e.Operation.Size))
		}
		fmt.Fprintf(f.w, "%s %s%s...\n", opVerb(e.Operation.Type), f.truncate(displayPath(e.Operation)), size)

	case engine.OperationComplete:
		f.settled++
		if f.quiet {
			return
		}
		bytes := e.Operation.Size
		if e.Result != nil {
			bytes = e.Result.BytesProcessed
		}
		prefix := fmt.Sprintf("[%d/%d] ", f.settled, f.total)
		green.Fprintf(f.w, "%s✓ %s (%s)\n", prefix, f.truncate(displayPath(e.Operation)), FormatBytes(bytes))

	case engine.OperationFailed:
		f.settled++
		suffix := ""
		if e.Permanent {
			suffix = " (permanent)"
		}
		red.Fprintf(f.w, "[%d/%d] ✗ %s: %v%s\n", f.settled, f.total, f.truncate(displayPath(e.Operation)), e.Err, suffix)

	case engine.OperationRetry:
		if f.quiet {
			return
		}
		yellow.Fprintf(f.w, "↻ %s: attempt %d in %s (%v)\n", f.truncate(displayPath(e.Operation)), e.Attempt, e.Delay, e.Err)

	case engine.ConflictsDetected:
		red.Fprintf(f.w, "Conflicting operations, nothing was executed:\n")
		for _, c := range e.Conflicts {
			fmt.Fprintf(f.w, "  %s: %s\n", c.Path, c.Detail)
		}

	case engine.RolledBack:
		line := fmt.Sprintf("Rolled back %d operations", e.Count)
		if e.Errors > 0 {
			line += fmt.Sprintf(" (%d rollback errors)", e.Errors)
		}
		yellow.Fprintln(f.w, line)

	case engine.Cancelled:
		yellow.Fprintf(f.w, "Cancelled: %d settled, %d pending. Resume with session %s\n", e.Settled, e.Pending, shortID(e.SessionID))
	}
}

// Summary renders the final result block
func (f *Human) Summary(res *engine.Result, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeSummary(f.w, res, runErr, f.quiet)
}

// Close implements Formatter
func (f *Human) Close() error {
	return nil
}

// truncate keeps long paths inside the terminal width, leaving room for
// the line decoration around them
func (f *Human) truncate(path string) string {
	budget := f.width - 30
	if budget < 20 {
		budget = 20
	}
	runes := []rune(path)
	if len(runes) <= budget {
		return path
	}
	return "..." + string(runes[len(runes)-budget+3:])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeSummary renders the shared end-of-run block used by the human and
// progress formatters
func writeSummary(w io.Writer, res *engine.Result, runErr error, quiet bool) error {
	fmt.Fprintln(w)

	if res == nil {
		if runErr != nil {
			red.Fprintf(w, "Error: %v\n", runErr)
		}
		return nil
	}

	if res.DryRun {
		writeDryRunSummary(w, res)
		return nil
	}

	switch res.Status {
	case models.SessionCompleted:
		fmt.Fprintf(w, "Sync completed in %s\n", res.Duration.Round(time.Millisecond))
	case models.SessionCompletedWithErrors:
		fmt.Fprintf(w, "Sync completed with errors in %s\n", res.Duration.Round(time.Millisecond))
	case models.SessionCancelled:
		fmt.Fprintf(w, "Sync cancelled after %s\n", res.Duration.Round(time.Millisecond))
	case models.SessionAborted:
		fmt.Fprintf(w, "Sync aborted after %s\n", res.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "Sync finished in %s\n", res.Duration.Round(time.Millisecond))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Operations:\n")
	fmt.Fprintf(w, "    Total:      %d\n", res.Total)
	fmt.Fprintf(w, "    Completed:  %d\n", res.Completed)
	fmt.Fprintf(w, "    Failed:     %d\n", res.Failed)
	if res.Skipped > 0 {
		fmt.Fprintf(w, "    Skipped:    %d (done in an earlier run)\n", res.Skipped)
	}
	if res.Retries > 0 {
		fmt.Fprintf(w, "    Retries:    %d\n", res.Retries)
	}
	fmt.Fprintf(w, "  Transfer:\n")
	fmt.Fprintf(w, "    Data:           %s\n", FormatBytes(res.BytesProcessed))
	if secs := res.Duration.Seconds(); secs > 0 && res.BytesProcessed > 0 {
		fmt.Fprintf(w, "    Average speed:  %s/s\n", FormatBytes(int64(float64(res.BytesProcessed)/secs)))
	}
	if res.PeakConcurrency > 0 {
		fmt.Fprintf(w, "    Peak workers:   %d\n", res.PeakConcurrency)
	}

	if res.RolledBack {
		fmt.Fprintln(w)
		red.Fprintf(w, "Transaction rolled back: %d operations reverted\n", res.RollbackCount)
	}

	if rep := res.Report; rep != nil && !quiet {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Performance: grade %s, efficiency %.0f%%, trend %s\n", rep.Grade, rep.Efficiency*100, rep.Trend)
		for _, s := range rep.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status: ")
	StatusColor(res.Status).Fprintf(w, "%s\n", res.Status)

	if len(res.FailedOps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, fo := range res.FailedOps {
			fmt.Fprintf(w, "  %s: %s (%d attempts)\n", fo.Path, fo.Error, fo.Attempts)
		}
	}

	if runErr != nil {
		fmt.Fprintln(w)
		red.Fprintf(w, "Error: %v\n", runErr)
	}
	return nil
}

// writeDryRunSummary renders estimates and preview warnings
func writeDryRunSummary(w io.Writer, res *engine.Result) {
	fmt.Fprintf(w, "Dry run: %d operations, %s to transfer, about %s\n",
		res.Total, FormatBytes(res.EstimatedBytes), formatDuration(res.EstimatedDuration))

	var warnings int
	for _, p := range res.Previews {
		warnings += len(p.Warnings)
	}
	if warnings > 0 {
		fmt.Fprintln(w)
		yellow.Fprintf(w, "Warnings (%d):\n", warnings)
		for _, p := range res.Previews {
			for _, warning := range p.Warnings {
				fmt.Fprintf(w, "  %s: %s\n", displayPath(p.Operation), warning)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status: ")
	StatusColor(res.Status).Fprintf(w, "%s\n", res.Status)
}
