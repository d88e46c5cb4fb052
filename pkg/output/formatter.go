package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/syncwave/syncwave/pkg/engine"
	"github.com/syncwave/syncwave/pkg/models"
)

// Format selects how engine activity is rendered
type Format string

const (
	// FormatHuman renders readable lines and a colored summary
	FormatHuman Format = "human"
	// FormatJSON streams events as one JSON object per line
	FormatJSON Format = "json"
)

// Valid reports whether the format is one the CLI accepts
func (f Format) Valid() bool {
	return f == FormatHuman || f == FormatJSON
}

// Options tunes a formatter
type Options struct {
	// Progress draws a live byte bar instead of per-operation lines
	Progress bool

	// Quiet suppresses routine output; failures and the summary still print
	Quiet bool
}

// Formatter renders engine events and the final result. Emit must be safe
// for concurrent use, engine workers call it directly.
type Formatter interface {
	engine.EventSink

	// Summary renders the final result after the run settles
	Summary(res *engine.Result, runErr error) error

	// Close releases terminal state (cursor, progress bar)
	Close() error
}

// New returns the formatter for the requested format
func New(format Format, w io.Writer, opts Options) (Formatter, error) {
	switch format {
	case FormatJSON:
		return NewJSON(w), nil
	case FormatHuman:
		if opts.Progress {
			return NewProgress(w, opts), nil
		}
		return NewHuman(w, opts), nil
	}
	return nil, fmt.Errorf("unknown output format: %q", format)
}

// IsTerminal reports whether the writer is an interactive terminal
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// terminalWidth returns the writer's column count, or a default for pipes
func terminalWidth(w io.Writer) int {
	if file, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(file.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 120
}

// displayPath returns the path an operation is best known by
func displayPath(op *models.Operation) string {
	if op.Type == models.OpDelete || op.Destination == "" {
		return op.Source
	}
	return op.Destination
}

// opVerb returns the present-tense verb for an operation type
func opVerb(t models.OperationType) string {
	switch t {
	case models.OpCopy:
		return "Copying"
	case models.OpMove:
		return "Moving"
	case models.OpDelete:
		return "Deleting"
	case models.OpCreate:
		return "Creating"
	case models.OpUpdate:
		return "Updating"
	}
	return "Processing"
}

// FormatBytes formats bytes in human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats duration in human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
