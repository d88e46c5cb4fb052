package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/syncwave/syncwave/pkg/engine"
	"github.com/syncwave/syncwave/pkg/models"
)

// JSON streams engine activity as one JSON object per line, for scripting
// and automation. The final summary is the last line.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSON creates a JSON line-stream formatter writing to w
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

// envelope frames every streamed object
type envelope struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Data  any       `json:"data,omitempty"`
}

type initData struct {
	SessionID  string `json:"session_id"`
	Resumed    bool   `json:"resumed,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Total      int    `json:"total"`
	TotalBytes int64  `json:"total_bytes"`
	Skipped    int    `json:"skipped,omitempty"`
	Workers    int    `json:"workers"`
}

type opData struct {
	ID        string               `json:"id"`
	Type      models.OperationType `json:"type"`
	Path      string               `json:"path"`
	Size      int64                `json:"size,omitempty"`
	Attempt   int                  `json:"attempt,omitempty"`
	Bytes     int64                `json:"bytes,omitempty"`
	Error     string               `json:"error,omitempty"`
	Permanent bool                 `json:"permanent,omitempty"`
	DelayMs   int64                `json:"delay_ms,omitempty"`
}

type rollbackData struct {
	Count  int `json:"count"`
	Errors int `json:"errors,omitempty"`
}

type cancelData struct {
	SessionID string `json:"session_id"`
	Settled   int    `json:"settled"`
	Pending   int    `json:"pending"`
}

func operationData(op *models.Operation) opData {
	return opData{
		ID:   op.ID,
		Type: op.Type,
		Path: displayPath(op),
		Size: op.Size,
	}
}

// Emit streams one engine event
func (f *JSON) Emit(ev engine.Event) {
	switch e := ev.(type) {
	case engine.Initialized:
		f.write("initialized", initData{
			SessionID:  e.SessionID,
			Resumed:    e.Resumed,
			DryRun:     e.DryRun,
			Total:      e.Total,
			TotalBytes: e.TotalBytes,
			Skipped:    e.Skipped,
			Workers:    e.Workers,
		})

	case engine.OperationStarted:
		d := operationData(e.Operation)
		d.Attempt = e.Attempt
		f.write("operation_started", d)

	case engine.OperationProgress:
		// Byte progress is too chatty for a parseable stream; consumers
		// get totals from operation_complete and the summary.

	case engine.OperationComplete:
		d := operationData(e.Operation)
		if e.Result != nil {
			d.Bytes = e.Result.BytesProcessed
		}
		d.Attempt = e.Operation.Attempts
		f.write("operation_complete", d)

	case engine.OperationFailed:
		d := operationData(e.Operation)
		d.Attempt = e.Operation.Attempts
		d.Permanent = e.Permanent
		if e.Err != nil {
			d.Error = e.Err.Error()
		}
		f.write("operation_failed", d)

	case engine.OperationRetry:
		d := operationData(e.Operation)
		d.Attempt = e.Attempt
		d.DelayMs = e.Delay.Milliseconds()
		if e.Err != nil {
			d.Error = e.Err.Error()
		}
		f.write("operation_retry", d)

	case engine.Performance:
		f.write("performance", e.Snapshot)

	case engine.ConflictsDetected:
		f.write("conflicts_detected", e.Conflicts)

	case engine.RolledBack:
		f.write("rolled_back", rollbackData{Count: e.Count, Errors: e.Errors})

	case engine.Cancelled:
		f.write("cancelled", cancelData{SessionID: e.SessionID, Settled: e.Settled, Pending: e.Pending})
	}
}

// Summary streams the final result as the closing line
func (f *JSON) Summary(res *engine.Result, runErr error) error {
	if runErr != nil {
		f.write("error", map[string]string{"error": runErr.Error()})
	}
	if res != nil {
		f.write("summary", res)
	}
	return nil
}

// Close implements Formatter
func (f *JSON) Close() error {
	return nil
}

func (f *JSON) write(event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Encode errors mean the consumer is gone, nothing sensible to do.
	_ = f.enc.Encode(envelope{Time: time.Now(), Event: event, Data: data})
}
