package engine

import (
	"time"

	"github.com/syncwave/syncwave/pkg/fileops"
	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/monitor"
)

// Event is a notification from a running engine. The set of concrete event
// types is closed; consumers switch on the type they care about and ignore
// the rest.
type Event interface {
	isEvent()
}

// EventSink receives engine events. Implementations must be safe for
// concurrent use: progress and retry events are emitted from worker
// goroutines, lifecycle events from the orchestrator. A nil sink is valid
// and discards everything.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to the EventSink interface
type SinkFunc func(Event)

// Emit calls f(ev)
func (f SinkFunc) Emit(ev Event) { f(ev) }

func emit(sink EventSink, ev Event) {
	if sink != nil {
		sink.Emit(ev)
	}
}

// Initialized fires once per run, after the session exists and before the
// first operation starts
type Initialized struct {
	SessionID  string
	Resumed    bool
	DryRun     bool
	Total      int
	TotalBytes int64
	Skipped    int
	Workers    int
}

// OperationStarted fires when a worker begins an attempt. The carried
// operation is a detached copy; its state does not change after emission.
type OperationStarted struct {
	Operation *models.Operation
	Attempt   int
}

// OperationProgress reports byte progress of a streaming operation
type OperationProgress struct {
	OperationID string
	Path        string
	BytesDone   int64
	BytesTotal  int64
}

// OperationComplete fires when an operation succeeds. Result is nil for
// dry-run previews.
type OperationComplete struct {
	Operation *models.Operation
	Result    *fileops.Result
}

// OperationFailed fires when an operation reaches a terminal failure.
// Permanent is true when retrying could not have helped.
type OperationFailed struct {
	Operation *models.Operation
	Err       error
	Permanent bool
}

// OperationRetry fires before a failed operation is attempted again.
// Attempt is the attempt about to run, Err is what ended the previous one.
type OperationRetry struct {
	Operation *models.Operation
	Attempt   int
	Delay     time.Duration
	Err       error
}

// Performance carries a periodic monitor snapshot
type Performance struct {
	Snapshot monitor.Snapshot
}

// Conflict describes operations that collide on a path
type Conflict struct {
	Path         string   `json:"path"`
	OperationIDs []string `json:"operation_ids"`
	Detail       string   `json:"detail"`
}

// ConflictsDetected fires when plan validation finds colliding operations.
// The run stops before touching any file.
type ConflictsDetected struct {
	Conflicts []Conflict
}

// RolledBack fires after a transactional run has been reverted
type RolledBack struct {
	Count  int
	Errors int
}

// Cancelled fires when a run stops on cancellation. Settled counts
// operations that reached a terminal state before shutdown.
type Cancelled struct {
	SessionID string
	Settled   int
	Pending   int
}

func (Initialized) isEvent()       {}
func (OperationStarted) isEvent()  {}
func (OperationProgress) isEvent() {}
func (OperationComplete) isEvent() {}
func (OperationFailed) isEvent()   {}
func (OperationRetry) isEvent()    {}
func (Performance) isEvent()       {}
func (ConflictsDetected) isEvent() {}
func (RolledBack) isEvent()        {}
func (Cancelled) isEvent()         {}
