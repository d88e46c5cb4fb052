package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syncwave/syncwave/pkg/fileops"
	"github.com/syncwave/syncwave/pkg/logging"
	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/monitor"
	"github.com/syncwave/syncwave/pkg/ratelimit"
	"github.com/syncwave/syncwave/pkg/state"
)

const (
	// defaultAssumedThroughput feeds dry-run duration estimates when the
	// caller gives no figure of their own
	defaultAssumedThroughput = 100 << 20 // 100 MB/s

	// dryRunOpOverhead is the fixed per-operation cost added to dry-run
	// duration estimates
	dryRunOpOverhead = 2 * time.Millisecond
)

// Options configures an engine run
type Options struct {
	// MaxConcurrency is the initial worker count. Default min(NumCPU, 5).
	MaxConcurrency int
	// MaxRetries is the total attempt budget per operation. Default 3.
	MaxRetries int
	// RetryBaseDelay is the wait before the second attempt; it doubles for
	// each attempt after that. Default 500ms.
	RetryBaseDelay time.Duration
	// VerifyChecksums re-hashes published destinations against the source
	VerifyChecksums bool
	// CreateBackups preserves pre-images of overwritten destinations
	CreateBackups bool
	// Transactional rolls back all completed operations when any
	// operation fails terminally
	Transactional bool
	// Adaptive lets the monitor resize the worker pool during the run
	Adaptive bool
	// DryRun previews the plan without touching any file
	DryRun bool
	// AutosaveInterval is how often the session is persisted mid-run.
	// Default 5s.
	AutosaveInterval time.Duration
	// MetricsInterval is the cadence of resource sampling and Performance
	// events. Default 2s.
	MetricsInterval time.Duration
	// CancelGrace bounds how long a cancelled run waits for in-flight
	// operations to settle. Default 5s.
	CancelGrace time.Duration
	// Session resumes an interrupted run instead of creating a new one.
	// When set, the operations argument to Execute is ignored and the
	// session's pending operations run.
	Session *models.Session
	// AssumedThroughput in bytes per second shapes dry-run estimates.
	// Default 100 MB/s.
	AssumedThroughput int64
	// BandwidthLimit caps copy throughput in bytes per second, 0 means
	// unlimited
	BandwidthLimit int64
	// SourceRoot and DestinationRoot are recorded in the session for
	// display; the engine itself works on absolute per-operation paths
	SourceRoot      string
	DestinationRoot string
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = runtime.NumCPU()
		if o.MaxConcurrency > 5 {
			o.MaxConcurrency = 5
		}
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 500 * time.Millisecond
	}
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 5 * time.Second
	}
	if o.MetricsInterval <= 0 {
		o.MetricsInterval = 2 * time.Second
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = 5 * time.Second
	}
	if o.AssumedThroughput <= 0 {
		o.AssumedThroughput = defaultAssumedThroughput
	}
	return o
}

// Result is what Execute hands back: the serializable summary plus dry-run
// previews and the monitor's final report
type Result struct {
	models.ExecutionResult

	Previews []*fileops.Preview   `json:"previews,omitempty"`
	Report   *monitor.FinalReport `json:"report,omitempty"`
}

// ConflictError is returned when plan validation finds operations that
// collide on a path
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return fmt.Sprintf("plan conflict on %s: %s", e.Conflicts[0].Path, e.Conflicts[0].Detail)
	}
	return fmt.Sprintf("plan has %d path conflicts", len(e.Conflicts))
}

// Engine executes a plan of file operations with a bounded worker pool,
// retry with backoff, durable session state and optional transactional
// rollback. One Engine runs one plan; create a fresh Engine per run.
type Engine struct {
	opts  Options
	exec  *fileops.Executor
	mon   *monitor.Monitor
	store *state.Store
	log   logging.Logger
	sink  EventSink

	desired atomic.Int32 // worker count workers compare their id against
	running atomic.Int32
	peak    atomic.Int32

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc
	cancelled atomic.Bool
}

// New creates an engine. The store is required; logger and sink may be nil.
func New(opts Options, store *state.Store, log logging.Logger, sink EventSink) *Engine {
	opts = opts.withDefaults()
	if log == nil {
		log = logging.NewNullLogger()
	}

	var limiter *ratelimit.Limiter
	if opts.BandwidthLimit > 0 {
		limiter = ratelimit.NewLimiter(opts.BandwidthLimit)
	}

	return &Engine{
		opts: opts,
		exec: fileops.NewExecutor(fileops.Options{
			PreserveMetadata: true,
			Limiter:          limiter,
			Logger:           log,
		}),
		mon:   monitor.New(monitor.Config{}),
		store: store,
		log:   log,
		sink:  sink,
	}
}

// Cancel stops the running execution. Safe to call from any goroutine and
// more than once. In-flight operations finish their current chunk, the
// session is saved resume-ready, and Execute returns with Cancelled set.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
	e.cancelMu.Lock()
	cancel := e.cancelRun
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) armCancel(cancel context.CancelFunc) {
	e.cancelMu.Lock()
	e.cancelRun = cancel
	pending := e.cancelled.Load()
	e.cancelMu.Unlock()
	if pending {
		cancel()
	}
}

func (e *Engine) disarmCancel() {
	e.cancelMu.Lock()
	e.cancelRun = nil
	e.cancelMu.Unlock()
}

// Execute validates and runs the plan. Per-operation failures in a
// non-transactional run are reported through the result, not the error;
// the error is reserved for plan-level problems, cancellation and aborts.
func (e *Engine) Execute(ctx context.Context, ops []*models.Operation) (*Result, error) {
	var (
		sess    *models.Session
		resumed = e.opts.Session != nil
		err     error
	)

	if resumed {
		sess = e.opts.Session
	} else {
		if len(ops) == 0 {
			return nil, &models.ValidationError{Field: "Operations", Message: "execution plan is empty"}
		}
		if err := e.validatePlan(ops); err != nil {
			return nil, err
		}
		sess, err = e.store.CreateSession(e.sessionConfig(), ops)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	pending := sess.Pending()
	if resumed {
		// A stored session may have been edited or partially damaged,
		// check it like a fresh plan
		if err := e.validatePlan(pending); err != nil {
			return nil, err
		}
	}

	skipped := 0
	var totalBytes int64
	for _, op := range sess.Operations {
		if op.Status == models.StatusCompleted {
			skipped++
		}
	}
	for _, op := range pending {
		totalBytes += op.Size
	}

	e.running.Store(0)
	e.peak.Store(0)
	e.mon.Start(len(pending), totalBytes)

	e.log.Info(ctx, "execution starting", logging.Fields{
		"session":     sess.ID,
		"operations":  len(pending),
		"total_bytes": totalBytes,
		"skipped":     skipped,
		"workers":     e.opts.MaxConcurrency,
		"dry_run":     e.opts.DryRun,
		"resumed":     resumed,
	})
	emit(e.sink, Initialized{
		SessionID:  sess.ID,
		Resumed:    resumed,
		DryRun:     e.opts.DryRun,
		Total:      len(pending),
		TotalBytes: totalBytes,
		Skipped:    skipped,
		Workers:    e.opts.MaxConcurrency,
	})

	if e.opts.DryRun {
		return e.dryRun(ctx, sess, pending, skipped)
	}
	return e.run(ctx, sess, pending, skipped)
}

// validatePlan checks every operation and rejects plans whose operations
// collide on a path. Nothing on disk is touched before this passes.
func (e *Engine) validatePlan(ops []*models.Operation) error {
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	if conflicts := planConflicts(ops); len(conflicts) > 0 {
		emit(e.sink, ConflictsDetected{Conflicts: conflicts})
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// planConflicts finds path collisions: two operations mutating the same
// path, or a path that one operation mutates while another reads it.
func planConflicts(ops []*models.Operation) []Conflict {
	writes := make(map[string][]string)
	reads := make(map[string][]string)
	for _, op := range ops {
		if op.Type.NeedsDestination() {
			p := filepath.Clean(op.Destination)
			writes[p] = append(writes[p], op.ID)
		}
		switch op.Type {
		case models.OpDelete, models.OpMove:
			// these remove their source
			p := filepath.Clean(op.Source)
			writes[p] = append(writes[p], op.ID)
		case models.OpCopy, models.OpUpdate:
			p := filepath.Clean(op.Source)
			reads[p] = append(reads[p], op.ID)
		}
	}

	var conflicts []Conflict
	for path, ids := range writes {
		if len(ids) > 1 {
			conflicts = append(conflicts, Conflict{
				Path:         path,
				OperationIDs: ids,
				Detail:       "multiple operations mutate the same path",
			})
		}
		if readers, ok := reads[path]; ok {
			conflicts = append(conflicts, Conflict{
				Path:         path,
				OperationIDs: append(append([]string(nil), ids...), readers...),
				Detail:       "path is mutated by one operation and read by another",
			})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return conflicts
}

func (e *Engine) sessionConfig() models.SessionConfig {
	return models.SessionConfig{
		SourceRoot:      e.opts.SourceRoot,
		DestinationRoot: e.opts.DestinationRoot,
		MaxConcurrency:  e.opts.MaxConcurrency,
		MaxRetries:      e.opts.MaxRetries,
		RetryBaseDelay:  e.opts.RetryBaseDelay,
		VerifyChecksums: e.opts.VerifyChecksums,
		CreateBackups:   e.opts.CreateBackups,
		Transactional:   e.opts.Transactional,
		Adaptive:        e.opts.Adaptive,
		DryRun:          e.opts.DryRun,
	}
}

// dryRun previews every pending operation without mutating anything and
// aggregates what a live run would cost
func (e *Engine) dryRun(ctx context.Context, sess *models.Session, pending []*models.Operation, skipped int) (*Result, error) {
	res := &Result{
		ExecutionResult: models.ExecutionResult{
			SessionID: sess.ID,
			Status:    models.SessionDryRun,
			DryRun:    true,
			Total:     len(pending),
			Skipped:   skipped,
		},
	}

	for _, op := range pending {
		emit(e.sink, OperationStarted{Operation: op.Clone()})
		p, err := e.exec.PreviewOperation(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("preview of %s failed: %w", op.ID, err)
		}
		res.Previews = append(res.Previews, p)
		if op.Type != models.OpDelete {
			// deletes move no payload
			res.EstimatedBytes += p.EstimatedBytes
		}
		emit(e.sink, OperationComplete{Operation: op.Clone()})
	}

	res.EstimatedDuration = time.Duration(len(pending))*dryRunOpOverhead +
		time.Duration(float64(res.EstimatedBytes)/float64(e.opts.AssumedThroughput)*float64(time.Second))

	// A previewed resumable session keeps its status so it can still be
	// resumed; only fresh dry-run sessions are marked as such
	if e.opts.Session == nil {
		sess.Status = models.SessionDryRun
		now := time.Now()
		sess.Stats.FinishedAt = &now
		if err := e.store.Save(sess); err != nil {
			e.log.Warn(ctx, "failed to save dry-run session", logging.Fields{"error": err.Error()})
		}
	}

	e.log.Info(ctx, "dry run finished", logging.Fields{
		"session":            sess.ID,
		"operations":         len(pending),
		"estimated_bytes":    res.EstimatedBytes,
		"estimated_duration": res.EstimatedDuration.String(),
	})
	return res, nil
}

// opPath is the path an operation is best identified by in reports
func opPath(op *models.Operation) string {
	if op.Type == models.OpDelete {
		return op.Source
	}
	return op.Destination
}

// adoptOutcome copies a worker clone's terminal state onto the session's
// own operation. Only the orchestrator calls this.
func adoptOutcome(dst, src *models.Operation) {
	dst.Status = src.Status
	dst.Attempts = src.Attempts
	dst.Error = src.Error
	dst.RetryReason = src.RetryReason
	dst.StartedAt = src.StartedAt
	dst.CompletedAt = src.CompletedAt
}
