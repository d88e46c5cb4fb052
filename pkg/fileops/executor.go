// Package fileops executes individual file operations atomically. Writes are
// staged to a temp file on the destination's volume and published with a
// rename, so an interrupted or failed operation never leaves a partially
// written destination visible. Every successful mutation returns rollback
// data sufficient to restore the prior state byte for byte.
package fileops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syncwave/syncwave/pkg/logging"
	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/ratelimit"
)

const (
	defaultTempSuffix   = ".tmp"
	defaultBackupSuffix = ".backup"
	defaultChunkSize    = 128 * 1024

	// Progress callbacks fire at most once per interval or per delta bytes,
	// whichever comes first
	progressReportInterval = 50 * time.Millisecond
	progressReportBytes    = 64 * 1024
)

// ProgressFunc receives byte-level progress while a payload is streamed
type ProgressFunc func(bytesDone, bytesTotal int64)

// Options configures an Executor
type Options struct {
	// TempSuffix is appended to the destination path for staged writes
	TempSuffix string
	// BackupSuffix is appended to a path to hold its pre-image
	BackupSuffix string
	// ChunkSize is the streaming copy buffer size in bytes
	ChunkSize int
	// PreserveMetadata re-applies source mode and mtime to copied files
	PreserveMetadata bool
	// Limiter throttles copy bandwidth when set
	Limiter *ratelimit.Limiter
	// Logger receives operation-level diagnostics
	Logger logging.Logger
}

// ExecOptions are per-call settings
type ExecOptions struct {
	// VerifyChecksums re-hashes the published destination and compares it
	// with the hash computed while streaming
	VerifyChecksums bool
	// CreateBackups preserves the pre-image of an overwritten destination
	CreateBackups bool
	// Progress receives throttled byte progress, may be nil
	Progress ProgressFunc
}

// Result describes a completed operation
type Result struct {
	// BytesProcessed is the payload size moved through the executor
	BytesProcessed int64
	// Duration is wall time for the operation
	Duration time.Duration
	// Checksum is the hex SHA-256 of the payload, when one was computed
	Checksum string
	// Verified is true when the destination hash was checked against the source
	Verified bool
	// AlreadyDeleted marks a delete whose target was already absent
	AlreadyDeleted bool
	// Rollback holds the data needed to undo this operation
	Rollback *RollbackInfo
}

// Executor performs file operations. Safe for concurrent use; temp and
// backup registries are shared across all operations it runs.
type Executor struct {
	opts Options
	log  logging.Logger

	mu      sync.Mutex
	temps   map[string]struct{}
	backups map[string]struct{}
}

// NewExecutor creates an executor with defaults filled in
func NewExecutor(opts Options) *Executor {
	if opts.TempSuffix == "" {
		opts.TempSuffix = defaultTempSuffix
	}
	if opts.BackupSuffix == "" {
		opts.BackupSuffix = defaultBackupSuffix
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNullLogger()
	}
	return &Executor{
		opts:    opts,
		log:     log,
		temps:   make(map[string]struct{}),
		backups: make(map[string]struct{}),
	}
}

// Execute runs a single operation and returns its result. The error, when
// non-nil, can be classified with IsPermanent, IsIntegrity and IsCritical.
func (e *Executor) Execute(ctx context.Context, op *models.Operation, opts ExecOptions) (*Result, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		res *Result
		err error
	)

	switch op.Type {
	case models.OpCopy:
		res, err = e.executeCopy(ctx, op, opts)
	case models.OpUpdate:
		// Update is a copy with the pre-image always preserved
		opts.CreateBackups = true
		res, err = e.executeCopy(ctx, op, opts)
	case models.OpMove:
		res, err = e.executeMove(ctx, op, opts)
	case models.OpDelete:
		res, err = e.executeDelete(ctx, op)
	case models.OpCreate:
		res, err = e.executeCreate(ctx, op, opts)
	default:
		return nil, fmt.Errorf("unsupported operation type: %s", op.Type)
	}

	if res != nil {
		res.Duration = time.Since(start)
	}
	if err != nil {
		e.log.Debug(ctx, "operation failed", logging.Fields{
			"operation": op.ID,
			"type":      string(op.Type),
			"error":     err.Error(),
		})
	}
	return res, err
}

// Cleanup removes every temp and backup file the executor still tracks.
// Call it once rollback decisions are final: backups are gone afterwards.
func (e *Executor) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	remove := func(paths map[string]struct{}) {
		for path := range paths {
			if err := removeIfPresent(path); err != nil && firstErr == nil {
				firstErr = err
			}
			delete(paths, path)
		}
	}
	remove(e.temps)
	remove(e.backups)
	return firstErr
}

func (e *Executor) trackTemp(path string) {
	e.mu.Lock()
	e.temps[path] = struct{}{}
	e.mu.Unlock()
}

func (e *Executor) untrackTemp(path string) {
	e.mu.Lock()
	delete(e.temps, path)
	e.mu.Unlock()
}

func (e *Executor) trackBackup(path string) {
	e.mu.Lock()
	e.backups[path] = struct{}{}
	e.mu.Unlock()
}

func (e *Executor) untrackBackup(path string) {
	e.mu.Lock()
	delete(e.backups, path)
	e.mu.Unlock()
}
