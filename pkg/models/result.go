package models

import (
	"time"
)

// FailedOperation pairs an operation with the error that stopped it
type FailedOperation struct {
	OperationID string        `json:"operation_id"`
	Type        OperationType `json:"type"`
	Path        string        `json:"path"`
	Error       string        `json:"error"`
	Attempts    int           `json:"attempts"`
}

// ExecutionResult is the final outcome of an engine run, returned to the
// caller after the last operation settles
type ExecutionResult struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	DryRun    bool          `json:"dry_run"`
	Cancelled bool          `json:"cancelled"`

	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"` // already done before a resumed run
	Retries   int `json:"retries"`

	BytesProcessed  int64         `json:"bytes_processed"`
	Duration        time.Duration `json:"duration"`
	PeakConcurrency int           `json:"peak_concurrency"`

	RolledBack     bool              `json:"rolled_back"`
	RollbackCount  int               `json:"rollback_count,omitempty"`
	RollbackErrors int               `json:"rollback_errors,omitempty"`
	FailedOps      []FailedOperation `json:"failed_operations,omitempty"`

	// Dry-run estimates
	EstimatedBytes    int64         `json:"estimated_bytes,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
}

// Success reports whether the run finished with nothing failed and nothing
// rolled back
func (r *ExecutionResult) Success() bool {
	return !r.Cancelled && !r.RolledBack && r.Failed == 0
}

// ExitCode maps the result to a process exit code
func (r *ExecutionResult) ExitCode() int {
	switch {
	case r.Cancelled:
		return 130
	case r.RolledBack:
		return 2
	case r.Failed > 0:
		return 1
	default:
		return 0
	}
}
