package models

import (
	"time"
)

// OperationType defines the kind of file operation to perform
type OperationType string

const (
	// OpCopy copies source to destination
	OpCopy OperationType = "copy"
	// OpMove moves source to destination
	OpMove OperationType = "move"
	// OpDelete removes the source file
	OpDelete OperationType = "delete"
	// OpCreate writes new content at the destination
	OpCreate OperationType = "create"
	// OpUpdate overwrites the destination with source content (backup forced)
	OpUpdate OperationType = "update"
)

// OperationStatus tracks the lifecycle of an operation
type OperationStatus string

const (
	// StatusPending means the operation has not started yet
	StatusPending OperationStatus = "pending"
	// StatusRunning means the operation is executing
	StatusRunning OperationStatus = "running"
	// StatusCompleted means the operation finished successfully
	StatusCompleted OperationStatus = "completed"
	// StatusFailed means the operation failed after all retry attempts
	StatusFailed OperationStatus = "failed"
)

// ValidTypes lists every operation type the engine accepts
var ValidTypes = []OperationType{OpCopy, OpMove, OpDelete, OpCreate, OpUpdate}

// Operation represents a single file operation in an execution plan
type Operation struct {
	ID          string          `json:"id"`
	Type        OperationType   `json:"type"`
	Source      string          `json:"source,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Size        int64           `json:"size,omitempty"` // expected payload size in bytes, advisory
	Content     []byte          `json:"content,omitempty"`
	Status      OperationStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error,omitempty"`
	RetryReason string          `json:"retry_reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NeedsSource reports whether the operation type reads an existing source file
func (t OperationType) NeedsSource() bool {
	switch t {
	case OpCopy, OpMove, OpDelete, OpUpdate:
		return true
	}
	return false
}

// NeedsDestination reports whether the operation type writes a destination path
func (t OperationType) NeedsDestination() bool {
	switch t {
	case OpCopy, OpMove, OpCreate, OpUpdate:
		return true
	}
	return false
}

// Valid reports whether the type is one the engine knows how to execute
func (t OperationType) Valid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Validate checks that the operation carries the fields its type requires
func (op *Operation) Validate() error {
	if op.ID == "" {
		return &ValidationError{Field: "ID", Message: "operation id is required"}
	}
	if !op.Type.Valid() {
		return &ValidationError{Field: "Type", Message: "unknown operation type: " + string(op.Type)}
	}
	if op.Type.NeedsSource() && op.Source == "" {
		return &ValidationError{Field: "Source", Message: string(op.Type) + " requires a source path"}
	}
	if op.Type.NeedsDestination() && op.Destination == "" {
		return &ValidationError{Field: "Destination", Message: string(op.Type) + " requires a destination path"}
	}
	if op.Type == OpCreate && len(op.Content) == 0 {
		return &ValidationError{Field: "Content", Message: "create requires content"}
	}
	if op.Source != "" && op.Source == op.Destination {
		return &ValidationError{Field: "Destination", Message: "source and destination are the same path"}
	}
	return nil
}

// MarkRunning transitions the operation to running and stamps the start time
func (op *Operation) MarkRunning() {
	now := time.Now()
	op.Status = StatusRunning
	op.StartedAt = &now
	op.Attempts++
}

// MarkCompleted transitions the operation to completed
func (op *Operation) MarkCompleted() {
	now := time.Now()
	op.Status = StatusCompleted
	op.CompletedAt = &now
	op.Error = ""
}

// MarkFailed transitions the operation to failed with the given error
func (op *Operation) MarkFailed(err error) {
	now := time.Now()
	op.Status = StatusFailed
	op.CompletedAt = &now
	if err != nil {
		op.Error = err.Error()
	}
}

// ResetForRetry returns a failed or interrupted operation to the pending
// state so it can be picked up again. The attempt counter is preserved.
func (op *Operation) ResetForRetry(reason string) {
	op.Status = StatusPending
	op.RetryReason = reason
	op.StartedAt = nil
	op.CompletedAt = nil
	op.Error = ""
}

// Terminal reports whether the operation reached a final state
func (op *Operation) Terminal() bool {
	return op.Status == StatusCompleted || op.Status == StatusFailed
}

// Clone returns a deep copy of the operation
func (op *Operation) Clone() *Operation {
	cp := *op
	if op.Content != nil {
		cp.Content = append([]byte(nil), op.Content...)
	}
	if op.StartedAt != nil {
		t := *op.StartedAt
		cp.StartedAt = &t
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
