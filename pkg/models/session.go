package models

import (
	"time"
)

// SessionStatus tracks the lifecycle of an execution session
type SessionStatus string

const (
	// SessionActive means the session is executing or resumable
	SessionActive SessionStatus = "active"
	// SessionCompleted means every operation reached a terminal state and none failed
	SessionCompleted SessionStatus = "completed"
	// SessionCompletedWithErrors means the run finished but some operations failed
	SessionCompletedWithErrors SessionStatus = "completed-with-errors"
	// SessionCancelled means the run was cancelled and may be resumed
	SessionCancelled SessionStatus = "cancelled"
	// SessionAborted means the run was aborted (transaction rolled back)
	SessionAborted SessionStatus = "aborted"
	// SessionDryRun means the session was a preview, nothing was executed
	SessionDryRun SessionStatus = "dry-run"
)

// Resumable reports whether a session in this status can be picked up again
func (s SessionStatus) Resumable() bool {
	return s == SessionActive || s == SessionCancelled
}

// SessionConfig records the engine options that shaped a run, so a resumed
// session executes under the same rules
type SessionConfig struct {
	SourceRoot      string        `json:"source_root,omitempty"`
	DestinationRoot string        `json:"destination_root,omitempty"`
	MaxConcurrency  int           `json:"max_concurrency"`
	MaxRetries      int           `json:"max_retries"`
	RetryBaseDelay  time.Duration `json:"retry_base_delay"`
	VerifyChecksums bool          `json:"verify_checksums"`
	CreateBackups   bool          `json:"create_backups"`
	Transactional   bool          `json:"transactional"`
	Adaptive        bool          `json:"adaptive"`
	DryRun          bool          `json:"dry_run"`
}

// SessionStats aggregates operation outcomes for a session
type SessionStats struct {
	Total          int        `json:"total"`
	Completed      int        `json:"completed"`
	Failed         int        `json:"failed"`
	Retries        int        `json:"retries"`
	BytesProcessed int64      `json:"bytes_processed"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Session is the durable record of one execution run. It is persisted as a
// single JSON document and survives process restarts.
type Session struct {
	ID         string        `json:"session_id"`
	Version    int           `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Status     SessionStatus `json:"status"`
	Config     SessionConfig `json:"config"`
	Operations []*Operation  `json:"operations"`
	Stats      SessionStats  `json:"stats"`
}

// Pending returns the operations that still need to run, in plan order
func (s *Session) Pending() []*Operation {
	var pending []*Operation
	for _, op := range s.Operations {
		if op.Status == StatusPending {
			pending = append(pending, op)
		}
	}
	return pending
}

// OperationByID finds an operation in the session, or nil
func (s *Session) OperationByID(id string) *Operation {
	for _, op := range s.Operations {
		if op.ID == id {
			return op
		}
	}
	return nil
}

// RecomputeStats rebuilds the aggregate counters from the operation list.
// Used after load to repair sessions whose stats drifted from their
// operations (for example a crash between an operation update and a save).
func (s *Session) RecomputeStats() {
	completed, failed, retries := 0, 0, 0
	for _, op := range s.Operations {
		switch op.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
		if op.Attempts > 1 {
			retries += op.Attempts - 1
		}
	}
	s.Stats.Total = len(s.Operations)
	s.Stats.Completed = completed
	s.Stats.Failed = failed
	s.Stats.Retries = retries
}

// StatsConsistent reports whether the stored aggregates match the
// operation list
func (s *Session) StatsConsistent() bool {
	completed, failed := 0, 0
	for _, op := range s.Operations {
		switch op.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return s.Stats.Total == len(s.Operations) &&
		s.Stats.Completed == completed &&
		s.Stats.Failed == failed
}
