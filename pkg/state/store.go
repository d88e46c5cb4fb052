// Package state persists execution sessions as JSON documents, one file per
// session. Saves are atomic (temp file then rename) so a crash mid-write
// never corrupts the last good copy, and interrupted sessions can be
// resumed from exactly where they stopped.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syncwave/syncwave/pkg/logging"
	"github.com/syncwave/syncwave/pkg/models"
)

const (
	sessionFileVersion = 1
	sessionFileExt     = ".json"

	// DefaultMaxAge is how long finished or abandoned sessions are kept
	DefaultMaxAge = 7 * 24 * time.Hour
	// DefaultMaxSessions bounds how many session files are retained
	DefaultMaxSessions = 50
)

// Config holds store settings
type Config struct {
	// Dir is where session files live
	Dir string
	// MaxAge is the retention window for terminal sessions, and the
	// staleness limit beyond which active sessions refuse to resume
	MaxAge time.Duration
	// MaxSessions caps how many session files CleanupOldSessions keeps
	MaxSessions int
	// Logger receives store diagnostics
	Logger logging.Logger
}

// Store reads and writes session files
type Store struct {
	dir         string
	maxAge      time.Duration
	maxSessions int
	log         logging.Logger
}

// NewStore creates a store rooted at cfg.Dir, creating the directory if
// needed
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNullLogger()
	}
	return &Store{
		dir:         cfg.Dir,
		maxAge:      cfg.MaxAge,
		maxSessions: cfg.MaxSessions,
		log:         log,
	}, nil
}

// Dir returns the directory session files are stored in
func (s *Store) Dir() string {
	return s.dir
}

// CreateSession builds a new active session around the given plan and
// persists it immediately. Operations are deep-copied and reset to pending.
func (s *Store) CreateSession(cfg models.SessionConfig, ops []*models.Operation) (*models.Session, error) {
	now := time.Now()
	sess := &models.Session{
		ID:        uuid.New().String(),
		Version:   sessionFileVersion,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.SessionActive,
		Config:    cfg,
	}

	sess.Operations = make([]*models.Operation, 0, len(ops))
	for _, op := range ops {
		cp := op.Clone()
		cp.Status = models.StatusPending
		sess.Operations = append(sess.Operations, cp)
	}
	sess.Stats = models.SessionStats{
		Total:     len(sess.Operations),
		StartedAt: now,
	}

	if err := s.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save writes the session to disk atomically
func (s *Store) Save(sess *models.Session) error {
	sess.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := s.sessionPath(sess.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize session file: %w", err)
	}
	return nil
}

// Load reads and validates a session by id
func (s *Store) Load(id string) (*models.Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if sess.Version > sessionFileVersion {
		return nil, fmt.Errorf("session file version %d is newer than supported version %d", sess.Version, sessionFileVersion)
	}

	if err := validateSession(&sess); err != nil {
		return nil, fmt.Errorf("session %s is corrupted: %w", id, err)
	}

	// Aggregates drifting from the operation list is survivable, rebuild them
	if !sess.StatsConsistent() {
		s.log.Warn(context.Background(), "session stats inconsistent, recomputing", logging.Fields{
			"session": sess.ID,
		})
		sess.RecomputeStats()
	}
	return &sess, nil
}

// ResumeInfo describes what a resumed run still has to do
type ResumeInfo struct {
	Session          *models.Session
	Pending          []*models.Operation
	CompletedSkipped int
	ResetFromRunning int
	ResetFromFailed  int
}

// Resume loads a session and prepares its operations for re-execution:
// completed work is skipped, operations caught mid-flight by the
// interruption go back to pending, and failed operations with attempts
// left are given another chance.
func (s *Store) Resume(id string) (*ResumeInfo, error) {
	sess, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	if !sess.Status.Resumable() {
		return nil, fmt.Errorf("session %s is %s and cannot be resumed", id, sess.Status)
	}
	if age := time.Since(sess.UpdatedAt); age > s.maxAge {
		return nil, fmt.Errorf("session %s is %s old, beyond the %s resume window", id, age.Round(time.Minute), s.maxAge)
	}

	info := &ResumeInfo{Session: sess}
	for _, op := range sess.Operations {
		switch op.Status {
		case models.StatusCompleted:
			info.CompletedSkipped++
		case models.StatusRunning:
			// The process died while this one was in flight
			op.ResetForRetry("interrupted")
			info.ResetFromRunning++
		case models.StatusFailed:
			if op.Attempts < sess.Config.MaxRetries {
				op.ResetForRetry("resume")
				info.ResetFromFailed++
			}
		}
		if op.Status == models.StatusPending {
			info.Pending = append(info.Pending, op)
		}
	}

	sess.Status = models.SessionActive
	if err := s.Save(sess); err != nil {
		return nil, err
	}
	return info, nil
}

// Summary is a one-line view of a stored session
type Summary struct {
	ID        string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Total     int                  `json:"total"`
	Completed int                  `json:"completed"`
	Failed    int                  `json:"failed"`
	Bytes     int64                `json:"bytes_processed"`
}

// List returns summaries of every stored session, newest first.
// Unreadable files are skipped, not fatal.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, sessionFileExt) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		sess, loadErr := s.Load(strings.TrimSuffix(name, sessionFileExt))
		if loadErr != nil {
			s.log.Warn(context.Background(), "skipping unreadable session file", logging.Fields{
				"file":  name,
				"error": loadErr.Error(),
			})
			continue
		}
		summaries = append(summaries, Summary{
			ID:        sess.ID,
			Status:    sess.Status,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
			Total:     sess.Stats.Total,
			Completed: sess.Stats.Completed,
			Failed:    sess.Stats.Failed,
			Bytes:     sess.Stats.BytesProcessed,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Delete removes a session file
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.sessionPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session not found: %s", id)
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanupOldSessions removes terminal sessions older than MaxAge, then
// trims oldest-first past the MaxSessions cap. Active sessions are never
// removed by the count cap.
func (s *Store) CleanupOldSessions() (int, error) {
	summaries, err := s.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	var kept []Summary
	cutoff := time.Now().Add(-s.maxAge)
	for _, sum := range summaries {
		if sum.Status != models.SessionActive && sum.UpdatedAt.Before(cutoff) {
			if err := s.Delete(sum.ID); err == nil {
				removed++
				continue
			}
		}
		kept = append(kept, sum)
	}

	// kept is newest first, trim from the tail
	if len(kept) > s.maxSessions {
		for _, sum := range kept[s.maxSessions:] {
			if sum.Status == models.SessionActive {
				continue
			}
			if err := s.Delete(sum.ID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, id+sessionFileExt)
}

// validateSession checks structural integrity: the parts a resumed run
// depends on must be present and well formed
func validateSession(sess *models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("missing session id")
	}
	if sess.Status == "" {
		return fmt.Errorf("missing session status")
	}
	for i, op := range sess.Operations {
		if op == nil {
			return fmt.Errorf("operation %d is null", i)
		}
		if op.ID == "" {
			return fmt.Errorf("operation %d has no id", i)
		}
		if !op.Type.Valid() {
			return fmt.Errorf("operation %s has unknown type %q", op.ID, op.Type)
		}
	}
	return nil
}
