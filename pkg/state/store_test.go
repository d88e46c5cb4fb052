package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/syncwave/syncwave/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func testPlan() []*models.Operation {
	return []*models.Operation{
		{ID: uuid.New().String(), Type: models.OpCopy, Source: "/src/a.txt", Destination: "/dst/a.txt", Size: 100, CreatedAt: time.Now()},
		{ID: uuid.New().String(), Type: models.OpDelete, Source: "/dst/b.txt", CreatedAt: time.Now()},
	}
}

// ============== Create / Save / Load Tests ==============

func TestStore_CreateSession(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.CreateSession(models.SessionConfig{MaxConcurrency: 2, MaxRetries: 3}, testPlan())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if sess.ID == "" {
		t.Fatal("session should have an id")
	}
	if sess.Status != models.SessionActive {
		t.Errorf("Status = %s, want %s", sess.Status, models.SessionActive)
	}
	if sess.Stats.Total != 2 {
		t.Errorf("Stats.Total = %d, want 2", sess.Stats.Total)
	}
	for _, op := range sess.Operations {
		if op.Status != models.StatusPending {
			t.Errorf("operation %s status = %s, want pending", op.ID, op.Status)
		}
	}

	// The file must exist on disk immediately
	if _, err := os.Stat(store.sessionPath(sess.ID)); err != nil {
		t.Errorf("session file should exist after create: %v", err)
	}
}

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.CreateSession(models.SessionConfig{MaxRetries: 3}, testPlan())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sess.Operations[0].MarkRunning()
	sess.Operations[0].MarkCompleted()
	sess.Stats.Completed = 1
	sess.Stats.BytesProcessed = 100
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// No temp file may survive a save
	if _, err := os.Stat(store.sessionPath(sess.ID) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after save")
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID != sess.ID {
		t.Errorf("ID = %s, want %s", loaded.ID, sess.ID)
	}
	if loaded.Operations[0].Status != models.StatusCompleted {
		t.Errorf("operation status = %s, want completed", loaded.Operations[0].Status)
	}
	if loaded.Stats.BytesProcessed != 100 {
		t.Errorf("BytesProcessed = %d, want 100", loaded.Stats.BytesProcessed)
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load("no-such-session"); err == nil {
		t.Fatal("Load of a missing session should fail")
	}
}

func TestStore_Load_CorruptedJSON(t *testing.T) {
	store := newTestStore(t)
	path := store.sessionPath("broken")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := store.Load("broken"); err == nil {
		t.Fatal("Load of corrupted JSON should fail")
	}
}

func TestStore_Load_StructuralDamage(t *testing.T) {
	store := newTestStore(t)

	sess := &models.Session{
		ID:        "damaged",
		Version:   sessionFileVersion,
		CreatedAt: time.Now(),
		Status:    models.SessionActive,
		Operations: []*models.Operation{
			{ID: "", Type: models.OpCopy, Source: "/a", Destination: "/b"},
		},
	}
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err := store.Load("damaged")
	if err == nil {
		t.Fatal("Load should reject an operation without an id")
	}
	if !strings.Contains(err.Error(), "corrupted") {
		t.Errorf("error should mention corruption, got: %v", err)
	}
}

func TestStore_Load_RecomputesDriftedStats(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.CreateSession(models.SessionConfig{MaxRetries: 3}, testPlan())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Complete one operation but leave the aggregates stale
	sess.Operations[0].MarkRunning()
	sess.Operations[0].MarkCompleted()
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1 after recompute", loaded.Stats.Completed)
	}
}

// ============== Resume Tests ==============

func TestStore_Resume(t *testing.T) {
	store := newTestStore(t)

	ops := []*models.Operation{
		{ID: "done", Type: models.OpCopy, Source: "/s/1", Destination: "/d/1", CreatedAt: time.Now()},
		{ID: "inflight", Type: models.OpCopy, Source: "/s/2", Destination: "/d/2", CreatedAt: time.Now()},
		{ID: "untouched", Type: models.OpCopy, Source: "/s/3", Destination: "/d/3", CreatedAt: time.Now()},
		{ID: "failed-retryable", Type: models.OpCopy, Source: "/s/4", Destination: "/d/4", CreatedAt: time.Now()},
	}
	sess, err := store.CreateSession(models.SessionConfig{MaxRetries: 3}, ops)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sess.OperationByID("done").MarkRunning()
	sess.OperationByID("done").MarkCompleted()
	sess.OperationByID("inflight").MarkRunning()
	failed := sess.OperationByID("failed-retryable")
	failed.MarkRunning()
	failed.MarkFailed(os.ErrDeadlineExceeded)
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := store.Resume(sess.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if info.CompletedSkipped != 1 {
		t.Errorf("CompletedSkipped = %d, want 1", info.CompletedSkipped)
	}
	if info.ResetFromRunning != 1 {
		t.Errorf("ResetFromRunning = %d, want 1", info.ResetFromRunning)
	}
	if info.ResetFromFailed != 1 {
		t.Errorf("ResetFromFailed = %d, want 1", info.ResetFromFailed)
	}
	if len(info.Pending) != 3 {
		t.Fatalf("Pending = %d, want 3", len(info.Pending))
	}

	interrupted := info.Session.OperationByID("inflight")
	if interrupted.Status != models.StatusPending {
		t.Errorf("interrupted op status = %s, want pending", interrupted.Status)
	}
	if interrupted.RetryReason != "interrupted" {
		t.Errorf("RetryReason = %q, want %q", interrupted.RetryReason, "interrupted")
	}

	// Completed work is never redone
	for _, op := range info.Pending {
		if op.ID == "done" {
			t.Error("completed operation must not be pending again")
		}
	}
}

func TestStore_Resume_TerminalSessionRefused(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.CreateSession(models.SessionConfig{MaxRetries: 3}, testPlan())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	sess.Status = models.SessionCompleted
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Resume(sess.ID); err == nil {
		t.Fatal("resuming a completed session should fail")
	}
}

func TestStore_Resume_StaleSessionRefused(t *testing.T) {
	store := newTestStore(t)

	// Write the file directly so UpdatedAt stays old
	sess := &models.Session{
		ID:        "stale",
		Version:   sessionFileVersion,
		CreatedAt: time.Now().Add(-30 * 24 * time.Hour),
		UpdatedAt: time.Now().Add(-30 * 24 * time.Hour),
		Status:    models.SessionActive,
		Config:    models.SessionConfig{MaxRetries: 3},
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(store.sessionPath("stale"), data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := store.Resume("stale"); err == nil {
		t.Fatal("resuming a stale session should fail")
	}
}

// ============== List / Cleanup Tests ==============

func TestStore_List(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateSession(models.SessionConfig{}, testPlan())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := store.CreateSession(models.SessionConfig{}, testPlan())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	// CreatedAt can tie at coarse clock resolution, force an order
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	if err := store.Save(second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Junk in the directory is skipped
	if err := os.WriteFile(filepath.Join(store.Dir(), "junk.json"), []byte("nope"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	summaries, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(summaries))
	}
	if summaries[0].ID != second.ID {
		t.Error("List should order newest first")
	}
}

func TestStore_CleanupOldSessions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir, MaxAge: time.Hour, MaxSessions: 10})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	writeSession := func(id string, status models.SessionStatus, age time.Duration) {
		sess := &models.Session{
			ID:        id,
			Version:   sessionFileVersion,
			CreatedAt: time.Now().Add(-age),
			UpdatedAt: time.Now().Add(-age),
			Status:    status,
		}
		data, marshalErr := json.MarshalIndent(sess, "", "  ")
		if marshalErr != nil {
			t.Fatalf("Marshal failed: %v", marshalErr)
		}
		if writeErr := os.WriteFile(store.sessionPath(id), data, 0644); writeErr != nil {
			t.Fatalf("WriteFile failed: %v", writeErr)
		}
	}

	writeSession("old-done", models.SessionCompleted, 2*time.Hour)
	writeSession("old-active", models.SessionActive, 2*time.Hour)
	writeSession("fresh-done", models.SessionCompleted, time.Minute)

	removed, err := store.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.Load("old-done"); err == nil {
		t.Error("old terminal session should be removed")
	}
	if _, err := store.Load("old-active"); err != nil {
		t.Error("old active session must survive cleanup")
	}
	if _, err := store.Load("fresh-done"); err != nil {
		t.Error("fresh session must survive cleanup")
	}
}

func TestStore_CleanupTrimsByCount(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir, MaxAge: DefaultMaxAge, MaxSessions: 2})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	base := time.Now()
	for i, id := range []string{"s1", "s2", "s3", "s4"} {
		sess := &models.Session{
			ID:        id,
			Version:   sessionFileVersion,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
			Status:    models.SessionCompleted,
		}
		data, marshalErr := json.MarshalIndent(sess, "", "  ")
		if marshalErr != nil {
			t.Fatalf("Marshal failed: %v", marshalErr)
		}
		if writeErr := os.WriteFile(store.sessionPath(id), data, 0644); writeErr != nil {
			t.Fatalf("WriteFile failed: %v", writeErr)
		}
	}

	removed, err := store.CleanupOldSessions()
	if err != nil {
		t.Fatalf("CleanupOldSessions failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	summaries, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("kept %d sessions, want 2", len(summaries))
	}
	// The newest two survive
	if summaries[0].ID != "s4" || summaries[1].ID != "s3" {
		t.Errorf("kept %s, %s; want s4, s3", summaries[0].ID, summaries[1].ID)
	}
}

func TestStore_Delete_NotFound(t *testing.T) {
	store := newTestStore(t)
	if err := store.Delete("ghost"); err == nil {
		t.Fatal("deleting a missing session should fail")
	}
}
