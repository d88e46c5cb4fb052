package models

import (
	"errors"
	"testing"
	"time"
)

func validOp(t OperationType) *Operation {
	op := &Operation{
		ID:        "op-1",
		Type:      t,
		CreatedAt: time.Now(),
	}
	if t.NeedsSource() {
		op.Source = "/src/a.txt"
	}
	if t.NeedsDestination() {
		op.Destination = "/dst/a.txt"
	}
	if t == OpCreate {
		op.Content = []byte("payload")
	}
	return op
}

// ============== Operation Tests ==============

func TestOperationType_Requirements(t *testing.T) {
	tests := []struct {
		typ    OperationType
		source bool
		dest   bool
	}{
		{OpCopy, true, true},
		{OpMove, true, true},
		{OpUpdate, true, true},
		{OpDelete, true, false},
		{OpCreate, false, true},
	}

	for _, tt := range tests {
		if got := tt.typ.NeedsSource(); got != tt.source {
			t.Errorf("%s.NeedsSource() = %t, want %t", tt.typ, got, tt.source)
		}
		if got := tt.typ.NeedsDestination(); got != tt.dest {
			t.Errorf("%s.NeedsDestination() = %t, want %t", tt.typ, got, tt.dest)
		}
		if !tt.typ.Valid() {
			t.Errorf("%s should be a valid type", tt.typ)
		}
	}

	if OperationType("defragment").Valid() {
		t.Error("unknown type should not be valid")
	}
}

func TestOperation_Validate(t *testing.T) {
	for _, typ := range ValidTypes {
		if err := validOp(typ).Validate(); err != nil {
			t.Errorf("valid %s operation rejected: %v", typ, err)
		}
	}

	tests := []struct {
		name   string
		mutate func(*Operation)
		field  string
	}{
		{
			name:   "missing id",
			mutate: func(op *Operation) { op.ID = "" },
			field:  "ID",
		},
		{
			name:   "unknown type",
			mutate: func(op *Operation) { op.Type = "defragment" },
			field:  "Type",
		},
		{
			name:   "copy without source",
			mutate: func(op *Operation) { op.Source = "" },
			field:  "Source",
		},
		{
			name:   "copy without destination",
			mutate: func(op *Operation) { op.Destination = "" },
			field:  "Destination",
		},
		{
			name:   "source equals destination",
			mutate: func(op *Operation) { op.Destination = op.Source },
			field:  "Destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := validOp(OpCopy)
			tt.mutate(op)

			err := op.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}

	create := validOp(OpCreate)
	create.Content = nil
	if err := create.Validate(); err == nil {
		t.Error("create without content should be rejected")
	}
}

func TestOperation_Lifecycle(t *testing.T) {
	op := validOp(OpCopy)
	if op.Terminal() {
		t.Error("fresh operation should not be terminal")
	}

	op.MarkRunning()
	if op.Status != StatusRunning || op.Attempts != 1 || op.StartedAt == nil {
		t.Errorf("after MarkRunning: status %s attempts %d", op.Status, op.Attempts)
	}

	op.MarkFailed(errors.New("disk full"))
	if op.Status != StatusFailed || op.Error != "disk full" || op.CompletedAt == nil {
		t.Errorf("after MarkFailed: status %s error %q", op.Status, op.Error)
	}
	if !op.Terminal() {
		t.Error("failed operation should be terminal")
	}

	op.ResetForRetry("resume")
	if op.Status != StatusPending {
		t.Errorf("after reset: status %s, want pending", op.Status)
	}
	if op.Attempts != 1 {
		t.Errorf("reset must preserve attempts, got %d", op.Attempts)
	}
	if op.Error != "" || op.StartedAt != nil || op.CompletedAt != nil {
		t.Error("reset should clear error and timestamps")
	}
	if op.RetryReason != "resume" {
		t.Errorf("RetryReason = %q, want resume", op.RetryReason)
	}

	op.MarkRunning()
	op.MarkCompleted()
	if op.Status != StatusCompleted || op.Attempts != 2 {
		t.Errorf("after completion: status %s attempts %d", op.Status, op.Attempts)
	}
	if op.Error != "" {
		t.Errorf("completion should clear error, got %q", op.Error)
	}
}

func TestOperation_Clone(t *testing.T) {
	op := validOp(OpCreate)
	op.MarkRunning()

	cp := op.Clone()
	cp.Content[0] = 'X'
	*cp.StartedAt = time.Time{}
	cp.Status = StatusFailed

	if op.Content[0] == 'X' {
		t.Error("clone must not share content")
	}
	if op.StartedAt.IsZero() {
		t.Error("clone must not share timestamps")
	}
	if op.Status != StatusRunning {
		t.Error("clone must not share status")
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "Source", Message: "source path is required"}
	want := "Source: source path is required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// ============== Session Tests ==============

func TestSessionStatus_Resumable(t *testing.T) {
	resumable := map[SessionStatus]bool{
		SessionActive:              true,
		SessionCancelled:           true,
		SessionCompleted:           false,
		SessionCompletedWithErrors: false,
		SessionAborted:             false,
		SessionDryRun:              false,
	}

	for status, want := range resumable {
		if got := status.Resumable(); got != want {
			t.Errorf("%s.Resumable() = %t, want %t", status, got, want)
		}
	}
}

func TestSession_PendingAndLookup(t *testing.T) {
	ops := []*Operation{validOp(OpCopy), validOp(OpDelete), validOp(OpCreate)}
	ops[0].ID, ops[1].ID, ops[2].ID = "a", "b", "c"
	ops[1].MarkRunning()
	ops[1].MarkCompleted()

	sess := &Session{ID: "s-1", Operations: ops}

	pending := sess.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending() = %d ops, want 2", len(pending))
	}
	if pending[0].ID != "a" || pending[1].ID != "c" {
		t.Errorf("pending order = %s,%s, want a,c", pending[0].ID, pending[1].ID)
	}

	if got := sess.OperationByID("b"); got != ops[1] {
		t.Error("OperationByID should find b")
	}
	if got := sess.OperationByID("nope"); got != nil {
		t.Error("OperationByID should return nil for unknown id")
	}
}

func TestSession_RecomputeStats(t *testing.T) {
	ops := []*Operation{validOp(OpCopy), validOp(OpCopy), validOp(OpCopy)}
	ops[0].MarkRunning()
	ops[0].MarkCompleted()
	ops[1].MarkRunning()
	ops[1].MarkFailed(errors.New("boom"))
	ops[1].ResetForRetry("retry after failure")
	ops[1].MarkRunning()
	ops[1].MarkFailed(errors.New("boom again"))

	sess := &Session{Operations: ops}
	if sess.StatsConsistent() {
		t.Error("zeroed stats should be inconsistent")
	}

	sess.RecomputeStats()
	if !sess.StatsConsistent() {
		t.Error("stats should be consistent after recompute")
	}
	if sess.Stats.Total != 3 || sess.Stats.Completed != 1 || sess.Stats.Failed != 1 {
		t.Errorf("stats = %+v", sess.Stats)
	}
	if sess.Stats.Retries != 1 {
		t.Errorf("Retries = %d, want 1", sess.Stats.Retries)
	}
}

// ============== Result Tests ==============

func TestExecutionResult_ExitCode(t *testing.T) {
	tests := []struct {
		name string
		res  ExecutionResult
		code int
	}{
		{"clean run", ExecutionResult{Completed: 3}, 0},
		{"failures", ExecutionResult{Completed: 2, Failed: 1}, 1},
		{"rolled back", ExecutionResult{RolledBack: true, Failed: 1}, 2},
		{"cancelled", ExecutionResult{Cancelled: true}, 130},
		{"cancelled wins over failure", ExecutionResult{Cancelled: true, Failed: 2}, 130},
	}

	for _, tt := range tests {
		if got := tt.res.ExitCode(); got != tt.code {
			t.Errorf("%s: ExitCode() = %d, want %d", tt.name, got, tt.code)
		}
	}
}

func TestExecutionResult_Success(t *testing.T) {
	ok := ExecutionResult{Completed: 5}
	if !ok.Success() {
		t.Error("clean result should be success")
	}

	for _, res := range []ExecutionResult{
		{Failed: 1},
		{Cancelled: true},
		{RolledBack: true},
	} {
		if res.Success() {
			t.Errorf("result %+v should not be success", res)
		}
	}
}
