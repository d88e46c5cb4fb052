package fileops

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/syncwave/syncwave/pkg/models"
)

// MoveMethod records how a move was carried out, which decides how it is
// undone
type MoveMethod string

const (
	// MoveRename means a single same-volume rename
	MoveRename MoveMethod = "rename"
	// MoveCopy means the cross-device copy-then-delete fallback
	MoveCopy MoveMethod = "copy"
)

// RollbackInfo captures what an operation changed, shaped by its type:
// copy/update record the destination and optional pre-image backup, move
// adds the method used, delete records the backup holding the payload plus
// the original file metadata, create records only the destination.
type RollbackInfo struct {
	Type        models.OperationType `json:"type"`
	Source      string               `json:"source,omitempty"`
	Destination string               `json:"destination,omitempty"`
	BackupPath  string               `json:"backup_path,omitempty"`
	Method      MoveMethod           `json:"method,omitempty"`
	Mode        os.FileMode          `json:"mode,omitempty"`
	ModTime     time.Time            `json:"mod_time"`
	AccessTime  time.Time            `json:"access_time"`
}

// RollbackOperation undoes a completed operation using its recorded
// rollback data, restoring the state that existed before it ran.
func (e *Executor) RollbackOperation(ctx context.Context, op *models.Operation, info *RollbackInfo) error {
	if info == nil {
		return fmt.Errorf("%w: %s", ErrNoRollbackData, op.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch info.Type {
	case models.OpCopy, models.OpUpdate:
		return e.rollbackCopy(info)
	case models.OpMove:
		return e.rollbackMove(ctx, info)
	case models.OpDelete:
		return e.rollbackDelete(info)
	case models.OpCreate:
		return removeIfPresent(info.Destination)
	default:
		return fmt.Errorf("cannot roll back operation type: %s", info.Type)
	}
}

// rollbackCopy removes the copied destination. When the copy overwrote an
// existing file its backup is moved back into place.
func (e *Executor) rollbackCopy(info *RollbackInfo) error {
	if info.BackupPath != "" {
		if err := os.Rename(info.BackupPath, info.Destination); err != nil {
			return fmt.Errorf("failed to restore backup to %s: %w", info.Destination, err)
		}
		e.untrackBackup(info.BackupPath)
		return nil
	}
	if err := removeIfPresent(info.Destination); err != nil {
		return fmt.Errorf("failed to remove %s: %w", info.Destination, err)
	}
	return nil
}

// rollbackMove puts the payload back at the source and restores or removes
// the destination depending on what the move displaced
func (e *Executor) rollbackMove(ctx context.Context, info *RollbackInfo) error {
	switch info.Method {
	case MoveRename:
		if err := os.Rename(info.Destination, info.Source); err != nil {
			return fmt.Errorf("failed to move %s back to %s: %w", info.Destination, info.Source, err)
		}
	case MoveCopy:
		// The source side is on another volume, copy the payload back
		// before dropping the destination
		if err := copyRaw(ctx, info.Destination, info.Source); err != nil {
			return fmt.Errorf("failed to restore %s: %w", info.Source, err)
		}
		if err := removeIfPresent(info.Destination); err != nil {
			return fmt.Errorf("failed to remove %s: %w", info.Destination, err)
		}
	default:
		return fmt.Errorf("unknown move method: %q", info.Method)
	}

	if info.BackupPath != "" {
		if err := os.Rename(info.BackupPath, info.Destination); err != nil {
			return fmt.Errorf("failed to restore backup to %s: %w", info.Destination, err)
		}
		e.untrackBackup(info.BackupPath)
	}
	return nil
}

// rollbackDelete brings the file back from its backup and reapplies the
// captured metadata
func (e *Executor) rollbackDelete(info *RollbackInfo) error {
	if info.BackupPath == "" {
		return fmt.Errorf("%w: delete of %s", ErrNoRollbackData, info.Source)
	}
	if err := os.Rename(info.BackupPath, info.Source); err != nil {
		return fmt.Errorf("failed to restore %s: %w", info.Source, err)
	}
	e.untrackBackup(info.BackupPath)

	if info.Mode != 0 {
		os.Chmod(info.Source, info.Mode)
	}
	if !info.ModTime.IsZero() {
		os.Chtimes(info.Source, info.AccessTime, info.ModTime)
	}
	return nil
}
