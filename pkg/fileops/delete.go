package fileops

import (
	"context"
	"fmt"
	"os"

	"github.com/syncwave/syncwave/pkg/models"
)

// executeDelete removes a file from its visible path. The payload is kept
// as a sibling backup until Cleanup so the delete stays reversible.
// Deleting a file that is already gone succeeds as a no-op.
func (e *Executor) executeDelete(ctx context.Context, op *models.Operation) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Lstat(op.Source)
	if os.IsNotExist(err) {
		return &Result{AlreadyDeleted: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat delete target: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("delete target is a directory: %s", op.Source)
	}

	atime, mtime := fileTimes(info)

	backupPath := op.Source + e.opts.BackupSuffix
	if err := os.Rename(op.Source, backupPath); err != nil {
		return nil, fmt.Errorf("failed to stage delete of %s: %w", op.Source, err)
	}
	e.trackBackup(backupPath)

	rb := &RollbackInfo{
		Type:       models.OpDelete,
		Source:     op.Source,
		BackupPath: backupPath,
		Mode:       info.Mode(),
		ModTime:    mtime,
		AccessTime: atime,
	}
	return &Result{BytesProcessed: info.Size(), Rollback: rb}, nil
}
