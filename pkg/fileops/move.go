package fileops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syncwave/syncwave/pkg/models"
)

// executeMove relocates source to destination. On the same volume this is a
// single rename; across volumes it degrades to copy-verify-delete.
func (e *Executor) executeMove(ctx context.Context, op *models.Operation, opts ExecOptions) (*Result, error) {
	srcInfo, err := os.Stat(op.Source)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, op.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	if srcInfo.IsDir() {
		return nil, fmt.Errorf("source is a directory: %s", op.Source)
	}

	if err := os.MkdirAll(filepath.Dir(op.Destination), 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	rb := &RollbackInfo{Type: models.OpMove, Source: op.Source, Destination: op.Destination}

	if pathExists(op.Destination) && opts.CreateBackups {
		backupPath := op.Destination + e.opts.BackupSuffix
		if err := e.createBackup(ctx, op.Destination, backupPath); err != nil {
			return nil, fmt.Errorf("failed to back up destination: %w", err)
		}
		rb.BackupPath = backupPath
	}

	renameErr := os.Rename(op.Source, op.Destination)
	if renameErr == nil {
		// Same inode, nothing was re-read, so there is no checksum to verify
		rb.Method = MoveRename
		return &Result{BytesProcessed: srcInfo.Size(), Rollback: rb}, nil
	}
	if !isCrossDevice(renameErr) {
		return nil, fmt.Errorf("failed to move %s: %w", op.Source, renameErr)
	}

	// Cross-device fallback: stage a copy at the destination, verify when
	// asked, and only then drop the source
	written, checksum, err := e.stageFile(ctx, op.Source, op.Destination, srcInfo, opts.Progress)
	if err != nil {
		return nil, err
	}

	if e.opts.PreserveMetadata {
		os.Chmod(op.Destination, srcInfo.Mode())
		os.Chtimes(op.Destination, srcInfo.ModTime(), srcInfo.ModTime())
	}

	res := &Result{BytesProcessed: written, Checksum: checksum, Rollback: rb}

	if opts.VerifyChecksums {
		destSum, hashErr := HashFile(ctx, op.Destination)
		if hashErr != nil {
			return nil, fmt.Errorf("failed to hash destination for verification: %w", hashErr)
		}
		if destSum != checksum {
			e.withdraw(op.Destination, rb.BackupPath)
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, op.Destination)
		}
		res.Verified = true
	}

	if err := os.Remove(op.Source); err != nil {
		// Source removal failed, so withdraw the published copy and report
		// the move as never having happened
		e.withdraw(op.Destination, rb.BackupPath)
		return nil, fmt.Errorf("failed to remove source after copy: %w", err)
	}

	rb.Method = MoveCopy
	return res, nil
}
