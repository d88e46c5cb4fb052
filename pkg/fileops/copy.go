package fileops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/ratelimit"
)

// executeCopy copies source to destination through a staged temp file.
// Serves both copy and update operations.
func (e *Executor) executeCopy(ctx context.Context, op *models.Operation, opts ExecOptions) (*Result, error) {
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

	rb := &RollbackInfo{Type: op.Type, Destination: op.Destination}

	if pathExists(op.Destination) && opts.CreateBackups {
		backupPath := op.Destination + e.opts.BackupSuffix
		if err := e.createBackup(ctx, op.Destination, backupPath); err != nil {
			return nil, fmt.Errorf("failed to back up destination: %w", err)
		}
		rb.BackupPath = backupPath
	}

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

	return res, nil
}

// executeCreate writes new content at the destination. The destination must
// not exist.
func (e *Executor) executeCreate(ctx context.Context, op *models.Operation, opts ExecOptions) (*Result, error) {
	if pathExists(op.Destination) {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, op.Destination)
	}
	if err := os.MkdirAll(filepath.Dir(op.Destination), 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	tempPath := op.Destination + e.opts.TempSuffix
	e.trackTemp(tempPath)

	if err := writeAndSync(tempPath, op.Content); err != nil {
		removeIfPresent(tempPath)
		e.untrackTemp(tempPath)
		return nil, err
	}
	if err := os.Rename(tempPath, op.Destination); err != nil {
		removeIfPresent(tempPath)
		e.untrackTemp(tempPath)
		return nil, fmt.Errorf("failed to publish %s: %w", op.Destination, err)
	}
	e.untrackTemp(tempPath)

	sum := sha256.Sum256(op.Content)
	checksum := hex.EncodeToString(sum[:])

	res := &Result{
		BytesProcessed: int64(len(op.Content)),
		Checksum:       checksum,
		Rollback:       &RollbackInfo{Type: models.OpCreate, Destination: op.Destination},
	}

	if opts.VerifyChecksums {
		destSum, err := HashFile(ctx, op.Destination)
		if err != nil {
			return nil, fmt.Errorf("failed to hash destination for verification: %w", err)
		}
		if destSum != checksum {
			removeIfPresent(op.Destination)
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, op.Destination)
		}
		res.Verified = true
	}

	return res, nil
}

// stageFile streams src into dst+tempSuffix, hashing as it writes, then
// publishes the temp file with an atomic rename. On any failure the temp
// file is removed so no partial write survives.
func (e *Executor) stageFile(ctx context.Context, src, dst string, srcInfo os.FileInfo, progress ProgressFunc) (int64, string, error) {
	tempPath := dst + e.opts.TempSuffix
	e.trackTemp(tempPath)

	published := false
	defer func() {
		if !published {
			removeIfPresent(tempPath)
			e.untrackTemp(tempPath)
		}
	}()

	srcFile, err := os.Open(src)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open source: %w", err)
	}
	defer srcFile.Close()

	tmpFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create temp file: %w", err)
	}

	reader := ratelimit.NewReader(ctx, srcFile, e.opts.Limiter)
	hasher := sha256.New()
	buf := make([]byte, e.opts.ChunkSize)

	var (
		written        int64
		lastReport     int64
		lastReportTime = time.Now()
	)
	total := srcInfo.Size()

	for {
		select {
		case <-ctx.Done():
			tmpFile.Close()
			return 0, "", ctx.Err()
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := tmpFile.Write(buf[:n]); writeErr != nil {
				tmpFile.Close()
				return 0, "", fmt.Errorf("failed to write temp file: %w", writeErr)
			}
			hasher.Write(buf[:n])
			written += int64(n)

			if progress != nil {
				if written-lastReport >= progressReportBytes ||
					time.Since(lastReportTime) >= progressReportInterval ||
					written == total {
					progress(written, total)
					lastReport = written
					lastReportTime = time.Now()
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmpFile.Close()
			return 0, "", fmt.Errorf("failed to read source: %w", readErr)
		}
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return 0, "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, dst); err != nil {
		return 0, "", fmt.Errorf("failed to publish %s: %w", dst, err)
	}
	published = true
	e.untrackTemp(tempPath)

	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// createBackup copies the current destination content aside so it survives
// an overwrite. A copy rather than a rename keeps the destination in place
// until the staged file renames over it.
func (e *Executor) createBackup(ctx context.Context, path, backupPath string) error {
	if err := copyRaw(ctx, path, backupPath); err != nil {
		return err
	}
	e.trackBackup(backupPath)
	return nil
}

// withdraw removes a published destination that failed verification and
// puts the pre-image back when one was saved
func (e *Executor) withdraw(dst, backupPath string) {
	removeIfPresent(dst)
	if backupPath != "" {
		if err := os.Rename(backupPath, dst); err == nil {
			e.untrackBackup(backupPath)
		}
	}
}

// copyRaw is a plain streaming copy used for backups and rollback restores.
// It preserves mode and mtime and never leaves a partial destination.
func copyRaw(ctx context.Context, src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	done := false
	defer func() {
		if !done {
			out.Close()
			removeIfPresent(dst)
		}
	}()

	buf := make([]byte, defaultChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write %s: %w", dst, writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", src, readErr)
		}
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	done = true

	os.Chmod(dst, srcInfo.Mode())
	os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime())
	return nil
}

// writeAndSync writes content to path and fsyncs before closing
func writeAndSync(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return nil
}

// pathExists reports whether a path exists without following symlinks
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// removeIfPresent removes a path, treating absence as success
func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
