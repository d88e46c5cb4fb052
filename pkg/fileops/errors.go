package fileops

import (
	"errors"
	"os"
	"syscall"
)

// Sentinel errors returned by the executor. Callers classify them with
// errors.Is to decide whether an operation is worth retrying.
var (
	// ErrSourceMissing means the operation's source file does not exist
	ErrSourceMissing = errors.New("source file does not exist")
	// ErrDestinationExists means a create operation found an existing destination
	ErrDestinationExists = errors.New("destination already exists")
	// ErrSamePath means source and destination resolve to the same file
	ErrSamePath = errors.New("source and destination are the same path")
	// ErrChecksumMismatch means post-copy verification found corrupted content
	ErrChecksumMismatch = errors.New("checksum mismatch after copy")
	// ErrNoRollbackData means rollback was requested without recorded rollback data
	ErrNoRollbackData = errors.New("no rollback data recorded for operation")
)

// CriticalError wraps an error that should abort the whole run, not just
// the operation that hit it.
type CriticalError struct {
	Err error
}

func (e *CriticalError) Error() string {
	return "critical: " + e.Err.Error()
}

func (e *CriticalError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether retrying the operation cannot help: the
// failure is a property of the request, not of the moment.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return os.IsNotExist(err) ||
		os.IsPermission(err) ||
		errors.Is(err, ErrSourceMissing) ||
		errors.Is(err, ErrDestinationExists) ||
		errors.Is(err, ErrSamePath)
}

// IsIntegrity reports whether the failure was a content verification error.
// Integrity failures are not retried; the staged destination has already
// been withdrawn by the time this error is returned.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrChecksumMismatch)
}

// IsCritical reports whether the failure dooms the run as a whole, for
// example a full or read-only filesystem.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	var ce *CriticalError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EROFS)
}
