//go:build !linux

package fileops

import (
	"errors"
	"os"
	"time"
)

// deviceOf cannot be determined portably; cross-device detection falls
// back to the rename error path.
func deviceOf(path string) (uint64, bool) {
	return 0, false
}

// isCrossDevice reports whether a rename failed in a way that warrants the
// copy-then-delete fallback. Without device ids any link error qualifies.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr)
}

// fileTimes extracts access and modification times from a FileInfo.
// Access time is approximated by the modification time.
func fileTimes(info os.FileInfo) (atime, mtime time.Time) {
	mtime = info.ModTime()
	return mtime, mtime
}
