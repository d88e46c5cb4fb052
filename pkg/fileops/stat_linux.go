//go:build linux

package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// deviceOf returns the device id of the path, or of its nearest existing
// ancestor when the path does not exist yet. The second return is false
// when no device id could be determined.
func deviceOf(path string) (uint64, bool) {
	for p := path; ; {
		info, err := os.Stat(p)
		if err == nil {
			if st, ok := info.Sys().(*syscall.Stat_t); ok {
				return uint64(st.Dev), true
			}
			return 0, false
		}
		parent := filepath.Dir(p)
		if parent == p {
			return 0, false
		}
		p = parent
	}
}

// isCrossDevice reports whether a rename failed because source and
// destination are on different filesystems
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// fileTimes extracts access and modification times from a FileInfo
func fileTimes(info os.FileInfo) (atime, mtime time.Time) {
	mtime = info.ModTime()
	atime = mtime
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	}
	return atime, mtime
}
