package fileops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

const hashBufferSize = 256 * 1024

// hashBufferPool reuses hash buffers to reduce allocations when many files
// are verified in a row
var hashBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSize)
		return &buf
	},
}

// HashFile computes the hex SHA-256 digest of a file, checking ctx between
// chunks so verification of a large file stays cancellable.
func HashFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	bufPtr := hashBufferPool.Get().(*[]byte)
	defer hashBufferPool.Put(bufPtr)
	buf := *bufPtr

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, readErr := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("failed to read file for hashing: %w", readErr)
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
