package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/syncwave/syncwave/pkg/ratelimit"
)

const (
	minHashBufferSize     = 4096
	defaultHashBufferSize = 256 * 1024

	// Files at or above this size get a partial hash first so clearly
	// different files are rejected without reading them in full.
	partialHashThreshold = 1 * 1024 * 1024
	partialHashSize      = 256 * 1024
)

// hashPair is a same-size file present on both sides awaiting content comparison
type hashPair struct {
	rel  string
	size int64
}

// compareContents hashes same-size pairs in parallel and returns a change
// for every pair whose content differs
func (d *Detector) compareContents(ctx context.Context, pairs []hashPair) ([]Change, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	results := make([]*Change, len(pairs))
	errs := make([]error, len(pairs))

	jobs := make(chan int, len(pairs))
	for i := range pairs {
		jobs <- i
	}
	close(jobs)

	workers := d.workers
	if workers > len(pairs) {
		workers = len(pairs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx], errs[idx] = d.comparePair(ctx, pairs[idx])
			}
		}()
	}
	wg.Wait()

	var changes []Change
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to compare %s: %w", pairs[i].rel, err)
		}
		if results[i] != nil {
			changes = append(changes, *results[i])
		}
	}
	return changes, nil
}

// comparePair hashes one source/destination pair. It returns nil when the
// contents match and a modified change when they differ.
func (d *Detector) comparePair(ctx context.Context, pair hashPair) (*Change, error) {
	rel := filepath.FromSlash(pair.rel)
	srcPath := filepath.Join(d.srcRoot, rel)
	dstPath := filepath.Join(d.dstRoot, rel)

	if pair.size >= partialHashThreshold {
		srcPartial, err := d.hashFile(ctx, srcPath, partialHashSize)
		if err != nil {
			return nil, err
		}
		dstPartial, err := d.hashFile(ctx, dstPath, partialHashSize)
		if err != nil {
			return nil, err
		}
		if srcPartial != dstPartial {
			return &Change{RelPath: pair.rel, Type: ChangeModified, Size: pair.size}, nil
		}
	}

	srcHash, err := d.hashFile(ctx, srcPath, 0)
	if err != nil {
		return nil, err
	}
	dstHash, err := d.hashFile(ctx, dstPath, 0)
	if err != nil {
		return nil, err
	}
	if srcHash != dstHash {
		return &Change{RelPath: pair.rel, Type: ChangeModified, Size: pair.size, Hash: srcHash}, nil
	}
	return nil, nil
}

// hashFile computes the hex SHA-256 digest of a file, reading at most limit
// bytes when limit is positive. Reads pass through the rate limiter when one
// is configured.
func (d *Detector) hashFile(ctx context.Context, path string, limit int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if limit > 0 {
		reader = io.LimitReader(file, limit)
	}
	reader = ratelimit.NewReader(ctx, reader, d.limiter)

	hasher := sha256.New()
	bufPtr := d.bufPool.Get().(*[]byte)
	defer d.bufPool.Put(bufPtr)
	buf := *bufPtr

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("failed to read file: %w", readErr)
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
