package detect

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/ratelimit"
)

// ChangeType classifies how a file differs between source and destination
type ChangeType string

const (
	// ChangeNew indicates the file exists only in the source
	ChangeNew ChangeType = "new"
	// ChangeModified indicates the file exists on both sides with different content
	ChangeModified ChangeType = "modified"
	// ChangeDeleted indicates the file exists only in the destination
	ChangeDeleted ChangeType = "deleted"
)

// Change describes a single difference between the source and destination trees
type Change struct {
	// RelPath is the slash-separated path relative to the tree root
	RelPath string `json:"rel_path"`

	// Type classifies the difference
	Type ChangeType `json:"type"`

	// Size is the source file size, or the destination size for deletions
	Size int64 `json:"size"`

	// Hash is the source SHA-256 digest, set only when a full hash was
	// computed to decide the comparison
	Hash string `json:"hash,omitempty"`
}

// Config configures a Detector
type Config struct {
	// SourceRoot is the directory to read from. It must exist.
	SourceRoot string

	// DestinationRoot is the directory to mirror into. A missing
	// destination is treated as an empty tree.
	DestinationRoot string

	// Exclude holds doublestar patterns matched against slash-separated
	// relative paths. Patterns without a separator also match basenames.
	Exclude []string

	// Workers bounds parallel content hashing (default: NumCPU, capped at 8)
	Workers int

	// BufferSize is the hash read buffer size in bytes (default 256KB)
	BufferSize int

	// Limiter optionally throttles hash reads. Nil means unlimited.
	Limiter *ratelimit.Limiter
}

// Detector compares a source tree against a destination tree
type Detector struct {
	srcRoot string
	dstRoot string
	exclude []string
	workers int
	bufPool *sync.Pool
	limiter *ratelimit.Limiter
}

// New creates a Detector after validating both roots and all exclude patterns
func New(cfg Config) (*Detector, error) {
	srcRoot, err := filepath.Abs(cfg.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}
	dstRoot, err := filepath.Abs(cfg.DestinationRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination path: %w", err)
	}

	info, err := os.Stat(srcRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to access source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", srcRoot)
	}

	// The destination may not exist yet, the first sync creates it.
	if info, err := os.Stat(dstRoot); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("destination path is not a directory: %s", dstRoot)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to access destination: %w", err)
	}

	for _, pattern := range cfg.Exclude {
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", pattern)
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultHashBufferSize
	} else if bufferSize < minHashBufferSize {
		bufferSize = minHashBufferSize
	}

	return &Detector{
		srcRoot: srcRoot,
		dstRoot: dstRoot,
		exclude: cfg.Exclude,
		workers: workers,
		limiter: cfg.Limiter,
		bufPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
	}, nil
}

// SourceRoot returns the resolved source directory
func (d *Detector) SourceRoot() string {
	return d.srcRoot
}

// DestinationRoot returns the resolved destination directory
func (d *Detector) DestinationRoot() string {
	return d.dstRoot
}

// Detect walks both trees and returns the differences sorted by relative
// path. Files present on both sides are compared by size first and by
// content hash when sizes match. Modification times are never consulted.
func (d *Detector) Detect(ctx context.Context) ([]Change, error) {
	// A missing destination reads as an empty tree. A missing source is
	// an error, it would otherwise plan a full destination delete.
	srcFiles, err := d.scan(ctx, d.srcRoot, false)
	if err != nil {
		return nil, fmt.Errorf("failed to scan source tree: %w", err)
	}
	dstFiles, err := d.scan(ctx, d.dstRoot, true)
	if err != nil {
		return nil, fmt.Errorf("failed to scan destination tree: %w", err)
	}

	var changes []Change
	var pairs []hashPair

	for rel, srcSize := range srcFiles {
		dstSize, ok := dstFiles[rel]
		switch {
		case !ok:
			changes = append(changes, Change{RelPath: rel, Type: ChangeNew, Size: srcSize})
		case srcSize != dstSize:
			changes = append(changes, Change{RelPath: rel, Type: ChangeModified, Size: srcSize})
		default:
			pairs = append(pairs, hashPair{rel: rel, size: srcSize})
		}
	}
	for rel, dstSize := range dstFiles {
		if _, ok := srcFiles[rel]; !ok {
			changes = append(changes, Change{RelPath: rel, Type: ChangeDeleted, Size: dstSize})
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].rel < pairs[j].rel })

	hashed, err := d.compareContents(ctx, pairs)
	if err != nil {
		return nil, err
	}
	changes = append(changes, hashed...)

	sort.Slice(changes, func(i, j int) bool { return changes[i].RelPath < changes[j].RelPath })
	return changes, nil
}

// scan collects regular files under root keyed by slash-separated relative
// path. Excluded directories are skipped whole.
func (d *Detector) scan(ctx context.Context, root string, missingOK bool) (map[string]int64, error) {
	files := make(map[string]int64)

	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == root && missingOK && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		slashed := filepath.ToSlash(rel)

		if entry.IsDir() {
			if d.excluded(slashed) {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if d.excluded(slashed) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		files[slashed] = info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// excluded reports whether a slash-separated relative path matches any
// exclude pattern. Patterns ending in "/" match the directory and its
// contents, patterns without a separator also match the basename alone.
func (d *Detector) excluded(slashed string) bool {
	if len(d.exclude) == 0 {
		return false
	}
	base := path.Base(slashed)

	for _, pattern := range d.exclude {
		if pattern == "" {
			continue
		}
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")

		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}

// BuildPlan converts detected changes into executable operations. New files
// become copies, modified files become updates and deletions are ordered
// after every additive operation.
func BuildPlan(changes []Change, srcRoot, dstRoot string) []*models.Operation {
	ops := make([]*models.Operation, 0, len(changes))
	var deletes []*models.Operation
	now := time.Now()

	for _, ch := range changes {
		rel := filepath.FromSlash(ch.RelPath)

		switch ch.Type {
		case ChangeNew:
			ops = append(ops, &models.Operation{
				ID:          uuid.New().String(),
				Type:        models.OpCopy,
				Source:      filepath.Join(srcRoot, rel),
				Destination: filepath.Join(dstRoot, rel),
				Size:        ch.Size,
				Status:      models.StatusPending,
				CreatedAt:   now,
			})
		case ChangeModified:
			ops = append(ops, &models.Operation{
				ID:          uuid.New().String(),
				Type:        models.OpUpdate,
				Source:      filepath.Join(srcRoot, rel),
				Destination: filepath.Join(dstRoot, rel),
				Size:        ch.Size,
				Status:      models.StatusPending,
				CreatedAt:   now,
			})
		case ChangeDeleted:
			deletes = append(deletes, &models.Operation{
				ID:        uuid.New().String(),
				Type:      models.OpDelete,
				Source:    filepath.Join(dstRoot, rel),
				Size:      ch.Size,
				Status:    models.StatusPending,
				CreatedAt: now,
			})
		}
	}

	return append(ops, deletes...)
}
