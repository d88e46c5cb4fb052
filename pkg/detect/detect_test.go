package detect

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/syncwave/syncwave/pkg/models"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
}

func newTestDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	det, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return det
}

func changeByPath(changes []Change, rel string) (Change, bool) {
	for _, ch := range changes {
		if ch.RelPath == rel {
			return ch, true
		}
	}
	return Change{}, false
}

// ============== Detection Tests ==============

func TestDetector_Detect_NewModifiedDeleted(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	writeTree(t, src, map[string]string{
		"a.txt":     "alpha",
		"b.txt":     "bravo",
		"c.txt":     "charlie1",
		"d.txt":     "delta-long",
		"sub/e.txt": "echo",
	})
	writeTree(t, dst, map[string]string{
		"b.txt":     "bravo",
		"c.txt":     "charlie2",
		"d.txt":     "delta",
		"stale.txt": "old",
	})

	det := newTestDetector(t, Config{SourceRoot: src, DestinationRoot: dst, Workers: 2})
	changes, err := det.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(changes) != 4 {
		t.Fatalf("got %d changes, want 4: %+v", len(changes), changes)
	}

	// b.txt is identical on both sides and must not appear.
	if _, ok := changeByPath(changes, "b.txt"); ok {
		t.Error("identical file b.txt reported as changed")
	}

	ch, ok := changeByPath(changes, "a.txt")
	if !ok || ch.Type != ChangeNew {
		t.Errorf("a.txt = %+v, want new", ch)
	}
	if ch.Size != int64(len("alpha")) {
		t.Errorf("a.txt size = %d, want %d", ch.Size, len("alpha"))
	}

	// Same size, different content: detected through the full hash.
	ch, ok = changeByPath(changes, "c.txt")
	if !ok || ch.Type != ChangeModified {
		t.Errorf("c.txt = %+v, want modified", ch)
	}
	if ch.Hash == "" {
		t.Error("c.txt should carry the source hash that decided the comparison")
	}

	// Different size: decided without hashing.
	ch, ok = changeByPath(changes, "d.txt")
	if !ok || ch.Type != ChangeModified {
		t.Errorf("d.txt = %+v, want modified", ch)
	}
	if ch.Hash != "" {
		t.Errorf("d.txt hash = %q, want empty for size mismatch", ch.Hash)
	}

	ch, ok = changeByPath(changes, "stale.txt")
	if !ok || ch.Type != ChangeDeleted {
		t.Errorf("stale.txt = %+v, want deleted", ch)
	}

	if _, ok := changeByPath(changes, "sub/e.txt"); !ok {
		t.Error("nested file sub/e.txt not detected as new")
	}

	for i := 1; i < len(changes); i++ {
		if changes[i-1].RelPath >= changes[i].RelPath {
			t.Errorf("changes not sorted: %q before %q", changes[i-1].RelPath, changes[i].RelPath)
		}
	}
}

func TestDetector_Detect_MissingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTree(t, src, map[string]string{"a.txt": "alpha", "b/c.txt": "charlie"})

	det := newTestDetector(t, Config{SourceRoot: src, DestinationRoot: filepath.Join(dir, "missing")})
	changes, err := det.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	for _, ch := range changes {
		if ch.Type != ChangeNew {
			t.Errorf("%s = %s, want new against a missing destination", ch.RelPath, ch.Type)
		}
	}
}

func TestDetector_Detect_Empty(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	for _, p := range []string{src, dst} {
		if err := os.MkdirAll(p, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
	}

	det := newTestDetector(t, Config{SourceRoot: src, DestinationRoot: dst})
	changes, err := det.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("got %d changes for empty trees, want 0", len(changes))
	}
}

func TestDetector_Detect_MtimeIgnored(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, src, map[string]string{"a.txt": "same"})
	writeTree(t, dst, map[string]string{"a.txt": "same"})

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(dst, "a.txt"), old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	det := newTestDetector(t, Config{SourceRoot: src, DestinationRoot: dst})
	changes, err := det.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("mtime difference produced %d changes, want 0", len(changes))
	}
}

func TestDetector_Detect_Excludes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	writeTree(t, src, map[string]string{
		"keep.txt":              "keep",
		"scratch.tmp":           "tmp",
		".git/config":           "git",
		"sub/.git/HEAD":         "git",
		"build/out.bin":         "bin",
		"node_modules/pkg.js":   "js",
		"sub/node_modules/x.js": "js",
	})
	writeTree(t, dst, map[string]string{
		"logs/app.log": "log",
	})

	det := newTestDetector(t, Config{
		SourceRoot:      src,
		DestinationRoot: dst,
		Exclude:         []string{"*.tmp", ".git/", "build/**", "node_modules", "logs/"},
	})
	changes, err := det.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(changes) != 1 {
		t.Fatalf("got %d changes, want only keep.txt: %+v", len(changes), changes)
	}
	if changes[0].RelPath != "keep.txt" || changes[0].Type != ChangeNew {
		t.Errorf("unexpected change %+v", changes[0])
	}
}

func TestDetector_Detect_PartialHashShortCircuit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	size := partialHashThreshold + 1
	srcData := bytes.Repeat([]byte{'a'}, size)
	dstData := bytes.Repeat([]byte{'a'}, size)
	dstData[0] = 'b'

	writeTree(t, src, map[string]string{"big.bin": string(srcData)})
	writeTree(t, dst, map[string]string{"big.bin": string(dstData)})

	det := newTestDetector(t, Config{SourceRoot: src, DestinationRoot: dst})
	changes, err := det.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(changes) != 1 || changes[0].Type != ChangeModified {
		t.Fatalf("got %+v, want one modified change", changes)
	}
	// The partial hash decided the comparison, no full hash was computed.
	if changes[0].Hash != "" {
		t.Errorf("hash = %q, want empty after partial hash rejection", changes[0].Hash)
	}
}

func TestDetector_Detect_Cancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTree(t, src, map[string]string{"a.txt": "alpha"})

	det := newTestDetector(t, Config{SourceRoot: src, DestinationRoot: filepath.Join(dir, "dst")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := det.Detect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Detect with cancelled context = %v, want context.Canceled", err)
	}
}

// ============== Validation Tests ==============

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTree(t, src, map[string]string{"a.txt": "alpha"})
	filePath := filepath.Join(src, "a.txt")

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing source", Config{SourceRoot: filepath.Join(dir, "nope"), DestinationRoot: dir}},
		{"source is a file", Config{SourceRoot: filePath, DestinationRoot: dir}},
		{"destination is a file", Config{SourceRoot: src, DestinationRoot: filePath}},
		{"bad exclude pattern", Config{SourceRoot: src, DestinationRoot: dir, Exclude: []string{"[unclosed"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New should have failed")
			}
		})
	}
}

// ============== Plan Building Tests ==============

func TestBuildPlan(t *testing.T) {
	srcRoot := filepath.Join("/tmp", "src")
	dstRoot := filepath.Join("/tmp", "dst")

	changes := []Change{
		{RelPath: "old.txt", Type: ChangeDeleted, Size: 3},
		{RelPath: "fresh.txt", Type: ChangeNew, Size: 5},
		{RelPath: "sub/changed.txt", Type: ChangeModified, Size: 7},
	}

	ops := BuildPlan(changes, srcRoot, dstRoot)
	if len(ops) != 3 {
		t.Fatalf("got %d operations, want 3", len(ops))
	}

	// Deletions run after every additive operation.
	if ops[2].Type != models.OpDelete {
		t.Errorf("last operation = %s, want delete", ops[2].Type)
	}

	if ops[0].Type != models.OpCopy {
		t.Errorf("ops[0].Type = %s, want copy", ops[0].Type)
	}
	if ops[0].Source != filepath.Join(srcRoot, "fresh.txt") {
		t.Errorf("copy source = %s", ops[0].Source)
	}
	if ops[0].Destination != filepath.Join(dstRoot, "fresh.txt") {
		t.Errorf("copy destination = %s", ops[0].Destination)
	}
	if ops[0].Size != 5 {
		t.Errorf("copy size = %d, want 5", ops[0].Size)
	}

	if ops[1].Type != models.OpUpdate {
		t.Errorf("ops[1].Type = %s, want update", ops[1].Type)
	}
	if ops[1].Source != filepath.Join(srcRoot, "sub", "changed.txt") {
		t.Errorf("update source = %s", ops[1].Source)
	}

	if ops[2].Source != filepath.Join(dstRoot, "old.txt") {
		t.Errorf("delete source = %s, want destination-side path", ops[2].Source)
	}

	for i, op := range ops {
		if op.ID == "" {
			t.Errorf("ops[%d] has no id", i)
		}
		if op.Status != models.StatusPending {
			t.Errorf("ops[%d].Status = %s, want pending", i, op.Status)
		}
		if err := op.Validate(); err != nil {
			t.Errorf("ops[%d] invalid: %v", i, err)
		}
	}
}
