package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// eventRecorder collects callback invocations thread-safely.
type eventRecorder struct {
	mu       sync.Mutex
	ingested []string
	removed  []string
}

func (r *eventRecorder) ingest(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested = append(r.ingested, path)
}

func (r *eventRecorder) remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
}

func (r *eventRecorder) waitIngested(t *testing.T, want int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.ingested)
		got := append([]string(nil), r.ingested...)
		r.mu.Unlock()
		if n >= want {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d ingested files", want)
	return nil
}

func TestWatcherIngestsNewFile(t *testing.T) {
	dir := t.TempDir()
	rec := &eventRecorder{}
	w := New([]string{dir}, nil, true, rec.ingest, rec.remove, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("fresh content"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := rec.waitIngested(t, 1)
	if got[0] != path {
		t.Errorf("ingested %q, want %q", got[0], path)
	}
}

func TestWatcherIgnoresUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	rec := &eventRecorder{}
	w := New([]string{dir}, nil, true, rec.ingest, rec.remove, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "note.md"), []byte("# hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := rec.waitIngested(t, 1)
	for _, p := range got {
		if filepath.Ext(p) == ".png" {
			t.Errorf("unsupported file ingested: %s", p)
		}
	}
}

func TestWatcherRemoveCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("to be removed"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &eventRecorder{}
	w := New([]string{dir}, nil, true, rec.ingest, rec.remove, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		n := len(rec.removed)
		rec.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("remove callback never fired")
}

func TestSyncExisting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.txt"), []byte("pre-existing"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.bin"), []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &eventRecorder{}
	w := New([]string{dir}, nil, true, rec.ingest, rec.remove, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	w.SyncExisting()
	got := rec.waitIngested(t, 1)
	if len(got) != 1 || filepath.Base(got[0]) != "old.txt" {
		t.Errorf("unexpected sync result: %v", got)
	}
}

func TestExtensionFilterNarrowsWhitelist(t *testing.T) {
	w := New(nil, []string{".md"}, false, nil, nil, zap.NewNop())
	if w.matches("a.txt") {
		t.Error("filter should exclude .txt")
	}
	if !w.matches("a.md") {
		t.Error("filter should include .md")
	}
	if w.matches("a.png") {
		t.Error("unsupported format must never match")
	}
}

func TestWatcherCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not", "yet", "there")
	w := New([]string{root}, nil, true, func(string) {}, func(string) {}, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if _, err := os.Stat(root); err != nil {
		t.Errorf("root was not created: %v", err)
	}
}
