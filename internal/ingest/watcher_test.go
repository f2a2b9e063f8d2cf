package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const validScript = `{"name": "bedtime", "sections": [{"name": "intro", "clauses": [["Hello there."]]}]}`

type enqueueRecorder struct {
	mu    sync.Mutex
	calls [][2]string
	ch    chan struct{}
}

func newEnqueueRecorder() *enqueueRecorder {
	return &enqueueRecorder{ch: make(chan struct{}, 16)}
}

func (r *enqueueRecorder) enqueue(name, path string) error {
	r.mu.Lock()
	r.calls = append(r.calls, [2]string{name, path})
	r.mu.Unlock()
	r.ch <- struct{}{}
	return nil
}

func (r *enqueueRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for enqueue")
	}
}

func startWatcher(t *testing.T, dir string, enqueue EnqueueFunc) *ScriptWatcher {
	t.Helper()
	sw := NewScriptWatcher(dir, enqueue, zerolog.Nop())
	sw.debounce = 20 * time.Millisecond
	if err := sw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(sw.Stop)
	return sw
}

func TestScriptWatcherQueuesChangedScript(t *testing.T) {
	dir := t.TempDir()
	rec := newEnqueueRecorder()
	sw := startWatcher(t, dir, rec.enqueue)

	if got := sw.Status().Status; got != "watching" {
		t.Errorf("Status = %q, want watching", got)
	}

	path := filepath.Join(dir, "bedtime.json")
	if err := os.WriteFile(path, []byte(validScript), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 1 {
		t.Fatalf("enqueued %d times, want 1 (debounced)", len(rec.calls))
	}
	if rec.calls[0] != [2]string{"bedtime", path} {
		t.Errorf("enqueue(%q, %q)", rec.calls[0][0], rec.calls[0][1])
	}
	if sw.Status().FilesQueued != 1 {
		t.Errorf("FilesQueued = %d", sw.Status().FilesQueued)
	}
}

func TestScriptWatcherSkips(t *testing.T) {
	dir := t.TempDir()
	rec := newEnqueueRecorder()
	sw := startWatcher(t, dir, rec.enqueue)

	// Not a script file: ignored without counting.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Invalid script: counted as skipped.
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"sections": []}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sw.Status().FilesSkipped == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sw.Status().FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", sw.Status().FilesSkipped)
	}
	if sw.Status().FilesQueued != 0 {
		t.Errorf("FilesQueued = %d, want 0", sw.Status().FilesQueued)
	}
}

func TestScriptWatcherNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	rec := newEnqueueRecorder()
	startWatcher(t, dir, rec.enqueue)

	sub := filepath.Join(dir, "series")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watch loop a moment to add the new directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "bedtime.json"), []byte(validScript), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)
}

func TestScriptWatcherMissingDir(t *testing.T) {
	sw := NewScriptWatcher(filepath.Join(t.TempDir(), "missing"), func(string, string) error { return nil }, zerolog.Nop())
	if err := sw.Start(); err == nil {
		sw.Stop()
		t.Fatal("expected error for missing directory")
	}
}

func TestEventBusReportsWatcher(t *testing.T) {
	eb := NewEventBus(1)
	sw := NewScriptWatcher("/scripts", nil, zerolog.Nop())
	eb.SetWatcher(sw)
	st := eb.WatcherStatus()
	if st == nil || st.WatchDir != "/scripts" || st.Status != "starting" {
		t.Errorf("WatcherStatus = %+v", st)
	}
}
