package persist

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeTarget struct {
	mu    sync.Mutex
	state map[string]int
}

func (f *fakeTarget) Snapshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return json.Marshal(f.state)
}

func (f *fakeTarget) set(k string, v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[k] = v
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		var v map[string]int
		found, err := Load(filepath.Join(dir, "absent.json"), &v)
		if err != nil {
			t.Fatalf("missing file should not error: %v", err)
		}
		if found {
			t.Error("missing file should report not found")
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.json")
		if err := os.WriteFile(path, []byte("{{"), 0o644); err != nil {
			t.Fatal(err)
		}

		var v map[string]int
		if _, err := Load(path, &v); err == nil {
			t.Error("corrupt file should surface a parse error")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(dir, "state.json")
		if err := WriteFile(path, []byte(`{"a":1}`)); err != nil {
			t.Fatal(err)
		}

		var v map[string]int
		found, err := Load(path, &v)
		if err != nil || !found {
			t.Fatalf("expected found state, got found=%v err=%v", found, err)
		}
		if v["a"] != 1 {
			t.Errorf("unexpected state %v", v)
		}
	})
}

func TestWriteFile_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")

	if err := WriteFile(path, []byte("[]")); err != nil {
		t.Fatalf("WriteFile should create parent directories: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestWriter_FlushWritesDirtyTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	w := NewWriter(time.Hour, 100, nil)
	target := &fakeTarget{state: map[string]int{"hits": 1}}
	w.Register(path, target)

	// Nothing dirty yet: no file.
	w.Flush()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("flush without dirty marks should not write")
	}

	w.MarkDirty(path)
	w.Flush()

	var state map[string]int
	found, err := Load(path, &state)
	if err != nil || !found {
		t.Fatalf("expected flushed state on disk, found=%v err=%v", found, err)
	}
	if state["hits"] != 1 {
		t.Errorf("unexpected flushed state %v", state)
	}
}

func TestWriter_FlushIsCoalesced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	w := NewWriter(time.Hour, 100, nil)
	target := &fakeTarget{state: map[string]int{}}
	w.Register(path, target)

	for i := 0; i < 10; i++ {
		target.set("hits", i)
		w.MarkDirty(path)
	}
	w.Flush()

	var state map[string]int
	if _, err := Load(path, &state); err != nil {
		t.Fatal(err)
	}
	if state["hits"] != 9 {
		t.Errorf("flush should write the latest snapshot once, got %v", state)
	}
}

func TestWriter_FailedWriteKeepsStateDirty(t *testing.T) {
	dir := t.TempDir()

	// A path whose parent is a regular file cannot be created.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	badPath := filepath.Join(blocker, "store.json")

	w := NewWriter(time.Hour, 100, nil)
	target := &fakeTarget{state: map[string]int{"hits": 1}}
	w.Register(badPath, target)

	w.MarkDirty(badPath)
	w.Flush()

	// In-memory state is untouched and the target stays scheduled.
	w.mu.Lock()
	dirty := w.dirty[badPath]
	w.mu.Unlock()
	if !dirty {
		t.Error("failed write should keep the target dirty for retry")
	}

	data, err := target.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"hits":1}` {
		t.Errorf("in-memory state must survive a failed flush, got %s", data)
	}
}

func TestWriter_RunFinalFlushOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	w := NewWriter(time.Hour, 100, nil)
	w.Register(path, &fakeTarget{state: map[string]int{"hits": 3}})
	w.MarkDirty(path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	<-done

	if _, err := os.Stat(path); err != nil {
		t.Errorf("cancellation should trigger a final flush: %v", err)
	}
}
