// Package persist owns the on-disk mirrors of the learning stores. Stores
// mutate in memory and mark themselves dirty; a single writer flushes dirty
// snapshots on a cadence so ingestion never blocks on disk I/O.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Target provides a serialized snapshot of one store's persisted state.
type Target interface {
	Snapshot() ([]byte, error)
}

// Load reads the JSON file at path into v. A missing file is not an error:
// it returns (false, nil) and the caller starts from empty state.
func Load(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}

	return true, nil
}

// WriteFile atomically replaces path with data via a temp file and rename.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	return nil
}

// Writer batches store flushes. A flush runs when batchSize dirty marks
// accumulate, when interval elapses, and on Close. Failed writes are logged
// and stay dirty for the next cycle; in-memory state is never touched.
type Writer struct {
	mu      sync.Mutex
	targets map[string]Target
	dirty   map[string]bool
	marks   int

	interval  time.Duration
	batchSize int

	kick   chan struct{}
	logger *slog.Logger
}

func NewWriter(interval time.Duration, batchSize int, logger *slog.Logger) *Writer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		targets:   make(map[string]Target),
		dirty:     make(map[string]bool),
		interval:  interval,
		batchSize: batchSize,
		kick:      make(chan struct{}, 1),
		logger:    logger,
	}
}

// Register binds a store to its file. One store per path.
func (w *Writer) Register(path string, t Target) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targets[path] = t
}

// MarkDirty schedules path for the next flush. Never blocks.
func (w *Writer) MarkDirty(path string) {
	w.mu.Lock()
	w.dirty[path] = true
	w.marks++
	full := w.marks >= w.batchSize
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Run flushes on the configured cadence until ctx is cancelled, then performs
// a final flush.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Flush()
			return
		case <-ticker.C:
			w.Flush()
		case <-w.kick:
			w.Flush()
		}
	}
}

// Flush writes every dirty target. Safe to call at any time.
func (w *Writer) Flush() {
	w.mu.Lock()
	pending := make(map[string]Target, len(w.dirty))
	for path := range w.dirty {
		if t, ok := w.targets[path]; ok {
			pending[path] = t
		}
		delete(w.dirty, path)
	}
	w.marks = 0
	w.mu.Unlock()

	for path, t := range pending {
		data, err := t.Snapshot()
		if err != nil {
			w.logger.Error("snapshotting store", "path", path, "error", err)
			continue
		}
		if err := WriteFile(path, data); err != nil {
			w.logger.Error("flushing store, will retry", "path", path, "error", err)
			w.mu.Lock()
			w.dirty[path] = true
			w.mu.Unlock()
		}
	}
}
