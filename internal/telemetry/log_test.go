package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudguardai/learning/internal/persist"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	return NewLog(filepath.Join(t.TempDir(), "telemetry.json"), nil, nil)
}

func TestRecord_CapsRetainedEntries(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < 1205; i++ {
		l.Record("scan_processed", map[string]interface{}{"scan_id": i})
	}

	summary := l.GetSummary()
	if summary.TotalEvents != 1000 {
		t.Fatalf("log should retain at most 1000 entries, got %d", summary.TotalEvents)
	}

	// Oldest-first eviction: the newest entry survives.
	if summary.LastEvent == nil || summary.LastEvent.Details["scan_id"] != 1204 {
		t.Errorf("expected the newest event to survive truncation, got %+v", summary.LastEvent)
	}
}

func TestRecent(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < 80; i++ {
		l.Record("feedback_processed", map[string]interface{}{"n": i})
	}

	tests := []struct {
		name     string
		n        int
		expected int
	}{
		{"explicit count", 10, 10},
		{"default of 50", 0, 50},
		{"more than available", 200, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := l.Recent(tt.n)
			if len(events) != tt.expected {
				t.Errorf("Recent(%d) returned %d events, want %d", tt.n, len(events), tt.expected)
			}
		})
	}
}

func TestGetSummary_CountsByType(t *testing.T) {
	l := newTestLog(t)

	l.Record("scan_processed", nil)
	l.Record("scan_processed", nil)
	l.Record("drift_detected", map[string]interface{}{"psi_score": 0.3})

	summary := l.GetSummary()
	if summary.EventsByType["scan_processed"] != 2 {
		t.Errorf("expected 2 scan_processed events, got %d", summary.EventsByType["scan_processed"])
	}
	if summary.EventsByType["drift_detected"] != 1 {
		t.Errorf("expected 1 drift_detected event, got %d", summary.EventsByType["drift_detected"])
	}
	if summary.LastEvent.Type != "drift_detected" {
		t.Errorf("last event should be drift_detected, got %q", summary.LastEvent.Type)
	}
}

func TestLog_PersistedFormatRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.json")

	l := NewLog(path, nil, nil)
	l.Record("retrain_completed", map[string]interface{}{"new_rules_generated": float64(2)})

	data, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if err := persist.WriteFile(path, data); err != nil {
		t.Fatalf("writing log file: %v", err)
	}

	reloaded := NewLog(path, nil, nil)
	summary := reloaded.GetSummary()
	if summary.TotalEvents != 1 {
		t.Fatalf("expected 1 event after reload, got %d", summary.TotalEvents)
	}

	last := summary.LastEvent
	if last.Type != "retrain_completed" {
		t.Errorf("expected flattened type field to survive, got %q", last.Type)
	}
	if last.Timestamp.IsZero() {
		t.Error("timestamp should survive the round trip")
	}
	if last.Details["new_rules_generated"] != float64(2) {
		t.Errorf("detail fields should sit at the top level, got %v", last.Details)
	}
}

func TestNewLog_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.json")
	if err := os.WriteFile(path, []byte("not an array"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLog(path, nil, nil)
	if summary := l.GetSummary(); summary.TotalEvents != 0 {
		t.Errorf("corrupt file should start an empty log, got %d events", summary.TotalEvents)
	}
}

func TestNewLog_MissingFileStartsEmpty(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "never-written.json"), nil, nil)
	if summary := l.GetSummary(); summary.TotalEvents != 0 {
		t.Errorf("missing file should start an empty log, got %d events", summary.TotalEvents)
	}
}
