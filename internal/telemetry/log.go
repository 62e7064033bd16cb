// Package telemetry keeps a bounded, persisted audit trail of learning
// decisions: drift hits, processed feedback, retrain completions.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudguardai/learning/internal/persist"
)

// maxEntries caps the log; the oldest entries are evicted on every append.
const maxEntries = 1000

// defaultRecent is how many entries Recent returns when n is not positive.
const defaultRecent = 50

// Event is one audit entry. On disk it is a flat object: type and
// timestamp alongside the detail fields.
type Event struct {
	Type      string
	Timestamp time.Time
	Details   map[string]interface{}
}

func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(e.Details)+2)
	for k, v := range e.Details {
		flat[k] = v
	}
	flat["type"] = e.Type
	flat["timestamp"] = e.Timestamp.Format(time.RFC3339)
	return json.Marshal(flat)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	if v, ok := flat["type"].(string); ok {
		e.Type = v
	}
	if v, ok := flat["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			e.Timestamp = ts
		}
	}
	delete(flat, "type")
	delete(flat, "timestamp")
	e.Details = flat
	return nil
}

// Summary aggregates the retained log.
type Summary struct {
	TotalEvents  int            `json:"total_events"`
	EventsByType map[string]int `json:"events_by_type"`
	LastEvent    *Event         `json:"last_event,omitempty"`
}

// Log is the bounded persisted event stream.
type Log struct {
	mu     sync.RWMutex
	path   string
	events []Event
	writer *persist.Writer
	logger *slog.Logger
}

// NewLog loads the persisted event array. Missing or corrupt files start an
// empty log; corruption is logged, never fatal.
func NewLog(path string, writer *persist.Writer, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Log{
		path:   path,
		writer: writer,
		logger: logger,
	}

	var loaded []Event
	found, err := persist.Load(path, &loaded)
	switch {
	case err != nil:
		logger.Warn("telemetry file unreadable, starting empty", "path", path, "error", err)
	case found:
		l.events = loaded
	}

	if writer != nil {
		writer.Register(path, l)
	}

	return l
}

// Record appends an event and truncates to the newest maxEntries.
func (l *Log) Record(eventType string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Details:   details,
	})

	if len(l.events) > maxEntries {
		l.events = l.events[len(l.events)-maxEntries:]
	}

	if l.writer != nil {
		l.writer.MarkDirty(l.path)
	}
}

// Recent returns the last n events, newest last. n <= 0 selects the
// default of 50.
func (l *Log) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		n = defaultRecent
	}
	if n > len(l.events) {
		n = len(l.events)
	}

	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// GetSummary aggregates the retained entries.
func (l *Log) GetSummary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byType := make(map[string]int)
	for _, e := range l.events {
		byType[e.Type]++
	}

	summary := Summary{
		TotalEvents:  len(l.events),
		EventsByType: byType,
	}
	if len(l.events) > 0 {
		last := l.events[len(l.events)-1]
		summary.LastEvent = &last
	}
	return summary
}

// Snapshot serializes the event array for the persist writer.
func (l *Log) Snapshot() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.MarshalIndent(l.events, "", "  ")
}
