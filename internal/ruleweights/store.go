// Package ruleweights tracks a per-rule confidence weight derived from
// human feedback, so the scanning layer can discount rules that keep
// producing false positives.
package ruleweights

import (
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cloudguardai/learning/internal/feedback"
	"github.com/cloudguardai/learning/internal/persist"
)

const (
	// DefaultLowConfidenceThreshold flags rules worth demoting.
	DefaultLowConfidenceThreshold = 0.4

	// minFeedbackForLowConfidence avoids flagging rules on statistically
	// insignificant samples.
	minFeedbackForLowConfidence = 5
)

// Entry is the aggregated judgment history for one rule id. The JSON field
// names are the on-disk format and must stay stable.
type Entry struct {
	TruePositives  int        `json:"true_positives"`
	FalsePositives int        `json:"false_positives"`
	FalseNegatives int        `json:"false_negatives"`
	Total          int        `json:"total"`
	Confidence     float64    `json:"confidence"`
	LastUpdated    *time.Time `json:"last_updated"`
}

// Stats is the aggregate view exposed to the status snapshot.
type Stats struct {
	TrackedRules       int              `json:"tracked_rules"`
	MeanConfidence     float64          `json:"mean_confidence"`
	LowConfidenceRules []string         `json:"low_confidence_rules"`
	Rules              map[string]Entry `json:"rules"`
}

// Store is the persisted rule_id -> Entry mapping.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]*Entry
	writer  *persist.Writer
	logger  *slog.Logger
}

// NewStore loads existing state from path. A missing file starts empty; a
// corrupt file starts empty and logs the anomaly rather than failing
// startup.
func NewStore(path string, writer *persist.Writer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:    path,
		entries: make(map[string]*Entry),
		writer:  writer,
		logger:  logger,
	}

	var loaded map[string]*Entry
	found, err := persist.Load(path, &loaded)
	switch {
	case err != nil:
		logger.Warn("rule weights file unreadable, starting empty", "path", path, "error", err)
	case found && loaded != nil:
		// A file holding the JSON literal null decodes to a nil map; keep
		// the empty one so later writes cannot panic.
		s.entries = loaded
	}

	if writer != nil {
		writer.Register(path, s)
	}

	return s
}

// RecordFeedback folds one normalized judgment into the rule's tallies and
// recomputes its confidence. Unknown feedback counts as accurate, matching
// the conservative default used for labels.
func (s *Store) RecordFeedback(ruleID string, ft feedback.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[ruleID]
	if !ok {
		entry = &Entry{Confidence: 1.0}
		s.entries[ruleID] = entry
	}

	switch ft {
	case feedback.TypeFalsePositive:
		entry.FalsePositives++
	case feedback.TypeFalseNegative:
		entry.FalseNegatives++
	default:
		entry.TruePositives++
	}
	entry.Total++

	// Laplace-smoothed precision with a prior of 2 TPs and 1 FP, so a
	// fresh rule sits near 0.667 instead of swinging to an extreme.
	tp := float64(entry.TruePositives)
	fp := float64(entry.FalsePositives)
	entry.Confidence = round4((tp + 2) / (tp + fp + 3))

	now := time.Now().UTC()
	entry.LastUpdated = &now

	s.markDirty()
}

// Weight returns the stored confidence for a rule, or 1.0 when the rule has
// never received feedback: trust until proven otherwise.
func (s *Store) Weight(ruleID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.entries[ruleID]; ok {
		return entry.Confidence
	}
	return 1.0
}

// LowConfidenceRules lists rule ids whose confidence fell below threshold
// after enough feedback to matter. Sorted for deterministic output.
func (s *Store) LowConfidenceRules(threshold float64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lowConfidenceLocked(threshold)
}

func (s *Store) lowConfidenceLocked(threshold float64) []string {
	var ids []string
	for id, entry := range s.entries {
		if entry.Confidence < threshold && entry.Total >= minFeedbackForLowConfidence {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// GetStats aggregates the full map for the status snapshot.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make(map[string]Entry, len(s.entries))
	sum := 0.0
	for id, entry := range s.entries {
		rules[id] = *entry
		sum += entry.Confidence
	}

	mean := 0.0
	if len(s.entries) > 0 {
		mean = round4(sum / float64(len(s.entries)))
	}

	low := s.lowConfidenceLocked(DefaultLowConfidenceThreshold)
	if low == nil {
		low = []string{}
	}

	return Stats{
		TrackedRules:       len(rules),
		MeanConfidence:     mean,
		LowConfidenceRules: low,
		Rules:              rules,
	}
}

// Snapshot serializes the map for the persist writer.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.entries, "", "  ")
}

func (s *Store) markDirty() {
	if s.writer != nil {
		s.writer.MarkDirty(s.path)
	}
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
