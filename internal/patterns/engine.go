// Package patterns clusters recurring scanner findings by a normalized
// keyword signature and promotes clusters that keep reappearing across
// scans into auto-generated detection rules.
package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudguardai/learning/internal/models"
	"github.com/cloudguardai/learning/internal/persist"
)

// MinOccurrences is the number of distinct scans a cluster must appear in
// before a rule is generated from it.
const MinOccurrences = 3

var signatureTokenPattern = regexp.MustCompile(`[a-z_]{3,}`)

// Cluster groups similar findings under one signature. JSON field names are
// the on-disk format and must stay stable.
type Cluster struct {
	Signature         string          `json:"signature"`
	SampleDescription string          `json:"sample_description"`
	SampleRuleID      string          `json:"sample_rule_id"`
	Severity          models.Severity `json:"severity"`
	ScanIDs           []int           `json:"scan_ids"`
	Count             int             `json:"count"`
	FirstSeen         time.Time       `json:"first_seen"`
	LastSeen          time.Time       `json:"last_seen"`
	RuleGenerated     bool            `json:"rule_generated"`
}

// GeneratedRule is the synthesized detection rule artifact, written once
// per cluster.
type GeneratedRule struct {
	RuleID      string          `json:"rule_id"`
	Description string          `json:"description"`
	Severity    models.Severity `json:"severity"`
	Pattern     string          `json:"pattern"`
	References  []string        `json:"references"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DiscoveryResult summarizes one discovery cycle.
type DiscoveryResult struct {
	TotalTrackedPatterns int             `json:"total_tracked_patterns"`
	NewRulesGenerated    int             `json:"new_rules_generated"`
	GeneratedRules       []GeneratedRule `json:"generated_rules"`
	Timestamp            time.Time       `json:"timestamp"`
}

// Stats is the aggregate view exposed to the status snapshot.
type Stats struct {
	TrackedPatterns int `json:"tracked_patterns"`
	PendingClusters int `json:"pending_clusters"`
	RulesGenerated  int `json:"rules_generated"`
}

// Engine is the persisted signature -> Cluster mapping plus rule synthesis.
type Engine struct {
	mu       sync.Mutex
	path     string
	rulesDir string
	clusters map[string]*Cluster
	writer   *persist.Writer
	logger   *slog.Logger
}

// NewEngine loads existing cluster state from path. Missing or corrupt
// state starts empty; corruption is logged, not fatal.
func NewEngine(path, rulesDir string, writer *persist.Writer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		path:     path,
		rulesDir: rulesDir,
		clusters: make(map[string]*Cluster),
		writer:   writer,
		logger:   logger,
	}

	var loaded map[string]*Cluster
	found, err := persist.Load(path, &loaded)
	switch {
	case err != nil:
		logger.Warn("pattern state file unreadable, starting empty", "path", path, "error", err)
	case found && loaded != nil:
		// A file holding the JSON literal null decodes to a nil map; keep
		// the empty one so later writes cannot panic.
		e.clusters = loaded
	}

	if writer != nil {
		writer.Register(path, e)
	}

	return e
}

// Signature buckets a finding by severity plus the first 8 sorted unique
// keyword tokens of its description, hashed to 12 hex characters. Identical
// descriptions always collide; reworded descriptions of the same problem
// may not, since the token set is matched exactly.
func Signature(f models.Finding) string {
	tokens := signatureTokenPattern.FindAllString(strings.ToLower(f.Description), -1)

	seen := make(map[string]bool, len(tokens))
	unique := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !seen[tok] {
			seen[tok] = true
			unique = append(unique, tok)
		}
	}
	sort.Strings(unique)
	if len(unique) > 8 {
		unique = unique[:8]
	}

	key := fmt.Sprintf("%s::%s", strings.ToUpper(string(f.Severity)), strings.Join(unique, ","))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// IngestFindings folds one completed scan's findings into the cluster map.
func (e *Engine) IngestFindings(findings []models.Finding, scanID int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	changed := false

	for _, f := range findings {
		sig := Signature(f)

		cluster, ok := e.clusters[sig]
		if !ok {
			cluster = &Cluster{
				Signature:         sig,
				SampleDescription: f.Description,
				SampleRuleID:      f.RuleID,
				Severity:          f.Severity,
				FirstSeen:         now,
			}
			e.clusters[sig] = cluster
		}

		if !containsInt(cluster.ScanIDs, scanID) {
			cluster.ScanIDs = append(cluster.ScanIDs, scanID)
		}
		cluster.Count++
		cluster.LastSeen = now
		changed = true
	}

	if changed {
		e.markDirty()
	}
}

// PendingClusters lists clusters seen in enough distinct scans that still
// have no generated rule, ordered by signature for determinism.
func (e *Engine) PendingClusters() []*Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingLocked()
}

func (e *Engine) pendingLocked() []*Cluster {
	var pending []*Cluster
	for _, c := range e.clusters {
		if len(c.ScanIDs) >= MinOccurrences && !c.RuleGenerated {
			pending = append(pending, c)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Signature < pending[j].Signature
	})
	return pending
}

// RunDiscoveryCycle generates rules for every pending cluster.
func (e *Engine) RunDiscoveryCycle() DiscoveryResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := DiscoveryResult{
		GeneratedRules: []GeneratedRule{},
		Timestamp:      time.Now().UTC(),
	}

	for _, cluster := range e.pendingLocked() {
		rule := e.generateRuleLocked(cluster)
		if rule == nil {
			continue
		}
		result.GeneratedRules = append(result.GeneratedRules, *rule)
	}

	result.TotalTrackedPatterns = len(e.clusters)
	result.NewRulesGenerated = len(result.GeneratedRules)
	return result
}

// GetStats summarizes the cluster map for the status snapshot.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	generated := 0
	for _, c := range e.clusters {
		if c.RuleGenerated {
			generated++
		}
	}

	return Stats{
		TrackedPatterns: len(e.clusters),
		PendingClusters: len(e.pendingLocked()),
		RulesGenerated:  generated,
	}
}

// Snapshot serializes the cluster map for the persist writer.
func (e *Engine) Snapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return json.MarshalIndent(e.clusters, "", "  ")
}

func (e *Engine) markDirty() {
	if e.writer != nil {
		e.writer.MarkDirty(e.path)
	}
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
