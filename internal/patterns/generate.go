package patterns

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cloudguardai/learning/internal/persist"
)

var ruleTokenPattern = regexp.MustCompile(`[a-zA-Z]{4,}`)

const discoveredRuleReference = "https://docs.cloudguard.dev/rules/auto-discovered"

// GenerateRule synthesizes a detection rule from one cluster. Returns nil
// when the sample description has no usable keywords; callers treat that as
// a skip, never an error.
func (e *Engine) GenerateRule(cluster *Cluster) *GeneratedRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generateRuleLocked(cluster)
}

func (e *Engine) generateRuleLocked(cluster *Cluster) *GeneratedRule {
	tokens := ruleTokens(cluster.SampleDescription)
	if len(tokens) == 0 {
		return nil
	}

	pattern := regexp.QuoteMeta(tokens[0])
	if len(tokens) > 1 {
		pattern += ".*" + regexp.QuoteMeta(tokens[1])
	}

	excerpt := cluster.SampleDescription
	if len(excerpt) > 120 {
		excerpt = excerpt[:120]
	}

	rule := &GeneratedRule{
		RuleID:      "DISC_" + strings.ToUpper(cluster.Signature),
		Description: excerpt,
		Severity:    cluster.Severity,
		Pattern:     pattern,
		References:  []string{discoveredRuleReference},
		CreatedAt:   time.Now().UTC(),
	}

	cluster.RuleGenerated = true
	e.markDirty()
	e.writeArtifact(rule)

	return rule
}

// ruleTokens picks the two longest distinct alphabetic tokens (length >= 4)
// from the description, ties broken lexicographically for determinism.
func ruleTokens(description string) []string {
	raw := ruleTokenPattern.FindAllString(strings.ToLower(description), -1)

	seen := make(map[string]bool, len(raw))
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	return tokens
}

// writeArtifact mirrors the rule to its own file so the rule-matching
// engine can pick it up. A write failure only costs the mirror; the
// in-memory cluster state is already updated.
func (e *Engine) writeArtifact(rule *GeneratedRule) {
	if e.rulesDir == "" {
		return
	}

	data, err := json.MarshalIndent(rule, "", "  ")
	if err != nil {
		e.logger.Error("serializing generated rule", "rule_id", rule.RuleID, "error", err)
		return
	}

	path := filepath.Join(e.rulesDir, rule.RuleID+".json")
	if err := persist.WriteFile(path, data); err != nil {
		e.logger.Error("writing generated rule artifact", "rule_id", rule.RuleID, "error", err)
	}
}
