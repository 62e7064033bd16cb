// Package engine wires the learning subsystems into the scan/feedback/
// retrain lifecycle and owns the single retrain decision.
package engine

import (
	"log/slog"
	"sync"

	"github.com/cloudguardai/learning/internal/drift"
	"github.com/cloudguardai/learning/internal/features"
	"github.com/cloudguardai/learning/internal/feedback"
	"github.com/cloudguardai/learning/internal/models"
	"github.com/cloudguardai/learning/internal/patterns"
	"github.com/cloudguardai/learning/internal/ruleweights"
	"github.com/cloudguardai/learning/internal/telemetry"
)

// State is the engine lifecycle position.
type State string

const (
	StateIdle           State = "idle"
	StateAccumulating   State = "accumulating"
	StateRetrainPending State = "retrain_pending"
)

// Retrain decision reasons.
const (
	ReasonFeedbackThreshold = "feedback_threshold"
	ReasonDriftDetected     = "drift_detected"
	ReasonNotNeeded         = "not_needed"
)

// Config carries the engine's own thresholds; the drift threshold lives on
// the injected detector.
type Config struct {
	FeedbackThreshold int
}

// Deps are the collaborating subsystems, constructed by the caller so tests
// can build isolated engines.
type Deps struct {
	Drift       *drift.Detector
	RuleWeights *ruleweights.Store
	Patterns    *patterns.Engine
	Telemetry   *telemetry.Log
}

// Feedback is one inbound human judgment on a scan or finding.
type Feedback struct {
	ScanID        int
	Content       string
	Filename      string
	IsCorrect     *bool
	FeedbackType  string
	ScanRiskScore float64
	RuleID        string
}

// Status is the consolidated read-only snapshot exposed to the operating
// layer.
type Status struct {
	State                State             `json:"state"`
	RetrainRecommended   bool              `json:"retrain_recommended"`
	RetrainReason        string            `json:"retrain_reason"`
	TrainingBufferSize   int               `json:"training_buffer_size"`
	FeedbackSinceRetrain int               `json:"feedback_since_retrain"`
	Drift                drift.CheckResult `json:"drift"`
	RuleWeights          ruleweights.Stats `json:"rule_weights"`
	Patterns             patterns.Stats    `json:"patterns"`
	Telemetry            telemetry.Summary `json:"telemetry"`
}

// Engine is the orchestrator. One long-lived instance serves all callers;
// running several instances over the same data directory is unsupported.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	drift       *drift.Detector
	ruleWeights *ruleweights.Store
	patterns    *patterns.Engine
	telemetry   *telemetry.Log
	logger      *slog.Logger

	state                State
	bufX                 [][]float64
	bufY                 []int
	feedbackSinceRetrain int
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if cfg.FeedbackThreshold <= 0 {
		cfg.FeedbackThreshold = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:         cfg,
		drift:       deps.Drift,
		ruleWeights: deps.RuleWeights,
		patterns:    deps.Patterns,
		telemetry:   deps.Telemetry,
		logger:      logger,
		state:       StateIdle,
	}
}

// OnScanCompleted absorbs one finished scan: the risk score feeds drift
// detection, the findings feed pattern discovery, and both outcomes are
// audited. A drift_detected event, when tripped, precedes the
// scan_processed event for the same call.
func (e *Engine) OnScanCompleted(scanID int, findings []models.Finding, riskScore float64) {
	e.drift.RecordPrediction(riskScore)
	e.patterns.IngestFindings(findings, scanID)

	check := e.drift.Check()
	if check.DriftDetected {
		e.telemetry.Record("drift_detected", map[string]interface{}{
			"scan_id":   scanID,
			"psi_score": check.PSIScore,
			"threshold": check.Threshold,
			"action":    check.Action,
		})
		e.logger.Info("prediction drift detected", "scan_id", scanID, "psi", check.PSIScore)
	}

	e.telemetry.Record("scan_processed", map[string]interface{}{
		"scan_id":    scanID,
		"findings":   len(findings),
		"risk_score": riskScore,
	})

	e.mu.Lock()
	if e.state == StateIdle {
		e.state = StateAccumulating
	}
	e.mu.Unlock()
}

// OnFeedbackReceived turns one judgment into a training example, credits
// the originating rule when known, and bumps the retrain counter.
func (e *Engine) OnFeedbackReceived(fb Feedback) {
	ft := feedback.Normalize(fb.FeedbackType)
	label := feedback.RiskLabel(fb.IsCorrect, ft, fb.ScanRiskScore)
	vector := features.Extract(fb.Content, fb.Filename)

	e.mu.Lock()
	e.bufX = append(e.bufX, vector)
	e.bufY = append(e.bufY, label)
	e.feedbackSinceRetrain++
	if e.state == StateIdle {
		e.state = StateAccumulating
	}
	count := e.feedbackSinceRetrain
	e.mu.Unlock()

	if fb.RuleID != "" {
		ruleFeedback := ft
		if ruleFeedback == feedback.TypeUnknown {
			// No explicit type: the rule is credited only when the caller
			// affirmed correctness; an absent flag counts against it.
			if fb.IsCorrect != nil && *fb.IsCorrect {
				ruleFeedback = feedback.TypeAccurate
			} else {
				ruleFeedback = feedback.TypeFalsePositive
			}
		}
		e.ruleWeights.RecordFeedback(fb.RuleID, ruleFeedback)
	}

	e.telemetry.Record("feedback_processed", map[string]interface{}{
		"scan_id":                fb.ScanID,
		"label":                  label,
		"rule_id":                fb.RuleID,
		"feedback_since_retrain": count,
	})
}

// ShouldAutoRetrain reports whether a retrain job should be requested now,
// with the winning trigger as reason. On a positive answer the engine moves
// to RetrainPending; the actual retraining is the external runner's job.
func (e *Engine) ShouldAutoRetrain() (bool, string) {
	e.mu.Lock()
	if e.feedbackSinceRetrain >= e.cfg.FeedbackThreshold {
		e.state = StateRetrainPending
		e.mu.Unlock()
		return true, ReasonFeedbackThreshold
	}
	e.mu.Unlock()

	if check := e.drift.Check(); check.DriftDetected {
		e.mu.Lock()
		e.state = StateRetrainPending
		e.mu.Unlock()
		return true, ReasonDriftDetected
	}

	return false, ReasonNotNeeded
}

// TrainingBatch returns a copy of the accumulated training pairs without
// clearing them.
func (e *Engine) TrainingBatch() ([][]float64, []int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	X := make([][]float64, len(e.bufX))
	copy(X, e.bufX)
	y := make([]int, len(e.bufY))
	copy(y, e.bufY)
	return X, y
}

// OnRetrainCompleted absorbs the external runner's result: training buffer
// and feedback counter reset together, drift rebaselines, and a discovery
// cycle runs over the accumulated clusters. Call exactly once per retrain;
// a double call double-resets state and cannot be detected here.
func (e *Engine) OnRetrainCompleted(metrics map[string]interface{}) {
	e.mu.Lock()
	e.bufX = nil
	e.bufY = nil
	e.feedbackSinceRetrain = 0
	e.state = StateIdle
	e.mu.Unlock()

	e.drift.ResetReference()

	discovery := e.patterns.RunDiscoveryCycle()

	e.telemetry.Record("retrain_completed", map[string]interface{}{
		"metrics":                metrics,
		"new_rules_generated":    discovery.NewRulesGenerated,
		"total_tracked_patterns": discovery.TotalTrackedPatterns,
	})
	e.logger.Info("retrain absorbed",
		"new_rules", discovery.NewRulesGenerated,
		"tracked_patterns", discovery.TotalTrackedPatterns)
}

// LearningStatus assembles the consolidated snapshot. This is the single
// external read interface.
func (e *Engine) LearningStatus() Status {
	recommended, reason := e.ShouldAutoRetrain()

	e.mu.Lock()
	state := e.state
	bufSize := len(e.bufY)
	count := e.feedbackSinceRetrain
	e.mu.Unlock()

	return Status{
		State:                state,
		RetrainRecommended:   recommended,
		RetrainReason:        reason,
		TrainingBufferSize:   bufSize,
		FeedbackSinceRetrain: count,
		Drift:                e.drift.Check(),
		RuleWeights:          e.ruleWeights.GetStats(),
		Patterns:             e.patterns.GetStats(),
		Telemetry:            e.telemetry.GetSummary(),
	}
}

// RuleWeights exposes the confidence store to the read API.
func (e *Engine) RuleWeights() *ruleweights.Store { return e.ruleWeights }

// Patterns exposes the discovery engine to the read API.
func (e *Engine) Patterns() *patterns.Engine { return e.patterns }

// Drift exposes the drift detector to the read API.
func (e *Engine) Drift() *drift.Detector { return e.drift }

// Telemetry exposes the audit log to the read API.
func (e *Engine) Telemetry() *telemetry.Log { return e.telemetry }
