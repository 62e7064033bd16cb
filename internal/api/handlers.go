package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cloudguardai/learning/internal/engine"
	"github.com/cloudguardai/learning/internal/models"
	"github.com/cloudguardai/learning/internal/queue"
)

type scanCompletedRequest struct {
	ScanID    int              `json:"scan_id"`
	Findings  []models.Finding `json:"findings"`
	RiskScore float64          `json:"risk_score"`
}

func (s *Server) scanCompleted(w http.ResponseWriter, r *http.Request) {
	var req scanCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.ScanID == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "scan_id is required")
		return
	}
	if req.RiskScore < 0 || req.RiskScore > 1 {
		respondError(w, http.StatusBadRequest, "validation_error", "risk_score must be in [0,1]")
		return
	}

	s.engine.OnScanCompleted(req.ScanID, req.Findings, req.RiskScore)

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"scan_id":  req.ScanID,
		"findings": len(req.Findings),
	})
}

type feedbackRequest struct {
	ScanID        int      `json:"scan_id"`
	FileContent   string   `json:"file_content"`
	Filename      string   `json:"filename"`
	IsCorrect     *int     `json:"is_correct"`
	FeedbackType  string   `json:"feedback_type"`
	ScanRiskScore *float64 `json:"scan_risk_score"`
	RuleID        string   `json:"rule_id"`
}

func (s *Server) feedbackReceived(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.ScanID == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "scan_id is required")
		return
	}

	var isCorrect *bool
	if req.IsCorrect != nil {
		v := *req.IsCorrect != 0
		isCorrect = &v
	}

	riskScore := 0.5
	if req.ScanRiskScore != nil {
		riskScore = *req.ScanRiskScore
	}

	s.engine.OnFeedbackReceived(engine.Feedback{
		ScanID:        req.ScanID,
		Content:       req.FileContent,
		Filename:      req.Filename,
		IsCorrect:     isCorrect,
		FeedbackType:  req.FeedbackType,
		ScanRiskScore: riskScore,
		RuleID:        req.RuleID,
	})

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"scan_id": req.ScanID,
	})
}

type retrainCompletedRequest struct {
	Metrics map[string]interface{} `json:"metrics"`
}

func (s *Server) retrainCompleted(w http.ResponseWriter, r *http.Request) {
	var req retrainCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	s.engine.OnRetrainCompleted(req.Metrics)

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "absorbed",
	})
}

func (s *Server) enqueueRetrain(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "queue_unavailable", "retrain queue is not configured")
		return
	}

	triggered, reason := s.engine.ShouldAutoRetrain()
	if !triggered {
		reason = "manual"
	}
	_, y := s.engine.TrainingBatch()

	job := &queue.Job{
		Reason:  reason,
		Samples: len(y),
	}
	if err := s.queue.EnqueueRetrainJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"reason": job.Reason,
	})
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "queue_unavailable", "retrain queue is not configured")
		return
	}

	stats, err := s.queue.GetQueueStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) learningStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.LearningStatus())
}

func (s *Server) driftCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Drift().Check())
}

func (s *Server) ruleWeightStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.RuleWeights().GetStats()

	if t := r.URL.Query().Get("threshold"); t != "" {
		threshold, err := strconv.ParseFloat(t, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_threshold", "threshold must be a number")
			return
		}
		stats.LowConfidenceRules = s.engine.RuleWeights().LowConfidenceRules(threshold)
		if stats.LowConfidenceRules == nil {
			stats.LowConfidenceRules = []string{}
		}
	}

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) patternStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Patterns().GetStats())
}

func (s *Server) telemetrySummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Telemetry().GetSummary())
}

func (s *Server) telemetryRecent(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_n", "n must be an integer")
			return
		}
		n = parsed
	}

	respondJSON(w, http.StatusOK, s.engine.Telemetry().Recent(n))
}
