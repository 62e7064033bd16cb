package models

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityUnknown  Severity = "UNKNOWN"
)

// Finding is one scanner result as delivered by the scanning layer.
// The learning core only reads it; findings are persisted elsewhere.
type Finding struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	RuleID      string   `json:"rule_id,omitempty"`
	Resource    string   `json:"resource,omitempty"`
	FilePath    string   `json:"file_path,omitempty"`
}

type RetrainStatus string

const (
	RetrainStatusPending   RetrainStatus = "PENDING"
	RetrainStatusRunning   RetrainStatus = "RUNNING"
	RetrainStatusCompleted RetrainStatus = "COMPLETED"
	RetrainStatusFailed    RetrainStatus = "FAILED"
)
