// Package feedback normalizes human judgments on scanner findings and
// derives the binary training labels used by the learning loop.
package feedback

import "strings"

// Type is the closed set of feedback classifications. External strings are
// converted exactly once, at the boundary, via Normalize.
type Type string

const (
	TypeAccurate      Type = "accurate"
	TypeFalsePositive Type = "false_positive"
	TypeFalseNegative Type = "false_negative"
	TypeUnknown       Type = "unknown"
)

// Normalize maps a raw feedback-type string onto the closed tag set.
// Matching is case-insensitive and treats hyphens as underscores.
func Normalize(raw string) Type {
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")

	switch s {
	case "false_positive", "fp":
		return TypeFalsePositive
	case "false_negative", "fn":
		return TypeFalseNegative
	case "accurate", "true_positive", "tp":
		return TypeAccurate
	default:
		return TypeUnknown
	}
}

// Risk labels for the training buffer.
const (
	LabelSafe  = 0
	LabelRisky = 1
)

// RiskLabel derives a binary ground-truth label from one feedback event.
// Explicit feedback types win; otherwise a correctness flag is interpreted
// relative to the scan's risk score (confirming a high-risk scan means
// risky, confirming a low-risk scan means safe). Absent everything, the
// label defaults to risky.
func RiskLabel(isCorrect *bool, feedbackType Type, scanRiskScore float64) int {
	switch feedbackType {
	case TypeFalsePositive:
		return LabelSafe
	case TypeFalseNegative:
		return LabelRisky
	case TypeAccurate:
		return LabelRisky
	}

	if isCorrect != nil {
		if scanRiskScore >= 0.4 {
			if *isCorrect {
				return LabelRisky
			}
			return LabelSafe
		}
		if *isCorrect {
			return LabelSafe
		}
		return LabelRisky
	}

	return LabelRisky
}
