package feedback

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Type
	}{
		{"canonical false positive", "false_positive", TypeFalsePositive},
		{"fp shorthand", "fp", TypeFalsePositive},
		{"uppercase", "FP", TypeFalsePositive},
		{"hyphenated", "False-Positive", TypeFalsePositive},
		{"false negative", "false_negative", TypeFalseNegative},
		{"fn shorthand", "FN", TypeFalseNegative},
		{"accurate", "accurate", TypeAccurate},
		{"true positive", "true_positive", TypeAccurate},
		{"tp shorthand", "tp", TypeAccurate},
		{"padded", "  accurate  ", TypeAccurate},
		{"empty", "", TypeUnknown},
		{"garbage", "whatever", TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestRiskLabel(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name         string
		isCorrect    *bool
		feedbackType Type
		riskScore    float64
		expected     int
	}{
		{"explicit false positive wins", &yes, TypeFalsePositive, 0.9, LabelSafe},
		{"explicit false negative wins", &no, TypeFalseNegative, 0.1, LabelRisky},
		{"explicit accurate wins", nil, TypeAccurate, 0.1, LabelRisky},
		{"correct high-risk scan", &yes, TypeUnknown, 0.8, LabelRisky},
		{"incorrect high-risk scan", &no, TypeUnknown, 0.8, LabelSafe},
		{"correct low-risk scan", &yes, TypeUnknown, 0.1, LabelSafe},
		{"incorrect low-risk scan", &no, TypeUnknown, 0.1, LabelRisky},
		{"boundary score counts as high", &yes, TypeUnknown, 0.4, LabelRisky},
		{"nothing known defaults risky", nil, TypeUnknown, 0.5, LabelRisky},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskLabel(tt.isCorrect, tt.feedbackType, tt.riskScore); got != tt.expected {
				t.Errorf("RiskLabel() = %d, want %d", got, tt.expected)
			}
		})
	}
}
