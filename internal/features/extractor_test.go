package features

import (
	"strings"
	"testing"
)

func TestExtract_FixedDimensions(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty content", ""},
		{"plain text", "hello world"},
		{"large content", strings.Repeat("resource \"aws_s3_bucket\" {}\n", 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Extract(tt.content, "main.tf")
			if len(v) != Dimensions {
				t.Errorf("expected %d dimensions, got %d", Dimensions, len(v))
			}
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	content := "resource \"aws_iam_role\" { password = var.secret }"

	a := Extract(content, "iam.tf")
	b := Extract(content, "iam.tf")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("feature %d differs between identical extractions: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestExtract_StructuralSignals(t *testing.T) {
	content := "resource \"aws_s3_bucket\" {\n  bucket = \"data\"\n}\n"
	v := Extract(content, "s3.tf")

	if v[2] != 1 {
		t.Errorf("expected 1 brace, got %v", v[2])
	}
	if v[3] != 1 {
		t.Errorf("expected 1 resource keyword, got %v", v[3])
	}
}

func TestExtract_StructuralCaps(t *testing.T) {
	huge := strings.Repeat("x\n", 200000)
	v := Extract(huge, "big.txt")

	if v[0] != 10 {
		t.Errorf("length signal should cap at 10, got %v", v[0])
	}
	if v[1] != 10 {
		t.Errorf("line signal should cap at 10, got %v", v[1])
	}
}

func TestExtract_VersionMarker(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected float64
	}{
		{"terraform block", "terraform {\n  required_version = \">= 1.0\"\n}", 1},
		{"cloudformation", "AWSTemplateFormatVersion: '2010-09-09'", 1},
		{"k8s manifest", "apiVersion: v1\nkind: Pod", 1},
		{"no marker", "just some text", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Extract(tt.content, "f")
			if v[4] != tt.expected {
				t.Errorf("expected marker flag %v, got %v", tt.expected, v[4])
			}
		})
	}
}

func TestExtract_KeywordCounts(t *testing.T) {
	content := "password=1 PASSWORD=2 ingress {} encrypt iam iam audit"
	v := Extract(content, "f")

	// Keyword groups start at index 5: credential, network, crypto, IAM,
	// logging.
	if v[5] != 2 {
		t.Errorf("expected 2 password hits (case-insensitive), got %v", v[5])
	}
	if v[15] != 1 {
		t.Errorf("expected 1 ingress hit, got %v", v[15])
	}
	if v[21] != 1 {
		t.Errorf("expected 1 encrypt hit, got %v", v[21])
	}
	if v[29] != 2 {
		t.Errorf("expected 2 iam hits, got %v", v[29])
	}
	if v[36] != 1 {
		t.Errorf("expected 1 audit hit, got %v", v[36])
	}
}
