// Package features turns raw file content into the fixed-length numeric
// signal vector consumed by the training buffer.
package features

import (
	"regexp"
	"strings"
)

// Dimensions is the vector length every extraction produces.
const Dimensions = 40

// versionMarkerPattern flags manifests that declare a template or provider
// version (Terraform blocks, CloudFormation templates, k8s manifests).
var versionMarkerPattern = regexp.MustCompile(`(?i)(required_version|terraform\s*\{|AWSTemplateFormatVersion|apiVersion\s*:)`)

var (
	credentialKeywords = []string{
		"password", "secret", "api_key", "token",
		"credential", "private_key", "access_key", "auth",
	}
	networkKeywords = []string{
		"0.0.0.0/0", "public", "ingress", "egress",
		"port", "cidr", "security_group", "firewall",
	}
	cryptoKeywords = []string{
		"encrypt", "kms", "tls", "ssl",
		"https", "certificate", "sha256", "aes",
	}
	iamKeywords = []string{
		"iam", "role", "policy", "principal", "admin", "assume",
	}
	loggingKeywords = []string{
		"log", "audit", "monitor", "trail", "alert",
	}
)

// Extract produces exactly Dimensions numeric features for one file.
// Deterministic and side-effect free; filename is accepted for interface
// stability but carries no signal today.
func Extract(content, filename string) []float64 {
	_ = filename

	lower := strings.ToLower(content)
	v := make([]float64, 0, Dimensions)

	// Structural signals.
	length := float64(len(content)) / 10000.0
	if length > 10 {
		length = 10
	}
	lines := float64(strings.Count(content, "\n")+1) / 500.0
	if lines > 10 {
		lines = 10
	}
	v = append(v, length, lines)
	v = append(v, float64(strings.Count(content, "{")))
	v = append(v, float64(strings.Count(lower, "resource")))
	if versionMarkerPattern.MatchString(content) {
		v = append(v, 1)
	} else {
		v = append(v, 0)
	}

	for _, group := range [][]string{
		credentialKeywords,
		networkKeywords,
		cryptoKeywords,
		iamKeywords,
		loggingKeywords,
	} {
		for _, kw := range group {
			v = append(v, float64(strings.Count(lower, kw)))
		}
	}

	// Guarantee the fixed width regardless of keyword table edits.
	if len(v) > Dimensions {
		v = v[:Dimensions]
	}
	for len(v) < Dimensions {
		v = append(v, 0)
	}

	return v
}
