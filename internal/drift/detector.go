// Package drift watches the distribution of scan risk scores for movement
// away from the baseline the current model was trained on, using the
// Population Stability Index over two rolling prediction windows.
package drift

import (
	"math"
	"sync"
)

const (
	// DefaultReferenceWindow caps the frozen baseline window.
	DefaultReferenceWindow = 200
	// DefaultBins is the histogram resolution for the PSI computation.
	DefaultBins = 10
	// DefaultThreshold is the PSI score above which drift is flagged.
	DefaultThreshold = 0.15

	// minSamples is the smallest window size PSI is meaningful for.
	minSamples = 20
)

const (
	ActionRetrainRecommended = "retrain_recommended"
	ActionNormal             = "normal"
)

// Detector holds the reference window, frozen once filled, and the recent
// window, which grows until a retrain rebaselines both.
type Detector struct {
	mu        sync.Mutex
	window    int
	bins      int
	threshold float64
	reference []float64
	recent    []float64
}

// CheckResult is one drift evaluation.
type CheckResult struct {
	DriftDetected bool    `json:"drift_detected"`
	PSIScore      float64 `json:"psi_score"`
	ReferenceSize int     `json:"reference_size"`
	RecentSize    int     `json:"recent_size"`
	Threshold     float64 `json:"threshold"`
	Action        string  `json:"action"`
}

// New creates a detector. Zero or negative arguments select the defaults.
func New(referenceWindow, bins int, threshold float64) *Detector {
	if referenceWindow <= 0 {
		referenceWindow = DefaultReferenceWindow
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Detector{
		window:    referenceWindow,
		bins:      bins,
		threshold: threshold,
		reference: make([]float64, 0, referenceWindow),
	}
}

// RecordPrediction appends a model prediction. The reference window only
// accepts values until it reaches capacity.
func (d *Detector) RecordPrediction(p float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recent = append(d.recent, p)
	if len(d.reference) < d.window {
		d.reference = append(d.reference, p)
	}
}

// ComputePSI returns the Population Stability Index between the two
// windows, or 0 when either side has fewer than minSamples values.
func (d *Detector) ComputePSI() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.psiLocked()
}

func (d *Detector) psiLocked() float64 {
	if len(d.reference) < minSamples || len(d.recent) < minSamples {
		return 0.0
	}

	ref := tail(d.reference, d.window)
	rec := tail(d.recent, d.window)

	refPct := d.bucketShares(ref)
	recPct := d.bucketShares(rec)

	psi := 0.0
	for i := 0; i < d.bins; i++ {
		psi += (recPct[i] - refPct[i]) * math.Log(recPct[i]/refPct[i])
	}
	return psi
}

// bucketShares histograms values into equal-width bins over [0,1] and
// returns Laplace-smoothed proportions, so no bin is ever empty.
func (d *Detector) bucketShares(values []float64) []float64 {
	counts := make([]int, d.bins)
	for _, v := range values {
		idx := int(v * float64(d.bins))
		if idx >= d.bins {
			idx = d.bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}

	total := float64(len(values) + d.bins)
	shares := make([]float64, d.bins)
	for i, c := range counts {
		shares[i] = float64(c+1) / total
	}
	return shares
}

// Check evaluates drift against the configured threshold.
func (d *Detector) Check() CheckResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	psi := d.psiLocked()
	detected := psi > d.threshold

	action := ActionNormal
	if detected {
		action = ActionRetrainRecommended
	}

	return CheckResult{
		DriftDetected: detected,
		PSIScore:      psi,
		ReferenceSize: len(d.reference),
		RecentSize:    len(d.recent),
		Threshold:     d.threshold,
		Action:        action,
	}
}

// ResetReference rebaselines after a retrain: both windows become the most
// recent window-sized slice of recent, so the next comparison starts from
// the distribution the new model was trained on. Idempotent when no
// predictions arrive in between.
func (d *Detector) ResetReference() {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := tail(d.recent, d.window)

	d.reference = make([]float64, len(t))
	copy(d.reference, t)
	d.recent = make([]float64, len(t))
	copy(d.recent, t)
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
