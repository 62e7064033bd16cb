package drift

import (
	"math/rand"
	"testing"
)

func TestComputePSI_InsufficientData(t *testing.T) {
	d := New(0, 0, 0)

	for i := 0; i < 19; i++ {
		d.RecordPrediction(0.5)
	}

	if psi := d.ComputePSI(); psi != 0.0 {
		t.Errorf("expected 0 PSI below the minimum sample count, got %v", psi)
	}
}

func TestCheck_StableDistribution(t *testing.T) {
	d := New(0, 0, 0)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 60; i++ {
		d.RecordPrediction(0.3 + rng.Float64()*0.4)
	}

	result := d.Check()
	if result.DriftDetected {
		t.Errorf("identical reference and recent windows should not drift, psi=%v", result.PSIScore)
	}
	if result.Action != ActionNormal {
		t.Errorf("expected action %q, got %q", ActionNormal, result.Action)
	}
}

func TestCheck_ShiftedDistribution(t *testing.T) {
	d := New(60, 10, 0.05)

	// Freeze the reference on low scores, then push the recent window high.
	for i := 0; i < 60; i++ {
		d.RecordPrediction(0.2)
	}
	for i := 0; i < 60; i++ {
		d.RecordPrediction(0.9)
	}

	result := d.Check()
	if !result.DriftDetected {
		t.Fatalf("expected drift, psi=%v threshold=%v", result.PSIScore, result.Threshold)
	}
	if result.PSIScore <= 0.05 {
		t.Errorf("expected psi above 0.05, got %v", result.PSIScore)
	}
	if result.Action != ActionRetrainRecommended {
		t.Errorf("expected action %q, got %q", ActionRetrainRecommended, result.Action)
	}
}

func TestCheck_ReportsWindowSizes(t *testing.T) {
	d := New(50, 10, 0.15)

	for i := 0; i < 75; i++ {
		d.RecordPrediction(0.5)
	}

	result := d.Check()
	if result.ReferenceSize != 50 {
		t.Errorf("reference should freeze at capacity 50, got %d", result.ReferenceSize)
	}
	if result.RecentSize != 75 {
		t.Errorf("recent should keep growing, got %d", result.RecentSize)
	}
}

func TestResetReference_Rebaselines(t *testing.T) {
	d := New(60, 10, 0.05)

	for i := 0; i < 60; i++ {
		d.RecordPrediction(0.2)
	}
	for i := 0; i < 60; i++ {
		d.RecordPrediction(0.9)
	}

	if result := d.Check(); !result.DriftDetected {
		t.Fatalf("expected drift before reset")
	}

	d.ResetReference()

	result := d.Check()
	if result.DriftDetected {
		t.Errorf("reset should rebaseline both windows, psi=%v", result.PSIScore)
	}
	if result.ReferenceSize != 60 || result.RecentSize != 60 {
		t.Errorf("both windows should hold the last 60 values, got ref=%d recent=%d",
			result.ReferenceSize, result.RecentSize)
	}
}

func TestResetReference_Idempotent(t *testing.T) {
	d := New(30, 10, 0.15)

	for i := 0; i < 45; i++ {
		d.RecordPrediction(float64(i%10) / 10.0)
	}

	d.ResetReference()
	first := d.Check()

	d.ResetReference()
	second := d.Check()

	if first != second {
		t.Errorf("second reset with no new predictions changed state: %+v vs %+v", first, second)
	}
}
