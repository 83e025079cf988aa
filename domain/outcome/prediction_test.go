package outcome

import (
	"testing"
	"time"
)

func newTestRecord(t *testing.T) *PredictionRecord {
	t.Helper()
	p, err := NewPredictionRecord([]float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}
	return p
}

func TestNewPredictionRecordDefaults(t *testing.T) {
	p := newTestRecord(t)

	if p.ID == "" {
		t.Error("Expected generated prediction id")
	}
	if len(p.Horizons) != 3 {
		t.Fatalf("Expected default horizon schedule of 3, got %d", len(p.Horizons))
	}
	if p.Horizons[0] != HorizonT1 || p.Horizons[2] != HorizonT30 {
		t.Errorf("Unexpected horizon schedule %v", p.Horizons)
	}
	if p.IsComplete() {
		t.Error("Fresh record should not be complete")
	}
}

func TestNewPredictionRecordValidation(t *testing.T) {
	if _, err := NewPredictionRecord([]float64{1, 0, 1}, 2, "model-a", "", nil); err == nil {
		t.Error("Expected empty source path to be rejected")
	}
	if _, err := NewPredictionRecord([]float64{1, 0}, 2, "model-a", "signals/x", nil); err == nil {
		t.Error("Expected wrong-length state buffer to be rejected")
	}
	if _, err := NewPredictionRecord([]float64{1, 0, 1}, 2, "model-a", "signals/x", []Horizon{"T+0"}); err == nil {
		t.Error("Expected invalid horizon to be rejected")
	}
}

func TestPendingFollowsDeadlines(t *testing.T) {
	p := newTestRecord(t)

	if due := p.Pending(p.RegisteredAt.Add(time.Hour)); len(due) != 0 {
		t.Errorf("Expected nothing due after 1h, got %v", due)
	}

	due := p.Pending(p.RegisteredAt.Add(25 * time.Hour))
	if len(due) != 1 || due[0] != HorizonT1 {
		t.Fatalf("Expected only T+1 due after 25h, got %v", due)
	}

	due = p.Pending(p.RegisteredAt.Add(8 * 24 * time.Hour))
	if len(due) != 2 || due[0] != HorizonT1 || due[1] != HorizonT7 {
		t.Fatalf("Expected T+1 and T+7 due after 8 days, got %v", due)
	}

	// Recording a result removes its horizon from the due list
	p.Results[HorizonT1] = Score(p.ID, HorizonT1, p.State, p.State, p.Dim, 0.3)
	due = p.Pending(p.RegisteredAt.Add(8 * 24 * time.Hour))
	if len(due) != 1 || due[0] != HorizonT7 {
		t.Fatalf("Expected only T+7 due once T+1 resolved, got %v", due)
	}
}

func TestIsComplete(t *testing.T) {
	p := newTestRecord(t)
	for _, h := range p.Horizons {
		p.Results[h] = Score(p.ID, h, p.State, p.State, p.Dim, 0.5)
	}
	if !p.IsComplete() {
		t.Error("Expected record with all results to be complete")
	}
}

func TestHasHorizon(t *testing.T) {
	p := newTestRecord(t)
	if !p.HasHorizon(HorizonT7) {
		t.Error("Expected T+7 in default schedule")
	}
	if p.HasHorizon(Horizon("T+90")) {
		t.Error("T+90 should not be scheduled")
	}
}
