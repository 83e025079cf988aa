package app

import (
	"context"
	"errors"
	"testing"

	"gorecal/adapters/registry"
	"gorecal/domain/core"
	"gorecal/domain/ensemble"
)

func testGate(t *testing.T) (*AdmissionGate, *registry.MemoryRegistry) {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	gate, err := NewAdmissionGate(mixedTable(t), reg)
	if err != nil {
		t.Fatalf("Failed to build admission gate: %v", err)
	}
	return gate, reg
}

func admissionObservation(t *testing.T, source core.SourceID, ci ensemble.ConfidenceInterval) ensemble.Observation {
	t.Helper()
	obs, err := ensemble.NewObservation("signals/rates/state", 0.42, ensemble.PayloadScalar,
		source, "model-a", "calm", ci)
	if err != nil {
		t.Fatalf("Failed to build observation: %v", err)
	}
	return obs
}

func TestAdmitKnownSource(t *testing.T) {
	gate, reg := testGate(t)

	obs := admissionObservation(t, "rates-desk", ensemble.ConfidenceInterval{Lower: 0.2, Upper: 0.8})
	if err := gate.Admit(context.Background(), obs); err != nil {
		t.Fatalf("Expected admission, got %v", err)
	}

	stored, err := reg.Get(context.Background(), "signals/rates/state")
	if err != nil {
		t.Fatalf("Expected stored observation, got %v", err)
	}
	if stored.SourceID != "rates-desk" {
		t.Errorf("Expected source rates-desk, got %s", stored.SourceID)
	}
}

func TestAdmitRejectsUnknownSource(t *testing.T) {
	gate, reg := testGate(t)

	obs := admissionObservation(t, "rogue-feed", ensemble.ConfidenceInterval{Lower: 0.2, Upper: 0.8})
	err := gate.Admit(context.Background(), obs)
	if !errors.Is(err, core.ErrSourceNotFound) {
		t.Fatalf("Expected ErrSourceNotFound, got %v", err)
	}

	if _, err := reg.Get(context.Background(), "signals/rates/state"); !core.IsNotFoundError(err) {
		t.Error("Rejected observation must not reach the registry")
	}
}

func TestAdmitRecordsDeadSignal(t *testing.T) {
	gate, reg := testGate(t)

	obs := admissionObservation(t, "sentiment-wire", ensemble.ConfidenceInterval{})
	if err := gate.Admit(context.Background(), obs); err != nil {
		t.Fatalf("Dead signals are admitted for audit, got %v", err)
	}

	stored, err := reg.Get(context.Background(), "signals/rates/state")
	if err != nil {
		t.Fatalf("Expected stored dead signal, got %v", err)
	}
	if !stored.IsDead() {
		t.Error("Expected stored observation to remain a dead signal")
	}
}

func TestAdmitBatchStopsAtFirstRejection(t *testing.T) {
	gate, _ := testGate(t)

	good := admissionObservation(t, "rates-desk", ensemble.ConfidenceInterval{Lower: 0.2, Upper: 0.8})
	bad := admissionObservation(t, "rogue-feed", ensemble.ConfidenceInterval{Lower: 0.2, Upper: 0.8})

	admitted, err := gate.AdmitBatch(context.Background(), []ensemble.Observation{good, bad, good})
	if err == nil {
		t.Fatal("Expected batch to fail on unknown source")
	}
	if admitted != 1 {
		t.Errorf("Expected 1 admitted before rejection, got %d", admitted)
	}
}
