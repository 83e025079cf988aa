package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"gorecal/adapters/registry"
	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/outcome"
)

func testMonitor(t *testing.T, maxLive int) (*MonitorService, *registry.MemoryRegistry) {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	config := DefaultMonitorConfig()
	config.MaxLivePredictions = maxLive
	svc, err := NewMonitorService(config, reg)
	if err != nil {
		t.Fatalf("NewMonitorService returned error: %v", err)
	}
	return svc, reg
}

func setMatrixObservation(t *testing.T, reg *registry.MemoryRegistry, path string, packed []float64, dim int) {
	t.Helper()
	obs, err := ensemble.NewObservation(
		path,
		ensemble.MatrixPayload{Matrix: packed, Dim: dim},
		ensemble.PayloadMatrix,
		"rates-desk", "model-a", "calm",
		ensemble.ConfidenceInterval{Lower: 0.2, Upper: 0.8},
	)
	if err != nil {
		t.Fatalf("NewObservation returned error: %v", err)
	}
	if err := reg.Set(context.Background(), obs); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
}

// backdatePrediction rewinds a live record's registration time so horizons
// come due without waiting out the clock
func backdatePrediction(t *testing.T, svc *MonitorService, id core.PredictionID, by time.Duration) {
	t.Helper()
	svc.mu.Lock()
	defer svc.mu.Unlock()
	record, ok := svc.predictions[id]
	if !ok {
		t.Fatalf("Prediction %s is not live", id)
	}
	record.RegisteredAt = core.NewTimestamp(record.RegisteredAt.Time().Add(-by))
}

func TestNewMonitorServiceRejectsBadConfig(t *testing.T) {
	reg := registry.NewMemoryRegistry()

	tests := []struct {
		name   string
		mutate func(*MonitorConfig)
	}{
		{"zero max live", func(c *MonitorConfig) { c.MaxLivePredictions = 0 }},
		{"negative sweep interval", func(c *MonitorConfig) { c.SweepInterval = -time.Second }},
		{"zero sweep concurrency", func(c *MonitorConfig) { c.SweepConcurrency = 0 }},
		{"non-positive threshold", func(c *MonitorConfig) { c.Thresholds = outcome.Thresholds{outcome.HorizonT1: 0} }},
		{"malformed horizon key", func(c *MonitorConfig) { c.Thresholds = outcome.Thresholds{"soon": 0.4} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMonitorConfig()
			tt.mutate(&config)
			if _, err := NewMonitorService(config, reg); err == nil {
				t.Fatal("Expected configuration error, got nil")
			}
		})
	}
}

func TestRegisterPrediction(t *testing.T) {
	svc, _ := testMonitor(t, 100)

	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}
	if record.ID.String() == "" {
		t.Fatal("Expected a generated prediction id")
	}
	if len(record.Horizons) != 3 {
		t.Fatalf("Expected 3 default horizons, got %d", len(record.Horizons))
	}
	if svc.LiveCount() != 1 {
		t.Fatalf("Expected 1 live prediction, got %d", svc.LiveCount())
	}

	got, err := svc.Prediction(record.ID)
	if err != nil {
		t.Fatalf("Prediction returned error: %v", err)
	}
	if got.ID != record.ID {
		t.Fatalf("Expected id %s, got %s", record.ID, got.ID)
	}
}

func TestRegisterPredictionRejectsBadState(t *testing.T) {
	svc, _ := testMonitor(t, 100)

	if _, err := svc.RegisterPrediction(context.Background(), []float64{1, 0}, 2, "model-a", "signals/rates/state", nil); err == nil {
		t.Fatal("Expected error for state buffer with wrong length")
	}
	if _, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "", nil); err == nil {
		t.Fatal("Expected error for empty source path")
	}
	if svc.LiveCount() != 0 {
		t.Fatalf("Expected rejected predictions to stay out of the live set, got %d", svc.LiveCount())
	}
}

func TestPredictionUnknownID(t *testing.T) {
	svc, _ := testMonitor(t, 100)

	_, err := svc.Prediction(core.PredictionID("missing"))
	if err == nil {
		t.Fatal("Expected error for unknown prediction id")
	}
	if !core.IsNotFoundError(err) {
		t.Fatalf("Expected a not-found error, got %v", err)
	}
}

func TestRegisterPredictionEvictsOldestTenth(t *testing.T) {
	svc, _ := testMonitor(t, 20)

	original := make(map[core.PredictionID]bool)
	for i := 0; i < 20; i++ {
		record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
		if err != nil {
			t.Fatalf("RegisterPrediction returned error: %v", err)
		}
		original[record.ID] = true
	}
	if svc.LiveCount() != 20 {
		t.Fatalf("Expected 20 live predictions, got %d", svc.LiveCount())
	}

	newest, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	// 10% of 20 evicted, one admitted
	if svc.LiveCount() != 19 {
		t.Fatalf("Expected 19 live predictions after eviction, got %d", svc.LiveCount())
	}
	if _, err := svc.Prediction(newest.ID); err != nil {
		t.Fatalf("Expected newest prediction to survive eviction: %v", err)
	}

	survivors := 0
	for id := range original {
		if _, err := svc.Prediction(id); err == nil {
			survivors++
		}
	}
	if survivors != 18 {
		t.Fatalf("Expected 18 of the original predictions to survive, got %d", survivors)
	}
}

func TestEvictionFloorIsOne(t *testing.T) {
	svc, _ := testMonitor(t, 5)

	for i := 0; i < 5; i++ {
		if _, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil); err != nil {
			t.Fatalf("RegisterPrediction returned error: %v", err)
		}
	}
	if _, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil); err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}
	if svc.LiveCount() != 5 {
		t.Fatalf("Expected live count to stay at 5 with single eviction, got %d", svc.LiveCount())
	}
}

func TestCaptureState(t *testing.T) {
	svc, reg := testMonitor(t, 100)
	setMatrixObservation(t, reg, "signals/rates/state", []float64{4, 1, 3}, 2)

	packed, err := svc.CaptureState(context.Background(), "signals/rates/state", 2)
	if err != nil {
		t.Fatalf("CaptureState returned error: %v", err)
	}
	want := []float64{4, 1, 3}
	if len(packed) != len(want) {
		t.Fatalf("Expected packed length %d, got %d", len(want), len(packed))
	}
	for i := range want {
		if packed[i] != want[i] {
			t.Fatalf("Expected packed[%d] = %g, got %g", i, want[i], packed[i])
		}
	}
}

func TestCaptureStateMissingPath(t *testing.T) {
	svc, _ := testMonitor(t, 100)

	_, err := svc.CaptureState(context.Background(), "signals/ghost/state", 2)
	if err == nil {
		t.Fatal("Expected error for missing registry path")
	}
	if !core.IsNotFoundError(err) {
		t.Fatalf("Expected a not-found error, got %v", err)
	}
}

func TestCaptureStateDeadSignal(t *testing.T) {
	svc, reg := testMonitor(t, 100)

	obs, err := ensemble.NewObservation(
		"signals/rates/state",
		ensemble.MatrixPayload{Matrix: []float64{4, 1, 3}, Dim: 2},
		ensemble.PayloadMatrix,
		"rates-desk", "model-a", "calm",
		ensemble.ConfidenceInterval{Lower: 0, Upper: 0},
	)
	if err != nil {
		t.Fatalf("NewObservation returned error: %v", err)
	}
	if err := reg.Set(context.Background(), obs); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	_, err = svc.CaptureState(context.Background(), "signals/rates/state", 2)
	if !core.IsDeadSignal(err) {
		t.Fatalf("Expected dead signal error, got %v", err)
	}
}

func TestEvaluateUnknownPredictionIsNil(t *testing.T) {
	svc, _ := testMonitor(t, 100)

	result, err := svc.Evaluate(context.Background(), core.PredictionID("missing"), outcome.HorizonT1, []float64{1, 0, 1})
	if err != nil {
		t.Fatalf("Expected nil error for unknown prediction, got %v", err)
	}
	if result != nil {
		t.Fatalf("Expected nil result for unknown prediction, got %+v", result)
	}
}

func TestEvaluateUnscheduledHorizonIsNil(t *testing.T) {
	svc, _ := testMonitor(t, 100)
	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", []outcome.Horizon{outcome.HorizonT1})
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	result, err := svc.Evaluate(context.Background(), record.ID, outcome.HorizonT30, []float64{1, 0, 1})
	if err != nil {
		t.Fatalf("Expected nil error for unscheduled horizon, got %v", err)
	}
	if result != nil {
		t.Fatalf("Expected nil result for unscheduled horizon, got %+v", result)
	}
}

func TestEvaluateScoresAgainstThreshold(t *testing.T) {
	svc, _ := testMonitor(t, 100)
	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	result, err := svc.Evaluate(context.Background(), record.ID, outcome.HorizonT1, []float64{4, 0, 4})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if result == nil {
		t.Fatal("Expected a scored result")
	}
	if !result.IsFailure {
		t.Fatalf("Expected failure for distance %.4f over threshold %.4f", result.Distance, result.Threshold)
	}
	if result.Threshold != 0.3 {
		t.Fatalf("Expected T+1 threshold 0.3, got %g", result.Threshold)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	svc, _ := testMonitor(t, 100)
	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	first, err := svc.Evaluate(context.Background(), record.ID, outcome.HorizonT1, []float64{4, 0, 4})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	// Re-evaluation with different realized state must return the cached
	// result untouched
	second, err := svc.Evaluate(context.Background(), record.ID, outcome.HorizonT1, []float64{1, 0, 1})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if first != second {
		t.Fatal("Expected the cached result instance on re-evaluation")
	}

	firstBytes, err := core.CanonicalJSON(first)
	if err != nil {
		t.Fatalf("CanonicalJSON returned error: %v", err)
	}
	secondBytes, err := core.CanonicalJSON(second)
	if err != nil {
		t.Fatalf("CanonicalJSON returned error: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Fatalf("Expected byte-identical serialization, got %s vs %s", firstBytes, secondBytes)
	}
}

func TestOutcomeSubscribersRunInRegistrationOrder(t *testing.T) {
	svc, _ := testMonitor(t, 100)
	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	var calls []string
	svc.SubscribeOutcomes(func(result outcome.OutcomeResult) {
		calls = append(calls, "first")
	})
	svc.SubscribeOutcomes(func(result outcome.OutcomeResult) {
		panic("subscriber blew up")
	})
	svc.SubscribeOutcomes(func(result outcome.OutcomeResult) {
		calls = append(calls, "third")
	})

	if _, err := svc.Evaluate(context.Background(), record.ID, outcome.HorizonT1, []float64{4, 0, 4}); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "third" {
		t.Fatalf("Expected [first third] despite the panicking subscriber, got %v", calls)
	}

	// The result must have committed before dispatch
	got, err := svc.Prediction(record.ID)
	if err != nil {
		t.Fatalf("Prediction returned error: %v", err)
	}
	if got.Results[outcome.HorizonT1] == nil {
		t.Fatal("Expected the T+1 result to be recorded despite the panicking subscriber")
	}
}

func TestUnsubscribeOutcomes(t *testing.T) {
	svc, _ := testMonitor(t, 100)
	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	called := 0
	token := svc.SubscribeOutcomes(func(result outcome.OutcomeResult) {
		called++
	})
	svc.UnsubscribeOutcomes(token)
	svc.UnsubscribeOutcomes("unknown-token")

	if _, err := svc.Evaluate(context.Background(), record.ID, outcome.HorizonT1, []float64{4, 0, 4}); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if called != 0 {
		t.Fatalf("Expected unsubscribed callback to stay silent, got %d calls", called)
	}
}

func TestSweepOnceEvaluatesDueHorizons(t *testing.T) {
	svc, reg := testMonitor(t, 100)
	setMatrixObservation(t, reg, "signals/rates/state", []float64{4, 0, 4}, 2)

	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", []outcome.Horizon{outcome.HorizonT1})
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}
	backdatePrediction(t, svc, record.ID, 25*time.Hour)

	evaluated, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if evaluated != 1 {
		t.Fatalf("Expected 1 evaluation, got %d", evaluated)
	}

	got, err := svc.Prediction(record.ID)
	if err != nil {
		t.Fatalf("Prediction returned error: %v", err)
	}
	result := got.Results[outcome.HorizonT1]
	if result == nil {
		t.Fatal("Expected a recorded T+1 result after the sweep")
	}
	if !result.IsFailure {
		t.Fatalf("Expected failure for distance %.4f", result.Distance)
	}

	// Resolved pairs are not re-evaluated
	evaluated, err = svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if evaluated != 0 {
		t.Fatalf("Expected no re-evaluation, got %d", evaluated)
	}
}

func TestSweepEvaluatesManyPairsConcurrently(t *testing.T) {
	svc, reg := testMonitor(t, 100)
	setMatrixObservation(t, reg, "signals/rates/state", []float64{4, 0, 4}, 2)

	for i := 0; i < 9; i++ {
		record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", []outcome.Horizon{outcome.HorizonT1})
		if err != nil {
			t.Fatalf("RegisterPrediction returned error: %v", err)
		}
		backdatePrediction(t, svc, record.ID, 25*time.Hour)
	}

	evaluated, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if evaluated != 9 {
		t.Fatalf("Expected 9 evaluations across the worker pool, got %d", evaluated)
	}
}

func TestSweepNotDueYet(t *testing.T) {
	svc, reg := testMonitor(t, 100)
	setMatrixObservation(t, reg, "signals/rates/state", []float64{4, 0, 4}, 2)

	if _, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil); err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	evaluated, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if evaluated != 0 {
		t.Fatalf("Expected no due horizons, got %d evaluations", evaluated)
	}
}

func TestSweepSkipsDeadSignal(t *testing.T) {
	svc, reg := testMonitor(t, 100)

	obs, err := ensemble.NewObservation(
		"signals/rates/state",
		ensemble.MatrixPayload{Matrix: []float64{4, 0, 4}, Dim: 2},
		ensemble.PayloadMatrix,
		"rates-desk", "model-a", "calm",
		ensemble.ConfidenceInterval{Lower: 0, Upper: 0},
	)
	if err != nil {
		t.Fatalf("NewObservation returned error: %v", err)
	}
	if err := reg.Set(context.Background(), obs); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", []outcome.Horizon{outcome.HorizonT1})
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}
	backdatePrediction(t, svc, record.ID, 25*time.Hour)

	evaluated, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if evaluated != 0 {
		t.Fatalf("Expected dead signal to be excluded, got %d evaluations", evaluated)
	}

	got, err := svc.Prediction(record.ID)
	if err != nil {
		t.Fatalf("Prediction returned error: %v", err)
	}
	if got.Results[outcome.HorizonT1] != nil {
		t.Fatal("Expected no result recorded against a dead signal")
	}
}

func TestSweepSkipsMalformedState(t *testing.T) {
	svc, reg := testMonitor(t, 100)

	obs, err := ensemble.NewObservation(
		"signals/rates/state",
		"not a matrix",
		ensemble.PayloadGeneric,
		"rates-desk", "model-a", "calm",
		ensemble.ConfidenceInterval{Lower: 0.2, Upper: 0.8},
	)
	if err != nil {
		t.Fatalf("NewObservation returned error: %v", err)
	}
	if err := reg.Set(context.Background(), obs); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	record, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", []outcome.Horizon{outcome.HorizonT1})
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}
	backdatePrediction(t, svc, record.ID, 25*time.Hour)

	evaluated, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if evaluated != 0 {
		t.Fatalf("Expected malformed state to be skipped, got %d evaluations", evaluated)
	}
}

func TestLivePredictionsNewestFirst(t *testing.T) {
	svc, _ := testMonitor(t, 100)

	first, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-a", "signals/rates/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}
	backdatePrediction(t, svc, first.ID, time.Hour)
	second, err := svc.RegisterPrediction(context.Background(), []float64{1, 0, 1}, 2, "model-b", "signals/macro/state", nil)
	if err != nil {
		t.Fatalf("RegisterPrediction returned error: %v", err)
	}

	live := svc.LivePredictions()
	if len(live) != 2 {
		t.Fatalf("Expected 2 live predictions, got %d", len(live))
	}
	if live[0].ID != second.ID || live[1].ID != first.ID {
		t.Fatalf("Expected newest first ordering, got [%s %s]", live[0].ID, live[1].ID)
	}
}
