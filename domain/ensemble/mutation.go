package ensemble

import (
	"gorecal/domain/core"
	"gorecal/domain/outcome"
)

// WeightAdjustment records one applied weight change
type WeightAdjustment struct {
	SourceID    core.SourceID `json:"source_id"`
	OldWeight   float64       `json:"old_weight"`
	NewWeight   float64       `json:"new_weight"`
	Attribution float64       `json:"attribution"`
}

// MutationEvent is the immutable record of one recalibration decision.
// Append-only: never mutated after creation.
type MutationEvent struct {
	ID                 core.MutationID       `json:"id"`
	Timestamp          core.Timestamp        `json:"timestamp"`
	PredictionID       core.PredictionID     `json:"prediction_id"`
	Outcome            outcome.OutcomeResult `json:"outcome"`
	Attributions       []AttributionScore    `json:"attributions"`
	Adjustments        []WeightAdjustment    `json:"adjustments"`
	AggregateReduction float64               `json:"aggregate_reduction"`
	ZScore             float64               `json:"z_score"`
	NoiseProbability   float64               `json:"noise_probability"`
	CapApplied         bool                  `json:"cap_applied"`
}

// NewMutationEvent stamps a fresh mutation record
func NewMutationEvent(predictionID core.PredictionID, result outcome.OutcomeResult, attributions []AttributionScore, adjustments []WeightAdjustment, zScore, noiseProb float64, capApplied bool) *MutationEvent {
	reduction := 0.0
	for _, adj := range adjustments {
		if adj.OldWeight > adj.NewWeight {
			reduction += adj.OldWeight - adj.NewWeight
		}
	}
	return &MutationEvent{
		ID:                 core.MutationID(core.NewID()),
		Timestamp:          core.Now(),
		PredictionID:       predictionID,
		Outcome:            result,
		Attributions:       attributions,
		Adjustments:        adjustments,
		AggregateReduction: reduction,
		ZScore:             zScore,
		NoiseProbability:   noiseProb,
		CapApplied:         capApplied,
	}
}
