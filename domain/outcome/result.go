package outcome

import (
	"gorecal/domain/core"
	"gorecal/domain/spd"
)

// OutcomeResult is the scored comparison of predicted vs realized state at one
// horizon. Computed once per (prediction, horizon) pair; re-evaluation returns
// the cached result unchanged.
type OutcomeResult struct {
	PredictionID core.PredictionID `json:"prediction_id"`
	Horizon      Horizon           `json:"horizon"`
	Distance     float64           `json:"distance"`
	Threshold    float64           `json:"threshold"`
	IsFailure    bool              `json:"is_failure"`
	EvaluatedAt  core.Timestamp    `json:"evaluated_at"`
}

// Score compares a predicted packed SPD state against the realized one and
// applies the horizon threshold. The distance never errors: non-SPD input
// degrades to the sentinel distance, which always exceeds any sane threshold.
func Score(id core.PredictionID, h Horizon, predicted, actual []float64, dim int, threshold float64) *OutcomeResult {
	distance := spd.GeodesicDistance(predicted, actual, dim)
	return &OutcomeResult{
		PredictionID: id,
		Horizon:      h,
		Distance:     distance,
		Threshold:    threshold,
		IsFailure:    distance > threshold,
		EvaluatedAt:  core.Now(),
	}
}
