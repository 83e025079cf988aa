package ensemble

import (
	"fmt"

	"gorecal/domain/core"
)

// PayloadKind tags a registry value's shape at write time, eliminating read-time guessing
type PayloadKind string

const (
	PayloadMatrix     PayloadKind = "matrix"
	PayloadCovariance PayloadKind = "covariance"
	PayloadScalar     PayloadKind = "scalar"
	PayloadGeneric    PayloadKind = "generic"
)

// ConfidenceInterval bounds a producer's uncertainty about an observation.
// [0,0] is reserved for dead signals: recorded for audit completeness but
// excluded from weighting and attribution.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Validate rejects inverted intervals
func (ci ConfidenceInterval) Validate() error {
	if ci.Lower > ci.Upper {
		return fmt.Errorf("%w: [%g, %g]", core.ErrInvertedInterval, ci.Lower, ci.Upper)
	}
	return nil
}

// IsDead reports whether the interval marks a dead signal
func (ci ConfidenceInterval) IsDead() bool {
	return ci.Lower == 0 && ci.Upper == 0
}

// Observation is a typed value with full lineage metadata. Immutable once written;
// an update writes a fresh observation at the same path.
type Observation struct {
	Path       string             `json:"path"`
	Value      interface{}        `json:"value"`
	Kind       PayloadKind        `json:"kind"`
	SourceID   core.SourceID      `json:"source_id"`
	ModelID    core.ModelID       `json:"model_id"`
	RegimeID   core.RegimeID      `json:"regime_id"`
	Confidence ConfidenceInterval `json:"confidence"`
	Timestamp  core.Timestamp     `json:"timestamp"`
}

// NewObservation builds a validated observation stamped with the current time
func NewObservation(path string, value interface{}, kind PayloadKind, source core.SourceID, model core.ModelID, regime core.RegimeID, ci ConfidenceInterval) (Observation, error) {
	if path == "" {
		return Observation{}, fmt.Errorf("observation path cannot be empty")
	}
	if source.String() == "" {
		return Observation{}, fmt.Errorf("observation source cannot be empty")
	}
	if err := ci.Validate(); err != nil {
		return Observation{}, err
	}
	if kind == "" {
		kind = PayloadGeneric
	}
	return Observation{
		Path:       path,
		Value:      value,
		Kind:       kind,
		SourceID:   source,
		ModelID:    model,
		RegimeID:   regime,
		Confidence: ci,
		Timestamp:  core.Now(),
	}, nil
}

// IsDead reports whether this observation carries a dead signal
func (o Observation) IsDead() bool {
	return o.Confidence.IsDead()
}
