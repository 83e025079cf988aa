package forensic

import (
	"fmt"
	"sort"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
)

// ForensicSnapshot is a complete point-in-time dump of system state captured at
// a decision. Immutable; referenced by exactly one SealedEntry.
type ForensicSnapshot struct {
	ID                 core.SnapshotID                 `json:"id"`
	Timestamp          core.Timestamp                  `json:"timestamp"`
	DecisionID         string                          `json:"decision_id"`
	Registry           map[string]ensemble.Observation `json:"registry"`
	WeightsEndogenous  map[core.SourceID]float64       `json:"weights_endogenous"`
	WeightsExogenous   map[core.SourceID]float64       `json:"weights_exogenous"`
	DerivedMatrices    map[string][]float64            `json:"derived_matrices"`
	DominantRegime     core.RegimeID                   `json:"dominant_regime"`
	ContributingModels []core.ModelID                  `json:"contributing_models"`
}

// NewSnapshot assembles a snapshot from a registry dump and the current weight
// vector. Registry paths are classified into endogenous/exogenous audit buckets
// through the table; matrix-shaped payloads are lifted into DerivedMatrices; the
// dominant regime is the most frequent regime tag among live observations.
func NewSnapshot(decisionID string, dump map[string]ensemble.Observation, weights *ensemble.WeightVector, table *ensemble.ClassificationTable) *ForensicSnapshot {
	endo, exo := weights.SplitByClass()

	derived := make(map[string][]float64)
	regimeCounts := make(map[core.RegimeID]int)
	modelSet := make(map[core.ModelID]bool)
	for path, obs := range dump {
		if obs.RegimeID.String() != "" {
			regimeCounts[obs.RegimeID]++
		}
		if obs.ModelID.String() != "" {
			modelSet[obs.ModelID] = true
		}
		switch obs.Kind {
		case ensemble.PayloadMatrix:
			if p, ok := obs.Value.(ensemble.MatrixPayload); ok {
				derived[path] = append([]float64(nil), p.Matrix...)
			}
		case ensemble.PayloadCovariance:
			if p, ok := obs.Value.(ensemble.CovariancePayload); ok {
				derived[path] = append([]float64(nil), p.Covariance...)
			}
		}
	}

	dominant := core.RegimeID("")
	best := 0
	for regime, count := range regimeCounts {
		if count > best || (count == best && regime < dominant) || dominant == "" {
			dominant = regime
			best = count
		}
	}

	models := make([]core.ModelID, 0, len(modelSet))
	for m := range modelSet {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i] < models[j] })

	return &ForensicSnapshot{
		ID:                 core.SnapshotID(core.NewID()),
		Timestamp:          core.Now(),
		DecisionID:         decisionID,
		Registry:           dump,
		WeightsEndogenous:  endo,
		WeightsExogenous:   exo,
		DerivedMatrices:    derived,
		DominantRegime:     dominant,
		ContributingModels: models,
	}
}

// Fields flattens the snapshot into the path→value map the merkle tree is built
// over. Flattening is deterministic: registry observations under "registry/",
// weights under "weights/<class>/<source>", derived matrices under "derived/",
// plus the regime and model summary slots.
func (s *ForensicSnapshot) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, len(s.Registry)+len(s.WeightsEndogenous)+len(s.WeightsExogenous)+len(s.DerivedMatrices)+2)
	for path, obs := range s.Registry {
		fields["registry/"+path] = obs
	}
	for id, w := range s.WeightsEndogenous {
		fields["weights/endogenous/"+id.String()] = w
	}
	for id, w := range s.WeightsExogenous {
		fields["weights/exogenous/"+id.String()] = w
	}
	for path, m := range s.DerivedMatrices {
		fields["derived/"+path] = m
	}
	fields["regime/dominant"] = s.DominantRegime.String()
	models := make([]string, len(s.ContributingModels))
	for i, m := range s.ContributingModels {
		models[i] = m.String()
	}
	fields["models/contributing"] = models
	return fields
}

// FieldCount returns the number of sealed fields
func (s *ForensicSnapshot) FieldCount() int {
	return len(s.Fields())
}

// Describe returns a short human-readable summary for logs
func (s *ForensicSnapshot) Describe() string {
	return fmt.Sprintf("snapshot %s: %d registry paths, %d derived matrices, regime %s",
		s.ID, len(s.Registry), len(s.DerivedMatrices), s.DominantRegime)
}
