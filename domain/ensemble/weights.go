package ensemble

import (
	"sort"

	"gorecal/domain/core"
)

// WeightVector maps every known source to its current influence weight.
// Invariants: weights sum to 1.0 (±ε) and the aggregate exogenous share stays
// under the configured cap (see CapRule).
type WeightVector struct {
	Weights   map[core.SourceID]float64     `json:"weights"`
	Classes   map[core.SourceID]SourceClass `json:"classes"`
	UpdatedAt core.Timestamp                `json:"updated_at"`
}

// NewUniformWeights spreads weight evenly across every source in the table
func NewUniformWeights(table *ClassificationTable) *WeightVector {
	classes := table.Classes()
	weights := make(map[core.SourceID]float64, len(classes))
	share := 1.0 / float64(len(classes))
	for id := range classes {
		weights[id] = share
	}
	return &WeightVector{
		Weights:   weights,
		Classes:   classes,
		UpdatedAt: core.Now(),
	}
}

// Clone returns a deep copy
func (v *WeightVector) Clone() *WeightVector {
	weights := make(map[core.SourceID]float64, len(v.Weights))
	for id, w := range v.Weights {
		weights[id] = w
	}
	classes := make(map[core.SourceID]SourceClass, len(v.Classes))
	for id, c := range v.Classes {
		classes[id] = c
	}
	return &WeightVector{Weights: weights, Classes: classes, UpdatedAt: v.UpdatedAt}
}

// Sum returns the total weight across all sources
func (v *WeightVector) Sum() float64 {
	total := 0.0
	for _, w := range v.Weights {
		total += w
	}
	return total
}

// ClassSum returns the aggregate weight of one class
func (v *WeightVector) ClassSum(class SourceClass) float64 {
	total := 0.0
	for id, w := range v.Weights {
		if v.Classes[id] == class {
			total += w
		}
	}
	return total
}

// ExogenousSum returns the aggregate soft-source weight
func (v *WeightVector) ExogenousSum() float64 {
	return v.ClassSum(ClassExogenous)
}

// Normalize rescales weights in place so they sum to 1.0. A zero-sum vector
// resets to uniform rather than dividing by zero.
func (v *WeightVector) Normalize() {
	total := v.Sum()
	if total <= 0 {
		share := 1.0 / float64(len(v.Weights))
		for id := range v.Weights {
			v.Weights[id] = share
		}
		v.UpdatedAt = core.Now()
		return
	}
	for id, w := range v.Weights {
		v.Weights[id] = w / total
	}
	v.UpdatedAt = core.Now()
}

// SplitByClass returns separate endogenous and exogenous weight maps
func (v *WeightVector) SplitByClass() (endogenous, exogenous map[core.SourceID]float64) {
	endogenous = make(map[core.SourceID]float64)
	exogenous = make(map[core.SourceID]float64)
	for id, w := range v.Weights {
		if v.Classes[id] == ClassExogenous {
			exogenous[id] = w
		} else {
			endogenous[id] = w
		}
	}
	return endogenous, exogenous
}

// SourceIDs returns the vector's sources in sorted order
func (v *WeightVector) SourceIDs() []core.SourceID {
	ids := make([]core.SourceID, 0, len(v.Weights))
	for id := range v.Weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get returns the weight for a source, zero if unknown
func (v *WeightVector) Get(id core.SourceID) float64 {
	return v.Weights[id]
}
