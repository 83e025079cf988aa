package ensemble

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"gorecal/domain/core"
)

// Cap enforcement must hold for arbitrary weight mixes, not just the
// hand-picked vectors in cap_test.go.
func TestCapEnforcementProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	buildVector := func(endoSeed float64, endoRaw, exoRaw []float64) *WeightVector {
		classes := map[core.SourceID]SourceClass{}
		weights := map[core.SourceID]float64{}
		add := func(id core.SourceID, class SourceClass, w float64) {
			classes[id] = class
			weights[id] = w
		}
		add("endo-0", ClassEndogenous, endoSeed)
		for i, w := range endoRaw {
			add(core.SourceID(fmt.Sprintf("endo-%d", i+1)), ClassEndogenous, w)
		}
		for i, w := range exoRaw {
			add(core.SourceID(fmt.Sprintf("exo-%d", i)), ClassExogenous, w)
		}
		table, err := NewClassificationTable(classes)
		if err != nil {
			t.Fatalf("failed to build table: %v", err)
		}
		v := &WeightVector{Weights: weights, Classes: table.Classes()}
		v.Normalize()
		return v
	}

	rawWeights := gen.SliceOfN(3, gen.Float64Range(0.0001, 100.0))

	properties.Property("exogenous aggregate never exceeds cap after enforcement", prop.ForAll(
		func(endoSeed float64, endoRaw, exoRaw []float64) bool {
			v := buildVector(endoSeed, endoRaw, exoRaw)
			rule, err := NewCapRule(0.15)
			if err != nil {
				return false
			}
			rule.Enforce(v)
			return v.ExogenousSum() <= 0.15+CapEpsilon
		},
		gen.Float64Range(0.0001, 100.0),
		rawWeights,
		rawWeights,
	))

	properties.Property("total weight stays 1 after enforcement", prop.ForAll(
		func(endoSeed float64, endoRaw, exoRaw []float64) bool {
			v := buildVector(endoSeed, endoRaw, exoRaw)
			rule, err := NewCapRule(0.15)
			if err != nil {
				return false
			}
			rule.Enforce(v)
			return math.Abs(v.Sum()-1.0) <= 1e-9
		},
		gen.Float64Range(0.0001, 100.0),
		rawWeights,
		rawWeights,
	))

	properties.Property("enforcing twice changes nothing the second time", prop.ForAll(
		func(endoSeed float64, endoRaw, exoRaw []float64) bool {
			v := buildVector(endoSeed, endoRaw, exoRaw)
			rule, err := NewCapRule(0.15)
			if err != nil {
				return false
			}
			rule.Enforce(v)
			return !rule.Enforce(v)
		},
		gen.Float64Range(0.0001, 100.0),
		rawWeights,
		rawWeights,
	))

	properties.TestingRun(t)
}

func TestNormalizeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalized vectors sum to 1", prop.ForAll(
		func(raw []float64) bool {
			weights := map[core.SourceID]float64{}
			classes := map[core.SourceID]SourceClass{}
			for i, w := range raw {
				id := core.SourceID(fmt.Sprintf("src-%d", i))
				weights[id] = w
				classes[id] = ClassEndogenous
			}
			v := &WeightVector{Weights: weights, Classes: classes}
			v.Normalize()
			return math.Abs(v.Sum()-1.0) <= 1e-9
		},
		gen.SliceOfN(5, gen.Float64Range(0.0001, 1000.0)),
	))

	properties.TestingRun(t)
}
