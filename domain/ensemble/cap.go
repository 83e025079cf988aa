package ensemble

import (
	"fmt"

	"gorecal/domain/core"
)

// DefaultExogenousCap bounds aggregate soft-source influence to 15%
const DefaultExogenousCap = 0.15

// CapEpsilon is the tolerance used when comparing aggregates against the cap
const CapEpsilon = 1e-9

// CapRule is the single authority for the exogenous influence ceiling. Every
// enforcement point (post-mutation, post-decay, post-config-change, ingestion
// admission) calls this one implementation.
type CapRule struct {
	Cap float64
}

// NewCapRule validates the cap synchronously; a cap outside [0,1] is a
// construction-time configuration error.
func NewCapRule(cap float64) (CapRule, error) {
	if cap < 0 || cap > 1 {
		return CapRule{}, fmt.Errorf("%w: %g", core.ErrInvalidCap, cap)
	}
	return CapRule{Cap: cap}, nil
}

// ExceedsThreshold reports whether the vector's exogenous aggregate breaches the cap
func (r CapRule) ExceedsThreshold(v *WeightVector) bool {
	return v.ExogenousSum() > r.Cap+CapEpsilon
}

// Enforce scales exogenous weights down proportionally to exactly hit the cap and
// redistributes the freed weight to endogenous sources proportional to their current
// share. Idempotent: a compliant vector is left untouched. Returns whether the
// vector was rescaled.
func (r CapRule) Enforce(v *WeightVector) bool {
	exoSum := v.ExogenousSum()
	if exoSum <= r.Cap+CapEpsilon {
		return false
	}

	endoSum := 0.0
	for id, w := range v.Weights {
		if v.Classes[id] != ClassExogenous {
			endoSum += w
		}
	}
	// Without an endogenous source the freed weight has nowhere to go; the
	// classification table constructor guarantees this cannot happen.
	if endoSum <= 0 {
		return false
	}

	scale := r.Cap / exoSum
	freed := exoSum - r.Cap
	for id, w := range v.Weights {
		if v.Classes[id] == ClassExogenous {
			v.Weights[id] = w * scale
		} else {
			v.Weights[id] = w + freed*(w/endoSum)
		}
	}
	v.UpdatedAt = core.Now()
	return true
}
