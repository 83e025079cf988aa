package ensemble

import (
	"math"
	"sort"

	"gorecal/domain/core"
)

// AttributionJitterScale sizes the stochastic tie-breaking term in raw
// attribution scores
const AttributionJitterScale = 0.01

// AttributionScore ranks one source's share of responsibility for a failure
type AttributionScore struct {
	SourceID core.SourceID `json:"source_id"`
	Score    float64       `json:"score"`
	Variance float64       `json:"variance"`
}

// ComputeAttributions scores each source against a failure of the given distance.
// The raw score combines the outcome distance with the source's historical
// variance plus a small stochastic term from jitter (deterministic under a seeded
// stream); scores are normalized to sum to 1 and returned sorted descending,
// ties broken by source id for stable ranking.
func ComputeAttributions(distance float64, variances map[core.SourceID]float64, jitter func() float64) []AttributionScore {
	if len(variances) == 0 {
		return nil
	}

	scores := make([]AttributionScore, 0, len(variances))
	total := 0.0
	for id, variance := range variances {
		raw := distance*(1+variance) + AttributionJitterScale*jitter()
		if raw < 0 {
			raw = 0
		}
		scores = append(scores, AttributionScore{SourceID: id, Score: raw, Variance: variance})
		total += raw
	}

	if total <= 0 {
		// Degenerate case: spread responsibility uniformly
		share := 1.0 / float64(len(scores))
		for i := range scores {
			scores[i].Score = share
		}
	} else {
		for i := range scores {
			scores[i].Score /= total
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].SourceID < scores[j].SourceID
	})
	return scores
}

// CulpritThreshold is the attribution level above which a source is blamed.
// It tightens as the error grows, surfacing fewer but larger culprits on
// severe failures.
func CulpritThreshold(sourceCount int, distance float64) float64 {
	if sourceCount <= 0 {
		return math.Inf(1)
	}
	uniformShare := 1.0 / float64(sourceCount)
	return (uniformShare * 1.5) / math.Min(2, 1+distance)
}

// SelectCulprits filters attribution scores above the threshold, preserving
// descending order
func SelectCulprits(scores []AttributionScore, threshold float64) []AttributionScore {
	culprits := make([]AttributionScore, 0, len(scores))
	for _, s := range scores {
		if s.Score > threshold {
			culprits = append(culprits, s)
		}
	}
	return culprits
}

// AdjustedWeight applies the learning-rate-bounded penalty for one culprit
func AdjustedWeight(weight, learningRate, attribution, distance, minWeight float64) float64 {
	adjusted := weight * (1 - learningRate*attribution*math.Min(1, distance))
	return math.Max(minWeight, adjusted)
}
