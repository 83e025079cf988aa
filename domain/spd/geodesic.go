package spd

import (
	"errors"
	"math"

	"gorecal/domain/core"
)

// SentinelDistance is the degraded score reported when an input is not usable as an
// SPD matrix. Evaluation never fails outright on bad state; it reports this instead.
const SentinelDistance = 1e6

// GeodesicDistance computes a curvature-aware distance between two packed SPD matrices
// of dimension n. For 2×2 inputs it uses an exact closed form over log-determinant and
// log-trace ratios; for larger dimensions it takes the log-Euclidean path
// ‖log A − log B‖_F, falling back to the raw Frobenius distance when the eigensolver
// does not converge. Non-SPD input degrades to SentinelDistance; this function never
// returns an error.
func GeodesicDistance(a, b []float64, n int) float64 {
	if n <= 0 {
		return SentinelDistance
	}
	plen := PackedLen(n)
	if len(a) != plen || len(b) != plen {
		return SentinelDistance
	}
	if !IsFinite(a) || !IsFinite(b) {
		return SentinelDistance
	}
	if n == 2 {
		return geodesic2x2(a, b)
	}
	return geodesicGeneral(a, b, n)
}

// geodesic2x2 is the exact closed form for 2×2 SPD matrices. A 2×2 symmetric matrix is
// positive definite iff its determinant and trace are both positive.
func geodesic2x2(a, b []float64) float64 {
	detA, detB := Det2(a), Det2(b)
	trA, trB := a[0]+a[2], b[0]+b[2]
	if detA <= 0 || detB <= 0 || trA <= 0 || trB <= 0 {
		return SentinelDistance
	}
	dDet := math.Log(detA) - math.Log(detB)
	dTr := math.Log(trA) - math.Log(trB)
	return math.Sqrt(dDet*dDet + dTr*dTr)
}

func geodesicGeneral(a, b []float64, n int) float64 {
	logA, errA := MatrixLog(a, n)
	logB, errB := MatrixLog(b, n)
	if errA != nil || errB != nil {
		if errors.Is(errA, core.ErrNotPositive) || errors.Is(errB, core.ErrNotPositive) {
			return SentinelDistance
		}
		// Eigensolver convergence failure: degrade to the raw Frobenius distance
		return FrobeniusDiff(a, b, n)
	}
	sum := 0.0
	for i := range logA {
		d := logA[i] - logB[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
