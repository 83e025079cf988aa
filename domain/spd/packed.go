package spd

import (
	"fmt"
	"math"

	"gorecal/domain/core"

	"gonum.org/v1/gonum/mat"
)

// PackedLen returns the element count of the packed upper triangle for an n×n matrix
func PackedLen(n int) int {
	return n * (n + 1) / 2
}

// Index maps (row, col) with row ≤ col into the packed upper-triangular layout
func Index(i, j, n int) int {
	if i > j {
		i, j = j, i
	}
	return i*n - i*(i-1)/2 + (j - i)
}

// Pack converts a raw covariance buffer into the canonical upper-triangular packed form.
// Accepts either a full row-major n×n buffer or an already-packed buffer (returned as a
// copy unchanged). Off-diagonal asymmetry in a full buffer is averaged away.
func Pack(covariance []float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", core.ErrDimensionMismatch, n)
	}
	plen := PackedLen(n)
	if len(covariance) == plen {
		out := make([]float64, plen)
		copy(out, covariance)
		return out, nil
	}
	if len(covariance) != n*n {
		return nil, fmt.Errorf("%w: got %d values, want %d (full) or %d (packed) for n=%d",
			core.ErrDimensionMismatch, len(covariance), n*n, plen, n)
	}
	out := make([]float64, plen)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out[Index(i, j, n)] = (covariance[i*n+j] + covariance[j*n+i]) / 2
		}
	}
	return out, nil
}

// Unpack expands a packed upper triangle into a full row-major n×n buffer
func Unpack(packed []float64, n int) ([]float64, error) {
	if len(packed) != PackedLen(n) {
		return nil, fmt.Errorf("%w: got %d packed values, want %d for n=%d",
			core.ErrDimensionMismatch, len(packed), PackedLen(n), n)
	}
	full := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := packed[Index(i, j, n)]
			full[i*n+j] = v
			full[j*n+i] = v
		}
	}
	return full, nil
}

// ToSym builds a gonum symmetric matrix from a packed upper triangle
func ToSym(packed []float64, n int) (*mat.SymDense, error) {
	full, err := Unpack(packed, n)
	if err != nil {
		return nil, err
	}
	return mat.NewSymDense(n, full), nil
}

// Trace returns the sum of the diagonal of a packed matrix
func Trace(packed []float64, n int) float64 {
	tr := 0.0
	for i := 0; i < n; i++ {
		tr += packed[Index(i, i, n)]
	}
	return tr
}

// Det2 returns the determinant of a packed 2×2 matrix [a, b; b, c]
func Det2(packed []float64) float64 {
	return packed[0]*packed[2] - packed[1]*packed[1]
}

// IsFinite reports whether every packed element is a finite number
func IsFinite(packed []float64) bool {
	for _, v := range packed {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// FrobeniusDiff returns the Frobenius norm of (a - b) over packed upper triangles,
// counting off-diagonal elements twice as in the full symmetric matrix
func FrobeniusDiff(a, b []float64, n int) float64 {
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := a[Index(i, j, n)] - b[Index(i, j, n)]
			if i == j {
				sum += d * d
			} else {
				sum += 2 * d * d
			}
		}
	}
	return math.Sqrt(sum)
}
