package spd

import (
	"fmt"
	"math"

	"gorecal/domain/core"

	"gonum.org/v1/gonum/mat"
)

// minEigenvalue is the positivity floor below which a matrix is treated as non-SPD
const minEigenvalue = 1e-12

// MatrixLog computes the principal matrix logarithm of a packed SPD matrix via
// eigendecomposition: A = QΛQᵀ ⇒ log A = Q log(Λ) Qᵀ. Returns the full row-major
// n×n result. Fails on non-positive eigenvalues or eigensolver non-convergence.
func MatrixLog(packed []float64, n int) ([]float64, error) {
	sym, err := ToSym(packed, n)
	if err != nil {
		return nil, err
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("eigendecomposition did not converge")
	}

	vals := es.Values(nil)
	logVals := make([]float64, n)
	for i, v := range vals {
		if v <= minEigenvalue {
			return nil, fmt.Errorf("%w: eigenvalue %g at index %d", core.ErrNotPositive, v, i)
		}
		logVals[i] = math.Log(v)
	}

	var q mat.Dense
	es.VectorsTo(&q)

	logLam := mat.NewDiagDense(n, logVals)
	var tmp, out mat.Dense
	tmp.Mul(&q, logLam)
	out.Mul(&tmp, q.T())

	full := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			full[i*n+j] = out.At(i, j)
		}
	}
	return full, nil
}
