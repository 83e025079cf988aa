package ensemble

import (
	"fmt"

	"gorecal/domain/core"
	"gorecal/domain/spd"
)

// MatrixPayload is a write-time-tagged packed state matrix
type MatrixPayload struct {
	Matrix []float64 `json:"matrix"`
	Dim    int       `json:"dim"`
}

// CovariancePayload carries a raw covariance buffer that still needs canonical packing
type CovariancePayload struct {
	Covariance []float64 `json:"covariance"`
	Dim        int       `json:"dim"`
}

// ExtractStateMatrix pulls a packed SPD matrix of dimension n out of an observation.
// Tagged payloads are decoded directly from their kind. Untagged (generic) payloads keep
// the legacy sniffing order for producers that have not migrated: a raw numeric array,
// then a {matrix}-shaped map, then a {covariance}-shaped map requiring conversion.
func ExtractStateMatrix(obs Observation, n int) ([]float64, error) {
	switch obs.Kind {
	case PayloadMatrix:
		if p, ok := obs.Value.(MatrixPayload); ok {
			return spd.Pack(p.Matrix, n)
		}
		if m, ok := asMap(obs.Value); ok {
			if buf, ok := numericSlice(m["matrix"]); ok {
				return spd.Pack(buf, n)
			}
		}
		return nil, core.NewMalformedStateError(obs.Path, fmt.Errorf("matrix-tagged payload has no matrix field"))
	case PayloadCovariance:
		if p, ok := obs.Value.(CovariancePayload); ok {
			return spd.Pack(p.Covariance, n)
		}
		if m, ok := asMap(obs.Value); ok {
			if buf, ok := numericSlice(m["covariance"]); ok {
				return spd.Pack(buf, n)
			}
		}
		return nil, core.NewMalformedStateError(obs.Path, fmt.Errorf("covariance-tagged payload has no covariance field"))
	case PayloadScalar:
		return nil, core.NewMalformedStateError(obs.Path, fmt.Errorf("scalar payload holds no matrix"))
	default:
		return sniffStateMatrix(obs, n)
	}
}

// sniffStateMatrix is the legacy duck-typed extraction for untagged payloads
func sniffStateMatrix(obs Observation, n int) ([]float64, error) {
	if buf, ok := numericSlice(obs.Value); ok {
		return spd.Pack(buf, n)
	}
	if m, ok := asMap(obs.Value); ok {
		if buf, ok := numericSlice(m["matrix"]); ok {
			return spd.Pack(buf, n)
		}
		if buf, ok := numericSlice(m["covariance"]); ok {
			return spd.Pack(buf, n)
		}
	}
	return nil, core.NewMalformedStateError(obs.Path, fmt.Errorf("value shape %T", obs.Value))
}

// Magnitude reduces an observation's value to a scalar for history/variance tracking.
// Scalars report their value; matrix shapes report their trace. Returns false for
// shapes with no numeric reduction.
func Magnitude(obs Observation) (float64, bool) {
	switch obs.Kind {
	case PayloadScalar:
		if v, ok := asFloat(obs.Value); ok {
			return v, true
		}
	case PayloadMatrix:
		if p, ok := obs.Value.(MatrixPayload); ok && p.Dim > 0 && len(p.Matrix) == spd.PackedLen(p.Dim) {
			return spd.Trace(p.Matrix, p.Dim), true
		}
	case PayloadCovariance:
		if p, ok := obs.Value.(CovariancePayload); ok && p.Dim > 0 {
			if packed, err := spd.Pack(p.Covariance, p.Dim); err == nil {
				return spd.Trace(packed, p.Dim), true
			}
		}
	default:
		if v, ok := asFloat(obs.Value); ok {
			return v, true
		}
	}
	return 0, false
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// numericSlice coerces []float64 or a JSON-decoded []interface{} of numbers
func numericSlice(v interface{}) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, len(s) > 0
	case []interface{}:
		if len(s) == 0 {
			return nil, false
		}
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}
