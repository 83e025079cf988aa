package core

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON serializes v into RFC 8785 canonical form. Identical values
// always produce byte-identical output regardless of map ordering or how the
// value was previously decoded, which is what every hashing surface and the
// idempotent evaluation cache rely on.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize value: %w", err)
	}
	return out, nil
}
