package rng

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gorecal/ports"
)

// SeededAdapter implements RNGPort with deterministic, replayable streams.
// Attribution jitter must be reproducible from the audit trail, so every
// stream is derived purely from its names and the configured base seed.
type SeededAdapter struct {
	baseSeed int64
}

// NewSeededAdapter creates an adapter around one base seed
func NewSeededAdapter(baseSeed int64) ports.RNGPort {
	return &SeededAdapter{baseSeed: baseSeed}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *SeededAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if name != "" {
		seed += int64(hashString(name))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// Stream creates a deterministic RNG stream for one attribution pass.
// The same prediction/source pair under the same base seed replays the
// exact jitter sequence.
func (a *SeededAdapter) Stream(ctx context.Context, predictionID, sourceKey string, baseSeed int64) (*rand.Rand, error) {
	seed := baseSeed
	if seed == 0 {
		seed = a.baseSeed
	}
	if predictionID != "" {
		seed += int64(hashString(predictionID))
	}
	if sourceKey != "" {
		seed += int64(hashString(sourceKey))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// ValidateSeed ensures the seed produces expected deterministic results
func (a *SeededAdapter) ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error {
	stream, err := a.SeededStream(ctx, name, seed)
	if err != nil {
		return err
	}
	for i, want := range expected {
		got := stream.Float64()
		if math.Abs(got-want) > 1e-12 {
			return fmt.Errorf("seed validation failed for %s at draw %d: have %v, want %v", name, i, got, want)
		}
	}
	return nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
