package ports

import (
	"context"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
)

// ObservationRepository defines durable storage for registry observations,
// used for replay after restart and for historical queries
type ObservationRepository interface {
	// SaveObservation appends one observation; history at a path is kept
	SaveObservation(ctx context.Context, obs ensemble.Observation) error

	// LatestByPath returns the newest observation at a path
	LatestByPath(ctx context.Context, path string) (*ensemble.Observation, error)

	// ListByPath returns observations at a path, newest first
	ListByPath(ctx context.Context, path string, limit int) ([]ensemble.Observation, error)

	// ListBySource returns observations from one source, newest first
	ListBySource(ctx context.Context, source core.SourceID, limit int) ([]ensemble.Observation, error)

	// LatestPerPath returns the newest observation for every known path
	LatestPerPath(ctx context.Context) (map[string]ensemble.Observation, error)
}
