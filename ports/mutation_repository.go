package ports

import (
	"context"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
)

// MutationRepository defines persistence for weight mutation events
type MutationRepository interface {
	// SaveMutation persists one immutable mutation event
	SaveMutation(ctx context.Context, event *ensemble.MutationEvent) error

	// GetMutation retrieves a mutation by id
	GetMutation(ctx context.Context, id core.MutationID) (*ensemble.MutationEvent, error)

	// ListMutations returns the most recent mutations, newest first
	ListMutations(ctx context.Context, limit int) ([]*ensemble.MutationEvent, error)

	// ListMutationsBySource returns mutations that adjusted a given source
	ListMutationsBySource(ctx context.Context, source core.SourceID, limit int) ([]*ensemble.MutationEvent, error)

	// CountMutations returns the total number of persisted mutations
	CountMutations(ctx context.Context) (int, error)
}
