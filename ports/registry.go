package ports

import (
	"context"

	"gorecal/domain/ensemble"
)

// GlobalPath subscribes a callback to every registry write
const GlobalPath = "*"

// SubscriptionToken identifies one registered callback for later removal
type SubscriptionToken string

// ChangeCallback observes a committed registry write. Callbacks run
// synchronously on the writing goroutine in registration order; a panicking
// callback is isolated and never blocks later subscribers or the write itself.
type ChangeCallback func(path string, obs ensemble.Observation)

// RegistryPort is the shared observation bus: the single mutable surface the
// monitor sweeps, the reweighter publishes to, and forensics dumps from.
type RegistryPort interface {
	// Set commits an observation at its path and notifies subscribers
	Set(ctx context.Context, obs ensemble.Observation) error

	// Get returns the current observation at a path
	Get(ctx context.Context, path string) (*ensemble.Observation, error)

	// Delete removes a path; deleting an absent path is a no-op
	Delete(ctx context.Context, path string) error

	// Dump returns a copy of every live observation keyed by path
	Dump(ctx context.Context) (map[string]ensemble.Observation, error)

	// Subscribe registers a callback for one path (or GlobalPath) and returns
	// a token for removal
	Subscribe(path string, cb ChangeCallback) SubscriptionToken

	// Unsubscribe removes a callback; unknown tokens are a no-op
	Unsubscribe(token SubscriptionToken)
}
