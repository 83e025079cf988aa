package registry

import (
	"context"
	"fmt"
	"log"
	"sync"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/ports"
)

// subscriber pairs a callback with its removal token
type subscriber struct {
	token ports.SubscriptionToken
	cb    ports.ChangeCallback
}

// MemoryRegistry implements RegistryPort as the in-process observation bus.
// Observations are stored by value, so readers never see a producer's later
// mutations. Change callbacks run synchronously on the writing goroutine:
// path subscribers first, then global subscribers, each list in registration
// order. A panicking callback is isolated and logged, never propagated.
type MemoryRegistry struct {
	mu          sync.RWMutex
	values      map[string]ensemble.Observation
	subscribers map[string][]subscriber
	tokenPaths  map[ports.SubscriptionToken]string
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		values:      make(map[string]ensemble.Observation),
		subscribers: make(map[string][]subscriber),
		tokenPaths:  make(map[ports.SubscriptionToken]string),
	}
}

// Set commits an observation at its path and notifies subscribers
func (r *MemoryRegistry) Set(ctx context.Context, obs ensemble.Observation) error {
	if obs.Path == "" {
		return fmt.Errorf("cannot store observation with empty path")
	}

	r.mu.Lock()
	r.values[obs.Path] = obs
	// Snapshot the callback lists so notification runs without the lock;
	// a callback may read the registry or write another path.
	targets := make([]subscriber, 0, len(r.subscribers[obs.Path])+len(r.subscribers[ports.GlobalPath]))
	targets = append(targets, r.subscribers[obs.Path]...)
	targets = append(targets, r.subscribers[ports.GlobalPath]...)
	r.mu.Unlock()

	for _, sub := range targets {
		r.notify(sub, obs)
	}
	return nil
}

// notify invokes one callback with panic isolation
func (r *MemoryRegistry) notify(sub subscriber, obs ensemble.Observation) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Registry] ERROR: Panic in subscriber %s for path %s: %v", sub.token, obs.Path, rec)
		}
	}()
	sub.cb(obs.Path, obs)
}

// Get returns the current observation at a path
func (r *MemoryRegistry) Get(ctx context.Context, path string) (*ensemble.Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obs, ok := r.values[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPathNotFound, path)
	}
	return &obs, nil
}

// Delete removes a path; deleting an absent path is a no-op
func (r *MemoryRegistry) Delete(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, path)
	return nil
}

// Dump returns a copy of every live observation keyed by path
func (r *MemoryRegistry) Dump(ctx context.Context) (map[string]ensemble.Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ensemble.Observation, len(r.values))
	for path, obs := range r.values {
		out[path] = obs
	}
	return out, nil
}

// Subscribe registers a callback for one path (or GlobalPath) and returns a token
func (r *MemoryRegistry) Subscribe(path string, cb ports.ChangeCallback) ports.SubscriptionToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := ports.SubscriptionToken(core.NewID().String())
	r.subscribers[path] = append(r.subscribers[path], subscriber{token: token, cb: cb})
	r.tokenPaths[token] = path
	return token
}

// Unsubscribe removes a callback; unknown tokens are a no-op
func (r *MemoryRegistry) Unsubscribe(token ports.SubscriptionToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, ok := r.tokenPaths[token]
	if !ok {
		return
	}
	delete(r.tokenPaths, token)

	subs := r.subscribers[path]
	for i, sub := range subs {
		if sub.token == token {
			r.subscribers[path] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subscribers[path]) == 0 {
		delete(r.subscribers, path)
	}
}

// Len returns the number of live paths
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}
