package app

import (
	"context"
	"fmt"
	"log"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/ports"
)

// AdmissionGate is the single entry point for producer observations. Source ids
// must come from the closed classification table; unknown producers are
// rejected here, before anything reaches the registry.
type AdmissionGate struct {
	table    *ensemble.ClassificationTable
	registry ports.RegistryPort
}

// NewAdmissionGate creates the observation admission gate
func NewAdmissionGate(table *ensemble.ClassificationTable, registry ports.RegistryPort) (*AdmissionGate, error) {
	if table == nil {
		return nil, fmt.Errorf("admission gate requires a classification table")
	}
	if registry == nil {
		return nil, fmt.Errorf("admission gate requires a registry")
	}
	return &AdmissionGate{table: table, registry: registry}, nil
}

// Admit validates and commits one observation. Dead signals are admitted and
// recorded; attribution-side exclusion happens downstream.
func (g *AdmissionGate) Admit(ctx context.Context, obs ensemble.Observation) error {
	if !g.table.IsKnown(obs.SourceID) {
		return fmt.Errorf("%w: source %s not in classification table", core.ErrSourceNotFound, obs.SourceID)
	}
	if err := g.registry.Set(ctx, obs); err != nil {
		return fmt.Errorf("failed to admit observation at %s: %w", obs.Path, err)
	}
	if obs.IsDead() {
		log.Printf("[Admission] Dead signal admitted at %s from %s", obs.Path, obs.SourceID)
	}
	return nil
}

// AdmitBatch admits observations in order, stopping at the first rejection.
// Returns how many were committed.
func (g *AdmissionGate) AdmitBatch(ctx context.Context, observations []ensemble.Observation) (int, error) {
	for i, obs := range observations {
		if err := g.Admit(ctx, obs); err != nil {
			return i, err
		}
	}
	return len(observations), nil
}
