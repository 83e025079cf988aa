package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"gorecal/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createSealedEntriesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create sealed_entries table")
	}

	if err := r.createForensicSnapshotsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create forensic_snapshots table")
	}

	if err := r.createWeightMutationsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create weight_mutations table")
	}

	if err := r.createObservationsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create observations table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	if err := r.checkChainContinuity(ctx, db); err != nil {
		return errors.Wrap(err, "failed to check chain continuity")
	}

	return nil
}

// createSealedEntriesTable creates the append-only audit chain table.
// idx is the chain position; appends are guarded by the repository so the
// sequence stays dense and ordered.
func (r *MigrationRunner) createSealedEntriesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sealed_entries (
			idx INTEGER PRIMARY KEY,
			hash VARCHAR(64) UNIQUE NOT NULL,
			previous_hash VARCHAR(64) NOT NULL DEFAULT '',
			sealed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			nonce VARCHAR(32) NOT NULL,
			decision JSONB NOT NULL,
			snapshot_id VARCHAR(64) NOT NULL,
			snapshot_fields JSONB NOT NULL,
			merkle_root VARCHAR(64) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createForensicSnapshotsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS forensic_snapshots (
			id VARCHAR(64) PRIMARY KEY,
			captured_at TIMESTAMP WITH TIME ZONE NOT NULL,
			decision_id TEXT NOT NULL,
			registry JSONB NOT NULL,
			weights_endogenous JSONB,
			weights_exogenous JSONB,
			derived_matrices JSONB,
			dominant_regime VARCHAR(100),
			contributing_models JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createWeightMutationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS weight_mutations (
			id VARCHAR(64) PRIMARY KEY,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			prediction_id VARCHAR(64) NOT NULL,
			outcome JSONB NOT NULL,
			attributions JSONB,
			adjustments JSONB,
			aggregate_reduction DOUBLE PRECISION DEFAULT 0,
			z_score DOUBLE PRECISION DEFAULT 0,
			noise_probability DOUBLE PRECISION DEFAULT 0,
			cap_applied BOOLEAN DEFAULT false
		)
	`)
	return err
}

func (r *MigrationRunner) createObservationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS observations (
			id BIGSERIAL PRIMARY KEY,
			path TEXT NOT NULL,
			value JSONB,
			kind VARCHAR(20) NOT NULL DEFAULT 'generic',
			source_id VARCHAR(100) NOT NULL,
			model_id VARCHAR(100),
			regime_id VARCHAR(100),
			confidence_lower DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence_upper DOUBLE PRECISION NOT NULL DEFAULT 0,
			observed_at TIMESTAMP WITH TIME ZONE NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_forensic_snapshots_decision ON forensic_snapshots(decision_id)`,
		`CREATE INDEX IF NOT EXISTS idx_weight_mutations_created ON weight_mutations(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_weight_mutations_prediction ON weight_mutations(prediction_id)`,
		// GIN index backs the adjustments @> containment lookups
		`CREATE INDEX IF NOT EXISTS idx_weight_mutations_adjustments ON weight_mutations USING GIN (adjustments jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_path ON observations(path, observed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_source ON observations(source_id)`,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// checkChainContinuity sanity-checks the persisted chain sequence at boot.
// A gap means history was tampered with at the storage layer; the forensic
// service will refuse to adopt it, so here we only surface the warning early.
func (r *MigrationRunner) checkChainContinuity(ctx context.Context, db *sqlx.DB) error {
	var count int
	var maxIdx sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(idx) FROM sealed_entries`).Scan(&count, &maxIdx); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if !maxIdx.Valid || int(maxIdx.Int64) != count-1 {
		log.Printf("[Migration] WARNING: sealed_entries sequence has gaps (%d rows, max idx %d)", count, maxIdx.Int64)
	}
	return nil
}
