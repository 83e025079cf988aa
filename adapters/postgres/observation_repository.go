package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/ports"

	"github.com/jmoiron/sqlx"
)

// ObservationRepositoryImpl implements ObservationRepository for PostgreSQL
type ObservationRepositoryImpl struct {
	db *sqlx.DB
}

// NewObservationRepository creates a new PostgreSQL observation repository
func NewObservationRepository(db *sqlx.DB) ports.ObservationRepository {
	return &ObservationRepositoryImpl{db: db}
}

// SaveObservation appends one observation; history at a path is kept
func (r *ObservationRepositoryImpl) SaveObservation(ctx context.Context, obs ensemble.Observation) error {
	valueJSON, err := json.Marshal(obs.Value)
	if err != nil {
		return fmt.Errorf("failed to serialize observation value: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO observations (
			path, value, kind, source_id, model_id, regime_id,
			confidence_lower, confidence_upper, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		obs.Path, valueJSON, string(obs.Kind), obs.SourceID.String(), obs.ModelID.String(), obs.RegimeID.String(),
		obs.Confidence.Lower, obs.Confidence.Upper, obs.Timestamp.Time())
	if err != nil {
		return fmt.Errorf("failed to save observation at %s: %w", obs.Path, err)
	}
	return nil
}

// LatestByPath returns the newest observation at a path
func (r *ObservationRepositoryImpl) LatestByPath(ctx context.Context, path string) (*ensemble.Observation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT path, value, kind, source_id, model_id, regime_id,
			   confidence_lower, confidence_upper, observed_at
		FROM observations
		WHERE path = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT 1`, path)

	obs, err := scanObservation(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("failed to get observation at %s: %w", path, err)
	}
	return obs, nil
}

// ListByPath returns observations at a path, newest first
func (r *ObservationRepositoryImpl) ListByPath(ctx context.Context, path string, limit int) ([]ensemble.Observation, error) {
	query := `
		SELECT path, value, kind, source_id, model_id, regime_id,
			   confidence_lower, confidence_upper, observed_at
		FROM observations
		WHERE path = $1
		ORDER BY observed_at DESC, id DESC`

	args := []interface{}{path}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations at %s: %w", path, err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// ListBySource returns observations from one source, newest first
func (r *ObservationRepositoryImpl) ListBySource(ctx context.Context, source core.SourceID, limit int) ([]ensemble.Observation, error) {
	query := `
		SELECT path, value, kind, source_id, model_id, regime_id,
			   confidence_lower, confidence_upper, observed_at
		FROM observations
		WHERE source_id = $1
		ORDER BY observed_at DESC, id DESC`

	args := []interface{}{source.String()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations for source %s: %w", source, err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// LatestPerPath returns the newest observation for every known path
func (r *ObservationRepositoryImpl) LatestPerPath(ctx context.Context) (map[string]ensemble.Observation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (path)
			   path, value, kind, source_id, model_id, regime_id,
			   confidence_lower, confidence_upper, observed_at
		FROM observations
		ORDER BY path, observed_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest observations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ensemble.Observation)
	for rows.Next() {
		obs, err := scanObservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out[obs.Path] = *obs
	}
	return out, rows.Err()
}

// collectObservations drains a result set
func collectObservations(rows *sql.Rows) ([]ensemble.Observation, error) {
	var out []ensemble.Observation
	for rows.Next() {
		obs, err := scanObservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *obs)
	}
	return out, rows.Err()
}

// scanObservation maps one row into an Observation. Values come back as the
// generic JSON shapes (maps and []interface{}), which the payload extraction
// layer sniffs the same way it does for live producers.
func scanObservation(scan func(dest ...interface{}) error) (*ensemble.Observation, error) {
	var obs ensemble.Observation
	var kind, sourceID, modelID, regimeID string
	var valueJSON []byte
	var observedAt time.Time

	err := scan(&obs.Path, &valueJSON, &kind, &sourceID, &modelID, &regimeID,
		&obs.Confidence.Lower, &obs.Confidence.Upper, &observedAt)
	if err != nil {
		return nil, err
	}

	obs.Kind = ensemble.PayloadKind(kind)
	obs.SourceID = core.SourceID(sourceID)
	obs.ModelID = core.ModelID(modelID)
	obs.RegimeID = core.RegimeID(regimeID)
	obs.Timestamp = core.NewTimestamp(observedAt)
	if len(valueJSON) > 0 {
		if err := json.Unmarshal(valueJSON, &obs.Value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal observation value: %w", err)
		}
	}
	return &obs, nil
}
