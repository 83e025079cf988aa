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

// MutationRepositoryImpl implements MutationRepository for PostgreSQL
type MutationRepositoryImpl struct {
	db *sqlx.DB
}

// NewMutationRepository creates a new PostgreSQL mutation repository
func NewMutationRepository(db *sqlx.DB) ports.MutationRepository {
	return &MutationRepositoryImpl{db: db}
}

// SaveMutation persists one immutable mutation event
func (r *MutationRepositoryImpl) SaveMutation(ctx context.Context, event *ensemble.MutationEvent) error {
	outcomeJSON, err := json.Marshal(event.Outcome)
	if err != nil {
		return fmt.Errorf("failed to serialize outcome: %w", err)
	}
	attributionsJSON, _ := json.Marshal(event.Attributions)
	adjustmentsJSON, _ := json.Marshal(event.Adjustments)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO weight_mutations (
			id, created_at, prediction_id, outcome, attributions, adjustments,
			aggregate_reduction, z_score, noise_probability, cap_applied
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID.String(), event.Timestamp.Time(), event.PredictionID.String(),
		outcomeJSON, attributionsJSON, adjustmentsJSON,
		event.AggregateReduction, event.ZScore, event.NoiseProbability, event.CapApplied)
	if err != nil {
		return fmt.Errorf("failed to save mutation %s: %w", event.ID, err)
	}
	return nil
}

// GetMutation retrieves a mutation by id
func (r *MutationRepositoryImpl) GetMutation(ctx context.Context, id core.MutationID) (*ensemble.MutationEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, prediction_id, outcome, attributions, adjustments,
			   aggregate_reduction, z_score, noise_probability, cap_applied
		FROM weight_mutations
		WHERE id = $1`, id.String())

	event, err := scanMutation(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError("mutation", id.String())
		}
		return nil, fmt.Errorf("failed to get mutation %s: %w", id, err)
	}
	return event, nil
}

// ListMutations returns the most recent mutations, newest first
func (r *MutationRepositoryImpl) ListMutations(ctx context.Context, limit int) ([]*ensemble.MutationEvent, error) {
	query := `
		SELECT id, created_at, prediction_id, outcome, attributions, adjustments,
			   aggregate_reduction, z_score, noise_probability, cap_applied
		FROM weight_mutations
		ORDER BY created_at DESC`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	return collectMutations(rows)
}

// ListMutationsBySource returns mutations that adjusted a given source
func (r *MutationRepositoryImpl) ListMutationsBySource(ctx context.Context, source core.SourceID, limit int) ([]*ensemble.MutationEvent, error) {
	query := `
		SELECT id, created_at, prediction_id, outcome, attributions, adjustments,
			   aggregate_reduction, z_score, noise_probability, cap_applied
		FROM weight_mutations
		WHERE adjustments @> $1
		ORDER BY created_at DESC`

	match, _ := json.Marshal([]map[string]string{{"source_id": source.String()}})
	args := []interface{}{match}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations for source %s: %w", source, err)
	}
	defer rows.Close()

	return collectMutations(rows)
}

// CountMutations returns the total number of persisted mutations
func (r *MutationRepositoryImpl) CountMutations(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weight_mutations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return count, nil
}

// collectMutations drains a result set into mutation events
func collectMutations(rows *sql.Rows) ([]*ensemble.MutationEvent, error) {
	var events []*ensemble.MutationEvent
	for rows.Next() {
		event, err := scanMutation(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// scanMutation maps one row into a MutationEvent
func scanMutation(scan func(dest ...interface{}) error) (*ensemble.MutationEvent, error) {
	var event ensemble.MutationEvent
	var id, predictionID string
	var createdAt time.Time
	var outcomeJSON, attributionsJSON, adjustmentsJSON []byte

	err := scan(&id, &createdAt, &predictionID, &outcomeJSON, &attributionsJSON, &adjustmentsJSON,
		&event.AggregateReduction, &event.ZScore, &event.NoiseProbability, &event.CapApplied)
	if err != nil {
		return nil, err
	}

	event.ID = core.MutationID(id)
	event.Timestamp = core.NewTimestamp(createdAt)
	event.PredictionID = core.PredictionID(predictionID)
	if err := json.Unmarshal(outcomeJSON, &event.Outcome); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	json.Unmarshal(attributionsJSON, &event.Attributions)
	json.Unmarshal(adjustmentsJSON, &event.Adjustments)

	return &event, nil
}
