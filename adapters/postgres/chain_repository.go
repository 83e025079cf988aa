package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gorecal/domain/core"
	"gorecal/domain/forensic"
	"gorecal/ports"

	"github.com/jmoiron/sqlx"
)

// ChainRepositoryImpl implements ChainLedgerPort for PostgreSQL
type ChainRepositoryImpl struct {
	db *sqlx.DB
}

// NewChainRepository creates a new PostgreSQL chain repository
func NewChainRepository(db *sqlx.DB) ports.ChainLedgerPort {
	return &ChainRepositoryImpl{db: db}
}

// AppendEntry persists one committed entry. The insert only succeeds when the
// entry's index equals the current chain length, so the table can never hold
// gaps or rewrites even under concurrent writers.
func (r *ChainRepositoryImpl) AppendEntry(ctx context.Context, entry forensic.SealedEntry) error {
	snapshotFieldsJSON, err := json.Marshal(entry.SnapshotFields)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot fields: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sealed_entries (
			idx, hash, previous_hash, sealed_at, nonce,
			decision, snapshot_id, snapshot_fields, merkle_root
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE $1 = (SELECT COUNT(*) FROM sealed_entries)`,
		entry.Index, entry.Hash.String(), entry.PreviousHash.String(), entry.Timestamp.Time(), entry.Nonce,
		[]byte(entry.Decision), entry.SnapshotID.String(), snapshotFieldsJSON, entry.MerkleRoot.String())
	if err != nil {
		return fmt.Errorf("failed to append entry %d: %w", entry.Index, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm append of entry %d: %w", entry.Index, err)
	}
	if affected == 0 {
		return fmt.Errorf("entry %d is out of order with the persisted chain", entry.Index)
	}
	return nil
}

// SaveSnapshot persists the full snapshot an entry was sealed over
func (r *ChainRepositoryImpl) SaveSnapshot(ctx context.Context, snapshot *forensic.ForensicSnapshot) error {
	registryJSON, err := json.Marshal(snapshot.Registry)
	if err != nil {
		return fmt.Errorf("failed to serialize registry dump: %w", err)
	}
	endoJSON, _ := json.Marshal(snapshot.WeightsEndogenous)
	exoJSON, _ := json.Marshal(snapshot.WeightsExogenous)
	derivedJSON, _ := json.Marshal(snapshot.DerivedMatrices)
	modelsJSON, _ := json.Marshal(snapshot.ContributingModels)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO forensic_snapshots (
			id, captured_at, decision_id, registry,
			weights_endogenous, weights_exogenous, derived_matrices,
			dominant_regime, contributing_models
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snapshot.ID.String(), snapshot.Timestamp.Time(), snapshot.DecisionID, registryJSON,
		endoJSON, exoJSON, derivedJSON,
		snapshot.DominantRegime.String(), modelsJSON)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// ListEntries returns all sealed entries in index order
func (r *ChainRepositoryImpl) ListEntries(ctx context.Context) ([]forensic.SealedEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT idx, hash, previous_hash, sealed_at, nonce,
			   decision, snapshot_id, snapshot_fields, merkle_root
		FROM sealed_entries
		ORDER BY idx ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []forensic.SealedEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetEntry returns the entry at one index
func (r *ChainRepositoryImpl) GetEntry(ctx context.Context, index int) (*forensic.SealedEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT idx, hash, previous_hash, sealed_at, nonce,
			   decision, snapshot_id, snapshot_fields, merkle_root
		FROM sealed_entries
		WHERE idx = $1`, index)

	entry, err := scanEntry(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: index %d", core.ErrEntryNotFound, index)
		}
		return nil, fmt.Errorf("failed to get entry %d: %w", index, err)
	}
	return entry, nil
}

// scanEntry maps one row into a SealedEntry
func scanEntry(scan func(dest ...interface{}) error) (*forensic.SealedEntry, error) {
	var entry forensic.SealedEntry
	var hash, previousHash, snapshotID, merkleRoot string
	var sealedAt time.Time
	var decisionJSON, snapshotFieldsJSON []byte

	err := scan(&entry.Index, &hash, &previousHash, &sealedAt, &entry.Nonce,
		&decisionJSON, &snapshotID, &snapshotFieldsJSON, &merkleRoot)
	if err != nil {
		return nil, err
	}

	entry.Hash = core.EntryHash(hash)
	entry.PreviousHash = core.EntryHash(previousHash)
	entry.Timestamp = core.NewTimestamp(sealedAt)
	entry.Decision = json.RawMessage(decisionJSON)
	entry.SnapshotID = core.SnapshotID(snapshotID)
	entry.MerkleRoot = core.MerkleRoot(merkleRoot)
	if len(snapshotFieldsJSON) > 0 {
		if err := json.Unmarshal(snapshotFieldsJSON, &entry.SnapshotFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot fields: %w", err)
		}
	}
	return &entry, nil
}

// GetSnapshot returns a persisted snapshot by id
func (r *ChainRepositoryImpl) GetSnapshot(ctx context.Context, id core.SnapshotID) (*forensic.ForensicSnapshot, error) {
	var snapshot forensic.ForensicSnapshot
	var snapshotID, decisionID, dominantRegime string
	var capturedAt time.Time
	var registryJSON, endoJSON, exoJSON, derivedJSON, modelsJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, captured_at, decision_id, registry,
			   weights_endogenous, weights_exogenous, derived_matrices,
			   dominant_regime, contributing_models
		FROM forensic_snapshots
		WHERE id = $1`, id.String()).Scan(
		&snapshotID, &capturedAt, &decisionID, &registryJSON,
		&endoJSON, &exoJSON, &derivedJSON,
		&dominantRegime, &modelsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
		}
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}

	snapshot.ID = core.SnapshotID(snapshotID)
	snapshot.Timestamp = core.NewTimestamp(capturedAt)
	snapshot.DecisionID = decisionID
	snapshot.DominantRegime = core.RegimeID(dominantRegime)
	if err := json.Unmarshal(registryJSON, &snapshot.Registry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry dump: %w", err)
	}
	json.Unmarshal(endoJSON, &snapshot.WeightsEndogenous)
	json.Unmarshal(exoJSON, &snapshot.WeightsExogenous)
	json.Unmarshal(derivedJSON, &snapshot.DerivedMatrices)
	json.Unmarshal(modelsJSON, &snapshot.ContributingModels)

	return &snapshot, nil
}

// Head returns the hash of the newest persisted entry, empty when none
func (r *ChainRepositoryImpl) Head(ctx context.Context) (core.EntryHash, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT hash FROM sealed_entries ORDER BY idx DESC LIMIT 1`).Scan(&hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read chain head: %w", err)
	}
	return core.EntryHash(hash), nil
}

// Length returns the number of persisted entries
func (r *ChainRepositoryImpl) Length(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sealed_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}
