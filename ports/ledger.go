package ports

import (
	"context"

	"gorecal/domain/core"
	"gorecal/domain/forensic"
)

// ChainWriterPort provides append-only write access to the audit chain
// This is the ONLY way to persist sealed entries - prevents rewriting history
type ChainWriterPort interface {
	// AppendEntry persists one committed entry; the store enforces index order
	AppendEntry(ctx context.Context, entry forensic.SealedEntry) error

	// SaveSnapshot persists the full snapshot an entry was sealed over
	SaveSnapshot(ctx context.Context, snapshot *forensic.ForensicSnapshot) error
}

// ChainReaderPort provides read-only access to persisted chain state
// Use this for boot-time restore, verification, and API access
type ChainReaderPort interface {
	// ListEntries returns all sealed entries in index order
	ListEntries(ctx context.Context) ([]forensic.SealedEntry, error)

	// GetEntry returns the entry at one index
	GetEntry(ctx context.Context, index int) (*forensic.SealedEntry, error)

	// GetSnapshot returns a persisted snapshot by id
	GetSnapshot(ctx context.Context, id core.SnapshotID) (*forensic.ForensicSnapshot, error)

	// Head returns the hash of the newest persisted entry, empty when none
	Head(ctx context.Context) (core.EntryHash, error)

	// Length returns the number of persisted entries
	Length(ctx context.Context) (int, error)
}

// ChainLedgerPort combines read and write access for the forensic service
type ChainLedgerPort interface {
	ChainWriterPort
	ChainReaderPort
}
