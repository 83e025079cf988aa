package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/forensic"
	"gorecal/ports"
)

// ForensicService owns the audit chain. Every weighting decision is sealed
// over a full point-in-time snapshot of the registry and weight state, and the
// chain is mirrored to the ledger for restart and offline verification.
type ForensicService struct {
	registry ports.RegistryPort
	ledger   ports.ChainLedgerPort
	table    *ensemble.ClassificationTable
	events   EventSink

	mu    sync.Mutex
	chain *forensic.Chain
}

// NewForensicService creates the service with an empty chain
func NewForensicService(registry ports.RegistryPort, ledger ports.ChainLedgerPort, table *ensemble.ClassificationTable, events EventSink) *ForensicService {
	return &ForensicService{
		registry: registry,
		ledger:   ledger,
		table:    table,
		events:   events,
		chain:    forensic.NewChain(),
	}
}

// LoadFromLedger restores the chain from persisted entries at boot. A chain
// that fails verification is refused outright: running on top of tampered
// history would defeat the audit trail.
func (s *ForensicService) LoadFromLedger(ctx context.Context) error {
	if s.ledger == nil {
		return nil
	}
	entries, err := s.ledger.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chain entries: %w", err)
	}

	s.mu.Lock()
	result := s.chain.Restore(entries)
	length := s.chain.Length()
	s.mu.Unlock()

	if !result.Valid {
		return fmt.Errorf("%w: persisted chain invalid at index %d: %s", core.ErrChainBroken, result.Index, result.Reason)
	}
	log.Printf("[Forensic] Restored audit chain: %d entries", length)
	return nil
}

// CaptureSnapshot dumps the registry and assembles a forensic snapshot for one
// decision
func (s *ForensicService) CaptureSnapshot(ctx context.Context, decisionID string, weights *ensemble.WeightVector) (*forensic.ForensicSnapshot, error) {
	dump, err := s.registry.Dump(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to dump registry: %w", err)
	}
	return forensic.NewSnapshot(decisionID, dump, weights, s.table), nil
}

// SealDecision captures a snapshot, seals the decision over it, and mirrors
// both to the ledger. The in-memory seal is atomic; a ledger write failure is
// surfaced but never unwinds the committed entry.
func (s *ForensicService) SealDecision(ctx context.Context, decisionID string, decision interface{}, weights *ensemble.WeightVector) (*forensic.SealedEntry, error) {
	snapshot, err := s.CaptureSnapshot(ctx, decisionID, weights)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	entry, err := s.chain.Seal(decision, snapshot)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to seal decision %s: %w", decisionID, err)
	}

	log.Printf("[Forensic] Sealed entry %d (decision %s, %d fields, root %.12s)", entry.Index, decisionID, snapshot.FieldCount(), entry.MerkleRoot)

	if s.events != nil {
		s.events.Publish("seal", entry)
	}

	if s.ledger != nil {
		if err := s.ledger.SaveSnapshot(ctx, snapshot); err != nil {
			return entry, fmt.Errorf("entry %d sealed but snapshot not persisted: %w", entry.Index, err)
		}
		if err := s.ledger.AppendEntry(ctx, *entry); err != nil {
			return entry, fmt.Errorf("entry %d sealed but not persisted: %w", entry.Index, err)
		}
	}
	return entry, nil
}

// VerifyChain re-verifies the full in-memory chain
func (s *ForensicService) VerifyChain() forensic.VerifyResult {
	s.mu.Lock()
	entries := s.chain.Entries()
	s.mu.Unlock()
	return forensic.VerifyChain(entries)
}

// VerifyEntry re-verifies one entry against its predecessor
func (s *ForensicService) VerifyEntry(index int) (forensic.VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.chain.Entry(index)
	if err != nil {
		return forensic.VerifyResult{}, err
	}
	previous := core.EntryHash("")
	if index > 0 {
		prev, err := s.chain.Entry(index - 1)
		if err != nil {
			return forensic.VerifyResult{}, err
		}
		previous = prev.Hash
	}
	return forensic.Verify(*entry, previous), nil
}

// Export produces the versioned chain document for offline verification
func (s *ForensicService) Export() *forensic.ExportDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.Export()
}

// Entry returns a copy of the entry at one index
func (s *ForensicService) Entry(index int) (*forensic.SealedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.Entry(index)
}

// ChainLength returns the number of sealed entries
func (s *ForensicService) ChainLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.Length()
}

// Head returns the newest entry hash
func (s *ForensicService) Head() core.EntryHash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.Head()
}
