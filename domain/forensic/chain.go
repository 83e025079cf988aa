package forensic

import (
	"fmt"

	"gorecal/domain/core"
)

// VerifyResult is the structured outcome of integrity verification. Integrity
// failures carry the failing index and reason rather than a bare error,
// because forensic callers need the location even when the chain is invalid.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func validResult() VerifyResult {
	return VerifyResult{Valid: true, Index: -1}
}

func invalidResult(index int, format string, args ...interface{}) VerifyResult {
	return VerifyResult{Valid: false, Index: index, Reason: fmt.Sprintf(format, args...)}
}

// Chain is the append-only, previous-hash-linked ledger of sealed entries.
// Sealing is all-or-nothing: an entry is staged, its digest computed, and only
// then is it committed and the head pointer advanced. A failure mid-seal leaves
// the chain exactly as it was.
type Chain struct {
	entries []SealedEntry
	head    core.EntryHash
}

// NewChain starts an empty chain; the first sealed entry becomes genesis with
// an empty previous hash.
func NewChain() *Chain {
	return &Chain{}
}

// Length returns the number of committed entries
func (c *Chain) Length() int {
	return len(c.entries)
}

// Head returns the hash of the newest committed entry
func (c *Chain) Head() core.EntryHash {
	return c.head
}

// Entries returns a copy of the committed entries in index order
func (c *Chain) Entries() []SealedEntry {
	out := make([]SealedEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Entry returns a copy of the entry at index i
func (c *Chain) Entry(i int) (*SealedEntry, error) {
	if i < 0 || i >= len(c.entries) {
		return nil, fmt.Errorf("%w: index %d of %d", core.ErrEntryNotFound, i, len(c.entries))
	}
	entry := c.entries[i]
	return &entry, nil
}

// Seal builds the merkle tree over the snapshot, stages an entry, computes its
// digest, and commits it. Nothing is mutated until the digest succeeds.
func (c *Chain) Seal(decision interface{}, snapshot *ForensicSnapshot) (*SealedEntry, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("cannot seal a nil snapshot")
	}
	fields := snapshot.Fields()
	tree, err := BuildMerkleTree(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot tree: %w", err)
	}
	decisionRaw, err := core.CanonicalJSON(decision)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize decision: %w", err)
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	staged := SealedEntry{
		Index:          len(c.entries),
		PreviousHash:   c.head,
		Timestamp:      core.Now(),
		Nonce:          nonce,
		Decision:       decisionRaw,
		SnapshotID:     snapshot.ID,
		SnapshotFields: fields,
		MerkleRoot:     tree.Root,
	}
	hash, err := ComputeEntryHash(staged.PreviousHash, staged.Timestamp, staged.Decision, staged.SnapshotID, staged.MerkleRoot, staged.Nonce)
	if err != nil {
		return nil, err
	}
	staged.Hash = hash

	c.entries = append(c.entries, staged)
	c.head = hash

	committed := staged
	return &committed, nil
}

// Restore adopts a previously persisted entry list after verifying it. Invalid
// input leaves the chain untouched and reports where verification failed.
func (c *Chain) Restore(entries []SealedEntry) VerifyResult {
	result := VerifyChain(entries)
	if !result.Valid {
		return result
	}
	c.entries = make([]SealedEntry, len(entries))
	copy(c.entries, entries)
	if len(entries) > 0 {
		c.head = entries[len(entries)-1].Hash
	} else {
		c.head = ""
	}
	return result
}

// Verify recomputes one entry's merkle root and digest against its stored
// fields and checks its linkage to the expected predecessor hash.
func Verify(entry SealedEntry, expectedPrevious core.EntryHash) VerifyResult {
	if entry.PreviousHash != expectedPrevious {
		return invalidResult(entry.Index, "previous hash mismatch: have %s, want %s",
			short(entry.PreviousHash), short(expectedPrevious))
	}

	tree, err := BuildMerkleTree(entry.SnapshotFields)
	if err != nil {
		return invalidResult(entry.Index, "snapshot fields unusable: %v", err)
	}
	if tree.Root != entry.MerkleRoot {
		return invalidResult(entry.Index, "merkle root mismatch")
	}

	hash, err := ComputeEntryHash(entry.PreviousHash, entry.Timestamp, entry.Decision, entry.SnapshotID, entry.MerkleRoot, entry.Nonce)
	if err != nil {
		return invalidResult(entry.Index, "entry hash recompute failed: %v", err)
	}
	if hash != entry.Hash {
		return invalidResult(entry.Index, "entry hash mismatch")
	}
	return validResult()
}

// VerifyChain walks the entries in order: genesis must carry an empty previous
// hash, every later entry must link to its predecessor, and every entry must
// recompute cleanly. Reports the first invalid index and reason.
func VerifyChain(entries []SealedEntry) VerifyResult {
	expectedPrevious := core.EntryHash("")
	for i, entry := range entries {
		if entry.Index != i {
			return invalidResult(i, "entry index out of order: have %d, want %d", entry.Index, i)
		}
		if result := Verify(entry, expectedPrevious); !result.Valid {
			result.Index = i
			return result
		}
		expectedPrevious = entry.Hash
	}
	return validResult()
}

// short truncates a hash for log-sized output
func short(h core.EntryHash) string {
	s := h.String()
	if s == "" {
		return "(genesis)"
	}
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
