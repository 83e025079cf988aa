package forensic

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gorecal/domain/core"
)

// SealedEntry is one link of the audit chain. It embeds the decision payload and
// the flattened snapshot fields its merkle root was built over, so verification
// needs nothing beyond the entry list itself.
type SealedEntry struct {
	Index          int                    `json:"index"`
	Hash           core.EntryHash         `json:"hash"`
	PreviousHash   core.EntryHash         `json:"previous_hash"`
	Timestamp      core.Timestamp         `json:"timestamp"`
	Nonce          string                 `json:"nonce"`
	Decision       json.RawMessage        `json:"decision"`
	SnapshotID     core.SnapshotID        `json:"snapshot_id"`
	SnapshotFields map[string]interface{} `json:"snapshot_fields"`
	MerkleRoot     core.MerkleRoot        `json:"merkle_root"`
}

// entryPreimage is the hashable view of an entry: previousHash ‖ timestamp ‖
// decisionPayload ‖ snapshotId ‖ merkleRoot ‖ nonce, in canonical JSON form
type entryPreimage struct {
	PreviousHash string          `json:"previous_hash"`
	Timestamp    core.Timestamp  `json:"timestamp"`
	Decision     json.RawMessage `json:"decision"`
	SnapshotID   string          `json:"snapshot_id"`
	MerkleRoot   string          `json:"merkle_root"`
	Nonce        string          `json:"nonce"`
}

// ComputeEntryHash digests the entry linkage fields. Canonical serialization
// makes the digest stable across export/import round trips.
func ComputeEntryHash(previous core.EntryHash, ts core.Timestamp, decision json.RawMessage, snapshotID core.SnapshotID, root core.MerkleRoot, nonce string) (core.EntryHash, error) {
	data, err := core.CanonicalJSON(entryPreimage{
		PreviousHash: previous.String(),
		Timestamp:    ts,
		Decision:     decision,
		SnapshotID:   snapshotID.String(),
		MerkleRoot:   root.String(),
		Nonce:        nonce,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build entry preimage: %w", err)
	}
	return core.NewEntryHash(data), nil
}

// newNonce draws 16 random bytes as hex
func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
