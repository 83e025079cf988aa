package forensic

import (
	"encoding/json"
	"fmt"

	"gorecal/domain/core"
)

// ExportVersion identifies the exported chain document format
const ExportVersion = "1.0.0"

// ExportDocument wraps the full chain for external, offline verification. The
// document round-trips through VerifyChain without modification.
type ExportDocument struct {
	Version     string         `json:"version"`
	ExportedAt  core.Timestamp `json:"exported_at"`
	ChainLength int            `json:"chain_length"`
	Head        core.EntryHash `json:"head"`
	Entries     []SealedEntry  `json:"entries"`
}

// Export produces the versioned document for the current chain state
func (c *Chain) Export() *ExportDocument {
	return &ExportDocument{
		Version:     ExportVersion,
		ExportedAt:  core.Now(),
		ChainLength: len(c.entries),
		Head:        c.head,
		Entries:     c.Entries(),
	}
}

// ParseExportDocument decodes an exported chain document
func ParseExportDocument(data []byte) (*ExportDocument, error) {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode export document: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("export document missing version")
	}
	return &doc, nil
}

// Verify checks the document's own consistency and then the full chain
func (d *ExportDocument) Verify() VerifyResult {
	if d.Version != ExportVersion {
		return invalidResult(-1, "unsupported export version %q", d.Version)
	}
	if d.ChainLength != len(d.Entries) {
		return invalidResult(-1, "chain length mismatch: document says %d, holds %d", d.ChainLength, len(d.Entries))
	}
	if len(d.Entries) > 0 && d.Entries[len(d.Entries)-1].Hash != d.Head {
		return invalidResult(len(d.Entries)-1, "head does not match last entry hash")
	}
	return VerifyChain(d.Entries)
}
