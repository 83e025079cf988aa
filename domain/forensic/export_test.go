package forensic

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExportRoundTrip(t *testing.T) {
	c := NewChain()
	sealN(t, c, 3)

	doc := c.Export()
	if doc.Version != ExportVersion {
		t.Errorf("Version = %s, want %s", doc.Version, ExportVersion)
	}
	if doc.ChainLength != 3 || doc.Head != c.Head() {
		t.Errorf("Document header mismatch: length %d head %s", doc.ChainLength, doc.Head)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	parsed, err := ParseExportDocument(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// The decoded document must verify without modification
	result := parsed.Verify()
	if !result.Valid {
		t.Fatalf("Round-tripped document failed verification at %d: %s", result.Index, result.Reason)
	}
}

func TestExportedDocumentDetectsTamper(t *testing.T) {
	c := NewChain()
	sealN(t, c, 3)

	data, err := json.Marshal(c.Export())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	parsed, err := ParseExportDocument(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	parsed.Entries[1].Decision = json.RawMessage(`{"action":"reweight","source":"oracle","old_weight":0.5,"new_weight":0.05,"sequence":1}`)
	result := parsed.Verify()
	if result.Valid {
		t.Fatal("Tampered export went undetected")
	}
	if result.Index != 1 {
		t.Errorf("Reported index = %d, want 1", result.Index)
	}
}

func TestExportVersionChecked(t *testing.T) {
	c := NewChain()
	sealN(t, c, 1)

	doc := c.Export()
	doc.Version = "0.0.1"
	result := doc.Verify()
	if result.Valid || !strings.Contains(result.Reason, "version") {
		t.Errorf("Expected version rejection, got %+v", result)
	}

	if _, err := ParseExportDocument([]byte(`{"entries":[]}`)); err == nil {
		t.Error("Expected versionless document to be rejected")
	}
	if _, err := ParseExportDocument([]byte(`not json`)); err == nil {
		t.Error("Expected malformed document to be rejected")
	}
}

func TestExportHeaderConsistency(t *testing.T) {
	c := NewChain()
	sealN(t, c, 2)

	doc := c.Export()
	doc.ChainLength = 5
	if result := doc.Verify(); result.Valid || !strings.Contains(result.Reason, "length") {
		t.Errorf("Expected length mismatch rejection, got %+v", result)
	}

	doc = c.Export()
	doc.Head = "deadbeef"
	if result := doc.Verify(); result.Valid || !strings.Contains(result.Reason, "head") {
		t.Errorf("Expected head mismatch rejection, got %+v", result)
	}
}

func TestEmptyChainExport(t *testing.T) {
	doc := NewChain().Export()
	if result := doc.Verify(); !result.Valid {
		t.Errorf("Empty chain export should verify, got %+v", result)
	}
}
