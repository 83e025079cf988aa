package ensemble

import (
	"testing"

	"gorecal/domain/core"
)

func TestNewClassificationTableRequiresEndogenous(t *testing.T) {
	_, err := NewClassificationTable(map[core.SourceID]SourceClass{
		"sentiment": ClassExogenous,
		"oracle":    ClassExogenous,
	})
	if err == nil {
		t.Fatal("Expected all-exogenous table to be rejected")
	}

	_, err = NewClassificationTable(nil)
	if err == nil {
		t.Fatal("Expected empty table to be rejected")
	}
}

func TestNewClassificationTableRejectsUnknownClass(t *testing.T) {
	_, err := NewClassificationTable(map[core.SourceID]SourceClass{
		"rates": SourceClass("mystery"),
	})
	if err == nil {
		t.Fatal("Expected unknown class to be rejected")
	}
}

func TestClassificationTableLookups(t *testing.T) {
	table := testTable(t)

	if c, ok := table.ClassOf("rates"); !ok || c != ClassEndogenous {
		t.Errorf("ClassOf(rates) = %v (%v), want endogenous", c, ok)
	}
	if c, ok := table.ClassOf("sentiment"); !ok || c != ClassExogenous {
		t.Errorf("ClassOf(sentiment) = %v (%v), want exogenous", c, ok)
	}
	if _, ok := table.ClassOf("ghost"); ok {
		t.Error("Expected unknown source to miss")
	}
	if !table.IsKnown("oracle") || table.IsKnown("ghost") {
		t.Error("IsKnown mismatch")
	}
	if table.Len() != 4 {
		t.Errorf("Len = %d, want 4", table.Len())
	}

	ids := table.Sources()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("Sources not sorted: %v", ids)
		}
	}
}
