package container

import (
	"testing"

	"gorecal/domain/ensemble"
	"gorecal/internal/config"
)

func TestParseSourceClasses(t *testing.T) {
	classes, err := parseSourceClasses("rates-desk:endogenous, macro-feed:endogenous ,sentiment-wire:exogenous")
	if err != nil {
		t.Fatalf("Failed to parse sources: %v", err)
	}
	if len(classes) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(classes))
	}
	if classes["rates-desk"] != ensemble.ClassEndogenous {
		t.Errorf("Expected rates-desk endogenous, got %s", classes["rates-desk"])
	}
	if classes["sentiment-wire"] != ensemble.ClassExogenous {
		t.Errorf("Expected sentiment-wire exogenous, got %s", classes["sentiment-wire"])
	}
}

func TestParseSourceClassesDefaultSpec(t *testing.T) {
	classes, err := parseSourceClasses(config.DefaultSources)
	if err != nil {
		t.Fatalf("Default sources must parse: %v", err)
	}
	if _, err := ensemble.NewClassificationTable(classes); err != nil {
		t.Fatalf("Default sources must build a valid table: %v", err)
	}
}

func TestParseSourceClassesRejectsMalformedEntry(t *testing.T) {
	if _, err := parseSourceClasses("rates-desk"); err == nil {
		t.Fatal("Expected error for entry without class")
	}
}

func TestParseSourceClassesRejectsEmptySpec(t *testing.T) {
	if _, err := parseSourceClasses(" , "); err == nil {
		t.Fatal("Expected error for empty spec")
	}
}
