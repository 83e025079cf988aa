package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	PredictionID ID
	SnapshotID   ID
	EntryID      ID
	MutationID   ID
	SourceID     ID
	ModelID      ID
	RegimeID     ID
)

// String conversions for domain IDs
func (id PredictionID) String() string { return ID(id).String() }
func (id SnapshotID) String() string   { return ID(id).String() }
func (id EntryID) String() string      { return ID(id).String() }
func (id MutationID) String() string   { return ID(id).String() }
func (id SourceID) String() string     { return ID(id).String() }
func (id ModelID) String() string      { return ID(id).String() }
func (id RegimeID) String() string     { return ID(id).String() }

// ParsePredictionID parses a string into PredictionID
func ParsePredictionID(s string) (PredictionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("prediction ID cannot be empty")
	}
	return PredictionID(s), nil
}

// ParseSnapshotID parses a string into SnapshotID
func ParseSnapshotID(s string) (SnapshotID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("snapshot ID cannot be empty")
	}
	return SnapshotID(s), nil
}

// ParseEntryID parses a string into EntryID
func ParseEntryID(s string) (EntryID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("entry ID cannot be empty")
	}
	return EntryID(s), nil
}

// ParseSourceID parses a string into SourceID
func ParseSourceID(s string) (SourceID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("source ID cannot be empty")
	}
	return SourceID(s), nil
}

// ParseModelID parses a string into ModelID
func ParseModelID(s string) (ModelID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("model ID cannot be empty")
	}
	return ModelID(s), nil
}
