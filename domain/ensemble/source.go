package ensemble

import (
	"fmt"
	"sort"

	"gorecal/domain/core"
)

// SourceClass partitions ensemble inputs into influence classes
type SourceClass string

const (
	// ClassEndogenous marks hard financial/macro sources
	ClassEndogenous SourceClass = "endogenous"
	// ClassExogenous marks soft sentiment/oracle sources whose aggregate influence is capped
	ClassExogenous SourceClass = "exogenous"
)

// ClassificationTable is the closed set of known sources and their classes.
// Producers must draw source ids from this table; unknown sources are rejected
// at admission.
type ClassificationTable struct {
	classes map[core.SourceID]SourceClass
}

// NewClassificationTable builds the table, requiring at least one endogenous source
// so the cap rule always has somewhere to redistribute freed weight.
func NewClassificationTable(classes map[core.SourceID]SourceClass) (*ClassificationTable, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("classification table cannot be empty")
	}
	hasEndogenous := false
	for id, class := range classes {
		if id.String() == "" {
			return nil, fmt.Errorf("classification table contains an empty source id")
		}
		switch class {
		case ClassEndogenous:
			hasEndogenous = true
		case ClassExogenous:
		default:
			return nil, fmt.Errorf("unknown source class %q for source %s", class, id)
		}
	}
	if !hasEndogenous {
		return nil, fmt.Errorf("classification table needs at least one endogenous source")
	}
	copied := make(map[core.SourceID]SourceClass, len(classes))
	for id, class := range classes {
		copied[id] = class
	}
	return &ClassificationTable{classes: copied}, nil
}

// ClassOf returns the class for a source id
func (t *ClassificationTable) ClassOf(id core.SourceID) (SourceClass, bool) {
	class, ok := t.classes[id]
	return class, ok
}

// IsKnown reports whether the source id is in the closed set
func (t *ClassificationTable) IsKnown(id core.SourceID) bool {
	_, ok := t.classes[id]
	return ok
}

// Sources returns all known source ids in sorted order
func (t *ClassificationTable) Sources() []core.SourceID {
	ids := make([]core.SourceID, 0, len(t.classes))
	for id := range t.classes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Classes returns a copy of the full table
func (t *ClassificationTable) Classes() map[core.SourceID]SourceClass {
	out := make(map[core.SourceID]SourceClass, len(t.classes))
	for id, class := range t.classes {
		out[id] = class
	}
	return out
}

// Len returns the number of known sources
func (t *ClassificationTable) Len() int {
	return len(t.classes)
}
