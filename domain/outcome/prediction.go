package outcome

import (
	"fmt"

	"gorecal/domain/core"
	"gorecal/domain/spd"
)

// PredictionRecord tracks one registered prediction until every horizon resolves
type PredictionRecord struct {
	ID           core.PredictionID          `json:"id"`
	RegisteredAt core.Timestamp             `json:"registered_at"`
	State        []float64                  `json:"state"`
	Dim          int                        `json:"dim"`
	ModelID      core.ModelID               `json:"model_id"`
	SourcePath   string                     `json:"source_path"`
	Horizons     []Horizon                  `json:"horizons"`
	Results      map[Horizon]*OutcomeResult `json:"results"`
}

// NewPredictionRecord packs the predicted state into canonical form and stamps
// the record. Horizons default to the standard schedule when empty.
func NewPredictionRecord(state []float64, dim int, model core.ModelID, sourcePath string, horizons []Horizon) (*PredictionRecord, error) {
	packed, err := spd.Pack(state, dim)
	if err != nil {
		return nil, fmt.Errorf("failed to pack predicted state: %w", err)
	}
	if sourcePath == "" {
		return nil, fmt.Errorf("prediction source path cannot be empty")
	}
	if len(horizons) == 0 {
		horizons = DefaultHorizons()
	}
	for _, h := range horizons {
		if _, err := h.Days(); err != nil {
			return nil, err
		}
	}
	return &PredictionRecord{
		ID:           core.PredictionID(core.NewID()),
		RegisteredAt: core.Now(),
		State:        packed,
		Dim:          dim,
		ModelID:      model,
		SourcePath:   sourcePath,
		Horizons:     horizons,
		Results:      make(map[Horizon]*OutcomeResult),
	}, nil
}

// Deadline returns the wall-clock time at which a horizon becomes evaluable
func (p *PredictionRecord) Deadline(h Horizon) core.Timestamp {
	return p.RegisteredAt.Add(h.Duration())
}

// Pending returns the horizons whose deadline has elapsed and which have no
// result yet, in schedule order
func (p *PredictionRecord) Pending(now core.Timestamp) []Horizon {
	var due []Horizon
	for _, h := range p.Horizons {
		if _, done := p.Results[h]; done {
			continue
		}
		if !now.Before(p.Deadline(h)) {
			due = append(due, h)
		}
	}
	return due
}

// HasHorizon reports whether the record is scheduled for the given horizon
func (p *PredictionRecord) HasHorizon(h Horizon) bool {
	for _, candidate := range p.Horizons {
		if candidate == h {
			return true
		}
	}
	return false
}

// IsComplete reports whether every scheduled horizon has a result
func (p *PredictionRecord) IsComplete() bool {
	for _, h := range p.Horizons {
		if _, ok := p.Results[h]; !ok {
			return false
		}
	}
	return true
}
