package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/forensic"
	"gorecal/ports"
)

// DefaultRecentLimit bounds the mutation window a report summarizes
const DefaultRecentLimit = 50

// ChainView is the slice of the forensic service a report reads
type ChainView interface {
	ChainLength() int
	Head() core.EntryHash
	VerifyChain() forensic.VerifyResult
}

// WeightView exposes the current ensemble weights
type WeightView interface {
	Weights() *ensemble.WeightVector
}

// MonitorView exposes the live prediction count
type MonitorView interface {
	LiveCount() int
}

// Generator assembles recalibration audit reports from the live services
// and the mutation store
type Generator struct {
	mutations ports.MutationRepository
	chain     ChainView
	weights   WeightView
	monitor   MonitorView
	recent    int
}

// NewGenerator creates a report generator. Any view may be nil; the
// corresponding report section is omitted.
func NewGenerator(mutations ports.MutationRepository, chain ChainView, weights WeightView, monitor MonitorView) *Generator {
	return &Generator{
		mutations: mutations,
		chain:     chain,
		weights:   weights,
		monitor:   monitor,
		recent:    DefaultRecentLimit,
	}
}

// SetRecentLimit overrides how many recent mutations a report summarizes
func (g *Generator) SetRecentLimit(n int) {
	if n > 0 {
		g.recent = n
	}
}

// SeriesSummary describes one numeric series over the recent window
type SeriesSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// CulpritCount records how often a source drew the top attribution score
type CulpritCount struct {
	SourceID core.SourceID `json:"source_id"`
	Count    int           `json:"count"`
}

// Report is the assembled audit summary
type Report struct {
	GeneratedAt     core.Timestamp           `json:"generated_at"`
	ChainLength     int                      `json:"chain_length"`
	ChainHead       string                   `json:"chain_head"`
	ChainValid      bool                     `json:"chain_valid"`
	ChainFault      string                   `json:"chain_fault,omitempty"`
	LivePredictions int                      `json:"live_predictions"`
	TotalMutations  int                      `json:"total_mutations"`
	Weights         *ensemble.WeightVector   `json:"weights,omitempty"`
	Recent          []*ensemble.MutationEvent `json:"recent,omitempty"`
	Reductions      SeriesSummary            `json:"reductions"`
	ZScores         SeriesSummary            `json:"z_scores"`
	Culprits        []CulpritCount           `json:"culprits,omitempty"`
}

// Build assembles a report from the current system state
func (g *Generator) Build(ctx context.Context) (*Report, error) {
	r := &Report{GeneratedAt: core.Now()}

	if g.chain != nil {
		r.ChainLength = g.chain.ChainLength()
		r.ChainHead = g.chain.Head().String()
		verify := g.chain.VerifyChain()
		r.ChainValid = verify.Valid
		if !verify.Valid {
			r.ChainFault = fmt.Sprintf("entry %d: %s", verify.Index, verify.Reason)
		}
	}

	if g.weights != nil {
		r.Weights = g.weights.Weights()
	}

	if g.monitor != nil {
		r.LivePredictions = g.monitor.LiveCount()
	}

	if g.mutations != nil {
		total, err := g.mutations.CountMutations(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count mutations: %w", err)
		}
		r.TotalMutations = total

		recent, err := g.mutations.ListMutations(ctx, g.recent)
		if err != nil {
			return nil, fmt.Errorf("failed to list mutations: %w", err)
		}
		r.Recent = recent
		r.Reductions = summarize(collect(recent, func(m *ensemble.MutationEvent) float64 { return m.AggregateReduction }))
		r.ZScores = summarize(collect(recent, func(m *ensemble.MutationEvent) float64 { return m.ZScore }))
		r.Culprits = countCulprits(recent)
	}

	return r, nil
}

// collect extracts one numeric field across the mutation window
func collect(events []*ensemble.MutationEvent, field func(*ensemble.MutationEvent) float64) []float64 {
	values := make([]float64, 0, len(events))
	for _, m := range events {
		values = append(values, field(m))
	}
	return values
}

// summarize computes summary statistics for a series; an empty or
// too-short series yields partial zeros rather than an error
func summarize(values []float64) SeriesSummary {
	s := SeriesSummary{Count: len(values)}
	if len(values) == 0 {
		return s
	}
	if mean, err := stats.Mean(values); err == nil {
		s.Mean = mean
	}
	if median, err := stats.Median(values); err == nil {
		s.Median = median
	}
	if p90, err := stats.Percentile(values, 90); err == nil {
		s.P90 = p90
	}
	if max, err := stats.Max(values); err == nil {
		s.Max = max
	}
	return s
}

// countCulprits tallies which sources drew the top attribution across the
// window, most frequent first
func countCulprits(events []*ensemble.MutationEvent) []CulpritCount {
	tally := make(map[core.SourceID]int)
	for _, m := range events {
		if len(m.Attributions) == 0 {
			continue
		}
		tally[m.Attributions[0].SourceID]++
	}
	if len(tally) == 0 {
		return nil
	}

	counts := make([]CulpritCount, 0, len(tally))
	for id, n := range tally {
		counts = append(counts, CulpritCount{SourceID: id, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].SourceID < counts[j].SourceID
	})
	return counts
}

// Markdown renders the report as a markdown document
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Recalibration Audit Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Time().Format(time.RFC3339))

	b.WriteString("## Audit Chain\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Sealed entries | %d |\n", r.ChainLength)
	fmt.Fprintf(&b, "| Head | `%s` |\n", shortHash(r.ChainHead))
	if r.ChainValid {
		b.WriteString("| Integrity | OK |\n")
	} else {
		fmt.Fprintf(&b, "| Integrity | **FAULT** (%s) |\n", r.ChainFault)
	}
	fmt.Fprintf(&b, "| Live predictions | %d |\n\n", r.LivePredictions)

	if r.Weights != nil {
		b.WriteString("## Ensemble Weights\n\n")
		b.WriteString("| Source | Class | Weight |\n|---|---|---|\n")
		for _, id := range r.Weights.SourceIDs() {
			fmt.Fprintf(&b, "| %s | %s | %.4f |\n", id, r.Weights.Classes[id], r.Weights.Weights[id])
		}
		fmt.Fprintf(&b, "\nExogenous share: %.4f\n\n", r.Weights.ExogenousSum())
	}

	b.WriteString("## Mutation Activity\n\n")
	fmt.Fprintf(&b, "Total mutations: %d (summarizing last %d)\n\n", r.TotalMutations, len(r.Recent))

	if r.Reductions.Count > 0 {
		b.WriteString("| Series | Mean | Median | P90 | Max |\n|---|---|---|---|---|\n")
		fmt.Fprintf(&b, "| Aggregate reduction | %.4f | %.4f | %.4f | %.4f |\n",
			r.Reductions.Mean, r.Reductions.Median, r.Reductions.P90, r.Reductions.Max)
		fmt.Fprintf(&b, "| Outcome z-score | %.2f | %.2f | %.2f | %.2f |\n\n",
			r.ZScores.Mean, r.ZScores.Median, r.ZScores.P90, r.ZScores.Max)
	}

	if len(r.Culprits) > 0 {
		b.WriteString("### Frequent Culprits\n\n")
		b.WriteString("| Source | Top-attributed |\n|---|---|\n")
		for _, c := range r.Culprits {
			fmt.Fprintf(&b, "| %s | %d |\n", c.SourceID, c.Count)
		}
		b.WriteString("\n")
	}

	if len(r.Recent) > 0 {
		b.WriteString("### Recent Mutations\n\n")
		b.WriteString("| Sealed | Prediction | Horizon | Distance | Z | Reduction | Capped |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, m := range r.Recent {
			fmt.Fprintf(&b, "| %s | %s | %s | %.3f | %.2f | %.4f | %v |\n",
				m.Timestamp.Time().Format("2006-01-02 15:04:05"),
				m.PredictionID, m.Outcome.Horizon, m.Outcome.Distance,
				m.ZScore, m.AggregateReduction, m.CapApplied)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// shortHash trims a hash for display, keeping empty hashes readable
func shortHash(h string) string {
	if h == "" {
		return "(empty)"
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
