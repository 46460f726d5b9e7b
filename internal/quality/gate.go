// Package quality enforces the row-validity policy on the feature-augmented
// panel. The gate filters rows, never mutates values, and accounts for every
// removal so that rows_in == rows_out + sum of removals per rule.
//
// Rules run in a fixed order:
//
//  1. Any designated outcome variable missing: the row is unusable as a
//     regression observation.
//  2. Every core-evidence (green transition) variable missing: the row says
//     nothing about the phenomenon under study.
//  3. A value outside its configured sanity bounds: probable data-entry
//     error, not an extreme-but-real observation.
package quality

import (
	"context"
	"fmt"
	"log/slog"

	"greentrap/internal/config"
	"greentrap/internal/panel"
)

// Removals counts rows dropped per rule.
type Removals struct {
	OutcomeMissing int            `json:"outcome_missing_dropped"`
	NoCoreEvidence int            `json:"no_core_evidence_dropped"`
	OutOfBounds    map[string]int `json:"out_of_bounds_dropped"`
}

// Total returns the number of rows removed across all rules.
func (r Removals) Total() int {
	total := r.OutcomeMissing + r.NoCoreEvidence
	for _, n := range r.OutOfBounds {
		total += n
	}
	return total
}

// Gate applies the validity rules.
type Gate struct {
	outcomes     []string
	coreEvidence []string
	bounds       []config.Bound
	logger       *slog.Logger
}

// NewGate creates a quality gate from the variable and bound configuration.
func NewGate(vars config.VariablesConfig, q config.QualityConfig, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		outcomes:     vars.Outcomes,
		coreEvidence: vars.CoreEvidence,
		bounds:       q.Bounds,
		logger:       logger,
	}
}

// Apply returns the panel restricted to rows passing every rule, plus the
// per-rule removal counts. It fails fast, before dropping anything, if a
// designated outcome column is entirely absent from the panel schema or if
// no core-evidence column exists at all: both are configuration defects, not
// data quality.
func (g *Gate) Apply(ctx context.Context, p *panel.Panel) (*panel.Panel, Removals, error) {
	if err := ctx.Err(); err != nil {
		return nil, Removals{}, fmt.Errorf("quality gate cancelled: %w", err)
	}

	for _, col := range g.outcomes {
		if !p.HasColumn(col) {
			return nil, Removals{}, &config.Error{
				Field:  "variables.outcomes",
				Reason: fmt.Sprintf("outcome column %q is entirely absent from the panel", col),
			}
		}
	}
	anyCore := false
	for _, col := range g.coreEvidence {
		if p.HasColumn(col) {
			anyCore = true
			break
		}
	}
	if !anyCore {
		return nil, Removals{}, &config.Error{
			Field:  "variables.core_evidence",
			Reason: "no core-evidence column is present in the panel",
		}
	}

	rowsIn := p.Len()
	removals := Removals{OutOfBounds: make(map[string]int)}

	// Rule 1: outcome completeness.
	p = p.Filter(func(o panel.Observation) bool {
		for _, col := range g.outcomes {
			if _, ok := o.Value(col); !ok {
				removals.OutcomeMissing++
				return false
			}
		}
		return true
	})

	// Rule 2: at least one core-evidence value.
	p = p.Filter(func(o panel.Observation) bool {
		for _, col := range g.coreEvidence {
			if _, ok := o.Value(col); ok {
				return true
			}
		}
		removals.NoCoreEvidence++
		return false
	})

	// Rule 3: sanity bounds. Missing values pass here; completeness is
	// rule 1 and 2's concern.
	for _, bound := range g.bounds {
		bound := bound
		p = p.Filter(func(o panel.Observation) bool {
			v, ok := o.Value(bound.Column)
			if !ok {
				return true
			}
			if v < bound.Min || v > bound.Max {
				removals.OutOfBounds[bound.Column]++
				return false
			}
			return true
		})
	}

	g.logger.InfoContext(ctx, "quality gate applied",
		"rows_in", rowsIn,
		"rows_out", p.Len(),
		"outcome_missing_dropped", removals.OutcomeMissing,
		"no_core_evidence_dropped", removals.NoCoreEvidence,
		"out_of_bounds_dropped", removals.OutOfBounds,
	)

	return p, removals, nil
}
