// Package impute applies the per-class missing-data policy to a panel.
//
// Every indicator column is assigned exactly one Class, and the class alone
// determines what the engine may do with its gaps:
//
//   - Volatile: never filled. A fabricated inflation or growth observation
//     is worse than a missing one.
//   - Structural: forward-filled within each country's series; gaps longer
//     than the limit stay entirely missing.
//   - Interpolable: linearly interpolated, interior gaps only; gaps longer
//     than the limit stay entirely missing.
//   - Outcome: never filled under any policy; rows missing outcomes are
//     removed later by the quality gate instead.
//
// After the forward pass over every column, a single bounded backward-fill
// pass patches leading-edge gaps on structural and interpolable columns.
// The two passes never interleave: backward fill only ever reads values that
// existed when the forward pass finished.
package impute

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"greentrap/internal/panel"
)

// Class is the imputation class of an indicator column.
type Class int

const (
	// ClassInterpolable is the default class: interior linear interpolation
	// with a bounded gap length.
	ClassInterpolable Class = iota
	// ClassVolatile columns are never imputed.
	ClassVolatile
	// ClassStructural columns are forward-filled with a bounded gap length.
	ClassStructural
	// ClassOutcome columns are regression targets and are never imputed.
	ClassOutcome
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassInterpolable:
		return "interpolable"
	case ClassVolatile:
		return "volatile"
	case ClassStructural:
		return "structural"
	case ClassOutcome:
		return "outcome"
	default:
		return "unknown"
	}
}

// Classification maps column names to imputation classes. Columns not in the
// map default to ClassInterpolable.
type Classification map[string]Class

// NewClassification builds a classification from the configured column
// lists. Outcome membership wins over any other list, so an outcome column
// is never imputed even if it is also listed as volatile or structural.
func NewClassification(volatile, structural, outcome []string) Classification {
	c := make(Classification)
	for _, col := range volatile {
		c[col] = ClassVolatile
	}
	for _, col := range structural {
		c[col] = ClassStructural
	}
	for _, col := range outcome {
		c[col] = ClassOutcome
	}
	return c
}

// Of returns the class for the given column.
func (c Classification) Of(col string) Class {
	if cls, ok := c[col]; ok {
		return cls
	}
	return ClassInterpolable
}

// Limits bounds how far each fill strategy may reach.
type Limits struct {
	// ForwardFill is the maximum gap length a forward fill may cover on a
	// structural column; longer gaps are not partially filled.
	ForwardFill int
	// Interpolate is the maximum interior gap length a linear interpolation
	// may fill on an interpolable column.
	Interpolate int
	// Backfill is the maximum trailing portion of a leading gap the final
	// backward pass may patch.
	Backfill int
}

// DefaultLimits returns the limits used by the production configuration.
func DefaultLimits() Limits {
	return Limits{ForwardFill: 3, Interpolate: 2, Backfill: 1}
}

// Stats accounts for what the engine did, per column.
type Stats struct {
	MissingBefore map[string]int `json:"missing_before"`
	MissingAfter  map[string]int `json:"missing_after"`
	FilledCells   int            `json:"filled_cells"`
}

// TotalBefore returns the total missing cell count before imputation.
func (s Stats) TotalBefore() int {
	total := 0
	for _, n := range s.MissingBefore {
		total += n
	}
	return total
}

// TotalAfter returns the total missing cell count after imputation.
func (s Stats) TotalAfter() int {
	total := 0
	for _, n := range s.MissingAfter {
		total += n
	}
	return total
}

// fillFunc fills gaps in one series column. values/present are year-ordered;
// implementations mutate both in place.
type fillFunc func(values []float64, present []bool, limit int)

// Engine applies the class-keyed imputation policy to a panel.
type Engine struct {
	classes Classification
	limits  Limits
	logger  *slog.Logger

	// forward maps each class to its forward-pass strategy. Volatile and
	// outcome map to nil: no strategy, not an empty one.
	forward map[Class]fillFunc
}

// NewEngine creates an imputation engine for the given classification and
// limits.
func NewEngine(classes Classification, limits Limits, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classes: classes,
		limits:  limits,
		logger:  logger,
		forward: map[Class]fillFunc{
			ClassStructural:   forwardFill,
			ClassInterpolable: interpolateInterior,
			ClassVolatile:     nil,
			ClassOutcome:      nil,
		},
	}
}

// Apply imputes the panel in place according to the per-class policy and
// returns per-column missingness accounting. The panel must be exclusively
// owned by the caller. Columns configured but absent from the panel are
// simply not visited; absence of optional indicators is expected.
func (e *Engine) Apply(ctx context.Context, p *panel.Panel) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("imputation cancelled: %w", err)
	}

	cols := p.Columns()
	stats := Stats{
		MissingBefore: make(map[string]int, len(cols)),
		MissingAfter:  make(map[string]int, len(cols)),
	}
	for _, col := range cols {
		stats.MissingBefore[col] = p.MissingCount(col)
	}

	// Forward pass: per-class strategy, within each country's series,
	// ascending years.
	for _, col := range cols {
		cls := e.classes.Of(col)
		fill := e.forward[cls]
		if fill == nil {
			continue
		}
		limit := e.limits.ForwardFill
		if cls == ClassInterpolable {
			limit = e.limits.Interpolate
		}
		e.fillColumn(p, col, fill, limit)
	}

	// Backward pass: one bounded pass over fillable columns to patch
	// leading-edge residue. Runs strictly after every forward fill and only
	// touches the leading gap of a series.
	if e.limits.Backfill > 0 {
		for _, col := range cols {
			cls := e.classes.Of(col)
			if cls != ClassStructural && cls != ClassInterpolable {
				continue
			}
			e.fillColumn(p, col, leadingBackfill, e.limits.Backfill)
		}
	}

	for _, col := range cols {
		stats.MissingAfter[col] = p.MissingCount(col)
		stats.FilledCells += stats.MissingBefore[col] - stats.MissingAfter[col]
	}

	e.logger.InfoContext(ctx, "imputation completed",
		"columns", len(cols),
		"missing_before", stats.TotalBefore(),
		"missing_after", stats.TotalAfter(),
		"filled", stats.FilledCells,
	)

	return stats, nil
}

// ClassifiedColumns returns the classified column names absent from the
// panel, for skip reporting.
func (e *Engine) ClassifiedColumns(p *panel.Panel) (absent []string) {
	for col := range e.classes {
		if !p.HasColumn(col) {
			absent = append(absent, col)
		}
	}
	sort.Strings(absent)
	return absent
}

func (e *Engine) fillColumn(p *panel.Panel, col string, fill fillFunc, limit int) {
	p.EachSeries(func(country string, s panel.Series) {
		values, present := s.Column(col)
		fill(values, present, limit)
		for i := range s {
			if present[i] {
				if _, had := s[i].Value(col); !had {
					s[i].Set(col, values[i])
				}
			}
		}
	})
}

// forwardFill propagates the last known value into gaps of at most limit
// consecutive missing positions. Longer gaps are left entirely missing, the
// same all-or-nothing rule interpolateInterior applies: no filled value may
// originate from a gap exceeding the limit.
func forwardFill(values []float64, present []bool, limit int) {
	i := 0
	for i < len(values) {
		if present[i] {
			i++
			continue
		}
		start := i
		for i < len(values) && !present[i] {
			i++
		}
		gapLen := i - start
		if start == 0 || gapLen > limit {
			continue
		}
		for k := start; k < start+gapLen; k++ {
			values[k] = values[start-1]
			present[k] = true
		}
	}
}

// interpolateInterior linearly fills interior gaps (known values on both
// sides) of length at most limit. Gaps touching either end of the series are
// left alone.
func interpolateInterior(values []float64, present []bool, limit int) {
	i := 0
	for i < len(values) {
		if present[i] {
			i++
			continue
		}
		start := i
		for i < len(values) && !present[i] {
			i++
		}
		end := i // one past the gap
		gapLen := end - start
		if start == 0 || end == len(values) || gapLen > limit {
			continue
		}
		lo, hi := values[start-1], values[end]
		step := (hi - lo) / float64(gapLen+1)
		for k := 0; k < gapLen; k++ {
			values[start+k] = lo + step*float64(k+1)
			present[start+k] = true
		}
	}
}

// leadingBackfill patches the leading gap of a series by copying the first
// known value backward into at most limit positions adjacent to it. Interior
// and trailing gaps are never touched: fabricating values deep inside a gap
// is the forward pass's bounded job, not this one's.
func leadingBackfill(values []float64, present []bool, limit int) {
	if len(values) == 0 || present[0] {
		return
	}
	first := 0
	for first < len(values) && !present[first] {
		first++
	}
	if first == len(values) {
		return // column entirely missing for this series
	}
	for k := 1; k <= limit && first-k >= 0; k++ {
		values[first-k] = values[first]
		present[first-k] = true
	}
}
