// Package pipeline orchestrates the processing stages over a raw panel:
// imputation, feature derivation, and the quality gate, in that order. Each
// stage takes exclusive ownership of the panel and hands it to the next; no
// two stages alias it. The run either yields a processed panel plus a
// populated report, or aborts with a configuration error before producing
// any output.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"greentrap/internal/config"
	"greentrap/internal/features"
	"greentrap/internal/impute"
	"greentrap/internal/panel"
	"greentrap/internal/quality"
)

// Comparison subset labels, in precedence order: the focus country wins over
// peer membership, peers win over advanced comparators.
const (
	ComparisonFocus    = "Focus"
	ComparisonPeer     = "Peer"
	ComparisonAdvanced = "Advanced"

	// LabelComparisonType is the label column on the comparison subset.
	LabelComparisonType = "Comparison_Type"
)

// RunReport accounts for everything a pipeline run did and excluded. It is
// the observability artifact consumed by the report exporter and by tests.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	RowsIn     int           `json:"rows_in"`
	RowsOut    int           `json:"rows_out"`
	Imputation impute.Stats  `json:"imputation"`
	// AbsentConfigured lists classified columns missing from the input
	// panel schema; expected as indicator coverage changes over time.
	AbsentConfigured []string         `json:"absent_configured_columns"`
	Skips            []features.Skip  `json:"skipped_derivations"`
	Removals         quality.Removals `json:"removals"`
	// HighMissingness lists columns whose post-imputation missing ratio
	// exceeds the configured warning threshold.
	HighMissingness map[string]float64 `json:"high_missingness"`
}

// Pipeline wires the three stages for one configuration.
type Pipeline struct {
	cfg     config.Config
	logger  *slog.Logger
	engine  *impute.Engine
	deriver *features.Deriver
	gate    *quality.Gate
}

// New builds a pipeline. The configuration must already be validated; New
// revalidates to guarantee no stage ever runs on a malformed one.
func New(cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	classes := impute.NewClassification(
		cfg.Variables.Volatile,
		cfg.Variables.Structural,
		cfg.Variables.Outcomes,
	)
	limits := impute.Limits{
		ForwardFill: cfg.Impute.ForwardFillLimit,
		Interpolate: cfg.Impute.InterpolateLimit,
		Backfill:    cfg.Impute.BackfillLimit,
	}

	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		engine:  impute.NewEngine(classes, limits, logger),
		deriver: features.NewDeriver(cfg, logger),
		gate:    quality.NewGate(cfg.Variables, cfg.Quality, logger),
	}, nil
}

// Run processes the raw panel through imputation, feature derivation, and
// the quality gate. Ownership of raw transfers to Run; the caller must use
// the returned panel instead.
func (pl *Pipeline) Run(ctx context.Context, raw *panel.Panel) (*panel.Panel, *RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		RowsIn:    raw.Len(),
	}
	logger := pl.logger.With("run_id", report.RunID)

	logger.InfoContext(ctx, "pipeline run starting",
		"rows_in", report.RowsIn,
		"countries", len(raw.Countries()),
	)

	report.AbsentConfigured = pl.engine.ClassifiedColumns(raw)

	stats, err := pl.engine.Apply(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("imputation stage: %w", err)
	}
	report.Imputation = stats

	skips, err := pl.deriver.Apply(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("feature stage: %w", err)
	}
	report.Skips = skips

	processed, removals, err := pl.gate.Apply(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("quality stage: %w", err)
	}
	report.Removals = removals
	report.RowsOut = processed.Len()
	report.HighMissingness = pl.highMissingness(processed)
	report.Duration = time.Since(report.StartedAt)

	if report.RowsIn != report.RowsOut+removals.Total() {
		// Accounting is an invariant, not a warning.
		return nil, nil, fmt.Errorf("row accounting mismatch: %d in, %d out, %d removed",
			report.RowsIn, report.RowsOut, removals.Total())
	}

	logger.InfoContext(ctx, "pipeline run completed",
		"rows_out", report.RowsOut,
		"rows_removed", removals.Total(),
		"derivations_skipped", len(skips),
		"duration", report.Duration,
	)

	return processed, report, nil
}

// ComparisonSubset returns the focus-country comparison dataset: the focus
// country plus the configured peer and advanced comparators, each row
// labeled with its comparison role. Focus beats peer beats advanced when a
// country appears in several lists.
func (pl *Pipeline) ComparisonSubset(p *panel.Panel) *panel.Panel {
	c := pl.cfg.Countries
	role := func(code string) (string, bool) {
		switch {
		case code == c.Focus:
			return ComparisonFocus, true
		case containsCode(c.PeerComparison, code):
			return ComparisonPeer, true
		case containsCode(c.AdvancedComparison, code):
			return ComparisonAdvanced, true
		default:
			return "", false
		}
	}

	subset := p.Clone().Filter(func(o panel.Observation) bool {
		_, ok := role(o.Country)
		return ok
	})
	for i := 0; i < subset.Len(); i++ {
		o := subset.Row(i)
		label, _ := role(o.Country)
		o.SetLabel(LabelComparisonType, label)
	}
	return subset
}

func (pl *Pipeline) highMissingness(p *panel.Panel) map[string]float64 {
	flagged := make(map[string]float64)
	if p.Len() == 0 {
		return flagged
	}
	for _, col := range p.Columns() {
		ratio := float64(p.MissingCount(col)) / float64(p.Len())
		if ratio > pl.cfg.Quality.MissingWarnRatio {
			flagged[col] = ratio
		}
	}
	return flagged
}

func containsCode(list []string, code string) bool {
	for _, c := range list {
		if c == code {
			return true
		}
	}
	return false
}
