// Package exporter writes the quality report workbook summarizing a pipeline
// run: what came in, what was filled, what was derived, and what was removed
// and why.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"greentrap/internal/panel"
	"greentrap/internal/pipeline"
)

// Sheet names in the report workbook.
const (
	sheetRun         = "Run"
	sheetMissingness = "Missingness"
	sheetCoverage    = "Coverage"
)

// ReportWriter renders a RunReport and its processed panel to an Excel
// workbook.
type ReportWriter struct {
	logger *slog.Logger
}

// NewReportWriter builds a report writer.
func NewReportWriter(logger *slog.Logger) *ReportWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWriter{logger: logger}
}

// Write renders the workbook to path, creating parent directories as needed.
func (w *ReportWriter) Write(ctx context.Context, report *pipeline.RunReport, processed *panel.Panel, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeRunSheet(f, report); err != nil {
		return err
	}
	if err := w.writeMissingnessSheet(f, report); err != nil {
		return err
	}
	if err := w.writeCoverageSheet(f, processed); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	w.logger.InfoContext(ctx, "quality report written",
		slog.String("path", path),
		slog.String("run_id", report.RunID),
	)
	return nil
}

// writeRunSheet renders run identity, row accounting, and removal reasons as
// key-value pairs.
func (w *ReportWriter) writeRunSheet(f *excelize.File, report *pipeline.RunReport) error {
	// The default sheet becomes the run summary.
	if err := f.SetSheetName(f.GetSheetName(0), sheetRun); err != nil {
		return fmt.Errorf("rename run sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Field", "Value"},
		{"Run ID", report.RunID},
		{"Started At", report.StartedAt.Format("2006-01-02 15:04:05 UTC")},
		{"Duration", report.Duration.String()},
		{"Rows In", report.RowsIn},
		{"Rows Out", report.RowsOut},
		{"Rows Removed", report.Removals.Total()},
		{"Removed: Outcome Missing", report.Removals.OutcomeMissing},
		{"Removed: No Core Evidence", report.Removals.NoCoreEvidence},
	}
	for _, col := range sortedKeys(report.Removals.OutOfBounds) {
		rows = append(rows, []interface{}{
			fmt.Sprintf("Removed: %s Out Of Bounds", col),
			report.Removals.OutOfBounds[col],
		})
	}
	rows = append(rows, []interface{}{"Cells Filled", report.Imputation.FilledCells})
	for _, col := range report.AbsentConfigured {
		rows = append(rows, []interface{}{"Absent Configured Column", col})
	}
	for _, skip := range report.Skips {
		rows = append(rows, []interface{}{
			fmt.Sprintf("Skipped Derivation: %s", skip.Feature),
			fmt.Sprintf("missing %v", skip.Missing),
		})
	}

	return writeRows(f, sheetRun, rows)
}

// writeMissingnessSheet renders per-column missing counts before and after
// imputation, plus the post-gate high-missingness flags.
func (w *ReportWriter) writeMissingnessSheet(f *excelize.File, report *pipeline.RunReport) error {
	if _, err := f.NewSheet(sheetMissingness); err != nil {
		return fmt.Errorf("create missingness sheet: %w", err)
	}

	cols := make(map[string]struct{})
	for col := range report.Imputation.MissingBefore {
		cols[col] = struct{}{}
	}
	for col := range report.Imputation.MissingAfter {
		cols[col] = struct{}{}
	}

	rows := [][]interface{}{{"Column", "Missing Before", "Missing After", "High Missingness Ratio"}}
	for _, col := range sortedSet(cols) {
		row := []interface{}{
			col,
			report.Imputation.MissingBefore[col],
			report.Imputation.MissingAfter[col],
		}
		if ratio, ok := report.HighMissingness[col]; ok {
			row = append(row, ratio)
		} else {
			row = append(row, "")
		}
		rows = append(rows, row)
	}

	return writeRows(f, sheetMissingness, rows)
}

// writeCoverageSheet renders per-country observation counts and year spans of
// the processed panel.
func (w *ReportWriter) writeCoverageSheet(f *excelize.File, processed *panel.Panel) error {
	if _, err := f.NewSheet(sheetCoverage); err != nil {
		return fmt.Errorf("create coverage sheet: %w", err)
	}

	rows := [][]interface{}{{"Country", "Observations", "First Year", "Last Year"}}
	for _, country := range processed.Countries() {
		s := processed.SeriesFor(country)
		rows = append(rows, []interface{}{
			country,
			len(s),
			s[0].Year,
			s[len(s)-1].Year,
		})
	}

	return writeRows(f, sheetCoverage, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(s map[string]struct{}) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
