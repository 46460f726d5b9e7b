// Command pipeline processes a raw indicator panel into the analysis-ready
// dataset: imputation, feature derivation, and the quality gate, followed by
// the comparison subset and the quality report workbook.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"greentrap/internal/config"
	"greentrap/internal/exporter"
	"greentrap/internal/infrastructure"
	"greentrap/internal/pipeline"
	"greentrap/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (defaults apply when empty)")
	inPath := flag.String("in", "", "raw panel CSV path (overrides configured raw path)")
	outPath := flag.String("out", "", "processed CSV path (overrides configured processed path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rawPath := cfg.Paths.RawCSV
	if *inPath != "" {
		rawPath = *inPath
	}
	processedPath := cfg.Paths.ProcessedCSV
	if *outPath != "" {
		processedPath = *outPath
	}

	raw, err := store.LoadPanel(rawPath)
	if err != nil {
		logger.Error("Failed to load raw panel", "error", err, "path", rawPath)
		os.Exit(1)
	}

	pl, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}

	processed, report, err := pl.Run(ctx, raw)
	if err != nil {
		logger.Error("Pipeline run failed", "error", err)
		os.Exit(1)
	}

	if err := store.SavePanel(processed, processedPath); err != nil {
		logger.Error("Failed to write processed panel", "error", err, "path", processedPath)
		os.Exit(1)
	}

	comparison := pl.ComparisonSubset(processed)
	if err := store.SavePanel(comparison, cfg.Paths.ComparisonCSV); err != nil {
		logger.Error("Failed to write comparison subset", "error", err, "path", cfg.Paths.ComparisonCSV)
		os.Exit(1)
	}

	writer := exporter.NewReportWriter(logger)
	if err := writer.Write(ctx, report, processed, cfg.Paths.ReportXLSX); err != nil {
		logger.Error("Failed to write quality report", "error", err)
		os.Exit(1)
	}

	logger.InfoContext(ctx, "pipeline finished",
		"run_id", report.RunID,
		"rows_in", report.RowsIn,
		"rows_out", report.RowsOut,
		"processed", processedPath,
		"comparison", cfg.Paths.ComparisonCSV,
		"report", cfg.Paths.ReportXLSX,
	)
}
