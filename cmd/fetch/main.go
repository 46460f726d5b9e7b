// Command fetch downloads the configured World Development Indicators and
// writes the raw panel CSV. A fresh cache short-circuits the download unless
// -force is given.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"greentrap/internal/config"
	"greentrap/internal/infrastructure"
	"greentrap/internal/store"
	"greentrap/internal/wdi"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (defaults apply when empty)")
	outPath := flag.String("out", "", "output CSV path (overrides configured raw path)")
	force := flag.Bool("force", false, "ignore the cache and refetch from the API")
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
	if *outPath != "" {
		rawPath = *outPath
	}

	cache := wdi.NewCache(cfg.Paths.CacheCSV, cfg.Fetch.CacheTTL, logger)
	if !*force {
		if p, ok := cache.Load(ctx); ok {
			if err := store.SavePanel(p, rawPath); err != nil {
				logger.Error("Failed to write raw panel", "error", err, "path", rawPath)
				os.Exit(1)
			}
			logger.InfoContext(ctx, "raw panel written from cache", "path", rawPath, "rows", p.Len())
			return
		}
	}

	client := wdi.NewClient(cfg, logger)
	p, err := client.FetchPanel(ctx)
	if err != nil {
		logger.Error("Fetch failed", "error", err)
		os.Exit(1)
	}

	if err := cache.Store(ctx, p); err != nil {
		logger.Warn("Failed to write cache", "error", err, "path", cfg.Paths.CacheCSV)
	}
	if err := store.SavePanel(p, rawPath); err != nil {
		logger.Error("Failed to write raw panel", "error", err, "path", rawPath)
		os.Exit(1)
	}
	logger.InfoContext(ctx, "raw panel written", "path", rawPath, "rows", p.Len())
}
