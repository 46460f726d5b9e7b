package wdi

import (
	"context"
	"log/slog"
	"os"
	"time"

	"greentrap/internal/panel"
	"greentrap/internal/store"
)

// Cache is a single-file panel cache keyed by file modification time. It
// exists to spare the API during iterative analysis runs, not to guarantee
// freshness: a stale read is always safe because the pipeline revalidates
// the panel it is given.
type Cache struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache builds a cache over the CSV file at path. A non-positive ttl
// disables reads, so every fetch goes to the API.
func NewCache(path string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{path: path, ttl: ttl, logger: logger}
}

// Load returns the cached panel if the file exists and is younger than the
// TTL. A missing, expired, or unreadable cache is a miss, never an error.
func (c *Cache) Load(ctx context.Context) (*panel.Panel, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, false
	}
	age := time.Since(info.ModTime())
	if age > c.ttl {
		c.logger.InfoContext(ctx, "cache expired", "path", c.path, "age", age, "ttl", c.ttl)
		return nil, false
	}

	p, err := store.LoadPanel(c.path)
	if err != nil {
		c.logger.WarnContext(ctx, "cache unreadable, refetching", "path", c.path, "error", err)
		return nil, false
	}
	c.logger.InfoContext(ctx, "cache hit", "path", c.path, "rows", p.Len(), "age", age)
	return p, true
}

// Store writes the panel to the cache file.
func (c *Cache) Store(ctx context.Context, p *panel.Panel) error {
	if err := store.SavePanel(p, c.path); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "cache written", "path", c.path, "rows", p.Len())
	return nil
}
