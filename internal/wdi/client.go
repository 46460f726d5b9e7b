// Package wdi fetches World Development Indicators from the World Bank API
// and assembles them into a raw country-year panel.
//
// The API is fetched per indicator in multi-year chunks to keep responses
// small and timeouts rare. Chunks run concurrently under a shared rate
// limiter; failed requests retry with exponential backoff. A file cache
// avoids refetching within its TTL.
package wdi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"greentrap/internal/config"
	"greentrap/internal/panel"
)

// perPage is the page size requested from the API; large enough that one
// page covers a whole chunk for this study's country count.
const perPage = 2000

// Client fetches indicator data from the World Bank API.
type Client struct {
	cfg        config.FetchConfig
	indicators map[string]string // API code -> column name
	countries  []string
	startYear  int
	endYear    int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient builds a client for the study configuration.
func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg.Fetch,
		indicators: cfg.Variables.Indicators,
		countries:  cfg.Countries.All(),
		startYear:  cfg.StartYear,
		endYear:    cfg.EndYear,
		httpClient: &http.Client{Timeout: cfg.Fetch.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Fetch.RequestsPerSecond), 1),
		logger:     logger,
	}
}

// dataPoint is one observation in the API response.
type dataPoint struct {
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}

// pageMeta is the pagination header element of the API response.
type pageMeta struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// FetchPanel retrieves every configured indicator for every configured
// country over [StartYear, EndYear] and assembles the full country-year
// grid. Years the API reports as null stay missing. Indicators that fail
// all retries abort the fetch: a silently thinner panel would be
// indistinguishable from full coverage downstream.
func (c *Client) FetchPanel(ctx context.Context) (*panel.Panel, error) {
	type chunk struct {
		code     string
		from, to int
	}
	var chunks []chunk
	for code := range c.indicators {
		for from := c.startYear; from <= c.endYear; from += c.cfg.ChunkYears {
			to := from + c.cfg.ChunkYears - 1
			if to > c.endYear {
				to = c.endYear
			}
			chunks = append(chunks, chunk{code: code, from: from, to: to})
		}
	}

	c.logger.InfoContext(ctx, "fetching WDI data",
		"indicators", len(c.indicators),
		"countries", len(c.countries),
		"years", fmt.Sprintf("%d-%d", c.startYear, c.endYear),
		"chunks", len(chunks),
	)

	var mu sync.Mutex
	values := make(map[string]map[string]float64) // "ISO3/year" -> column -> value

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, ch := range chunks {
		ch := ch
		g.Go(func() error {
			points, err := c.fetchChunk(gctx, ch.code, ch.from, ch.to)
			if err != nil {
				return fmt.Errorf("fetch %s %d-%d: %w", ch.code, ch.from, ch.to, err)
			}
			column := c.indicators[ch.code]
			mu.Lock()
			defer mu.Unlock()
			for _, pt := range points {
				if pt.Value == nil || pt.CountryISO3 == "" {
					continue
				}
				key := pt.CountryISO3 + "/" + pt.Date
				if values[key] == nil {
					values[key] = make(map[string]float64)
				}
				values[key][column] = *pt.Value
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Assemble the complete grid so every series has one position per year;
	// the imputation stage's gap arithmetic relies on that.
	var obs []panel.Observation
	for _, country := range c.countries {
		for year := c.startYear; year <= c.endYear; year++ {
			o := panel.NewObservation(country, year)
			key := country + "/" + strconv.Itoa(year)
			for col, v := range values[key] {
				o.Set(col, v)
			}
			obs = append(obs, o)
		}
	}

	p, err := panel.New(obs)
	if err != nil {
		return nil, fmt.Errorf("assemble panel: %w", err)
	}
	c.logger.InfoContext(ctx, "WDI fetch completed", "rows", p.Len(), "columns", len(p.Columns()))
	return p, nil
}

// fetchChunk retrieves one indicator over one year range, following
// pagination.
func (c *Client) fetchChunk(ctx context.Context, code string, from, to int) ([]dataPoint, error) {
	var all []dataPoint
	for page := 1; ; page++ {
		points, meta, err := c.fetchPage(ctx, code, from, to, page)
		if err != nil {
			return nil, err
		}
		all = append(all, points...)
		if meta.Page >= meta.Pages {
			return all, nil
		}
	}
}

// fetchPage performs one rate-limited, retried API request.
func (c *Client) fetchPage(ctx context.Context, code string, from, to, page int) ([]dataPoint, pageMeta, error) {
	url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&date=%d:%d&per_page=%d&page=%d",
		c.cfg.BaseURL, strings.Join(c.countries, ";"), code, from, to, perPage, page)

	var points []dataPoint
	var meta pageMeta
	attempt := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		points, meta, err = parseResponse(body)
		return err
	}

	if err := c.withRetry(ctx, attempt); err != nil {
		return nil, pageMeta{}, err
	}
	return points, meta, nil
}

// withRetry runs fn up to MaxRetries times with exponential backoff,
// respecting context cancellation between attempts.
func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	delay := c.cfg.RetryDelay
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		c.logger.WarnContext(ctx, "request failed, retrying",
			"attempt", attempt,
			"max_retries", c.cfg.MaxRetries,
			"backoff", delay,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("all %d attempts failed: %w", c.cfg.MaxRetries, lastErr)
}

// parseResponse decodes the World Bank two-element envelope: pagination
// metadata followed by the data array. An error envelope (a single element
// with a message list) is surfaced as an error.
func parseResponse(body []byte) ([]dataPoint, pageMeta, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, pageMeta{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope) < 2 {
		return nil, pageMeta{}, fmt.Errorf("unexpected envelope with %d elements", len(envelope))
	}

	var meta pageMeta
	if err := json.Unmarshal(envelope[0], &meta); err != nil {
		return nil, pageMeta{}, fmt.Errorf("decode pagination: %w", err)
	}

	var points []dataPoint
	if err := json.Unmarshal(envelope[1], &points); err != nil {
		return nil, pageMeta{}, fmt.Errorf("decode data points: %w", err)
	}
	return points, meta, nil
}
