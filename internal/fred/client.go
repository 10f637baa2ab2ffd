// Package fred fetches economic time series from the FRED observations API.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/metrics"
	"github.com/rewired-gh/macrooracle/internal/models"
)

const dateLayout = "2006-01-02"

// Config holds client settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	CacheTTL      time.Duration
	LookbackYears int
	BatchSize     int
	BatchPause    time.Duration
	MaxRetries    int
	RetryDelay    time.Duration // linear: attempt i waits (i+1)*RetryDelay
}

// DefaultConfig returns the default client settings without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.stlouisfed.org/fred",
		Timeout:       30 * time.Second,
		CacheTTL:      15 * time.Minute,
		LookbackYears: 2,
		BatchSize:     4,
		BatchPause:    100 * time.Millisecond,
		MaxRetries:    3,
		RetryDelay:    time.Second,
	}
}

// SeriesError records a failed series fetch. The series is returned empty.
type SeriesError struct {
	SeriesID string
	Err      error
}

func (e SeriesError) Error() string {
	return fmt.Sprintf("%s: %v", e.SeriesID, e.Err)
}

func (e SeriesError) Unwrap() error { return e.Err }

// FetchResult is one batch of series. Every requested ID is present in Series, empty on failure.
type FetchResult struct {
	Series    models.SeriesMap
	Errors    []SeriesError
	FetchedAt time.Time
	Cached    bool
}

// ErrorStrings flattens Errors for reporting.
func (r *FetchResult) ErrorStrings() []string {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Error()
	}
	return out
}

// Client provides access to the FRED API with an in-memory response cache.
type Client struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	cache     map[string]cacheEntry
	cachedAt  time.Time
	fetchedAt time.Time
}

// cacheEntry stamps each series separately so fetching one group of IDs never refreshes
// another group's TTL.
type cacheEntry struct {
	series    models.Series
	cachedAt  time.Time
	fetchedAt time.Time
}

// NewClient creates a new FRED client
func NewClient(config Config) *Client {
	d := DefaultConfig()
	if config.BatchSize < 1 {
		config.BatchSize = d.BatchSize
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.LookbackYears < 1 {
		config.LookbackYears = d.LookbackYears
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Fetch retrieves ids. A valid cache holding every id is served unless force is set.
// Per-series failures are collected in FetchResult.Errors; the returned error is non-nil
// only when ctx ends.
func (c *Client) Fetch(ctx context.Context, ids []string, force bool) (*FetchResult, error) {
	if !force {
		if res, ok := c.fromCache(ids); ok {
			return res, nil
		}
	}

	now := c.now()
	end := now.Format(dateLayout)
	start := now.AddDate(-c.config.LookbackYears, 0, 0).Format(dateLayout)

	result := &FetchResult{Series: make(models.SeriesMap, len(ids)), FetchedAt: now}
	var mu sync.Mutex

	for i := 0; i < len(ids); i += c.config.BatchSize {
		batch := ids[i:min(i+c.config.BatchSize, len(ids))]

		var g errgroup.Group
		for _, id := range batch {
			g.Go(func() error {
				series, err := c.fetchSeries(ctx, id, start, end)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					metrics.SeriesFetched.WithLabelValues("error").Inc()
					result.Errors = append(result.Errors, SeriesError{SeriesID: id, Err: err})
					result.Series[id] = models.Series{}
					return nil
				}
				metrics.SeriesFetched.WithLabelValues("ok").Inc()
				result.Series[id] = series
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i+c.config.BatchSize < len(ids) && c.config.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.BatchPause):
			}
		}
	}

	if len(result.Errors) > 0 {
		logger.Warn("FRED fetch: %d of %d series failed", len(result.Errors), len(ids))
	}

	c.mu.Lock()
	stamp := c.now()
	for id, s := range result.Series {
		c.cache[id] = cacheEntry{series: s, cachedAt: stamp, fetchedAt: now}
	}
	c.cachedAt = stamp
	c.fetchedAt = now
	c.mu.Unlock()

	return result, nil
}

func (c *Client) fromCache(ids []string) (*FetchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make(models.SeriesMap, len(ids))
	var fetchedAt time.Time
	for _, id := range ids {
		e, ok := c.cache[id]
		if !ok || e.cachedAt.IsZero() || now.Sub(e.cachedAt) >= c.config.CacheTTL {
			return nil, false
		}
		out[id] = e.series
		if fetchedAt.IsZero() || e.fetchedAt.Before(fetchedAt) {
			fetchedAt = e.fetchedAt
		}
	}
	return &FetchResult{Series: out, FetchedAt: fetchedAt, Cached: true}, true
}

// Invalidate expires every cached series so the next Fetch goes upstream.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	for id, e := range c.cache {
		e.cachedAt = time.Time{}
		c.cache[id] = e
	}
	c.mu.Unlock()
}

// CacheState reports whether the cache is within its TTL and when it was last filled.
func (c *Client) CacheState() (valid bool, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	valid = !c.cachedAt.IsZero() && c.now().Sub(c.cachedAt) < c.config.CacheTTL
	return valid, c.fetchedAt
}

// Cached returns the last observations held for one series, stale or not.
func (c *Client) Cached(id string) models.Series {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache[id].series
}

func (c *Client) fetchSeries(ctx context.Context, id, start, end string) (models.Series, error) {
	u, err := url.Parse(c.config.BaseURL + "/series/observations")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("series_id", id)
	q.Set("api_key", c.config.APIKey)
	q.Set("file_type", "json")
	q.Set("observation_start", start)
	q.Set("observation_end", end)
	q.Set("sort_order", "asc")
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var body observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode observations: %w", err)
	}

	obs := make([]models.Observation, 0, len(body.Observations))
	for _, o := range body.Observations {
		if o.Value == "." {
			continue // FRED placeholder for a missing value
		}
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		d, err := time.Parse(dateLayout, o.Date)
		if err != nil {
			continue
		}
		obs = append(obs, models.Observation{Date: d, Value: v})
	}
	return models.NormalizeSeries(obs), nil
}

// doRequest retries transport errors and 5xx responses with a linear, context-aware delay.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		default:
			return resp, nil
		}

		if i == c.config.MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * c.config.RetryDelay):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
