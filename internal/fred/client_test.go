package fred

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	c := DefaultConfig()
	c.BaseURL = baseURL
	c.APIKey = "test-key"
	c.Timeout = 5 * time.Second
	c.BatchPause = 0
	c.RetryDelay = time.Millisecond
	return c
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestFetchParsesObservations(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series/observations", r.URL.Path)
		q := r.URL.Query()
		gotQuery = map[string]string{
			"series_id":         q.Get("series_id"),
			"api_key":           q.Get("api_key"),
			"file_type":         q.Get("file_type"),
			"observation_start": q.Get("observation_start"),
			"observation_end":   q.Get("observation_end"),
			"sort_order":        q.Get("sort_order"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"observations":[
			{"date":"2026-03-05","value":"4.10"},
			{"date":"2026-03-04","value":"4.00"},
			{"date":"2026-03-06","value":"."},
			{"date":"2026-03-09","value":"4.20"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	c.now = fixedNow

	res, err := c.Fetch(context.Background(), []string{"DGS10"}, false)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.False(t, res.Cached)

	s := res.Series["DGS10"]
	require.Len(t, s, 3, "missing-value placeholder should be skipped")
	assert.NoError(t, s.Validate())
	assert.Equal(t, 4.00, s[0].Value)
	assert.Equal(t, 4.20, s[2].Value)

	assert.Equal(t, map[string]string{
		"series_id":         "DGS10",
		"api_key":           "test-key",
		"file_type":         "json",
		"observation_start": "2024-03-10",
		"observation_end":   "2026-03-10",
		"sort_order":        "asc",
	}, gotQuery)
}

func TestFetchCollectsPerSeriesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("series_id") == "BAD" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"observations":[{"date":"2026-03-09","value":"1.5"}]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	res, err := c.Fetch(context.Background(), []string{"GOOD", "BAD", "ALSO"}, false)
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "BAD", res.Errors[0].SeriesID)
	assert.Contains(t, res.ErrorStrings()[0], "BAD")
	assert.Len(t, res.Series, 3)
	assert.Empty(t, res.Series["BAD"])
	assert.Equal(t, 2, res.Series.NonEmpty())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"observations":[{"date":"2026-03-09","value":"2.0"}]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	res, err := c.Fetch(context.Background(), []string{"VIXCLS"}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	res, err := c.Fetch(context.Background(), []string{"VIXCLS"}, false)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchServesCacheWithinTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"observations":[{"date":"2026-03-09","value":"2.0"}]}`))
	}))
	defer srv.Close()

	now := fixedNow()
	c := NewClient(testConfig(srv.URL))
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Fetch(ctx, []string{"A", "B"}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	res, err := c.Fetch(ctx, []string{"A"}, false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(2), calls.Load())

	// Uncached id forces a refetch.
	_, err = c.Fetch(ctx, []string{"A", "C"}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())

	res, err = c.Fetch(ctx, []string{"A"}, true)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(5), calls.Load())

	now = now.Add(16 * time.Minute)
	res, err = c.Fetch(ctx, []string{"A"}, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(6), calls.Load())

	valid, at := c.CacheState()
	assert.True(t, valid)
	assert.Equal(t, now, at)

	c.Invalidate()
	valid, _ = c.CacheState()
	assert.False(t, valid)
	_, err = c.Fetch(ctx, []string{"A"}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(7), calls.Load())
	assert.Len(t, c.Cached("A"), 1)
}

func TestFetchKeepsPerSeriesTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"observations":[{"date":"2026-03-09","value":"2.0"}]}`))
	}))
	defer srv.Close()

	start := fixedNow()
	now := start
	c := NewClient(testConfig(srv.URL))
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Fetch(ctx, []string{"A"}, false)
	require.NoError(t, err)

	now = start.Add(10 * time.Minute)
	_, err = c.Fetch(ctx, []string{"B"}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	// Fetching B must not extend A's lifetime.
	now = start.Add(16 * time.Minute)
	res, err := c.Fetch(ctx, []string{"A"}, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(3), calls.Load())

	res, err = c.Fetch(ctx, []string{"B"}, false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, start.Add(10*time.Minute), res.FetchedAt)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchHonorsContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(testConfig(srv.URL))
	_, err := c.Fetch(ctx, []string{"A"}, false)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCatalog(t *testing.T) {
	ids := AllSeriesIDs()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate series %s", id)
		seen[id] = true
	}
	for _, want := range []string{"DGS10", "DGS2", "T10Y2Y", "BAMLH0A0HYM2", "VIXCLS", "M2SL", "ICSA", "DTWEXBGS"} {
		assert.True(t, seen[want], "catalog missing %s", want)
	}

	def, ok := Lookup("UNRATE")
	require.True(t, ok)
	assert.Equal(t, "Monthly", def.Frequency)
	_, ok = Lookup("NOPE")
	assert.False(t, ok)
}
