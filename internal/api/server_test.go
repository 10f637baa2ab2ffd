package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/macrooracle/internal/fred"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/orchestrator"
	"github.com/rewired-gh/macrooracle/internal/prompts"
	"github.com/rewired-gh/macrooracle/internal/scheduler"
)

const testKey = "credit_risk+yield_curve"

type stubFetcher struct {
	mu   sync.Mutex
	fail error
}

func (f *stubFetcher) Fetch(_ context.Context, ids []string, _ bool) (*fred.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	res := &fred.FetchResult{Series: models.SeriesMap{}, FetchedAt: time.Now()}
	for _, id := range ids {
		res.Series[id] = models.Series{{Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Value: 4.2}}
	}
	return res, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) RunAll(_ context.Context, data models.SeriesMap) models.Analysis {
	return models.Analysis{
		Signals: map[string]models.Signal{},
		Synthesis: models.Synthesis{
			MarketRegime:   "goldilocks",
			RegimeLabel:    "Goldilocks",
			DominantSignal: models.Bullish,
			Confidence:     0.6,
		},
		Engine:     models.EngineRuleBased,
		AgentCount: len(data),
	}
}

type stubAdvisor struct {
	suggestions *orchestrator.Suggestions
	err         error
}

func (a *stubAdvisor) Key() string    { return testKey }
func (a *stubAdvisor) Engine() string { return models.EngineRuleBased }
func (a *stubAdvisor) SuggestImprovements(context.Context) (*orchestrator.Suggestions, error) {
	return a.suggestions, a.err
}

type stubRuns struct {
	limit int
}

func (s *stubRuns) ListRuns(_ context.Context, limit int) ([]models.RunRecord, error) {
	s.limit = limit
	return []models.RunRecord{{ID: "r1", RunNumber: 1, MarketRegime: "goldilocks"}}, nil
}

type stubCache struct {
	invalidated bool
}

func (c *stubCache) CacheState() (bool, time.Time) {
	return !c.invalidated, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func (c *stubCache) Invalidate() { c.invalidated = true }

type fixture struct {
	loop    *scheduler.Loop
	fetcher *stubFetcher
	store   *prompts.Store
	advisor *stubAdvisor
	runs    *stubRuns
	cache   *stubCache
	handler http.Handler
	server  *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: &stubFetcher{},
		store:   prompts.NewStore(prompts.NewMemoryRepository(), prompts.DefaultConfig()),
		advisor: &stubAdvisor{},
		runs:    &stubRuns{},
		cache:   &stubCache{},
	}
	cfg := scheduler.DefaultConfig()
	cfg.Series = []string{"DGS10", "DGS2"}
	f.loop = scheduler.New(f.fetcher, stubAnalyzer{}, cfg)
	t.Cleanup(f.loop.Stop)

	f.server = NewServer(DefaultConfig(), f.loop,
		WithPrompts(f.store, f.advisor),
		WithRuns(f.runs),
		WithDataCache(f.cache),
	)
	f.handler = f.server.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) seedPrompt(t *testing.T) {
	t.Helper()
	_, err := f.store.SaveDraft(context.Background(), testKey, []string{"credit_risk", "yield_curve"},
		"You are a macro analyst.", "", "test")
	require.NoError(t, err)
}

func TestAgentEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/agents/latest", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "first run")

	rec = f.do(t, http.MethodPost, "/api/agents/run-now", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.LoopResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Loop.RunNumber)
	assert.Equal(t, "goldilocks", result.Synthesis.MarketRegime)

	rec = f.do(t, http.MethodGet, "/api/agents/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Loop.RunNumber)

	rec = f.do(t, http.MethodGet, "/api/agents/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.RunCount)
	assert.True(t, st.HasResult)

	rec = f.do(t, http.MethodGet, "/api/agents/run-now", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunNowFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.fail = errors.New("upstream down")

	rec := f.do(t, http.MethodPost, "/api/agents/run-now", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "upstream down")
}

func TestHealthAndCache(t *testing.T) {
	f := newFixture(t)

	body := decode(t, f.do(t, http.MethodGet, "/api/health", ""))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["cache_valid"])
	assert.Equal(t, models.EngineRuleBased, body["synthesis_engine"])
	assert.Contains(t, body, "agent_loop")

	rec := f.do(t, http.MethodPost, "/api/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.cache.invalidated)
	assert.Equal(t, false, decode(t, f.do(t, http.MethodGet, "/api/health", ""))["cache_valid"])

	index := decode(t, f.do(t, http.MethodGet, "/", ""))
	assert.Equal(t, "macrooracle", index["service"])
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", "").Code)
}

func TestRuns(t *testing.T) {
	f := newFixture(t)

	body := decode(t, f.do(t, http.MethodGet, "/api/runs", ""))
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, defaultRunsLimit, f.runs.limit)

	f.do(t, http.MethodGet, "/api/runs?limit=10000", "")
	assert.Equal(t, maxRunsLimit, f.runs.limit)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/runs?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/runs?limit=0", "").Code)
}

func TestActivePromptLifecycle(t *testing.T) {
	f := newFixture(t)

	body := decode(t, f.do(t, http.MethodGet, "/api/prompts/active", ""))
	assert.Equal(t, "none", body["status"])
	assert.Equal(t, testKey, body["key"])
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/prompts/curate", `{}`).Code)

	f.seedPrompt(t)

	body = decode(t, f.do(t, http.MethodGet, "/api/prompts/active", ""))
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, "You are a macro analyst.", body["system_prompt"])
	assert.Equal(t, []any{}, body["history"])

	rec := f.do(t, http.MethodPost, "/api/prompts/curate",
		`{"edited_prompt":"You are a careful macro analyst.","curator":"alice","notes":"tightened"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "curated", body["status"])
	assert.Equal(t, float64(2), body["version"])
	assert.Equal(t, "alice", body["curated_by"])

	body = decode(t, f.do(t, http.MethodGet, "/api/prompts/active", ""))
	assert.Equal(t, "You are a careful macro analyst.", body["system_prompt"])
	history := body["history"].([]any)
	require.Len(t, history, 1)
	item := history[0].(map[string]any)
	assert.Equal(t, float64(1), item["version"])
	assert.Equal(t, "draft", item["status"])
	assert.NotContains(t, item, "system_prompt", "history omits prior texts")

	rec = f.do(t, http.MethodPost, "/api/prompts/rollback", `{"version":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, float64(3), body["version"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/prompts/rollback", `{"version":99}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/prompts/rollback", `{"version":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/prompts/rollback", `{"version":`).Code)

	body = decode(t, f.do(t, http.MethodPost, "/api/prompts/reset", ""))
	assert.Equal(t, true, body["deleted"])
	body = decode(t, f.do(t, http.MethodPost, "/api/prompts/reset", ""))
	assert.Equal(t, false, body["deleted"])
}

func TestCurateDefaultsCurator(t *testing.T) {
	f := newFixture(t)
	f.seedPrompt(t)

	rec := f.do(t, http.MethodPost, "/api/prompts/curate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "human", decode(t, rec)["curated_by"])

	e, err := f.store.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "You are a macro analyst.", e.Text, "text kept without an edit")
}

func TestListPrompts(t *testing.T) {
	f := newFixture(t)
	f.seedPrompt(t)
	_, err := f.store.SaveDraft(context.Background(), "inflation", []string{"inflation"}, "Other prompt.", "", "test")
	require.NoError(t, err)
	_, err = f.store.Curate(context.Background(), "inflation", prompts.CurateRequest{Curator: "bob"})
	require.NoError(t, err)

	body := decode(t, f.do(t, http.MethodGet, "/api/prompts", ""))
	assert.Equal(t, float64(2), body["count"])
	first := body["prompts"].([]any)[0].(map[string]any)
	assert.Equal(t, "inflation", first["key"], "curated ranks first")
	assert.NotContains(t, first, "system_prompt")

	body = decode(t, f.do(t, http.MethodGet, "/api/prompts?status=draft", ""))
	assert.Equal(t, float64(1), body["count"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/prompts?status=fallback", "").Code)
}

func TestPromptPerformance(t *testing.T) {
	f := newFixture(t)

	body := decode(t, f.do(t, http.MethodGet, "/api/prompts/performance", ""))
	assert.Equal(t, "No prompt exists yet.", body["message"])

	f.seedPrompt(t)
	for i := 0; i < 4; i++ {
		_, err := f.store.RecordRun(context.Background(), testKey, prompts.RunOutcome{Confidence: 0.8, Regime: "goldilocks"})
		require.NoError(t, err)
	}

	body = decode(t, f.do(t, http.MethodGet, "/api/prompts/performance", ""))
	assert.Equal(t, testKey, body["key"])
	perf := body["performance"].(map[string]any)
	assert.Equal(t, float64(4), perf["runs"])
	health := body["health"].(map[string]any)
	assert.Equal(t, orchestrator.GradeHealthy, health["grade"])
}

func TestImprove(t *testing.T) {
	f := newFixture(t)

	f.advisor.err = orchestrator.ErrNoReasoner
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/prompts/improve", "").Code)

	f.advisor.err = orchestrator.ErrNoPrompt
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/prompts/improve", "").Code)

	f.advisor.err = errors.New("self-improvement call failed: Anthropic API 529")
	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodGet, "/api/prompts/improve", "").Code)

	f.advisor.err = nil
	f.advisor.suggestions = &orchestrator.Suggestions{
		BlindSpots:        []string{"Low average confidence"},
		OverallAssessment: "Adequate",
		Urgency:           "low",
	}
	rec := f.do(t, http.MethodGet, "/api/prompts/improve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "low", body["urgency"])
	assert.Equal(t, []any{"Low average confidence"}, body["blind_spots"])
}

func TestPromptRoutesRequireStore(t *testing.T) {
	f := newFixture(t)
	s := NewServer(DefaultConfig(), f.loop)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prompts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentFeed(t *testing.T) {
	f := newFixture(t)
	_, err := f.loop.RunNow(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/agents"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	readRun := func() int {
		t.Helper()
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		var r models.LoopResult
		require.NoError(t, json.Unmarshal(data, &r))
		return r.Loop.RunNumber
	}

	assert.Equal(t, 1, readRun(), "cached result is sent first")

	require.Eventually(t, func() bool { return f.loop.Status().Subscribers == 1 },
		5*time.Second, 5*time.Millisecond)
	_, err = f.loop.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, readRun())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.loop.Status().Subscribers == 0 },
		5*time.Second, 5*time.Millisecond, "handler unsubscribes when the client leaves")
}

func TestStartAndShutdown(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s := NewServer(cfg, f.loop)

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/api/agents/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Shutdown(ctx))
}
