// Package api serves the agent loop and prompt curation surface over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/macrooracle/internal/agents"
	"github.com/rewired-gh/macrooracle/internal/fred"
	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/metrics"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/orchestrator"
	"github.com/rewired-gh/macrooracle/internal/prompts"
	"github.com/rewired-gh/macrooracle/internal/scheduler"
	"github.com/rewired-gh/macrooracle/internal/verticals"
)

const maxBodyBytes = 1 << 20

// Loop is the pull and push surface of the scheduler.
type Loop interface {
	Latest() *models.LoopResult
	RunNow(ctx context.Context) (*models.LoopResult, error)
	Status() scheduler.Status
	Subscribe() *scheduler.Subscription
	Unsubscribe(sub *scheduler.Subscription)
}

// Prompts is the human curation surface of the prompt store.
type Prompts interface {
	List(ctx context.Context, filter ...models.PromptStatus) ([]*models.PromptEntry, error)
	Get(ctx context.Context, key string) (*models.PromptEntry, error)
	Curate(ctx context.Context, key string, req prompts.CurateRequest) (*models.PromptEntry, error)
	Rollback(ctx context.Context, key string, version int) (*models.PromptEntry, error)
	Reset(ctx context.Context, key string) (bool, error)
}

// Advisor names the active prompt key and reviews it.
type Advisor interface {
	Key() string
	Engine() string
	SuggestImprovements(ctx context.Context) (*orchestrator.Suggestions, error)
}

// RunLister returns persisted run summaries, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// DataCache is the upstream response cache.
type DataCache interface {
	CacheState() (valid bool, fetchedAt time.Time)
	Invalidate()
}

// SeriesSource is the upstream series source.
type SeriesSource interface {
	Fetch(ctx context.Context, ids []string, force bool) (*fred.FetchResult, error)
	Cached(id string) models.Series
}

// AgentSet looks up one signal agent by domain name.
type AgentSet interface {
	Agent(name string) (agents.Agent, bool)
	AgentNames() []string
}

// Verticals serves the sector dashboards.
type Verticals interface {
	Data(ctx context.Context, id string, force bool) (*verticals.Data, error)
	Analysis(ctx context.Context, id string, force bool) (*verticals.Analysis, error)
}

// Config holds listener settings.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	WSWriteTimeout    time.Duration
	WSPingInterval    time.Duration
}

// DefaultConfig returns the default listener settings.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8000",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		WSWriteTimeout:    10 * time.Second,
		WSPingInterval:    30 * time.Second,
	}
}

// Server wraps the HTTP listener and handlers.
type Server struct {
	config   Config
	loop     Loop
	prompts  Prompts
	advisor  Advisor
	runs     RunLister
	cache    DataCache
	source   SeriesSource
	series   []string
	agents   AgentSet
	sectors  Verticals
	upgrader websocket.Upgrader
	clock    func() time.Time

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithPrompts enables the /api/prompts routes.
func WithPrompts(p Prompts, a Advisor) Option {
	return func(s *Server) {
		s.prompts = p
		s.advisor = a
	}
}

// WithRuns enables /api/runs.
func WithRuns(r RunLister) Option {
	return func(s *Server) { s.runs = r }
}

// WithDataCache reports cache state in /api/health and enables /api/cache/invalidate.
func WithDataCache(c DataCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithSeries enables /api/data/series/{id}. ids are the series the agents read.
func WithSeries(src SeriesSource, ids []string) Option {
	return func(s *Server) {
		s.source = src
		s.series = ids
	}
}

// WithAgents enables /api/agents/{name}. It needs WithSeries for data.
func WithAgents(a AgentSet) Option {
	return func(s *Server) { s.agents = a }
}

// WithVerticals enables /api/verticals and /api/v/{vid}/*.
func WithVerticals(v Verticals) Option {
	return func(s *Server) { s.sectors = v }
}

// NewServer prepares a server over loop.
func NewServer(config Config, loop Loop, opts ...Option) *Server {
	d := DefaultConfig()
	if config.WSWriteTimeout <= 0 {
		config.WSWriteTimeout = d.WSWriteTimeout
	}
	if config.WSPingInterval <= 0 {
		config.WSPingInterval = d.WSPingInterval
	}
	s := &Server{
		config: config,
		loop:   loop,
		clock:  func() time.Time { return time.Now().UTC() },
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/agents/latest", s.handleLatest)
	mux.HandleFunc("POST /api/agents/run-now", s.handleRunNow)
	mux.HandleFunc("GET /api/agents/status", s.handleStatus)
	mux.HandleFunc("GET /ws/agents", s.handleAgentFeed)
	mux.Handle("GET /metrics", metrics.Handler())

	if s.cache != nil {
		mux.HandleFunc("POST /api/cache/invalidate", s.handleInvalidate)
	}
	if s.runs != nil {
		mux.HandleFunc("GET /api/runs", s.handleRuns)
	}
	if s.source != nil {
		mux.HandleFunc("GET /api/data/series/{id}", s.handleSeries)
		if s.agents != nil {
			mux.HandleFunc("GET /api/agents/{name}", s.handleAgent)
		}
	}
	if s.sectors != nil {
		mux.HandleFunc("GET /api/verticals", s.handleVerticals)
		mux.HandleFunc("GET /api/v/{vid}/config", s.handleVerticalConfig)
		mux.HandleFunc("GET /api/v/{vid}/data", s.handleVerticalData)
		mux.HandleFunc("GET /api/v/{vid}/analysis", s.handleVerticalAnalysis)
	}
	if s.prompts != nil && s.advisor != nil {
		mux.HandleFunc("GET /api/prompts", s.handleListPrompts)
		mux.HandleFunc("GET /api/prompts/active", s.handleActivePrompt)
		mux.HandleFunc("POST /api/prompts/curate", s.handleCurate)
		mux.HandleFunc("POST /api/prompts/rollback", s.handleRollback)
		mux.HandleFunc("GET /api/prompts/improve", s.handleImprove)
		mux.HandleFunc("GET /api/prompts/performance", s.handlePerformance)
		mux.HandleFunc("POST /api/prompts/reset", s.handleReset)
	}
	return mux
}

// Start binds the listener and serves in the background until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("api: server already started")
	}
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.config.Addr, err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.listener = listener
	s.server = server
	s.startTime = s.clock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server error: %v", err)
		}
	}()
	logger.Info("API listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string           `json:"status"`
	Engine        string           `json:"synthesis_engine,omitempty"`
	CacheValid    bool             `json:"cache_valid"`
	LastFetch     *time.Time       `json:"last_fetch,omitempty"`
	AgentLoop     scheduler.Status `json:"agent_loop"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		AgentLoop:     s.loop.Status(),
		UptimeSeconds: s.uptimeSeconds(),
	}
	if s.advisor != nil {
		resp.Engine = s.advisor.Engine()
	}
	if s.cache != nil {
		valid, at := s.cache.CacheState()
		resp.CacheValid = valid
		if !at.IsZero() {
			resp.LastFetch = &at
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"service":    "macrooracle",
		"agent_loop": s.loop.Status(),
		"endpoints": map[string]string{
			"latest_result": "/api/agents/latest",
			"force_run":     "/api/agents/run-now",
			"loop_status":   "/api/agents/status",
			"websocket":     "/ws/agents",
			"prompts":       "/api/prompts",
			"runs":          "/api/runs",
			"single_agent":  "/api/agents/{name}",
			"series":        "/api/data/series/{id}",
			"verticals":     "/api/verticals",
			"health":        "/api/health",
			"metrics":       "/metrics",
		},
	}
	if s.advisor != nil {
		resp["synthesis_engine"] = s.advisor.Engine()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.cache.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache invalidated"})
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	if err := json.NewDecoder(reader).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("payload exceeds limit")
		}
		return errors.New("invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
