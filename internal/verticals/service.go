package verticals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rewired-gh/macrooracle/internal/fred"
	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/metrics"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/orchestrator"
	"github.com/rewired-gh/macrooracle/internal/prompts"
)

var (
	ErrUnknownVertical = errors.New("unknown vertical")
	ErrNoData          = errors.New("no observations available")
)

// Prompt status reported when no reasoner is configured.
const statusNone = "none"

const dateLayout = "2006-01-02"

// Source is the upstream series source.
type Source interface {
	Fetch(ctx context.Context, ids []string, force bool) (*fred.FetchResult, error)
	Cached(id string) models.Series
}

// Primary exposes the agent loop's latest result.
type Primary interface {
	Latest() *models.LoopResult
}

// Config holds vertical analysis settings.
type Config struct {
	AnalysisTTL      time.Duration
	SynthesisTimeout time.Duration
	BootstrapTimeout time.Duration
	// PrimarySeries overrides the series shown for the primary vertical.
	PrimarySeries []string
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		AnalysisTTL:      15 * time.Minute,
		SynthesisTimeout: 60 * time.Second,
		BootstrapTimeout: 90 * time.Second,
	}
}

// Data is the observation set behind one vertical's dashboard.
type Data struct {
	VerticalID  string           `json:"vertical_id"`
	Series      models.SeriesMap `json:"data"`
	SeriesCount int              `json:"series_count"`
	Errors      []string         `json:"errors,omitempty"`
	FetchedAt   *time.Time       `json:"fetched_at,omitempty"`
	Cached      bool             `json:"cached"`
}

// Metric is the latest reading of one series. ChangePct is relative to the previous observation.
type Metric struct {
	SeriesName string   `json:"series_name"`
	Value      float64  `json:"value"`
	Date       string   `json:"date"`
	ChangePct  *float64 `json:"change_pct"`
	Units      string   `json:"units"`
}

// Analysis is one vertical's synthesis. Synthesis is nil when no reasoner is configured.
type Analysis struct {
	VerticalID    string                   `json:"vertical_id"`
	Metrics       map[string]Metric        `json:"metrics,omitempty"`
	Signals       map[string]models.Signal `json:"signals,omitempty"`
	Synthesis     *models.Synthesis        `json:"synthesis"`
	PromptStatus  string                   `json:"prompt_status"`
	PromptVersion int                      `json:"prompt_version"`
	Note          string                   `json:"note,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
}

// Service fetches and analyzes verticals.
type Service struct {
	source   Source
	primary  Primary
	store    orchestrator.PromptStore
	reasoner orchestrator.Reasoner
	config   Config
	now      func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	analyses map[string]*Analysis
}

// Option customizes a Service.
type Option func(*Service)

// WithPrimary serves the primary vertical from the agent loop.
func WithPrimary(p Primary) Option {
	return func(s *Service) { s.primary = p }
}

// WithReasoning enables synthesis. Each vertical resolves its own prompt entry from store.
func WithReasoning(store orchestrator.PromptStore, reasoner orchestrator.Reasoner) Option {
	return func(s *Service) {
		s.store = store
		s.reasoner = reasoner
	}
}

// New creates a service over source.
func New(source Source, config Config, opts ...Option) *Service {
	d := DefaultConfig()
	if config.AnalysisTTL <= 0 {
		config.AnalysisTTL = d.AnalysisTTL
	}
	if config.SynthesisTimeout <= 0 {
		config.SynthesisTimeout = d.SynthesisTimeout
	}
	if config.BootstrapTimeout <= 0 {
		config.BootstrapTimeout = d.BootstrapTimeout
	}
	s := &Service{
		source:   source,
		config:   config,
		now:      time.Now,
		analyses: make(map[string]*Analysis),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// HasReasoner reports whether analyses include a synthesis.
func (s *Service) HasReasoner() bool { return s.reasoner != nil && s.store != nil }

// Data returns the vertical's non-empty series. Upstream responses are cached by the source;
// force bypasses that cache. The primary vertical reads whatever the agent loop last fetched.
func (s *Service) Data(ctx context.Context, id string, force bool) (*Data, error) {
	v, ok := Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVertical, id)
	}
	if v.Primary {
		return s.primaryData(v), nil
	}

	res, err := s.source.Fetch(ctx, v.SeriesIDs(), force)
	if err != nil {
		return nil, err
	}
	d := &Data{
		VerticalID: v.ID,
		Series:     make(models.SeriesMap, len(res.Series)),
		Errors:     res.ErrorStrings(),
		Cached:     res.Cached,
	}
	for sid, obs := range res.Series {
		if len(obs) > 0 {
			d.Series[sid] = obs
		}
	}
	d.SeriesCount = len(d.Series)
	if !res.FetchedAt.IsZero() {
		at := res.FetchedAt.UTC()
		d.FetchedAt = &at
	}
	return d, nil
}

func (s *Service) primaryData(v *Vertical) *Data {
	ids := s.config.PrimarySeries
	if len(ids) == 0 {
		ids = v.SeriesIDs()
	}
	d := &Data{VerticalID: v.ID, Series: make(models.SeriesMap, len(ids)), Cached: true}
	for _, sid := range ids {
		if obs := s.source.Cached(sid); len(obs) > 0 {
			d.Series[sid] = obs
		}
	}
	d.SeriesCount = len(d.Series)
	if s.primary != nil {
		if latest := s.primary.Latest(); latest != nil {
			at := latest.Loop.Timestamp
			d.FetchedAt = &at
		}
	}
	return d
}

// Analysis returns the vertical's latest analysis, reusing one younger than AnalysisTTL unless
// force is set. Concurrent requests for the same vertical share one synthesis.
func (s *Service) Analysis(ctx context.Context, id string, force bool) (*Analysis, error) {
	v, ok := Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVertical, id)
	}
	if v.Primary {
		return s.primaryAnalysis(v), nil
	}
	if !force {
		if a := s.cached(v.ID); a != nil {
			return a, nil
		}
	}
	out, err, _ := s.group.Do(v.ID, func() (any, error) {
		// A caller that missed the cache may arrive just after another finished.
		if !force {
			if a := s.cached(v.ID); a != nil {
				return a, nil
			}
		}
		return s.analyze(ctx, v, force)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Analysis), nil
}

func (s *Service) primaryAnalysis(v *Vertical) *Analysis {
	var latest *models.LoopResult
	if s.primary != nil {
		latest = s.primary.Latest()
	}
	if latest == nil {
		return &Analysis{
			VerticalID: v.ID,
			Note:       "agent loop has not completed its first run yet; see /api/agents/latest",
		}
	}
	syn := latest.Synthesis
	return &Analysis{
		VerticalID:    v.ID,
		Signals:       latest.Signals,
		Synthesis:     &syn,
		PromptStatus:  latest.PromptStatus,
		PromptVersion: latest.PromptVersion,
		Timestamp:     latest.Timestamp,
	}
}

func (s *Service) cached(id string) *Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok || s.now().Sub(a.Timestamp) >= s.config.AnalysisTTL {
		return nil
	}
	return a
}

func (s *Service) remember(a *Analysis) {
	s.mu.Lock()
	s.analyses[a.VerticalID] = a
	s.mu.Unlock()
}

func (s *Service) analyze(ctx context.Context, v *Vertical, force bool) (*Analysis, error) {
	data, err := s.Data(ctx, v.ID, force)
	if err != nil {
		return nil, err
	}
	summary := Summarize(v, data.Series)
	if len(summary) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, v.ID)
	}

	a := &Analysis{VerticalID: v.ID, Metrics: summary, Timestamp: s.now().UTC()}
	if !s.HasReasoner() {
		a.PromptStatus = statusNone
		metrics.VerticalAnalyses.WithLabelValues(v.ID, "metrics_only").Inc()
		s.remember(a)
		return a, nil
	}

	key := prompts.DomainKey(v.ID)
	res, err := s.store.Resolve(ctx, prompts.ResolveRequest{
		Key:         key,
		Domains:     []string{v.ID},
		Intent:      v.Description,
		GeneratedBy: "bootstrap-" + v.ID,
		Generate: func(ctx context.Context) (string, error) {
			return s.bootstrap(ctx, v, summary)
		},
	})
	if err != nil {
		logger.Error("Failed to resolve system prompt for %s: %v", key, err)
		res = prompts.Resolution{Status: models.StatusFallback, Err: err}
	}
	system := res.Text
	if res.Status == models.StatusFallback {
		system = v.Template()
	}
	a.PromptStatus = string(res.Status)
	a.PromptVersion = res.Version

	syn, outcome := s.synthesize(ctx, v, system, summary)
	a.Synthesis = &syn
	metrics.VerticalAnalyses.WithLabelValues(v.ID, outcome).Inc()

	if res.Status != models.StatusFallback {
		run := prompts.RunOutcome{
			Confidence: syn.Confidence,
			Regime:     syn.MarketRegime,
			Conflicts:  len(syn.Conflicts),
			Failed:     outcome != "ok",
		}
		if _, err := s.store.RecordRun(ctx, key, run); err != nil {
			logger.Warn("Failed to record prompt run for %s: %v", key, err)
		}
	}

	// A failed call is retried on the next request instead of being served until the TTL ends.
	if outcome != "error" {
		s.remember(a)
	}
	return a, nil
}

func (s *Service) bootstrap(ctx context.Context, v *Vertical, summary map[string]Metric) (string, error) {
	logger.Info("No prompt found for vertical %s, bootstrapping via meta-prompt", v.ID)
	ids, err := json.Marshal(sortedKeys(summary))
	if err != nil {
		return "", err
	}
	meta := fmt.Sprintf(bootstrapMetaPrompt, v.Name, ids, v.Description,
		strings.Join(v.Customers, ", "), v.Template())

	ctx, cancel := context.WithTimeout(ctx, s.config.BootstrapTimeout)
	defer cancel()
	return s.reasoner.Complete(ctx, "", meta)
}

// synthesize returns the synthesis plus an outcome label: ok, degraded or error.
func (s *Service) synthesize(ctx context.Context, v *Vertical, system string, summary map[string]Metric) (models.Synthesis, string) {
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return orchestrator.ErrorSynthesis(err.Error()), "error"
	}
	user := fmt.Sprintf(userPromptTemplate, s.now().Format(dateLayout), v.Name, payload)

	ctx, cancel := context.WithTimeout(ctx, s.config.SynthesisTimeout)
	defer cancel()

	text, err := s.reasoner.Complete(ctx, system, user)
	if err != nil {
		logger.Error("Vertical %s synthesis failed: %v", v.ID, err)
		return orchestrator.ErrorSynthesis(err.Error()), "error"
	}
	syn, ok := orchestrator.ParseSynthesis(text)
	if !ok {
		logger.Warn("Vertical %s output was not JSON, returning degraded synthesis", v.ID)
		return syn, "degraded"
	}
	return syn, "ok"
}

// Summarize reduces each non-empty series to its latest reading. Series with a non-finite
// latest value are skipped.
func Summarize(v *Vertical, data models.SeriesMap) map[string]Metric {
	out := make(map[string]Metric, len(data))
	for sid, obs := range data {
		last, ok := obs.Last()
		if !ok || !finite(last.Value) {
			continue
		}
		m := Metric{SeriesName: sid, Value: last.Value, Date: last.Date.Format(dateLayout)}
		if def, ok := v.Lookup(sid); ok {
			m.SeriesName = def.Name
			m.Units = def.Units
		}
		if len(obs) > 1 {
			if prev := obs[len(obs)-2].Value; prev != 0 && finite(prev) {
				change := math.Round((last.Value-prev)/math.Abs(prev)*100*100) / 100
				if finite(change) {
					m.ChangePct = &change
				}
			}
		}
		out[sid] = m
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortedKeys(m map[string]Metric) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
