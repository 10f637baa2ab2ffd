// Package orchestrator runs the signal agents on one snapshot and combines their output into a
// single market-regime synthesis, either through the reasoning service or a deterministic fallback.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/macrooracle/internal/agents"
	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/metrics"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/prompts"
)

var (
	ErrNoReasoner = errors.New("no reasoning service configured")
	ErrNoPrompt   = errors.New("no prompt entry exists yet")
)

// Prompt status reported when no reasoner is configured.
const statusNotApplicable = "n/a"

const bootstrapGenerator = "bootstrap-meta-prompt"

// PromptStore resolves and scores the synthesis system prompt.
type PromptStore interface {
	Resolve(ctx context.Context, req prompts.ResolveRequest) (prompts.Resolution, error)
	RecordRun(ctx context.Context, key string, out prompts.RunOutcome) (*models.PromptEntry, error)
	Get(ctx context.Context, key string) (*models.PromptEntry, error)
}

// Reasoner completes a prompt with an optional system message.
type Reasoner interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds orchestrator settings.
type Config struct {
	SynthesisTimeout time.Duration
	BootstrapTimeout time.Duration
	UserIntent       string
	SampleSize       int
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		SynthesisTimeout: 60 * time.Second,
		BootstrapTimeout: 90 * time.Second,
		UserIntent:       "8-agent treasury bond analysis with macro to DeFi transmission",
		SampleSize:       5,
	}
}

// Sample is a compact record of a recent reasoning synthesis.
type Sample struct {
	Timestamp  time.Time       `json:"timestamp"`
	Regime     string          `json:"regime"`
	Confidence float64         `json:"confidence"`
	Conflicts  models.TextList `json:"conflicts"`
	Headline   string          `json:"headline"`
}

// Orchestrator runs the agents and synthesizes their signals.
type Orchestrator struct {
	agents   []agents.Agent
	store    PromptStore
	reasoner Reasoner
	config   Config
	key      string
	domains  []string
	now      func() time.Time

	mu      sync.Mutex
	samples []Sample
}

// New creates an orchestrator. reasoner may be nil, in which case the rule-based synthesis is used.
func New(list []agents.Agent, store PromptStore, reasoner Reasoner, config Config) *Orchestrator {
	if config.SampleSize < 1 {
		config.SampleSize = DefaultConfig().SampleSize
	}
	domains := make([]string, len(list))
	for i, a := range list {
		domains[i] = a.Name()
	}
	return &Orchestrator{
		agents:   list,
		store:    store,
		reasoner: reasoner,
		config:   config,
		key:      prompts.DomainKey(domains...),
		domains:  domains,
		now:      time.Now,
	}
}

// Key returns the prompt domain key this orchestrator resolves.
func (o *Orchestrator) Key() string { return o.key }

// Agent returns the agent registered under the domain name.
func (o *Orchestrator) Agent(name string) (agents.Agent, bool) {
	for _, a := range o.agents {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// AgentNames returns the domain names in weighting order.
func (o *Orchestrator) AgentNames() []string {
	return append([]string(nil), o.domains...)
}

// HasReasoner reports whether reasoning synthesis is enabled.
func (o *Orchestrator) HasReasoner() bool { return o.reasoner != nil && o.store != nil }

// Engine names the synthesis engine in use.
func (o *Orchestrator) Engine() string {
	if o.HasReasoner() {
		return models.EngineReasoning
	}
	return models.EngineRuleBased
}

// RunAll runs every agent on data and synthesizes the result. It always returns a well-formed Analysis.
func (o *Orchestrator) RunAll(ctx context.Context, data models.SeriesMap) models.Analysis {
	signals := o.runAgents(data)

	analysis := models.Analysis{
		Signals:    signals,
		AgentCount: len(o.agents),
		Timestamp:  o.now().UTC(),
	}

	if !o.HasReasoner() {
		analysis.Synthesis = FallbackSynthesis(signals)
		analysis.Engine = models.EngineRuleBased
		analysis.PromptStatus = statusNotApplicable
		metrics.SynthesesTotal.WithLabelValues(models.EngineRuleBased, "ok").Inc()
		return analysis
	}

	analysis.Engine = models.EngineReasoning
	res, err := o.resolvePrompt(ctx)
	if err != nil {
		logger.Error("Failed to resolve system prompt: %v", err)
		res = prompts.Resolution{Status: models.StatusFallback, Err: err}
	}
	system := res.Text
	if res.Status == models.StatusFallback {
		system = fallbackPrompt
	}
	analysis.PromptStatus = string(res.Status)
	analysis.PromptVersion = res.Version

	syn, outcome := o.synthesize(ctx, system, signals)
	analysis.Synthesis = syn
	metrics.SynthesesTotal.WithLabelValues(models.EngineReasoning, outcome).Inc()

	if res.Status != models.StatusFallback {
		run := prompts.RunOutcome{
			Confidence: syn.Confidence,
			Regime:     syn.MarketRegime,
			Conflicts:  len(syn.Conflicts),
			Failed:     outcome != "ok",
		}
		if _, err := o.store.RecordRun(ctx, o.key, run); err != nil {
			logger.Warn("Failed to record prompt run for %s: %v", o.key, err)
		}
	}

	o.addSample(Sample{
		Timestamp:  analysis.Timestamp,
		Regime:     syn.MarketRegime,
		Confidence: syn.Confidence,
		Conflicts:  syn.Conflicts,
		Headline:   syn.Headline,
	})
	return analysis
}

func (o *Orchestrator) runAgents(data models.SeriesMap) map[string]models.Signal {
	out := make([]models.Signal, len(o.agents))
	var g errgroup.Group
	for i, a := range o.agents {
		g.Go(func() error {
			out[i] = a.Analyze(data)
			return nil
		})
	}
	_ = g.Wait()

	signals := make(map[string]models.Signal, len(out))
	for i, a := range o.agents {
		signals[a.Name()] = out[i]
	}
	return signals
}

func (o *Orchestrator) resolvePrompt(ctx context.Context) (prompts.Resolution, error) {
	return o.store.Resolve(ctx, prompts.ResolveRequest{
		Key:         o.key,
		Domains:     o.domains,
		Intent:      o.config.UserIntent,
		GeneratedBy: bootstrapGenerator,
		Generate:    o.bootstrap,
	})
}

func (o *Orchestrator) bootstrap(ctx context.Context) (string, error) {
	logger.Info("No prompt found for %s, bootstrapping via meta-prompt", o.key)
	ctx, cancel := context.WithTimeout(ctx, o.config.BootstrapTimeout)
	defer cancel()
	return o.reasoner.Complete(ctx, "", fmt.Sprintf(bootstrapMetaPrompt, agentDescriptions))
}

// synthesize calls the reasoner and returns the synthesis plus an outcome label: ok, degraded or error.
func (o *Orchestrator) synthesize(ctx context.Context, system string, signals map[string]models.Signal) (models.Synthesis, string) {
	payload, err := json.MarshalIndent(stripSignals(signals), "", "  ")
	if err != nil {
		return ErrorSynthesis(err.Error()), "error"
	}
	user := fmt.Sprintf(userPromptTemplate, o.now().Format("2006-01-02"), len(signals), payload)

	ctx, cancel := context.WithTimeout(ctx, o.config.SynthesisTimeout)
	defer cancel()

	text, err := o.reasoner.Complete(ctx, system, user)
	if err != nil {
		logger.Error("Reasoning synthesis failed: %v", err)
		return ErrorSynthesis(err.Error()), "error"
	}
	syn, ok := ParseSynthesis(text)
	if !ok {
		logger.Warn("Reasoning output was not JSON, returning degraded synthesis")
		return syn, "degraded"
	}
	return syn, "ok"
}

// stripSignals drops bulky series payloads from signal details.
func stripSignals(signals map[string]models.Signal) map[string]models.Signal {
	out := make(map[string]models.Signal, len(signals))
	for k, s := range signals {
		if s.Details != nil {
			d := make(map[string]any, len(s.Details))
			for dk, dv := range s.Details {
				if dk == "correlation_series" || dk == "correlation_dates" {
					continue
				}
				d[dk] = dv
			}
			s.Details = d
		}
		out[k] = s
	}
	return out
}

func (o *Orchestrator) addSample(s Sample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples = append(o.samples, s)
	if len(o.samples) > o.config.SampleSize {
		o.samples = append([]Sample(nil), o.samples[len(o.samples)-o.config.SampleSize:]...)
	}
}

// RecentSamples returns up to the last n samples, oldest first.
func (o *Orchestrator) RecentSamples(n int) []Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n <= 0 || n > len(o.samples) {
		n = len(o.samples)
	}
	return append([]Sample(nil), o.samples[len(o.samples)-n:]...)
}
