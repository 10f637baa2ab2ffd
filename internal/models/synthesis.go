package models

import (
	"time"
)

// Synthesis is the orchestrator's unified assessment combining all agent signals.
type Synthesis struct {
	MarketRegime   string             `json:"market_regime"`
	RegimeLabel    string             `json:"regime_label"`
	DominantSignal Direction          `json:"dominant_signal"`
	Confidence     float64            `json:"confidence"`
	Headline       string             `json:"headline"`
	Narrative      string             `json:"narrative"`
	KeyRisks       TextList           `json:"key_risks"`
	RegimeTriggers TextList           `json:"regime_triggers"`
	AgentAgreement bool               `json:"agent_agreement"`
	Conflicts      TextList           `json:"conflicts"`
	SignalWeights  map[string]float64 `json:"signal_weights"`
	Implications   map[string]any     `json:"defi_implications"`
	Transmission   map[string]any     `json:"macro_crypto_transmission"`
	Error          string             `json:"error,omitempty"`
}

// Engine names reported in Analysis.Engine.
const (
	EngineRuleBased = "rule-based"
	EngineReasoning = "reasoning"
)

// Analysis is the result of one orchestrator run.
type Analysis struct {
	Signals       map[string]Signal `json:"signals"`
	Synthesis     Synthesis         `json:"synthesis"`
	Engine        string            `json:"synthesis_engine"`
	PromptStatus  string            `json:"prompt_status"`
	PromptVersion int               `json:"prompt_version"`
	AgentCount    int               `json:"agent_count"`
	Timestamp     time.Time         `json:"timestamp"`
}

// LoopMeta is the scheduler metadata attached to each cached result.
type LoopMeta struct {
	RunNumber       int       `json:"run_number"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	Engine          string    `json:"engine"`
	SeriesFetched   int       `json:"series_fetched"`
	FetchErrors     []string  `json:"fetch_errors,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	IntervalSeconds float64   `json:"interval_seconds"`
}

// LoopResult is an Analysis plus loop metadata. Once published it is never mutated.
type LoopResult struct {
	Analysis
	Loop LoopMeta `json:"loop"`
}

// RunRecord is the persisted summary of one loop result.
type RunRecord struct {
	ID             string
	RunNumber      int
	MarketRegime   string
	RegimeLabel    string
	DominantSignal Direction
	Confidence     float64
	Engine         string
	PromptStatus   string
	PromptVersion  int
	SeriesFetched  int
	ElapsedSeconds float64
	Headline       string
	CreatedAt      time.Time
}

// NewRunRecord summarizes a loop result for persistence.
func NewRunRecord(id string, r *LoopResult) RunRecord {
	return RunRecord{
		ID:             id,
		RunNumber:      r.Loop.RunNumber,
		MarketRegime:   r.Synthesis.MarketRegime,
		RegimeLabel:    r.Synthesis.RegimeLabel,
		DominantSignal: r.Synthesis.DominantSignal,
		Confidence:     r.Synthesis.Confidence,
		Engine:         r.Engine,
		PromptStatus:   r.PromptStatus,
		PromptVersion:  r.PromptVersion,
		SeriesFetched:  r.Loop.SeriesFetched,
		ElapsedSeconds: r.Loop.ElapsedSeconds,
		Headline:       r.Synthesis.Headline,
		CreatedAt:      r.Loop.Timestamp,
	}
}
