package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rewired-gh/macrooracle/internal/agents"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/prompts"
)

const (
	minRunsForImprovement = 10
	maxPromptChars        = 3000
)

// Improvement is one suggested prompt edit.
type Improvement struct {
	Section   string `json:"section" yaml:"section"`
	Current   string `json:"current" yaml:"current"`
	Suggested string `json:"suggested" yaml:"suggested"`
	Reasoning string `json:"reasoning" yaml:"reasoning"`
}

// Suggestions is the reasoner's review of the active prompt. Only Message is set when
// there are not enough runs to review.
type Suggestions struct {
	Message           string        `json:"message,omitempty" yaml:"message,omitempty"`
	BlindSpots        []string      `json:"blind_spots,omitempty" yaml:"blind_spots,omitempty"`
	Improvements      []Improvement `json:"improvements,omitempty" yaml:"improvements,omitempty"`
	OverallAssessment string        `json:"overall_assessment,omitempty" yaml:"overall_assessment,omitempty"`
	Urgency           string        `json:"urgency,omitempty" yaml:"urgency,omitempty"`
}

// BlindSpots lists recurring weaknesses visible in a performance record.
func BlindSpots(p models.PerformanceRecord) []string {
	var out []string
	runs := float64(max(p.Runs, 1))
	if p.AvgConfidence < 0.5 {
		out = append(out, "Low average confidence, prompt may be too conservative or vague")
	}
	if float64(p.ConflictsDetected) > runs*0.5 {
		out = append(out, "High conflict rate, agents frequently disagree and the prompt may not handle conflicts well")
	}
	if float64(p.RegimeChanges) > runs*0.3 {
		out = append(out, "Frequent regime changes, possible noise or oversensitivity")
	}
	return out
}

// SuggestImprovements asks the reasoner to review the active prompt. It never modifies the store.
func (o *Orchestrator) SuggestImprovements(ctx context.Context) (*Suggestions, error) {
	if !o.HasReasoner() {
		return nil, ErrNoReasoner
	}
	entry, err := o.store.Get(ctx, o.key)
	if errors.Is(err, prompts.ErrNotFound) {
		return nil, ErrNoPrompt
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt %s: %w", o.key, err)
	}

	perf := entry.Performance
	if perf.Runs < minRunsForImprovement {
		return &Suggestions{Message: "not enough runs"}, nil
	}

	spots := BlindSpots(perf)
	spotText := "None detected"
	if len(spots) > 0 {
		spotText = strings.Join(spots, "; ")
	}
	samples, err := json.MarshalIndent(o.RecentSamples(3), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode samples: %w", err)
	}

	meta := fmt.Sprintf(selfImproveMetaPrompt,
		truncateRunes(entry.Text, maxPromptChars),
		perf.Runs,
		perf.AvgConfidence,
		perf.RegimeChanges,
		perf.ConflictsDetected,
		spotText,
		samples,
	)

	ctx, cancel := context.WithTimeout(ctx, o.config.SynthesisTimeout)
	defer cancel()
	text, err := o.reasoner.Complete(ctx, "", meta)
	if err != nil {
		return nil, fmt.Errorf("self-improvement call failed: %w", err)
	}

	var out Suggestions
	if err := decodeJSON(text, &out); err != nil {
		return nil, fmt.Errorf("failed to parse suggestions: %w", err)
	}
	out.BlindSpots = spots
	return &out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Health grades.
const (
	GradeNew            = "new"
	GradeHealthy        = "healthy"
	GradeNeedsAttention = "needs_attention"
	GradeNeedsReview    = "needs_review"
)

// HealthReport grades a prompt from its performance record.
type HealthReport struct {
	Grade            string   `json:"grade" yaml:"grade"`
	AvgConfidence    float64  `json:"avg_confidence" yaml:"avg_confidence"`
	ConflictRate     float64  `json:"conflict_rate" yaml:"conflict_rate"`
	RegimeChangeRate float64  `json:"regime_change_rate" yaml:"regime_change_rate"`
	Issues           []string `json:"issues,omitempty" yaml:"issues,omitempty"`
	Recommendation   string   `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
}

// Health grades entry: no issues is healthy, one needs attention, more needs review.
func Health(entry *models.PromptEntry) HealthReport {
	p := entry.Performance
	if p.Runs == 0 {
		return HealthReport{Grade: GradeNew, Recommendation: "No runs yet."}
	}
	runs := float64(p.Runs)
	r := HealthReport{
		AvgConfidence:    agents.Round(p.AvgConfidence, 3),
		ConflictRate:     agents.Round(float64(p.ConflictsDetected)/runs, 3),
		RegimeChangeRate: agents.Round(float64(p.RegimeChanges)/runs, 3),
	}
	if p.AvgConfidence < 0.4 {
		r.Issues = append(r.Issues, "Low confidence, prompt may be too vague")
	}
	if float64(p.ConflictsDetected)/runs > 0.5 {
		r.Issues = append(r.Issues, "High conflict rate, agents frequently disagree")
	}
	if float64(p.RegimeChanges)/runs > 0.3 {
		r.Issues = append(r.Issues, "Frequent regime changes, possible noise")
	}
	switch len(r.Issues) {
	case 0:
		r.Grade = GradeHealthy
		r.Recommendation = "Prompt is performing well"
	case 1:
		r.Grade = GradeNeedsAttention
	default:
		r.Grade = GradeNeedsReview
	}
	if len(r.Issues) > 0 {
		r.Recommendation = "Consider requesting improvement suggestions"
	}
	return r
}
