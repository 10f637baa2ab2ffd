package orchestrator

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/rewired-gh/macrooracle/internal/models"
)

var errNotJSON = errors.New("reasoning output is not valid JSON")

// decodeJSON decodes text into v, trying each fenced block first when the text contains code fences.
func decodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if strings.Contains(text, "```") {
		for _, part := range strings.Split(text, "```") {
			clean := strings.TrimSpace(part)
			clean = strings.TrimSpace(strings.TrimPrefix(clean, "json"))
			if strings.HasPrefix(clean, "{") && json.Valid([]byte(clean)) {
				return json.Unmarshal([]byte(clean), v)
			}
		}
	}
	if !json.Valid([]byte(text)) {
		return errNotJSON
	}
	return json.Unmarshal([]byte(text), v)
}

// NormalizeConfidence maps a 0-100 scale onto 0-1 and clamps to [0,1].
func NormalizeConfidence(c float64) float64 {
	if c > 1 {
		c /= 100
	}
	switch {
	case c < 0 || math.IsNaN(c):
		return 0
	case c > 1:
		return 1
	}
	return c
}

// ParseSynthesis decodes reasoning output. Non-JSON output, or JSON naming neither a regime
// nor a headline, yields a degraded synthesis and ok=false.
func ParseSynthesis(text string) (syn models.Synthesis, ok bool) {
	if err := decodeJSON(text, &syn); err != nil {
		return degradedSynthesis(text), false
	}
	if strings.TrimSpace(syn.MarketRegime) == "" && strings.TrimSpace(syn.Headline) == "" {
		return degradedSynthesis(text), false
	}
	syn.Confidence = NormalizeConfidence(syn.Confidence)
	if syn.MarketRegime == "" {
		syn.MarketRegime = models.RegimeUnknown
	}
	if !syn.DominantSignal.Valid() {
		syn.DominantSignal = models.Neutral
	}
	if syn.KeyRisks == nil {
		syn.KeyRisks = models.TextList{}
	}
	if syn.RegimeTriggers == nil {
		syn.RegimeTriggers = models.TextList{}
	}
	if syn.Conflicts == nil {
		syn.Conflicts = models.TextList{}
	}
	syn.Error = ""
	return syn, true
}
