package orchestrator

import (
	"fmt"
	"math"

	"github.com/rewired-gh/macrooracle/internal/agents"
	"github.com/rewired-gh/macrooracle/internal/models"
)

// Weights is the rule-based vote weight per domain. They sum to 1.
var Weights = map[string]float64{
	agents.YieldCurveName:       0.20,
	agents.CreditRiskName:       0.15,
	agents.InflationName:        0.12,
	agents.TailRiskName:         0.06,
	agents.CrossCorrelationName: 0.07,
	agents.LiquidityName:        0.18,
	agents.DollarVolName:        0.12,
	agents.EmploymentStressName: 0.10,
}

type regimeRule struct {
	regime, label string
}

// classifyRegime applies the decision table; the first matching row wins.
func classifyRegime(signals map[string]models.Signal) regimeRule {
	yc := signals[agents.YieldCurveName]
	cr := signals[agents.CreditRiskName]
	inf := signals[agents.InflationName]
	liq := signals[agents.LiquidityName]
	dv := signals[agents.DollarVolName]

	spread := yc.Metric("spread_10y2y", 0)
	vix := dv.Metric("vix", 20)
	m2 := liq.Metric("m2_yoy_pct", 0)
	recession := yc.Metric("recession_probability", 0)
	creditBearish := cr.Direction == models.Bearish

	switch {
	case vix > 30 && creditBearish:
		return regimeRule{"dislocation", "Market Dislocation"}
	case m2 > 4 && dv.Direction == models.Bullish:
		return regimeRule{"liquidity_driven_rally", "Liquidity-Driven Rally"}
	case inf.Regime == "unanchored_high" && spread < 0.2:
		return regimeRule{"stagflation_risk", "Stagflation Risk"}
	case yc.Regime == "inverted" || recession > 0.5:
		if creditBearish {
			return regimeRule{"recession_risk", "Recession Risk"}
		}
		return regimeRule{"late_cycle_tightening", "Late-Cycle Tightening"}
	case spread > 0.5 && !creditBearish:
		return regimeRule{"risk_on_expansion", "Risk-On Expansion"}
	}
	return regimeRule{"transition", "Regime Transition"}
}

// weightedVote sums weight*confidence per direction in fixed domain order. The dominant
// direction is the first maximum in bullish, bearish, caution, neutral order.
func weightedVote(signals map[string]models.Signal) (models.Direction, float64) {
	votes := make(map[models.Direction]float64, len(models.Directions))
	var total float64
	for _, name := range agents.Domains {
		s, ok := signals[name]
		if !ok {
			continue
		}
		w := Weights[name]
		votes[s.Direction] += w * s.Confidence
		total += w * s.Confidence
	}
	dominant := models.Directions[0]
	for _, d := range models.Directions[1:] {
		if votes[d] > votes[dominant] {
			dominant = d
		}
	}
	return dominant, total
}

func agreement(signals map[string]models.Signal) bool {
	var first models.Direction
	for _, name := range agents.Domains {
		s, ok := signals[name]
		if !ok {
			return false
		}
		if first == "" {
			first = s.Direction
		} else if s.Direction != first {
			return false
		}
	}
	return true
}

// FallbackSynthesis is the deterministic rule-based synthesis. Identical input yields
// byte-identical JSON.
func FallbackSynthesis(signals map[string]models.Signal) models.Synthesis {
	yc := signals[agents.YieldCurveName]
	cr := signals[agents.CreditRiskName]
	inf := signals[agents.InflationName]
	liq := signals[agents.LiquidityName]
	dv := signals[agents.DollarVolName]
	es := signals[agents.EmploymentStressName]

	spread := yc.Metric("spread_10y2y", 0)
	vix := dv.Metric("vix", 20)
	m2 := liq.Metric("m2_yoy_pct", 0)
	creditBearish := cr.Direction == models.Bearish

	rule := classifyRegime(signals)
	dominant, confidence := weightedVote(signals)

	weights := make(map[string]float64, len(Weights))
	for k, v := range Weights {
		weights[k] = v
	}

	return models.Synthesis{
		MarketRegime:   rule.regime,
		RegimeLabel:    rule.label,
		DominantSignal: dominant,
		Confidence:     confidence,
		Headline:       fmt.Sprintf("%s | 10Y-2Y: %.2f%%, VIX: %.0f, M2 YoY: %.1f%%", rule.label, spread, vix, m2),
		Narrative: fmt.Sprintf("Rule-based synthesis (%d agents, no reasoning service). "+
			"YC: %s. Credit: %s. Inflation: %s. Liquidity: %s. Dollar/Vol: %s. Employment: %s.",
			len(signals), yc.Regime, cr.Regime, inf.Regime, liq.Regime, dv.Regime, es.Regime),
		KeyRisks:       models.TextList{},
		RegimeTriggers: models.TextList{},
		AgentAgreement: agreement(signals),
		Conflicts:      models.TextList{},
		SignalWeights:  weights,
		Implications:   implications(spread, vix, m2, creditBearish, dominant),
		Transmission:   transmission(m2),
	}
}

func implications(spread, vix, m2 float64, creditBearish bool, dominant models.Direction) map[string]any {
	risk := "moderate"
	switch {
	case spread > 0.3 && !creditBearish:
		risk = "high"
	case vix > 25 || creditBearish:
		risk = "low"
	}
	pick := func(cond bool, yes, no string) string {
		if cond {
			return yes
		}
		return no
	}
	return map[string]any{
		"risk_appetite":         risk,
		"tvl_outlook":           pick(dominant == models.Bearish, "contracting", "stable"),
		"stablecoin_pressure":   pick(spread < 0.1, "high", "low"),
		"mev_activity":          pick(vix > 22, "elevated", "normal"),
		"liquidation_risk":      pick(vix > 30 && creditBearish, "high", "low"),
		"btc_bias":              pick(dominant == models.Bearish, "bearish", "neutral"),
		"altseason_probability": "low",
		"defi_yield_vs_tbill":   pick(spread > 0.3, "tbill_attractive", "neutral"),
		"narrative":             fmt.Sprintf("Rule-based. VIX=%.0f, M2 YoY=%.1f%%.", vix, m2),
	}
}

func transmission(m2 float64) map[string]any {
	t := map[string]any{
		"primary_channel":       "dollar",
		"transmission_lag_days": 30,
		"signal_strength":       "moderate",
		"description":           "Rule-based transmission estimate.",
	}
	if math.Abs(m2) > 3 {
		t["primary_channel"] = "liquidity"
		t["transmission_lag_days"] = 90
	}
	if math.Abs(m2) > 4 {
		t["signal_strength"] = "strong"
	}
	return t
}

// ErrorSynthesis is returned when the reasoning call fails.
func ErrorSynthesis(cause string) models.Synthesis {
	return models.Synthesis{
		MarketRegime:   models.RegimeUnknown,
		RegimeLabel:    "API Error (fallback mode)",
		DominantSignal: models.Neutral,
		Confidence:     0,
		Headline:       "Synthesis error: " + cause,
		Narrative:      "Reasoning call failed. Displaying raw agent signals only.",
		KeyRisks:       models.TextList{},
		RegimeTriggers: models.TextList{},
		Conflicts:      models.TextList{},
		SignalWeights:  map[string]float64{},
		Implications:   map[string]any{"narrative": "Unavailable."},
		Transmission:   map[string]any{},
		Error:          cause,
	}
}

// degradedSynthesis wraps reasoning output that was not valid JSON.
func degradedSynthesis(text string) models.Synthesis {
	return models.Synthesis{
		MarketRegime:   models.RegimeUnknown,
		RegimeLabel:    "Analysis Available (non-JSON)",
		DominantSignal: models.Neutral,
		Confidence:     0.5,
		Headline:       "Reasoning analysis completed",
		Narrative:      text,
		KeyRisks:       models.TextList{},
		RegimeTriggers: models.TextList{},
		Conflicts:      models.TextList{},
		SignalWeights:  map[string]float64{},
		Implications:   map[string]any{"narrative": "See main narrative."},
		Transmission:   map[string]any{},
	}
}
