// Package agents implements the analytic signal agents. Each agent is a pure function
// from a series snapshot to one Signal and never fails: missing input yields an
// insufficient-data signal with zero confidence.
package agents

import (
	"github.com/rewired-gh/macrooracle/internal/models"
)

// Agent analyzes one market domain.
type Agent interface {
	Name() string
	Analyze(data models.SeriesMap) models.Signal
}

// Domain names, in the fixed order used for weighting and output.
const (
	YieldCurveName       = "yield_curve"
	CreditRiskName       = "credit_risk"
	InflationName        = "inflation"
	TailRiskName         = "tail_risk"
	CrossCorrelationName = "cross_correlation"
	LiquidityName        = "liquidity"
	DollarVolName        = "dollar_vol"
	EmploymentStressName = "employment_stress"
)

// Domains lists every domain name in fixed order.
var Domains = []string{
	YieldCurveName,
	CreditRiskName,
	InflationName,
	TailRiskName,
	CrossCorrelationName,
	LiquidityName,
	DollarVolName,
	EmploymentStressName,
}

// Default returns the eight agents in Domains order. window is the rolling correlation window in observations.
func Default(window int) []Agent {
	return []Agent{
		YieldCurve{},
		CreditRisk{},
		Inflation{},
		TailRisk{},
		CrossCorrelation{Window: window},
		Liquidity{},
		DollarVol{},
		EmploymentStress{},
	}
}

// lookback30d is the number of trading-day observations in roughly 30 calendar days.
const lookback30d = 22

// signal assembles a Signal with rounded confidence.
func signal(agent, regime string, dir models.Direction, conf float64, summary string, metrics map[string]float64, details map[string]any) models.Signal {
	if !usable(conf) {
		conf = 0
	}
	dropNonFinite(metrics, details)
	return models.Signal{
		Agent:      agent,
		Regime:     regime,
		Direction:  dir,
		Confidence: Round(conf, 2),
		Summary:    summary,
		Metrics:    metrics,
		Details:    details,
	}
}

// insufficient is an insufficient-data Signal that still reports the metrics it computed.
func insufficient(agent, summary string, metrics map[string]float64) models.Signal {
	s := models.InsufficientSignal(agent, summary)
	dropNonFinite(metrics, nil)
	s.Metrics = metrics
	return s
}

// dropNonFinite removes NaN and infinite values, treating them as missing so the Signal always encodes.
func dropNonFinite(metrics map[string]float64, details map[string]any) {
	for k, v := range metrics {
		if !usable(v) {
			delete(metrics, k)
		}
	}
	for k, v := range details {
		switch v := v.(type) {
		case float64:
			if !usable(v) {
				delete(details, k)
			}
		case []float64:
			for _, x := range v {
				if !usable(x) {
					delete(details, k)
					break
				}
			}
		}
	}
}
