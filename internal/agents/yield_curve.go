package agents

import (
	"fmt"
	"math"

	"github.com/rewired-gh/macrooracle/internal/models"
)

var yieldCurveRegimes = map[string]string{
	"normal_steep":    "Normal Steep",
	"normal_flat":     "Normal Flat",
	"inverted":        "Inverted",
	"bear_steepening": "Bear Steepening",
	"bull_flattening": "Bull Flattening",
	"bear_flattening": "Bear Flattening",
	"bull_steepening": "Bull Steepening",
}

// YieldCurve classifies curve shape from the 10Y-2Y spread and the 30-day moves of each leg.
type YieldCurve struct{}

func (YieldCurve) Name() string { return YieldCurveName }

func (a YieldCurve) Analyze(data models.SeriesMap) models.Signal {
	t10y2y := data["T10Y2Y"]
	dgs2, dgs10, dgs30 := data["DGS2"], data["DGS10"], data["DGS30"]

	spread, okS := LastValue(t10y2y, 0)
	y2, ok2 := LastValue(dgs2, 0)
	y10, ok10 := LastValue(dgs10, 0)
	if !okS || !ok2 || !ok10 {
		return models.InsufficientSignal(a.Name(), "Insufficient data for yield curve analysis.")
	}
	y2Prev, _ := LastValue(dgs2, lookback30d)
	y10Prev, _ := LastValue(dgs10, lookback30d)

	regime := classifyCurve(spread, y2, y10, y2Prev, y10Prev)

	var spreadChange float64
	if prev, ok := LastValue(t10y2y, lookback30d); ok && prev != 0 {
		spreadChange = spread - prev
	}
	transition := curveTransition(spread, spreadChange)

	var dir models.Direction
	var conf float64
	switch {
	case spread < -0.2:
		dir, conf = models.Bearish, math.Min(0.95, 0.7+math.Abs(spread)*0.2)
	case spread < 0:
		dir, conf = models.Bearish, 0.65
	case spread < 0.2:
		dir, conf = models.Caution, 0.55
	default:
		dir, conf = models.Bullish, math.Min(0.9, 0.5+spread*0.15)
	}

	hist := Values(t10y2y)
	recent := hist
	if len(recent) > 66 {
		recent = recent[len(recent)-66:]
	}
	daysInverted := 0
	for _, v := range recent {
		if v < 0 {
			daysInverted++
		}
	}
	var recessionProb float64
	if len(recent) > 0 {
		recessionProb = math.Min(0.85, float64(daysInverted)/float64(len(recent)))
	}

	label := yieldCurveRegimes[regime]
	metrics := map[string]float64{
		"spread_10y2y":          Round(spread, 3),
		"spread_30d_change":     Round(spreadChange, 3),
		"spread_percentile":     Round(PercentileRank(spread, hist), 1),
		"yield_2y":              Round(y2, 3),
		"yield_10y":             Round(y10, 3),
		"recession_probability": Round(recessionProb, 2),
		"days_inverted_90d":     float64(daysInverted),
	}
	if y30, ok := LastValue(dgs30, 0); ok && y30 != 0 {
		metrics["yield_30y"] = Round(y30, 3)
	}

	return signal(a.Name(), regime, dir, conf,
		fmt.Sprintf("10Y-2Y spread at %.2f%%. Regime: %s. %s", spread, label, transition),
		metrics,
		map[string]any{
			"regime_label": label,
			"transition":   transition,
			"latest_date":  LastDate(t10y2y),
		})
}

func classifyCurve(spread, y2, y10, y2Prev, y10Prev float64) string {
	if spread < -0.1 {
		return "inverted"
	}
	var dy2, dy10 float64
	if y2Prev != 0 {
		dy2 = y2 - y2Prev
	}
	if y10Prev != 0 {
		dy10 = y10 - y10Prev
	}
	switch {
	case dy10 > 0.1 && dy2 < dy10:
		return "bear_steepening"
	case dy2 > 0.1 && dy10 < dy2:
		return "bear_flattening"
	case dy10 < -0.1 && dy2 > dy10:
		return "bull_flattening"
	case dy2 < -0.1 && dy10 > dy2:
		return "bull_steepening"
	case spread > 0.5:
		return "normal_steep"
	}
	return "normal_flat"
}

func curveTransition(spread, change30d float64) string {
	switch {
	case change30d > 0.3:
		return "Rapid steepening, curve normalizing quickly."
	case change30d > 0.1:
		return "Gradual steepening trend over 30 days."
	case change30d < -0.3:
		return "Rapid flattening, potential inversion ahead."
	case change30d < -0.1:
		return "Gradual flattening trend."
	case math.Abs(spread) < 0.1:
		return "Near zero spread, at inflection point."
	}
	return "Stable regime."
}
