package agents

import (
	"fmt"
	"math"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// CrossCorrelation measures how tightly the front and back of the curve move together,
// using a rolling correlation of daily changes over Window observations.
type CrossCorrelation struct {
	Window int
}

func (CrossCorrelation) Name() string { return CrossCorrelationName }

func (a CrossCorrelation) Analyze(data models.SeriesMap) models.Signal {
	dgs2, dgs10, dgs30 := data["DGS2"], data["DGS10"], data["DGS30"]
	window := a.Window
	if window < 2 {
		window = 30
	}

	if len(dgs2) == 0 || len(dgs10) == 0 {
		return models.InsufficientSignal(a.Name(), "Insufficient data.")
	}

	dates, aligned := Align(dgs2, dgs10)
	corrs := RollingCorrelation(aligned[0], aligned[1], window)
	if len(corrs) == 0 {
		return models.InsufficientSignal(a.Name(), "Not enough history for correlation.")
	}

	current := corrs[len(corrs)-1]
	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, c := range corrs {
		sum += c
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	var trend float64
	if n := len(corrs); n > 20 {
		var recent, prior float64
		for _, c := range corrs[n-10:] {
			recent += c
		}
		for _, c := range corrs[n-20 : n-10] {
			prior += c
		}
		trend = recent/10 - prior/10
	}

	metrics := map[string]float64{
		"correlation_2y_10y":         Round(current, 3),
		"correlation_avg":            Round(sum/float64(len(corrs)), 3),
		"correlation_min":            Round(lo, 3),
		"correlation_max":            Round(hi, 3),
		"correlation_trend":          Round(trend, 3),
		"window_days":                float64(window),
		"correlation_history_length": float64(len(corrs)),
	}
	if len(dgs30) > 0 {
		_, a30 := Align(dgs2, dgs30)
		if c := RollingCorrelation(a30[0], a30[1], window); len(c) > 0 {
			metrics["correlation_2y_30y"] = Round(c[len(c)-1], 3)
		}
		_, a1030 := Align(dgs10, dgs30)
		if c := RollingCorrelation(a1030[0], a1030[1], window); len(c) > 0 {
			metrics["correlation_10y_30y"] = Round(c[len(c)-1], 3)
		}
	}

	var regime, summary string
	var dir models.Direction
	var conf float64
	switch {
	case current > 0.7:
		regime, dir, conf = "synchronized", models.Bullish, 0.65
		summary = fmt.Sprintf("2Y-10Y correlation %.2f, highly synchronized. A single macro driver dominates both ends.", current)
	case current > 0.3:
		regime, dir, conf = "transitioning", models.Caution, 0.6
		summary = fmt.Sprintf("2Y-10Y correlation %.2f, moderate. Short end follows the Fed, long end follows growth and inflation.", current)
	case current > -0.1:
		regime, dir, conf = "divergent", models.Caution, 0.7
		summary = fmt.Sprintf("2Y-10Y correlation %.2f, low. Distinct forces drive front and back end, often ahead of curve regime changes.", current)
	default:
		regime, dir, conf = "anti_correlated", models.Bearish, 0.75
		summary = fmt.Sprintf("2Y-10Y correlation %.2f, negative. Front and back end moving in opposite directions.", current)
	}
	if math.Abs(trend) > 0.1 {
		word := "falling"
		if trend > 0 {
			word = "rising"
		}
		summary += fmt.Sprintf(" Correlation %s (%+.2f over 20d).", word, trend)
	}

	series := make([]float64, len(corrs))
	for i, c := range corrs {
		series[i] = Round(c, 3)
	}
	corrDates := make([]string, 0, len(corrs))
	if len(dates) > window+1 {
		for _, d := range dates[window+1:] {
			if len(corrDates) == len(corrs) {
				break
			}
			corrDates = append(corrDates, d.Format(DateLayout))
		}
	}

	return signal(a.Name(), regime, dir, conf, summary, metrics, map[string]any{
		"correlation_series": series,
		"correlation_dates":  corrDates,
		"latest_date":        LastDate(dgs10),
	})
}
