package agents

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// TailRisk reads the long end: the 30Y-10Y term premium proxy and the ultra-long 30Y-20Y segment.
type TailRisk struct{}

func (TailRisk) Name() string { return TailRiskName }

func (a TailRisk) Analyze(data models.SeriesMap) models.Signal {
	dgs10, dgs20, dgs30 := data["DGS10"], data["DGS20"], data["DGS30"]

	y10, ok10 := LastValue(dgs10, 0)
	y30, ok30 := LastValue(dgs30, 0)
	if !ok10 || !ok30 {
		return models.InsufficientSignal(a.Name(), "Insufficient long-bond data.")
	}

	tail := y30 - y10
	metrics := map[string]float64{
		"yield_10y":      Round(y10, 3),
		"yield_30y":      Round(y30, 3),
		"spread_30y_10y": Round(tail, 3),
	}
	var summaries []string

	_, aligned := Align(dgs10, dgs30)
	if n := len(aligned[0]); n > 0 {
		hist := make([]float64, n)
		var sum float64
		for i := range hist {
			hist[i] = aligned[1][i] - aligned[0][i]
			sum += hist[i]
		}
		metrics["tail_spread_percentile"] = Round(PercentileRank(tail, hist), 1)
		metrics["tail_spread_mean"] = Round(sum/float64(n), 3)
	}

	y30Prev, okP30 := LastValue(dgs30, lookback30d)
	y10Prev, okP10 := LastValue(dgs10, lookback30d)
	if okP30 && okP10 && y30Prev != 0 && y10Prev != 0 {
		metrics["tail_spread_30d_change"] = Round(tail-(y30Prev-y10Prev), 3)
	}

	if y20, ok := LastValue(dgs20, 0); ok && y20 != 0 {
		ultra := y30 - y20
		metrics["yield_20y"] = Round(y20, 3)
		metrics["spread_30y_20y"] = Round(ultra, 3)
		if ultra < -0.05 {
			summaries = append(summaries, fmt.Sprintf(
				"30Y-20Y inverted (%.2f%%), unusual, possibly pension/insurance demand compressing ultra-long.", ultra))
		}
	}

	var regime string
	var dir models.Direction
	var conf float64
	switch {
	case tail > 0.4:
		regime, dir, conf = "steep_tail", models.Caution, 0.7
		summaries = append(summaries, fmt.Sprintf(
			"30Y-10Y at %.2f%%, significant term premium. Duration risk elevated.", tail))
	case tail > 0.15:
		regime, dir, conf = "normal_tail", models.Bullish, 0.6
		summaries = append(summaries, fmt.Sprintf(
			"30Y-10Y at %.2f%%, healthy term premium.", tail))
	case tail > 0:
		regime, dir, conf = "flat_tail", models.Neutral, 0.55
		summaries = append(summaries, fmt.Sprintf(
			"30Y-10Y at %.2f%%, compressed. Possible expectations of lower long-run rates.", tail))
	default:
		regime, dir, conf = "inverted_tail", models.Bearish, 0.75
		summaries = append(summaries, fmt.Sprintf(
			"30Y-10Y inverted at %.2f%%, extreme long-end demand or deep recession pricing.", tail))
	}

	switch {
	case y30 > 5.0:
		summaries = append(summaries, fmt.Sprintf(
			"30Y at %.2f%%, multi-decade high territory. Headwind for mortgages and long-duration assets.", y30))
	case y30 < 3.5:
		summaries = append(summaries, fmt.Sprintf("30Y at %.2f%%, historically low, favorable for borrowers.", y30))
	}

	return signal(a.Name(), regime, dir, conf, strings.Join(summaries, " "), metrics,
		map[string]any{"latest_date": LastDate(dgs30)})
}
