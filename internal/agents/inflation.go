package agents

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// Inflation classifies inflation expectations from the 10Y breakeven, with forward and real-yield context.
type Inflation struct{}

func (Inflation) Name() string { return InflationName }

func (a Inflation) Analyze(data models.SeriesMap) models.Signal {
	t5yie, t10yie, t5yifr := data["T5YIE"], data["T10YIE"], data["T5YIFR"]
	dfii10, dgs10 := data["DFII10"], data["DGS10"]

	be10, ok := LastValue(t10yie, 0)
	if !ok {
		return models.InsufficientSignal(a.Name(), "Insufficient inflation data.")
	}

	metrics := map[string]float64{
		"breakeven_10y":   Round(be10, 3),
		"be10_percentile": Round(PercentileRank(be10, Values(t10yie)), 1),
	}
	if prev, ok := LastValue(t10yie, lookback30d); ok && prev != 0 {
		metrics["be10_30d_change"] = Round(be10-prev, 3)
	}

	var summaries []string
	var regime string
	var dir models.Direction
	var conf float64
	switch {
	case be10 > 2.8:
		regime, dir, conf = "unanchored_high", models.Bearish, 0.8
		summaries = append(summaries, fmt.Sprintf("10Y breakeven at %.2f%%, inflation expectations elevated.", be10))
	case be10 > 2.4:
		regime, dir, conf = "drifting", models.Caution, 0.6
		summaries = append(summaries, fmt.Sprintf("10Y breakeven at %.2f%%, above Fed target, drifting.", be10))
	case be10 < 1.5:
		regime, dir, conf = "deflationary", models.Caution, 0.7
		summaries = append(summaries, fmt.Sprintf("10Y breakeven at %.2f%%, deflationary expectations.", be10))
	default:
		regime, dir, conf = "anchored", models.Bullish, 0.65
		summaries = append(summaries, fmt.Sprintf("10Y breakeven at %.2f%%, well anchored near 2%% target.", be10))
	}

	if be5, ok := LastValue(t5yie, 0); ok {
		metrics["breakeven_5y"] = Round(be5, 3)
	}

	if fwd, ok := LastValue(t5yifr, 0); ok {
		metrics["forward_5y5y"] = Round(fwd, 3)
		switch {
		case fwd > 2.6:
			summaries = append(summaries, fmt.Sprintf("5Y5Y forward at %.2f%%, long-term expectations rising.", fwd))
		case fwd < 1.8:
			summaries = append(summaries, fmt.Sprintf("5Y5Y forward at %.2f%%, long-term disinflation priced.", fwd))
		}
	}

	real10, okReal := LastValue(dfii10, 0)
	if okReal {
		metrics["real_yield_10y"] = Round(real10, 3)
		switch {
		case real10 > 2.5:
			summaries = append(summaries, fmt.Sprintf("10Y real yield at %.2f%%, restrictive territory.", real10))
		case real10 > 1.5:
			summaries = append(summaries, fmt.Sprintf("10Y real yield at %.2f%%, moderately positive.", real10))
		case real10 < 0:
			summaries = append(summaries, fmt.Sprintf("10Y real yield at %.2f%%, negative, accommodative.", real10))
		}
	}

	if nom, ok := LastValue(dgs10, 0); ok && okReal {
		metrics["implied_breakeven"] = Round(nom-real10, 3)
	}

	return signal(a.Name(), regime, dir, conf, strings.Join(summaries, " "), metrics,
		map[string]any{"latest_date": LastDate(t10yie)})
}
