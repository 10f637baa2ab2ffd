package agents

import (
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// CreditRisk reads corporate spreads: Baa-Aaa, Baa over the 10Y, and high-yield OAS.
type CreditRisk struct{}

func (CreditRisk) Name() string { return CreditRiskName }

func (a CreditRisk) Analyze(data models.SeriesMap) models.Signal {
	aaa, baa := data["AAA"], data["BAA"]
	baa10y := data["BAA10Y"]
	hyOAS, igOAS := data["BAMLH0A0HYM2"], data["BAMLC0A0CM"]

	metrics := map[string]float64{}
	var summaries []string
	dir, conf, regime := models.Neutral, 0.5, "normal"
	observed := false

	aaaNow, okA := LastValue(aaa, 0)
	baaNow, okB := LastValue(baa, 0)
	if okA && okB {
		observed = true
		spread := baaNow - aaaNow
		metrics["aaa_yield"] = Round(aaaNow, 3)
		metrics["baa_yield"] = Round(baaNow, 3)
		metrics["baa_aaa_spread"] = Round(spread, 3)

		_, aligned := Align(aaa, baa)
		hist := make([]float64, len(aligned[0]))
		for i := range hist {
			hist[i] = aligned[1][i] - aligned[0][i]
		}
		if len(hist) > 0 {
			metrics["spread_percentile"] = Round(PercentileRank(spread, hist), 1)
		}

		switch {
		case spread > 1.5:
			regime, dir, conf = "stress", models.Bearish, 0.8
			summaries = append(summaries, fmt.Sprintf("Baa-Aaa spread at %.2f%%, elevated credit stress.", spread))
		case spread > 1.0:
			regime, dir, conf = "widening", models.Caution, 0.65
			summaries = append(summaries, fmt.Sprintf("Baa-Aaa spread at %.2f%%, widening, monitor closely.", spread))
		default:
			summaries = append(summaries, fmt.Sprintf("Baa-Aaa spread at %.2f%%, tight, risk appetite healthy.", spread))
		}
	}

	if v, ok := LastValue(baa10y, 0); ok {
		observed = true
		metrics["baa_10y_spread"] = Round(v, 3)
		metrics["baa_10y_percentile"] = Round(PercentileRank(v, Values(baa10y)), 1)
		if v > 3.0 {
			regime, dir = "stress", models.Bearish
			conf = math.Max(conf, 0.8)
			summaries = append(summaries, fmt.Sprintf("Baa-10Y at %.2f%%, flight to quality active.", v))
		}
	}

	if hy, ok := LastValue(hyOAS, 0); ok {
		observed = true
		metrics["hy_oas"] = Round(hy, 3)
		if prev, ok := LastValue(hyOAS, lookback30d); ok && prev != 0 {
			metrics["hy_oas_30d_change"] = Round(hy-prev, 3)
		}
		metrics["hy_oas_percentile"] = Round(PercentileRank(hy, Values(hyOAS)), 1)
		switch {
		case hy > 500:
			summaries = append(summaries, fmt.Sprintf("HY OAS at %.0f bps, distressed territory.", hy))
			dir = models.Bearish
			conf = math.Max(conf, 0.85)
		case hy > 400:
			summaries = append(summaries, fmt.Sprintf("HY OAS at %.0f bps, elevated.", hy))
			if dir != models.Bearish {
				dir = models.Caution
			}
		default:
			summaries = append(summaries, fmt.Sprintf("HY OAS at %.0f bps, benign conditions.", hy))
		}
	}

	if ig, ok := LastValue(igOAS, 0); ok {
		metrics["ig_oas"] = Round(ig, 3)
	}

	if !observed {
		return models.InsufficientSignal(a.Name(), "Insufficient credit data.")
	}

	if dir == models.Neutral && regime == "normal" {
		dir, conf = models.Bullish, 0.6
	}

	latest := LastDate(baa)
	if latest == "" {
		latest = LastDate(aaa)
	}
	return signal(a.Name(), regime, dir, conf, strings.Join(summaries, " "), metrics,
		map[string]any{"latest_date": latest})
}
