package agents

import (
	"fmt"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// DollarVol votes on dollar strength, VIX, interbank stress and equity momentum. VIX above 30 forces panic.
type DollarVol struct{}

func (DollarVol) Name() string { return DollarVolName }

// pctChange30d returns the percent change over 21 observations for series with at least 22 points.
func pctChange30d(s models.Series) (now, chg float64, ok bool) {
	if len(s) < 22 {
		return 0, 0, false
	}
	now, okN := LastValue(s, 0)
	ago, okA := LastValue(s, 21)
	if !okN || !okA || now == 0 || ago == 0 {
		return 0, 0, false
	}
	return now, (now - ago) / ago * 100, true
}

func (a DollarVol) Analyze(data models.SeriesMap) models.Signal {
	usd, vix, ted := data["DTWEXBGS"], data["VIXCLS"], data["TEDRATE"]
	eurusd, sp500 := data["DEXUSEU"], data["SP500"]

	metrics := map[string]float64{}
	var votes []Vote

	if now, chg, ok := pctChange30d(usd); ok {
		metrics["usd_index"] = Round(now, 2)
		metrics["usd_30d_change_pct"] = Round(chg, 2)
		metrics["usd_percentile"] = Round(PercentileRank(now, Values(usd)), 1)
		switch {
		case chg > 2:
			votes = append(votes, Vote{models.Bearish, 0.7, fmt.Sprintf("USD surging +%.1f%% (30d), crypto headwind", chg)})
		case chg < -2:
			votes = append(votes, Vote{models.Bullish, 0.7, fmt.Sprintf("USD weakening %.1f%% (30d), crypto tailwind", chg)})
		default:
			votes = append(votes, Vote{models.Neutral, 0.4, "USD range-bound"})
		}
	}

	vixPanic := false
	if len(vix) >= 2 {
		if now, ok := LastValue(vix, 0); ok && now != 0 {
			metrics["vix"] = Round(now, 2)
			if ago, ok := LastValue(vix, 4); ok && ago != 0 {
				metrics["vix_5d_change"] = Round(now-ago, 2)
			}
			metrics["vix_percentile"] = Round(PercentileRank(now, Values(vix)), 1)
			switch {
			case now > 30:
				vixPanic = true
				votes = append(votes, Vote{models.Bearish, 0.85, fmt.Sprintf("VIX at %.0f, panic, liquidation cascades likely", now)})
			case now > 22:
				votes = append(votes, Vote{models.Caution, 0.6, fmt.Sprintf("VIX elevated at %.0f, risk-off environment", now)})
			case now < 14:
				votes = append(votes, Vote{models.Bullish, 0.6, fmt.Sprintf("VIX complacent at %.0f, risk-on", now)})
			default:
				votes = append(votes, Vote{models.Neutral, 0.4, fmt.Sprintf("VIX normal at %.0f", now)})
			}
		}
	}

	if len(ted) >= 2 {
		if now, ok := LastValue(ted, 0); ok {
			metrics["ted_spread"] = Round(now, 3)
			switch {
			case now > 0.5:
				votes = append(votes, Vote{models.Bearish, 0.7, "TED spread elevated, interbank stress, contagion risk"})
			case now > 0.35:
				votes = append(votes, Vote{models.Caution, 0.5, "TED spread above normal"})
			}
		}
	}

	if now, chg, ok := pctChange30d(eurusd); ok {
		metrics["eurusd"] = Round(now, 4)
		metrics["eurusd_30d_change_pct"] = Round(chg, 2)
	}

	if now, chg, ok := pctChange30d(sp500); ok {
		metrics["sp500"] = Round(now, 2)
		metrics["sp500_30d_return_pct"] = Round(chg, 2)
		switch {
		case chg < -5:
			votes = append(votes, Vote{models.Bearish, 0.7, fmt.Sprintf("S&P down %.1f%%, crypto correlated selling", chg)})
		case chg > 5:
			votes = append(votes, Vote{models.Bullish, 0.5, fmt.Sprintf("S&P up %.1f%%, risk appetite strong", chg)})
		}
	}

	if len(votes) == 0 {
		return insufficient(a.Name(), "Insufficient dollar/vol data.", metrics)
	}

	t := Tally(votes, true)
	var regime string
	var dir models.Direction
	switch {
	case t.Bearish > t.Bullish*1.5:
		regime, dir = "risk_off", models.Bearish
	case t.Bullish > t.Bearish*1.5:
		regime, dir = "risk_on", models.Bullish
	default:
		regime, dir = "mixed", models.Caution
	}
	if vixPanic {
		regime, dir = "panic", models.Bearish
	}

	return signal(a.Name(), regime, dir, t.Confidence(), summarize(votes, 3), metrics,
		map[string]any{"regime_label": regimeLabel(regime)})
}
