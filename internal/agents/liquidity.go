package agents

import (
	"github.com/rewired-gh/macrooracle/internal/models"
)

// Liquidity votes on money supply growth, the Fed balance sheet, reverse repo usage and the Treasury account.
type Liquidity struct{}

func (Liquidity) Name() string { return LiquidityName }

func (a Liquidity) Analyze(data models.SeriesMap) models.Signal {
	m2, fedBS := data["M2SL"], data["WALCL"]
	rrp, tga := data["RRPONTSYD"], data["WTREGEN"]

	metrics := map[string]float64{}
	var votes []Vote

	// M2, monthly
	if len(m2) >= 2 {
		cur, okC := LastValue(m2, 0)
		prev, okP := LastValue(m2, 1)
		if okC && okP && cur != 0 && prev != 0 {
			metrics["m2_level_billions"] = Round(cur, 1)
			metrics["m2_mom_pct"] = Round((cur-prev)/prev*100, 3)
			if yearAgo, ok := LastValue(m2, 12); ok && yearAgo != 0 {
				yoy := (cur - yearAgo) / yearAgo * 100
				metrics["m2_yoy_pct"] = Round(yoy, 2)
				switch {
				case yoy > 4:
					votes = append(votes, Vote{models.Bullish, 0.8, "M2 expanding >4% YoY, bullish crypto with 90d lag"})
				case yoy > 0:
					votes = append(votes, Vote{models.Neutral, 0.5, "M2 growing modestly"})
				default:
					votes = append(votes, Vote{models.Bearish, 0.7, "M2 contracting, liquidity headwind"})
				}
			}
		}
	}

	// Fed balance sheet, weekly, millions
	if len(fedBS) >= 5 {
		if cur, ok := LastValue(fedBS, 0); ok && cur != 0 {
			metrics["fed_bs_trillions"] = Round(cur/1e6, 3)
			if ago, ok := LastValue(fedBS, 4); ok && ago != 0 {
				chg := cur - ago
				metrics["fed_bs_4w_change_billions"] = Round(chg/1e3, 1)
				switch {
				case chg > 0:
					votes = append(votes, Vote{models.Bullish, 0.7, "Fed balance sheet expanding (QE/liquidity)"})
				case chg < -20000:
					votes = append(votes, Vote{models.Bearish, 0.6, "Fed balance sheet shrinking (QT active)"})
				}
			}
		}
	}

	// Reverse repo, daily, billions
	if len(rrp) >= 2 {
		if cur, ok := LastValue(rrp, 0); ok {
			metrics["rrp_billions"] = Round(cur, 1)
			if ago, ok := LastValue(rrp, lookback30d); ok && ago != 0 {
				chg := cur - ago
				metrics["rrp_30d_change_billions"] = Round(chg, 1)
				switch {
				case chg < -50:
					votes = append(votes, Vote{models.Bullish, 0.6, "RRP draining, liquidity seeking yield"})
				case cur < 100:
					votes = append(votes, Vote{models.Neutral, 0.5, "RRP nearly depleted, drain complete"})
				}
			}
		}
	}

	// Treasury General Account, weekly, millions
	if len(tga) >= 2 {
		if cur, ok := LastValue(tga, 0); ok && cur != 0 {
			metrics["tga_billions"] = Round(cur/1e3, 1)
			if ago, ok := LastValue(tga, 4); ok && ago != 0 {
				chg := cur - ago
				metrics["tga_4w_change_billions"] = Round(chg/1e3, 1)
				if chg < -50000 {
					votes = append(votes, Vote{models.Bullish, 0.5, "TGA drawdown, stealth liquidity injection"})
				}
			}
		}
	}

	if len(votes) == 0 {
		return insufficient(a.Name(), "Insufficient liquidity data.", metrics)
	}

	t := Tally(votes, false)
	var regime string
	var dir models.Direction
	switch {
	case t.Bullish > t.Bearish*1.5:
		regime, dir = "expanding", models.Bullish
	case t.Bearish > t.Bullish*1.5:
		regime, dir = "tightening", models.Bearish
	case t.Total > 0 && t.Bullish/t.Total > 0.6:
		regime, dir = "neutral_to_loose", models.Neutral
	default:
		regime, dir = "mixed", models.Caution
	}

	return signal(a.Name(), regime, dir, t.Confidence(), summarize(votes, 3), metrics,
		map[string]any{"regime_label": regimeLabel(regime)})
}
