package agents

import (
	"fmt"
	"math"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// EmploymentStress votes on jobless claims, unemployment and the financial stress indices.
type EmploymentStress struct{}

func (EmploymentStress) Name() string { return EmploymentStressName }

func (a EmploymentStress) Analyze(data models.SeriesMap) models.Signal {
	icsa, ccsa, unrate := data["ICSA"], data["CCSA"], data["UNRATE"]
	stlfsi, nfci := data["STLFSI4"], data["NFCI"]

	metrics := map[string]float64{}
	var votes []Vote

	// Initial claims, weekly
	if len(icsa) >= 5 {
		if claims, ok := LastValue(icsa, 0); ok && claims != 0 {
			metrics["initial_claims"] = math.Round(claims)
			if ago, ok := LastValue(icsa, 3); ok && ago != 0 {
				metrics["claims_4w_trend"] = math.Round(claims - ago)
				var sum float64
				var n int
				for i := 0; i < 4; i++ {
					if v, ok := LastValue(icsa, i); ok && v != 0 {
						sum += v
						n++
					}
				}
				if n > 0 {
					metrics["claims_4w_avg"] = math.Round(sum / float64(n))
				}
			}
			k := claims / 1000
			switch {
			case claims > 300000:
				votes = append(votes, Vote{models.Bearish, 0.8, fmt.Sprintf("Claims at %.0fK, recession territory", k)})
			case claims > 250000:
				votes = append(votes, Vote{models.Caution, 0.6, fmt.Sprintf("Claims rising to %.0fK, labor softening", k)})
			case claims < 200000:
				votes = append(votes, Vote{models.Bullish, 0.5, fmt.Sprintf("Claims at %.0fK, tight labor, no recession", k)})
			default:
				votes = append(votes, Vote{models.Neutral, 0.4, fmt.Sprintf("Claims at %.0fK, normal range", k)})
			}
		}
	}

	// Continued claims
	if len(ccsa) >= 2 {
		if cc, ok := LastValue(ccsa, 0); ok && cc != 0 {
			metrics["continued_claims"] = math.Round(cc)
			if cc > 2000000 {
				votes = append(votes, Vote{models.Bearish, 0.6, "Continued claims >2M, difficulty finding work"})
			}
		}
	}

	// Unemployment rate, monthly
	if len(unrate) >= 2 {
		if ur, ok := LastValue(unrate, 0); ok && ur != 0 {
			metrics["unemployment_rate"] = Round(ur, 1)
			if prev, ok := LastValue(unrate, 1); ok && prev != 0 {
				metrics["unemployment_mom_change"] = Round(ur-prev, 2)
			}
			if yearAgo, ok := LastValue(unrate, 12); ok && yearAgo != 0 {
				yoy := ur - yearAgo
				metrics["unemployment_yoy_change"] = Round(yoy, 2)
				switch {
				case yoy > 0.5:
					votes = append(votes, Vote{models.Bearish, 0.8, fmt.Sprintf("Unemployment up %.1fpp YoY, Sahm Rule flashing", yoy)})
				case yoy > 0.2:
					votes = append(votes, Vote{models.Caution, 0.6, "Unemployment drifting higher"})
				}
			}
			if ur > 4.5 {
				votes = append(votes, Vote{models.Bullish, 0.5, fmt.Sprintf("Unemployment at %.1f%%, Fed cuts likely", ur)})
			}
		}
	}

	// St. Louis Fed financial stress, 0 = average
	if len(stlfsi) >= 2 {
		if stress, ok := LastValue(stlfsi, 0); ok {
			metrics["financial_stress_idx"] = Round(stress, 3)
			if prev, ok := LastValue(stlfsi, 4); ok {
				metrics["stress_4w_change"] = Round(stress-prev, 3)
			}
			switch {
			case stress > 1.0:
				votes = append(votes, Vote{models.Bearish, 0.8, fmt.Sprintf("Financial stress elevated (%.2f), systemic risk", stress)})
			case stress > 0.5:
				votes = append(votes, Vote{models.Caution, 0.6, "Financial stress above average"})
			case stress < -0.5:
				votes = append(votes, Vote{models.Bullish, 0.5, "Financial conditions very loose"})
			}
		}
	}

	// Chicago Fed NFCI, positive = tighter than average
	if len(nfci) >= 2 {
		if v, ok := LastValue(nfci, 0); ok {
			metrics["nfci"] = Round(v, 3)
			switch {
			case v > 0.5:
				votes = append(votes, Vote{models.Bearish, 0.6, "Financial conditions tightening"})
			case v < -0.5:
				votes = append(votes, Vote{models.Bullish, 0.5, "Financial conditions very accommodative"})
			}
		}
	}

	if len(votes) == 0 {
		return insufficient(a.Name(), "Insufficient employment/stress data.", metrics)
	}

	t := Tally(votes, true)
	var regime string
	var dir models.Direction
	switch {
	case t.Bearish > t.Bullish*2:
		regime, dir = "deteriorating", models.Bearish
	case t.Bearish > t.Bullish*1.3:
		regime, dir = "softening", models.Caution
	case t.Bullish > t.Bearish*1.5:
		regime, dir = "strong_dovish_pivot", models.Bullish
	default:
		regime, dir = "stable", models.Neutral
	}

	return signal(a.Name(), regime, dir, t.Confidence(), summarize(votes, 3), metrics,
		map[string]any{"regime_label": regimeLabel(regime)})
}
