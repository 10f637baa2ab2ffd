package agents

import (
	"math"
	"strings"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// Vote is one weighted sub-signal inside an agent.
type Vote struct {
	Label      models.Direction
	Confidence float64
	Text       string
}

// VoteTotals is the aggregate of a vote list.
type VoteTotals struct {
	Bullish float64
	Bearish float64
	Total   float64
	Count   int
}

// Tally sums votes. When cautionIsBearish is set caution votes count toward Bearish.
// Every vote counts toward Total regardless of label.
func Tally(votes []Vote, cautionIsBearish bool) VoteTotals {
	var t VoteTotals
	for _, v := range votes {
		switch {
		case v.Label == models.Bullish:
			t.Bullish += v.Confidence
		case v.Label == models.Bearish, cautionIsBearish && v.Label == models.Caution:
			t.Bearish += v.Confidence
		}
		t.Total += v.Confidence
		t.Count++
	}
	return t
}

// Confidence maps totals onto [0, 0.9]: the mean vote confidence scaled by 1/0.8.
func (t VoteTotals) Confidence() float64 {
	if t.Count == 0 {
		return 0
	}
	return math.Min(0.9, t.Total/(float64(t.Count)*0.8))
}

// summarize joins the texts of the first n votes.
func summarize(votes []Vote, n int) string {
	texts := make([]string, 0, n)
	for i, v := range votes {
		if i == n {
			break
		}
		texts = append(texts, v.Text)
	}
	return strings.Join(texts, ". ")
}

// regimeLabel turns a snake_case regime into title case.
func regimeLabel(regime string) string {
	words := strings.Split(regime, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
