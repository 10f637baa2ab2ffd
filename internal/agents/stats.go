package agents

import (
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// DateLayout is the calendar date format used in signal details.
const DateLayout = "2006-01-02"

// usable rejects NaN and infinities so malformed upstream values read as missing.
func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LastValue returns the value offset observations before the latest one.
func LastValue(s models.Series, offset int) (float64, bool) {
	if offset < 0 || len(s) <= offset {
		return 0, false
	}
	v := s[len(s)-1-offset].Value
	if !usable(v) {
		return 0, false
	}
	return v, true
}

// LastDate returns the latest observation date formatted as DateLayout, or "".
func LastDate(s models.Series) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1].Date.Format(DateLayout)
}

// Values extracts usable values in order.
func Values(s models.Series) []float64 {
	out := make([]float64, 0, len(s))
	for _, o := range s {
		if usable(o.Value) {
			out = append(out, o.Value)
		}
	}
	return out
}

// DailyChanges returns first differences.
func DailyChanges(v []float64) []float64 {
	if len(v) < 2 {
		return nil
	}
	out := make([]float64, len(v)-1)
	for i := 1; i < len(v); i++ {
		out[i-1] = v[i] - v[i-1]
	}
	return out
}

// Pearson computes the correlation of the common prefix of x and y. Fewer than 3 points or zero variance gives 0.
func Pearson(x, y []float64) float64 {
	n := min(len(x), len(y))
	if n < 3 {
		return 0
	}
	return pearson(x[:n], y[:n])
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var num, dx, dy float64
	for i := range x {
		a, b := x[i]-mx, y[i]-my
		num += a * b
		dx += a * a
		dy += b * b
	}
	denom := math.Sqrt(dx * dy)
	if denom <= 0 {
		return 0
	}
	return num / denom
}

// RollingCorrelation correlates daily changes of x and y over a trailing window.
// Element i covers changes [i, i+window).
func RollingCorrelation(x, y []float64, window int) []float64 {
	if window < 2 {
		return nil
	}
	dx, dy := DailyChanges(x), DailyChanges(y)
	n := min(len(dx), len(dy))
	if n <= window {
		return nil
	}
	out := make([]float64, 0, n-window)
	for i := window; i < n; i++ {
		out = append(out, pearson(dx[i-window:i], dy[i-window:i]))
	}
	return out
}

// Align intersects the dates of every series and returns the common dates with each series' values on them.
func Align(series ...models.Series) ([]time.Time, [][]float64) {
	if len(series) == 0 {
		return nil, nil
	}
	lookups := make([]map[int64]float64, len(series))
	for i, s := range series {
		m := make(map[int64]float64, len(s))
		for _, o := range s {
			if usable(o.Value) {
				m[o.Date.UnixNano()] = o.Value
			}
		}
		lookups[i] = m
	}

	var dates []time.Time
	for _, o := range series[0] {
		key := o.Date.UnixNano()
		common := true
		for _, m := range lookups {
			if _, ok := m[key]; !ok {
				common = false
				break
			}
		}
		if common {
			dates = append(dates, o.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	values := make([][]float64, len(series))
	for i, m := range lookups {
		values[i] = make([]float64, len(dates))
		for j, d := range dates {
			values[i][j] = m[d.UnixNano()]
		}
	}
	return dates, values
}

// PercentileRank is the share of history strictly below v, in [0, 100]. Empty history gives 50.
func PercentileRank(v float64, history []float64) float64 {
	if len(history) == 0 {
		return 50
	}
	below := 0
	for _, h := range history {
		if h < v {
			below++
		}
	}
	return float64(below) / float64(len(history)) * 100
}

// Round rounds half away from zero to the given number of decimal places.
// Values too large to scale are returned unchanged.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	if r := math.Round(v*p) / p; usable(r) {
		return r
	}
	return v
}
