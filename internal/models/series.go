// Package models defines the core domain entities: series, signals, syntheses, prompt entries and loop results.
package models

import (
	"errors"
	"sort"
	"time"
)

// Observation is a single dated value of an economic series.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is an ordered sequence of observations, ascending by date with no duplicate dates.
type Series []Observation

// SeriesMap maps a series ID (e.g. "DGS10") to its observations.
type SeriesMap map[string]Series

// NormalizeSeries returns a copy of obs sorted by date with duplicate dates removed.
// When two observations share a date the later one in the input wins.
func NormalizeSeries(obs []Observation) Series {
	if len(obs) == 0 {
		return Series{}
	}
	byDate := make(map[int64]int, len(obs))
	out := make(Series, 0, len(obs))
	for _, o := range obs {
		key := o.Date.UnixNano()
		if i, ok := byDate[key]; ok {
			out[i] = o
			continue
		}
		byDate[key] = len(out)
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Validate checks the ordering invariant of a series.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Date.After(s[i-1].Date) {
			return errors.New("series must be strictly ascending by date")
		}
	}
	return nil
}

// Last returns the most recent observation.
func (s Series) Last() (Observation, bool) {
	if len(s) == 0 {
		return Observation{}, false
	}
	return s[len(s)-1], true
}

// NonEmpty counts the series that carry at least one observation.
func (m SeriesMap) NonEmpty() int {
	n := 0
	for _, s := range m {
		if len(s) > 0 {
			n++
		}
	}
	return n
}
