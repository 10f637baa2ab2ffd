package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Direction is the directional call an agent or the orchestrator makes.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Caution Direction = "caution"
	Neutral Direction = "neutral"
)

// Directions lists every direction in vote tie-break order.
var Directions = []Direction{Bullish, Bearish, Caution, Neutral}

// Valid reports whether d is one of the four known directions.
func (d Direction) Valid() bool {
	switch d {
	case Bullish, Bearish, Caution, Neutral:
		return true
	}
	return false
}

// RegimeUnknown is the regime tag used whenever an assessment cannot be made.
const RegimeUnknown = "unknown"

// Signal is the output of one analytic agent.
type Signal struct {
	Agent      string             `json:"agent_name"`
	Regime     string             `json:"regime"`
	Direction  Direction          `json:"signal"`
	Confidence float64            `json:"confidence"`
	Summary    string             `json:"summary"`
	Metrics    map[string]float64 `json:"metrics"`
	Details    map[string]any     `json:"details,omitempty"`
	Timestamp  *time.Time         `json:"timestamp,omitempty"`
}

// InsufficientSignal is the uniform result for missing or too-short input series.
func InsufficientSignal(agent, summary string) Signal {
	return Signal{
		Agent:      agent,
		Regime:     RegimeUnknown,
		Direction:  Neutral,
		Confidence: 0.0,
		Summary:    summary,
		Metrics:    map[string]float64{},
	}
}

// Validate checks signal field constraints.
func (s *Signal) Validate() error {
	if s.Agent == "" {
		return errors.New("signal agent must not be empty")
	}
	if !s.Direction.Valid() {
		return errors.New("signal direction must be bullish, bearish, caution or neutral")
	}
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return errors.New("signal confidence must be between 0.0 and 1.0")
	}
	return nil
}

// Metric returns a named metric or def when absent.
func (s *Signal) Metric(name string, def float64) float64 {
	if v, ok := s.Metrics[name]; ok {
		return v
	}
	return def
}

// TextList is a list of short texts. When decoded from reasoning output it accepts
// a single string, an array of strings, or an array of objects (kept as compact JSON).
type TextList []string

func (l *TextList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = TextList{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = TextList{s}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(TextList, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, item); err != nil {
			return err
		}
		out = append(out, buf.String())
	}
	*l = out
	return nil
}

func (l TextList) String() string {
	return strings.Join(l, "; ")
}
