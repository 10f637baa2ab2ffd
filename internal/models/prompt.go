package models

import (
	"errors"
	"time"
)

// PromptStatus is the lifecycle state of a prompt entry.
type PromptStatus string

const (
	StatusDraft    PromptStatus = "draft"
	StatusEvolving PromptStatus = "evolving"
	StatusCurated  PromptStatus = "curated"
	// StatusFallback marks an in-memory prompt used when bootstrap failed. Never persisted.
	StatusFallback PromptStatus = "fallback"
)

// Persisted reports whether s may be stored.
func (s PromptStatus) Persisted() bool {
	switch s {
	case StatusDraft, StatusEvolving, StatusCurated:
		return true
	}
	return false
}

// PerformanceRecord holds rolling counters for the runs that used a prompt.
type PerformanceRecord struct {
	Runs              int     `json:"runs" yaml:"runs"`
	GoodRuns          int     `json:"good_runs" yaml:"good_runs"`
	AvgConfidence     float64 `json:"avg_confidence" yaml:"avg_confidence"`
	RegimeChanges     int     `json:"regime_changes" yaml:"regime_changes"`
	ConflictsDetected int     `json:"conflicts_detected" yaml:"conflicts_detected"`
	LastRegime        string  `json:"last_regime,omitempty" yaml:"last_regime,omitempty"`
}

// PromptSnapshot is an immutable copy of a prior version of an entry.
type PromptSnapshot struct {
	ID          string       `json:"id" yaml:"id"`
	Version     int          `json:"version" yaml:"version"`
	Status      PromptStatus `json:"status" yaml:"status"`
	Text        string       `json:"system_prompt" yaml:"system_prompt"`
	GeneratedBy string       `json:"generated_by" yaml:"generated_by"`
	CuratedBy   string       `json:"curated_by,omitempty" yaml:"curated_by,omitempty"`
	Notes       string       `json:"human_notes,omitempty" yaml:"human_notes,omitempty"`
	SavedAt     time.Time    `json:"saved_at" yaml:"saved_at"`
}

// PromptEntry is the live prompt for a domain key.
type PromptEntry struct {
	Key         string            `json:"key" yaml:"key"`
	Domains     []string          `json:"domains" yaml:"domains"`
	Version     int               `json:"version" yaml:"version"`
	Status      PromptStatus      `json:"status" yaml:"status"`
	Text        string            `json:"system_prompt" yaml:"system_prompt"`
	UserIntent  string            `json:"user_intent,omitempty" yaml:"user_intent,omitempty"`
	GeneratedBy string            `json:"generated_by" yaml:"generated_by"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" yaml:"updated_at"`
	CuratedAt   *time.Time        `json:"curated_at,omitempty" yaml:"curated_at,omitempty"`
	CuratedBy   string            `json:"curated_by,omitempty" yaml:"curated_by,omitempty"`
	Notes       string            `json:"human_notes,omitempty" yaml:"human_notes,omitempty"`
	Performance PerformanceRecord `json:"performance" yaml:"performance"`
	History     []PromptSnapshot  `json:"history" yaml:"history"`

	// Revision counts writes of the live row, including performance-only updates.
	// Repositories compare-and-swap on it.
	Revision int64 `json:"-" yaml:"-"`
}

// Validate checks prompt entry field constraints.
func (e *PromptEntry) Validate() error {
	if e.Key == "" {
		return errors.New("prompt key must not be empty")
	}
	if e.Version < 1 {
		return errors.New("prompt version must be at least 1")
	}
	if !e.Status.Persisted() {
		return errors.New("prompt status must be draft, evolving or curated")
	}
	if e.Text == "" {
		return errors.New("prompt text must not be empty")
	}
	if e.Status == StatusCurated && e.CuratedBy == "" {
		return errors.New("curated prompt must name its curator")
	}
	return nil
}

// Snapshot captures the entry's current version for the history log.
func (e *PromptEntry) Snapshot(id string, at time.Time) PromptSnapshot {
	return PromptSnapshot{
		ID:          id,
		Version:     e.Version,
		Status:      e.Status,
		Text:        e.Text,
		GeneratedBy: e.GeneratedBy,
		CuratedBy:   e.CuratedBy,
		Notes:       e.Notes,
		SavedAt:     at,
	}
}

// Clone returns a deep copy so callers never share history slices with the store.
func (e *PromptEntry) Clone() *PromptEntry {
	c := *e
	c.Domains = append([]string(nil), e.Domains...)
	c.History = append([]PromptSnapshot(nil), e.History...)
	if e.CuratedAt != nil {
		t := *e.CuratedAt
		c.CuratedAt = &t
	}
	return &c
}
