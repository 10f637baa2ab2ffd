package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rewired-gh/macrooracle/internal/models"
)

func newTestStorage(t *testing.T, maxRuns int) *Storage {
	t.Helper()
	s, err := New(maxRuns, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(key string, at time.Time) *models.PromptEntry {
	return &models.PromptEntry{
		Key:         key,
		Domains:     []string{"credit_risk", "yield_curve"},
		Version:     1,
		Status:      models.StatusDraft,
		Text:        "You are a macro analyst.",
		GeneratedBy: "bootstrap",
		CreatedAt:   at,
		UpdatedAt:   at,
		History:     []models.PromptSnapshot{},
	}
}

func TestStorage_CreateAndGetPrompt(t *testing.T) {
	s := newTestStorage(t, 100)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := testEntry("credit_risk+yield_curve", now)
	e.Performance = models.PerformanceRecord{Runs: 3, GoodRuns: 2, AvgConfidence: 0.55, LastRegime: "transition"}

	if err := s.CreatePrompt(ctx, e); err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}
	got, err := s.GetPrompt(ctx, e.Key)
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if diff := cmp.Diff(e, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStorage_CreatePrompt_Duplicate(t *testing.T) {
	s := newTestStorage(t, 100)
	ctx := context.Background()
	e := testEntry("k", time.Now().UTC())
	if err := s.CreatePrompt(ctx, e); err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}
	if err := s.CreatePrompt(ctx, e); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("second create err = %v, want ErrVersionConflict", err)
	}
}

func TestStorage_GetPrompt_NotFound(t *testing.T) {
	s := newTestStorage(t, 100)
	if _, err := s.GetPrompt(context.Background(), "nonexistent"); !errors.Is(err, models.ErrPromptNotFound) {
		t.Errorf("err = %v, want ErrPromptNotFound", err)
	}
}

func TestStorage_UpdatePrompt_CompareAndSwap(t *testing.T) {
	s := newTestStorage(t, 100)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := testEntry("k", now)
	if err := s.CreatePrompt(ctx, e); err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}

	next := e.Clone()
	next.History = append(next.History, e.Snapshot("snap-1", now.Add(time.Minute)))
	next.Version = 2
	next.Text = "Edited prompt."
	next.UpdatedAt = now.Add(time.Minute)
	if err := s.UpdatePrompt(ctx, next, 0); err != nil {
		t.Fatalf("UpdatePrompt: %v", err)
	}
	if next.Revision != 1 {
		t.Errorf("revision after update = %d, want 1", next.Revision)
	}

	// A writer still holding revision 0 loses
	stale := next.Clone()
	stale.Version = 2
	stale.Text = "Stale write."
	if err := s.UpdatePrompt(ctx, stale, 0); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("stale update err = %v, want ErrVersionConflict", err)
	}

	// Performance-only writes keep the version but still advance the revision
	perf := next.Clone()
	perf.Performance.Runs = 1
	if err := s.UpdatePrompt(ctx, perf, 1); err != nil {
		t.Fatalf("UpdatePrompt perf: %v", err)
	}
	lost := next.Clone()
	lost.Performance.Runs = 1
	if err := s.UpdatePrompt(ctx, lost, 1); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("lost perf update err = %v, want ErrVersionConflict", err)
	}

	got, err := s.GetPrompt(ctx, "k")
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if got.Version != 2 || got.Text != "Edited prompt." || got.Revision != 2 || got.Performance.Runs != 1 {
		t.Errorf("got version %d revision %d runs %d text %q", got.Version, got.Revision, got.Performance.Runs, got.Text)
	}
	if len(got.History) != 1 || got.History[0].Version != 1 {
		t.Errorf("history = %+v, want one v1 snapshot", got.History)
	}
}

func TestStorage_UpdatePrompt_NotFound(t *testing.T) {
	s := newTestStorage(t, 100)
	e := testEntry("missing", time.Now().UTC())
	if err := s.UpdatePrompt(context.Background(), e, 0); !errors.Is(err, models.ErrPromptNotFound) {
		t.Errorf("err = %v, want ErrPromptNotFound", err)
	}
}

func TestStorage_DeletePromptCascadesHistory(t *testing.T) {
	s := newTestStorage(t, 100)
	ctx := context.Background()
	now := time.Now().UTC()
	e := testEntry("k", now)
	e.History = []models.PromptSnapshot{{ID: "h1", Version: 1, Status: models.StatusDraft, Text: "old", SavedAt: now}}
	e.Version = 2
	if err := s.CreatePrompt(ctx, e); err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}

	deleted, err := s.DeletePrompt(ctx, "k")
	if err != nil || !deleted {
		t.Fatalf("DeletePrompt = %v, %v", deleted, err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM prompt_history`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("history rows after delete = %d, want 0", n)
	}

	deleted, err = s.DeletePrompt(ctx, "k")
	if err != nil || deleted {
		t.Errorf("second DeletePrompt = %v, %v; want false, nil", deleted, err)
	}
}

func TestStorage_ListPrompts(t *testing.T) {
	s := newTestStorage(t, 100)
	ctx := context.Background()
	for _, k := range []string{"b", "a"} {
		if err := s.CreatePrompt(ctx, testEntry(k, time.Now().UTC())); err != nil {
			t.Fatalf("CreatePrompt: %v", err)
		}
	}
	got, err := s.ListPrompts(ctx)
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(got) != 2 || got[0].Key != "a" {
		t.Errorf("ListPrompts = %d entries, first %q", len(got), got[0].Key)
	}
}

func TestStorage_RunCapAndOrder(t *testing.T) {
	s := newTestStorage(t, 3)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		r := models.RunRecord{
			ID:             fmt.Sprintf("run-%d", i),
			RunNumber:      i,
			MarketRegime:   "transition",
			DominantSignal: models.Caution,
			Confidence:     0.4,
			Engine:         models.EngineRuleBased,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	if runs[0].RunNumber != 5 || runs[2].RunNumber != 3 {
		t.Errorf("runs not newest-first: %d..%d", runs[0].RunNumber, runs[2].RunNumber)
	}
	if runs[0].DominantSignal != models.Caution {
		t.Errorf("dominant signal = %q", runs[0].DominantSignal)
	}
	if err := s.RotateRuns(ctx); err != nil {
		t.Errorf("RotateRuns: %v", err)
	}
}
