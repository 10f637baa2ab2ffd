// Package prompts governs the lifecycle of the synthesis system prompt: bootstrap as a draft,
// promotion to evolving after enough good runs, and explicit human curation.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/metrics"
	"github.com/rewired-gh/macrooracle/internal/models"
)

var (
	ErrNotFound        = models.ErrPromptNotFound
	ErrConflict        = models.ErrVersionConflict
	ErrCuratedLocked   = errors.New("prompt entry is curated and cannot be overwritten automatically")
	ErrVersionNotFound = errors.New("prompt version not found in history")
)

// Repository persists prompt entries. UpdatePrompt must compare-and-swap on (key, expectRevision)
// and advance e.Revision on success.
type Repository interface {
	GetPrompt(ctx context.Context, key string) (*models.PromptEntry, error)
	ListPrompts(ctx context.Context) ([]*models.PromptEntry, error)
	CreatePrompt(ctx context.Context, e *models.PromptEntry) error
	UpdatePrompt(ctx context.Context, e *models.PromptEntry, expectRevision int64) error
	DeletePrompt(ctx context.Context, key string) (bool, error)
}

const maxWriteAttempts = 3

// Config holds lifecycle thresholds.
type Config struct {
	PromotionThreshold int     // good runs before draft becomes evolving
	MinGoodConfidence  float64 // minimum synthesis confidence for a good run
}

// DefaultConfig returns the default lifecycle thresholds.
func DefaultConfig() Config {
	return Config{
		PromotionThreshold: 20,
		MinGoodConfidence:  0.3,
	}
}

// DomainKey builds the canonical key for a set of domains: sorted, deduplicated, "+"-joined.
func DomainKey(domains ...string) string {
	seen := make(map[string]bool, len(domains))
	uniq := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		uniq = append(uniq, d)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, "+")
}

// StatusRank orders statuses by trust: curated > evolving > draft > anything else.
func StatusRank(s models.PromptStatus) int {
	switch s {
	case models.StatusCurated:
		return 3
	case models.StatusEvolving:
		return 2
	case models.StatusDraft:
		return 1
	}
	return 0
}

// Store is the prompt lifecycle state machine.
type Store struct {
	repo   Repository
	config Config
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a lifecycle store over repo.
func NewStore(repo Repository, config Config) *Store {
	if config.PromotionThreshold < 1 {
		config.PromotionThreshold = DefaultConfig().PromotionThreshold
	}
	return &Store{
		repo:   repo,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
		locks:  make(map[string]*sync.Mutex),
	}
}

// Config returns the store's thresholds.
func (s *Store) Config() Config {
	return s.config
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// ResolveRequest asks for the active prompt for a key, bootstrapping one if absent.
type ResolveRequest struct {
	Key         string
	Domains     []string
	Intent      string
	GeneratedBy string
	Generate    func(ctx context.Context) (string, error)
}

// Resolution is the prompt text to use for one synthesis. Status is fallback when
// nothing was stored and bootstrap failed; in that case Text is empty and Version is 0.
type Resolution struct {
	Text    string
	Status  models.PromptStatus
	Version int
	Err     error // bootstrap failure cause, only with fallback status
}

// Resolve returns the live entry for req.Key. When none exists it calls req.Generate under the key lock
// and persists the result as version 1 draft. Concurrent callers for the same key bootstrap once.
func (s *Store) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	l := s.keyLock(req.Key)
	l.Lock()
	defer l.Unlock()

	e, err := s.repo.GetPrompt(ctx, req.Key)
	if err == nil {
		return Resolution{Text: e.Text, Status: e.Status, Version: e.Version}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Resolution{}, fmt.Errorf("failed to load prompt %s: %w", req.Key, err)
	}

	if req.Generate == nil {
		return Resolution{Status: models.StatusFallback, Err: errors.New("no generator")}, nil
	}
	text, genErr := req.Generate(ctx)
	text = strings.TrimSpace(text)
	if genErr == nil && text == "" {
		genErr = errors.New("generator returned empty prompt")
	}
	if genErr != nil {
		logger.Warn("Prompt bootstrap for %s failed, using fallback: %v", req.Key, genErr)
		return Resolution{Status: models.StatusFallback, Err: genErr}, nil
	}

	now := s.now()
	entry := &models.PromptEntry{
		Key:         req.Key,
		Domains:     append([]string(nil), req.Domains...),
		Version:     1,
		Status:      models.StatusDraft,
		Text:        text,
		UserIntent:  req.Intent,
		GeneratedBy: req.GeneratedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		History:     []models.PromptSnapshot{},
	}
	if err := s.repo.CreatePrompt(ctx, entry); err != nil {
		if errors.Is(err, ErrConflict) {
			// created by another process between our read and write
			if existing, gerr := s.repo.GetPrompt(ctx, req.Key); gerr == nil {
				return Resolution{Text: existing.Text, Status: existing.Status, Version: existing.Version}, nil
			}
		}
		return Resolution{}, fmt.Errorf("failed to persist bootstrapped prompt %s: %w", req.Key, err)
	}
	logger.Info("Bootstrapped draft prompt for %s (%d chars)", req.Key, len(text))
	return Resolution{Text: entry.Text, Status: entry.Status, Version: entry.Version}, nil
}

// Get returns a copy of the live entry.
func (s *Store) Get(ctx context.Context, key string) (*models.PromptEntry, error) {
	return s.repo.GetPrompt(ctx, key)
}

// List returns entries ordered by status rank then key. A non-empty filter keeps only those statuses.
func (s *Store) List(ctx context.Context, filter ...models.PromptStatus) ([]*models.PromptEntry, error) {
	all, err := s.repo.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	keep := make(map[models.PromptStatus]bool, len(filter))
	for _, f := range filter {
		keep[f] = true
	}
	out := make([]*models.PromptEntry, 0, len(all))
	for _, e := range all {
		if len(keep) > 0 && !keep[e.Status] {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := StatusRank(out[i].Status), StatusRank(out[j].Status)
		if ri != rj {
			return ri > rj
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// mutate applies fn to a copy of the live entry under the key lock and writes it back with version CAS.
func (s *Store) mutate(ctx context.Context, key string, fn func(e *models.PromptEntry) error) (*models.PromptEntry, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	// The key lock only covers this process; another writer on the same database
	// shows up as a revision conflict and the change is reapplied to a fresh read.
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		var cur *models.PromptEntry
		cur, err = s.repo.GetPrompt(ctx, key)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = s.now()
		err = s.repo.UpdatePrompt(ctx, next, cur.Revision)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		logger.Debug("Prompt %s changed concurrently, retrying write (attempt %d)", key, attempt+1)
	}
	return nil, err
}

// snapshotAndBump appends the current version to history and advances the version.
func (s *Store) snapshotAndBump(e *models.PromptEntry) {
	e.History = append(e.History, e.Snapshot(uuid.NewString(), s.now()))
	e.Version++
}

// SaveDraft creates a version 1 draft, or edits a non-curated entry in place with a version bump.
// A curated entry is never replaced: ErrCuratedLocked.
func (s *Store) SaveDraft(ctx context.Context, key string, domains []string, text, intent, by string) (*models.PromptEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("prompt text must not be empty")
	}

	e, err := s.mutate(ctx, key, func(e *models.PromptEntry) error {
		if e.Status == models.StatusCurated {
			return ErrCuratedLocked
		}
		s.snapshotAndBump(e)
		e.Text = text
		e.UserIntent = intent
		e.GeneratedBy = by
		if len(domains) > 0 {
			e.Domains = append([]string(nil), domains...)
		}
		return nil
	})
	if !errors.Is(err, ErrNotFound) {
		return e, err
	}

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()
	now := s.now()
	entry := &models.PromptEntry{
		Key:         key,
		Domains:     append([]string(nil), domains...),
		Version:     1,
		Status:      models.StatusDraft,
		Text:        text,
		UserIntent:  intent,
		GeneratedBy: by,
		CreatedAt:   now,
		UpdatedAt:   now,
		History:     []models.PromptSnapshot{},
	}
	if err := s.repo.CreatePrompt(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RunOutcome describes one synthesis that used a prompt.
type RunOutcome struct {
	Confidence float64
	Regime     string
	Conflicts  int
	Failed     bool
}

// RecordRun folds one outcome into the entry's performance record. A draft is promoted to
// evolving when the run that brings GoodRuns to the promotion threshold is recorded.
// It never produces a curated entry.
func (s *Store) RecordRun(ctx context.Context, key string, out RunOutcome) (*models.PromptEntry, error) {
	var promoted bool
	e, err := s.mutate(ctx, key, func(e *models.PromptEntry) error {
		promoted = false
		p := &e.Performance
		p.Runs++
		p.AvgConfidence += (out.Confidence - p.AvgConfidence) / float64(p.Runs)
		if p.LastRegime != "" && out.Regime != "" && out.Regime != p.LastRegime {
			p.RegimeChanges++
		}
		if out.Regime != "" {
			p.LastRegime = out.Regime
		}
		if out.Conflicts > 0 {
			p.ConflictsDetected++
		}
		if !out.Failed && out.Confidence >= s.config.MinGoodConfidence {
			p.GoodRuns++
		}
		if e.Status == models.StatusDraft && p.GoodRuns >= s.config.PromotionThreshold {
			e.Status = models.StatusEvolving
			promoted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if promoted {
		metrics.PromptPromotions.Inc()
		logger.Info("Prompt %s promoted to evolving after %d good runs", key, e.Performance.GoodRuns)
	}
	return e, nil
}

// CurateRequest is an explicit human approval. EditedText replaces the text when non-empty.
type CurateRequest struct {
	Curator    string
	Notes      string
	EditedText string
}

// Curate marks the entry as curated, snapshotting the prior version.
func (s *Store) Curate(ctx context.Context, key string, req CurateRequest) (*models.PromptEntry, error) {
	if strings.TrimSpace(req.Curator) == "" {
		return nil, errors.New("curator must not be empty")
	}
	return s.mutate(ctx, key, func(e *models.PromptEntry) error {
		s.snapshotAndBump(e)
		now := s.now()
		e.Status = models.StatusCurated
		e.CuratedAt = &now
		e.CuratedBy = req.Curator
		e.Notes = req.Notes
		if text := strings.TrimSpace(req.EditedText); text != "" {
			e.Text = text
		}
		return nil
	})
}

// Rollback restores the text and status of history version as a new version. Forward history is kept.
func (s *Store) Rollback(ctx context.Context, key string, version int) (*models.PromptEntry, error) {
	return s.mutate(ctx, key, func(e *models.PromptEntry) error {
		idx := -1
		for i := len(e.History) - 1; i >= 0; i-- {
			if e.History[i].Version == version {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %s v%d", ErrVersionNotFound, key, version)
		}
		target := e.History[idx]

		s.snapshotAndBump(e)
		e.Text = target.Text
		e.Status = target.Status
		e.Notes = target.Notes
		e.GeneratedBy = target.GeneratedBy
		if target.Status == models.StatusCurated {
			e.CuratedBy = target.CuratedBy
			if e.CuratedAt == nil {
				now := s.now()
				e.CuratedAt = &now
			}
		} else {
			e.CuratedBy = ""
			e.CuratedAt = nil
		}
		return nil
	})
}

// Reset deletes the live entry and its history. It reports whether anything was deleted.
func (s *Store) Reset(ctx context.Context, key string) (bool, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()
	return s.repo.DeletePrompt(ctx, key)
}
