package prompts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rewired-gh/macrooracle/internal/models"
)

// MemoryRepository is a process-local Repository. Entries are copied on every read and write.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.PromptEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*models.PromptEntry)}
}

func (r *MemoryRepository) GetPrompt(_ context.Context, key string) (*models.PromptEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return e.Clone(), nil
}

func (r *MemoryRepository) ListPrompts(_ context.Context) ([]*models.PromptEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.PromptEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *MemoryRepository) CreatePrompt(_ context.Context, e *models.PromptEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid prompt: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Key]; ok {
		return fmt.Errorf("%w: %s already exists", ErrConflict, e.Key)
	}
	c := e.Clone()
	c.Revision = 0
	r.entries[e.Key] = c
	e.Revision = 0
	return nil
}

func (r *MemoryRepository) UpdatePrompt(_ context.Context, e *models.PromptEntry, expectRevision int64) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid prompt: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[e.Key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, e.Key)
	}
	if cur.Revision != expectRevision {
		return fmt.Errorf("%w: %s expected revision %d, have %d", ErrConflict, e.Key, expectRevision, cur.Revision)
	}
	if len(e.History) < len(cur.History) {
		return fmt.Errorf("%w: %s history is append-only", ErrConflict, e.Key)
	}
	e.Revision = expectRevision + 1
	r.entries[e.Key] = e.Clone()
	return nil
}

func (r *MemoryRepository) DeletePrompt(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	return ok, nil
}
