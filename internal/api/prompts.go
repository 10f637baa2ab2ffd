package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/orchestrator"
	"github.com/rewired-gh/macrooracle/internal/prompts"
	"github.com/rewired-gh/macrooracle/internal/verticals"
)

type promptSummary struct {
	Key           string              `json:"key"`
	Domains       []string            `json:"domains"`
	Status        models.PromptStatus `json:"status"`
	Version       int                 `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	CuratedAt     *time.Time          `json:"curated_at,omitempty"`
	CuratedBy     string              `json:"curated_by,omitempty"`
	Runs          int                 `json:"runs"`
	AvgConfidence float64             `json:"avg_confidence"`
}

type historyItem struct {
	Version int                 `json:"version"`
	Status  models.PromptStatus `json:"status"`
	SavedAt time.Time           `json:"saved_at"`
}

// promptDetail is a full entry whose history omits the prior texts.
type promptDetail struct {
	*models.PromptEntry
	History []historyItem `json:"history"`
}

func newPromptDetail(e *models.PromptEntry) promptDetail {
	d := promptDetail{PromptEntry: e, History: make([]historyItem, 0, len(e.History))}
	for _, h := range e.History {
		d.History = append(d.History, historyItem{Version: h.Version, Status: h.Status, SavedAt: h.SavedAt})
	}
	return d
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	var filter []models.PromptStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.PromptStatus(strings.ToLower(raw))
		if !st.Persisted() {
			writeError(w, http.StatusBadRequest, "status must be one of: draft, evolving, curated")
			return
		}
		filter = append(filter, st)
	}
	entries, err := s.prompts.List(r.Context(), filter...)
	if err != nil {
		logger.Error("Failed to list prompts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list prompts")
		return
	}
	out := make([]promptSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, promptSummary{
			Key:           e.Key,
			Domains:       e.Domains,
			Status:        e.Status,
			Version:       e.Version,
			CreatedAt:     e.CreatedAt,
			UpdatedAt:     e.UpdatedAt,
			CuratedAt:     e.CuratedAt,
			CuratedBy:     e.CuratedBy,
			Runs:          e.Performance.Runs,
			AvgConfidence: e.Performance.AvgConfidence,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "prompts": out})
}

// promptKey selects the agent-set prompt, or a sector prompt with ?vertical=.
func (s *Server) promptKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	vid := r.URL.Query().Get("vertical")
	if vid == "" {
		return s.advisor.Key(), true
	}
	v, ok := verticals.Get(vid)
	if !ok {
		writeError(w, http.StatusNotFound, "vertical '"+vid+"' not found")
		return "", false
	}
	if v.Primary {
		return s.advisor.Key(), true
	}
	return prompts.DomainKey(v.ID), true
}

func (s *Server) handleActivePrompt(w http.ResponseWriter, r *http.Request) {
	key, ok := s.promptKey(w, r)
	if !ok {
		return
	}
	entry, err := s.prompts.Get(r.Context(), key)
	if errors.Is(err, prompts.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "none",
			"key":     key,
			"message": "No prompt exists yet. One is generated on the next synthesis run.",
		})
		return
	}
	if err != nil {
		logger.Error("Failed to load prompt %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to load prompt")
		return
	}
	writeJSON(w, http.StatusOK, newPromptDetail(entry))
}

type curateBody struct {
	EditedPrompt string `json:"edited_prompt"`
	Curator      string `json:"curator"`
	Notes        string `json:"notes"`
}

func (s *Server) handleCurate(w http.ResponseWriter, r *http.Request) {
	key, ok := s.promptKey(w, r)
	if !ok {
		return
	}
	var body curateBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Curator) == "" {
		body.Curator = "human"
	}
	entry, err := s.prompts.Curate(r.Context(), key, prompts.CurateRequest{
		Curator:    body.Curator,
		Notes:      body.Notes,
		EditedText: body.EditedPrompt,
	})
	if err != nil {
		s.writePromptError(w, err)
		return
	}
	logger.Info("Prompt %s curated by %s at v%d", entry.Key, entry.CuratedBy, entry.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     entry.Status,
		"version":    entry.Version,
		"curated_at": entry.CuratedAt,
		"curated_by": entry.CuratedBy,
		"message":    "Prompt curated. It will not be overwritten automatically.",
	})
}

type rollbackBody struct {
	Version int `json:"version"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	key, ok := s.promptKey(w, r)
	if !ok {
		return
	}
	var body rollbackBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Version < 1 {
		writeError(w, http.StatusBadRequest, "version must be at least 1")
		return
	}
	entry, err := s.prompts.Rollback(r.Context(), key, body.Version)
	if err != nil {
		s.writePromptError(w, err)
		return
	}
	logger.Info("Prompt %s rolled back to v%d as v%d", entry.Key, body.Version, entry.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  entry.Status,
		"version": entry.Version,
		"message": fmt.Sprintf("Rolled back to version %d.", body.Version),
	})
}

func (s *Server) handleImprove(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.advisor.SuggestImprovements(r.Context())
	switch {
	case errors.Is(err, orchestrator.ErrNoReasoner):
		writeError(w, http.StatusServiceUnavailable, "no reasoning service configured")
	case errors.Is(err, orchestrator.ErrNoPrompt):
		writeError(w, http.StatusNotFound, "no prompt exists yet")
	case err != nil:
		logger.Warn("Improvement suggestions failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, suggestions)
	}
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	key, ok := s.promptKey(w, r)
	if !ok {
		return
	}
	entry, err := s.prompts.Get(r.Context(), key)
	if errors.Is(err, prompts.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No prompt exists yet."})
		return
	}
	if err != nil {
		logger.Error("Failed to load prompt performance: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":         entry.Key,
		"status":      entry.Status,
		"version":     entry.Version,
		"performance": entry.Performance,
		"health":      orchestrator.Health(entry),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	key, ok := s.promptKey(w, r)
	if !ok {
		return
	}
	deleted, err := s.prompts.Reset(r.Context(), key)
	if err != nil {
		logger.Error("Failed to reset prompt: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to reset prompt")
		return
	}
	msg := "No prompt found to delete."
	if deleted {
		msg = "Prompt deleted. The next synthesis run generates a new one."
		logger.Info("Prompt %s reset", key)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "message": msg})
}

func (s *Server) writePromptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prompts.ErrNotFound), errors.Is(err, prompts.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, prompts.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("Prompt update failed: %v", err)
		writeError(w, http.StatusInternalServerError, "prompt update failed")
	}
}
