// Package storage provides SQLite-backed persistence for prompt entries, their history, and run records.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/macrooracle/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/macrooracle/data.db. ":memory:" opens a private in-memory database.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "macrooracle", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prompts (
			key                 TEXT PRIMARY KEY,
			domains             TEXT NOT NULL DEFAULT '[]',
			version             INTEGER NOT NULL,
			status              TEXT NOT NULL,
			system_prompt       TEXT NOT NULL,
			user_intent         TEXT,
			generated_by        TEXT,
			created_at          INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL,
			curated_at          INTEGER,
			curated_by          TEXT,
			human_notes         TEXT,
			perf_runs           INTEGER NOT NULL DEFAULT 0,
			perf_good_runs      INTEGER NOT NULL DEFAULT 0,
			perf_avg_confidence REAL NOT NULL DEFAULT 0,
			perf_regime_changes INTEGER NOT NULL DEFAULT 0,
			perf_conflicts      INTEGER NOT NULL DEFAULT 0,
			perf_last_regime    TEXT,
			revision            INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS prompt_history (
			id            TEXT PRIMARY KEY,
			prompt_key    TEXT NOT NULL REFERENCES prompts(key) ON DELETE CASCADE,
			version       INTEGER NOT NULL,
			status        TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			generated_by  TEXT,
			curated_by    TEXT,
			human_notes   TEXT,
			saved_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prompt_history_key ON prompt_history(prompt_key, saved_at)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id              TEXT PRIMARY KEY,
			run_number      INTEGER NOT NULL,
			market_regime   TEXT NOT NULL,
			regime_label    TEXT,
			dominant_signal TEXT,
			confidence      REAL NOT NULL,
			engine          TEXT,
			prompt_status   TEXT,
			prompt_version  INTEGER,
			series_fetched  INTEGER,
			elapsed_seconds REAL,
			headline        TEXT,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetPrompt loads the live entry for key with its full history.
func (s *Storage) GetPrompt(ctx context.Context, key string) (*models.PromptEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptCols+` FROM prompts WHERE key = ?`, key)
	e, err := scanPrompt(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrPromptNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	if e.History, err = s.loadHistory(ctx, key); err != nil {
		return nil, err
	}
	return e, nil
}

// ListPrompts returns every live entry with history attached.
func (s *Storage) ListPrompts(ctx context.Context) ([]*models.PromptEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+promptCols+` FROM prompts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	var entries []*models.PromptEntry
	for rows.Next() {
		e, err := scanPrompt(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// single connection: history is loaded after the cursor is released
	for _, e := range entries {
		if e.History, err = s.loadHistory(ctx, e.Key); err != nil {
			return nil, err
		}
	}
	if entries == nil {
		entries = []*models.PromptEntry{}
	}
	return entries, nil
}

// CreatePrompt inserts a new entry. It fails with ErrVersionConflict when the key already exists.
func (s *Storage) CreatePrompt(ctx context.Context, e *models.PromptEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid prompt: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM prompts WHERE key = ?`, e.Key).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check prompt: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s already exists", models.ErrVersionConflict, e.Key)
	}

	domains, err := json.Marshal(e.Domains)
	if err != nil {
		return fmt.Errorf("failed to marshal domains: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO prompts
			(key, domains, version, status, system_prompt, user_intent, generated_by,
			 created_at, updated_at, curated_at, curated_by, human_notes,
			 perf_runs, perf_good_runs, perf_avg_confidence, perf_regime_changes, perf_conflicts, perf_last_regime,
			 revision)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0)`,
		e.Key, string(domains), e.Version, string(e.Status), e.Text, e.UserIntent, e.GeneratedBy,
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano(), nanoOrNil(e.CuratedAt), e.CuratedBy, e.Notes,
		e.Performance.Runs, e.Performance.GoodRuns, e.Performance.AvgConfidence,
		e.Performance.RegimeChanges, e.Performance.ConflictsDetected, e.Performance.LastRegime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prompt: %w", err)
	}
	if err := insertHistory(ctx, tx, e.Key, e.History); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Revision = 0
	return nil
}

// UpdatePrompt replaces the live entry for e.Key if its stored revision still equals expectRevision,
// so writers sharing the database file cannot lose each other's updates. On success e.Revision
// is advanced. History snapshots not yet stored are appended; existing snapshots are never rewritten.
func (s *Storage) UpdatePrompt(ctx context.Context, e *models.PromptEntry, expectRevision int64) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid prompt: %w", err)
	}
	domains, err := json.Marshal(e.Domains)
	if err != nil {
		return fmt.Errorf("failed to marshal domains: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE prompts SET
			domains=?, version=?, status=?, system_prompt=?, user_intent=?, generated_by=?,
			updated_at=?, curated_at=?, curated_by=?, human_notes=?,
			perf_runs=?, perf_good_runs=?, perf_avg_confidence=?, perf_regime_changes=?,
			perf_conflicts=?, perf_last_regime=?, revision=revision+1
		WHERE key=? AND revision=?`,
		string(domains), e.Version, string(e.Status), e.Text, e.UserIntent, e.GeneratedBy,
		e.UpdatedAt.UnixNano(), nanoOrNil(e.CuratedAt), e.CuratedBy, e.Notes,
		e.Performance.Runs, e.Performance.GoodRuns, e.Performance.AvgConfidence,
		e.Performance.RegimeChanges, e.Performance.ConflictsDetected, e.Performance.LastRegime,
		e.Key, expectRevision,
	)
	if err != nil {
		return fmt.Errorf("failed to update prompt: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM prompts WHERE key = ?`, e.Key).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check prompt: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", models.ErrPromptNotFound, e.Key)
		}
		return fmt.Errorf("%w: %s expected revision %d", models.ErrVersionConflict, e.Key, expectRevision)
	}
	if err := insertHistory(ctx, tx, e.Key, e.History); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Revision = expectRevision + 1
	return nil
}

// DeletePrompt removes the entry and, by cascade, its history.
func (s *Storage) DeletePrompt(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete prompt: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) loadHistory(ctx context.Context, key string) ([]models.PromptSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, status, system_prompt, generated_by, curated_by, human_notes, saved_at
		FROM prompt_history WHERE prompt_key = ? ORDER BY saved_at, rowid`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt history: %w", err)
	}
	defer rows.Close()

	history := []models.PromptSnapshot{}
	for rows.Next() {
		var h models.PromptSnapshot
		var status string
		var generatedBy, curatedBy, notes sql.NullString
		var savedAtNano int64
		if err := rows.Scan(&h.ID, &h.Version, &status, &h.Text, &generatedBy, &curatedBy, &notes, &savedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan prompt history: %w", err)
		}
		h.Status = models.PromptStatus(status)
		h.GeneratedBy = generatedBy.String
		h.CuratedBy = curatedBy.String
		h.Notes = notes.String
		h.SavedAt = time.Unix(0, savedAtNano).UTC()
		history = append(history, h)
	}
	return history, rows.Err()
}

func insertHistory(ctx context.Context, tx *sql.Tx, key string, history []models.PromptSnapshot) error {
	for _, h := range history {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO prompt_history
				(id, prompt_key, version, status, system_prompt, generated_by, curated_by, human_notes, saved_at)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			h.ID, key, h.Version, string(h.Status), h.Text, h.GeneratedBy, h.CuratedBy, h.Notes,
			h.SavedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert prompt history: %w", err)
		}
	}
	return nil
}

// SaveRun persists a run summary and enforces the run cap.
func (s *Storage) SaveRun(ctx context.Context, r models.RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, run_number, market_regime, regime_label, dominant_signal, confidence, engine,
			 prompt_status, prompt_version, series_fetched, elapsed_seconds, headline, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.RunNumber, r.MarketRegime, r.RegimeLabel, string(r.DominantSignal), r.Confidence, r.Engine,
		r.PromptStatus, r.PromptVersion, r.SeriesFetched, r.ElapsedSeconds, r.Headline,
		r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY created_at DESC LIMIT ?
		)`, s.maxRuns); err != nil {
		return fmt.Errorf("failed to enforce run cap: %w", err)
	}

	return tx.Commit()
}

// ListRuns returns the newest runs first, at most limit of them.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_number, market_regime, regime_label, dominant_signal, confidence, engine,
		       prompt_status, prompt_version, series_fetched, elapsed_seconds, headline, created_at
		FROM runs ORDER BY created_at DESC, run_number DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		var r models.RunRecord
		var label, dominant, engine, status, headline sql.NullString
		var version, fetched sql.NullInt64
		var elapsed sql.NullFloat64
		var createdAtNano int64
		err := rows.Scan(
			&r.ID, &r.RunNumber, &r.MarketRegime, &label, &dominant, &r.Confidence, &engine,
			&status, &version, &fetched, &elapsed, &headline, &createdAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.RegimeLabel = label.String
		r.DominantSignal = models.Direction(dominant.String)
		r.Engine = engine.String
		r.PromptStatus = status.String
		r.PromptVersion = int(version.Int64)
		r.SeriesFetched = int(fetched.Int64)
		r.ElapsedSeconds = elapsed.Float64
		r.Headline = headline.String
		r.CreatedAt = time.Unix(0, createdAtNano).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RotateRuns keeps at most maxRuns newest runs by created_at.
func (s *Storage) RotateRuns(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY created_at DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate runs: %w", err)
	}
	return nil
}

const promptCols = `key, domains, version, status, system_prompt, user_intent, generated_by,
	created_at, updated_at, curated_at, curated_by, human_notes,
	perf_runs, perf_good_runs, perf_avg_confidence, perf_regime_changes, perf_conflicts, perf_last_regime,
	revision`

func scanPrompt(scan func(...any) error) (*models.PromptEntry, error) {
	var e models.PromptEntry
	var domains, status string
	var intent, generatedBy, curatedBy, notes, lastRegime sql.NullString
	var createdAtNano, updatedAtNano int64
	var curatedAtNano sql.NullInt64
	err := scan(
		&e.Key, &domains, &e.Version, &status, &e.Text, &intent, &generatedBy,
		&createdAtNano, &updatedAtNano, &curatedAtNano, &curatedBy, &notes,
		&e.Performance.Runs, &e.Performance.GoodRuns, &e.Performance.AvgConfidence,
		&e.Performance.RegimeChanges, &e.Performance.ConflictsDetected, &lastRegime,
		&e.Revision,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(domains), &e.Domains); err != nil {
		return nil, fmt.Errorf("failed to unmarshal domains: %w", err)
	}
	e.Status = models.PromptStatus(status)
	e.UserIntent = intent.String
	e.GeneratedBy = generatedBy.String
	e.CuratedBy = curatedBy.String
	e.Notes = notes.String
	e.Performance.LastRegime = lastRegime.String
	e.CreatedAt = time.Unix(0, createdAtNano).UTC()
	e.UpdatedAt = time.Unix(0, updatedAtNano).UTC()
	if curatedAtNano.Valid {
		t := time.Unix(0, curatedAtNano.Int64).UTC()
		e.CuratedAt = &t
	}
	return &e, nil
}

func nanoOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
