// Package store persists discovery runs, their accepted suggestions, and
// the rejection/error audit trail in a local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"intentminer/internal/logging"
	"intentminer/internal/pipeline"
)

// Store wraps the SQLite suggestion database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// RunRecord is the stored summary of one discovery run.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	K          int
	Silhouette float64
	Degenerate bool
	Partial    bool
	Summary    pipeline.Summary
}

// New initializes the SQLite database at the given path.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Initializing suggestion store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		k INTEGER NOT NULL,
		silhouette REAL NOT NULL,
		degenerate INTEGER NOT NULL DEFAULT 0,
		partial INTEGER NOT NULL DEFAULT 0,
		messages INTEGER NOT NULL,
		candidates INTEGER NOT NULL,
		proposed INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		errored INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS suggestions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		group_id INTEGER NOT NULL,
		group_size INTEGER NOT NULL,
		slug TEXT NOT NULL,
		label TEXT NOT NULL,
		level TEXT NOT NULL,
		description TEXT NOT NULL,
		when_to_use TEXT,
		confidence REAL NOT NULL,
		notes TEXT,
		ambiguous_overlap INTEGER NOT NULL DEFAULT 0,
		samples TEXT,
		warnings TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_suggestions_run ON suggestions(run_id);
	CREATE INDEX IF NOT EXISTS idx_suggestions_slug ON suggestions(slug);

	CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		group_id INTEGER NOT NULL,
		group_size INTEGER NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		detail TEXT,
		confidence REAL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_run ON audit(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// SaveRun persists a full report: summary row, accepted suggestions, and the
// rejection/error audit entries, in one transaction.
func (s *Store) SaveRun(report *pipeline.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "SaveRun")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(run_id, started_at, duration_ms, k, silhouette, degenerate, partial,
		 messages, candidates, proposed, accepted, rejected, errored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.StartedAt.UnixMilli(), report.Duration.Milliseconds(),
		report.K, report.Silhouette, boolInt(report.Degenerate), boolInt(report.Partial),
		report.Summary.Messages, report.Summary.Candidates, report.Summary.Proposed,
		report.Summary.Accepted, report.Summary.Rejected, report.Summary.Errored)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, sug := range report.Suggestions {
		samples, _ := json.Marshal(sug.Samples)
		warnings, _ := json.Marshal(sug.Warnings)
		_, err = tx.Exec(`INSERT INTO suggestions
			(run_id, group_id, group_size, slug, label, level, description,
			 when_to_use, confidence, notes, ambiguous_overlap, samples, warnings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, sug.GroupID, sug.GroupSize, sug.Slug, sug.Label, sug.Level,
			sug.Description, sug.WhenToUse, sug.Confidence, sug.Notes,
			boolInt(sug.AmbiguousOverlap), string(samples), string(warnings))
		if err != nil {
			return fmt.Errorf("failed to insert suggestion %q: %w", sug.Slug, err)
		}
	}

	for _, rej := range report.Rejections {
		_, err = tx.Exec(`INSERT INTO audit
			(run_id, group_id, group_size, kind, reason, detail, confidence)
			VALUES (?, ?, ?, 'rejection', ?, ?, ?)`,
			report.RunID, rej.GroupID, rej.GroupSize, rej.Reason, rej.Detail, rej.Confidence)
		if err != nil {
			return fmt.Errorf("failed to insert rejection audit: %w", err)
		}
	}
	for _, ge := range report.Errors {
		_, err = tx.Exec(`INSERT INTO audit
			(run_id, group_id, group_size, kind, reason, detail, confidence)
			VALUES (?, ?, ?, 'error', ?, ?, NULL)`,
			report.RunID, ge.GroupID, ge.GroupSize, ge.Stage, ge.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert error audit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	logging.Store("Saved run %s: %d suggestions, %d audit entries",
		report.RunID, len(report.Suggestions), len(report.Rejections)+len(report.Errors))
	return nil
}

// GetRun loads one stored run summary.
func (s *Store) GetRun(runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT run_id, started_at, duration_ms, k, silhouette,
		degenerate, partial, messages, candidates, proposed, accepted, rejected, errored
		FROM runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// LatestRun loads the most recently started run, or nil when the store is
// empty.
func (s *Store) LatestRun() (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT run_id, started_at, duration_ms, k, silhouette,
		degenerate, partial, messages, candidates, proposed, accepted, rejected, errored
		FROM runs ORDER BY started_at DESC LIMIT 1`)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListRuns returns up to limit run summaries, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT run_id, started_at, duration_ms, k, silhouette,
		degenerate, partial, messages, candidates, proposed, accepted, rejected, errored
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Suggestions loads the accepted suggestions of a run, highest confidence
// first.
func (s *Store) Suggestions(runID string) ([]StoredSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT group_id, group_size, slug, label, level,
		description, when_to_use, confidence, notes, ambiguous_overlap, samples, warnings
		FROM suggestions WHERE run_id = ? ORDER BY confidence DESC, group_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var out []StoredSuggestion
	for rows.Next() {
		var sug StoredSuggestion
		var overlap int
		var samples, warnings sql.NullString
		if err := rows.Scan(&sug.GroupID, &sug.GroupSize, &sug.Slug, &sug.Label,
			&sug.Level, &sug.Description, &sug.WhenToUse, &sug.Confidence,
			&sug.Notes, &overlap, &samples, &warnings); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		sug.AmbiguousOverlap = overlap != 0
		if samples.Valid {
			_ = json.Unmarshal([]byte(samples.String), &sug.Samples)
		}
		if warnings.Valid {
			_ = json.Unmarshal([]byte(warnings.String), &sug.Warnings)
		}
		out = append(out, sug)
	}
	return out, rows.Err()
}

// StoredSuggestion is one persisted accepted suggestion.
type StoredSuggestion struct {
	GroupID          int
	GroupSize        int
	Slug             string
	Label            string
	Level            string
	Description      string
	WhenToUse        string
	Confidence       float64
	Notes            string
	AmbiguousOverlap bool
	Samples          []string
	Warnings         []string
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var startedMs, durationMs int64
	var degenerate, partial int
	err := row.Scan(&rec.RunID, &startedMs, &durationMs, &rec.K, &rec.Silhouette,
		&degenerate, &partial, &rec.Summary.Messages, &rec.Summary.Candidates,
		&rec.Summary.Proposed, &rec.Summary.Accepted, &rec.Summary.Rejected,
		&rec.Summary.Errored)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	rec.StartedAt = time.UnixMilli(startedMs)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.Degenerate = degenerate != 0
	rec.Partial = partial != 0
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
