// Package history persists pipeline runs and their step results in sqlite.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pipeline/internal/apperrors"
	"pipeline/internal/pipeline"
)

// Run is a persisted pipeline run.
type Run struct {
	ID         string            `json:"id"`
	Pipeline   string            `json:"pipeline"`
	Status     pipeline.Status   `json:"status"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt,omitempty"`
	Results    []pipeline.Result `json:"results,omitempty"`
}

// Store records pipeline runs in a sqlite database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the history database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS step_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER DEFAULT 0,
		attempt INTEGER DEFAULT 1,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_step_results_run_id ON step_results(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records a run starting. A missing ID is filled in.
func (s *Store) CreateRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = pipeline.StatusRunning
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, pipeline, status, data, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Pipeline, string(run.Status), string(data), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal status and step results.
func (s *Store) FinishRun(id string, status pipeline.Status, results []pipeline.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.getRunLocked(id)
	if err != nil {
		return err
	}

	run.Status = status
	run.FinishedAt = time.Now().UTC()
	run.Results = results

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE runs SET status = ?, data = ?, finished_at = ? WHERE id = ?
	`, string(status), string(data), run.FinishedAt, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	for _, r := range results {
		_, err = tx.Exec(`
			INSERT INTO step_results (run_id, step, status, exit_code, attempt, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, r.StepName, string(r.Status), r.ExitCode, r.Attempt, r.Start, r.End)
		if err != nil {
			return fmt.Errorf("insert step result: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRunLocked(id)
}

func (s *Store) getRunLocked(id string) (*Run, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM runs WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	var run Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first, optionally filtered by pipeline name.
func (s *Store) ListRuns(pipelineName string, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT data FROM runs"
	args := []any{}
	if pipelineName != "" {
		query += " WHERE pipeline = ?"
		args = append(args, pipelineName)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var run Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// StepFailures returns how many times a step has failed across all runs of
// a pipeline. Useful for spotting chronically flaky steps.
func (s *Store) StepFailures(pipelineName, step string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM step_results sr
		JOIN runs r ON r.id = sr.run_id
		WHERE r.pipeline = ? AND sr.step = ? AND sr.status IN ('failed', 'timeout')
	`, pipelineName, step).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count step failures: %w", err)
	}
	return count, nil
}
