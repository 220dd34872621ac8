// Package store persists finished generation runs so the history command and
// the web shell can show past results across restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"animagen/internal/logging"
	"animagen/internal/pipeline"
)

// ErrNotFound is returned when a generation ID has no record.
var ErrNotFound = errors.New("generation not found")

// Generation is one stored run.
type Generation struct {
	ID         string
	Prompt     string
	Storyboard string
	Status     pipeline.Status
	VideoPath  string
	FinalError string
	CreatedAt  time.Time
	Attempts   []pipeline.Attempt
}

// Store is a SQLite-backed history of generation runs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Get(logging.CategoryStore).Debugf("history database open at %s", dbPath)
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the schema.
func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			storyboard TEXT,
			status TEXT NOT NULL,
			video_path TEXT,
			final_error TEXT,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create generations table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			generation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			code TEXT,
			scene_name TEXT,
			outcome TEXT NOT NULL,
			error_detail TEXT,
			duration_ms INTEGER DEFAULT 0,

			PRIMARY KEY (generation_id, seq),
			FOREIGN KEY (generation_id) REFERENCES generations(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create attempts table: %w", err)
	}

	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at)`)
	return nil
}

// SaveResult records a finished run and its attempts in one transaction.
func (s *Store) SaveResult(ctx context.Context, result *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO generations (id, prompt, storyboard, status, video_path, final_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, result.Request.ID, result.Request.Prompt, result.Storyboard, string(result.Status),
		result.VideoPath, result.FinalError, result.Request.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save generation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM attempts WHERE generation_id = ?`, result.Request.ID)
	if err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}

	for _, attempt := range result.Attempts {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attempts (generation_id, seq, code, scene_name, outcome, error_detail, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, result.Request.ID, attempt.Seq, attempt.Code, attempt.SceneName,
			string(attempt.Outcome), attempt.ErrorDetail, attempt.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save attempt %d: %w", attempt.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logging.Get(logging.CategoryStore).Debugf("saved generation %s (%s, %d attempts)",
		result.Request.ID, result.Status, len(result.Attempts))
	return nil
}

// GetGeneration loads one run with its attempts.
func (s *Store) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, prompt, storyboard, status, video_path, final_error, created_at
		FROM generations WHERE id = ?
	`, id)

	gen, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load generation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, code, scene_name, outcome, error_detail, duration_ms
		FROM attempts WHERE generation_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var attempt pipeline.Attempt
		var outcome string
		var durationMs int64
		if err := rows.Scan(&attempt.Seq, &attempt.Code, &attempt.SceneName, &outcome,
			&attempt.ErrorDetail, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempt.Outcome = pipeline.Outcome(outcome)
		attempt.Duration = time.Duration(durationMs) * time.Millisecond
		gen.Attempts = append(gen.Attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attempts: %w", err)
	}

	return gen, nil
}

// ListGenerations returns the most recent runs, newest first, without
// attempt details.
func (s *Store) ListGenerations(ctx context.Context, limit int) ([]Generation, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt, storyboard, status, video_path, final_error, created_at
		FROM generations ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var generations []Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, *gen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read generations: %w", err)
	}

	return generations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*Generation, error) {
	var gen Generation
	var status string
	if err := row.Scan(&gen.ID, &gen.Prompt, &gen.Storyboard, &status,
		&gen.VideoPath, &gen.FinalError, &gen.CreatedAt); err != nil {
		return nil, err
	}
	gen.Status = pipeline.Status(status)
	return &gen, nil
}
