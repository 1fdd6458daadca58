package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Frames arrive from a single pipeline; one writer avoids lock contention.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS frames (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		received_at INTEGER NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginRun creates a run record.
func (s *SQLiteStore) BeginRun(ctx context.Context, runID, source string, startedAt time.Time) error {
	query := `INSERT INTO runs (run_id, source, started_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, runID, source, startedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// AppendFrame stores one frame, retrying with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) AppendFrame(ctx context.Context, frame domain.Frame) error {
	maxRetries := 3
	baseDelay := 20 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.appendFrameOnce(ctx, frame)
		if err == nil {
			return nil
		}
		if isConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 20ms, 40ms, 80ms
			slog.Debug("AppendFrame hit SQLITE_BUSY, retrying",
				"run_id", frame.RunID,
				"seq", frame.Seq,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		return fmt.Errorf("append frame %d to run %s: %w", frame.Seq, frame.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) appendFrameOnce(ctx context.Context, frame domain.Frame) error {
	query := `INSERT INTO frames (run_id, seq, received_at, payload) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, frame.RunID, frame.Seq, frame.ReceivedAt.UnixNano(), frame.Payload)
	return err
}

// EndRun stamps the end time of a run.
func (s *SQLiteStore) EndRun(ctx context.Context, runID string, endedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE run_id = ?`, endedAt.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("end run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `
	SELECT r.run_id, r.source, r.started_at, r.ended_at,
	       (SELECT COUNT(*) FROM frames f WHERE f.run_id = r.run_id)
	FROM runs r`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var startedAt int64
	var endedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Source, &startedAt, &endedAt, &run.Frames); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt)
	if endedAt.Valid {
		ts := time.Unix(0, endedAt.Int64)
		run.EndedAt = &ts
	}
	return &run, nil
}

// GetRun returns one run with its frame count.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, runColumns+` WHERE r.run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, runColumns+` ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close runs rows", "error", closeErr)
		}
	}()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Frames returns every frame of a run in sequence order.
func (s *SQLiteStore) Frames(ctx context.Context, runID string) ([]domain.Frame, error) {
	query := `SELECT seq, received_at, payload FROM frames WHERE run_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close frame rows", "error", closeErr)
		}
	}()

	var frames []domain.Frame
	for rows.Next() {
		frame := domain.Frame{RunID: runID}
		var receivedAt int64
		if err := rows.Scan(&frame.Seq, &receivedAt, &frame.Payload); err != nil {
			return nil, fmt.Errorf("scan frame row: %w", err)
		}
		frame.ReceivedAt = time.Unix(0, receivedAt)
		frames = append(frames, frame)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}

// DeleteRunsBefore removes runs started before cutoff and their frames.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cleanup: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("Failed to roll back cleanup", "error", rbErr)
		}
	}()

	threshold := cutoff.UnixNano()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM frames WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < ?)`, threshold); err != nil {
		return 0, fmt.Errorf("delete old frames: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cleanup: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
