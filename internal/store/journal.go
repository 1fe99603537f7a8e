// Package store keeps a journal of export runs in a SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
)

// Run statuses written to the journal
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	destination TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	artifact TEXT NOT NULL DEFAULT '',
	strategy TEXT NOT NULL DEFAULT '',
	rows INTEGER NOT NULL DEFAULT 0,
	failed_step TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// Run is one journal row
type Run struct {
	ID          string
	Destination string
	Status      string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Artifact    string
	Strategy    string
	Rows        int64
	FailedStep  string
	Error       string
}

// Journal records runs. A journal opened with an empty path is disabled and
// every method is a no-op.
type Journal struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the journal at path
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{path: path, logger: logger.With(slog.String("component", "journal"))}
	if path == "" {
		return j, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), config.DirPerm); err != nil {
		return nil, apperrors.NewStorageError("failed to create journal directory", err).
			WithContext("path", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open journal", err).WithContext("path", path)
	}
	// One writer per process
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to create journal schema", err).
			WithContext("path", path)
	}

	j.db = db
	j.logger.DebugContext(ctx, "Journal opened", slog.String("path", path))
	return j, nil
}

// Enabled reports whether runs are recorded
func (j *Journal) Enabled() bool {
	return j != nil && j.db != nil
}

// Begin inserts a running row
func (j *Journal) Begin(ctx context.Context, id, destination string, startedAt time.Time) error {
	if !j.Enabled() {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, destination, status, started_at) VALUES (?, ?, ?, ?)`,
		id, destination, StatusRunning, startedAt.UTC())
	if err != nil {
		return apperrors.NewStorageError("failed to record run start", err).WithContext("run_id", id)
	}
	return nil
}

// Finish stores the outcome of a run started with Begin
func (j *Journal) Finish(ctx context.Context, run Run) error {
	if !j.Enabled() {
		return nil
	}

	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}

	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, artifact = ?, strategy = ?, rows = ?,
			failed_step = ?, error_message = ?
		WHERE id = ?`,
		run.Status, finished, run.Artifact, run.Strategy, run.Rows, run.FailedStep, run.Error, run.ID)
	if err != nil {
		return apperrors.NewStorageError("failed to record run outcome", err).WithContext("run_id", run.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewStorageError(fmt.Sprintf("run %s was never started", run.ID), nil)
	}

	j.logger.DebugContext(ctx, "Run recorded",
		slog.String("run_id", run.ID),
		slog.String("status", run.Status))
	return nil
}

// Recent returns up to n runs, newest first
func (j *Journal) Recent(ctx context.Context, n int) ([]Run, error) {
	if !j.Enabled() || n <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, destination, status, started_at, finished_at, artifact, strategy, rows,
			failed_step, error_message
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Destination, &r.Status, &r.StartedAt, &finished,
			&r.Artifact, &r.Strategy, &r.Rows, &r.FailedStep, &r.Error); err != nil {
			return nil, apperrors.NewStorageError("failed to read run", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read runs", err)
	}
	return runs, nil
}

// Close releases the database
func (j *Journal) Close() error {
	if !j.Enabled() {
		return nil
	}
	return j.db.Close()
}
