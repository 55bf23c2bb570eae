// Package storage persists scheduler jobs in SQLite. Access tokens are
// deliberately not persisted; they live only in memory for the process
// lifetime.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Job is a persisted scheduler job.
type Job struct {
	ID         string
	Type       string
	Schedule   string
	Status     string
	RetryCount int
	LastError  string
	NextRun    time.Time
	LastRun    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobStore handles job persistence.
type JobStore struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewJobStore creates a JobStore on an open database.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Migrate sets up the jobs schema.
func (s *JobStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		schedule TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('scheduled', 'running', 'completed', 'failed', 'dead')),
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_run DATETIME NOT NULL,
		last_run DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(type, schedule)
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_next_run ON jobs(next_run) WHERE status = 'scheduled';
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate jobs schema: %w", err)
	}
	return nil
}

// Upsert inserts a job or updates the stored row with the same ID.
func (s *JobStore) Upsert(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job and job ID are required", ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, schedule, status, retry_count, last_error, next_run, last_run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			retry_count=excluded.retry_count,
			last_error=excluded.last_error,
			next_run=excluded.next_run,
			last_run=excluded.last_run,
			updated_at=CURRENT_TIMESTAMP`,
		job.ID, job.Type, job.Schedule, job.Status, job.RetryCount, job.LastError, job.NextRun, job.LastRun)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", job.ID, err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: job ID cannot be empty", ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, schedule, status, retry_count, last_error, next_run, last_run, created_at, updated_at
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return job, err
}

// List returns all persisted jobs.
func (s *JobStore) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, schedule, status, retry_count, last_error, next_run, last_run, created_at, updated_at
		FROM jobs ORDER BY next_run`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Delete removes a job by ID.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: job ID cannot be empty", ErrInvalidInput)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var lastRun sql.NullTime
	err := row.Scan(&j.ID, &j.Type, &j.Schedule, &j.Status, &j.RetryCount, &j.LastError, &j.NextRun, &lastRun, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	if lastRun.Valid {
		j.LastRun = &lastRun.Time
	}
	return &j, nil
}
