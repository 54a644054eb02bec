package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("jobs dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open jobs db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping jobs db: %w", err)
	}

	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping jobs db: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, workspaceID, database, dataKey string) (Job, error) {
	if workspaceID == "" {
		return Job{}, fmt.Errorf("workspace id is required")
	}
	if dataKey == "" {
		return Job{}, fmt.Errorf("data key is required")
	}

	job := Job{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Database:    database,
		DataKey:     dataKey,
		Status:      StatusPending,
	}
	query := `
INSERT INTO benchmark_job (job_id, workspace_id, database_name, data_key, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	if err := s.db.QueryRowContext(ctx, query, job.ID, job.WorkspaceID, job.Database, job.DataKey, job.Status).
		Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return Job{}, fmt.Errorf("create benchmark job: %w", err)
	}
	return job, nil
}

func (s *Store) Get(ctx context.Context, jobID string) (Job, error) {
	query := `
SELECT job_id, workspace_id, database_name, data_key, status, COALESCE(error, ''), created_at, updated_at
FROM benchmark_job
WHERE job_id = $1`

	var job Job
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.WorkspaceID,
		&job.Database,
		&job.DataKey,
		&job.Status,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get benchmark job: %w", err)
	}
	return job, nil
}

// Claim moves the oldest pending job to in_progress and returns it.
// ErrNotFound means the queue is empty.
func (s *Store) Claim(ctx context.Context) (Job, error) {
	query := `
UPDATE benchmark_job
SET status = $1, updated_at = NOW()
WHERE job_id = (
  SELECT job_id FROM benchmark_job
  WHERE status = $2
  ORDER BY created_at ASC
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING job_id, workspace_id, database_name, data_key, status, created_at, updated_at`

	var job Job
	if err := s.db.QueryRowContext(ctx, query, StatusInProgress, StatusPending).Scan(
		&job.ID,
		&job.WorkspaceID,
		&job.Database,
		&job.DataKey,
		&job.Status,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("claim benchmark job: %w", err)
	}
	return job, nil
}

// Complete finishes an in_progress job exactly once.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	return s.finish(ctx, jobID, StatusCompleted, "")
}

// Fail marks an in_progress job as failed with the cause.
func (s *Store) Fail(ctx context.Context, jobID, cause string) error {
	return s.finish(ctx, jobID, StatusFailed, cause)
}

func (s *Store) finish(ctx context.Context, jobID, status, cause string) error {
	query := `
UPDATE benchmark_job
SET status = $1, error = NULLIF($2, ''), updated_at = NOW()
WHERE job_id = $3 AND status = $4`
	result, err := s.db.ExecContext(ctx, query, status, cause, jobID, StatusInProgress)
	if err != nil {
		return fmt.Errorf("update benchmark job %q: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update benchmark job %q: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("benchmark job %q is not in progress", jobID)
	}
	return nil
}
