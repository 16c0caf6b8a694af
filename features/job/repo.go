package job

import (
	"context"
	"database/sql"
	"errors"
)

type Repository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
	MarkRunning(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string, chunks int) error
	MarkFailed(ctx context.Context, id, reason string) error
	Requeue(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, root, status, chunks, error, retries, correlation_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var status string
	if err := s.Scan(&j.ID, &j.Root, &status, &j.Chunks, &j.Error, &j.Retries, &j.CorrelationID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = Status(status)
	return &j, nil
}

func (r *PostgresRepo) Create(ctx context.Context, job *Job) error {
	query := `INSERT INTO index_jobs (root, status, correlation_id) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	job.Status = StatusQueued
	return r.db.QueryRowContext(ctx, query, job.Root, string(job.Status), job.CorrelationID).
		Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM index_jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM index_jobs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) MarkRunning(ctx context.Context, id string) error {
	return r.update(ctx, `UPDATE index_jobs SET status = $2, error = '', updated_at = NOW() WHERE id = $1`, id, string(StatusRunning))
}

func (r *PostgresRepo) MarkSucceeded(ctx context.Context, id string, chunks int) error {
	return r.update(ctx, `UPDATE index_jobs SET status = $2, chunks = $3, error = '', updated_at = NOW() WHERE id = $1`, id, string(StatusSucceeded), chunks)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.update(ctx, `UPDATE index_jobs SET status = $2, error = $3, updated_at = NOW() WHERE id = $1`, id, string(StatusFailed), reason)
}

// Requeue moves a failed job back to queued and counts the retry.
func (r *PostgresRepo) Requeue(ctx context.Context, id string) error {
	return r.update(ctx, `UPDATE index_jobs SET status = $2, retries = retries + 1, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id, string(StatusQueued), string(StatusFailed))
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM index_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
