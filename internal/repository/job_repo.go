package repository

import (
	"context"
	"database/sql"
)

// JobRunRepository records which periodic jobs already ran for a given
// period ("2026-08" style markers). The monthly reset job checks here
// before touching balances, so re-running within a month is a no-op.
type JobRunRepository interface {
	HasRun(ctx context.Context, job, period string) (bool, error)
	MarkRun(ctx context.Context, job, period string) error
}

type jobRunRepo struct {
	db *sql.DB
}

func NewJobRunRepo(db *sql.DB) JobRunRepository {
	return &jobRunRepo{db: db}
}

func (r *jobRunRepo) HasRun(ctx context.Context, job, period string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_runs WHERE job_name = $1 AND period = $2`, job, period).Scan(&n)
	return n > 0, err
}

func (r *jobRunRepo) MarkRun(ctx context.Context, job, period string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_runs (job_name, period) VALUES ($1, $2)
         ON CONFLICT (job_name, period) DO NOTHING`, job, period)
	return err
}
