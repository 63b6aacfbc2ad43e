package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"imageresize/database"
	"imageresize/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS benchmark_runs (
		run_id     TEXT PRIMARY KEY,
		mode       TEXT NOT NULL,
		iteration  INTEGER NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		loaded     BIGINT NOT NULL,
		resized    BIGINT NOT NULL,
		saved      BIGINT NOT NULL,
		failed     BIGINT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL
	)
`

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, schema)
	return err
}

func (r *PostgresRepo) SaveRun(ctx context.Context, run *models.RunResult) error {
	query := `
		INSERT INTO benchmark_runs (run_id, mode, iteration, elapsed_ms, loaded, resized, saved, failed, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		run.RunID,
		string(run.Mode),
		run.Iteration,
		run.Elapsed.Milliseconds(),
		run.Loaded,
		run.Resized,
		run.Saved,
		run.Failed,
		run.StartedAt,
	)
	return err
}

func (r *PostgresRepo) GetRun(ctx context.Context, runID string) (*models.RunResult, error) {
	query := `
		SELECT run_id, mode, iteration, elapsed_ms, loaded, resized, saved, failed, started_at
		FROM benchmark_runs
		WHERE run_id = $1
	`

	var (
		run       models.RunResult
		mode      string
		elapsedMs int64
	)
	err := r.db.Pool.QueryRow(ctx, query, runID).Scan(
		&run.RunID,
		&mode,
		&run.Iteration,
		&elapsedMs,
		&run.Loaded,
		&run.Resized,
		&run.Saved,
		&run.Failed,
		&run.StartedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	run.Mode = models.Mode(mode)
	run.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	return &run, nil
}
