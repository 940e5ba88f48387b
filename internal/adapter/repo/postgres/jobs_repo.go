package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// JobRepo persists and loads progressive_capture_jobs rows using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// Create inserts a new Job row.
func (r *JobRepo) Create(ctx domain.Context, j *domain.Job) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "progressive_capture_jobs"),
	)

	prNumbers, err := json.Marshal(j.PRNumbers)
	if err != nil {
		return fmt.Errorf("op=jobs.Create marshal pr_numbers: %w", err)
	}
	metadata, err := json.Marshal(j.Metadata)
	if err != nil {
		return fmt.Errorf("op=jobs.Create marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO progressive_capture_jobs
			(id, kind, repository_id, repository_name, backend, status,
			 external_run_id, time_range_days, pr_numbers, metadata, last_error,
			 created_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err = r.Pool.Exec(ctx, q,
		j.ID, j.Kind, j.RepositoryID, j.RepositoryName, j.Backend, j.Status,
		j.ExternalRunID, j.TimeRangeDays, prNumbers, metadata, j.LastError,
		j.CreatedAt, j.StartedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("op=jobs.Create: %w", domain.ErrStoreError)
	}
	return nil
}

// UpdateStatus transitions a Job's status and overwrites its last error,
// setting its external run id only when externalRunID is non-empty, with an
// explicit read-committed transaction.
func (r *JobRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, externalRunID, lastError string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "progressive_capture_jobs"),
	)

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=jobs.UpdateStatus begin_tx: %w", domain.ErrStoreError)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	var startedAt, completedAt *time.Time
	if status == domain.JobProcessing {
		startedAt = &now
	}
	if status == domain.JobCompleted || status == domain.JobFailed {
		completedAt = &now
	}

	const q = `
		UPDATE progressive_capture_jobs
		SET status = $2,
		    external_run_id = CASE WHEN $3 <> '' THEN $3 ELSE external_run_id END,
		    last_error = $4,
		    started_at = COALESCE(started_at, $5),
		    completed_at = COALESCE($6, completed_at)
		WHERE id = $1`
	if _, err := tx.Exec(ctx, q, id, status, externalRunID, lastError, startedAt, completedAt); err != nil {
		return fmt.Errorf("op=jobs.UpdateStatus exec: %w", domain.ErrStoreError)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=jobs.UpdateStatus commit: %w", domain.ErrStoreError)
	}
	committed = true
	return nil
}

// Get loads a Job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (*domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "progressive_capture_jobs"),
	)

	const q = `
		SELECT id, kind, repository_id, repository_name, backend, status,
		       external_run_id, time_range_days, pr_numbers, metadata, last_error,
		       created_at, started_at, completed_at
		FROM progressive_capture_jobs WHERE id = $1`
	row := r.Pool.QueryRow(ctx, q, id)
	j, err := scanJobRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("op=jobs.Get: %w", domain.ErrStoreError)
	}
	return j, nil
}

// ListByStatus returns Jobs in status whose started_at is before
// startedBefore, most-recently-started first, capped at limit. Used both by
// the stuck-job sweeper (cutoff = now - maxAge) and the health monitor's
// recent-sample query (cutoff = now).
func (r *JobRepo) ListByStatus(ctx domain.Context, status domain.JobStatus, startedBefore time.Time, limit int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ListByStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "progressive_capture_jobs"),
	)

	const q = `
		SELECT id, kind, repository_id, repository_name, backend, status,
		       external_run_id, time_range_days, pr_numbers, metadata, last_error,
		       created_at, started_at, completed_at
		FROM progressive_capture_jobs
		WHERE status = $1 AND (started_at IS NULL OR started_at < $2)
		ORDER BY started_at DESC NULLS LAST
		LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, status, startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("op=jobs.ListByStatus: %w", domain.ErrStoreError)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("op=jobs.ListByStatus scan: %w", domain.ErrStoreError)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=jobs.ListByStatus rows: %w", domain.ErrStoreError)
	}
	return jobs, nil
}

// rowScanner is the common surface of pgx.Row and pgx.Rows' Scan method.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRow(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var prNumbers, metadata []byte
	if err := row.Scan(
		&j.ID, &j.Kind, &j.RepositoryID, &j.RepositoryName, &j.Backend, &j.Status,
		&j.ExternalRunID, &j.TimeRangeDays, &prNumbers, &metadata, &j.LastError,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return nil, err
	}
	if len(prNumbers) > 0 {
		if err := json.Unmarshal(prNumbers, &j.PRNumbers); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &j.Metadata); err != nil {
			return nil, err
		}
	}
	return &j, nil
}
