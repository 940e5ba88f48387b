package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// ProgressRepo persists progressive_capture_progress rows, one per Job.
type ProgressRepo struct{ Pool PgxPool }

// NewProgressRepo constructs a ProgressRepo.
func NewProgressRepo(p PgxPool) *ProgressRepo { return &ProgressRepo{Pool: p} }

// Upsert writes the current counters for a Job's progress row.
func (r *ProgressRepo) Upsert(ctx domain.Context, p *domain.Progress) error {
	tracer := otel.Tracer("repo.progress")
	ctx, span := tracer.Start(ctx, "progress.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "progressive_capture_progress"),
	)

	recentErrors, err := json.Marshal(p.RecentErrors)
	if err != nil {
		return fmt.Errorf("op=progress.Upsert marshal: %w", err)
	}

	const q = `
		INSERT INTO progressive_capture_progress
			(job_id, total, processed, failed, current_item, recent_errors)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (job_id) DO UPDATE SET
			total = EXCLUDED.total,
			processed = EXCLUDED.processed,
			failed = EXCLUDED.failed,
			current_item = EXCLUDED.current_item,
			recent_errors = EXCLUDED.recent_errors`
	if _, err := r.Pool.Exec(ctx, q, p.JobID, p.Total, p.Processed, p.Failed, p.CurrentItem, recentErrors); err != nil {
		return fmt.Errorf("op=progress.Upsert: %w", domain.ErrStoreError)
	}
	return nil
}

// Get loads the progress row for a Job.
func (r *ProgressRepo) Get(ctx domain.Context, jobID string) (*domain.Progress, error) {
	tracer := otel.Tracer("repo.progress")
	ctx, span := tracer.Start(ctx, "progress.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "progressive_capture_progress"),
	)

	const q = `SELECT job_id, total, processed, failed, current_item, recent_errors
		FROM progressive_capture_progress WHERE job_id = $1`
	row := r.Pool.QueryRow(ctx, q, jobID)

	var p domain.Progress
	var recentErrors []byte
	if err := row.Scan(&p.JobID, &p.Total, &p.Processed, &p.Failed, &p.CurrentItem, &recentErrors); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("op=progress.Get: %w", domain.ErrStoreError)
	}
	if len(recentErrors) > 0 {
		if err := json.Unmarshal(recentErrors, &p.RecentErrors); err != nil {
			return nil, fmt.Errorf("op=progress.Get unmarshal: %w", err)
		}
	}
	return &p, nil
}
