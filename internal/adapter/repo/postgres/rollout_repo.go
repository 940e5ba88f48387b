package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// RolloutRepo persists rollout_configuration and rollout_history rows.
type RolloutRepo struct{ Pool PgxPool }

// NewRolloutRepo constructs a RolloutRepo.
func NewRolloutRepo(p PgxPool) *RolloutRepo { return &RolloutRepo{Pool: p} }

// Get loads the current RolloutConfig for feature.
func (r *RolloutRepo) Get(ctx domain.Context, feature string) (*domain.RolloutConfig, error) {
	tracer := otel.Tracer("repo.rollout")
	ctx, span := tracer.Start(ctx, "rollout.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "rollout_configuration"),
	)

	const q = `SELECT feature, percentage, strategy, emergency_stop, is_active, updated_at
		FROM rollout_configuration WHERE feature = $1`
	row := r.Pool.QueryRow(ctx, q, feature)

	var cfg domain.RolloutConfig
	if err := row.Scan(&cfg.Feature, &cfg.Percentage, &cfg.Strategy, &cfg.EmergencyStop, &cfg.IsActive, &cfg.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("op=rollout.Get: %w", domain.ErrStoreError)
	}
	return &cfg, nil
}

// Update atomically writes the new RolloutConfig and appends a
// RolloutHistoryEntry in a single transaction (spec §5 requires the
// percentage write and its audit-log entry to be indivisible).
func (r *RolloutRepo) Update(ctx domain.Context, cfg domain.RolloutConfig, entry domain.RolloutHistoryEntry) error {
	tracer := otel.Tracer("repo.rollout")
	ctx, span := tracer.Start(ctx, "rollout.Update")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "rollout_configuration"),
	)

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=rollout.Update begin_tx: %w", domain.ErrStoreError)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const upsertCfg = `
		INSERT INTO rollout_configuration (feature, percentage, strategy, emergency_stop, is_active, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (feature) DO UPDATE SET
			percentage = EXCLUDED.percentage,
			strategy = EXCLUDED.strategy,
			emergency_stop = EXCLUDED.emergency_stop,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, upsertCfg, cfg.Feature, cfg.Percentage, cfg.Strategy, cfg.EmergencyStop, cfg.IsActive, cfg.UpdatedAt); err != nil {
		return fmt.Errorf("op=rollout.Update cfg: %w", domain.ErrStoreError)
	}

	const insertHistory = `
		INSERT INTO rollout_history
			(id, feature, action, previous_percentage, new_percentage, reason, triggered_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := tx.Exec(ctx, insertHistory,
		entry.ID, entry.Feature, entry.Action, entry.PreviousPercentage, entry.NewPercentage,
		entry.Reason, entry.TriggeredBy, entry.Timestamp); err != nil {
		return fmt.Errorf("op=rollout.Update history: %w", domain.ErrStoreError)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=rollout.Update commit: %w", domain.ErrStoreError)
	}
	committed = true
	return nil
}

// History returns the most recent RolloutHistoryEntry rows for feature.
func (r *RolloutRepo) History(ctx domain.Context, feature string, limit int) ([]domain.RolloutHistoryEntry, error) {
	tracer := otel.Tracer("repo.rollout")
	ctx, span := tracer.Start(ctx, "rollout.History")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "rollout_history"),
	)

	const q = `
		SELECT id, feature, action, previous_percentage, new_percentage, reason, triggered_by, created_at
		FROM rollout_history
		WHERE feature = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, feature, limit)
	if err != nil {
		return nil, fmt.Errorf("op=rollout.History: %w", domain.ErrStoreError)
	}
	defer rows.Close()

	var out []domain.RolloutHistoryEntry
	for rows.Next() {
		var e domain.RolloutHistoryEntry
		if err := rows.Scan(&e.ID, &e.Feature, &e.Action, &e.PreviousPercentage, &e.NewPercentage, &e.Reason, &e.TriggeredBy, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("op=rollout.History scan: %w", domain.ErrStoreError)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=rollout.History rows: %w", domain.ErrStoreError)
	}
	return out, nil
}

// RepositoryCategory looks up the repository_size tier for a repository,
// defaulting to CategorySmall when the repository has no recorded category.
func (r *RolloutRepo) RepositoryCategory(ctx domain.Context, repositoryID string) (domain.RepositoryCategory, error) {
	tracer := otel.Tracer("repo.rollout")
	ctx, span := tracer.Start(ctx, "rollout.RepositoryCategory")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "repositories"),
	)

	const q = `SELECT category FROM repositories WHERE id = $1`
	row := r.Pool.QueryRow(ctx, q, repositoryID)

	var category domain.RepositoryCategory
	if err := row.Scan(&category); err != nil {
		if err == pgx.ErrNoRows {
			return domain.CategorySmall, nil
		}
		return "", fmt.Errorf("op=rollout.RepositoryCategory: %w", domain.ErrStoreError)
	}
	return category, nil
}

// Whitelist returns the set of repository ids explicitly whitelisted for feature.
func (r *RolloutRepo) Whitelist(ctx domain.Context, feature string) (map[string]struct{}, error) {
	tracer := otel.Tracer("repo.rollout")
	ctx, span := tracer.Start(ctx, "rollout.Whitelist")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "rollout_whitelist"),
	)

	const q = `SELECT repository_id FROM rollout_whitelist WHERE feature = $1`
	rows, err := r.Pool.Query(ctx, q, feature)
	if err != nil {
		return nil, fmt.Errorf("op=rollout.Whitelist: %w", domain.ErrStoreError)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=rollout.Whitelist scan: %w", domain.ErrStoreError)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=rollout.Whitelist rows: %w", domain.ErrStoreError)
	}
	return set, nil
}
