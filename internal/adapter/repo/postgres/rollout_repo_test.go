package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

func TestRolloutRepoGet(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewRolloutRepo(m)
	ctx := context.Background()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"feature", "percentage", "strategy", "emergency_stop", "is_active", "updated_at"}).
		AddRow(domain.DefaultFeature, 25, domain.StrategyPercentage, false, true, now)
	m.ExpectQuery("SELECT feature, percentage, strategy").
		WithArgs(domain.DefaultFeature).
		WillReturnRows(rows)

	cfg, err := repo.Get(ctx, domain.DefaultFeature)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Percentage)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRolloutRepoGetNotFound(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewRolloutRepo(m)
	ctx := context.Background()

	m.ExpectQuery("SELECT feature, percentage, strategy").
		WithArgs(domain.DefaultFeature).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Get(ctx, domain.DefaultFeature)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRolloutRepoUpdateIsAtomic(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewRolloutRepo(m)
	ctx := context.Background()

	cfg := domain.RolloutConfig{Feature: domain.DefaultFeature, Percentage: 50, Strategy: domain.StrategyPercentage, IsActive: true, UpdatedAt: time.Now().UTC()}
	entry := domain.RolloutHistoryEntry{ID: "hist-1", Feature: domain.DefaultFeature, Action: domain.ActionUpdated, PreviousPercentage: 25, NewPercentage: 50, Reason: "ramp", TriggeredBy: "operator", Timestamp: time.Now().UTC()}

	m.ExpectBegin()
	m.ExpectExec("INSERT INTO rollout_configuration").
		WithArgs(cfg.Feature, cfg.Percentage, cfg.Strategy, cfg.EmergencyStop, cfg.IsActive, cfg.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec("INSERT INTO rollout_history").
		WithArgs(entry.ID, entry.Feature, entry.Action, entry.PreviousPercentage, entry.NewPercentage, entry.Reason, entry.TriggeredBy, entry.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectCommit()

	require.NoError(t, repo.Update(ctx, cfg, entry))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRolloutRepoUpdateRollsBackOnHistoryFailure(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewRolloutRepo(m)
	ctx := context.Background()

	cfg := domain.RolloutConfig{Feature: domain.DefaultFeature, Percentage: 0}
	entry := domain.RolloutHistoryEntry{ID: "hist-1", Feature: domain.DefaultFeature, Action: domain.ActionRollback}

	m.ExpectBegin()
	m.ExpectExec("INSERT INTO rollout_configuration").
		WithArgs(cfg.Feature, cfg.Percentage, cfg.Strategy, cfg.EmergencyStop, cfg.IsActive, cfg.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec("INSERT INTO rollout_history").
		WithArgs(entry.ID, entry.Feature, entry.Action, entry.PreviousPercentage, entry.NewPercentage, entry.Reason, entry.TriggeredBy, entry.Timestamp).
		WillReturnError(assert.AnError)
	m.ExpectRollback()

	err = repo.Update(ctx, cfg, entry)
	assert.ErrorIs(t, err, domain.ErrStoreError)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRolloutRepoHistory(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewRolloutRepo(m)
	ctx := context.Background()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "feature", "action", "previous_percentage", "new_percentage", "reason", "triggered_by", "created_at"}).
		AddRow("hist-1", domain.DefaultFeature, domain.ActionUpdated, 0, 25, "ramp", "operator", now)
	m.ExpectQuery("SELECT id, feature, action").
		WithArgs(domain.DefaultFeature, 10).
		WillReturnRows(rows)

	entries, err := repo.History(ctx, domain.DefaultFeature, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hist-1", entries[0].ID)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRolloutRepoRepositoryCategoryDefaultsToSmall(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewRolloutRepo(m)
	ctx := context.Background()

	m.ExpectQuery("SELECT category FROM repositories").
		WithArgs("repo-1").
		WillReturnError(pgx.ErrNoRows)

	category, err := repo.RepositoryCategory(ctx, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CategorySmall, category)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRolloutRepoWhitelist(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewRolloutRepo(m)
	ctx := context.Background()

	rows := pgxmock.NewRows([]string{"repository_id"}).AddRow("repo-1").AddRow("repo-2")
	m.ExpectQuery("SELECT repository_id FROM rollout_whitelist").
		WithArgs(domain.DefaultFeature).
		WillReturnRows(rows)

	set, err := repo.Whitelist(ctx, domain.DefaultFeature)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	_, ok := set["repo-1"]
	assert.True(t, ok)
	require.NoError(t, m.ExpectationsWereMet())
}
