package health

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/rollout"
)

type fakeRolloutRepo struct {
	cfg     domain.RolloutConfig
	history []domain.RolloutHistoryEntry
}

func (f *fakeRolloutRepo) Get(ctx context.Context, feature string) (*domain.RolloutConfig, error) {
	cfg := f.cfg
	return &cfg, nil
}

func (f *fakeRolloutRepo) Update(ctx context.Context, cfg domain.RolloutConfig, entry domain.RolloutHistoryEntry) error {
	f.cfg = cfg
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeRolloutRepo) History(ctx context.Context, feature string, limit int) ([]domain.RolloutHistoryEntry, error) {
	return f.history, nil
}

func (f *fakeRolloutRepo) RepositoryCategory(ctx context.Context, repositoryID string) (domain.RepositoryCategory, error) {
	return domain.CategorySmall, nil
}

func (f *fakeRolloutRepo) Whitelist(ctx context.Context, feature string) (map[string]struct{}, error) {
	return nil, nil
}

func TestMonitorTriggersRollbackWhenErrorRateExceedsThreshold(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.byStatus[domain.JobFailed] = make([]domain.Job, 8)
	jobs.byStatus[domain.JobCompleted] = make([]domain.Job, 2)

	repo := &fakeRolloutRepo{cfg: domain.RolloutConfig{Feature: domain.DefaultFeature, Percentage: 50, IsActive: true}}
	controller := rollout.New(repo, nil)

	dir := t.TempDir()
	monitor := NewMonitor(jobs, controller, domain.DefaultFeature, 10.0, dir, nil)

	report, err := monitor.Check(context.Background(), CheckFull, false)
	require.NoError(t, err)
	assert.True(t, report.RolledBack)
	assert.InDelta(t, 80.0, report.ErrorRatePercent, 0.01)
	assert.Equal(t, 0, repo.cfg.Percentage)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var written Report
	body, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &written))
	assert.True(t, written.RolledBack)
}

func TestMonitorDoesNotRollbackWhenBelowThreshold(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.byStatus[domain.JobFailed] = make([]domain.Job, 1)
	jobs.byStatus[domain.JobCompleted] = make([]domain.Job, 99)

	repo := &fakeRolloutRepo{cfg: domain.RolloutConfig{Feature: domain.DefaultFeature, Percentage: 50, IsActive: true}}
	controller := rollout.New(repo, nil)

	monitor := NewMonitor(jobs, controller, domain.DefaultFeature, 10.0, t.TempDir(), nil)

	report, err := monitor.Check(context.Background(), CheckFull, false)
	require.NoError(t, err)
	assert.False(t, report.RolledBack)
	assert.Equal(t, 50, repo.cfg.Percentage)
}

func TestMonitorMetricsOnlySkipsSampling(t *testing.T) {
	jobs := newFakeJobRepo()
	repo := &fakeRolloutRepo{cfg: domain.RolloutConfig{Feature: domain.DefaultFeature, Percentage: 50}}
	controller := rollout.New(repo, nil)

	monitor := NewMonitor(jobs, controller, domain.DefaultFeature, 10.0, t.TempDir(), nil)

	report, err := monitor.Check(context.Background(), CheckMetricsOnly, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.SampledJobs)
	assert.False(t, report.RolledBack)
}

func TestMonitorForceTriggersRollbackRegardlessOfRate(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.byStatus[domain.JobCompleted] = make([]domain.Job, 100)

	repo := &fakeRolloutRepo{cfg: domain.RolloutConfig{Feature: domain.DefaultFeature, Percentage: 50, IsActive: true}}
	controller := rollout.New(repo, nil)

	monitor := NewMonitor(jobs, controller, domain.DefaultFeature, 10.0, t.TempDir(), nil)

	report, err := monitor.Check(context.Background(), CheckFull, true)
	require.NoError(t, err)
	assert.True(t, report.RolledBack)
	assert.Equal(t, "forced health check rollback", report.Reason)
}
