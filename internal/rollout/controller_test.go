package rollout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

type fakeRolloutRepo struct {
	cfg        domain.RolloutConfig
	history    []domain.RolloutHistoryEntry
	whitelist  map[string]struct{}
	categories map[string]domain.RepositoryCategory
}

func newFakeRolloutRepo() *fakeRolloutRepo {
	return &fakeRolloutRepo{
		cfg: domain.RolloutConfig{
			Feature:    domain.DefaultFeature,
			Percentage: 0,
			Strategy:   domain.StrategyPercentage,
			IsActive:   true,
		},
		whitelist:  map[string]struct{}{},
		categories: map[string]domain.RepositoryCategory{},
	}
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
	if limit <= 0 || limit > len(f.history) {
		limit = len(f.history)
	}
	return f.history[len(f.history)-limit:], nil
}

func (f *fakeRolloutRepo) RepositoryCategory(ctx context.Context, repositoryID string) (domain.RepositoryCategory, error) {
	return f.categories[repositoryID], nil
}

func (f *fakeRolloutRepo) Whitelist(ctx context.Context, feature string) (map[string]struct{}, error) {
	return f.whitelist, nil
}

func TestControllerUpdateInvariants(t *testing.T) {
	repo := newFakeRolloutRepo()
	c := New(repo, nil)
	ctx := context.Background()

	_, err := c.Update(ctx, domain.DefaultFeature, -1, "x", "manual")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, repo.history)

	_, err = c.Update(ctx, domain.DefaultFeature, 101, "x", "manual")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, repo.history)

	cfg, err := c.Update(ctx, domain.DefaultFeature, 50, "ramp up", "manual")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Percentage)
	require.Len(t, repo.history, 1)
	assert.Equal(t, 0, repo.history[0].PreviousPercentage)
	assert.Equal(t, 50, repo.history[0].NewPercentage)
}

func TestControllerUpdateTwiceRecordsTwoHistoryEntries(t *testing.T) {
	repo := newFakeRolloutRepo()
	c := New(repo, nil)
	ctx := context.Background()

	_, err := c.Update(ctx, domain.DefaultFeature, 30, "r", "manual")
	require.NoError(t, err)
	cfg, err := c.Update(ctx, domain.DefaultFeature, 30, "r", "manual")
	require.NoError(t, err)

	assert.Len(t, repo.history, 2)
	assert.Equal(t, 30, cfg.Percentage)
}

func TestControllerEmergencyStopBlocksUpdate(t *testing.T) {
	repo := newFakeRolloutRepo()
	repo.cfg.Percentage = 50
	c := New(repo, nil)
	ctx := context.Background()

	_, err := c.Stop(ctx, domain.DefaultFeature, "incident", "oncall")
	require.NoError(t, err)
	assert.True(t, repo.cfg.EmergencyStop)
	assert.False(t, repo.cfg.IsActive)
	assert.Len(t, repo.history, 1)
	assert.Equal(t, domain.ActionStop, repo.history[0].Action)
	assert.Equal(t, 50, repo.history[0].PreviousPercentage)
	assert.Equal(t, 50, repo.history[0].NewPercentage)

	_, err = c.Update(ctx, domain.DefaultFeature, 75, "ramp up", "manual")
	assert.ErrorIs(t, err, domain.ErrEmergencyStopped)
	assert.Equal(t, 50, repo.cfg.Percentage)
	assert.Len(t, repo.history, 1)
}

func TestControllerStopResumeRoundTrip(t *testing.T) {
	repo := newFakeRolloutRepo()
	repo.cfg.Percentage = 40
	c := New(repo, nil)
	ctx := context.Background()

	_, err := c.Stop(ctx, domain.DefaultFeature, "incident", "oncall")
	require.NoError(t, err)

	cfg, err := c.Resume(ctx, domain.DefaultFeature, "resolved", "oncall")
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Percentage)
	assert.False(t, cfg.EmergencyStop)
	assert.True(t, cfg.IsActive)
	assert.Len(t, repo.history, 2)
}

func TestControllerIsAllowedPercentageStrategy(t *testing.T) {
	repo := newFakeRolloutRepo()
	repo.cfg.Percentage = 25
	c := New(repo, nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		repoID := time.Now().Format("15:04:05") + string(rune('a'+i))
		want := stableHash(domain.DefaultFeature, repoID) < 25
		got, err := c.IsAllowed(ctx, domain.DefaultFeature, repoID)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		// Repeated calls within the same configuration are stable.
		got2, err := c.IsAllowed(ctx, domain.DefaultFeature, repoID)
		require.NoError(t, err)
		assert.Equal(t, got, got2)
	}
}

func TestControllerIsAllowedInactiveOrStopped(t *testing.T) {
	repo := newFakeRolloutRepo()
	repo.cfg.Percentage = 100
	repo.cfg.IsActive = false
	c := New(repo, nil)

	allowed, err := c.IsAllowed(context.Background(), domain.DefaultFeature, "any-repo")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestControllerIsAllowedWhitelistStrategy(t *testing.T) {
	repo := newFakeRolloutRepo()
	repo.cfg.Strategy = domain.StrategyWhitelist
	repo.whitelist["allowed-repo"] = struct{}{}
	c := New(repo, nil)
	ctx := context.Background()

	allowed, err := c.IsAllowed(ctx, domain.DefaultFeature, "allowed-repo")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = c.IsAllowed(ctx, domain.DefaultFeature, "other-repo")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestControllerIsAllowedRepositorySizeStrategy(t *testing.T) {
	repo := newFakeRolloutRepo()
	repo.cfg.Strategy = domain.StrategyRepositorySize
	repo.cfg.Percentage = 50
	repo.categories["small-repo"] = domain.CategorySmall
	repo.categories["large-repo"] = domain.CategoryLarge
	c := New(repo, nil)
	ctx := context.Background()

	allowed, err := c.IsAllowed(ctx, domain.DefaultFeature, "small-repo")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = c.IsAllowed(ctx, domain.DefaultFeature, "large-repo")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestControllerRollbackAndVerify(t *testing.T) {
	repo := newFakeRolloutRepo()
	repo.cfg.Percentage = 80
	c := New(repo, nil)
	ctx := context.Background()

	cfg, err := c.Rollback(ctx, domain.DefaultFeature, "critical error rate")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Percentage)
	require.Len(t, repo.history, 1)
	assert.Equal(t, "automated_health_check", repo.history[0].TriggeredBy)

	assert.NoError(t, c.Verify(ctx, domain.DefaultFeature, 0))
	assert.Error(t, c.Verify(ctx, domain.DefaultFeature, 50))
}
