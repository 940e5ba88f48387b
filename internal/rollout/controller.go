package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// Controller implements the Rollout Controller (spec §4.4).
type Controller struct {
	repo domain.RolloutRepository
	log  *slog.Logger
}

// New constructs a Controller.
func New(repo domain.RolloutRepository, log *slog.Logger) *Controller {
	return &Controller{repo: repo, log: log}
}

// Query reads the current configuration for a feature.
func (c *Controller) Query(ctx context.Context, feature string) (domain.RolloutConfig, error) {
	cfg, err := c.repo.Get(ctx, feature)
	if err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Query: %w", err)
	}
	return *cfg, nil
}

// Update sets a new rollout percentage, guarded by the invariants in §4.4:
// newPercentage must be in [0,100], and emergency_stop must not be set. On
// success a history entry is appended atomically with the config write
// (spec §5: "the Controller MUST ensure that an update followed by a
// history write either both succeed or neither does").
func (c *Controller) Update(ctx context.Context, feature string, newPercentage int, reason, triggeredBy string) (domain.RolloutConfig, error) {
	if newPercentage < 0 || newPercentage > 100 {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Update: %w", domain.ErrInvalidArgument)
	}

	current, err := c.repo.Get(ctx, feature)
	if err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Update: %w", err)
	}
	if current.EmergencyStop {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Update: %w", domain.ErrEmergencyStopped)
	}

	next := *current
	next.Percentage = newPercentage
	next.UpdatedAt = time.Now()

	entry := domain.RolloutHistoryEntry{
		Feature:            feature,
		Action:             domain.ActionUpdated,
		PreviousPercentage: current.Percentage,
		NewPercentage:      newPercentage,
		Reason:             reason,
		TriggeredBy:        triggeredBy,
		Timestamp:          next.UpdatedAt,
	}

	if err := c.repo.Update(ctx, next, entry); err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Update persist: %w", err)
	}
	observability.RecordRolloutPercentage(feature, next.EffectivePercentage())
	return next, nil
}

// Stop sets emergency_stop=true and is_active=false, recording a history
// entry whose previous/new percentage both equal the current percentage
// (spec §4.4: "previous_percentage = new_percentage").
func (c *Controller) Stop(ctx context.Context, feature, reason, triggeredBy string) (domain.RolloutConfig, error) {
	current, err := c.repo.Get(ctx, feature)
	if err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Stop: %w", err)
	}

	next := *current
	next.EmergencyStop = true
	next.IsActive = false
	next.UpdatedAt = time.Now()

	entry := domain.RolloutHistoryEntry{
		Feature:            feature,
		Action:             domain.ActionStop,
		PreviousPercentage: current.Percentage,
		NewPercentage:      current.Percentage,
		Reason:             reason,
		TriggeredBy:        triggeredBy,
		Timestamp:          next.UpdatedAt,
	}
	if err := c.repo.Update(ctx, next, entry); err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Stop persist: %w", err)
	}
	observability.RecordRolloutPercentage(feature, next.EffectivePercentage())
	return next, nil
}

// Resume clears emergency_stop and sets is_active, returning the configuration
// to a cyclable state.
func (c *Controller) Resume(ctx context.Context, feature, reason, triggeredBy string) (domain.RolloutConfig, error) {
	current, err := c.repo.Get(ctx, feature)
	if err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Resume: %w", err)
	}

	next := *current
	next.EmergencyStop = false
	next.IsActive = true
	next.UpdatedAt = time.Now()

	entry := domain.RolloutHistoryEntry{
		Feature:            feature,
		Action:             domain.ActionResume,
		PreviousPercentage: current.Percentage,
		NewPercentage:      current.Percentage,
		Reason:             reason,
		TriggeredBy:        triggeredBy,
		Timestamp:          next.UpdatedAt,
	}
	if err := c.repo.Update(ctx, next, entry); err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Resume persist: %w", err)
	}
	observability.RecordRolloutPercentage(feature, next.EffectivePercentage())
	return next, nil
}

// History returns the last limit entries for a feature.
func (c *Controller) History(ctx context.Context, feature string, limit int) ([]domain.RolloutHistoryEntry, error) {
	entries, err := c.repo.History(ctx, feature, limit)
	if err != nil {
		return nil, fmt.Errorf("op=rollout.History: %w", err)
	}
	return entries, nil
}

// IsAllowed is a pure function of the live configuration and the requested
// repository id (spec §8 invariant 4). It dispatches on strategy after
// checking is_active/emergency_stop.
func (c *Controller) IsAllowed(ctx context.Context, feature, repositoryID string) (bool, error) {
	cfg, err := c.repo.Get(ctx, feature)
	if err != nil {
		return false, fmt.Errorf("op=rollout.IsAllowed: %w", err)
	}
	if !cfg.IsActive || cfg.EmergencyStop {
		observability.RecordRolloutGated(feature)
		return false, nil
	}

	var allowed bool
	switch cfg.Strategy {
	case domain.StrategyPercentage:
		allowed = stableHash(feature, repositoryID) < cfg.Percentage
	case domain.StrategyWhitelist:
		whitelist, err := c.repo.Whitelist(ctx, feature)
		if err != nil {
			return false, fmt.Errorf("op=rollout.IsAllowed whitelist: %w", err)
		}
		_, allowed = whitelist[repositoryID]
	case domain.StrategyRepositorySize:
		category, err := c.repo.RepositoryCategory(ctx, repositoryID)
		if err != nil {
			return false, fmt.Errorf("op=rollout.IsAllowed category: %w", err)
		}
		allowed = categoryOpened(category, cfg.Percentage)
	default:
		return false, fmt.Errorf("op=rollout.IsAllowed: %w: unknown strategy %q", domain.ErrInvalidArgument, cfg.Strategy)
	}
	if !allowed {
		observability.RecordRolloutGated(feature)
	}
	return allowed, nil
}

// Rollback is operationally identical to Update(feature, 0, reason) with
// triggered-by "automated_health_check" (spec §4.4), followed by Verify.
func (c *Controller) Rollback(ctx context.Context, feature, reason string) (domain.RolloutConfig, error) {
	cfg, err := c.Update(ctx, feature, 0, reason, "automated_health_check")
	if err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Rollback: %w", err)
	}
	if err := c.Verify(ctx, feature, 0); err != nil {
		return domain.RolloutConfig{}, fmt.Errorf("op=rollout.Rollback verify: %w", err)
	}
	return cfg, nil
}

// Verify reads back the configuration and confirms the effective
// percentage matches expectedPercentage. A mismatch is a fatal alert
// (spec §4.4).
func (c *Controller) Verify(ctx context.Context, feature string, expectedPercentage int) error {
	cfg, err := c.repo.Get(ctx, feature)
	if err != nil {
		return fmt.Errorf("op=rollout.Verify: %w", err)
	}
	if cfg.EffectivePercentage() != expectedPercentage {
		if c.log != nil {
			c.log.Error("rollback verification mismatch",
				slog.String("feature", feature),
				slog.Int("expected", expectedPercentage),
				slog.Int("actual", cfg.EffectivePercentage()))
		}
		return fmt.Errorf("op=rollout.Verify: expected effective percentage %d, got %d", expectedPercentage, cfg.EffectivePercentage())
	}
	return nil
}
