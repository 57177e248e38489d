// Package rollout implements the hybrid feature-rollout controller: percentage
// bucketing, whitelist overrides, category caps, and the audit trail every
// mutation leaves behind.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidPercentage is returned when a percentage is outside [0,100].
var ErrInvalidPercentage = errors.New("rollout percentage must be between 0 and 100")

// Store defines the database operations needed by the manager.
type Store interface {
	GetFeatureRolloutByName(ctx context.Context, featureName string) (*models.FeatureRollout, error)
	UpdateFeatureRollout(ctx context.Context, f *models.FeatureRollout) error
	CreateRolloutHistory(ctx context.Context, h *models.RolloutHistory) error
	GetCategoryByName(ctx context.Context, name models.CategoryName) (*models.RepositoryCategory, error)
	GetRepositoryByID(ctx context.Context, id uuid.UUID) (*models.Repository, error)
}

// Manager coordinates eligibility decisions and configuration changes for
// feature rollouts.
type Manager struct {
	store  Store
	logger zerolog.Logger
}

// NewManager creates a rollout Manager.
func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "rollout_manager").Logger(),
	}
}

// Bucket maps a repository ID to a stable bucket in [0,100). The same ID
// always lands in the same bucket, so raising the percentage only ever adds
// repositories to a rollout.
func Bucket(repoID uuid.UUID) int {
	h := fnv.New32a()
	h.Write([]byte(repoID.String()))
	return int(h.Sum32() % 100)
}

// Decision explains an eligibility check result.
type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
	Bucket   int    `json:"bucket"`
	// EffectivePercentage is the rollout percentage after category caps.
	EffectivePercentage int `json:"effective_percentage"`
}

// CheckEligibility decides whether a repository receives the named feature.
// Order of precedence: exclusion, whitelist, active/paused state, category
// cap, percentage bucketing.
func (m *Manager) CheckEligibility(ctx context.Context, featureName string, repoID uuid.UUID) (*Decision, error) {
	feature, err := m.store.GetFeatureRolloutByName(ctx, featureName)
	if err != nil {
		return nil, fmt.Errorf("load feature %q: %w", featureName, err)
	}

	decision := &Decision{Bucket: Bucket(repoID)}

	if feature.IsExcluded(repoID) {
		decision.Reason = "repository is excluded"
		return decision, nil
	}

	if !feature.IsActive {
		decision.Reason = "feature is inactive"
		return decision, nil
	}

	// Whitelist overrides percentage and pause state, never deactivation.
	if feature.Strategy != models.StrategyPercentage && feature.IsWhitelisted(repoID) {
		decision.Eligible = true
		decision.Reason = "repository is whitelisted"
		decision.EffectivePercentage = feature.RolloutPercentage
		return decision, nil
	}

	if feature.IsPaused {
		decision.Reason = "rollout is paused"
		return decision, nil
	}

	if feature.Strategy == models.StrategyWhitelist {
		decision.Reason = "repository is not whitelisted"
		return decision, nil
	}

	effective, err := m.effectivePercentage(ctx, feature, repoID)
	if err != nil {
		return nil, err
	}
	decision.EffectivePercentage = effective

	if decision.Bucket < effective {
		decision.Eligible = true
		decision.Reason = fmt.Sprintf("bucket %d within %d%% rollout", decision.Bucket, effective)
	} else {
		decision.Reason = fmt.Sprintf("bucket %d outside %d%% rollout", decision.Bucket, effective)
	}
	return decision, nil
}

// effectivePercentage applies the repository's category cap to the feature
// percentage. Unknown or uncategorized repositories are not capped.
func (m *Manager) effectivePercentage(ctx context.Context, feature *models.FeatureRollout, repoID uuid.UUID) (int, error) {
	if feature.Strategy != models.StrategyHybrid {
		return feature.RolloutPercentage, nil
	}

	repo, err := m.store.GetRepositoryByID(ctx, repoID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return feature.RolloutPercentage, nil
		}
		return 0, fmt.Errorf("load repository: %w", err)
	}
	if repo.Category == "" {
		return feature.RolloutPercentage, nil
	}

	category, err := m.store.GetCategoryByName(ctx, repo.Category)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return feature.RolloutPercentage, nil
		}
		return 0, fmt.Errorf("load category: %w", err)
	}

	if category.MaxPercentage < feature.RolloutPercentage {
		return category.MaxPercentage, nil
	}
	return feature.RolloutPercentage, nil
}

// SetPercentage changes the rollout percentage and records the transition.
func (m *Manager) SetPercentage(ctx context.Context, featureName string, percentage int, trigger models.TriggerType, actor, reason string) (*models.FeatureRollout, error) {
	if percentage < 0 || percentage > 100 {
		return nil, ErrInvalidPercentage
	}

	feature, err := m.store.GetFeatureRolloutByName(ctx, featureName)
	if err != nil {
		return nil, fmt.Errorf("load feature %q: %w", featureName, err)
	}

	prev := feature.RolloutPercentage
	feature.RolloutPercentage = percentage
	if err := m.store.UpdateFeatureRollout(ctx, feature); err != nil {
		return nil, fmt.Errorf("update feature %q: %w", featureName, err)
	}

	m.appendHistory(ctx, models.NewRolloutHistory(feature.ID, models.HistoryActionPercentageChanged, trigger, reason).
		WithPercentChange(prev, percentage).
		WithActor(actor))

	m.logger.Info().
		Str("feature", featureName).
		Int("previous", prev).
		Int("percentage", percentage).
		Str("trigger", string(trigger)).
		Msg("rollout percentage changed")
	return feature, nil
}

// Pause stops new eligibility without losing the configured percentage.
func (m *Manager) Pause(ctx context.Context, featureName, actor, reason string) (*models.FeatureRollout, error) {
	return m.setPaused(ctx, featureName, true, models.HistoryActionPaused, actor, reason)
}

// Resume re-enables a paused rollout at its previous percentage.
func (m *Manager) Resume(ctx context.Context, featureName, actor, reason string) (*models.FeatureRollout, error) {
	return m.setPaused(ctx, featureName, false, models.HistoryActionResumed, actor, reason)
}

func (m *Manager) setPaused(ctx context.Context, featureName string, paused bool, action models.HistoryAction, actor, reason string) (*models.FeatureRollout, error) {
	feature, err := m.store.GetFeatureRolloutByName(ctx, featureName)
	if err != nil {
		return nil, fmt.Errorf("load feature %q: %w", featureName, err)
	}
	if feature.IsPaused == paused {
		return feature, nil
	}

	feature.IsPaused = paused
	if err := m.store.UpdateFeatureRollout(ctx, feature); err != nil {
		return nil, fmt.Errorf("update feature %q: %w", featureName, err)
	}

	m.appendHistory(ctx, models.NewRolloutHistory(feature.ID, action, models.TriggerManual, reason).
		WithActor(actor))

	m.logger.Info().Str("feature", featureName).Bool("paused", paused).Msg("rollout pause state changed")
	return feature, nil
}

// EmergencyStop drops the rollout to 0% immediately. Used by operators when
// something is visibly wrong before the monitor catches it.
func (m *Manager) EmergencyStop(ctx context.Context, featureName, actor, reason string) (*models.FeatureRollout, error) {
	return m.rollback(ctx, featureName, models.HistoryActionRolledBack, models.TriggerManual, actor, reason, nil)
}

// Rollback drops the rollout to 0% on behalf of the health monitor.
func (m *Manager) Rollback(ctx context.Context, featureName, reason string, metadata map[string]any) (*models.FeatureRollout, error) {
	return m.rollback(ctx, featureName, models.HistoryActionAutoRollback, models.TriggerAutomatic, "health-monitor", reason, metadata)
}

func (m *Manager) rollback(ctx context.Context, featureName string, action models.HistoryAction, trigger models.TriggerType, actor, reason string, metadata map[string]any) (*models.FeatureRollout, error) {
	feature, err := m.store.GetFeatureRolloutByName(ctx, featureName)
	if err != nil {
		return nil, fmt.Errorf("load feature %q: %w", featureName, err)
	}

	prev := feature.RolloutPercentage
	feature.RolloutPercentage = 0
	if err := m.store.UpdateFeatureRollout(ctx, feature); err != nil {
		return nil, fmt.Errorf("update feature %q: %w", featureName, err)
	}

	entry := models.NewRolloutHistory(feature.ID, action, trigger, reason).
		WithPercentChange(prev, 0).
		WithActor(actor)
	entry.Metadata = metadata
	m.appendHistory(ctx, entry)

	m.logger.Warn().
		Str("feature", featureName).
		Int("previous", prev).
		Str("trigger", string(trigger)).
		Str("reason", reason).
		Msg("rollout rolled back to 0%")
	return feature, nil
}

// AddToWhitelist adds a repository to a feature's whitelist.
func (m *Manager) AddToWhitelist(ctx context.Context, featureName string, repoID uuid.UUID, actor string) (*models.FeatureRollout, error) {
	feature, err := m.store.GetFeatureRolloutByName(ctx, featureName)
	if err != nil {
		return nil, fmt.Errorf("load feature %q: %w", featureName, err)
	}
	if feature.IsWhitelisted(repoID) {
		return feature, nil
	}

	feature.WhitelistedRepos = append(feature.WhitelistedRepos, repoID)
	if err := m.store.UpdateFeatureRollout(ctx, feature); err != nil {
		return nil, fmt.Errorf("update feature %q: %w", featureName, err)
	}

	entry := models.NewRolloutHistory(feature.ID, models.HistoryActionWhitelistAdded, models.TriggerManual, "").
		WithActor(actor)
	entry.Metadata = map[string]any{"repository_id": repoID.String()}
	m.appendHistory(ctx, entry)

	return feature, nil
}

// RemoveFromWhitelist removes a repository from a feature's whitelist.
func (m *Manager) RemoveFromWhitelist(ctx context.Context, featureName string, repoID uuid.UUID, actor string) (*models.FeatureRollout, error) {
	feature, err := m.store.GetFeatureRolloutByName(ctx, featureName)
	if err != nil {
		return nil, fmt.Errorf("load feature %q: %w", featureName, err)
	}

	filtered := feature.WhitelistedRepos[:0]
	removed := false
	for _, id := range feature.WhitelistedRepos {
		if id == repoID {
			removed = true
			continue
		}
		filtered = append(filtered, id)
	}
	if !removed {
		return feature, nil
	}

	feature.WhitelistedRepos = filtered
	if err := m.store.UpdateFeatureRollout(ctx, feature); err != nil {
		return nil, fmt.Errorf("update feature %q: %w", featureName, err)
	}

	entry := models.NewRolloutHistory(feature.ID, models.HistoryActionWhitelistRemoved, models.TriggerManual, "").
		WithActor(actor)
	entry.Metadata = map[string]any{"repository_id": repoID.String()}
	m.appendHistory(ctx, entry)

	return feature, nil
}

// appendHistory writes an audit entry. The mutation already succeeded, so a
// failed append is logged rather than surfaced.
func (m *Manager) appendHistory(ctx context.Context, entry *models.RolloutHistory) {
	if err := m.store.CreateRolloutHistory(ctx, entry); err != nil {
		m.logger.Error().Err(err).
			Str("feature_id", entry.FeatureID.String()).
			Str("action", string(entry.Action)).
			Msg("failed to append rollout history")
	}
}
