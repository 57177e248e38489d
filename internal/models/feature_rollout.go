// Package models defines the domain types for the rollout control service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RolloutStrategy determines how repositories are selected for a feature.
type RolloutStrategy string

const (
	// StrategyPercentage selects repositories by hash bucketing alone.
	StrategyPercentage RolloutStrategy = "percentage"
	// StrategyWhitelist selects only explicitly whitelisted repositories.
	StrategyWhitelist RolloutStrategy = "whitelist"
	// StrategyHybrid combines whitelist, category caps, and percentage bucketing.
	StrategyHybrid RolloutStrategy = "hybrid"
)

// FeatureRollout represents the rollout configuration for a single feature.
type FeatureRollout struct {
	ID                 uuid.UUID       `json:"id"`
	FeatureName        string          `json:"feature_name"`
	Description        string          `json:"description,omitempty"`
	Strategy           RolloutStrategy `json:"strategy"`
	RolloutPercentage  int             `json:"rollout_percentage"`
	WhitelistedRepos   []uuid.UUID     `json:"whitelisted_repos,omitempty"`
	ExcludedRepos      []uuid.UUID     `json:"excluded_repos,omitempty"`
	MonitoringWindowHr int             `json:"monitoring_window_hours"`
	MaxErrorRate       float64         `json:"max_error_rate"`
	AutoRollbackEnable bool            `json:"auto_rollback_enabled"`
	IsActive           bool            `json:"is_active"`
	IsPaused           bool            `json:"is_paused"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewFeatureRollout creates a FeatureRollout with safe defaults: hybrid
// strategy, 0% rollout, auto-rollback enabled with a 5% error rate ceiling
// over a 24 hour window.
func NewFeatureRollout(featureName, description string) *FeatureRollout {
	now := time.Now()
	return &FeatureRollout{
		ID:                 uuid.New(),
		FeatureName:        featureName,
		Description:        description,
		Strategy:           StrategyHybrid,
		RolloutPercentage:  0,
		MonitoringWindowHr: 24,
		MaxErrorRate:       5.0,
		AutoRollbackEnable: true,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// IsWhitelisted reports whether the repository is on the explicit whitelist.
func (f *FeatureRollout) IsWhitelisted(repoID uuid.UUID) bool {
	for _, id := range f.WhitelistedRepos {
		if id == repoID {
			return true
		}
	}
	return false
}

// IsExcluded reports whether the repository is explicitly excluded.
func (f *FeatureRollout) IsExcluded(repoID uuid.UUID) bool {
	for _, id := range f.ExcludedRepos {
		if id == repoID {
			return true
		}
	}
	return false
}

// ValidStrategy reports whether s is a known rollout strategy.
func ValidStrategy(s RolloutStrategy) bool {
	switch s {
	case StrategyPercentage, StrategyWhitelist, StrategyHybrid:
		return true
	default:
		return false
	}
}
