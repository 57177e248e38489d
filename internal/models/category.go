package models

import (
	"time"

	"github.com/google/uuid"
)

// CategoryName identifies a repository sizing category.
type CategoryName string

const (
	// CategoryTest covers internal fixture and smoke-test repositories.
	CategoryTest CategoryName = "test"
	// CategorySmall covers repositories with light event volume.
	CategorySmall CategoryName = "small"
	// CategoryMedium covers repositories with moderate event volume.
	CategoryMedium CategoryName = "medium"
	// CategoryLarge covers high-traffic repositories.
	CategoryLarge CategoryName = "large"
	// CategoryEnterprise covers repositories under commercial agreements.
	CategoryEnterprise CategoryName = "enterprise"
)

// RepositoryCategory caps how far a rollout may reach into a class of
// repositories. A feature at 50% with a category cap of 25% is effectively
// at 25% for repositories in that category.
type RepositoryCategory struct {
	ID            uuid.UUID    `json:"id"`
	Category      CategoryName `json:"category"`
	Priority      int          `json:"priority"`
	MaxPercentage int          `json:"max_percentage"`
	RepoCount     int          `json:"repo_count"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewRepositoryCategory creates a category with the given cap.
func NewRepositoryCategory(name CategoryName, priority, maxPercentage int) *RepositoryCategory {
	now := time.Now()
	return &RepositoryCategory{
		ID:            uuid.New(),
		Category:      name,
		Priority:      priority,
		MaxPercentage: maxPercentage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ValidCategory reports whether name is a known category.
func ValidCategory(name CategoryName) bool {
	switch name {
	case CategoryTest, CategorySmall, CategoryMedium, CategoryLarge, CategoryEnterprise:
		return true
	default:
		return false
	}
}
