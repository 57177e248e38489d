package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is a tracked GitHub repository that can be enrolled in rollouts.
type Repository struct {
	ID        uuid.UUID    `json:"id"`
	Owner     string       `json:"owner"`
	Name      string       `json:"name"`
	Category  CategoryName `json:"category"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewRepository creates a tracked repository, uncategorized until assigned.
func NewRepository(owner, name string) *Repository {
	now := time.Now()
	return &Repository{
		ID:        uuid.New(),
		Owner:     owner,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FullName returns the owner/name form used by the GitHub API.
func (r *Repository) FullName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}
