package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/jackc/pgx/v5"
)

// GetAllCategories returns all repository categories ordered by priority.
func (db *DB) GetAllCategories(ctx context.Context) ([]*models.RepositoryCategory, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, category, priority, max_percentage, repo_count, created_at, updated_at
		FROM repository_categories
		ORDER BY priority
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.RepositoryCategory
	for rows.Next() {
		var c models.RepositoryCategory
		var name string
		if err := rows.Scan(&c.ID, &name, &c.Priority, &c.MaxPercentage,
			&c.RepoCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Category = models.CategoryName(name)
		categories = append(categories, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// GetCategoryByName returns a single category by its name.
func (db *DB) GetCategoryByName(ctx context.Context, name models.CategoryName) (*models.RepositoryCategory, error) {
	var c models.RepositoryCategory
	var n string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, category, priority, max_percentage, repo_count, created_at, updated_at
		FROM repository_categories
		WHERE category = $1
	`, string(name)).Scan(&c.ID, &n, &c.Priority, &c.MaxPercentage,
		&c.RepoCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.Category = models.CategoryName(n)
	return &c, nil
}

// UpsertCategory creates or updates a category's cap and priority.
func (db *DB) UpsertCategory(ctx context.Context, c *models.RepositoryCategory) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO repository_categories (id, category, priority, max_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category) DO UPDATE SET
			priority = EXCLUDED.priority,
			max_percentage = EXCLUDED.max_percentage,
			updated_at = NOW()
	`, c.ID, string(c.Category), c.Priority, c.MaxPercentage, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

// RefreshCategoryCounts recomputes repo_count for every category from the
// repositories table.
func (db *DB) RefreshCategoryCounts(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE repository_categories rc
		SET repo_count = COALESCE(counts.n, 0), updated_at = NOW()
		FROM (SELECT category, COUNT(*) AS n FROM repositories GROUP BY category) counts
		WHERE counts.category = rc.category
	`)
	if err != nil {
		return fmt.Errorf("refresh category counts: %w", err)
	}
	return nil
}
