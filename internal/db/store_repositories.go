package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CreateRepository registers a tracked repository.
func (db *DB) CreateRepository(ctx context.Context, r *models.Repository) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO repositories (id, owner, name, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.Owner, r.Name, string(r.Category), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("create repository: %w", err)
	}
	return nil
}

// GetRepositoryByID returns a tracked repository by ID.
func (db *DB) GetRepositoryByID(ctx context.Context, id uuid.UUID) (*models.Repository, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, owner, name, category, created_at, updated_at
		FROM repositories
		WHERE id = $1
	`, id)
	return scanRepository(row)
}

// GetRepositoryByFullName returns a tracked repository by owner and name.
func (db *DB) GetRepositoryByFullName(ctx context.Context, owner, name string) (*models.Repository, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, owner, name, category, created_at, updated_at
		FROM repositories
		WHERE owner = $1 AND name = $2
	`, owner, name)
	return scanRepository(row)
}

// GetAllRepositories returns all tracked repositories ordered by full name.
func (db *DB) GetAllRepositories(ctx context.Context) ([]*models.Repository, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, owner, name, category, created_at, updated_at
		FROM repositories
		ORDER BY owner, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}
	return repos, nil
}

// UpdateRepositoryCategory assigns a repository to a category.
func (db *DB) UpdateRepositoryCategory(ctx context.Context, id uuid.UUID, category models.CategoryName) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE repositories SET category = $2, updated_at = NOW() WHERE id = $1
	`, id, string(category))
	if err != nil {
		return fmt.Errorf("update repository category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRepository removes a tracked repository.
func (db *DB) DeleteRepository(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRepository(row pgx.Row) (*models.Repository, error) {
	var r models.Repository
	var category string
	err := row.Scan(&r.ID, &r.Owner, &r.Name, &category, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	r.Category = models.CategoryName(category)
	return &r, nil
}
