package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAPIKey stores a hashed API key record.
func (db *DB) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO api_keys (id, name, key_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, k.ID, k.Name, k.KeyHash, string(k.Status), k.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash looks up a key record by the SHA-256 hash of the presented key.
func (db *DB) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var k models.APIKey
	var status string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, key_hash, status, last_used_at, created_at
		FROM api_keys
		WHERE key_hash = $1
	`, hash).Scan(&k.ID, &k.Name, &k.KeyHash, &status, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	k.Status = models.APIKeyStatus(status)
	return &k, nil
}

// TouchAPIKey updates the last-used timestamp for a key.
func (db *DB) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// DisableAPIKey revokes a key without deleting the record.
func (db *DB) DisableAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE api_keys SET status = 'disabled' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
