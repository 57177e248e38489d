package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("record already exists")

const rolloutColumns = `id, feature_name, description, strategy, rollout_percentage,
       whitelisted_repos, excluded_repos, monitoring_window_hours, max_error_rate,
       auto_rollback_enabled, is_active, is_paused, created_at, updated_at`

// CreateFeatureRollout inserts a new rollout configuration.
func (db *DB) CreateFeatureRollout(ctx context.Context, f *models.FeatureRollout) error {
	whitelist, err := json.Marshal(repoIDList(f.WhitelistedRepos))
	if err != nil {
		return fmt.Errorf("marshal whitelist: %w", err)
	}
	excluded, err := json.Marshal(repoIDList(f.ExcludedRepos))
	if err != nil {
		return fmt.Errorf("marshal exclusions: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO rollout_configuration (id, feature_name, description, strategy,
		        rollout_percentage, whitelisted_repos, excluded_repos,
		        monitoring_window_hours, max_error_rate, auto_rollback_enabled,
		        is_active, is_paused, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, f.ID, f.FeatureName, f.Description, string(f.Strategy), f.RolloutPercentage,
		whitelist, excluded, f.MonitoringWindowHr, f.MaxErrorRate,
		f.AutoRollbackEnable, f.IsActive, f.IsPaused, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("create feature rollout: %w", err)
	}
	return nil
}

// GetFeatureRolloutByID returns a rollout configuration by ID.
func (db *DB) GetFeatureRolloutByID(ctx context.Context, id uuid.UUID) (*models.FeatureRollout, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+rolloutColumns+` FROM rollout_configuration WHERE id = $1`, id)
	return scanFeatureRollout(row)
}

// GetFeatureRolloutByName returns a rollout configuration by feature name.
func (db *DB) GetFeatureRolloutByName(ctx context.Context, featureName string) (*models.FeatureRollout, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+rolloutColumns+` FROM rollout_configuration WHERE feature_name = $1`, featureName)
	return scanFeatureRollout(row)
}

// GetAllFeatureRollouts returns all rollout configurations ordered by name.
func (db *DB) GetAllFeatureRollouts(ctx context.Context) ([]*models.FeatureRollout, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+rolloutColumns+` FROM rollout_configuration ORDER BY feature_name`)
	if err != nil {
		return nil, fmt.Errorf("list feature rollouts: %w", err)
	}
	defer rows.Close()

	var features []*models.FeatureRollout
	for rows.Next() {
		f, err := scanFeatureRollout(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rollouts: %w", err)
	}
	return features, nil
}

// GetActiveFeatureRollouts returns active, unpaused rollout configurations.
func (db *DB) GetActiveFeatureRollouts(ctx context.Context) ([]*models.FeatureRollout, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+rolloutColumns+` FROM rollout_configuration
		 WHERE is_active = TRUE
		 ORDER BY feature_name`)
	if err != nil {
		return nil, fmt.Errorf("list active feature rollouts: %w", err)
	}
	defer rows.Close()

	var features []*models.FeatureRollout
	for rows.Next() {
		f, err := scanFeatureRollout(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active feature rollouts: %w", err)
	}
	return features, nil
}

// UpdateFeatureRollout persists all mutable fields of a rollout configuration.
func (db *DB) UpdateFeatureRollout(ctx context.Context, f *models.FeatureRollout) error {
	whitelist, err := json.Marshal(repoIDList(f.WhitelistedRepos))
	if err != nil {
		return fmt.Errorf("marshal whitelist: %w", err)
	}
	excluded, err := json.Marshal(repoIDList(f.ExcludedRepos))
	if err != nil {
		return fmt.Errorf("marshal exclusions: %w", err)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE rollout_configuration
		SET description = $2, strategy = $3, rollout_percentage = $4,
		    whitelisted_repos = $5, excluded_repos = $6,
		    monitoring_window_hours = $7, max_error_rate = $8,
		    auto_rollback_enabled = $9, is_active = $10, is_paused = $11,
		    updated_at = NOW()
		WHERE id = $1
	`, f.ID, f.Description, string(f.Strategy), f.RolloutPercentage,
		whitelist, excluded, f.MonitoringWindowHr, f.MaxErrorRate,
		f.AutoRollbackEnable, f.IsActive, f.IsPaused)
	if err != nil {
		return fmt.Errorf("update feature rollout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFeatureRollout removes a rollout configuration and its dependent rows.
func (db *DB) DeleteFeatureRollout(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM rollout_configuration WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feature rollout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanFeatureRollout scans a single rollout row from a row or rows cursor.
func scanFeatureRollout(row pgx.Row) (*models.FeatureRollout, error) {
	var f models.FeatureRollout
	var strategy string
	var whitelist, excluded []byte

	err := row.Scan(&f.ID, &f.FeatureName, &f.Description, &strategy, &f.RolloutPercentage,
		&whitelist, &excluded, &f.MonitoringWindowHr, &f.MaxErrorRate,
		&f.AutoRollbackEnable, &f.IsActive, &f.IsPaused, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan feature rollout: %w", err)
	}

	f.Strategy = models.RolloutStrategy(strategy)
	if f.WhitelistedRepos, err = parseRepoIDList(whitelist); err != nil {
		return nil, fmt.Errorf("parse whitelist: %w", err)
	}
	if f.ExcludedRepos, err = parseRepoIDList(excluded); err != nil {
		return nil, fmt.Errorf("parse exclusions: %w", err)
	}
	return &f, nil
}

// repoIDList normalizes a nil slice to an empty one so JSONB columns store [].
func repoIDList(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

// parseRepoIDList decodes a JSONB uuid array column.
func parseRepoIDList(data []byte) ([]uuid.UUID, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}
