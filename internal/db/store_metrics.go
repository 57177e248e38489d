package db

import (
	"context"
	"fmt"
	"time"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
)

// CreateRolloutMetrics inserts a metrics observation.
func (db *DB) CreateRolloutMetrics(ctx context.Context, m *models.RolloutMetrics) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO rollout_metrics (id, feature_id, success_count, error_count, processed_repos, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.FeatureID, m.SuccessCount, m.ErrorCount, m.ProcessedRepos, m.CapturedAt)
	if err != nil {
		return fmt.Errorf("create rollout metrics: %w", err)
	}
	return nil
}

// GetMetricsSummary aggregates observations for a feature over the window
// ending now. A summary with zero samples is returned when no observations
// exist in the window.
func (db *DB) GetMetricsSummary(ctx context.Context, featureID uuid.UUID, window time.Duration) (*models.MetricsSummary, error) {
	end := time.Now()
	start := end.Add(-window)

	summary := &models.MetricsSummary{
		FeatureID:   featureID,
		WindowStart: start,
		WindowEnd:   end,
	}
	err := db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(success_count), 0), COALESCE(SUM(error_count), 0), COUNT(*)
		FROM rollout_metrics
		WHERE feature_id = $1 AND captured_at >= $2
	`, featureID, start).Scan(&summary.SuccessCount, &summary.ErrorCount, &summary.SampleCount)
	if err != nil {
		return nil, fmt.Errorf("summarize rollout metrics: %w", err)
	}
	return summary, nil
}

// GetRecentMetrics returns the most recent observations for a feature.
func (db *DB) GetRecentMetrics(ctx context.Context, featureID uuid.UUID, limit int) ([]*models.RolloutMetrics, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, feature_id, success_count, error_count, processed_repos, captured_at
		FROM rollout_metrics
		WHERE feature_id = $1
		ORDER BY captured_at DESC
		LIMIT $2
	`, featureID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rollout metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.RolloutMetrics
	for rows.Next() {
		var m models.RolloutMetrics
		if err := rows.Scan(&m.ID, &m.FeatureID, &m.SuccessCount, &m.ErrorCount,
			&m.ProcessedRepos, &m.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan rollout metrics: %w", err)
		}
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollout metrics: %w", err)
	}
	return metrics, nil
}

// PruneMetrics deletes observations older than the retention cutoff and
// returns the number of rows removed.
func (db *DB) PruneMetrics(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM rollout_metrics WHERE captured_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune rollout metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}
