package db

import (
	"context"
	"fmt"
	"time"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
)

// HistoryFilter defines filters for querying the rollout audit trail.
type HistoryFilter struct {
	Action    models.HistoryAction
	Trigger   models.TriggerType
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// CreateRolloutHistory appends an audit trail entry. History rows are never
// updated or deleted through the store.
func (db *DB) CreateRolloutHistory(ctx context.Context, h *models.RolloutHistory) error {
	metadata, err := h.MetadataJSON()
	if err != nil {
		return fmt.Errorf("marshal history metadata: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO rollout_history (id, feature_id, action, previous_percentage,
		        new_percentage, trigger_type, trigger_reason, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, h.ID, h.FeatureID, string(h.Action), h.PrevPercent, h.NewPercent,
		string(h.Trigger), h.TriggerReason, h.Actor, metadata, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("create rollout history: %w", err)
	}
	return nil
}

// GetHistoryByFeatureID returns audit trail entries for a feature, newest first.
func (db *DB) GetHistoryByFeatureID(ctx context.Context, featureID uuid.UUID, filter HistoryFilter) ([]*models.RolloutHistory, error) {
	query := `
		SELECT id, feature_id, action, previous_percentage, new_percentage,
		       trigger_type, trigger_reason, actor, metadata, created_at
		FROM rollout_history
		WHERE feature_id = $1
	`
	args := []any{featureID}
	argIdx := 2

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, string(filter.Action))
		argIdx++
	}
	if filter.Trigger != "" {
		query += fmt.Sprintf(" AND trigger_type = $%d", argIdx)
		args = append(args, string(filter.Trigger))
		argIdx++
	}
	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filter.StartDate)
		argIdx++
	}
	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get rollout history: %w", err)
	}
	defer rows.Close()

	var entries []*models.RolloutHistory
	for rows.Next() {
		var h models.RolloutHistory
		var action, trigger string
		var metadata []byte
		if err := rows.Scan(&h.ID, &h.FeatureID, &action, &h.PrevPercent, &h.NewPercent,
			&trigger, &h.TriggerReason, &h.Actor, &metadata, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rollout history: %w", err)
		}
		h.Action = models.HistoryAction(action)
		h.Trigger = models.TriggerType(trigger)
		if err := h.SetMetadata(metadata); err != nil {
			return nil, fmt.Errorf("parse history metadata: %w", err)
		}
		entries = append(entries, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollout history: %w", err)
	}
	return entries, nil
}

// GetHistoryOlderThan returns entries created before the cutoff, oldest first,
// for archival.
func (db *DB) GetHistoryOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.RolloutHistory, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, feature_id, action, previous_percentage, new_percentage,
		       trigger_type, trigger_reason, actor, metadata, created_at
		FROM rollout_history
		WHERE created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("get archivable history: %w", err)
	}
	defer rows.Close()

	var entries []*models.RolloutHistory
	for rows.Next() {
		var h models.RolloutHistory
		var action, trigger string
		var metadata []byte
		if err := rows.Scan(&h.ID, &h.FeatureID, &action, &h.PrevPercent, &h.NewPercent,
			&trigger, &h.TriggerReason, &h.Actor, &metadata, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rollout history: %w", err)
		}
		h.Action = models.HistoryAction(action)
		h.Trigger = models.TriggerType(trigger)
		if err := h.SetMetadata(metadata); err != nil {
			return nil, fmt.Errorf("parse history metadata: %w", err)
		}
		entries = append(entries, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archivable history: %w", err)
	}
	return entries, nil
}

// DeleteHistoryByIDs removes archived entries. Only the archiver calls this
// after the rows are durably stored in object storage.
func (db *DB) DeleteHistoryByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM rollout_history WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete archived history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordHistoryArchive persists a pointer to an uploaded archive object.
func (db *DB) RecordHistoryArchive(ctx context.Context, archiveKey string, rangeStart, rangeEnd time.Time, entryCount int64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO history_archives (id, archive_key, range_start, range_end, entry_count)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), archiveKey, rangeStart, rangeEnd, entryCount)
	if err != nil {
		return fmt.Errorf("record history archive: %w", err)
	}
	return nil
}
