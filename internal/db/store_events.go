package db

import (
	"context"
	"fmt"
	"time"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
)

// UpsertCachedEvent inserts a GitHub event, updating the processing note when
// the same event is seen again by a later backfill run.
func (db *DB) UpsertCachedEvent(ctx context.Context, e *models.CachedEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO github_events_cache (id, event_id, event_type, actor_login,
		        repository_owner, repository_name, payload, event_created_at, processing_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id, event_created_at) DO UPDATE SET
			processed_at = NOW(),
			processing_notes = github_events_cache.processing_notes || '; seen again by backfill'
	`, e.ID, e.EventID, e.EventType, e.ActorLogin,
		e.RepositoryOwner, e.RepositoryName, e.Payload, e.EventCreatedAt, e.ProcessingNotes)
	if err != nil {
		return fmt.Errorf("upsert cached event: %w", err)
	}
	return nil
}

// CountCachedEvents returns the total number of cached events.
func (db *DB) CountCachedEvents(ctx context.Context) (int64, error) {
	var count int64
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM github_events_cache`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cached events: %w", err)
	}
	return count, nil
}

// GetCachedEventsByRepo returns cached events for a repository, newest first.
func (db *DB) GetCachedEventsByRepo(ctx context.Context, owner, name string, limit int) ([]*models.CachedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, event_id, event_type, actor_login, repository_owner, repository_name,
		       payload, event_created_at, processed_at, processing_notes, created_at
		FROM github_events_cache
		WHERE repository_owner = $1 AND repository_name = $2
		ORDER BY event_created_at DESC
		LIMIT $3
	`, owner, name, limit)
	if err != nil {
		return nil, fmt.Errorf("list cached events: %w", err)
	}
	defer rows.Close()

	var events []*models.CachedEvent
	for rows.Next() {
		var e models.CachedEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.ActorLogin,
			&e.RepositoryOwner, &e.RepositoryName, &e.Payload, &e.EventCreatedAt,
			&e.ProcessedAt, &e.ProcessingNotes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cached event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached events: %w", err)
	}
	return events, nil
}

// PruneCachedEvents deletes events older than the retention cutoff.
func (db *DB) PruneCachedEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM github_events_cache WHERE event_created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune cached events: %w", err)
	}
	return tag.RowsAffected(), nil
}
