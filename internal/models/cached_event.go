package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names the GitHub event types the backfill worker keeps. Other
// event types are discarded at fetch time.
const (
	EventTypeWatch       = "WatchEvent"
	EventTypeStar        = "StarEvent"
	EventTypeFork        = "ForkEvent"
	EventTypePullRequest = "PullRequestEvent"
	EventTypeIssues      = "IssuesEvent"
)

// CachedEvent is a GitHub event stored in github_events_cache. The cache
// feeds usage metrics for rollout-eligible repositories without re-hitting
// the GitHub API.
type CachedEvent struct {
	ID              uuid.UUID  `json:"id"`
	EventID         string     `json:"event_id"`
	EventType       string     `json:"event_type"`
	ActorLogin      string     `json:"actor_login"`
	RepositoryOwner string     `json:"repository_owner"`
	RepositoryName  string     `json:"repository_name"`
	Payload         []byte     `json:"payload,omitempty"`
	EventCreatedAt  time.Time  `json:"event_created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingNotes string     `json:"processing_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// KeptEventType reports whether the backfill worker retains this event type.
func KeptEventType(eventType string) bool {
	switch eventType {
	case EventTypeWatch, EventTypeStar, EventTypeFork, EventTypePullRequest, EventTypeIssues:
		return true
	default:
		return false
	}
}
