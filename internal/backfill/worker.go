// Package backfill populates the GitHub events cache for tracked
// repositories and reports processing health back to the rollout metrics.
package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/contributor-info/rollout/internal/rollout"
	"github.com/google/go-github/v74/github"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store defines the database operations needed by the backfill worker.
type Store interface {
	GetAllRepositories(ctx context.Context) ([]*models.Repository, error)
	UpsertCachedEvent(ctx context.Context, event *models.CachedEvent) error
	CreateRolloutMetrics(ctx context.Context, metrics *models.RolloutMetrics) error
	GetFeatureRolloutByName(ctx context.Context, name string) (*models.FeatureRollout, error)
}

// EligibilityChecker gates which repositories the worker processes.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, featureName string, repoID uuid.UUID) (*rollout.Decision, error)
}

// EventLister is the slice of the GitHub API the worker uses.
type EventLister interface {
	ListRepositoryEvents(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.Event, *github.Response, error)
}

// Config holds the backfill worker configuration.
type Config struct {
	// FeatureName is the rollout gate controlling which repositories
	// the worker backfills.
	FeatureName string
	// BackfillDays is how far back to fetch events.
	BackfillDays int
	// MaxPages caps pagination per repository to stay within rate limits.
	MaxPages int
	// PerPage is the GitHub API page size.
	PerPage int
	// RepoDelay is the pause between repositories.
	RepoDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FeatureName:  "github-events-backfill",
		BackfillDays: 30,
		MaxPages:     10,
		PerPage:      100,
		RepoDelay:    2 * time.Second,
	}
}

// Stats summarizes one backfill run.
type Stats struct {
	ReposProcessed int
	ReposSkipped   int
	EventsFetched  int
	EventsInserted int
	Errors         int
}

// Worker fetches repository events from GitHub and stores them in the cache.
type Worker struct {
	store   Store
	checker EligibilityChecker
	events  EventLister
	config  Config
	logger  zerolog.Logger
}

// NewWorker creates a backfill worker using the given GitHub client.
func NewWorker(store Store, checker EligibilityChecker, client *github.Client, config Config, logger zerolog.Logger) *Worker {
	return &Worker{
		store:   store,
		checker: checker,
		events:  client.Activity,
		config:  config,
		logger:  logger.With().Str("component", "backfill").Logger(),
	}
}

// NewGitHubClient builds an authenticated GitHub API client.
func NewGitHubClient(token string) *github.Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client
}

// Run backfills events for every rollout-eligible repository and records the
// run's health as a rollout metrics observation.
func (w *Worker) Run(ctx context.Context) (*Stats, error) {
	repos, err := w.store.GetAllRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load repositories: %w", err)
	}

	stats := &Stats{}
	start := time.Now()
	w.logger.Info().
		Int("repositories", len(repos)).
		Int("backfill_days", w.config.BackfillDays).
		Msg("starting events backfill")

	for i, repo := range repos {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		decision, err := w.checker.CheckEligibility(ctx, w.config.FeatureName, repo.ID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				// No rollout gate configured: process everything.
				decision = &rollout.Decision{Eligible: true}
			} else {
				w.logger.Error().Err(err).Str("repository", repo.FullName()).Msg("eligibility check failed")
				stats.Errors++
				continue
			}
		}
		if !decision.Eligible {
			w.logger.Debug().
				Str("repository", repo.FullName()).
				Str("reason", decision.Reason).
				Msg("repository not eligible, skipping")
			stats.ReposSkipped++
			continue
		}

		if err := w.backfillRepository(ctx, repo, stats); err != nil {
			w.logger.Error().Err(err).Str("repository", repo.FullName()).Msg("backfill failed")
			stats.Errors++
		} else {
			stats.ReposProcessed++
		}

		if i < len(repos)-1 && w.config.RepoDelay > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(w.config.RepoDelay):
			}
		}
	}

	w.recordMetrics(ctx, stats)

	w.logger.Info().
		Dur("duration", time.Since(start)).
		Int("repos_processed", stats.ReposProcessed).
		Int("repos_skipped", stats.ReposSkipped).
		Int("events_inserted", stats.EventsInserted).
		Int("errors", stats.Errors).
		Msg("events backfill complete")

	return stats, nil
}

// backfillRepository fetches and stores events for a single repository.
func (w *Worker) backfillRepository(ctx context.Context, repo *models.Repository, stats *Stats) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -w.config.BackfillDays)

	for page := 1; page <= w.config.MaxPages; page++ {
		events, resp, err := w.events.ListRepositoryEvents(ctx, repo.Owner, repo.Name, &github.ListOptions{
			Page:    page,
			PerPage: w.config.PerPage,
		})
		if err != nil {
			var rateErr *github.RateLimitError
			if errors.As(err, &rateErr) {
				w.logger.Warn().
					Str("repository", repo.FullName()).
					Time("reset", rateErr.Rate.Reset.Time).
					Msg("rate limited, aborting repository")
				return err
			}
			if resp != nil && resp.StatusCode == 404 {
				w.logger.Warn().Str("repository", repo.FullName()).Msg("repository not found on GitHub")
				return nil
			}
			return fmt.Errorf("list events page %d: %w", page, err)
		}

		if len(events) == 0 {
			return nil
		}

		for _, event := range events {
			createdAt := event.GetCreatedAt().Time
			if createdAt.Before(cutoff) {
				// Events arrive newest first, past the cutoff means done.
				return nil
			}
			if !models.KeptEventType(event.GetType()) {
				continue
			}
			stats.EventsFetched++

			cached, err := w.convertEvent(event, repo)
			if err != nil {
				w.logger.Warn().Err(err).Str("event_id", event.GetID()).Msg("skipping malformed event")
				stats.Errors++
				continue
			}
			if err := w.store.UpsertCachedEvent(ctx, cached); err != nil {
				w.logger.Error().Err(err).Str("event_id", cached.EventID).Msg("failed to store event")
				stats.Errors++
				continue
			}
			stats.EventsInserted++
		}
	}

	return nil
}

// convertEvent maps a GitHub API event onto the cache row shape.
func (w *Worker) convertEvent(event *github.Event, repo *models.Repository) (*models.CachedEvent, error) {
	if event.GetID() == "" || event.GetType() == "" {
		return nil, fmt.Errorf("event missing id or type")
	}

	payload := map[string]any{
		"public":          event.GetPublic(),
		"backfill_source": "events_backfill",
		"backfill_date":   time.Now().UTC().Format(time.RFC3339),
	}
	if actor := event.GetActor(); actor != nil {
		payload["actor"] = map[string]any{
			"id":         actor.GetID(),
			"login":      actor.GetLogin(),
			"avatar_url": actor.GetAvatarURL(),
		}
	}
	if event.RawPayload != nil {
		var inner map[string]any
		if err := json.Unmarshal(*event.RawPayload, &inner); err == nil {
			for k, v := range inner {
				payload[k] = v
			}
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &models.CachedEvent{
		ID:              uuid.New(),
		EventID:         event.GetID(),
		EventType:       event.GetType(),
		ActorLogin:      event.GetActor().GetLogin(),
		RepositoryOwner: repo.Owner,
		RepositoryName:  repo.Name,
		Payload:         raw,
		EventCreatedAt:  event.GetCreatedAt().Time,
		ProcessingNotes: fmt.Sprintf("events backfill on %s", time.Now().UTC().Format(time.RFC3339)),
	}, nil
}

// recordMetrics reports run health against the worker's rollout gate so the
// health monitor can observe backfill error rates.
func (w *Worker) recordMetrics(ctx context.Context, stats *Stats) {
	feature, err := w.store.GetFeatureRolloutByName(ctx, w.config.FeatureName)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			w.logger.Warn().Err(err).Msg("failed to load rollout gate for metrics")
		}
		return
	}

	metrics := models.NewRolloutMetrics(feature.ID,
		int64(stats.EventsInserted),
		int64(stats.Errors),
		int64(stats.ReposProcessed))
	if err := w.store.CreateRolloutMetrics(ctx, metrics); err != nil {
		w.logger.Warn().Err(err).Msg("failed to record backfill metrics")
	}
}
