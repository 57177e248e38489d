// Package notifications delivers rollout lifecycle events to Slack and
// generic webhook endpoints.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/rs/zerolog"
)

const payloadSource = "contributor-info-rollout"

// Config holds the notification channel configuration.
type Config struct {
	// SlackWebhookURL is the Slack incoming webhook. Empty disables Slack.
	SlackWebhookURL string
	// WebhookURL is a generic webhook endpoint. Empty disables it.
	WebhookURL string
	// WebhookSecret signs generic webhook payloads when set.
	WebhookSecret string
}

// Enabled reports whether any channel is configured.
func (c Config) Enabled() bool {
	return c.SlackWebhookURL != "" || c.WebhookURL != ""
}

// Service fans rollout events out to the configured channels. Delivery is
// best effort: failures are logged, never surfaced to the caller.
type Service struct {
	config  Config
	slack   *SlackSender
	webhook *WebhookSender
	logger  zerolog.Logger
}

// NewService creates a notification service for the configured channels.
func NewService(config Config, logger zerolog.Logger) *Service {
	return &Service{
		config:  config,
		slack:   NewSlackSender(logger),
		webhook: NewWebhookSender(logger),
		logger:  logger.With().Str("component", "notification_service").Logger(),
	}
}

// NotifyAutoRollback announces an automatic rollback triggered by the health monitor.
func (s *Service) NotifyAutoRollback(ctx context.Context, feature *models.FeatureRollout, summary *models.MetricsSummary, reason string) {
	msg := NotificationMessage{
		Title:     fmt.Sprintf("Auto-rollback: %s", feature.FeatureName),
		EventType: "auto_rollback",
		Severity:  "critical",
		Body: fmt.Sprintf("*Feature:* %s\n*Reason:* %s\n*Errors:* %d of %d operations\n*Rollout percentage reset to 0%%*",
			feature.FeatureName, reason, summary.ErrorCount, summary.TotalOperations()),
	}
	details := map[string]any{
		"feature_name":  feature.FeatureName,
		"reason":        reason,
		"error_rate":    summary.ErrorRate(),
		"error_count":   summary.ErrorCount,
		"success_count": summary.SuccessCount,
	}
	s.dispatch(ctx, msg, details)
}

// NotifyEmergencyStop announces a manual emergency stop.
func (s *Service) NotifyEmergencyStop(ctx context.Context, feature *models.FeatureRollout, actor, reason string) {
	msg := NotificationMessage{
		Title:     fmt.Sprintf("Emergency stop: %s", feature.FeatureName),
		EventType: "emergency_stop",
		Severity:  "error",
		Body: fmt.Sprintf("*Feature:* %s\n*Stopped by:* %s\n*Reason:* %s",
			feature.FeatureName, actor, reason),
	}
	details := map[string]any{
		"feature_name": feature.FeatureName,
		"actor":        actor,
		"reason":       reason,
	}
	s.dispatch(ctx, msg, details)
}

// NotifyPercentageChange announces a rollout percentage transition.
func (s *Service) NotifyPercentageChange(ctx context.Context, feature *models.FeatureRollout, prevPercentage int, actor string) {
	msg := NotificationMessage{
		Title:     fmt.Sprintf("Rollout changed: %s", feature.FeatureName),
		EventType: "percentage_changed",
		Severity:  "info",
		Body: fmt.Sprintf("*Feature:* %s\n*Percentage:* %d%% → %d%%\n*Changed by:* %s",
			feature.FeatureName, prevPercentage, feature.RolloutPercentage, actor),
	}
	details := map[string]any{
		"feature_name":    feature.FeatureName,
		"prev_percentage": prevPercentage,
		"new_percentage":  feature.RolloutPercentage,
		"actor":           actor,
	}
	s.dispatch(ctx, msg, details)
}

// dispatch sends the event to every configured channel.
func (s *Service) dispatch(ctx context.Context, msg NotificationMessage, details map[string]any) {
	if s.config.SlackWebhookURL != "" {
		if err := s.slack.Send(ctx, s.config.SlackWebhookURL, msg); err != nil {
			s.logger.Error().Err(err).
				Str("event_type", msg.EventType).
				Msg("slack notification failed")
		}
	}

	if s.config.WebhookURL != "" {
		payload := WebhookPayload{
			EventType: msg.EventType,
			Timestamp: time.Now().UTC(),
			Source:    payloadSource,
			Summary:   msg.Title,
			Severity:  msg.Severity,
			Details:   details,
		}
		if err := s.webhook.Send(ctx, s.config.WebhookURL, payload, s.config.WebhookSecret); err != nil {
			s.logger.Error().Err(err).
				Str("event_type", msg.EventType).
				Msg("webhook notification failed")
		}
	}
}
