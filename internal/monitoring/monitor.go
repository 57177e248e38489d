// Package monitoring watches rollout health and triggers automatic
// rollbacks when a feature's error rate breaches its configured ceiling.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store defines the database operations needed by the monitor.
type Store interface {
	GetActiveFeatureRollouts(ctx context.Context) ([]*models.FeatureRollout, error)
	GetMetricsSummary(ctx context.Context, featureID uuid.UUID, window time.Duration) (*models.MetricsSummary, error)
}

// Controller defines the rollout mutations the monitor may perform.
type Controller interface {
	Rollback(ctx context.Context, featureName, reason string, metadata map[string]any) (*models.FeatureRollout, error)
}

// Notifier receives rollback events for delivery to external channels.
type Notifier interface {
	NotifyAutoRollback(ctx context.Context, feature *models.FeatureRollout, summary *models.MetricsSummary, reason string)
}

// Recorder exposes rollout health to the metrics endpoint.
type Recorder interface {
	SetErrorRate(featureName string, rate float64)
	SetRolloutPercentage(featureName string, percentage int)
	IncAutoRollback(featureName string)
}

// Config holds the configuration for the monitor.
type Config struct {
	// CheckInterval is how often to evaluate rollout health.
	CheckInterval time.Duration
	// MinSampleSize is the minimum number of operations in the window
	// before the error rate is considered meaningful.
	MinSampleSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 1 * time.Minute,
		MinSampleSize: 10,
	}
}

// Monitor runs periodic health checks on active rollouts.
type Monitor struct {
	store      Store
	controller Controller
	notifier   Notifier
	recorder   Recorder
	config     Config
	logger     zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a new Monitor instance. Notifier and recorder may be nil.
func NewMonitor(store Store, controller Controller, notifier Notifier, recorder Recorder, config Config, logger zerolog.Logger) *Monitor {
	return &Monitor{
		store:      store,
		controller: controller,
		notifier:   notifier,
		recorder:   recorder,
		config:     config,
		logger:     logger.With().Str("component", "monitor").Logger(),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the monitoring loop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info().
		Dur("check_interval", m.config.CheckInterval).
		Int("min_sample_size", m.config.MinSampleSize).
		Msg("rollout monitor started")
}

// Stop gracefully stops the monitoring loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info().Msg("rollout monitor stopped")
}

// run is the main monitoring loop.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	// Run immediately on start
	m.RunChecks(ctx)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.RunChecks(ctx)
		}
	}
}

// RunChecks evaluates the health of every active rollout once.
func (m *Monitor) RunChecks(ctx context.Context) {
	m.logger.Debug().Msg("running rollout health checks")

	features, err := m.store.GetActiveFeatureRollouts(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to load active rollouts")
		return
	}

	for _, feature := range features {
		if err := m.checkFeature(ctx, feature); err != nil {
			m.logger.Error().Err(err).Str("feature", feature.FeatureName).Msg("rollout health check failed")
		}
	}
}

// checkFeature evaluates a single rollout against its error-rate ceiling.
func (m *Monitor) checkFeature(ctx context.Context, feature *models.FeatureRollout) error {
	window := time.Duration(feature.MonitoringWindowHr) * time.Hour
	summary, err := m.store.GetMetricsSummary(ctx, feature.ID, window)
	if err != nil {
		return fmt.Errorf("get metrics summary: %w", err)
	}

	rate := summary.ErrorRate()
	if m.recorder != nil {
		m.recorder.SetErrorRate(feature.FeatureName, rate)
		m.recorder.SetRolloutPercentage(feature.FeatureName, feature.RolloutPercentage)
	}

	if !feature.AutoRollbackEnable {
		return nil
	}
	// A window with no traffic says nothing about health.
	if summary.TotalOperations() == 0 {
		return nil
	}
	if summary.TotalOperations() < int64(m.config.MinSampleSize) {
		m.logger.Debug().
			Str("feature", feature.FeatureName).
			Int64("operations", summary.TotalOperations()).
			Msg("sample size below threshold, skipping health evaluation")
		return nil
	}
	if rate <= feature.MaxErrorRate {
		return nil
	}
	// Nothing to roll back once the rollout is already stopped.
	if feature.RolloutPercentage == 0 {
		m.logger.Warn().
			Str("feature", feature.FeatureName).
			Float64("error_rate", rate).
			Msg("error rate above ceiling but rollout already at 0%")
		return nil
	}

	reason := fmt.Sprintf("error rate %.2f%% exceeded threshold %.2f%% over %dh window",
		rate, feature.MaxErrorRate, feature.MonitoringWindowHr)
	metadata := map[string]any{
		"error_rate":       rate,
		"max_error_rate":   feature.MaxErrorRate,
		"window_hours":     feature.MonitoringWindowHr,
		"error_count":      summary.ErrorCount,
		"success_count":    summary.SuccessCount,
		"prior_percentage": feature.RolloutPercentage,
	}

	rolledBack, err := m.controller.Rollback(ctx, feature.FeatureName, reason, metadata)
	if err != nil {
		return fmt.Errorf("auto rollback: %w", err)
	}

	if m.recorder != nil {
		m.recorder.IncAutoRollback(feature.FeatureName)
		m.recorder.SetRolloutPercentage(feature.FeatureName, rolledBack.RolloutPercentage)
	}
	if m.notifier != nil {
		m.notifier.NotifyAutoRollback(ctx, rolledBack, summary, reason)
	}

	m.logger.Warn().
		Str("feature", feature.FeatureName).
		Float64("error_rate", rate).
		Float64("max_error_rate", feature.MaxErrorRate).
		Int("prior_percentage", feature.RolloutPercentage).
		Msg("rollout automatically rolled back")

	return nil
}
