package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	features  []*models.FeatureRollout
	summaries map[uuid.UUID]*models.MetricsSummary
}

func (m *mockStore) GetActiveFeatureRollouts(_ context.Context) ([]*models.FeatureRollout, error) {
	return m.features, nil
}

func (m *mockStore) GetMetricsSummary(_ context.Context, featureID uuid.UUID, _ time.Duration) (*models.MetricsSummary, error) {
	if s, ok := m.summaries[featureID]; ok {
		return s, nil
	}
	return &models.MetricsSummary{FeatureID: featureID}, nil
}

type mockController struct {
	rollbacks []string
	reasons   []string
}

func (m *mockController) Rollback(_ context.Context, featureName, reason string, _ map[string]any) (*models.FeatureRollout, error) {
	m.rollbacks = append(m.rollbacks, featureName)
	m.reasons = append(m.reasons, reason)
	f := models.NewFeatureRollout(featureName, "")
	f.RolloutPercentage = 0
	return f, nil
}

type mockNotifier struct {
	notified []string
}

func (m *mockNotifier) NotifyAutoRollback(_ context.Context, feature *models.FeatureRollout, _ *models.MetricsSummary, _ string) {
	m.notified = append(m.notified, feature.FeatureName)
}

type mockRecorder struct {
	errorRates  map[string]float64
	percentages map[string]int
	rollbacks   map[string]int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		errorRates:  make(map[string]float64),
		percentages: make(map[string]int),
		rollbacks:   make(map[string]int),
	}
}

func (m *mockRecorder) SetErrorRate(name string, rate float64)    { m.errorRates[name] = rate }
func (m *mockRecorder) SetRolloutPercentage(name string, pct int) { m.percentages[name] = pct }
func (m *mockRecorder) IncAutoRollback(name string)               { m.rollbacks[name]++ }

func healthyFeature(name string, percentage int) *models.FeatureRollout {
	f := models.NewFeatureRollout(name, "")
	f.RolloutPercentage = percentage
	return f
}

func TestRunChecksRollsBackOnBreach(t *testing.T) {
	feature := healthyFeature("capture", 50)
	store := &mockStore{
		features: []*models.FeatureRollout{feature},
		summaries: map[uuid.UUID]*models.MetricsSummary{
			feature.ID: {FeatureID: feature.ID, SuccessCount: 80, ErrorCount: 20},
		},
	}
	controller := &mockController{}
	notifier := &mockNotifier{}
	recorder := newMockRecorder()

	m := NewMonitor(store, controller, notifier, recorder, DefaultConfig(), zerolog.Nop())
	m.RunChecks(context.Background())

	require.Equal(t, []string{"capture"}, controller.rollbacks)
	assert.Contains(t, controller.reasons[0], "exceeded threshold")
	assert.Equal(t, []string{"capture"}, notifier.notified)
	assert.Equal(t, 1, recorder.rollbacks["capture"])
	assert.InDelta(t, 20.0, recorder.errorRates["capture"], 0.01)
	assert.Equal(t, 0, recorder.percentages["capture"], "gauge must reflect post-rollback percentage")
}

func TestRunChecksHealthyFeatureUntouched(t *testing.T) {
	feature := healthyFeature("capture", 50)
	store := &mockStore{
		features: []*models.FeatureRollout{feature},
		summaries: map[uuid.UUID]*models.MetricsSummary{
			feature.ID: {FeatureID: feature.ID, SuccessCount: 99, ErrorCount: 1},
		},
	}
	controller := &mockController{}

	m := NewMonitor(store, controller, nil, nil, DefaultConfig(), zerolog.Nop())
	m.RunChecks(context.Background())

	assert.Empty(t, controller.rollbacks)
}

func TestRunChecksNoTrafficNeverRollsBack(t *testing.T) {
	feature := healthyFeature("capture", 50)
	store := &mockStore{
		features:  []*models.FeatureRollout{feature},
		summaries: map[uuid.UUID]*models.MetricsSummary{},
	}
	controller := &mockController{}

	m := NewMonitor(store, controller, nil, nil, DefaultConfig(), zerolog.Nop())
	m.RunChecks(context.Background())

	assert.Empty(t, controller.rollbacks, "empty window must never trigger rollback")
}

func TestRunChecksRespectsMinSampleSize(t *testing.T) {
	feature := healthyFeature("capture", 50)
	store := &mockStore{
		features: []*models.FeatureRollout{feature},
		summaries: map[uuid.UUID]*models.MetricsSummary{
			// 100% error rate but only 3 operations.
			feature.ID: {FeatureID: feature.ID, ErrorCount: 3},
		},
	}
	controller := &mockController{}

	cfg := DefaultConfig()
	cfg.MinSampleSize = 10
	m := NewMonitor(store, controller, nil, nil, cfg, zerolog.Nop())
	m.RunChecks(context.Background())

	assert.Empty(t, controller.rollbacks)
}

func TestRunChecksSkipsAlreadyStopped(t *testing.T) {
	feature := healthyFeature("capture", 0)
	store := &mockStore{
		features: []*models.FeatureRollout{feature},
		summaries: map[uuid.UUID]*models.MetricsSummary{
			feature.ID: {FeatureID: feature.ID, SuccessCount: 50, ErrorCount: 50},
		},
	}
	controller := &mockController{}

	m := NewMonitor(store, controller, nil, nil, DefaultConfig(), zerolog.Nop())
	m.RunChecks(context.Background())

	assert.Empty(t, controller.rollbacks, "rollout already at 0%% must not be rolled back again")
}

func TestRunChecksHonorsAutoRollbackDisabled(t *testing.T) {
	feature := healthyFeature("capture", 50)
	feature.AutoRollbackEnable = false
	store := &mockStore{
		features: []*models.FeatureRollout{feature},
		summaries: map[uuid.UUID]*models.MetricsSummary{
			feature.ID: {FeatureID: feature.ID, SuccessCount: 10, ErrorCount: 90},
		},
	}
	controller := &mockController{}
	recorder := newMockRecorder()

	m := NewMonitor(store, controller, nil, recorder, DefaultConfig(), zerolog.Nop())
	m.RunChecks(context.Background())

	assert.Empty(t, controller.rollbacks)
	assert.InDelta(t, 90.0, recorder.errorRates["capture"], 0.01, "gauges still refresh when rollback is disabled")
}

func TestStartStop(t *testing.T) {
	store := &mockStore{}
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond

	m := NewMonitor(store, &mockController{}, nil, nil, cfg, zerolog.Nop())
	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	m.Stop()
}
