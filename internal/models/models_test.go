package models

import (
	"testing"

	"github.com/google/uuid"
)

// --- Constructor Tests ---

func TestNewFeatureRollout(t *testing.T) {
	f := NewFeatureRollout("hybrid-progressive-capture", "queue-based event capture")

	if f.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if f.FeatureName != "hybrid-progressive-capture" {
		t.Errorf("expected FeatureName 'hybrid-progressive-capture', got %s", f.FeatureName)
	}
	if f.Strategy != StrategyHybrid {
		t.Errorf("expected hybrid strategy, got %s", f.Strategy)
	}
	if f.RolloutPercentage != 0 {
		t.Errorf("expected new rollouts to start at 0%%, got %d", f.RolloutPercentage)
	}
	if !f.AutoRollbackEnable {
		t.Error("expected auto-rollback enabled by default")
	}
	if !f.IsActive {
		t.Error("expected new rollouts to be active")
	}
	if f.IsPaused {
		t.Error("expected new rollouts to not be paused")
	}
	if f.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestFeatureRolloutWhitelistMembership(t *testing.T) {
	f := NewFeatureRollout("test-feature", "")
	repoID := uuid.New()

	if f.IsWhitelisted(repoID) {
		t.Error("expected empty whitelist to reject repo")
	}

	f.WhitelistedRepos = append(f.WhitelistedRepos, repoID)
	if !f.IsWhitelisted(repoID) {
		t.Error("expected whitelisted repo to be found")
	}
	if f.IsWhitelisted(uuid.New()) {
		t.Error("expected unknown repo to not be whitelisted")
	}
}

func TestFeatureRolloutExcludedMembership(t *testing.T) {
	f := NewFeatureRollout("test-feature", "")
	repoID := uuid.New()

	f.ExcludedRepos = append(f.ExcludedRepos, repoID)
	if !f.IsExcluded(repoID) {
		t.Error("expected excluded repo to be found")
	}
	if f.IsExcluded(uuid.New()) {
		t.Error("expected unknown repo to not be excluded")
	}
}

func TestValidStrategy(t *testing.T) {
	for _, s := range []RolloutStrategy{StrategyPercentage, StrategyWhitelist, StrategyHybrid} {
		if !ValidStrategy(s) {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ValidStrategy("canary") {
		t.Error("expected unknown strategy to be invalid")
	}
}

func TestNewRepositoryCategory(t *testing.T) {
	c := NewRepositoryCategory(CategoryEnterprise, 5, 10)

	if c.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if c.Category != CategoryEnterprise {
		t.Errorf("expected enterprise category, got %s", c.Category)
	}
	if c.MaxPercentage != 10 {
		t.Errorf("expected MaxPercentage 10, got %d", c.MaxPercentage)
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range []CategoryName{CategoryTest, CategorySmall, CategoryMedium, CategoryLarge, CategoryEnterprise} {
		if !ValidCategory(c) {
			t.Errorf("expected %s to be valid", c)
		}
	}
	if ValidCategory("gigantic") {
		t.Error("expected unknown category to be invalid")
	}
}

func TestNewRepositoryFullName(t *testing.T) {
	repo := NewRepository("facebook", "react")

	if repo.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if repo.FullName() != "facebook/react" {
		t.Errorf("expected 'facebook/react', got %s", repo.FullName())
	}
}

// --- Metrics Tests ---

func TestRolloutMetricsErrorRate(t *testing.T) {
	tests := []struct {
		name     string
		success  int64
		errors   int64
		expected float64
	}{
		{"no samples", 0, 0, 0},
		{"all success", 100, 0, 0},
		{"all errors", 0, 50, 100},
		{"five percent", 95, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewRolloutMetrics(uuid.New(), tt.success, tt.errors, tt.success+tt.errors)
			if got := m.ErrorRate(); got != tt.expected {
				t.Errorf("expected error rate %.1f, got %.1f", tt.expected, got)
			}
		})
	}
}

func TestMetricsSummaryErrorRate(t *testing.T) {
	s := &MetricsSummary{SuccessCount: 90, ErrorCount: 10}
	if got := s.ErrorRate(); got != 10 {
		t.Errorf("expected error rate 10, got %.1f", got)
	}
	if s.TotalOperations() != 100 {
		t.Errorf("expected 100 total operations, got %d", s.TotalOperations())
	}

	empty := &MetricsSummary{}
	if empty.ErrorRate() != 0 {
		t.Error("expected empty summary error rate to be 0")
	}
}

// --- History Tests ---

func TestNewRolloutHistory(t *testing.T) {
	featureID := uuid.New()
	h := NewRolloutHistory(featureID, HistoryActionAutoRollback, TriggerAutomatic, "error rate 8.2% exceeded threshold 5.0%").
		WithPercentChange(25, 0).
		WithActor("health-monitor")

	if h.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if h.FeatureID != featureID {
		t.Errorf("expected FeatureID %v, got %v", featureID, h.FeatureID)
	}
	if h.Action != HistoryActionAutoRollback {
		t.Errorf("expected auto_rollback action, got %s", h.Action)
	}
	if h.Trigger != TriggerAutomatic {
		t.Errorf("expected automatic trigger, got %s", h.Trigger)
	}
	if h.PrevPercent == nil || *h.PrevPercent != 25 {
		t.Error("expected previous percentage 25")
	}
	if h.NewPercent == nil || *h.NewPercent != 0 {
		t.Error("expected new percentage 0")
	}
	if h.Actor != "health-monitor" {
		t.Errorf("expected actor 'health-monitor', got %s", h.Actor)
	}
}

func TestRolloutHistoryMetadataRoundTrip(t *testing.T) {
	h := NewRolloutHistory(uuid.New(), HistoryActionPercentageChanged, TriggerManual, "")
	h.Metadata = map[string]any{"error_rate": 8.2}

	data, err := h.MetadataJSON()
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}

	h2 := NewRolloutHistory(uuid.New(), HistoryActionPercentageChanged, TriggerManual, "")
	if err := h2.SetMetadata(data); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if h2.Metadata["error_rate"] != 8.2 {
		t.Errorf("expected error_rate 8.2, got %v", h2.Metadata["error_rate"])
	}

	if err := h2.SetMetadata(nil); err != nil {
		t.Errorf("expected nil metadata to be a no-op, got %v", err)
	}
}

func TestKeptEventType(t *testing.T) {
	for _, typ := range []string{EventTypeWatch, EventTypeStar, EventTypeFork, EventTypePullRequest, EventTypeIssues} {
		if !KeptEventType(typ) {
			t.Errorf("expected %s to be kept", typ)
		}
	}
	if KeptEventType("PushEvent") {
		t.Error("expected PushEvent to be discarded")
	}
}
