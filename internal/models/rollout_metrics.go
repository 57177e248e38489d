package models

import (
	"time"

	"github.com/google/uuid"
)

// RolloutMetrics is one observation of feature processing health, reported by
// the jobs that execute the feature against eligible repositories.
type RolloutMetrics struct {
	ID             uuid.UUID `json:"id"`
	FeatureID      uuid.UUID `json:"feature_id"`
	SuccessCount   int64     `json:"success_count"`
	ErrorCount     int64     `json:"error_count"`
	ProcessedRepos int64     `json:"processed_repos"`
	CapturedAt     time.Time `json:"captured_at"`
}

// NewRolloutMetrics creates a metrics observation captured now.
func NewRolloutMetrics(featureID uuid.UUID, successCount, errorCount, processedRepos int64) *RolloutMetrics {
	return &RolloutMetrics{
		ID:             uuid.New(),
		FeatureID:      featureID,
		SuccessCount:   successCount,
		ErrorCount:     errorCount,
		ProcessedRepos: processedRepos,
		CapturedAt:     time.Now(),
	}
}

// ErrorRate returns the error percentage for this observation, 0 when empty.
func (m *RolloutMetrics) ErrorRate() float64 {
	total := m.SuccessCount + m.ErrorCount
	if total == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(total) * 100
}

// MetricsSummary aggregates observations over a monitoring window.
type MetricsSummary struct {
	FeatureID    uuid.UUID `json:"feature_id"`
	SuccessCount int64     `json:"success_count"`
	ErrorCount   int64     `json:"error_count"`
	SampleCount  int64     `json:"sample_count"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// ErrorRate returns the aggregate error percentage for the window.
func (s *MetricsSummary) ErrorRate() float64 {
	total := s.SuccessCount + s.ErrorCount
	if total == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(total) * 100
}

// TotalOperations returns the total number of observed operations.
func (s *MetricsSummary) TotalOperations() int64 {
	return s.SuccessCount + s.ErrorCount
}
