package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// HistoryAction identifies what changed in a rollout configuration.
type HistoryAction string

const (
	HistoryActionCreated           HistoryAction = "created"
	HistoryActionUpdated           HistoryAction = "updated"
	HistoryActionPercentageChanged HistoryAction = "percentage_changed"
	HistoryActionPaused            HistoryAction = "paused"
	HistoryActionResumed           HistoryAction = "resumed"
	HistoryActionRolledBack        HistoryAction = "rolled_back"
	HistoryActionAutoRollback      HistoryAction = "auto_rollback"
	HistoryActionWhitelistAdded    HistoryAction = "whitelist_added"
	HistoryActionWhitelistRemoved  HistoryAction = "whitelist_removed"
)

// TriggerType identifies what caused a history entry.
type TriggerType string

const (
	// TriggerManual means an operator made the change via console or API.
	TriggerManual TriggerType = "manual"
	// TriggerAutomatic means the health monitor made the change.
	TriggerAutomatic TriggerType = "automatic"
	// TriggerScheduled means a cron job made the change.
	TriggerScheduled TriggerType = "scheduled"
)

// RolloutHistory is one append-only audit trail entry. Entries are never
// updated or deleted; the archiver moves old rows to cold storage.
type RolloutHistory struct {
	ID            uuid.UUID      `json:"id"`
	FeatureID     uuid.UUID      `json:"feature_id"`
	Action        HistoryAction  `json:"action"`
	PrevPercent   *int           `json:"previous_percentage,omitempty"`
	NewPercent    *int           `json:"new_percentage,omitempty"`
	Trigger       TriggerType    `json:"trigger_type"`
	TriggerReason string         `json:"trigger_reason,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewRolloutHistory creates a history entry timestamped now.
func NewRolloutHistory(featureID uuid.UUID, action HistoryAction, trigger TriggerType, reason string) *RolloutHistory {
	return &RolloutHistory{
		ID:            uuid.New(),
		FeatureID:     featureID,
		Action:        action,
		Trigger:       trigger,
		TriggerReason: reason,
		CreatedAt:     time.Now(),
	}
}

// WithPercentChange records the percentage transition for this entry.
func (h *RolloutHistory) WithPercentChange(prev, next int) *RolloutHistory {
	h.PrevPercent = &prev
	h.NewPercent = &next
	return h
}

// WithActor records who made the change.
func (h *RolloutHistory) WithActor(actor string) *RolloutHistory {
	h.Actor = actor
	return h
}

// MetadataJSON returns the metadata as JSON bytes for database storage.
func (h *RolloutHistory) MetadataJSON() ([]byte, error) {
	if h.Metadata == nil {
		return nil, nil
	}
	return json.Marshal(h.Metadata)
}

// SetMetadata populates the metadata from JSON bytes.
func (h *RolloutHistory) SetMetadata(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return err
	}
	h.Metadata = metadata
	return nil
}
