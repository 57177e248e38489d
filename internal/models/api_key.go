package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyStatus represents whether a key may be used.
type APIKeyStatus string

const (
	// APIKeyStatusActive means the key is accepted.
	APIKeyStatusActive APIKeyStatus = "active"
	// APIKeyStatusDisabled means the key is rejected without deleting the record.
	APIKeyStatusDisabled APIKeyStatus = "disabled"
)

// APIKey identifies a console user or automation job calling the write API.
// Only the SHA-256 hash of the key is stored.
type APIKey struct {
	ID         uuid.UUID    `json:"id"`
	Name       string       `json:"name"`
	KeyHash    string       `json:"-"`
	Status     APIKeyStatus `json:"status"`
	LastUsedAt *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewAPIKey creates an active API key record for the given hash.
func NewAPIKey(name, keyHash string) *APIKey {
	return &APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   keyHash,
		Status:    APIKeyStatusActive,
		CreatedAt: time.Now(),
	}
}
