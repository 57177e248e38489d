// Package auth validates API keys for the rollout control API.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/contributor-info/rollout/internal/models"
	"github.com/rs/zerolog"
)

const (
	// APIKeyPrefix marks contributor.info rollout keys so a leaked key is
	// recognizable in secret scanners.
	APIKeyPrefix = "cin_"
	// APIKeyLength is the hex-encoded length of the 32 random key bytes.
	APIKeyLength = 64
)

// KeyStore defines the interface for API key lookup operations.
type KeyStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
}

// APIKeyValidator validates API keys and retrieves associated key records.
type APIKeyValidator struct {
	store  KeyStore
	logger zerolog.Logger
}

// NewAPIKeyValidator creates a new API key validator.
func NewAPIKeyValidator(store KeyStore, logger zerolog.Logger) *APIKeyValidator {
	return &APIKeyValidator{
		store:  store,
		logger: logger.With().Str("component", "apikey_validator").Logger(),
	}
}

// ValidateAPIKey resolves an API key to its stored record. A malformed,
// unknown, or disabled key returns nil without error; callers treat all
// three the same to avoid leaking which keys exist.
func (v *APIKeyValidator) ValidateAPIKey(ctx context.Context, apiKey string) (*models.APIKey, error) {
	if !IsValidAPIKeyFormat(apiKey) {
		v.logger.Debug().Msg("invalid API key format")
		return nil, nil
	}

	key, err := v.store.GetAPIKeyByHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		v.logger.Debug().Err(err).Msg("no record found for API key")
		return nil, nil
	}
	if key.Status == models.APIKeyStatusDisabled {
		v.logger.Debug().Str("key_id", key.ID.String()).Msg("API key is disabled")
		return nil, nil
	}
	return key, nil
}

// GenerateAPIKey creates a new random API key. Only the hash should be stored.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// IsValidAPIKeyFormat reports whether the key looks like one we issued.
// Checking the shape first avoids hashing arbitrary attacker input.
func IsValidAPIKeyFormat(apiKey string) bool {
	hexPart, ok := strings.CutPrefix(apiKey, APIKeyPrefix)
	if !ok || len(hexPart) != APIKeyLength {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage/comparison.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// CompareAPIKeyHash compares an API key with a stored hash using constant-time comparison.
func CompareAPIKeyHash(apiKey, storedHash string) bool {
	computedHash := HashAPIKey(apiKey)
	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(storedHash)) == 1
}

// ExtractBearerToken extracts the token from an Authorization header value.
// Returns empty string if the header is not a valid Bearer token.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
