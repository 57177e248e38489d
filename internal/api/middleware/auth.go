package middleware

import (
	"context"
	"net/http"

	"github.com/contributor-info/rollout/internal/auth"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// APIKeyContextKey is the gin context key holding the authenticated key record.
const APIKeyContextKey = "api_key"

// KeyToucher records API key usage timestamps.
type KeyToucher interface {
	TouchAPIKey(ctx context.Context, id uuid.UUID) error
}

// APIKeyAuth returns a middleware that requires a valid bearer API key.
// The authenticated key record is stored in the gin context.
func APIKeyAuth(validator *auth.APIKeyValidator, toucher KeyToucher, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		token := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		key, err := validator.ValidateAPIKey(c.Request.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("api key validation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
			return
		}
		if key == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		if toucher != nil {
			if err := toucher.TouchAPIKey(c.Request.Context(), key.ID); err != nil {
				log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("failed to record key usage")
			}
		}

		c.Set(APIKeyContextKey, key)
		c.Next()
	}
}

// KeyFromContext returns the authenticated API key record, if any.
func KeyFromContext(c *gin.Context) *models.APIKey {
	val, ok := c.Get(APIKeyContextKey)
	if !ok {
		return nil
	}
	key, ok := val.(*models.APIKey)
	if !ok {
		return nil
	}
	return key
}
