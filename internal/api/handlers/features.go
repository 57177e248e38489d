package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/contributor-info/rollout/internal/api/middleware"
	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/contributor-info/rollout/internal/rollout"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FeatureStore defines the interface for feature rollout persistence operations.
type FeatureStore interface {
	CreateFeatureRollout(ctx context.Context, f *models.FeatureRollout) error
	GetAllFeatureRollouts(ctx context.Context) ([]*models.FeatureRollout, error)
	GetFeatureRolloutByName(ctx context.Context, name string) (*models.FeatureRollout, error)
	UpdateFeatureRollout(ctx context.Context, f *models.FeatureRollout) error
	DeleteFeatureRollout(ctx context.Context, id uuid.UUID) error
	CreateRolloutHistory(ctx context.Context, h *models.RolloutHistory) error
	GetHistoryByFeatureID(ctx context.Context, featureID uuid.UUID, filter db.HistoryFilter) ([]*models.RolloutHistory, error)
	CreateRolloutMetrics(ctx context.Context, m *models.RolloutMetrics) error
	GetMetricsSummary(ctx context.Context, featureID uuid.UUID, window time.Duration) (*models.MetricsSummary, error)
}

// Controller defines the rollout mutations exposed over HTTP.
type Controller interface {
	CheckEligibility(ctx context.Context, featureName string, repoID uuid.UUID) (*rollout.Decision, error)
	SetPercentage(ctx context.Context, featureName string, percentage int, trigger models.TriggerType, actor, reason string) (*models.FeatureRollout, error)
	Pause(ctx context.Context, featureName, actor, reason string) (*models.FeatureRollout, error)
	Resume(ctx context.Context, featureName, actor, reason string) (*models.FeatureRollout, error)
	EmergencyStop(ctx context.Context, featureName, actor, reason string) (*models.FeatureRollout, error)
	AddToWhitelist(ctx context.Context, featureName string, repoID uuid.UUID, actor string) (*models.FeatureRollout, error)
	RemoveFromWhitelist(ctx context.Context, featureName string, repoID uuid.UUID, actor string) (*models.FeatureRollout, error)
}

// ChecksRecorder counts eligibility decisions for the metrics endpoint.
type ChecksRecorder interface {
	IncEligibilityCheck(featureName string, eligible bool)
}

// Notifier broadcasts operator-initiated rollout changes.
type Notifier interface {
	NotifyEmergencyStop(ctx context.Context, feature *models.FeatureRollout, actor, reason string)
	NotifyPercentageChange(ctx context.Context, feature *models.FeatureRollout, prevPercentage int, actor string)
}

// FeaturesHandler handles feature rollout HTTP endpoints.
type FeaturesHandler struct {
	store      FeatureStore
	controller Controller
	recorder   ChecksRecorder
	notifier   Notifier
	logger     zerolog.Logger
}

// NewFeaturesHandler creates a new FeaturesHandler. The recorder and notifier may be nil.
func NewFeaturesHandler(store FeatureStore, controller Controller, recorder ChecksRecorder, notifier Notifier, logger zerolog.Logger) *FeaturesHandler {
	return &FeaturesHandler{
		store:      store,
		controller: controller,
		recorder:   recorder,
		notifier:   notifier,
		logger:     logger.With().Str("component", "features_handler").Logger(),
	}
}

// RegisterRoutes registers write endpoints on the given router group.
func (h *FeaturesHandler) RegisterRoutes(r *gin.RouterGroup) {
	features := r.Group("/features")
	{
		features.GET("", h.List)
		features.POST("", h.Create)
		features.GET("/:name", h.Get)
		features.PATCH("/:name", h.Update)
		features.DELETE("/:name", h.Delete)

		features.POST("/:name/actions/set-percentage", h.SetPercentage)
		features.POST("/:name/actions/pause", h.Pause)
		features.POST("/:name/actions/resume", h.Resume)
		features.POST("/:name/actions/stop", h.EmergencyStop)

		features.POST("/:name/whitelist", h.AddToWhitelist)
		features.DELETE("/:name/whitelist/:repo_id", h.RemoveFromWhitelist)

		features.GET("/:name/history", h.History)
		features.GET("/:name/metrics", h.MetricsSummary)
		features.POST("/:name/metrics", h.IngestMetrics)
	}
}

// RegisterPublicRoutes registers read-only eligibility checks that feature
// processing jobs call without an API key.
func (h *FeaturesHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/api/v1/features/:name/eligibility/:repo_id", h.CheckEligibility)
}

// actor returns the audit actor for the request, falling back to the client IP.
func actor(c *gin.Context) string {
	if key := middleware.KeyFromContext(c); key != nil {
		return key.Name
	}
	return c.ClientIP()
}

// List returns all feature rollouts.
//
//	@Summary		List feature rollouts
//	@Tags			Features
//	@Produce		json
//	@Success		200	{object}	map[string][]models.FeatureRollout
//	@Security		APIKeyAuth
//	@Router			/features [get]
func (h *FeaturesHandler) List(c *gin.Context) {
	features, err := h.store.GetAllFeatureRollouts(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list features")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list features"})
		return
	}
	if features == nil {
		features = []*models.FeatureRollout{}
	}
	c.JSON(http.StatusOK, gin.H{"features": features})
}

// CreateFeatureRequest is the request body for creating a feature rollout.
type CreateFeatureRequest struct {
	FeatureName        string                 `json:"feature_name" binding:"required,min=1,max=255"`
	Description        string                 `json:"description"`
	Strategy           models.RolloutStrategy `json:"strategy"`
	RolloutPercentage  *int                   `json:"rollout_percentage"`
	MonitoringWindowHr *int                   `json:"monitoring_window_hours"`
	MaxErrorRate       *float64               `json:"max_error_rate"`
	AutoRollbackEnable *bool                  `json:"auto_rollback_enabled"`
}

// Create creates a new feature rollout, initially at 0%.
//
//	@Summary		Create a feature rollout
//	@Tags			Features
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	models.FeatureRollout
//	@Failure		400	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Security		APIKeyAuth
//	@Router			/features [post]
func (h *FeaturesHandler) Create(c *gin.Context) {
	var req CreateFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	feature := models.NewFeatureRollout(req.FeatureName, req.Description)
	if req.Strategy != "" {
		if !models.ValidStrategy(req.Strategy) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy"})
			return
		}
		feature.Strategy = req.Strategy
	}
	if req.RolloutPercentage != nil {
		if *req.RolloutPercentage < 0 || *req.RolloutPercentage > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rollout_percentage must be between 0 and 100"})
			return
		}
		feature.RolloutPercentage = *req.RolloutPercentage
	}
	if req.MonitoringWindowHr != nil {
		if *req.MonitoringWindowHr < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "monitoring_window_hours must be at least 1"})
			return
		}
		feature.MonitoringWindowHr = *req.MonitoringWindowHr
	}
	if req.MaxErrorRate != nil {
		if *req.MaxErrorRate < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_error_rate must not be negative"})
			return
		}
		feature.MaxErrorRate = *req.MaxErrorRate
	}
	if req.AutoRollbackEnable != nil {
		feature.AutoRollbackEnable = *req.AutoRollbackEnable
	}

	if err := h.store.CreateFeatureRollout(c.Request.Context(), feature); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "feature already exists"})
			return
		}
		h.logger.Error().Err(err).Str("feature", req.FeatureName).Msg("failed to create feature")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create feature"})
		return
	}

	entry := models.NewRolloutHistory(feature.ID, models.HistoryActionCreated, models.TriggerManual, "").
		WithActor(actor(c)).
		WithPercentChange(0, feature.RolloutPercentage)
	h.appendHistory(c.Request.Context(), entry)

	h.logger.Info().
		Str("feature", feature.FeatureName).
		Str("actor", actor(c)).
		Msg("feature rollout created")

	c.JSON(http.StatusCreated, feature)
}

// Get returns a feature rollout by name.
func (h *FeaturesHandler) Get(c *gin.Context) {
	feature, err := h.store.GetFeatureRolloutByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
			return
		}
		h.logger.Error().Err(err).Str("feature", c.Param("name")).Msg("failed to get feature")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get feature"})
		return
	}
	c.JSON(http.StatusOK, feature)
}

// UpdateFeatureRequest is the request body for updating rollout settings.
// Percentage changes go through the set-percentage action so they are audited.
type UpdateFeatureRequest struct {
	Description        *string                 `json:"description,omitempty"`
	Strategy           *models.RolloutStrategy `json:"strategy,omitempty"`
	MonitoringWindowHr *int                    `json:"monitoring_window_hours,omitempty"`
	MaxErrorRate       *float64                `json:"max_error_rate,omitempty"`
	AutoRollbackEnable *bool                   `json:"auto_rollback_enabled,omitempty"`
	IsActive           *bool                   `json:"is_active,omitempty"`
}

// Update modifies rollout settings other than the percentage.
func (h *FeaturesHandler) Update(c *gin.Context) {
	feature, err := h.store.GetFeatureRolloutByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get feature"})
		return
	}

	var req UpdateFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.Strategy != nil {
		if !models.ValidStrategy(*req.Strategy) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy"})
			return
		}
		feature.Strategy = *req.Strategy
	}
	if req.Description != nil {
		feature.Description = *req.Description
	}
	if req.MonitoringWindowHr != nil {
		if *req.MonitoringWindowHr < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "monitoring_window_hours must be at least 1"})
			return
		}
		feature.MonitoringWindowHr = *req.MonitoringWindowHr
	}
	if req.MaxErrorRate != nil {
		if *req.MaxErrorRate < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_error_rate must not be negative"})
			return
		}
		feature.MaxErrorRate = *req.MaxErrorRate
	}
	if req.AutoRollbackEnable != nil {
		feature.AutoRollbackEnable = *req.AutoRollbackEnable
	}
	if req.IsActive != nil {
		feature.IsActive = *req.IsActive
	}

	if err := h.store.UpdateFeatureRollout(c.Request.Context(), feature); err != nil {
		h.logger.Error().Err(err).Str("feature", feature.FeatureName).Msg("failed to update feature")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update feature"})
		return
	}

	entry := models.NewRolloutHistory(feature.ID, models.HistoryActionUpdated, models.TriggerManual, "").
		WithActor(actor(c))
	h.appendHistory(c.Request.Context(), entry)

	h.logger.Info().
		Str("feature", feature.FeatureName).
		Str("actor", actor(c)).
		Msg("feature rollout updated")

	c.JSON(http.StatusOK, feature)
}

// Delete removes a feature rollout and its metrics and history.
func (h *FeaturesHandler) Delete(c *gin.Context) {
	feature, err := h.store.GetFeatureRolloutByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get feature"})
		return
	}

	if err := h.store.DeleteFeatureRollout(c.Request.Context(), feature.ID); err != nil {
		h.logger.Error().Err(err).Str("feature", feature.FeatureName).Msg("failed to delete feature")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete feature"})
		return
	}

	h.logger.Info().
		Str("feature", feature.FeatureName).
		Str("actor", actor(c)).
		Msg("feature rollout deleted")

	c.JSON(http.StatusOK, gin.H{"message": "feature deleted"})
}

// SetPercentageRequest is the request body for percentage changes.
type SetPercentageRequest struct {
	Percentage *int   `json:"percentage" binding:"required"`
	Reason     string `json:"reason"`
}

// SetPercentage changes the rollout percentage.
//
//	@Summary		Set rollout percentage
//	@Tags			Features
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	models.FeatureRollout
//	@Failure		400	{object}	map[string]string
//	@Security		APIKeyAuth
//	@Router			/features/{name}/actions/set-percentage [post]
func (h *FeaturesHandler) SetPercentage(c *gin.Context) {
	var req SetPercentageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	prev := 0
	if current, err := h.store.GetFeatureRolloutByName(c.Request.Context(), c.Param("name")); err == nil {
		prev = current.RolloutPercentage
	}

	feature, err := h.controller.SetPercentage(c.Request.Context(), c.Param("name"),
		*req.Percentage, models.TriggerManual, actor(c), req.Reason)
	if err != nil {
		h.respondControllerError(c, err, "failed to set percentage")
		return
	}

	if h.notifier != nil && prev != feature.RolloutPercentage {
		h.notifier.NotifyPercentageChange(c.Request.Context(), feature, prev, actor(c))
	}

	c.JSON(http.StatusOK, feature)
}

// ActionRequest is the request body for pause/resume/stop actions.
type ActionRequest struct {
	Reason string `json:"reason"`
}

// Pause temporarily halts rollout expansion for non-whitelisted repositories.
func (h *FeaturesHandler) Pause(c *gin.Context) {
	var req ActionRequest
	_ = c.ShouldBindJSON(&req)

	feature, err := h.controller.Pause(c.Request.Context(), c.Param("name"), actor(c), req.Reason)
	if err != nil {
		h.respondControllerError(c, err, "failed to pause rollout")
		return
	}
	c.JSON(http.StatusOK, feature)
}

// Resume lifts a pause.
func (h *FeaturesHandler) Resume(c *gin.Context) {
	var req ActionRequest
	_ = c.ShouldBindJSON(&req)

	feature, err := h.controller.Resume(c.Request.Context(), c.Param("name"), actor(c), req.Reason)
	if err != nil {
		h.respondControllerError(c, err, "failed to resume rollout")
		return
	}
	c.JSON(http.StatusOK, feature)
}

// EmergencyStop resets the rollout percentage to zero immediately.
func (h *FeaturesHandler) EmergencyStop(c *gin.Context) {
	var req ActionRequest
	_ = c.ShouldBindJSON(&req)

	feature, err := h.controller.EmergencyStop(c.Request.Context(), c.Param("name"), actor(c), req.Reason)
	if err != nil {
		h.respondControllerError(c, err, "failed to stop rollout")
		return
	}

	h.logger.Warn().
		Str("feature", feature.FeatureName).
		Str("actor", actor(c)).
		Msg("rollout emergency stopped")

	if h.notifier != nil {
		h.notifier.NotifyEmergencyStop(c.Request.Context(), feature, actor(c), req.Reason)
	}

	c.JSON(http.StatusOK, feature)
}

// WhitelistRequest is the request body for whitelist additions.
type WhitelistRequest struct {
	RepositoryID uuid.UUID `json:"repository_id" binding:"required"`
}

// AddToWhitelist grants a repository unconditional access to the feature.
func (h *FeaturesHandler) AddToWhitelist(c *gin.Context) {
	var req WhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	feature, err := h.controller.AddToWhitelist(c.Request.Context(), c.Param("name"), req.RepositoryID, actor(c))
	if err != nil {
		h.respondControllerError(c, err, "failed to add to whitelist")
		return
	}
	c.JSON(http.StatusOK, feature)
}

// RemoveFromWhitelist revokes a repository's whitelist entry.
func (h *FeaturesHandler) RemoveFromWhitelist(c *gin.Context) {
	repoID, err := uuid.Parse(c.Param("repo_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository ID"})
		return
	}

	feature, err := h.controller.RemoveFromWhitelist(c.Request.Context(), c.Param("name"), repoID, actor(c))
	if err != nil {
		h.respondControllerError(c, err, "failed to remove from whitelist")
		return
	}
	c.JSON(http.StatusOK, feature)
}

// CheckEligibility decides whether a repository receives the feature.
//
//	@Summary		Check repository eligibility
//	@Tags			Features
//	@Produce		json
//	@Success		200	{object}	rollout.Decision
//	@Failure		404	{object}	map[string]string
//	@Router			/features/{name}/eligibility/{repo_id} [get]
func (h *FeaturesHandler) CheckEligibility(c *gin.Context) {
	repoID, err := uuid.Parse(c.Param("repo_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository ID"})
		return
	}

	decision, err := h.controller.CheckEligibility(c.Request.Context(), c.Param("name"), repoID)
	if err != nil {
		h.respondControllerError(c, err, "failed to check eligibility")
		return
	}

	if h.recorder != nil {
		h.recorder.IncEligibilityCheck(c.Param("name"), decision.Eligible)
	}

	c.JSON(http.StatusOK, decision)
}

// History returns the audit trail for a feature, newest first.
func (h *FeaturesHandler) History(c *gin.Context) {
	feature, err := h.store.GetFeatureRolloutByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get feature"})
		return
	}

	filter := db.HistoryFilter{
		Action:  models.HistoryAction(c.Query("action")),
		Trigger: models.TriggerType(c.Query("trigger")),
		Limit:   50,
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	entries, err := h.store.GetHistoryByFeatureID(c.Request.Context(), feature.ID, filter)
	if err != nil {
		h.logger.Error().Err(err).Str("feature", feature.FeatureName).Msg("failed to get history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get history"})
		return
	}
	if entries == nil {
		entries = []*models.RolloutHistory{}
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// MetricsSummary returns aggregate health for the feature's monitoring window.
func (h *FeaturesHandler) MetricsSummary(c *gin.Context) {
	feature, err := h.store.GetFeatureRolloutByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get feature"})
		return
	}

	window := time.Duration(feature.MonitoringWindowHr) * time.Hour
	summary, err := h.store.GetMetricsSummary(c.Request.Context(), feature.ID, window)
	if err != nil {
		h.logger.Error().Err(err).Str("feature", feature.FeatureName).Msg("failed to get metrics summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":    summary,
		"error_rate": summary.ErrorRate(),
	})
}

// IngestMetricsRequest is the request body for reporting processing health.
type IngestMetricsRequest struct {
	SuccessCount   int64 `json:"success_count" binding:"min=0"`
	ErrorCount     int64 `json:"error_count" binding:"min=0"`
	ProcessedRepos int64 `json:"processed_repos" binding:"min=0"`
}

// IngestMetrics records one health observation reported by a processing job.
func (h *FeaturesHandler) IngestMetrics(c *gin.Context) {
	feature, err := h.store.GetFeatureRolloutByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get feature"})
		return
	}

	var req IngestMetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	metrics := models.NewRolloutMetrics(feature.ID, req.SuccessCount, req.ErrorCount, req.ProcessedRepos)
	if err := h.store.CreateRolloutMetrics(c.Request.Context(), metrics); err != nil {
		h.logger.Error().Err(err).Str("feature", feature.FeatureName).Msg("failed to record metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record metrics"})
		return
	}

	c.JSON(http.StatusCreated, metrics)
}

// respondControllerError maps controller errors onto HTTP status codes.
func (h *FeaturesHandler) respondControllerError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
	case errors.Is(err, rollout.ErrInvalidPercentage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "percentage must be between 0 and 100"})
	default:
		h.logger.Error().Err(err).Str("feature", c.Param("name")).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// appendHistory writes an audit entry after a successful mutation. Failures
// are logged rather than surfaced to the caller.
func (h *FeaturesHandler) appendHistory(ctx context.Context, entry *models.RolloutHistory) {
	if err := h.store.CreateRolloutHistory(ctx, entry); err != nil {
		h.logger.Error().Err(err).
			Str("feature_id", entry.FeatureID.String()).
			Str("action", string(entry.Action)).
			Msg("failed to append rollout history")
	}
}
