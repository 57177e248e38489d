package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CategoryStore defines the persistence operations for repository categories.
type CategoryStore interface {
	GetAllCategories(ctx context.Context) ([]*models.RepositoryCategory, error)
	GetCategoryByName(ctx context.Context, name models.CategoryName) (*models.RepositoryCategory, error)
	UpsertCategory(ctx context.Context, c *models.RepositoryCategory) error
	RefreshCategoryCounts(ctx context.Context) error
}

// CategoriesHandler handles repository category endpoints.
type CategoriesHandler struct {
	store  CategoryStore
	logger zerolog.Logger
}

// NewCategoriesHandler creates a new CategoriesHandler.
func NewCategoriesHandler(store CategoryStore, logger zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{
		store:  store,
		logger: logger.With().Str("component", "categories_handler").Logger(),
	}
}

// RegisterRoutes registers category endpoints on the given router group.
func (h *CategoriesHandler) RegisterRoutes(r *gin.RouterGroup) {
	categories := r.Group("/categories")
	{
		categories.GET("", h.List)
		categories.GET("/:name", h.Get)
		categories.PUT("/:name", h.Upsert)
		categories.POST("/actions/refresh-counts", h.RefreshCounts)
	}
}

// List returns all categories ordered by priority.
//
//	@Summary		List repository categories
//	@Tags			Categories
//	@Produce		json
//	@Success		200	{object}	map[string][]models.RepositoryCategory
//	@Security		APIKeyAuth
//	@Router			/categories [get]
func (h *CategoriesHandler) List(c *gin.Context) {
	categories, err := h.store.GetAllCategories(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list categories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list categories"})
		return
	}
	if categories == nil {
		categories = []*models.RepositoryCategory{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// Get returns a single category by name.
func (h *CategoriesHandler) Get(c *gin.Context) {
	name := models.CategoryName(c.Param("name"))
	if !models.ValidCategory(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}

	category, err := h.store.GetCategoryByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
			return
		}
		h.logger.Error().Err(err).Str("category", string(name)).Msg("failed to get category")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get category"})
		return
	}
	c.JSON(http.StatusOK, category)
}

// UpsertCategoryRequest is the request body for creating or updating a category cap.
type UpsertCategoryRequest struct {
	Priority      int  `json:"priority" binding:"min=0"`
	MaxPercentage *int `json:"max_percentage" binding:"required"`
}

// Upsert creates or updates a category's rollout cap.
func (h *CategoriesHandler) Upsert(c *gin.Context) {
	name := models.CategoryName(c.Param("name"))
	if !models.ValidCategory(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}

	var req UpsertCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if *req.MaxPercentage < 0 || *req.MaxPercentage > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_percentage must be between 0 and 100"})
		return
	}

	category := models.NewRepositoryCategory(name, req.Priority, *req.MaxPercentage)
	if err := h.store.UpsertCategory(c.Request.Context(), category); err != nil {
		h.logger.Error().Err(err).Str("category", string(name)).Msg("failed to upsert category")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upsert category"})
		return
	}

	h.logger.Info().
		Str("category", string(name)).
		Int("max_percentage", *req.MaxPercentage).
		Str("actor", actor(c)).
		Msg("category cap updated")

	c.JSON(http.StatusOK, category)
}

// RefreshCounts recomputes per-category repository counts.
func (h *CategoriesHandler) RefreshCounts(c *gin.Context) {
	if err := h.store.RefreshCategoryCounts(c.Request.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to refresh category counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "category counts refreshed"})
}
