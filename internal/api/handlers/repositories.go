package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RepositoryStore defines the persistence operations for tracked repositories.
type RepositoryStore interface {
	CreateRepository(ctx context.Context, r *models.Repository) error
	GetRepositoryByID(ctx context.Context, id uuid.UUID) (*models.Repository, error)
	GetAllRepositories(ctx context.Context) ([]*models.Repository, error)
	UpdateRepositoryCategory(ctx context.Context, id uuid.UUID, category models.CategoryName) error
	DeleteRepository(ctx context.Context, id uuid.UUID) error
}

// RepositoriesHandler handles tracked repository endpoints.
type RepositoriesHandler struct {
	store  RepositoryStore
	logger zerolog.Logger
}

// NewRepositoriesHandler creates a new RepositoriesHandler.
func NewRepositoriesHandler(store RepositoryStore, logger zerolog.Logger) *RepositoriesHandler {
	return &RepositoriesHandler{
		store:  store,
		logger: logger.With().Str("component", "repositories_handler").Logger(),
	}
}

// RegisterRoutes registers repository endpoints on the given router group.
func (h *RepositoriesHandler) RegisterRoutes(r *gin.RouterGroup) {
	repos := r.Group("/repositories")
	{
		repos.GET("", h.List)
		repos.POST("", h.Create)
		repos.GET("/:id", h.Get)
		repos.PATCH("/:id/category", h.SetCategory)
		repos.DELETE("/:id", h.Delete)
	}
}

// List returns all tracked repositories.
//
//	@Summary		List tracked repositories
//	@Tags			Repositories
//	@Produce		json
//	@Success		200	{object}	map[string][]models.Repository
//	@Security		APIKeyAuth
//	@Router			/repositories [get]
func (h *RepositoriesHandler) List(c *gin.Context) {
	repos, err := h.store.GetAllRepositories(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list repositories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list repositories"})
		return
	}
	if repos == nil {
		repos = []*models.Repository{}
	}
	c.JSON(http.StatusOK, gin.H{"repositories": repos})
}

// CreateRepositoryRequest is the request body for tracking a repository.
type CreateRepositoryRequest struct {
	Owner    string              `json:"owner" binding:"required,min=1,max=255"`
	Name     string              `json:"name" binding:"required,min=1,max=255"`
	Category models.CategoryName `json:"category"`
}

// Create starts tracking a repository for rollout enrollment.
func (h *RepositoriesHandler) Create(c *gin.Context) {
	var req CreateRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	repo := models.NewRepository(req.Owner, req.Name)
	if req.Category != "" {
		if !models.ValidCategory(req.Category) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
			return
		}
		repo.Category = req.Category
	}

	if err := h.store.CreateRepository(c.Request.Context(), repo); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "repository already tracked"})
			return
		}
		h.logger.Error().Err(err).Str("repository", repo.FullName()).Msg("failed to create repository")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create repository"})
		return
	}

	h.logger.Info().
		Str("repository", repo.FullName()).
		Str("actor", actor(c)).
		Msg("repository tracked")

	c.JSON(http.StatusCreated, repo)
}

// Get returns a tracked repository by ID.
func (h *RepositoriesHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository ID"})
		return
	}

	repo, err := h.store.GetRepositoryByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		h.logger.Error().Err(err).Str("id", id.String()).Msg("failed to get repository")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get repository"})
		return
	}
	c.JSON(http.StatusOK, repo)
}

// SetCategoryRequest is the request body for assigning a repository category.
type SetCategoryRequest struct {
	Category models.CategoryName `json:"category" binding:"required"`
}

// SetCategory assigns a repository to a sizing category.
func (h *RepositoriesHandler) SetCategory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository ID"})
		return
	}

	var req SetCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if !models.ValidCategory(req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}

	if err := h.store.UpdateRepositoryCategory(c.Request.Context(), id, req.Category); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		h.logger.Error().Err(err).Str("id", id.String()).Msg("failed to update repository category")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update category"})
		return
	}

	repo, err := h.store.GetRepositoryByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get repository"})
		return
	}

	h.logger.Info().
		Str("repository", repo.FullName()).
		Str("category", string(req.Category)).
		Str("actor", actor(c)).
		Msg("repository category assigned")

	c.JSON(http.StatusOK, repo)
}

// Delete stops tracking a repository.
func (h *RepositoriesHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository ID"})
		return
	}

	if err := h.store.DeleteRepository(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		h.logger.Error().Err(err).Str("id", id.String()).Msg("failed to delete repository")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete repository"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "repository deleted"})
}
