// Package api provides the HTTP API for the rollout control plane.
package api

import (
	"github.com/contributor-info/rollout/internal/api/handlers"
	"github.com/contributor-info/rollout/internal/api/middleware"
	"github.com/contributor-info/rollout/internal/auth"
	"github.com/contributor-info/rollout/internal/config"
	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/health"
	"github.com/contributor-info/rollout/internal/metrics"
	"github.com/contributor-info/rollout/internal/rollout"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/contributor-info/rollout/docs/api"
)

// Config holds configuration for the API router.
type Config struct {
	// Environment controls CORS strictness and gin mode.
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// RateLimit is a limiter format string (e.g. "100-M").
	RateLimit string
	// RedisURL enables a shared rate limit store when set.
	RedisURL string
	// SwaggerEnabled serves the interactive API documentation when true.
	SwaggerEnabled bool
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:    config.EnvDevelopment,
		AllowedOrigins: []string{},
		RateLimit:      "100-M",
		SwaggerEnabled: true,
		Version:        "dev",
		Commit:         "unknown",
		BuildDate:      "unknown",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
	db     *db.DB
}

// NewRouter creates a new Router with the given dependencies.
// The registry may be nil to disable Prometheus instrumentation, and the
// notifier may be nil when no notification channels are configured.
func NewRouter(
	cfg Config,
	database *db.DB,
	manager *rollout.Manager,
	registry *metrics.Registry,
	notifier handlers.Notifier,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
		db:     database,
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))
	if registry != nil {
		r.Engine.Use(registry.GinMiddleware())
	}

	// Rate limiting
	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimit, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Health check endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(database, health.NewCollector(), logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	if registry != nil {
		r.Engine.GET("/metrics", gin.WrapH(registry.Handler()))
	}

	// Swagger API documentation (no auth required)
	if cfg.SwaggerEnabled {
		r.Engine.GET("/api/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
			ginSwagger.URL("/api/docs/doc.json"),
			ginSwagger.DefaultModelsExpandDepth(-1),
		))
	}

	// Version endpoint (no auth required)
	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate)
	versionHandler.RegisterPublicRoutes(r.Engine)

	var recorder handlers.ChecksRecorder
	if registry != nil {
		recorder = registry
	}
	featuresHandler := handlers.NewFeaturesHandler(database, manager, recorder, notifier, logger)

	// Eligibility checks are called by processing jobs without an API key
	featuresHandler.RegisterPublicRoutes(r.Engine)

	// API v1 routes (API key auth required)
	apiKeyValidator := auth.NewAPIKeyValidator(database, logger)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.APIKeyAuth(apiKeyValidator, database, logger))

	featuresHandler.RegisterRoutes(apiV1)

	categoriesHandler := handlers.NewCategoriesHandler(database, logger)
	categoriesHandler.RegisterRoutes(apiV1)

	reposHandler := handlers.NewRepositoriesHandler(database, logger)
	reposHandler.RegisterRoutes(apiV1)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
