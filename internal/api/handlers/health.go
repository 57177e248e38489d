package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/contributor-info/rollout/internal/health"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthStatus is the state reported for a checked component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is the outcome of probing one component.
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HealthResponse is the body returned by the health endpoints.
type HealthResponse struct {
	Status HealthStatus                  `json:"status"`
	Checks map[string]*HealthCheckResult `json:"checks,omitempty"`
	Error  string                        `json:"error,omitempty"`
}

// DatabaseHealthChecker probes the backing store. Satisfied by *db.DB.
type DatabaseHealthChecker interface {
	Ping(ctx context.Context) error
	Health() map[string]any
}

// SystemCollector gathers host resource usage for the system health endpoint.
type SystemCollector interface {
	Collect(ctx context.Context) *health.Metrics
}

// HealthHandler serves liveness and readiness probes. Deploy platforms and
// the dashboard both poll /health, so the checks carry a short timeout.
type HealthHandler struct {
	db        DatabaseHealthChecker
	collector SystemCollector
	logger    zerolog.Logger
}

const healthCheckTimeout = 5 * time.Second

// NewHealthHandler creates a HealthHandler. The collector may be nil.
func NewHealthHandler(db DatabaseHealthChecker, collector SystemCollector, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		collector: collector,
		logger:    logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the unauthenticated health routes.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	group := r.Group("/health")
	{
		group.GET("", h.Overall)
		group.GET("/db", h.Database)
		group.GET("/system", h.System)
	}
}

// Overall reports whether the server can take traffic. The database is the
// only hard dependency; Redis and S3 degrade gracefully.
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbResult := h.probeDatabase(ctx)
	response := &HealthResponse{
		Status: dbResult.Status,
		Checks: map[string]*HealthCheckResult{"database": dbResult},
	}

	code := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// Database reports store connectivity and pool utilization.
func (h *HealthHandler) Database(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	result := h.probeDatabase(ctx)
	response := &HealthResponse{
		Status: result.Status,
		Checks: map[string]*HealthCheckResult{"database": result},
		Error:  result.Error,
	}

	code := http.StatusOK
	if result.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// System reports host CPU, memory, and disk usage.
func (h *HealthHandler) System(c *gin.Context) {
	if h.collector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "system metrics not available"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{
		"metrics": h.collector.Collect(ctx),
		"host":    health.HostInfo(),
	})
}

func (h *HealthHandler) probeDatabase(ctx context.Context) *HealthCheckResult {
	if h.db == nil {
		return &HealthCheckResult{
			Status: HealthStatusUnhealthy,
			Error:  "database not configured",
		}
	}

	start := time.Now()
	err := h.db.Ping(ctx)
	result := &HealthCheckResult{
		Status:   HealthStatusHealthy,
		Duration: time.Since(start).String(),
	}
	if err != nil {
		h.logger.Warn().Err(err).Msg("database health check failed")
		result.Status = HealthStatusUnhealthy
		result.Error = "database ping failed"
		return result
	}

	result.Details = h.db.Health()
	return result
}
