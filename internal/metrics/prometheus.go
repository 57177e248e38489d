// Package metrics exposes rollout health and API telemetry in Prometheus
// exposition format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the rollout collectors on a dedicated Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	errorRate         *prometheus.GaugeVec
	rolloutPercentage *prometheus.GaugeVec
	autoRollbacks     *prometheus.CounterVec
	eligibilityChecks *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewRegistry creates a registry with all rollout collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		registry: reg,
		errorRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollout_error_rate_percent",
			Help: "Error rate over the feature's monitoring window.",
		}, []string{"feature"}),
		rolloutPercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollout_percentage",
			Help: "Current rollout percentage per feature.",
		}, []string{"feature"}),
		autoRollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollout_auto_rollbacks_total",
			Help: "Automatic rollbacks triggered by the health monitor.",
		}, []string{"feature"}),
		eligibilityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollout_eligibility_checks_total",
			Help: "Eligibility decisions served, labeled by outcome.",
		}, []string{"feature", "eligible"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served by the API.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		r.errorRate,
		r.rolloutPercentage,
		r.autoRollbacks,
		r.eligibilityChecks,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// SetErrorRate records the windowed error rate for a feature.
func (r *Registry) SetErrorRate(featureName string, rate float64) {
	r.errorRate.WithLabelValues(featureName).Set(rate)
}

// SetRolloutPercentage records the current rollout percentage for a feature.
func (r *Registry) SetRolloutPercentage(featureName string, percentage int) {
	r.rolloutPercentage.WithLabelValues(featureName).Set(float64(percentage))
}

// IncAutoRollback counts an automatic rollback for a feature.
func (r *Registry) IncAutoRollback(featureName string) {
	r.autoRollbacks.WithLabelValues(featureName).Inc()
}

// IncEligibilityCheck counts an eligibility decision.
func (r *Registry) IncEligibilityCheck(featureName string, eligible bool) {
	r.eligibilityChecks.WithLabelValues(featureName, strconv.FormatBool(eligible)).Inc()
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// GinMiddleware instruments HTTP requests with count and latency metrics.
func (r *Registry) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
