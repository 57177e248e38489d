package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRegistryExposesRolloutMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.SetErrorRate("capture-events", 4.2)
	reg.SetRolloutPercentage("capture-events", 25)
	reg.IncAutoRollback("capture-events")
	reg.IncEligibilityCheck("capture-events", true)
	reg.IncEligibilityCheck("capture-events", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	reg.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`rollout_error_rate_percent{feature="capture-events"} 4.2`,
		`rollout_percentage{feature="capture-events"} 25`,
		`rollout_auto_rollbacks_total{feature="capture-events"} 1`,
		`rollout_eligibility_checks_total{eligible="true",feature="capture-events"} 1`,
		`rollout_eligibility_checks_total{eligible="false",feature="capture-events"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestGinMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := NewRegistry()

	router := gin.New()
	router.Use(reg.GinMiddleware())
	router.GET("/api/features/:name", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/features/capture", nil))

	metricsRec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRec.Body.String()
	want := `http_requests_total{method="GET",path="/api/features/:name",status="200"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %q", want)
	}
}
