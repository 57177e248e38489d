package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contributor-info/rollout/internal/auth"
	"github.com/contributor-info/rollout/internal/config"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"empty", "", ""},
		{"no sensitive params", "page=2&limit=10", "page=2&limit=10"},
		{"token redacted", "token=abc123", "token=%5BREDACTED%5D"},
		{"api_key redacted", "api_key=cin_secret", "api_key=%5BREDACTED%5D"},
		{"mixed case", "TOKEN=abc", "TOKEN=%5BREDACTED%5D"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactQuery(tt.query); got != tt.want {
				t.Errorf("redactQuery(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://contributor.info"}, config.EnvProduction))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://contributor.info")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://contributor.info" {
		t.Errorf("expected origin echoed, got %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://contributor.info"}, config.EnvProduction))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers for disallowed origin, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://contributor.info"}, config.EnvProduction))

	req := httptest.NewRequest(http.MethodOptions, "/anything", nil)
	req.Header.Set("Origin", "https://contributor.info")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestCORSPanicsInProductionWithoutOrigins(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty origins in production")
		}
	}()
	CORS(nil, config.EnvProduction)
}

type mockKeyStore struct {
	keys map[string]*models.APIKey
}

func (m *mockKeyStore) GetAPIKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	if k, ok := m.keys[hash]; ok {
		return k, nil
	}
	return nil, context.Canceled
}

type mockToucher struct {
	touched []uuid.UUID
}

func (m *mockToucher) TouchAPIKey(_ context.Context, id uuid.UUID) error {
	m.touched = append(m.touched, id)
	return nil
}

func authRouter(t *testing.T) (*gin.Engine, string, *mockToucher) {
	t.Helper()
	rawKey, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	record := models.NewAPIKey("test", auth.HashAPIKey(rawKey))
	store := &mockKeyStore{keys: map[string]*models.APIKey{record.KeyHash: record}}
	toucher := &mockToucher{}

	router := gin.New()
	router.Use(APIKeyAuth(auth.NewAPIKeyValidator(store, zerolog.Nop()), toucher, zerolog.Nop()))
	router.GET("/secure", func(c *gin.Context) {
		key := KeyFromContext(c)
		if key == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": key.Name})
	})
	return router, rawKey, toucher
}

func TestAPIKeyAuthValidKey(t *testing.T) {
	router, rawKey, toucher := authRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(toucher.touched) != 1 {
		t.Errorf("expected key usage recorded once, got %d", len(toucher.touched))
	}
}

func TestAPIKeyAuthRejectsMissingAndInvalid(t *testing.T) {
	router, _, _ := authRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	bogus, _ := auth.GenerateAPIKey()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+bogus)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown key, got %d", rec.Code)
	}
}

func TestNewRateLimiterMemory(t *testing.T) {
	mw, err := NewRateLimiter("2-H", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	router := gin.New()
	router.Use(mw)
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after budget exhausted, got %d", rec.Code)
	}
}

func TestNewRateLimiterInvalidFormat(t *testing.T) {
	if _, err := NewRateLimiter("lots", ""); err == nil {
		t.Error("expected error for invalid rate format")
	}
}
