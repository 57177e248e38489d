package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type mockCategoryStore struct {
	categories map[models.CategoryName]*models.RepositoryCategory
	refreshed  bool
}

func newMockCategoryStore() *mockCategoryStore {
	return &mockCategoryStore{categories: make(map[models.CategoryName]*models.RepositoryCategory)}
}

func (m *mockCategoryStore) GetAllCategories(_ context.Context) ([]*models.RepositoryCategory, error) {
	var out []*models.RepositoryCategory
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCategoryStore) GetCategoryByName(_ context.Context, name models.CategoryName) (*models.RepositoryCategory, error) {
	if c, ok := m.categories[name]; ok {
		return c, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockCategoryStore) UpsertCategory(_ context.Context, c *models.RepositoryCategory) error {
	m.categories[c.Category] = c
	return nil
}

func (m *mockCategoryStore) RefreshCategoryCounts(_ context.Context) error {
	m.refreshed = true
	return nil
}

func setupCategoriesTestRouter(store CategoryStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewCategoriesHandler(store, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

func TestListCategories(t *testing.T) {
	store := newMockCategoryStore()
	store.categories[models.CategoryEnterprise] = models.NewRepositoryCategory(models.CategoryEnterprise, 1, 25)
	r := setupCategoriesTestRouter(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/categories", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string][]*models.RepositoryCategory
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(resp["categories"]) != 1 {
		t.Fatalf("expected 1 category, got %d", len(resp["categories"]))
	}
}

func TestUpsertCategory(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := newMockCategoryStore()
		r := setupCategoriesTestRouter(store)

		body := `{"priority":2,"max_percentage":50}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/categories/large", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		saved := store.categories[models.CategoryLarge]
		if saved == nil || saved.MaxPercentage != 50 {
			t.Fatalf("category not saved as expected: %+v", saved)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		r := setupCategoriesTestRouter(newMockCategoryStore())

		body := `{"max_percentage":50}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/categories/gigantic", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("cap out of range", func(t *testing.T) {
		r := setupCategoriesTestRouter(newMockCategoryStore())

		body := `{"max_percentage":120}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/categories/small", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestRefreshCategoryCounts(t *testing.T) {
	store := newMockCategoryStore()
	r := setupCategoriesTestRouter(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/categories/actions/refresh-counts", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !store.refreshed {
		t.Error("refresh not invoked")
	}
}
