package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepositoryStore struct {
	repos map[uuid.UUID]*models.Repository
}

func newMockRepositoryStore() *mockRepositoryStore {
	return &mockRepositoryStore{repos: make(map[uuid.UUID]*models.Repository)}
}

func (m *mockRepositoryStore) CreateRepository(_ context.Context, r *models.Repository) error {
	for _, existing := range m.repos {
		if existing.Owner == r.Owner && existing.Name == r.Name {
			return db.ErrDuplicate
		}
	}
	m.repos[r.ID] = r
	return nil
}

func (m *mockRepositoryStore) GetRepositoryByID(_ context.Context, id uuid.UUID) (*models.Repository, error) {
	if r, ok := m.repos[id]; ok {
		return r, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockRepositoryStore) GetAllRepositories(_ context.Context) ([]*models.Repository, error) {
	var out []*models.Repository
	for _, r := range m.repos {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRepositoryStore) UpdateRepositoryCategory(_ context.Context, id uuid.UUID, category models.CategoryName) error {
	r, ok := m.repos[id]
	if !ok {
		return db.ErrNotFound
	}
	r.Category = category
	return nil
}

func (m *mockRepositoryStore) DeleteRepository(_ context.Context, id uuid.UUID) error {
	if _, ok := m.repos[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.repos, id)
	return nil
}

func setupRepositoriesTestRouter(store RepositoryStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewRepositoriesHandler(store, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

func TestCreateRepository(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := newMockRepositoryStore()
		r := setupRepositoriesTestRouter(store)

		body := `{"owner":"contributor-info","name":"app","category":"medium"}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/repositories", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if len(store.repos) != 1 {
			t.Fatal("repository not stored")
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		store := newMockRepositoryStore()
		existing := models.NewRepository("contributor-info", "app")
		store.repos[existing.ID] = existing
		r := setupRepositoriesTestRouter(store)

		body := `{"owner":"contributor-info","name":"app"}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/repositories", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", w.Code)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		r := setupRepositoriesTestRouter(newMockRepositoryStore())

		body := `{"owner":"contributor-info","name":"app","category":"huge"}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/repositories", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestSetRepositoryCategory(t *testing.T) {
	store := newMockRepositoryStore()
	repo := models.NewRepository("contributor-info", "app")
	store.repos[repo.ID] = repo
	r := setupRepositoriesTestRouter(store)

	t.Run("success", func(t *testing.T) {
		body := `{"category":"enterprise"}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PATCH", "/api/v1/repositories/"+repo.ID.String()+"/category", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if repo.Category != models.CategoryEnterprise {
			t.Errorf("expected enterprise, got %q", repo.Category)
		}
	})

	t.Run("unknown repository", func(t *testing.T) {
		body := `{"category":"small"}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PATCH", "/api/v1/repositories/"+uuid.NewString()+"/category", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		body := `{"category":"small"}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PATCH", "/api/v1/repositories/nope/category", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestDeleteRepository(t *testing.T) {
	store := newMockRepositoryStore()
	repo := models.NewRepository("contributor-info", "app")
	store.repos[repo.ID] = repo
	r := setupRepositoriesTestRouter(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/v1/repositories/"+repo.ID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(store.repos) != 0 {
		t.Error("repository not deleted")
	}
}
