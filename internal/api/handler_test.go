//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/store"
)

type fixedSessions int

func (n fixedSessions) Len() int { return int(n) }

type brokenRepo struct {
	*store.MemoryStore
}

func (brokenRepo) Ping(context.Context) error { return errors.New("disk gone") }

func (brokenRepo) ListMembers(context.Context) ([]*domain.User, error) {
	return nil, errors.New("disk gone")
}

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHealth(t *testing.T) {
	rec := serve(t, NewHandler(store.NewMemory(), fixedSessions(0)), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, NewHandler(brokenRepo{store.NewMemory()}, fixedSessions(0)), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, &domain.User{ID: 1, FirstName: "A"}))
	require.NoError(t, repo.CreateUser(ctx, &domain.User{ID: 2, FirstName: "B", Role: domain.RoleBlocked}))

	rec := serve(t, NewHandler(repo, fixedSessions(3)), "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(1), got["members"])
	assert.Equal(t, float64(3), got["active_sessions"])

	rec = serve(t, NewHandler(brokenRepo{store.NewMemory()}, fixedSessions(0)), "/api/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
