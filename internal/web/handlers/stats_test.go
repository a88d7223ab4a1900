package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/database/mock"
	"github.com/omri0111-web/facepace-public/internal/photos"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

func TestStatsHandler_Get(t *testing.T) {
	store := mock.NewMockStore()
	ctx := context.Background()
	store.EnrollEmbedding(ctx, "alice", "Alice", []float32{1, 0}, time.Now(), 0)
	store.EnrollEmbedding(ctx, "alice", "Alice", []float32{0, 1}, time.Now(), 0)
	store.EnrollEmbedding(ctx, "bob", "Bob", []float32{1, 1}, time.Now(), 0)
	store.SaveGroup(ctx, database.Group{ID: "trip", Name: "Trip"})

	handler := NewStatsHandler(store, photos.NewStore(t.TempDir(), 0), recognition.NewGroupCache(store, 0))

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)
	if stats.Persons != 2 || stats.Embeddings != 3 || stats.Groups != 1 {
		t.Errorf("got %+v, want 2 persons, 3 embeddings, 1 group", stats)
	}
	if stats.PerPerson["alice"] != 2 || stats.PerPerson["bob"] != 1 {
		t.Errorf("per person = %v, want alice=2 bob=1", stats.PerPerson)
	}
	if stats.HNSW != nil {
		t.Error("mock store has no HNSW index; hnsw should be omitted")
	}
}

func TestStatsHandler_Get_StoreError(t *testing.T) {
	store := mock.NewMockStore()
	store.StatsError = errors.New("db down")
	handler := NewStatsHandler(store, photos.NewStore(t.TempDir(), 0), recognition.NewGroupCache(store, 0))

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to get stats")
}

func TestStatsHandler_Clear(t *testing.T) {
	store := mock.NewMockStore()
	ctx := context.Background()
	dir := t.TempDir()
	photoStore := photos.NewStore(dir, 0)
	cache := recognition.NewGroupCache(store, time.Hour)

	store.EnrollEmbedding(ctx, "alice", "Alice", []float32{1, 0}, time.Now(), 0)
	store.SaveGroup(ctx, database.Group{ID: "trip", Name: "Trip"})
	store.AddMember(ctx, "trip", "alice")
	cache.MembersOf(ctx, "trip")
	if err := os.MkdirAll(filepath.Join(dir, "alice"), 0o755); err != nil {
		t.Fatal(err)
	}

	handler := NewStatsHandler(store, photoStore, cache)
	recorder := httptest.NewRecorder()
	handler.Clear(recorder, httptest.NewRequest("POST", "/api/v1/clear", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	if stats, _ := store.Stats(ctx); stats.Persons != 0 || stats.Embeddings != 0 || stats.Groups != 0 {
		t.Errorf("store not empty after clear: %+v", stats)
	}
	if cache.Size() != 0 {
		t.Errorf("group cache holds %d entries after clear", cache.Size())
	}
	if _, err := os.Stat(filepath.Join(dir, "alice")); !os.IsNotExist(err) {
		t.Error("photo directory survived clear")
	}
}

func TestStatsHandler_Clear_StoreError(t *testing.T) {
	store := mock.NewMockStore()
	store.ClearError = errors.New("db down")
	handler := NewStatsHandler(store, photos.NewStore(t.TempDir(), 0), recognition.NewGroupCache(store, 0))

	recorder := httptest.NewRecorder()
	handler.Clear(recorder, httptest.NewRequest("POST", "/api/v1/clear", nil))
	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestStatsHandler_RebuildIndex_Unsupported(t *testing.T) {
	store := mock.NewMockStore()
	handler := NewStatsHandler(store, photos.NewStore(t.TempDir(), 0), recognition.NewGroupCache(store, 0))

	recorder := httptest.NewRecorder()
	handler.RebuildIndex(recorder, httptest.NewRequest("POST", "/api/v1/index/rebuild", nil))
	assertStatusCode(t, recorder, http.StatusConflict)
}
