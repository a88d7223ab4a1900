package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/photos"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

// StatsHandler handles store-wide maintenance endpoints
type StatsHandler struct {
	store     database.Store
	photos    *photos.Store
	cache     *recognition.GroupCache
	rebuilder database.HNSWRebuilder // nil when the backend has no HNSW index
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(store database.Store, photoStore *photos.Store, cache *recognition.GroupCache) *StatsHandler {
	h := &StatsHandler{store: store, photos: photoStore, cache: cache}
	if rb, ok := store.(database.HNSWRebuilder); ok {
		h.rebuilder = rb
	}
	return h
}

// StatsResponse represents the stats response
type StatsResponse struct {
	Persons    int            `json:"persons"`
	Embeddings int            `json:"embeddings"`
	Groups     int            `json:"groups"`
	PerPerson  map[string]int `json:"embeddings_per_person"`
	HNSW       *HNSWStatus    `json:"hnsw,omitempty"`
}

// HNSWStatus reports the in-memory index state
type HNSWStatus struct {
	Enabled bool `json:"enabled"`
	Count   int  `json:"count"`
}

// Get returns store counts
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		log.Printf("Loading stats failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := StatsResponse{
		Persons:    stats.Persons,
		Embeddings: stats.Embeddings,
		Groups:     stats.Groups,
		PerPerson:  stats.PerPerson,
	}
	if resp.PerPerson == nil {
		resp.PerPerson = map[string]int{}
	}
	if h.rebuilder != nil {
		resp.HNSW = &HNSWStatus{Enabled: h.rebuilder.IsHNSWEnabled(), Count: h.rebuilder.HNSWCount()}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Clear wipes persons, embeddings, groups and memberships, then removes stored photo files
func (h *StatsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	persons, err := h.store.ListPersons(r.Context())
	if err != nil {
		log.Printf("Listing persons before clear failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to clear data")
		return
	}

	if err := h.store.ClearAll(r.Context()); err != nil {
		log.Printf("Clear failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to clear data")
		return
	}
	h.cache.InvalidateAll()

	for _, p := range persons {
		if res := h.photos.RemoveAll(p.ID); !res.OK() {
			log.Printf("Photo cleanup: %s", res)
		}
	}

	log.Printf("Cleared %d persons", len(persons))
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// RebuildIndexResponse represents the response from rebuilding the HNSW index
type RebuildIndexResponse struct {
	Success        bool  `json:"success"`
	EmbeddingCount int   `json:"embedding_count"`
	DurationMs     int64 `json:"duration_ms"`
}

// RebuildIndex rebuilds the HNSW index from the store and persists it
func (h *StatsHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if h.rebuilder == nil || !h.rebuilder.IsHNSWEnabled() {
		respondError(w, http.StatusConflict, "HNSW index is not enabled")
		return
	}

	startTime := time.Now()
	if err := h.rebuilder.RebuildHNSW(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to rebuild HNSW index: %v", err))
		return
	}
	// The in-memory index is usable even when persisting fails.
	if err := h.rebuilder.SaveHNSWIndex(); err != nil {
		log.Printf("Warning: failed to save HNSW index to disk: %v", err)
	}

	respondJSON(w, http.StatusOK, RebuildIndexResponse{
		Success:        true,
		EmbeddingCount: h.rebuilder.HNSWCount(),
		DurationMs:     time.Since(startTime).Milliseconds(),
	})
}
