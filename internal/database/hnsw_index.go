package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	EmbeddingCount int64     `json:"embedding_count"`
	MaxEmbeddingID int64     `json:"max_embedding_id"`
	BuildTime      time.Time `json:"build_time"`
	Version        int       `json:"version"`
}

const hnswMetadataVersion = 1

// ErrIndexNotInitialized is returned when searching an index with no graph.
var ErrIndexNotInitialized = errors.New("index not initialized")

// HNSWIndex wraps the HNSW graph for approximate nearest-embedding search.
// Nodes are keyed by embedding id.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64] // set when loaded from disk
	idToEmb    map[int64]*StoredEmbedding
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToEmb: make(map[int64]*StoredEmbedding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with embs.
func (h *HNSWIndex) Build(embs []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	h.idToEmb = make(map[int64]*StoredEmbedding, len(embs))
	if len(embs) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range embs {
		emb := &embs[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
		h.idToEmb[emb.ID] = emb
	}
	h.graph = g
}

// Search finds the k nearest neighbors to the query embedding.
// Returns embedding IDs and their cosine distances. Deleted ids are skipped,
// so fewer than k results may come back.
func (h *HNSWIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, ErrIndexNotInitialized
	}

	var neighbors []hnsw.Node[int64]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	ids := make([]int64, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := h.idToEmb[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, CosineDistance(query, n.Value))
	}
	return ids, distances, nil
}

// Get returns the embedding for a given ID.
func (h *HNSWIndex) Get(id int64) *StoredEmbedding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToEmb[id]
}

// Add adds a single embedding to the index.
func (h *HNSWIndex) Add(emb StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(emb.Embedding) == 0 {
		return
	}
	if h.graph == nil {
		if h.savedGraph != nil {
			h.graph = h.savedGraph.Graph
			h.savedGraph = nil
		} else {
			h.graph = newGraph()
		}
	}
	h.graph.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
	h.idToEmb[emb.ID] = &emb
}

// Delete removes an embedding from search results.
func (h *HNSWIndex) Delete(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// The graph keeps the node; dropping the lookup entry filters it out of Search.
	delete(h.idToEmb, id)
}

// DeletePerson removes every embedding of a person and returns the removed ids.
func (h *HNSWIndex) DeletePerson(personID string) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []int64
	for id, emb := range h.idToEmb {
		if emb.PersonID == personID {
			delete(h.idToEmb, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Count returns the number of searchable embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEmb)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// Attach sets the id lookup after the graph was loaded from disk.
func (h *HNSWIndex) Attach(embs []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToEmb = make(map[int64]*StoredEmbedding, len(embs))
	for i := range embs {
		h.idToEmb[embs[i].ID] = &embs[i]
	}
}

// Load loads a graph exported by SaveWithMetadata.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("HNSW index file not available: %w", err)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}
	h.savedGraph = saved
	h.graph = nil
	return nil
}

// SaveWithMetadata persists the index to disk along with metadata for staleness detection.
func (h *HNSWIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// IsFresh reports whether metadata describes the given embedding set.
func (m HNSWIndexMetadata) IsFresh(count, maxID int64) bool {
	return m.Version == hnswMetadataVersion && m.EmbeddingCount == count && m.MaxEmbeddingID == maxID
}

// MetadataFor summarizes embs for SaveWithMetadata.
func MetadataFor(embs []StoredEmbedding) HNSWIndexMetadata {
	meta := HNSWIndexMetadata{EmbeddingCount: int64(len(embs)), BuildTime: time.Now()}
	for i := range embs {
		meta.MaxEmbeddingID = max(meta.MaxEmbeddingID, embs[i].ID)
	}
	return meta
}
