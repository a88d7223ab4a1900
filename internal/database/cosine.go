package database

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}
	similarity := facematch.CosineSimilarity(a, b)
	// Clamp to [-1, 1] to handle floating point errors
	similarity = math.Max(-1, math.Min(1, similarity))
	return 1 - similarity
}

// ValidateEmbedding rejects empty vectors, wrong dimensions (when dim > 0) and non-finite values.
func ValidateEmbedding(embedding []float32, dim int) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	if dim > 0 && len(embedding) != dim {
		return fmt.Errorf("%w: %d dims, want %d", ErrInvalidEmbedding, len(embedding), dim)
	}
	for i, x := range embedding {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: non-finite value at %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// SortNearest orders hits by descending similarity, then ascending id.
func SortNearest(hits []NearestEmbedding) {
	slices.SortFunc(hits, func(a, b NearestEmbedding) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
