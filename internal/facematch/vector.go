// Package facematch holds the vector math and box geometry shared by enrollment and recognition.
package facematch

import (
	"errors"
	"fmt"
	"math"

	"github.com/omri0111-web/facepace-public/internal/constants"
)

// ErrDimensionMismatch is returned when a vector does not match the candidate matrix width.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Dot returns the dot product of a and b accumulated in float64.
// Vectors of different length yield 0.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalize returns a unit-length copy of v, dividing by norm+epsilon.
// A zero vector stays zero.
func Normalize(v []float32) []float32 {
	n := Norm(v) + constants.NormEpsilon
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// IsUnit reports whether v has unit norm within tol.
func IsUnit(v []float32, tol float64) bool {
	return math.Abs(Norm(v)-1) <= tol
}

// CosineSimilarity computes dot(a,b) / (|a|*|b| + epsilon).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return Dot(a, b) / (Norm(a)*Norm(b) + constants.NormEpsilon)
}

// CandidateSet is a row-major matrix of unit embeddings with their owning person ids.
// Row order is the order rows were added, which decides ties.
type CandidateSet struct {
	dim  int
	ids  []string
	data []float32
}

// NewCandidateSet creates an empty set for vectors of width dim.
// A dim of 0 adopts the width of the first added row.
func NewCandidateSet(dim, capacity int) *CandidateSet {
	return &CandidateSet{
		dim:  dim,
		ids:  make([]string, 0, capacity),
		data: make([]float32, 0, capacity*max(dim, 0)),
	}
}

// Add re-normalizes emb and appends it as a new row.
func (c *CandidateSet) Add(personID string, emb []float32) error {
	if len(emb) == 0 {
		return fmt.Errorf("candidate %s: %w", personID, ErrDimensionMismatch)
	}
	if c.dim == 0 {
		c.dim = len(emb)
	}
	if len(emb) != c.dim {
		return fmt.Errorf("candidate %s has %d dims, want %d: %w", personID, len(emb), c.dim, ErrDimensionMismatch)
	}
	c.ids = append(c.ids, personID)
	c.data = append(c.data, Normalize(emb)...)
	return nil
}

// Len returns the number of rows.
func (c *CandidateSet) Len() int {
	return len(c.ids)
}

// Dim returns the row width.
func (c *CandidateSet) Dim() int {
	return c.dim
}

// PersonID returns the owner of row i.
func (c *CandidateSet) PersonID(i int) string {
	return c.ids[i]
}

// Row returns row i as a slice into the matrix.
func (c *CandidateSet) Row(i int) []float32 {
	return c.data[i*c.dim : (i+1)*c.dim]
}

// Scores computes the dot product of query against every row in one pass over the matrix.
// query is expected to be unit length already.
func (c *CandidateSet) Scores(query []float32) ([]float64, error) {
	if len(query) != c.dim {
		return nil, fmt.Errorf("query has %d dims, want %d: %w", len(query), c.dim, ErrDimensionMismatch)
	}
	scores := make([]float64, len(c.ids))
	for i := range scores {
		row := c.data[i*c.dim : (i+1)*c.dim]
		var sum float64
		for j, q := range query {
			sum += float64(q) * float64(row[j])
		}
		scores[i] = sum
	}
	return scores, nil
}

// Best is the top-1 row for a query.
type Best struct {
	Index    int
	PersonID string
	Score    float64
	// Margin is Score minus the second highest row score, 0 with a single row.
	Margin float64
}

// Best returns the highest scoring row. Equal scores keep the earliest row.
func (c *CandidateSet) Best(query []float32) (Best, bool, error) {
	if c.Len() == 0 {
		return Best{}, false, nil
	}
	scores, err := c.Scores(query)
	if err != nil {
		return Best{}, false, err
	}
	return TopOne(scores, c.ids), true, nil
}

// TopOne picks the first maximum in scores and reports its margin over the runner-up.
func TopOne(scores []float64, ids []string) Best {
	best := Best{Index: -1, Score: math.Inf(-1)}
	second := math.Inf(-1)
	for i, s := range scores {
		if s > best.Score {
			second = best.Score
			best.Index = i
			best.Score = s
		} else if s > second {
			second = s
		}
	}
	if best.Index >= 0 && best.Index < len(ids) {
		best.PersonID = ids[best.Index]
	}
	if !math.IsInf(second, -1) {
		best.Margin = best.Score - second
	}
	return best
}
