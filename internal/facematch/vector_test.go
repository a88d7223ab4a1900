package facematch

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestNormalize_Idempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for i := range 20 {
		v := randomVector(r, 512)
		once := Normalize(v)
		twice := Normalize(once)

		if !IsUnit(once, 1e-6) {
			t.Fatalf("vector %d: norm after normalize = %v", i, Norm(once))
		}
		for j := range once {
			if math.Abs(float64(once[j]-twice[j])) > 1e-6 {
				t.Fatalf("vector %d: element %d differs after second normalize: %v vs %v", i, j, once[j], twice[j])
			}
		}
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	got := Normalize(make([]float32, 4))
	for i, x := range got {
		if x != 0 {
			t.Errorf("element %d = %v, want 0", i, x)
		}
	}
}

func TestCosineSimilarity_Self(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))

	for range 10 {
		v := Normalize(randomVector(r, 512))
		if s := CosineSimilarity(v, v); math.Abs(s-1) > 1e-6 {
			t.Errorf("CosineSimilarity(v, v) = %v, want 1", s)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCandidateSet_Best(t *testing.T) {
	set := NewCandidateSet(0, 3)
	rows := []struct {
		id  string
		emb []float32
	}{
		{"bob", []float32{0, 1, 0}},
		{"alice", []float32{3, 0, 0}}, // re-normalized on add
		{"carol", []float32{1, 1, 0}},
	}
	for _, row := range rows {
		if err := set.Add(row.id, row.emb); err != nil {
			t.Fatalf("Add(%s): %v", row.id, err)
		}
	}

	best, ok, err := set.Best([]float32{1, 0, 0})
	if err != nil || !ok {
		t.Fatalf("Best() ok=%v err=%v", ok, err)
	}
	if best.PersonID != "alice" {
		t.Errorf("PersonID = %s, want alice", best.PersonID)
	}
	if math.Abs(best.Score-1) > 1e-6 {
		t.Errorf("Score = %v, want 1", best.Score)
	}
	wantMargin := 1 - 1/math.Sqrt2
	if math.Abs(best.Margin-wantMargin) > 1e-6 {
		t.Errorf("Margin = %v, want %v", best.Margin, wantMargin)
	}
}

func TestCandidateSet_TieKeepsFirst(t *testing.T) {
	set := NewCandidateSet(2, 2)
	_ = set.Add("first", []float32{1, 0})
	_ = set.Add("second", []float32{1, 0})

	best, _, err := set.Best([]float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if best.PersonID != "first" {
		t.Errorf("PersonID = %s, want first", best.PersonID)
	}
	if best.Margin != 0 {
		t.Errorf("Margin = %v, want 0", best.Margin)
	}
}

func TestCandidateSet_Empty(t *testing.T) {
	set := NewCandidateSet(3, 0)
	if _, ok, err := set.Best([]float32{1, 0, 0}); ok || err != nil {
		t.Errorf("Best() on empty set: ok=%v err=%v", ok, err)
	}
}

func TestCandidateSet_DimensionMismatch(t *testing.T) {
	set := NewCandidateSet(3, 1)
	if err := set.Add("x", []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add() error = %v, want ErrDimensionMismatch", err)
	}
	_ = set.Add("y", []float32{1, 0, 0})
	if _, err := set.Scores([]float32{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Scores() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestTopOne_SingleRowHasZeroMargin(t *testing.T) {
	best := TopOne([]float64{0.3}, []string{"only"})
	if best.PersonID != "only" || best.Margin != 0 {
		t.Errorf("TopOne() = %+v", best)
	}
}
