// Package recognition implements enrollment and the face matching loop on top
// of the extractor, the quality gate and the vector store.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// Candidates restricts which persons a recognition call compares against.
// PersonIDs wins over GroupID; with neither set every enrolled embedding is used.
// An empty PersonIDs slice counts as unset.
type Candidates struct {
	PersonIDs []string
	GroupID   string
}

// Match is a recognized face.
type Match struct {
	PersonID   string
	Confidence float64
	// Margin is the lead over the runner-up candidate. Informational only.
	Margin float64
	Box    facematch.Box
}

// Outcome is the result of one matching pass.
type Outcome struct {
	Matches   []Match
	Faces     int // faces detected
	Processed int // faces compared before the time budget ran out
}

// Truncated reports whether the time budget stopped the loop early.
func (o Outcome) Truncated() bool {
	return o.Processed < o.Faces
}

// Matcher finds the best enrolled person for each detected face.
type Matcher struct {
	extractor extractor.FaceExtractor
	store     database.EmbeddingReader
	groups    MembershipSource
	threshold float64
	budget    time.Duration
	now       func() time.Time
}

// NewMatcher creates a matcher. Faces whose best similarity is below threshold
// are not reported. budget bounds the face loop; 0 disables it.
func NewMatcher(ext extractor.FaceExtractor, store database.EmbeddingReader, groups MembershipSource, threshold float64, budget time.Duration) *Matcher {
	return &Matcher{
		extractor: ext,
		store:     store,
		groups:    groups,
		threshold: threshold,
		budget:    budget,
		now:       time.Now,
	}
}

// Threshold returns the acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Recognize detects faces in img and matches them against the candidates.
// An image without faces or an empty candidate set yields no matches and no error.
func (m *Matcher) Recognize(ctx context.Context, img image.Image, cand Candidates) (*Outcome, error) {
	faces, err := m.extractor.DetectAndEmbed(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	return m.MatchFaces(ctx, faces, cand)
}

// MatchFaces matches already extracted faces in their given order.
func (m *Matcher) MatchFaces(ctx context.Context, faces []extractor.Face, cand Candidates) (*Outcome, error) {
	out := &Outcome{Matches: []Match{}, Faces: len(faces)}
	if len(faces) == 0 {
		return out, nil
	}

	set, err := m.candidateSet(ctx, cand)
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return out, nil
	}

	start := m.now()
	for _, face := range faces {
		if len(face.Embedding) == set.Dim() {
			best, ok, err := set.Best(facematch.Normalize(face.Embedding))
			if err != nil {
				return nil, err
			}
			if ok && best.Score >= m.threshold {
				out.Matches = append(out.Matches, Match{
					PersonID:   best.PersonID,
					Confidence: best.Score,
					Margin:     best.Margin,
					Box:        facematch.ToBox(face.BBox),
				})
			}
		}
		out.Processed++

		if m.budget > 0 && m.now().Sub(start) >= m.budget {
			break
		}
	}
	return out, nil
}

// candidateSet loads and re-normalizes the embeddings allowed by cand.
func (m *Matcher) candidateSet(ctx context.Context, cand Candidates) (*facematch.CandidateSet, error) {
	ids, err := m.resolve(ctx, cand)
	if err != nil {
		return nil, err
	}

	stored, err := m.store.LoadEmbeddings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}

	set := facematch.NewCandidateSet(0, len(stored))
	for _, e := range stored {
		if err := set.Add(e.PersonID, e.Embedding); err != nil {
			// Rows of a foreign width cannot be compared; skip them.
			continue
		}
	}
	return set, nil
}

// resolve turns cand into a person id filter; nil means no filter.
func (m *Matcher) resolve(ctx context.Context, cand Candidates) ([]string, error) {
	if len(cand.PersonIDs) > 0 {
		return cand.PersonIDs, nil
	}
	if cand.GroupID == "" || m.groups == nil {
		return nil, nil
	}

	members, err := m.groups.MembersOf(ctx, cand.GroupID)
	if errors.Is(err, database.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", cand.GroupID, err)
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}
