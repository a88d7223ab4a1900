package recognition

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"github.com/omri0111-web/facepace-public/internal/quality"
)

// EnrollmentResult describes a stored embedding.
type EnrollmentResult struct {
	PersonID    string
	EmbeddingID int64
	Face        extractor.Face // selected face, embedding normalized
	Assessment  quality.Assessment
}

// Enroller runs extraction, face selection, the quality gate and the store write.
type Enroller struct {
	extractor    extractor.FaceExtractor
	store        database.EmbeddingWriter
	quality      config.QualityConfig
	maxPerPerson int
	now          func() time.Time
}

// NewEnroller creates an enrollment pipeline. maxPerPerson caps embeddings per
// person; 0 disables the cap.
func NewEnroller(ext extractor.FaceExtractor, store database.EmbeddingWriter, th config.QualityConfig, maxPerPerson int) *Enroller {
	return &Enroller{
		extractor:    ext,
		store:        store,
		quality:      th,
		maxPerPerson: max(maxPerPerson, 0),
		now:          time.Now,
	}
}

// MaxPerPerson returns the configured cap.
func (e *Enroller) MaxPerPerson() int {
	return e.maxPerPerson
}

// Enroll stores the largest face of img under personID. The person is created
// with personName when absent; an existing name is never changed here.
// Nothing is written when detection or the quality gate fails.
func (e *Enroller) Enroll(ctx context.Context, img image.Image, personID, personName string) (*EnrollmentResult, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return nil, ErrMissingPersonID
	}
	if strings.TrimSpace(personName) == "" {
		personName = personID
	}

	faces, err := e.extractor.DetectAndEmbed(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	idx := LargestFace(faces)
	if idx < 0 {
		return nil, ErrNoFaceDetected
	}

	face := faces[idx]
	if n := facematch.Norm(face.Embedding); n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("%w: face embedding norm is %v", ErrInvalidEmbedding, n)
	}
	face.Embedding = facematch.Normalize(face.Embedding)

	assessment := quality.Assess(img, face.BBox, face.Landmarks, e.quality)
	if !assessment.Passed {
		return nil, &QualityError{Assessment: assessment}
	}

	id, err := e.store.EnrollEmbedding(ctx, personID, personName, face.Embedding, e.now().UTC(), e.maxPerPerson)
	if err != nil {
		return nil, fmt.Errorf("store embedding: %w", err)
	}

	return &EnrollmentResult{
		PersonID:    personID,
		EmbeddingID: id,
		Face:        face,
		Assessment:  assessment,
	}, nil
}
