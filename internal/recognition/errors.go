package recognition

import (
	"errors"
	"strings"

	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/quality"
)

var (
	// ErrServiceNotReady is returned before the extractor handle is initialized
	ErrServiceNotReady = extractor.ErrServiceNotReady
	// ErrNoFaceDetected is returned when enrollment finds no face
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrQualityTooLow is wrapped by *QualityError
	ErrQualityTooLow = errors.New("face quality too low")
	// ErrEmbeddingLimit is returned when the person already has the configured number of embeddings
	ErrEmbeddingLimit = database.ErrEmbeddingLimit
	// ErrInvalidEmbedding is returned when the extracted embedding has no direction
	ErrInvalidEmbedding = database.ErrInvalidEmbedding
	// ErrMissingPersonID is returned when enrollment has no person id
	ErrMissingPersonID = errors.New("person id is required")
)

// QualityError carries the assessment of a face that failed the quality gate.
type QualityError struct {
	Assessment quality.Assessment
}

func (e *QualityError) Error() string {
	if len(e.Assessment.Reasons) == 0 {
		return ErrQualityTooLow.Error()
	}
	return ErrQualityTooLow.Error() + ": " + strings.Join(e.Assessment.Reasons, ", ")
}

func (e *QualityError) Unwrap() error {
	return ErrQualityTooLow
}
