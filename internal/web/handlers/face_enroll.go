package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/omri0111-web/facepace-public/internal/quality"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

// EnrollRequest represents the request body for enrolling a face
type EnrollRequest struct {
	PersonID   string `json:"person_id"`
	PersonName string `json:"person_name"`
	Image      string `json:"image"`
}

// EnrollResponse is returned for a stored embedding
type EnrollResponse struct {
	Status      string          `json:"status"`
	PersonID    string          `json:"person_id"`
	EmbeddingID int64           `json:"embedding_id"`
	Metrics     quality.Metrics `json:"metrics"`
	Reasons     []string        `json:"reasons"`
}

// QualityErrorResponse is returned when the quality gate rejects a face
type QualityErrorResponse struct {
	Error   string          `json:"error"`
	Metrics quality.Metrics `json:"metrics"`
	Reasons []string        `json:"reasons"`
}

// Enroll stores the embedding of the largest face in the image
func (h *FacesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PersonID == "" {
		respondError(w, http.StatusBadRequest, "person_id is required")
		return
	}
	img := decodeImage(w, req.Image)
	if img == nil {
		return
	}

	res, err := h.enroller.Enroll(r.Context(), img, req.PersonID, req.PersonName)
	if err != nil {
		var qe *recognition.QualityError
		switch {
		case errors.As(err, &qe):
			respondJSON(w, http.StatusBadRequest, QualityErrorResponse{
				Error:   "Face quality too low",
				Metrics: qe.Assessment.Metrics,
				Reasons: qe.Assessment.Reasons,
			})
		case errors.Is(err, recognition.ErrNoFaceDetected):
			respondError(w, http.StatusBadRequest, errNoFaceDetected)
		case errors.Is(err, recognition.ErrMissingPersonID):
			respondError(w, http.StatusBadRequest, "person_id is required")
		case errors.Is(err, recognition.ErrInvalidEmbedding):
			respondError(w, http.StatusBadRequest, "invalid face embedding, try another photo")
		case errors.Is(err, recognition.ErrEmbeddingLimit):
			respondError(w, http.StatusConflict, "maximum embeddings per person reached")
		case errors.Is(err, recognition.ErrServiceNotReady):
			respondError(w, http.StatusServiceUnavailable, errServiceNotReady)
		default:
			log.Printf("Enroll %s failed: %v", sanitizeForLog(req.PersonID), err)
			respondError(w, http.StatusInternalServerError, "failed to enroll face")
		}
		return
	}

	log.Printf("Enrolled embedding %d for %s", res.EmbeddingID, sanitizeForLog(res.PersonID))
	respondJSON(w, http.StatusOK, EnrollResponse{
		Status:      "enrolled",
		PersonID:    res.PersonID,
		EmbeddingID: res.EmbeddingID,
		Metrics:     res.Assessment.Metrics,
		Reasons:     res.Assessment.Reasons,
	})
}

// ValidateFaceResponse combines the enrollment gate result with the advisory
// photo rating. Assessment is nil when no face was found.
type ValidateFaceResponse struct {
	FaceCount int `json:"face_count"`
	*quality.Assessment
	quality.Rating
}

// ValidateFace checks whether a photo would be accepted for enrollment without storing anything
func (h *FacesHandler) ValidateFace(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	img := decodeImage(w, req.Image)
	if img == nil {
		return
	}

	faces, err := h.handle.DetectAndEmbed(r.Context(), img)
	if err != nil {
		respondInferenceError(w, "validate face", err)
		return
	}

	idx := recognition.LargestFace(faces)
	if idx < 0 {
		respondJSON(w, http.StatusOK, ValidateFaceResponse{Rating: quality.NoFaceRating()})
		return
	}

	face := faces[idx]
	assessment := quality.Assess(img, face.BBox, face.Landmarks, h.config.Quality)
	respondJSON(w, http.StatusOK, ValidateFaceResponse{
		FaceCount:  len(faces),
		Assessment: &assessment,
		Rating:     quality.Rate(face.BBox, img.Bounds(), face.Landmarks),
	})
}
