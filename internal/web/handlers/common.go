package handlers

import (
	"encoding/json"
	"errors"
	"image"
	"log"
	"net/http"
	"strings"

	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/imageio"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// Shared error messages.
const (
	errServiceNotReady = "Service not initialized"
	errNoFaceDetected  = "No face detected"
	errInvalidImage    = "invalid image"
	errImageRequired   = "image is required"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into dst. On failure it writes a
// 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// decodeImage decodes a base64 or data URL image field. On failure it writes a
// 400 response and returns nil.
func decodeImage(w http.ResponseWriter, encoded string) image.Image {
	if strings.TrimSpace(encoded) == "" {
		respondError(w, http.StatusBadRequest, errImageRequired)
		return nil
	}
	img, err := imageio.DecodeBase64(encoded)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidImage)
		return nil
	}
	return img
}

// respondInferenceError maps extractor failures to a status code.
func respondInferenceError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, extractor.ErrServiceNotReady) {
		respondError(w, http.StatusServiceUnavailable, errServiceNotReady)
		return
	}
	log.Printf("%s failed: %v", action, err)
	respondError(w, http.StatusInternalServerError, "face inference failed")
}
