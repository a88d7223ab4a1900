// Package handlers provides HTTP handlers for the web API.
// This file contains the FacesHandler struct and constructor.
// Handler methods are organized in separate files:
//   - faces.go: model lifecycle and plain detection (Health, Init, Detect, ProcessVideoFrame)
//   - face_enroll.go: enrollment and photo checks (Enroll, ValidateFace)
//   - face_match.go: recognition and nearest-embedding search (Recognize, Search)
package handlers

import (
	"log"
	"net/http"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

// FacesHandler handles endpoints that run the face model
type FacesHandler struct {
	config   *config.Config
	handle   *extractor.Handle
	enroller *recognition.Enroller
	matcher  *recognition.Matcher
	people   database.PersonReader
	searcher database.NearestSearcher
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(cfg *config.Config, handle *extractor.Handle, enroller *recognition.Enroller, matcher *recognition.Matcher, store database.Store) *FacesHandler {
	return &FacesHandler{
		config:   cfg,
		handle:   handle,
		enroller: enroller,
		matcher:  matcher,
		people:   store,
		searcher: store,
	}
}

// HealthResponse reports server and model state
type HealthResponse struct {
	Status    string `json:"status"`
	Extractor string `json:"extractor"`
	ModelPack string `json:"model_pack,omitempty"`
}

// Health handles the health check endpoint.
func (h *FacesHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Extractor: constants.ExtractorNotReady}
	if h.handle.Ready() {
		resp.Extractor = constants.ExtractorReady
		resp.ModelPack = h.handle.Options().ModelPack
	}
	respondJSON(w, http.StatusOK, resp)
}

// Init prepares the face model. The body is optional; missing fields fall back to config.
func (h *FacesHandler) Init(w http.ResponseWriter, r *http.Request) {
	opts := extractor.InitOptions{
		ModelPack: h.config.Embedding.ModelPack,
		DetWidth:  h.config.Embedding.DetWidth,
		DetHeight: h.config.Embedding.DetHeight,
	}
	if r.ContentLength != 0 {
		var req extractor.InitOptions
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ModelPack != "" {
			opts.ModelPack = req.ModelPack
		}
		if req.DetWidth > 0 {
			opts.DetWidth = req.DetWidth
		}
		if req.DetHeight > 0 {
			opts.DetHeight = req.DetHeight
		}
	}

	if err := h.handle.Init(r.Context(), opts); err != nil {
		log.Printf("Face service init failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to initialize face service: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "ready",
		"model_pack": h.handle.Options().ModelPack,
	})
}

// ImageRequest is the body of endpoints that only take an image
type ImageRequest struct {
	Image string `json:"image"`
}

// Detect returns the boxes of all faces in the image
func (h *FacesHandler) Detect(w http.ResponseWriter, r *http.Request) {
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
		respondInferenceError(w, "detect", err)
		return
	}

	boxes := make([]facematch.Box, len(faces))
	for i := range faces {
		boxes[i] = facematch.ToBox(faces[i].BBox)
	}
	respondJSON(w, http.StatusOK, map[string]any{"boxes": boxes})
}

// VideoFrameRequest is one frame of an uploaded video
type VideoFrameRequest struct {
	Image     string  `json:"image"`
	Timestamp float64 `json:"timestamp"` // seconds from the start of the video
}

// FrameFace is a detected box tagged with its frame timestamp
type FrameFace struct {
	facematch.Box
	Timestamp float64 `json:"timestamp"`
}

// ProcessVideoFrame detects faces in one video frame
func (h *FacesHandler) ProcessVideoFrame(w http.ResponseWriter, r *http.Request) {
	var req VideoFrameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	img := decodeImage(w, req.Image)
	if img == nil {
		return
	}

	faces, err := h.handle.DetectAndEmbed(r.Context(), img)
	if err != nil {
		respondInferenceError(w, "video frame", err)
		return
	}

	out := make([]FrameFace, len(faces))
	for i := range faces {
		out[i] = FrameFace{Box: facematch.ToBox(faces[i].BBox), Timestamp: req.Timestamp}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"faces":     out,
		"timestamp": req.Timestamp,
	})
}
