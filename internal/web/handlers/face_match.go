package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

// RecognizeRequest represents the request body for recognizing faces.
// FilterIDs takes precedence over GroupID.
type RecognizeRequest struct {
	Image     string   `json:"image"`
	FilterIDs []string `json:"filter_ids,omitempty"`
	GroupID   string   `json:"group_id,omitempty"`
}

// RecognizedFace is one accepted match
type RecognizedFace struct {
	PersonID   string        `json:"person_id"`
	PersonName string        `json:"person_name"`
	Confidence float64       `json:"confidence"`
	Margin     float64       `json:"margin"`
	Box        facematch.Box `json:"box"`
}

// RecognizeResponse lists matches; Processed is below Detected when the time budget ran out
type RecognizeResponse struct {
	Faces     []RecognizedFace `json:"faces"`
	Detected  int              `json:"detected"`
	Processed int              `json:"processed"`
}

// Recognize matches every face in the image against enrolled persons
func (h *FacesHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.FilterIDs) > constants.MaxFilterIDs {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("too many filter_ids (max %d)", constants.MaxFilterIDs))
		return
	}
	img := decodeImage(w, req.Image)
	if img == nil {
		return
	}

	faces, err := h.handle.DetectAndEmbed(r.Context(), img)
	if err != nil {
		respondInferenceError(w, "recognize", err)
		return
	}

	out, err := h.matcher.MatchFaces(r.Context(), faces, recognition.Candidates{
		PersonIDs: req.FilterIDs,
		GroupID:   req.GroupID,
	})
	if err != nil {
		log.Printf("Recognize failed (group %q): %v", sanitizeForLog(req.GroupID), err)
		respondError(w, http.StatusInternalServerError, "failed to match faces")
		return
	}

	names, err := h.personNames(r)
	if err != nil {
		log.Printf("Loading person names failed: %v", err)
	}

	resp := RecognizeResponse{
		Faces:     make([]RecognizedFace, len(out.Matches)),
		Detected:  out.Faces,
		Processed: out.Processed,
	}
	for i, m := range out.Matches {
		name := names[m.PersonID]
		if name == "" {
			name = m.PersonID
		}
		resp.Faces[i] = RecognizedFace{
			PersonID:   m.PersonID,
			PersonName: name,
			Confidence: m.Confidence,
			Margin:     m.Margin,
			Box:        m.Box,
		}
	}
	if out.Truncated() {
		log.Printf("Recognize time budget hit: %d of %d faces compared", out.Processed, out.Faces)
	}
	respondJSON(w, http.StatusOK, resp)
}

// personNames maps person ids to display names. Names are cosmetic, so a
// lookup failure degrades to ids.
func (h *FacesHandler) personNames(r *http.Request) (map[string]string, error) {
	persons, err := h.people.ListPersons(r.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}
	return names, nil
}

// SearchRequest represents the request body for nearest-embedding search
type SearchRequest struct {
	Image string `json:"image"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResult is one stored embedding near the query face
type SearchResult struct {
	EmbeddingID int64   `json:"embedding_id"`
	PersonID    string  `json:"person_id"`
	PersonName  string  `json:"person_name"`
	Similarity  float64 `json:"similarity"`
}

// Search returns the stored embeddings closest to the largest face, without a threshold
func (h *FacesHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = constants.DefaultSearchLimit
	}
	limit = min(limit, constants.MaxSearchLimit)

	img := decodeImage(w, req.Image)
	if img == nil {
		return
	}

	faces, err := h.handle.DetectAndEmbed(r.Context(), img)
	if err != nil {
		respondInferenceError(w, "search", err)
		return
	}
	idx := recognition.LargestFace(faces)
	if idx < 0 {
		respondError(w, http.StatusBadRequest, errNoFaceDetected)
		return
	}

	hits, err := h.searcher.FindNearest(r.Context(), facematch.Normalize(faces[idx].Embedding), limit)
	if err != nil {
		log.Printf("Nearest search failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to search embeddings")
		return
	}

	names, err := h.personNames(r)
	if err != nil {
		log.Printf("Loading person names failed: %v", err)
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		name := names[hit.PersonID]
		if name == "" {
			name = hit.PersonID
		}
		results[i] = SearchResult{
			EmbeddingID: hit.ID,
			PersonID:    hit.PersonID,
			PersonName:  name,
			Similarity:  hit.Similarity,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"box":     facematch.ToBox(faces[idx].BBox),
	})
}
