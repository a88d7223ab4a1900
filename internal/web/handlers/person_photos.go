package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/photos"
)

// UploadPhotoResponse is returned for a stored photo
type UploadPhotoResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

func photoURL(personID, filename string) string {
	return "/api/v1/people/" + personID + "/photos/" + filename
}

// UploadPhoto stores a downscaled JPEG copy of an image for a person
func (h *PeopleHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	img := decodeImage(w, req.Image)
	if img == nil {
		return
	}

	person, err := h.store.GetPerson(r.Context(), id)
	if err != nil {
		log.Printf("Loading person %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if person == nil {
		respondError(w, http.StatusNotFound, errPersonNotFound)
		return
	}

	filename, err := h.photos.Save(id, img)
	if errors.Is(err, photos.ErrInvalidName) {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}
	if err != nil {
		log.Printf("Saving photo for %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to save photo")
		return
	}

	if err := h.store.AddPhoto(r.Context(), id, filename); err != nil {
		if res := h.photos.Remove(id, filename); !res.OK() {
			log.Printf("Photo rollback: %s", res)
		}
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, errPersonNotFound)
			return
		}
		log.Printf("Recording photo for %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to save photo")
		return
	}

	respondJSON(w, http.StatusOK, UploadPhotoResponse{
		Status:   "ok",
		Filename: filename,
		Path:     photoURL(id, filename),
	})
}

// GetPhoto serves a stored photo
func (h *PeopleHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "filename")

	f, err := h.photos.Open(id, filename)
	switch {
	case errors.Is(err, photos.ErrInvalidName):
		respondError(w, http.StatusBadRequest, "invalid photo path")
		return
	case errors.Is(err, photos.ErrNotFound):
		respondError(w, http.StatusNotFound, "photo not found")
		return
	case err != nil:
		log.Printf("Opening photo %s/%s failed: %v", sanitizeForLog(id), sanitizeForLog(filename), err)
		respondError(w, http.StatusInternalServerError, "failed to read photo")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read photo")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, filename, stat.ModTime(), f)
}

// DeletePhoto removes a photo record and its file
func (h *PeopleHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "filename")
	if _, err := h.photos.Path(id, filename); err != nil {
		respondError(w, http.StatusBadRequest, "invalid photo path")
		return
	}

	existed, err := h.store.RemovePhoto(r.Context(), id, filename)
	if err != nil {
		log.Printf("Removing photo record %s/%s failed: %v", sanitizeForLog(id), sanitizeForLog(filename), err)
		respondError(w, http.StatusInternalServerError, "failed to delete photo")
		return
	}

	res := h.photos.Remove(id, filename)
	if !res.OK() {
		log.Printf("Photo cleanup: %s", res)
	}
	if !existed && !res.Removed {
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
