package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/photos"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

const errPersonNotFound = "person not found"

// PeopleHandler handles person and person photo endpoints
type PeopleHandler struct {
	store  database.PersonWriter
	photos *photos.Store
	groups *recognition.GroupCache
}

// NewPeopleHandler creates a new people handler
func NewPeopleHandler(store database.PersonWriter, photoStore *photos.Store, groups *recognition.GroupCache) *PeopleHandler {
	return &PeopleHandler{
		store:  store,
		photos: photoStore,
		groups: groups,
	}
}

// PersonResponse represents a person in API responses
type PersonResponse struct {
	PersonID       string   `json:"person_id"`
	PersonName     string   `json:"person_name"`
	PhotoPaths     []string `json:"photo_paths"`
	EmbeddingCount int      `json:"embedding_count"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

func personToResponse(p database.Person) PersonResponse {
	resp := PersonResponse{
		PersonID:       p.ID,
		PersonName:     p.Name,
		PhotoPaths:     p.Photos,
		EmbeddingCount: p.EmbeddingCount,
	}
	if resp.PhotoPaths == nil {
		resp.PhotoPaths = []string{}
	}
	if !p.CreatedAt.IsZero() {
		resp.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func personsToResponse(persons []database.Person) []PersonResponse {
	if len(persons) > constants.DefaultPeopleListLimit {
		persons = persons[:constants.DefaultPeopleListLimit]
	}
	out := make([]PersonResponse, len(persons))
	for i := range persons {
		out[i] = personToResponse(persons[i])
	}
	return out
}

// List returns all persons ordered by name
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	persons, err := h.store.ListPersons(r.Context())
	if err != nil {
		log.Printf("Listing persons failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list people")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"people": personsToResponse(persons)})
}

// Search finds persons by name, ignoring case and diacritics
func (h *PeopleHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	persons, err := h.store.SearchPersons(r.Context(), q)
	if err != nil {
		log.Printf("Searching persons for %q failed: %v", sanitizeForLog(q), err)
		respondError(w, http.StatusInternalServerError, "failed to search people")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"people": personsToResponse(persons)})
}

// PersonRequest represents the request body for creating or renaming a person
type PersonRequest struct {
	PersonID   string `json:"person_id,omitempty"`
	PersonName string `json:"person_name"`
}

// Create creates a person or renames an existing one. A missing id is generated.
func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req PersonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.PersonName = strings.TrimSpace(req.PersonName)
	if req.PersonName == "" {
		respondError(w, http.StatusBadRequest, "person_name is required")
		return
	}
	if req.PersonID = strings.TrimSpace(req.PersonID); req.PersonID == "" {
		req.PersonID = uuid.NewString()
	}

	if err := h.store.UpsertPerson(r.Context(), req.PersonID, req.PersonName); err != nil {
		log.Printf("Saving person %s failed: %v", sanitizeForLog(req.PersonID), err)
		respondError(w, http.StatusInternalServerError, "failed to save person")
		return
	}

	person, err := h.store.GetPerson(r.Context(), req.PersonID)
	if err != nil || person == nil {
		respondJSON(w, http.StatusOK, PersonResponse{PersonID: req.PersonID, PersonName: req.PersonName, PhotoPaths: []string{}})
		return
	}
	respondJSON(w, http.StatusOK, personToResponse(*person))
}

// Get returns a single person with photos and embedding count
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
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
	respondJSON(w, http.StatusOK, personToResponse(*person))
}

// Delete removes a person with embeddings, memberships and photos
func (h *PeopleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	filenames, err := h.store.DeletePerson(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, errPersonNotFound)
		return
	}
	if err != nil {
		log.Printf("Deleting person %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to delete person")
		return
	}
	// Memberships went with the person.
	h.groups.InvalidateAll()

	res := h.photos.RemoveAll(id)
	if !res.OK() {
		log.Printf("Photo cleanup for %s: %s", sanitizeForLog(id), res)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"photos_removed": len(filenames),
	})
}
