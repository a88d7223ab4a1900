package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

const errGroupNotFound = "group not found"

// GroupsHandler handles group and membership endpoints.
// Membership writes drop the group's cached member list.
type GroupsHandler struct {
	store database.GroupWriter
	cache *recognition.GroupCache
}

// NewGroupsHandler creates a new groups handler
func NewGroupsHandler(store database.GroupWriter, cache *recognition.GroupCache) *GroupsHandler {
	return &GroupsHandler{store: store, cache: cache}
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	GroupID   string   `json:"group_id"`
	GroupName string   `json:"group_name"`
	GuideID   string   `json:"guide_id"`
	Members   []string `json:"members"`
}

func groupToResponse(g database.Group) GroupResponse {
	resp := GroupResponse{
		GroupID:   g.ID,
		GroupName: g.Name,
		GuideID:   g.GuideID,
		Members:   g.Members,
	}
	if resp.Members == nil {
		resp.Members = []string{}
	}
	return resp
}

// List returns all groups with members and guide
func (h *GroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		log.Printf("Listing groups failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	out := make([]GroupResponse, len(groups))
	for i := range groups {
		out[i] = groupToResponse(groups[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{"groups": out})
}

// GroupCreateRequest represents the request body for creating a group
type GroupCreateRequest struct {
	GroupID   string `json:"group_id,omitempty"`
	GroupName string `json:"group_name"`
	GuideID   string `json:"guide_id,omitempty"`
}

// Create creates a group or replaces its name and guide
func (h *GroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req GroupCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.GroupName = strings.TrimSpace(req.GroupName)
	if req.GroupName == "" {
		respondError(w, http.StatusBadRequest, "group_name is required")
		return
	}
	if req.GroupID = strings.TrimSpace(req.GroupID); req.GroupID == "" {
		req.GroupID = uuid.NewString()
	}

	g := database.Group{ID: req.GroupID, Name: req.GroupName, GuideID: req.GuideID}
	if err := h.store.SaveGroup(r.Context(), g); err != nil {
		log.Printf("Saving group %s failed: %v", sanitizeForLog(req.GroupID), err)
		respondError(w, http.StatusInternalServerError, "failed to save group")
		return
	}
	h.respondGroup(w, r, req.GroupID, http.StatusCreated)
}

// GroupUpdateRequest represents the request body for updating a group
type GroupUpdateRequest struct {
	GroupName *string `json:"group_name,omitempty"`
	GuideID   *string `json:"guide_id,omitempty"`
}

// Update changes the name and/or guide of a group
func (h *GroupsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	var req GroupUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.GroupName != nil && strings.TrimSpace(*req.GroupName) == "" {
		respondError(w, http.StatusBadRequest, "group_name must not be empty")
		return
	}

	err := h.store.UpdateGroup(r.Context(), id, database.GroupUpdate{Name: req.GroupName, GuideID: req.GuideID})
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, errGroupNotFound)
		return
	}
	if err != nil {
		log.Printf("Updating group %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to update group")
		return
	}
	h.respondGroup(w, r, id, http.StatusOK)
}

func (h *GroupsHandler) respondGroup(w http.ResponseWriter, r *http.Request, id string, status int) {
	g, err := h.store.GetGroup(r.Context(), id)
	if err != nil || g == nil {
		respondJSON(w, status, map[string]string{"status": "ok", "group_id": id})
		return
	}
	respondJSON(w, status, groupToResponse(*g))
}

// Delete removes a group and its memberships
func (h *GroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	deleted, err := h.store.DeleteGroup(r.Context(), id)
	if err != nil {
		log.Printf("Deleting group %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to delete group")
		return
	}
	h.cache.Invalidate(id)
	if !deleted {
		respondError(w, http.StatusNotFound, errGroupNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MemberRequest represents the request body for adding a group member
type MemberRequest struct {
	PersonID string `json:"person_id"`
}

// AddMember adds a person to a group. Adding an existing member is a no-op.
func (h *GroupsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	var req MemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PersonID == "" {
		respondError(w, http.StatusBadRequest, "person_id is required")
		return
	}

	err := h.store.AddMember(r.Context(), id, req.PersonID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "group or person not found")
		return
	}
	if err != nil {
		log.Printf("Adding %s to group %s failed: %v", sanitizeForLog(req.PersonID), sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	h.cache.Invalidate(id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveMember removes a person from a group
func (h *GroupsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	personID := chi.URLParam(r, "personID")
	if id == "" || personID == "" {
		respondError(w, http.StatusBadRequest, "group id and person id are required")
		return
	}

	removed, err := h.store.RemoveMember(r.Context(), id, personID)
	if err != nil {
		log.Printf("Removing %s from group %s failed: %v", sanitizeForLog(personID), sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	h.cache.Invalidate(id)
	if !removed {
		respondError(w, http.StatusNotFound, "member not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
