package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
)

// ListsHandler manages the configured Trakt lists.
type ListsHandler struct {
	configManager *config.Manager
}

// NewListsHandler creates a new lists handler.
func NewListsHandler(configManager *config.Manager) *ListsHandler {
	return &ListsHandler{configManager: configManager}
}

type listRequest struct {
	ListID         string `json:"list_id"`
	CollectionName string `json:"collection_name"`
	LibraryID      string `json:"library_id"`
	Type           string `json:"type"`
}

func (req listRequest) validate() string {
	if strings.TrimSpace(req.ListID) == "" {
		return "list_id is required"
	}
	if strings.TrimSpace(req.CollectionName) == "" {
		return "collection_name is required"
	}
	return ""
}

// List returns all configured lists.
// GET /api/lists
func (h *ListsHandler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{"lists": settings.Lists})
}

// Create adds a new list configuration.
// POST /api/lists
func (h *ListsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	newList := config.ListConfig{
		ID:             uuid.NewString(),
		ListID:         strings.TrimSpace(req.ListID),
		CollectionName: strings.TrimSpace(req.CollectionName),
		LibraryID:      strings.TrimSpace(req.LibraryID),
		Type:           strings.TrimSpace(req.Type),
	}
	settings.Lists = append(settings.Lists, newList)

	if err := h.configManager.Save(settings); err != nil {
		jsonError(w, "Failed to save settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{"success": true, "list": newList})
}

// Update replaces an existing list configuration.
// PUT /api/lists/{id}
func (h *ListsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	list := settings.GetListByID(id)
	if list == nil {
		jsonError(w, "List not found", http.StatusNotFound)
		return
	}

	list.ListID = strings.TrimSpace(req.ListID)
	list.CollectionName = strings.TrimSpace(req.CollectionName)
	list.LibraryID = strings.TrimSpace(req.LibraryID)
	list.Type = strings.TrimSpace(req.Type)

	if err := h.configManager.Save(settings); err != nil {
		jsonError(w, "Failed to save settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{"success": true, "list": list})
}

// Delete removes a list configuration.
// DELETE /api/lists/{id}
func (h *ListsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	found := false
	kept := settings.Lists[:0]
	for _, l := range settings.Lists {
		if l.ID == id {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		jsonError(w, "List not found", http.StatusNotFound)
		return
	}
	settings.Lists = kept

	if err := h.configManager.Save(settings); err != nil {
		jsonError(w, "Failed to save settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]bool{"success": true})
}
