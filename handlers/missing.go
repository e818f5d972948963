package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/registry"
)

// MissingHandler exposes the unresolved and ignored registries.
type MissingHandler struct {
	registry *registry.Service
}

// NewMissingHandler creates a new missing-items handler.
func NewMissingHandler(reg *registry.Service) *MissingHandler {
	return &MissingHandler{registry: reg}
}

// List returns the unresolved registry.
// GET /api/missing
func (h *MissingHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.registry.Unresolved()
	jsonResponse(w, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// ListIgnored returns the ignored registry.
// GET /api/ignored
func (h *MissingHandler) ListIgnored(w http.ResponseWriter, r *http.Request) {
	items := h.registry.Ignored()
	jsonResponse(w, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func indexVar(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["index"])
}

// Ignore moves one unresolved item to the ignored registry.
// POST /api/missing/{index}/ignore
func (h *MissingHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	index, err := indexVar(r)
	if err != nil {
		jsonError(w, "Invalid index", http.StatusBadRequest)
		return
	}

	title, err := h.registry.Ignore(index)
	if errors.Is(err, registry.ErrInvalidIndex) {
		jsonError(w, "Invalid item index", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "Failed to ignore item: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"ignored": title})
}

// IgnoreMany moves multiple unresolved items to the ignored registry.
// POST /api/missing/ignore
func (h *MissingHandler) IgnoreMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Indices []int `json:"indices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	titles, failed, err := h.registry.IgnoreMany(req.Indices)
	if errors.Is(err, registry.ErrNoItemsSelected) {
		jsonError(w, "No valid items selected", http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, "Failed to ignore items: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"ignored": titles,
		"failed":  failed,
	})
}

// Unignore moves one ignored item back to the unresolved registry.
// POST /api/ignored/{index}/unignore
func (h *MissingHandler) Unignore(w http.ResponseWriter, r *http.Request) {
	index, err := indexVar(r)
	if err != nil {
		jsonError(w, "Invalid index", http.StatusBadRequest)
		return
	}

	title, err := h.registry.Unignore(index)
	if errors.Is(err, registry.ErrInvalidIndex) {
		jsonError(w, "Invalid item index", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "Failed to unignore item: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"unignored": title})
}

// Recheck re-attempts resolution of one unresolved item, optionally with a
// manually supplied Emby item id.
// POST /api/missing/{index}/recheck
func (h *MissingHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	index, err := indexVar(r)
	if err != nil {
		jsonError(w, "Invalid index", http.StatusBadRequest)
		return
	}

	var req struct {
		EmbyID string `json:"emby_id"`
	}
	if r.Body != nil {
		// Body is optional for automatic recheck.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	message, err := h.registry.Recheck(index, req.EmbyID)
	if errors.Is(err, registry.ErrInvalidIndex) {
		jsonError(w, "Invalid item index", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	jsonResponse(w, map[string]string{"message": message})
}

// Clear drops a collection's membership from every unresolved record.
// POST /api/missing/clear
func (h *MissingHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionName string `json:"collection_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CollectionName == "" {
		jsonError(w, "collection_name is required", http.StatusBadRequest)
		return
	}

	remaining, err := h.registry.ClearForCollection(req.CollectionName)
	if err != nil {
		jsonError(w, "Failed to clear items: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]int{"remaining": remaining})
}
