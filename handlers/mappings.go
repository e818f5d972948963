package handlers

import (
	"net/http"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/mappings"
)

// MappingsHandler exposes the persisted resolution mappings.
type MappingsHandler struct {
	mappings *mappings.Service
}

// NewMappingsHandler creates a new mappings handler.
func NewMappingsHandler(svc *mappings.Service) *MappingsHandler {
	return &MappingsHandler{mappings: svc}
}

// List returns all stored mappings, newest first.
// GET /api/mappings
func (h *MappingsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.mappings.All()
	if err != nil {
		jsonError(w, "Failed to load mappings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"mappings": records,
		"count":    len(records),
	})
}

// Count returns the number of stored mappings.
// GET /api/mappings/count
func (h *MappingsHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.mappings.Count()
	if err != nil {
		jsonError(w, "Failed to count mappings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]int{"count": count})
}
