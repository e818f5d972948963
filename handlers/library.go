package handlers

import (
	"net/http"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/library"
)

// LibraryHandler manages the cached library index.
type LibraryHandler struct {
	index *library.Index
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(index *library.Index) *LibraryHandler {
	return &LibraryHandler{index: index}
}

// Refresh drops all cached library snapshots so the next sync fetches
// fresh data.
// POST /api/library/refresh
func (h *LibraryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.index.Clear()
	jsonResponse(w, map[string]bool{"success": true})
}
