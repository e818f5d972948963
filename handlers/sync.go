package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/scheduler"
	syncsvc "github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/sync"
)

// progressSnapshot is the latest progress update from a running sync.
type progressSnapshot struct {
	Fraction  float64   `json:"fraction"`
	ListName  string    `json:"list_name,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncHandler exposes sync triggering and status.
type SyncHandler struct {
	configManager *config.Manager
	engine        *syncsvc.Engine
	scheduler     *scheduler.Service

	mu       sync.Mutex
	progress *progressSnapshot
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(configManager *config.Manager, engine *syncsvc.Engine, sched *scheduler.Service) *SyncHandler {
	return &SyncHandler{
		configManager: configManager,
		engine:        engine,
		scheduler:     sched,
	}
}

func (h *SyncHandler) recordProgress(fraction float64, listName string, processed, total int, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = &progressSnapshot{
		Fraction:  fraction,
		ListName:  listName,
		Processed: processed,
		Total:     total,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}
}

// Trigger starts a full sync of all configured lists in the background.
// POST /api/sync
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.engine.Running() {
		jsonError(w, "A sync is already running", http.StatusConflict)
		return
	}

	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if missing := settings.Validate(); len(missing) > 0 {
		jsonError(w, "Missing required settings", http.StatusBadRequest)
		return
	}

	go func() {
		// Errors are captured in the engine status for the UI.
		_, _ = h.engine.SyncAll(context.Background(), settings, h.recordProgress)
	}()

	jsonResponse(w, map[string]string{"status": "started"})
}

// TriggerList starts a sync of a single configured list.
// POST /api/sync/lists/{id}
func (h *SyncHandler) TriggerList(w http.ResponseWriter, r *http.Request) {
	listID := mux.Vars(r)["id"]

	if h.engine.Running() {
		jsonError(w, "A sync is already running", http.StatusConflict)
		return
	}

	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	listCfg := settings.GetListByID(listID)
	if listCfg == nil {
		jsonError(w, "List not found", http.StatusNotFound)
		return
	}

	cfg := *listCfg
	go func() {
		_, _ = h.engine.SyncList(context.Background(), settings, cfg, h.recordProgress)
	}()

	jsonResponse(w, map[string]string{"status": "started"})
}

// Status reports the engine state, the latest progress update and the next
// scheduled run.
// GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	progress := h.progress
	h.mu.Unlock()

	resp := map[string]interface{}{
		"engine": h.engine.Status(),
	}
	if progress != nil {
		resp["progress"] = progress
	}
	if h.scheduler != nil {
		if next := h.scheduler.NextRun(); !next.IsZero() {
			resp["next_run"] = next
		}
	}
	jsonResponse(w, resp)
}
