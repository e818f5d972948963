package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/emby"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/trakt"
)

// SettingsHandler manages application settings.
type SettingsHandler struct {
	configManager *config.Manager
	embyClient    *emby.Client
	traktClient   *trakt.Client
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(configManager *config.Manager, embyClient *emby.Client, traktClient *trakt.Client) *SettingsHandler {
	return &SettingsHandler{
		configManager: configManager,
		embyClient:    embyClient,
		traktClient:   traktClient,
	}
}

// Get returns the current settings with secrets masked.
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	settings.Trakt.ClientSecret = maskSecret(settings.Trakt.ClientSecret)
	settings.Emby.APIKey = maskSecret(settings.Emby.APIKey)

	jsonResponse(w, map[string]interface{}{
		"settings": settings,
		"missing":  settings.Validate(),
	})
}

// Update merges the submitted settings into the stored ones. Masked secret
// values are treated as unchanged.
// PUT /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Trakt    *config.TraktSettings    `json:"trakt"`
		Emby     *config.EmbySettings     `json:"emby"`
		Schedule *config.ScheduleSettings `json:"schedule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if req.Trakt != nil {
		if !isMasked(req.Trakt.ClientSecret) {
			settings.Trakt.ClientSecret = strings.TrimSpace(req.Trakt.ClientSecret)
		}
		settings.Trakt.ClientID = strings.TrimSpace(req.Trakt.ClientID)
	}
	if req.Emby != nil {
		if !isMasked(req.Emby.APIKey) {
			settings.Emby.APIKey = strings.TrimSpace(req.Emby.APIKey)
		}
		settings.Emby.ServerURL = strings.TrimSpace(req.Emby.ServerURL)
		settings.Emby.AdminUserID = strings.TrimSpace(req.Emby.AdminUserID)
		settings.Emby.MoviesLibraryID = strings.TrimSpace(req.Emby.MoviesLibraryID)
		settings.Emby.TVLibraryID = strings.TrimSpace(req.Emby.TVLibraryID)
	}
	if req.Schedule != nil {
		settings.Schedule = *req.Schedule
	}

	if err := h.configManager.Save(settings); err != nil {
		jsonError(w, "Failed to save settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Keep the live clients in step with the new settings.
	h.traktClient.UpdateCredentials(settings.Trakt.ClientID, settings.Trakt.ClientSecret)
	h.embyClient.UpdateCredentials(settings.Emby.ServerURL, settings.Emby.APIKey)

	jsonResponse(w, map[string]interface{}{
		"success": true,
		"missing": settings.Validate(),
	})
}

// TestEmby verifies connectivity to the configured Emby server.
// POST /api/settings/test/emby
func (h *SettingsHandler) TestEmby(w http.ResponseWriter, r *http.Request) {
	info, err := h.embyClient.GetSystemInfo()
	if err != nil {
		jsonError(w, "Emby connection failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"success": true,
		"server":  info,
	})
}

const secretMask = "********"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return secretMask
}

func isMasked(s string) bool {
	return s == "" || s == secretMask
}
