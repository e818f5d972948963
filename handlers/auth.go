package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/trakt"
)

// AuthHandler drives the Trakt device-code OAuth flow.
type AuthHandler struct {
	configManager *config.Manager
	traktClient   *trakt.Client
	tokens        *trakt.TokenStore

	mu        sync.Mutex
	device    *trakt.DeviceCodeResponse
	expiresAt time.Time
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(configManager *config.Manager, traktClient *trakt.Client, tokens *trakt.TokenStore) *AuthHandler {
	return &AuthHandler{
		configManager: configManager,
		traktClient:   traktClient,
		tokens:        tokens,
	}
}

// Start begins a device authorization. The user code and verification URL
// are returned for display; the frontend then polls until authorized.
// POST /api/auth/trakt/start
func (h *AuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	settings, err := h.configManager.Load()
	if err != nil {
		jsonError(w, "Failed to load settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if settings.Trakt.ClientID == "" || settings.Trakt.ClientSecret == "" {
		jsonError(w, "Trakt client ID and secret must be configured first", http.StatusBadRequest)
		return
	}

	h.traktClient.UpdateCredentials(settings.Trakt.ClientID, settings.Trakt.ClientSecret)

	device, err := h.traktClient.GetDeviceCode(r.Context())
	if err != nil {
		jsonError(w, "Failed to start device auth: "+err.Error(), http.StatusBadGateway)
		return
	}

	h.mu.Lock()
	h.device = device
	h.expiresAt = time.Now().Add(time.Duration(device.ExpiresIn) * time.Second)
	h.mu.Unlock()

	jsonResponse(w, map[string]interface{}{
		"user_code":        device.UserCode,
		"verification_url": device.VerificationURL,
		"expires_in":       device.ExpiresIn,
		"interval":         device.Interval,
	})
}

// Poll checks once whether the user has authorized the pending device code.
// POST /api/auth/trakt/poll
func (h *AuthHandler) Poll(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	device := h.device
	expiresAt := h.expiresAt
	h.mu.Unlock()

	if device == nil {
		jsonError(w, "No device authorization in progress", http.StatusBadRequest)
		return
	}
	if time.Now().After(expiresAt) {
		h.mu.Lock()
		h.device = nil
		h.mu.Unlock()
		jsonError(w, "Device code expired, start again", http.StatusGone)
		return
	}

	token, err := h.traktClient.PollForToken(r.Context(), device.DeviceCode)
	if err != nil {
		h.mu.Lock()
		h.device = nil
		h.mu.Unlock()
		jsonError(w, "Authorization failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	if token == nil {
		jsonResponse(w, map[string]string{"status": "pending"})
		return
	}

	if err := h.tokens.Save(token); err != nil {
		jsonError(w, "Failed to store token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.device = nil
	h.mu.Unlock()

	jsonResponse(w, map[string]string{"status": "authorized"})
}

// Status reports whether the app is authorized with Trakt.
// GET /api/auth/trakt/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]bool{"authorized": h.tokens.Authorized()})
}

// Logout discards the stored Trakt token.
// POST /api/auth/trakt/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Clear(); err != nil {
		jsonError(w, "Failed to clear token: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]bool{"success": true})
}
