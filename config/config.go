package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrStorageDirRequired = errors.New("storage directory not provided")

// ListConfig describes one Trakt list to mirror into an Emby collection.
type ListConfig struct {
	ID             string `json:"id"`
	ListID         string `json:"list_id"`
	CollectionName string `json:"collection_name"`
	LibraryID      string `json:"library_id"`
	Type           string `json:"type"` // "movies" or "shows"
}

// TraktSettings holds the Trakt application credentials.
type TraktSettings struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// EmbySettings holds the Emby server connection details.
type EmbySettings struct {
	ServerURL       string `json:"server_url"`
	APIKey          string `json:"api_key"`
	AdminUserID     string `json:"admin_user_id"`
	MoviesLibraryID string `json:"movies_library_id,omitempty"`
	TVLibraryID     string `json:"tv_library_id,omitempty"`
}

// ScheduleSettings controls the background sync loop.
type ScheduleSettings struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`  // 6h, 12h, 1d, 1w, 2w, 1m, 1min
	SyncTime string `json:"sync_time"` // HH:MM, for daily and longer intervals
	SyncDay  string `json:"sync_day"`  // weekday name, for weekly intervals
	SyncDate int    `json:"sync_date"` // day of month 1-28, for monthly
}

// Settings is the full application configuration. It is loaded as a
// snapshot at defined points (run start, explicit reload) and never
// re-read mid-operation.
type Settings struct {
	Trakt    TraktSettings    `json:"trakt"`
	Emby     EmbySettings     `json:"emby"`
	Lists    []ListConfig     `json:"lists"`
	Schedule ScheduleSettings `json:"schedule"`
}

// Validate returns the names of required settings that are missing.
// Credentials and the server connection must be present before any sync.
func (s Settings) Validate() []string {
	var missing []string
	if strings.TrimSpace(s.Trakt.ClientID) == "" {
		missing = append(missing, "trakt.client_id")
	}
	if strings.TrimSpace(s.Trakt.ClientSecret) == "" {
		missing = append(missing, "trakt.client_secret")
	}
	if strings.TrimSpace(s.Emby.ServerURL) == "" {
		missing = append(missing, "emby.server_url")
	}
	if strings.TrimSpace(s.Emby.APIKey) == "" {
		missing = append(missing, "emby.api_key")
	}
	if strings.TrimSpace(s.Emby.AdminUserID) == "" {
		missing = append(missing, "emby.admin_user_id")
	}
	return missing
}

// GetListByID returns the configured list with the given ID, or nil.
func (s *Settings) GetListByID(id string) *ListConfig {
	for i := range s.Lists {
		if s.Lists[i].ID == id {
			return &s.Lists[i]
		}
	}
	return nil
}

// Manager persists Settings to a JSON file.
type Manager struct {
	mu   sync.RWMutex
	path string
}

// NewManager creates a settings manager storing data inside the provided
// directory.
func NewManager(storageDir string) (*Manager, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return &Manager{path: filepath.Join(storageDir, "settings.json")}, nil
}

// Load reads the settings file. A missing or empty file yields defaults.
func (m *Manager) Load() (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings := defaultSettings()

	file, err := os.Open(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("open settings: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if len(data) == 0 {
		return settings, nil
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

// Save writes the settings file atomically via a temp file and rename.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmp := m.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create settings temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(settings); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync settings: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close settings temp file: %w", err)
	}

	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

func defaultSettings() Settings {
	return Settings{
		Schedule: ScheduleSettings{
			Interval: "6h",
			SyncTime: "00:00",
			SyncDay:  "Monday",
			SyncDate: 1,
		},
	}
}
