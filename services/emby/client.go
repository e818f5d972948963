package emby

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
)

// Client handles Emby API interactions: library browsing, collection
// management and item lookup.
type Client struct {
	httpClient *http.Client
	serverURL  string
	apiKey     string
}

// SystemInfo represents the response from /System/Info.
type SystemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
	ID         string `json:"Id"`
}

// itemsResponse is the envelope Emby wraps item queries in.
type itemsResponse struct {
	Items            []models.LibraryItem `json:"Items"`
	TotalRecordCount int                  `json:"TotalRecordCount"`
}

// createdResponse is the body returned by collection creation endpoints.
type createdResponse struct {
	ID string `json:"Id"`
}

// NewClient creates a new Emby API client for the given server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serverURL:  strings.TrimRight(serverURL, "/"),
		apiKey:     apiKey,
	}
}

// UpdateCredentials points the client at a different server or key.
func (c *Client) UpdateCredentials(serverURL, apiKey string) {
	c.serverURL = strings.TrimRight(serverURL, "/")
	c.apiKey = apiKey
}

func (c *Client) setEmbyHeaders(req *http.Request) {
	req.Header.Set("X-Emby-Token", c.apiKey)
}

// GetSystemInfo verifies connectivity and authentication with the server.
func (c *Client) GetSystemInfo() (*SystemInfo, error) {
	req, err := http.NewRequest(http.MethodGet, c.serverURL+"/System/Info", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setEmbyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emby api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("emby authentication failed: check API key")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("emby system info failed: %s - %s", resp.Status, string(respBody))
	}

	var info SystemInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

// GetLibraryItems fetches every item of the given kind in a library,
// including the provider id map, file path and production year needed for
// matching.
func (c *Client) GetLibraryItems(kind models.MediaKind, libraryID string) ([]models.LibraryItem, error) {
	params := url.Values{}
	params.Set("IncludeItemTypes", kind.EmbyItemType())
	params.Set("ParentId", libraryID)
	params.Set("Recursive", "true")
	params.Set("Fields", "ProviderIds,Path,ProductionYear")
	params.Set("EnableImages", "false")

	req, err := http.NewRequest(http.MethodGet, c.serverURL+"/Items?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setEmbyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emby api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("emby library fetch failed: %s - %s", resp.Status, string(respBody))
	}

	var items itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return items.Items, nil
}

// GetItem fetches a single item by id, used to verify manually supplied
// item ids. Returns nil, nil when the id does not exist on the server.
func (c *Client) GetItem(itemID string) (*models.LibraryItem, error) {
	req, err := http.NewRequest(http.MethodGet, c.serverURL+"/Items/"+url.PathEscape(itemID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setEmbyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emby api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("emby item lookup failed: %s - %s", resp.Status, string(respBody))
	}

	var item models.LibraryItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &item, nil
}

// FindCollectionByName searches the server's BoxSet items for an exact
// case-insensitive name match. Returns an empty id when none exists.
func (c *Client) FindCollectionByName(name string) (string, error) {
	params := url.Values{}
	params.Set("IncludeItemTypes", "BoxSet")
	params.Set("Recursive", "true")
	params.Set("Fields", "Name,Id")

	req, err := http.NewRequest(http.MethodGet, c.serverURL+"/Items?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setEmbyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("emby api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("emby collection search failed: %s - %s", resp.Status, string(respBody))
	}

	var items itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	for _, item := range items.Items {
		if strings.EqualFold(item.Name, name) {
			return item.ID, nil
		}
	}
	return "", nil
}

// CreateCollectionWithItems creates a collection pre-populated with the
// full item set in a single call. Emby 4.9 accepts this via query
// parameters on /Collections. Returns the new collection id, which some
// server versions omit from the response body.
func (c *Client) CreateCollectionWithItems(name string, itemIDs []string) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("IsLocked", "false")
	params.Set("Name", name)
	params.Set("Ids", strings.Join(itemIDs, ","))

	req, err := http.NewRequest(http.MethodPost, c.serverURL+"/Collections?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("emby api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("emby collection create failed: %s - %s", resp.Status, string(respBody))
	}

	var created createdResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		// 204 and some 200 responses carry no body; caller re-searches.
		return "", nil
	}
	return created.ID, nil
}

// CreateCollectionForItem creates a collection seeded with one item via
// the per-item endpoint, the fallback path when bulk creation fails.
func (c *Client) CreateCollectionForItem(itemID, name string) error {
	params := url.Values{}
	params.Set("Name", name)
	params.Set("IsLocked", "false")

	req, err := http.NewRequest(http.MethodPost, c.serverURL+"/Items/"+url.PathEscape(itemID)+"/Collection?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setEmbyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("emby api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("emby collection create (fallback) failed: %s - %s", resp.Status, string(respBody))
	}
	return nil
}

// AddToCollection adds one item to a collection. Emby treats re-adding an
// existing member as a no-op, so the call is idempotent.
func (c *Client) AddToCollection(itemID, collectionID string) error {
	params := url.Values{}
	params.Set("Ids", itemID)

	req, err := http.NewRequest(http.MethodPost, c.serverURL+"/Collections/"+url.PathEscape(collectionID)+"/Items?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setEmbyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("emby api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("emby collection add failed: %s - %s", resp.Status, string(respBody))
	}
	return nil
}
