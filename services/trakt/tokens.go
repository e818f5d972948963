package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// expiryMargin refreshes tokens slightly before they actually lapse so an
// in-flight sync never races the expiry.
const expiryMargin = 5 * time.Minute

// StoredToken is the persisted OAuth token state.
type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the access token is present and not near expiry.
func (t StoredToken) Valid() bool {
	return t.AccessToken != "" && time.Now().Before(t.ExpiresAt.Add(-expiryMargin))
}

// TokenStore persists OAuth tokens to disk and refreshes them through the
// client when they near expiry.
type TokenStore struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	client *Client
	token  StoredToken
}

// NewTokenStore loads any previously saved token from the storage directory.
func NewTokenStore(fs afero.Fs, storageDir string, client *Client) (*TokenStore, error) {
	s := &TokenStore{
		fs:     fs,
		path:   filepath.Join(storageDir, "trakt_token.json"),
		client: client,
	}

	exists, err := afero.Exists(fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("check token file: %w", err)
	}
	if exists {
		data, err := afero.ReadFile(fs, s.path)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		if err := json.Unmarshal(data, &s.token); err != nil {
			log.Printf("[trakt] discarding unreadable token file: %v", err)
			s.token = StoredToken{}
		}
	}
	return s, nil
}

// Save stores a freshly obtained token.
func (s *TokenStore) Save(token *TokenResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(token)
}

func (s *TokenStore) saveLocked(token *TokenResponse) error {
	s.token = StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Unix(token.CreatedAt, 0).Add(time.Duration(token.ExpiresIn) * time.Second),
	}

	data, err := json.MarshalIndent(s.token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Clear removes any stored token.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = StoredToken{}
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil || !exists {
		return err
	}
	return s.fs.Remove(s.path)
}

// Authorized reports whether any token is stored, expired or not.
func (s *TokenStore) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.AccessToken != ""
}

// AccessToken returns a usable access token, refreshing it first if the
// stored one is near expiry.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid() {
		return s.token.AccessToken, nil
	}
	if s.token.RefreshToken == "" {
		return "", fmt.Errorf("not authorized with Trakt")
	}

	log.Printf("[trakt] access token expired, refreshing")
	refreshed, err := s.client.RefreshAccessToken(ctx, s.token.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if err := s.saveLocked(refreshed); err != nil {
		return "", err
	}
	return s.token.AccessToken, nil
}
