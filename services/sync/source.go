package sync

import (
	"context"
	"fmt"
	"log"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/models"
	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/services/trakt"
)

// TraktSource adapts the Trakt client and token store to the engine's
// list-fetching contract.
type TraktSource struct {
	Client *trakt.Client
	Tokens *trakt.TokenStore
}

// FetchEntries downloads all pages of a list and converts the items of the
// requested kind. Public lists are still readable with just the client id,
// so a missing token only logs a warning.
func (s *TraktSource) FetchEntries(ctx context.Context, listID string, kind models.MediaKind) ([]models.ListEntry, error) {
	accessToken, err := s.Tokens.AccessToken(ctx)
	if err != nil {
		log.Printf("[trakt] no access token, fetching list %s unauthenticated: %v", listID, err)
		accessToken = ""
	}

	items, err := s.Client.GetAllListItems(ctx, accessToken, listID)
	if err != nil {
		return nil, fmt.Errorf("fetch list items: %w", err)
	}
	return trakt.EntriesOfKind(items, kind), nil
}
