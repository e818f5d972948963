package models

import "strings"

// MediaKind classifies a list entry or library item as a movie or a show.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindShow  MediaKind = "show"
)

// EmbyItemType returns the IncludeItemTypes value Emby expects for this kind.
func (k MediaKind) EmbyItemType() string {
	if k == KindShow {
		return "Series"
	}
	return "Movie"
}

// ParseMediaKind normalizes the media type strings Trakt uses ("movie",
// "show") and the legacy list-config values ("movies", "shows") to a
// MediaKind. Unknown values default to movie.
func ParseMediaKind(s string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "show", "shows", "series", "tv":
		return KindShow
	default:
		return KindMovie
	}
}

// ListEntry is a single media reference from a Trakt list. Entries are
// immutable for the duration of one sync run.
type ListEntry struct {
	Kind        MediaKind         `json:"kind"`
	Title       string            `json:"title"`
	Year        int               `json:"year,omitempty"`
	ExternalIDs map[string]string `json:"ids"`
}

// ID returns the entry's identifier for the given provider family, or an
// empty string when absent.
func (e ListEntry) ID(provider string) string {
	if e.ExternalIDs == nil {
		return ""
	}
	return strings.TrimSpace(e.ExternalIDs[provider])
}

// TraktID returns the list service's own identifier for this entry. It is
// the canonical key for the Mapping Store and the unresolved registries.
func (e ListEntry) TraktID() string { return e.ID("trakt") }

// HasUsableIDs reports whether the entry carries any identifier the matcher
// can work with.
func (e ListEntry) HasUsableIDs() bool {
	return e.ID("imdb") != "" || e.ID("tmdb") != "" || e.ID("trakt") != "" || e.ID("tvdb") != ""
}

// LibraryItem is an immutable snapshot of one item in an Emby library,
// valid for the lifetime of one Library Index build.
type LibraryItem struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	ProductionYear int               `json:"ProductionYear,omitempty"`
	ProviderIDs    map[string]string `json:"ProviderIds,omitempty"`
	Path           string            `json:"Path,omitempty"`
}

// ProviderID returns the item's identifier for the given Emby provider
// field name (e.g. "Imdb", "Tmdb", "Tvdb"), trimmed, or empty when absent.
func (i LibraryItem) ProviderID(name string) string {
	if i.ProviderIDs == nil {
		return ""
	}
	return strings.TrimSpace(i.ProviderIDs[name])
}

// CollectionRef records membership of an unresolved entry in a configured
// collection.
type CollectionRef struct {
	Name      string `json:"name"`
	LibraryID string `json:"library_id,omitempty"`
}
