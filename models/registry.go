package models

import (
	"fmt"
	"time"
)

// UnresolvedRecord tracks a list entry that could not be matched to any
// library item. Its identity is the entry's Trakt ID when present; entries
// without one fall back to title+year, which is best-effort and can collide
// across lists.
type UnresolvedRecord struct {
	Title         string            `json:"title"`
	Year          int               `json:"year,omitempty"`
	Kind          MediaKind         `json:"type"`
	ExternalIDs   map[string]string `json:"ids"`
	Reason        string            `json:"reason"`
	LastCheckedAt time.Time         `json:"last_checked"`
	Collections   []CollectionRef   `json:"collections"`
}

// Identity returns the key used to deduplicate records across the
// unresolved and ignored registries.
func (r UnresolvedRecord) Identity() string {
	if r.ExternalIDs != nil && r.ExternalIDs["trakt"] != "" {
		return string(r.Kind) + "_" + r.ExternalIDs["trakt"]
	}
	return fmt.Sprintf("%s_%s_%d", r.Kind, r.Title, r.Year)
}

// HasCollection reports whether the record already references the named
// collection.
func (r UnresolvedRecord) HasCollection(name string) bool {
	for _, c := range r.Collections {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Entry reconstructs a ListEntry from the record's stored fields for
// re-resolution.
func (r UnresolvedRecord) Entry() ListEntry {
	return ListEntry{
		Kind:        r.Kind,
		Title:       r.Title,
		Year:        r.Year,
		ExternalIDs: r.ExternalIDs,
	}
}

// IgnoredRecord is an UnresolvedRecord the user has explicitly suppressed
// from future matching attempts.
type IgnoredRecord struct {
	UnresolvedRecord
	IgnoredAt time.Time `json:"ignored_on"`
}
