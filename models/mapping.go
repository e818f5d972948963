package models

import "time"

// MappingRecord is a confirmed resolution of a Trakt entry to an Emby item.
// Records are keyed by (Kind, TraktID); later resolutions of the same key
// overwrite the record, and records are never deleted automatically.
type MappingRecord struct {
	Kind        MediaKind `json:"type"`
	TraktID     string    `json:"trakt_id"`
	EmbyID      string    `json:"emby_id"`
	Title       string    `json:"title"`
	LastUpdated time.Time `json:"last_updated"`
}
